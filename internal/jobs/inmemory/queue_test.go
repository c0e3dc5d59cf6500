package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lovetravelj/receipt-analyzer/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ExtractReceiptJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			job, _ := store.GetJob(context.Background(), jobID)
			t.Fatalf("job %s never reached %s, last state: %+v", jobID, want, job)
			return nil
		case <-time.After(10 * time.Millisecond):
			job, err := store.GetJob(context.Background(), jobID)
			if err == nil && job.Status == want {
				return job
			}
		}
	}
}

func TestQueue_PublishAssignsDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	job := &jobs.ExtractReceiptJob{RawText: "text"}
	if err := q.PublishExtractReceipt(context.Background(), job); err != nil {
		t.Fatalf("PublishExtractReceipt: %v", err)
	}

	if job.JobID == "" {
		t.Error("JobID not assigned")
	}
	if job.Status != jobs.JobStatusPending {
		t.Errorf("Status = %s, want pending", job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if job.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", job.MaxRetries)
	}
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	var handled int32
	handler := func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.ExtractReceiptJob{RawText: "text"}
	if err := q.PublishExtractReceipt(context.Background(), job); err != nil {
		t.Fatalf("PublishExtractReceipt: %v", err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if atomic.LoadInt32(&handled) != 1 {
		t.Errorf("handler called %d times, want 1", handled)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Errorf("timestamps not set: %+v", done)
	}
	if done.Error != "" {
		t.Errorf("Error = %q, want empty", done.Error)
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var attempts int32
	handler := func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("transient failure")
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.ExtractReceiptJob{RawText: "text", MaxRetries: 1}
	if err := q.PublishExtractReceipt(context.Background(), job); err != nil {
		t.Fatalf("PublishExtractReceipt: %v", err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("handler called %d times, want 2 (initial + 1 retry)", got)
	}
	if done.Error == "" {
		t.Error("failed job has empty Error")
	}
	if done.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", done.RetryCount)
	}
}

func TestQueue_TerminalErrorSkipsRetry(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var attempts int32
	handler := func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&attempts, 1)
		return jobs.NewTerminalError(errors.New("response unusable"))
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.ExtractReceiptJob{RawText: "text"}
	if err := q.PublishExtractReceipt(context.Background(), job); err != nil {
		t.Fatalf("PublishExtractReceipt: %v", err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("handler called %d times, want 1 (no retries)", got)
	}
	if done.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", done.RetryCount)
	}
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(10, 1, NewStore())
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err := q.PublishExtractReceipt(context.Background(), &jobs.ExtractReceiptJob{RawText: "text"})
	if err == nil {
		t.Fatal("expected error publishing to a closed queue")
	}
}

func TestQueue_StopWaitsForWorkers(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)

	release := make(chan struct{})
	handler := func(ctx context.Context, job jobs.Job) error {
		<-release
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.ExtractReceiptJob{RawText: "text"}
	if err := q.PublishExtractReceipt(context.Background(), job); err != nil {
		t.Fatalf("PublishExtractReceipt: %v", err)
	}
	waitForStatus(t, store, job.JobID, jobs.JobStatusRunning)

	stopCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := q.Stop(stopCtx); err == nil {
		t.Error("Stop returned nil while a job was still in flight")
	}

	close(release)
	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("Stop after release: %v", err)
	}
}

func TestIsTerminal(t *testing.T) {
	base := errors.New("boom")
	if jobs.IsTerminal(base) {
		t.Error("plain error reported as terminal")
	}
	if !jobs.IsTerminal(jobs.NewTerminalError(base)) {
		t.Error("wrapped error not reported as terminal")
	}
	if !errors.Is(jobs.NewTerminalError(base), base) {
		t.Error("terminal wrapper hides the underlying error")
	}
}
