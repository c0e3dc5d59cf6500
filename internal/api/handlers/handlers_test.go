package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/lovetravelj/receipt-analyzer/internal/jobs"
	"github.com/lovetravelj/receipt-analyzer/internal/jobs/inmemory"
	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
	"github.com/lovetravelj/receipt-analyzer/internal/store"
)

type mockMirror struct {
	inserted []string
	err      error
}

func (m *mockMirror) Insert(ctx context.Context, r *receipt.Receipt) error {
	m.inserted = append(m.inserted, r.ID)
	return m.err
}

type mockPublisher struct {
	published []*jobs.ExtractReceiptJob
	err       error
}

func (m *mockPublisher) PublishExtractReceipt(ctx context.Context, job *jobs.ExtractReceiptJob) error {
	if m.err != nil {
		return m.err
	}
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func seedStore(t *testing.T, s *store.Memory) {
	t.Helper()
	ctx := context.Background()
	rows := []struct {
		date     string
		storeN   string
		amount   int64
		category receipt.Category
	}{
		{"2026-02-23", "GS25", 3000, receipt.CategoryShopping},
		{"2026-02-24", "Starbucks", 9500, receipt.CategoryFood},
		{"2026-03-01", "Kimbap Heaven", 6000, receipt.CategoryFood},
	}
	for _, row := range rows {
		d, err := civil.ParseDate(row.date)
		if err != nil {
			t.Fatalf("parse date: %v", err)
		}
		if err := s.Append(ctx, receipt.New(d, row.storeN, row.amount, row.category)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func TestCreateReceipt(t *testing.T) {
	s := store.NewMemory()
	mirror := &mockMirror{}
	h := NewReceiptsHandler(s, mirror, testLogger())

	body := `{"date":"2026-02-24","store":"Starbucks","amount":9500,"category":"food"}`
	req := httptest.NewRequest(http.MethodPost, "/api/receipts", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.CreateReceipt(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var got receipt.Receipt
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID == "" {
		t.Error("response has no ID")
	}
	if got.Store != "Starbucks" || got.Amount != 9500 || got.Category != receipt.CategoryFood {
		t.Errorf("response = %+v", got)
	}
	if got.Source != receipt.SourceManual {
		t.Errorf("Source = %q, want manual default", got.Source)
	}

	if s.Len() != 1 {
		t.Errorf("store has %d records, want 1", s.Len())
	}
	if len(mirror.inserted) != 1 || mirror.inserted[0] != got.ID {
		t.Errorf("mirror inserted %v, want [%s]", mirror.inserted, got.ID)
	}
}

func TestCreateReceipt_KoreanCategoryLabel(t *testing.T) {
	s := store.NewMemory()
	h := NewReceiptsHandler(s, nil, testLogger())

	body := `{"date":"2026-02-24","store":"김밥천국","amount":6000,"category":"식비"}`
	req := httptest.NewRequest(http.MethodPost, "/api/receipts", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.CreateReceipt(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var got receipt.Receipt
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Category != receipt.CategoryFood {
		t.Errorf("Category = %q, want food", got.Category)
	}
}

func TestCreateReceipt_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"bad date", `{"date":"24/02/2026","store":"A","amount":1,"category":"food"}`},
		{"unknown category", `{"date":"2026-02-24","store":"A","amount":1,"category":"groceries"}`},
		{"blank store", `{"date":"2026-02-24","store":"   ","amount":1,"category":"food"}`},
		{"negative amount", `{"date":"2026-02-24","store":"A","amount":-1,"category":"food"}`},
		{"unknown source", `{"date":"2026-02-24","store":"A","amount":1,"category":"food","source":"import"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemory()
			h := NewReceiptsHandler(s, nil, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/receipts", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.CreateReceipt(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
			if s.Len() != 0 {
				t.Errorf("store has %d records after rejected request", s.Len())
			}
		})
	}
}

func TestCreateReceipt_MirrorFailureStillCreates(t *testing.T) {
	s := store.NewMemory()
	mirror := &mockMirror{err: errors.New("sink unavailable")}
	h := NewReceiptsHandler(s, mirror, testLogger())

	body := `{"date":"2026-02-24","store":"Starbucks","amount":9500,"category":"food"}`
	req := httptest.NewRequest(http.MethodPost, "/api/receipts", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.CreateReceipt(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 despite mirror failure", w.Code)
	}
	if s.Len() != 1 {
		t.Errorf("store has %d records, want 1", s.Len())
	}
}

func TestListReceipts(t *testing.T) {
	s := store.NewMemory()
	seedStore(t, s)
	h := NewReceiptsHandler(s, nil, testLogger())

	tests := []struct {
		name      string
		url       string
		wantCount int
	}{
		{"all", "/api/receipts", 3},
		{"from date", "/api/receipts?from_date=2026-02-24", 2},
		{"inclusive range", "/api/receipts?from_date=2026-02-24&to_date=2026-02-24", 1},
		{"category", "/api/receipts?category=food", 2},
		{"combined", "/api/receipts?from_date=2026-03-01&category=food", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()
			h.ListReceipts(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}

			var resp struct {
				Receipts []receipt.Receipt `json:"receipts"`
				Count    int               `json:"count"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Count != tt.wantCount || len(resp.Receipts) != tt.wantCount {
				t.Errorf("count = %d (%d receipts), want %d", resp.Count, len(resp.Receipts), tt.wantCount)
			}
		})
	}
}

func TestListReceipts_BadFilter(t *testing.T) {
	h := NewReceiptsHandler(store.NewMemory(), nil, testLogger())

	for _, url := range []string{
		"/api/receipts?from_date=yesterday",
		"/api/receipts?to_date=2026-13-01",
		"/api/receipts?category=groceries",
	} {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		w := httptest.NewRecorder()
		h.ListReceipts(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", url, w.Code)
		}
	}
}

func TestStats(t *testing.T) {
	s := store.NewMemory()
	seedStore(t, s)
	h := NewReceiptsHandler(s, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/receipts/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.TotalAmount != 18500 || resp.Count != 3 {
		t.Errorf("total = %d count = %d, want 18500/3", resp.TotalAmount, resp.Count)
	}
	if resp.MaxAmount != 9500 {
		t.Errorf("max = %d, want 9500", resp.MaxAmount)
	}
	if resp.TopCategory != receipt.CategoryFood || resp.TopCategoryAmount != 15500 {
		t.Errorf("top = %s/%d, want food/15500", resp.TopCategory, resp.TopCategoryAmount)
	}
	if resp.TopCategoryLabel != "식비" {
		t.Errorf("top label = %q, want 식비", resp.TopCategoryLabel)
	}
	if len(resp.DailySeries) != 3 {
		t.Errorf("daily series has %d points, want 3", len(resp.DailySeries))
	}
	if len(resp.MonthlySeries) != 2 {
		t.Errorf("monthly series has %d points, want 2", len(resp.MonthlySeries))
	}
	if len(resp.CategorySeries) != 2 {
		t.Errorf("category series has %d entries, want 2", len(resp.CategorySeries))
	}
}

func TestStats_EmptyCollection(t *testing.T) {
	h := NewReceiptsHandler(store.NewMemory(), nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/receipts/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for empty collection", w.Code)
	}

	var resp statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalAmount != 0 || resp.Count != 0 || resp.AvgAmount != 0 {
		t.Errorf("empty stats = %+v", resp)
	}
	if resp.TopCategory != "" || resp.TopCategoryLabel != "" {
		t.Errorf("top category = %q/%q, want empty", resp.TopCategory, resp.TopCategoryLabel)
	}
}

func TestExportCSV(t *testing.T) {
	s := store.NewMemory()
	seedStore(t, s)
	h := NewReceiptsHandler(s, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/receipts/export", nil)
	w := httptest.NewRecorder()
	h.ExportCSV(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "receipts.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	body := w.Body.Bytes()
	if !bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}) {
		t.Error("body does not start with a UTF-8 BOM")
	}
	lines := strings.Split(strings.TrimRight(string(body[3:]), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "date,store,amount,category") {
		t.Errorf("header = %q", lines[0])
	}
}

func TestClearReceipts(t *testing.T) {
	s := store.NewMemory()
	seedStore(t, s)
	h := NewReceiptsHandler(s, nil, testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/receipts", nil)
	w := httptest.NewRecorder()
	h.ClearReceipts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Removed int `json:"removed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Removed != 3 {
		t.Errorf("removed = %d, want 3", resp.Removed)
	}
	if s.Len() != 0 {
		t.Errorf("store has %d records after clear", s.Len())
	}
}

func TestEnqueueAnalysis(t *testing.T) {
	pub := &mockPublisher{}
	h := NewAnalyzeHandler(pub, testLogger())

	body := `{"text":"Starbucks\n2026-02-24\nTotal 9,500"}`
	req := httptest.NewRequest(http.MethodPost, "/api/receipts/analyze", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.EnqueueAnalysis(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["job_id"] != "job-1" {
		t.Errorf("job_id = %q", resp["job_id"])
	}
	if resp["status"] != string(jobs.JobStatusPending) {
		t.Errorf("status = %q, want pending", resp["status"])
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d jobs, want 1", len(pub.published))
	}
	if !strings.Contains(pub.published[0].RawText, "Starbucks") {
		t.Errorf("published raw text = %q", pub.published[0].RawText)
	}
}

func TestEnqueueAnalysis_Invalid(t *testing.T) {
	h := NewAnalyzeHandler(&mockPublisher{}, testLogger())

	for name, body := range map[string]string{
		"malformed json": `{`,
		"missing text":   `{}`,
		"blank text":     `{"text":"   "}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/receipts/analyze", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.EnqueueAnalysis(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestEnqueueAnalysis_PublisherError(t *testing.T) {
	h := NewAnalyzeHandler(&mockPublisher{err: errors.New("queue is closed")}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/receipts/analyze", strings.NewReader(`{"text":"receipt"}`))
	w := httptest.NewRecorder()
	h.EnqueueAnalysis(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestJobsHandler(t *testing.T) {
	jobStore := inmemory.NewStore()
	ctx := context.Background()
	_ = jobStore.SaveJob(ctx, &jobs.ExtractReceiptJob{
		JobID:     "job-1",
		Status:    jobs.JobStatusCompleted,
		Extractor: "fallback",
		CreatedAt: time.Now(),
	})
	h := NewJobsHandler(jobStore, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	w := httptest.NewRecorder()
	h.GetJob(w, req, "job-1")
	if w.Code != http.StatusOK {
		t.Fatalf("GetJob status = %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	w = httptest.NewRecorder()
	h.GetJob(w, req, "missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("GetJob missing status = %d, want 404", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed", nil)
	w = httptest.NewRecorder()
	h.ListJobs(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("ListJobs status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Jobs  []jobs.ExtractReceiptJob `json:"jobs"`
		Count int                      `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Jobs[0].JobID != "job-1" {
		t.Errorf("ListJobs = %+v", resp)
	}
}
