package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lovetravelj/receipt-analyzer/internal/api/handlers"
	"github.com/lovetravelj/receipt-analyzer/internal/api/middleware"
	"github.com/lovetravelj/receipt-analyzer/internal/config"
	"github.com/lovetravelj/receipt-analyzer/internal/extract"
	"github.com/lovetravelj/receipt-analyzer/internal/jobs"
	"github.com/lovetravelj/receipt-analyzer/internal/jobs/inmemory"
	"github.com/lovetravelj/receipt-analyzer/internal/logger"
	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
	"github.com/lovetravelj/receipt-analyzer/internal/sink"
	"github.com/lovetravelj/receipt-analyzer/internal/store"
)

func main() {
	// Initialize logger
	log := logger.New()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	// Initialize the receipt collection
	receiptStore := store.NewMemory()

	// Initialize the extraction service. Without an API key the service
	// degrades to the heuristic extractor for every request.
	var remote extract.Remote
	if cfg.RemoteExtractionEnabled() {
		remote = extract.NewGeminiExtractor(cfg.GeminiAPIKey, cfg.GeminiModel)
	} else {
		log.Warn().Msg("No Gemini API key configured - extraction will use heuristics only")
	}
	extractSvc := extract.NewService(remote, log)

	// Optional BigQuery mirror for accepted receipts
	var mirror handlers.Mirror
	if cfg.BigQueryProject != "" {
		bqSink, err := sink.New(ctx, cfg.BigQueryProject, cfg.BigQueryDataset, cfg.BigQueryTable)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery sink")
		}
		defer bqSink.Close()
		mirror = bqSink
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueSize, cfg.WorkerCount, jobStore)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	// Create job handler for processing extraction jobs
	jobHandler := func(ctx context.Context, job jobs.Job) error {
		extractJob, ok := job.(*jobs.ExtractReceiptJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", extractJob.JobID).
			Int("text_bytes", len(extractJob.RawText)).
			Msg("Processing extraction job")

		fields, extractor, err := extractSvc.Extract(ctx, extractJob.RawText)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", extractJob.JobID).
				Msg("Extraction failed")
			// A response that parsed but was unusable will not improve
			// on retry.
			if errors.Is(err, extract.ErrMalformedResponse) {
				return jobs.NewTerminalError(err)
			}
			return err
		}

		extractJob.Fields = &fields
		extractJob.Extractor = extractor

		// Drafts with no amount wait for manual confirmation instead of
		// entering the collection.
		if !fields.AmountMissing {
			rec := receipt.New(fields.Date, fields.Store, fields.Amount, fields.Category)
			rec.RawText = extractJob.RawText
			rec.Source = receipt.SourceOCR
			if err := receiptStore.Append(ctx, rec); err != nil {
				return fmt.Errorf("append extracted receipt: %w", err)
			}
			extractJob.ReceiptID = rec.ID

			if mirror != nil {
				if err := mirror.Insert(ctx, rec); err != nil {
					log.Error().Err(err).Str("receipt_id", rec.ID).Msg("Failed to mirror receipt")
				}
			}
		}

		log.Info().
			Str("job_id", extractJob.JobID).
			Str("extractor", extractor).
			Str("receipt_id", extractJob.ReceiptID).
			Msg("Extraction job completed")

		return nil
	}

	// Start job consumer in background
	go func() {
		log.Info().Int("workers", cfg.WorkerCount).Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	receiptsHandler := handlers.NewReceiptsHandler(receiptStore, mirror, log)
	analyzeHandler := handlers.NewAnalyzeHandler(jobQueue, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Receipts endpoints
	mux.HandleFunc("/api/receipts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			receiptsHandler.CreateReceipt(w, r)
		case http.MethodGet:
			receiptsHandler.ListReceipts(w, r)
		case http.MethodDelete:
			receiptsHandler.ClearReceipts(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/receipts/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			receiptsHandler.Stats(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/receipts/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			receiptsHandler.ExportCSV(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/receipts/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			analyzeHandler.EnqueueAnalysis(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
