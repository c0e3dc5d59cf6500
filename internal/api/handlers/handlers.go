package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/lovetravelj/receipt-analyzer/internal/analytics"
	"github.com/lovetravelj/receipt-analyzer/internal/api/middleware"
	"github.com/lovetravelj/receipt-analyzer/internal/export"
	"github.com/lovetravelj/receipt-analyzer/internal/jobs"
	"github.com/lovetravelj/receipt-analyzer/internal/receipt"
	"github.com/lovetravelj/receipt-analyzer/internal/store"
)

// Mirror copies accepted records to an external sink. The in-memory
// collection stays authoritative; mirror failures never reject a record.
type Mirror interface {
	Insert(ctx context.Context, r *receipt.Receipt) error
}

// ReceiptsHandler handles receipt collection endpoints.
type ReceiptsHandler struct {
	store  *store.Memory
	mirror Mirror
	log    zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler. mirror may be nil.
func NewReceiptsHandler(store *store.Memory, mirror Mirror, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		store:  store,
		mirror: mirror,
		log:    log,
	}
}

// createReceiptRequest is the JSON body for POST /api/receipts.
type createReceiptRequest struct {
	Date     string         `json:"date"`
	Store    string         `json:"store"`
	Amount   int64          `json:"amount"`
	Category string         `json:"category"`
	Items    []receipt.Item `json:"items,omitempty"`
	RawText  string         `json:"raw_text,omitempty"`
	Source   string         `json:"source,omitempty"`
}

// CreateReceipt handles POST /api/receipts
func (h *ReceiptsHandler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	date, err := civil.ParseDate(req.Date)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	category, err := receipt.ParseCategory(req.Category)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := receipt.New(date, strings.TrimSpace(req.Store), req.Amount, category)
	rec.Items = req.Items
	rec.RawText = req.RawText
	if req.Source != "" {
		rec.Source = receipt.Source(req.Source)
	}

	if err := rec.Validate(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Append(ctx, rec); err != nil {
		h.log.Error().Err(err).Msg("Failed to append receipt")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save receipt")
		return
	}

	if h.mirror != nil {
		if err := h.mirror.Insert(ctx, rec); err != nil {
			h.log.Error().Err(err).Str("receipt_id", rec.ID).Msg("Failed to mirror receipt")
		}
	}

	h.log.Info().Str("receipt_id", rec.ID).Str("store", rec.Store).Int64("amount", rec.Amount).Msg("Receipt created")

	middleware.WriteJSON(w, http.StatusCreated, rec)
}

// parseFilter builds a store filter from from_date, to_date and category
// query parameters.
func parseFilter(r *http.Request) (store.Filter, error) {
	query := r.URL.Query()
	var filter store.Filter

	if s := query.Get("from_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			return filter, fmt.Errorf("invalid from_date format")
		}
		filter.From = &d
	}
	if s := query.Get("to_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			return filter, fmt.Errorf("invalid to_date format")
		}
		filter.To = &d
	}
	if s := query.Get("category"); s != "" {
		category, err := receipt.ParseCategory(s)
		if err != nil {
			return filter, err
		}
		filter.Category = category
	}

	return filter, nil
}

// ListReceipts handles GET /api/receipts
func (h *ReceiptsHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipts, err := h.store.List(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list receipts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list receipts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
	})
}

// statsResponse is the JSON body for GET /api/receipts/stats.
type statsResponse struct {
	TotalAmount       int64                   `json:"total_amount"`
	Count             int                     `json:"count"`
	AvgAmount         float64                 `json:"avg_amount"`
	MaxAmount         int64                   `json:"max_amount"`
	TopCategory       receipt.Category        `json:"top_category"`
	TopCategoryLabel  string                  `json:"top_category_label,omitempty"`
	TopCategoryAmount int64                   `json:"top_category_amount"`
	DailySeries       []analytics.DatePoint   `json:"daily_series"`
	MonthlySeries     []analytics.DatePoint   `json:"monthly_series"`
	CategorySeries    []analytics.CategorySum `json:"category_series"`
}

// Stats handles GET /api/receipts/stats
func (h *ReceiptsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipts, err := h.store.List(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list receipts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}

	table := analytics.Normalize(receipts)
	summary := analytics.Summarize(table)
	topCategory, topAmount := analytics.TopCategory(table)

	resp := statsResponse{
		TotalAmount:       summary.TotalAmount,
		Count:             summary.Count,
		AvgAmount:         summary.AvgAmount,
		MaxAmount:         summary.MaxAmount,
		TopCategory:       topCategory,
		TopCategoryAmount: topAmount,
		DailySeries:       analytics.Daily(table),
		MonthlySeries:     analytics.Monthly(table),
		CategorySeries:    analytics.ByCategory(table),
	}
	if topCategory != "" {
		resp.TopCategoryLabel = topCategory.Label()
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ExportCSV handles GET /api/receipts/export
func (h *ReceiptsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipts, err := h.store.List(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list receipts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export receipts")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.csv"`)
	w.WriteHeader(http.StatusOK)

	if err := export.WriteCSV(w, receipts, export.Options{BOM: true}); err != nil {
		// Headers are already out; all we can do is log.
		h.log.Error().Err(err).Msg("Failed to write CSV export")
	}
}

// ClearReceipts handles DELETE /api/receipts
func (h *ReceiptsHandler) ClearReceipts(w http.ResponseWriter, r *http.Request) {
	removed := h.store.Clear(r.Context())

	h.log.Info().Int("removed", removed).Msg("Receipt collection cleared")

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}

// AnalyzeHandler handles asynchronous receipt text extraction.
type AnalyzeHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(publisher jobs.Publisher, log zerolog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		publisher: publisher,
		log:       log,
	}
}

// EnqueueAnalysis handles POST /api/receipts/analyze
func (h *AnalyzeHandler) EnqueueAnalysis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "text is required")
		return
	}

	ctx := r.Context()

	job := &jobs.ExtractReceiptJob{
		RawText: req.Text,
	}

	if err := h.publisher.PublishExtractReceipt(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue extraction job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue extraction job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Int("text_bytes", len(req.Text)).Msg("Extraction job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status:    jobs.JobStatus(query.Get("status")),
		Extractor: query.Get("extractor"),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
