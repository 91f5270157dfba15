package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/poster_downloader/internal/downloader/progress"
	"github.com/italolelis/poster_downloader/internal/logctx"
	"github.com/italolelis/poster_downloader/internal/storage"
	"github.com/italolelis/poster_downloader/internal/telemetry"
)

// StatusResponse is served on /status.
type StatusResponse struct {
	BatchID  string            `json:"batch_id,omitempty"`
	Running  bool              `json:"running"`
	Progress progress.Snapshot `json:"progress"`
	Percent  float64           `json:"percent"`
}

// BatchOutcomesResponse is served on /batches/{batchID}/outcomes.
type BatchOutcomesResponse struct {
	BatchID  string           `json:"batch_id"`
	Counts   map[string]int   `json:"counts"`
	Outcomes []OutcomeSummary `json:"outcomes"`
}

type OutcomeSummary struct {
	BatchID   string `json:"batch_id"`
	RecordID  string `json:"record_id"`
	SourceURL string `json:"source_url"`
	Status    string `json:"status"`
	Kind      string `json:"kind,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Path      string `json:"path,omitempty"`
	Attempts  int    `json:"attempts"`
	Bytes     int    `json:"bytes"`
}

// StatusHandler exposes the progress of the running batch, the stored
// outcomes and the metrics.
type StatusHandler struct {
	tracker  *progress.Tracker
	outcomes storage.OutcomeReadRepository
	metrics  http.Handler

	mu      sync.RWMutex
	batchID string
	running bool
}

// NewStatusHandler creates the handler. outcomes may be nil when no outcome
// store is configured.
func NewStatusHandler(tracker *progress.Tracker, outcomes storage.OutcomeReadRepository, tel *telemetry.Telemetry) *StatusHandler {
	return &StatusHandler{
		tracker:  tracker,
		outcomes: outcomes,
		metrics:  tel.Handler(),
	}
}

// SetBatch records which batch is reported on /status.
func (h *StatusHandler) SetBatch(batchID string, running bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.batchID = batchID
	h.running = running
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID, telemetry.HTTPLogging)

	r.Get("/healthz", h.HandleHealth)
	r.Get("/status", h.HandleStatus)
	r.Method(http.MethodGet, "/metrics", h.metrics)

	r.Route("/batches/{batchID}", func(r chi.Router) {
		r.Get("/outcomes", h.HandleBatchOutcomes)
	})
	r.Get("/records/{recordID}", h.HandleRecordOutcome)

	return r
}

func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	batchID, running := h.batchID, h.running
	h.mu.RUnlock()

	snap := h.tracker.Snapshot()

	writeJSON(w, r, http.StatusOK, StatusResponse{
		BatchID:  batchID,
		Running:  running,
		Progress: snap,
		Percent:  snap.Percent() * 100,
	})
}

func (h *StatusHandler) HandleBatchOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		writeError(w, r, http.StatusNotFound, "outcome store is not configured")

		return
	}

	ctx := r.Context()
	batchID := chi.URLParam(r, "batchID")

	records, err := h.outcomes.GetBatchOutcomes(ctx, batchID)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to load batch outcomes", "batch_id", batchID, "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load outcomes")

		return
	}

	counts, err := h.outcomes.CountByStatus(ctx, batchID)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to count batch outcomes", "batch_id", batchID, "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load outcomes")

		return
	}

	if len(records) == 0 {
		writeError(w, r, http.StatusNotFound, "unknown batch")

		return
	}

	resp := BatchOutcomesResponse{BatchID: batchID, Counts: counts, Outcomes: make([]OutcomeSummary, 0, len(records))}
	for _, rec := range records {
		resp.Outcomes = append(resp.Outcomes, toSummary(rec))
	}

	writeJSON(w, r, http.StatusOK, resp)
}

func (h *StatusHandler) HandleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		writeError(w, r, http.StatusNotFound, "outcome store is not configured")

		return
	}

	ctx := r.Context()
	recordID := chi.URLParam(r, "recordID")

	rec, err := h.outcomes.GetLatestOutcome(ctx, recordID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "unknown record")

		return
	}

	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to load record outcome", "record_id", recordID, "err", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load outcome")

		return
	}

	writeJSON(w, r, http.StatusOK, toSummary(rec))
}

func toSummary(rec storage.OutcomeRecord) OutcomeSummary {
	return OutcomeSummary{
		BatchID:   rec.BatchID,
		RecordID:  rec.RecordID,
		SourceURL: rec.SourceURL,
		Status:    rec.Status,
		Kind:      rec.Kind,
		Detail:    rec.Detail,
		Path:      rec.Path,
		Attempts:  rec.Attempts,
		Bytes:     rec.Bytes,
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "err", err)
	}
}
