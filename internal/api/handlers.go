package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"SectorPulse/internal/batch"
	"SectorPulse/internal/logging"
	"SectorPulse/internal/model"
	"SectorPulse/internal/recorder"
)

// Listing modes of GET /api/latest.
const (
	ModeRecommend = "recommend"
	ModeAll       = "all"
)

// Runner is the batch surface the API triggers.
type Runner interface {
	RunDaily(ctx context.Context, asOf time.Time) (*batch.Report, error)
	EvaluateTicker(ctx context.Context, symbol string) (*model.AnalysisResult, error)
	Running() bool
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	runner Runner
	store  recorder.Store
	logger *zap.Logger
	// baseCtx outlives requests; background batches run on it.
	baseCtx context.Context
}

// NewHandler creates a new Handler. Background runs stop when ctx is done.
func NewHandler(ctx context.Context, runner Runner, store recorder.Store, logger *zap.Logger) *Handler {
	return &Handler{
		runner:  runner,
		store:   store,
		logger:  logging.OrNop(logger),
		baseCtx: ctx,
	}
}

// TriggerBatch handles POST /api/analyze. The run continues in the
// background; an optional date=YYYY-MM-DD analyzes as of that day.
func (h *Handler) TriggerBatch(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDateParam(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	if h.runner.Running() {
		respondError(w, http.StatusConflict, batch.ErrRunInProgress.Error())
		return
	}

	go func() {
		report, err := h.runner.RunDaily(h.baseCtx, asOf)
		if err != nil {
			h.logger.Error("background batch failed", zap.Error(err))
			return
		}
		h.logger.Info("background batch done",
			zap.String("run_id", report.RunID),
			zap.Int("results", len(report.Results)))
	}()

	resp := map[string]string{"status": "accepted"}
	if !asOf.IsZero() {
		resp["date"] = asOf.Format(recorder.DateLayout)
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// AnalyzeTicker handles POST /api/analyze/{ticker}
func (h *Handler) AnalyzeTicker(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["ticker"]))
	if ticker == "" {
		respondError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	res, err := h.runner.EvaluateTicker(r.Context(), ticker)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, res)
	case errors.Is(err, model.ErrInsufficientData):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, model.ErrProviderUnavailable), errors.Is(err, model.ErrMalformedResponse):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("analyze ticker failed", zap.String("ticker", ticker), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

type latestResponse struct {
	Date    string                 `json:"date,omitempty"`
	Mode    string                 `json:"mode"`
	Count   int                    `json:"count"`
	Results []model.AnalysisResult `json:"results"`
}

// GetLatest handles GET /api/latest?mode=recommend|all&date=YYYY-MM-DD
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("mode")
	if mode == "" {
		mode = ModeRecommend
	}
	if mode != ModeRecommend && mode != ModeAll {
		respondError(w, http.StatusBadRequest, "mode must be recommend or all")
		return
	}
	date, err := parseDateParam(q.Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	var datePtr *time.Time
	if !date.IsZero() {
		datePtr = &date
	}

	results, err := h.store.QueryLatest(r.Context(), datePtr)
	if err != nil {
		h.logger.Error("query latest failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if mode == ModeRecommend {
		filtered := results[:0]
		for _, res := range results {
			if res.Signal.Actionable() {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}
	if results == nil {
		results = []model.AnalysisResult{}
	}

	resp := latestResponse{Mode: mode, Count: len(results), Results: results}
	if len(results) > 0 {
		resp.Date = results[0].DateKey()
	} else if datePtr != nil {
		resp.Date = date.Format(recorder.DateLayout)
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetLatestMacro handles GET /api/macro/latest
func (h *Handler) GetLatestMacro(w http.ResponseWriter, r *http.Request) {
	m, date, err := h.store.LatestMacro(r.Context())
	if err != nil {
		h.logger.Error("query macro failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if m == nil {
		respondError(w, http.StatusNotFound, "no macro sentiment stored")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":  date.Format(recorder.DateLayout),
		"macro": m,
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"batch_running": h.runner.Running(),
	})
}

func parseDateParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(recorder.DateLayout, s)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
