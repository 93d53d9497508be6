// Package api exposes the trigger and query surfaces over JSON HTTP.
//
// Routes:
//   - POST /api/v1/collections/{job}: start a run in the background
//   - GET  /api/v1/runs/{id}: run status and stats
//   - POST /api/v1/runs/{id}/cancel: cooperative cancellation
//   - GET  /api/v1/entities/{id}: entity, links and latest scores
//   - GET  /api/v1/entities/{id}/forecast?horizon_days=N[&country=CC]
//   - GET  /api/v1/divergence[?entity_id=ID]
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
	"github.com/lueurxax/workflow-popularity/internal/platform/observability"
	"github.com/lueurxax/workflow-popularity/internal/process/collection"
)

const (
	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json"

	logFieldRoute = "route"
	logFieldID    = "id"

	forecastStatusOK           = "ok"
	forecastStatusInsufficient = "insufficient_history"
)

// Collector starts and cancels collection runs.
type Collector interface {
	Trigger(ctx context.Context, jobName string) (collection.Ticket, error)
	Cancel(runID string) error
}

// Analytics answers divergence and forecast queries.
type Analytics interface {
	GetDivergence(ctx context.Context, entityID string) ([]domain.DivergenceResult, error)
	GetCountryForecast(ctx context.Context, entityID, country string, horizonDays int) (domain.ForecastResult, error)
}

// Reader loads stored entities, snapshots and runs.
type Reader interface {
	LoadEntity(ctx context.Context, id string) (*domain.WorkflowEntity, error)
	LoadLatestSnapshots(ctx context.Context, entityID string) ([]domain.PopularityScoreSnapshot, error)
	LoadRun(ctx context.Context, runID string) (*domain.CollectionJobRun, error)
}

// Handler serves the JSON API.
type Handler struct {
	collector Collector
	analytics Analytics
	reader    Reader
	logger    *zerolog.Logger
	mux       *http.ServeMux
}

// NewHandler creates a Handler with its routes registered.
func NewHandler(collector Collector, analytics Analytics, reader Reader, logger *zerolog.Logger) *Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	h := &Handler{
		collector: collector,
		analytics: analytics,
		reader:    reader,
		logger:    logger,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /api/v1/collections/{job}", h.route("trigger", h.handleTrigger))
	h.mux.HandleFunc("GET /api/v1/runs/{id}", h.route("run", h.handleRun))
	h.mux.HandleFunc("POST /api/v1/runs/{id}/cancel", h.route("cancel", h.handleCancel))
	h.mux.HandleFunc("GET /api/v1/entities/{id}", h.route("entity", h.handleEntity))
	h.mux.HandleFunc("GET /api/v1/entities/{id}/forecast", h.route("forecast", h.handleForecast))
	h.mux.HandleFunc("GET /api/v1/divergence", h.route("divergence", h.handleDivergence))
	h.mux.HandleFunc("/api/", h.route("not_found", func(w http.ResponseWriter, _ *http.Request) int {
		return h.writeError(w, http.StatusNotFound, "unknown endpoint")
	}))

	return h
}

// ServeHTTP routes requests to API endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) route(name string, fn func(http.ResponseWriter, *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := fn(w, r)

		observability.APIRequests.WithLabelValues(name, strconv.Itoa(status)).Inc()

		h.logger.Debug().
			Str(logFieldRoute, name).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("api request")
	}
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) int {
	job := r.PathValue("job")

	ticket, err := h.collector.Trigger(r.Context(), job)
	if err != nil {
		return h.writeFailure(w, "trigger", job, err)
	}

	return h.writeJSON(w, http.StatusAccepted, ticket)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) int {
	id := r.PathValue("id")

	run, err := h.reader.LoadRun(r.Context(), id)
	if err != nil {
		return h.writeFailure(w, "run", id, err)
	}

	if run == nil {
		return h.writeError(w, http.StatusNotFound, "run not found")
	}

	return h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) int {
	id := r.PathValue("id")

	if err := h.collector.Cancel(id); err != nil {
		return h.writeFailure(w, "cancel", id, err)
	}

	return h.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id, "status": "cancelling"})
}

type snapshotResponse struct {
	Country      string             `json:"country"`
	Score        float64            `json:"score"`
	DecayedPrior float64            `json:"decayed_prior"`
	ComputedAt   time.Time          `json:"computed_at"`
	Breakdown    map[string]float64 `json:"breakdown,omitempty"`
}

type entityResponse struct {
	ID             string             `json:"id"`
	CanonicalTitle string             `json:"canonical_title"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	SourceLinks    map[string]string  `json:"source_links"`
	Scores         []snapshotResponse `json:"scores"`
}

func (h *Handler) handleEntity(w http.ResponseWriter, r *http.Request) int {
	id := r.PathValue("id")

	entity, err := h.reader.LoadEntity(r.Context(), id)
	if err != nil {
		return h.writeFailure(w, "entity", id, err)
	}

	if entity == nil {
		return h.writeError(w, http.StatusNotFound, "entity not found")
	}

	snaps, err := h.reader.LoadLatestSnapshots(r.Context(), id)
	if err != nil {
		return h.writeFailure(w, "entity", id, err)
	}

	resp := entityResponse{
		ID:             entity.ID,
		CanonicalTitle: entity.CanonicalTitle,
		CreatedAt:      entity.CreatedAt,
		UpdatedAt:      entity.UpdatedAt,
		SourceLinks:    make(map[string]string, len(entity.SourceLinks)),
		Scores:         make([]snapshotResponse, 0, len(snaps)),
	}

	for src, ext := range entity.SourceLinks {
		resp.SourceLinks[string(src)] = ext
	}

	for _, s := range snaps {
		resp.Scores = append(resp.Scores, toSnapshotResponse(s))
	}

	return h.writeJSON(w, http.StatusOK, resp)
}

type forecastResponse struct {
	Status       string                      `json:"status"`
	Forecast     *domain.TrendForecast       `json:"forecast,omitempty"`
	Insufficient *domain.InsufficientHistory `json:"insufficient_history,omitempty"`
}

func (h *Handler) handleForecast(w http.ResponseWriter, r *http.Request) int {
	id := r.PathValue("id")

	horizon, err := strconv.Atoi(r.URL.Query().Get("horizon_days"))
	if err != nil {
		return h.writeError(w, http.StatusBadRequest, "horizon_days must be an integer")
	}

	country := domain.NormalizeCountry(r.URL.Query().Get("country"))

	res, err := h.analytics.GetCountryForecast(r.Context(), id, country, horizon)
	if err != nil {
		return h.writeFailure(w, "forecast", id, err)
	}

	if !res.HasForecast() {
		return h.writeJSON(w, http.StatusOK, forecastResponse{Status: forecastStatusInsufficient, Insufficient: res.Insufficient})
	}

	return h.writeJSON(w, http.StatusOK, forecastResponse{Status: forecastStatusOK, Forecast: res.Forecast})
}

func (h *Handler) handleDivergence(w http.ResponseWriter, r *http.Request) int {
	id := r.URL.Query().Get("entity_id")

	results, err := h.analytics.GetDivergence(r.Context(), id)
	if err != nil {
		return h.writeFailure(w, "divergence", id, err)
	}

	if results == nil {
		results = []domain.DivergenceResult{}
	}

	return h.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func toSnapshotResponse(s domain.PopularityScoreSnapshot) snapshotResponse {
	out := snapshotResponse{
		Country:      s.Country,
		Score:        s.Score,
		DecayedPrior: s.DecayedPrior,
		ComputedAt:   s.ComputedAt,
	}

	if len(s.Breakdown) > 0 {
		out.Breakdown = make(map[string]float64, len(s.Breakdown))

		for src, v := range s.Breakdown {
			out.Breakdown[string(src)] = v
		}
	}

	return out
}

// writeFailure maps core errors to status codes and hides internal ones.
func (h *Handler) writeFailure(w http.ResponseWriter, route, id string, err error) int {
	switch {
	case errors.Is(err, coreerrors.ErrNotFound):
		return h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, coreerrors.ErrInvalidInput):
		return h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coreerrors.ErrAlreadyRunning):
		return h.writeError(w, http.StatusConflict, err.Error())
	}

	h.logger.Error().Err(err).Str(logFieldRoute, route).Str(logFieldID, id).Msg("api request failed")

	return h.writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) int {
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error().Err(err).Msg("write json failed")
	}

	return status
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) int {
	return h.writeJSON(w, status, map[string]string{"error": message})
}
