package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/workflow-popularity/internal/core/domain"
	coreerrors "github.com/lueurxax/workflow-popularity/internal/core/errors"
	"github.com/lueurxax/workflow-popularity/internal/core/ports/mocks"
	"github.com/lueurxax/workflow-popularity/internal/process/collection"
	"github.com/lueurxax/workflow-popularity/internal/process/novelty"
)

const testEntityID = "8f14e45f-ceea-467f-a0e6-3f1c2b9f5a11"

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeCollector struct {
	triggerErr error
	cancelErr  error
	triggered  []string
	cancelled  []string
}

func (c *fakeCollector) Trigger(_ context.Context, jobName string) (collection.Ticket, error) {
	if c.triggerErr != nil {
		return collection.Ticket{}, c.triggerErr
	}

	c.triggered = append(c.triggered, jobName)

	return collection.Ticket{RunID: "run-1", JobName: jobName, StartedAt: testNow}, nil
}

func (c *fakeCollector) Cancel(runID string) error {
	if c.cancelErr != nil {
		return c.cancelErr
	}

	c.cancelled = append(c.cancelled, runID)

	return nil
}

func newTestHandler(t *testing.T, collector *fakeCollector) (*Handler, *mocks.Store) {
	t.Helper()

	store := mocks.NewStore()
	store.Now = func() time.Time { return testNow }

	svc := novelty.NewService(store, domain.DefaultTuning()).WithClock(func() time.Time { return testNow })

	return NewHandler(collector, svc, store, nil), store
}

func seedEntity(t *testing.T, store *mocks.Store) {
	t.Helper()

	require.NoError(t, store.SaveEntity(context.Background(), domain.WorkflowEntity{
		ID:              testEntityID,
		CanonicalTitle:  "Slack to Notion sync",
		NormalizedTitle: "slack to notion sync",
		CreatedAt:       testNow.Add(-30 * 24 * time.Hour),
		UpdatedAt:       testNow,
		SourceLinks:     map[domain.Source]string{domain.SourceVideo: "vid-1"},
	}))
}

func appendSnapshot(t *testing.T, store *mocks.Store, country string, score float64, at time.Time) {
	t.Helper()

	require.NoError(t, store.AppendSnapshot(context.Background(), domain.PopularityScoreSnapshot{
		EntityID:   testEntityID,
		Country:    country,
		Score:      score,
		ComputedAt: at,
		Breakdown:  map[domain.Source]float64{domain.SourceVideo: score},
	}))
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()

	assert.Equal(t, contentTypeJSON, rec.Header().Get(contentTypeHeader))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHandler_Trigger(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "accepted", wantStatus: http.StatusAccepted},
		{name: "already running", err: fmt.Errorf("manual: %w", coreerrors.ErrAlreadyRunning), wantStatus: http.StatusConflict},
		{name: "unknown job", err: fmt.Errorf("job %q: %w", "nope", coreerrors.ErrInvalidInput), wantStatus: http.StatusBadRequest},
		{name: "storage failure", err: fmt.Errorf("claim run slot: %w", context.DeadlineExceeded), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := &fakeCollector{triggerErr: tt.err}
			h, _ := newTestHandler(t, collector)

			rec := serve(h, http.MethodPost, "/api/v1/collections/manual")
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.err != nil {
				return
			}

			var ticket collection.Ticket
			decode(t, rec, &ticket)
			assert.Equal(t, "run-1", ticket.RunID)
			assert.Equal(t, []string{domain.JobManual}, collector.triggered)
		})
	}
}

func TestHandler_TriggerHidesInternalErrors(t *testing.T) {
	h, _ := newTestHandler(t, &fakeCollector{triggerErr: fmt.Errorf("dial tcp 10.0.0.5:5432: refused")})

	rec := serve(h, http.MethodPost, "/api/v1/collections/manual")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "internal error", body["error"])
}

func TestHandler_Run(t *testing.T) {
	h, store := newTestHandler(t, &fakeCollector{})

	run, ok, err := store.TryStartRun(context.Background(), domain.JobManual)
	require.NoError(t, err)
	require.True(t, ok)

	rec := serve(h, http.MethodGet, "/api/v1/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.CollectionJobRun
	decode(t, rec, &got)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, domain.RunStatusRunning, got.Status)

	rec = serve(h, http.MethodGet, "/api/v1/runs/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Cancel(t *testing.T) {
	collector := &fakeCollector{}
	h, _ := newTestHandler(t, collector)

	rec := serve(h, http.MethodPost, "/api/v1/runs/run-7/cancel")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"run-7"}, collector.cancelled)

	collector.cancelErr = fmt.Errorf("active run run-8: %w", coreerrors.ErrNotFound)
	rec = serve(h, http.MethodPost, "/api/v1/runs/run-8/cancel")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Entity(t *testing.T) {
	h, store := newTestHandler(t, &fakeCollector{})
	seedEntity(t, store)
	appendSnapshot(t, store, domain.CountryGlobal, 100, testNow.Add(-24*time.Hour))
	appendSnapshot(t, store, domain.CountryGlobal, 120, testNow)
	appendSnapshot(t, store, "IN", 90, testNow)

	rec := serve(h, http.MethodGet, "/api/v1/entities/"+testEntityID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got entityResponse
	decode(t, rec, &got)
	assert.Equal(t, "Slack to Notion sync", got.CanonicalTitle)
	assert.Equal(t, map[string]string{"video": "vid-1"}, got.SourceLinks)
	require.Len(t, got.Scores, 2)

	scores := make(map[string]float64, len(got.Scores))
	for _, s := range got.Scores {
		scores[s.Country] = s.Score
	}

	assert.Equal(t, map[string]float64{domain.CountryGlobal: 120, "IN": 90}, scores)

	rec = serve(h, http.MethodGet, "/api/v1/entities/"+"00000000-0000-0000-0000-000000000000")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Forecast(t *testing.T) {
	h, store := newTestHandler(t, &fakeCollector{})
	seedEntity(t, store)
	appendSnapshot(t, store, domain.CountryGlobal, 100, testNow.Add(-48*time.Hour))

	rec := serve(h, http.MethodGet, "/api/v1/entities/"+testEntityID+"/forecast?horizon_days=7")
	require.Equal(t, http.StatusOK, rec.Code)

	var insufficient forecastResponse
	decode(t, rec, &insufficient)
	assert.Equal(t, forecastStatusInsufficient, insufficient.Status)
	require.NotNil(t, insufficient.Insufficient)
	assert.Equal(t, 1, insufficient.Insufficient.Have)
	assert.Equal(t, 3, insufficient.Insufficient.Need)

	appendSnapshot(t, store, domain.CountryGlobal, 110, testNow.Add(-24*time.Hour))
	appendSnapshot(t, store, domain.CountryGlobal, 120, testNow)

	rec = serve(h, http.MethodGet, "/api/v1/entities/"+testEntityID+"/forecast?horizon_days=7")
	require.Equal(t, http.StatusOK, rec.Code)

	var ok forecastResponse
	decode(t, rec, &ok)
	assert.Equal(t, forecastStatusOK, ok.Status)
	require.NotNil(t, ok.Forecast)
	assert.InDelta(t, 190, ok.Forecast.PredictedScore, 1e-6)
	assert.Equal(t, domain.TrendRising, ok.Forecast.Direction)
	assert.Equal(t, domain.CountryGlobal, ok.Forecast.Country)
}

func TestHandler_ForecastErrors(t *testing.T) {
	h, store := newTestHandler(t, &fakeCollector{})
	seedEntity(t, store)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{name: "missing horizon", target: "/api/v1/entities/" + testEntityID + "/forecast", wantStatus: http.StatusBadRequest},
		{name: "horizon out of range", target: "/api/v1/entities/" + testEntityID + "/forecast?horizon_days=0", wantStatus: http.StatusBadRequest},
		{name: "unknown entity", target: "/api/v1/entities/missing/forecast?horizon_days=7", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodGet, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandler_Divergence(t *testing.T) {
	h, store := newTestHandler(t, &fakeCollector{})
	seedEntity(t, store)
	appendSnapshot(t, store, "IN", 1600, testNow)
	appendSnapshot(t, store, "US", 60, testNow)

	rec := serve(h, http.MethodGet, "/api/v1/divergence")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []domain.DivergenceResult `json:"results"`
	}

	decode(t, rec, &body)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "IN", body.Results[0].HighCountry)
	assert.Equal(t, "US", body.Results[0].LowCountry)
	assert.InDelta(t, 1540, body.Results[0].Magnitude, 1e-9)

	rec = serve(h, http.MethodGet, "/api/v1/divergence?entity_id=missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_UnknownRoute(t *testing.T) {
	h, _ := newTestHandler(t, &fakeCollector{})

	rec := serve(h, http.MethodGet, "/api/v2/anything")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
