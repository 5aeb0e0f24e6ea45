package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shotsense-cli/internal/analysis"
	"github.com/sells-group/shotsense-cli/internal/auth"
	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/outcome"
)

type resolverFunc func(ctx context.Context, id string) outcome.Outcome[*model.AnalysisRecord]

func (f resolverFunc) Resolve(ctx context.Context, id string, _ *model.Handoff) outcome.Outcome[*model.AnalysisRecord] {
	return f(ctx, id)
}

type listerFunc func(ctx context.Context) outcome.Outcome[[]model.AnalysisSummary]

func (f listerFunc) List(ctx context.Context) outcome.Outcome[[]model.AnalysisSummary] {
	return f(ctx)
}

func okResolver() resolverFunc {
	return func(_ context.Context, id string) outcome.Outcome[*model.AnalysisRecord] {
		return outcome.OK(&model.AnalysisRecord{
			ID:              id,
			MakeProbability: 0.5,
			Metrics: model.Metrics{
				{Key: "S_knee_angle", Value: 120.0},
				{Key: "R_elbow_angle", Value: 88.0},
			},
		})
	}
}

func okLister(entries ...model.AnalysisSummary) listerFunc {
	return func(context.Context) outcome.Outcome[[]model.AnalysisSummary] {
		if entries == nil {
			entries = []model.AnalysisSummary{}
		}
		return outcome.OK(entries)
	}
}

func do(t *testing.T, h http.Handler, method, path string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	h := NewRouter(okResolver(), okLister(), Options{})

	rec, body := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestAnalysis_Ready(t *testing.T) {
	h := NewRouter(okResolver(), okLister(), Options{})

	rec, body := do(t, h, http.MethodGet, "/api/analyses/A1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "A1", body["id"])
	assert.Equal(t, "50%", body["make_percent"])

	phases := body["phases"].([]any)
	require.Len(t, phases, 3)
	first := phases[0].(map[string]any)
	assert.Equal(t, "Setup", first["phase"])
	metric := first["metrics"].([]any)[0].(map[string]any)
	assert.Equal(t, "Knee Angle", metric["label"])
	assert.Equal(t, "S_knee_angle", metric["source"])
}

func TestAnalysis_NotFound(t *testing.T) {
	h := NewRouter(resolverFunc(func(context.Context, string) outcome.Outcome[*model.AnalysisRecord] {
		return outcome.NotFound[*model.AnalysisRecord](analysis.NotFoundMessage, nil)
	}), okLister(), Options{})

	rec, body := do(t, h, http.MethodGet, "/api/analyses/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["status"])
	assert.Equal(t, analysis.NotFoundMessage, body["message"])
}

func TestAnalysis_TransportError(t *testing.T) {
	h := NewRouter(resolverFunc(func(context.Context, string) outcome.Outcome[*model.AnalysisRecord] {
		return outcome.Transport[*model.AnalysisRecord](errors.New("dial tcp: refused"))
	}), okLister(), Options{})

	rec, body := do(t, h, http.MethodGet, "/api/analyses/A1")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, outcome.GenericFailureMessage, body["message"])
	assert.Equal(t, true, body["retryable"])
	assert.NotContains(t, rec.Body.String(), "refused", "internal errors are not leaked")
}

func TestAnalysis_SessionExpired(t *testing.T) {
	h := NewRouter(resolverFunc(func(context.Context, string) outcome.Outcome[*model.AnalysisRecord] {
		return outcome.AuthExpired[*model.AnalysisRecord](auth.ErrSessionExpired)
	}), okLister(), Options{})

	rec, body := do(t, h, http.MethodGet, "/api/analyses/A1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, SignInPath, body["redirect"])
	assert.Equal(t, SignInPath, rec.Header().Get("Location"))
	assert.NotContains(t, body, "status")
}

func TestHistory_Ready(t *testing.T) {
	h := NewRouter(okResolver(), okLister(
		model.AnalysisSummary{ID: "b", CreatedAt: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
		model.AnalysisSummary{ID: "a"},
	), Options{})

	rec, body := do(t, h, http.MethodGet, "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].(map[string]any)["id"])
}

func TestHistory_Empty(t *testing.T) {
	h := NewRouter(okResolver(), okLister(), Options{})

	rec, _ := do(t, h, http.MethodGet, "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entries":[]`)
}

func TestHistory_Failure(t *testing.T) {
	h := NewRouter(okResolver(), listerFunc(func(context.Context) outcome.Outcome[[]model.AnalysisSummary] {
		return outcome.Transport[[]model.AnalysisSummary](errors.New("boom"))
	}), Options{})

	rec, body := do(t, h, http.MethodGet, "/api/history")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "error", body["status"])
}

func TestHistory_SessionExpired(t *testing.T) {
	h := NewRouter(okResolver(), listerFunc(func(context.Context) outcome.Outcome[[]model.AnalysisSummary] {
		return outcome.AuthExpired[[]model.AnalysisSummary](auth.ErrSessionExpired)
	}), Options{})

	rec, body := do(t, h, http.MethodGet, "/api/history")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, SignInPath, body["redirect"])
}

func TestCORS(t *testing.T) {
	h := NewRouter(okResolver(), okLister(), Options{AllowedOrigins: []string{"http://localhost:3000"}})

	rec, _ := do(t, h, http.MethodGet, "/health", "Origin", "http://localhost:3000")
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = do(t, h, http.MethodGet, "/health", "Origin", "http://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	h := NewRouter(okResolver(), okLister(), Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
