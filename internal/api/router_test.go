package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smukkama/carbon-footprint/internal/history"
	"github.com/smukkama/carbon-footprint/internal/metrics"
	"github.com/smukkama/carbon-footprint/internal/pipeline"
)

func newTestRouter(t *testing.T, store history.Store) (http.Handler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	p, err := pipeline.New(pipeline.Deps{Store: store, Metrics: metrics.New(reg)})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	return NewRouter(p, reg, nil), reg
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, history.NewMemoryStore())
	rec := do(h, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestSubmitFootprint(t *testing.T) {
	store := history.NewMemoryStore()
	h, _ := newTestRouter(t, store)

	rec := do(h, "POST", "/v1/footprint", `{"car_km": "50", "bus_km": 10, "electricity": 15, "meat_meals": 2, "veg_meals": 1, "train_km": -3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var res pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if math.Abs(res.Breakdown.Total-16.385) > 1e-9 {
		t.Errorf("Expected total 16.385, got %v", res.Breakdown.Total)
	}
	if res.Input.TrainKm != 0 {
		t.Errorf("Expected negative train_km defaulted, got %v", res.Input.TrainKm)
	}
	if len(res.Diagnostics.Corrections) != 2 {
		t.Errorf("Expected 2 corrections (train_km, vegan_meals), got %+v", res.Diagnostics.Corrections)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 stored record, got %d", store.Len())
	}
}

func TestSubmitFootprint_BadRequests(t *testing.T) {
	h, _ := newTestRouter(t, history.NewMemoryStore())

	if rec := do(h, "POST", "/v1/footprint", `[1, 2]`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-object body, got %d", rec.Code)
	}

	req := httptest.NewRequest("POST", "/v1/footprint", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected 415 for text/plain, got %d", rec.Code)
	}
}

func TestAnalysis_StatusCodes(t *testing.T) {
	store := history.NewMemoryStore()
	h, _ := newTestRouter(t, store)

	if rec := do(h, "GET", "/v1/analysis", ""); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 with empty history, got %d", rec.Code)
	}

	for i := 0; i < 3; i++ {
		do(h, "POST", "/v1/footprint", `{"car_km": 10}`)
	}
	rec := do(h, "GET", "/v1/analysis", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["records"] != float64(3) {
		t.Errorf("Expected 3 records, got %v", body["records"])
	}
	if _, ok := body["next_prediction"]; ok {
		t.Error("Expected no prediction with 3 records")
	}
}

func TestAnalysis_MalformedHistory(t *testing.T) {
	store := history.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		store.Append(ctx, history.Record{Timestamp: time.Now(), CarKm: 1, TotalEmissions: math.NaN()})
	}
	h, _ := newTestRouter(t, store)

	if rec := do(h, "GET", "/v1/analysis", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for all-missing totals, got %d", rec.Code)
	}
}

func TestRecommendations(t *testing.T) {
	h, _ := newTestRouter(t, history.NewMemoryStore())

	if rec := do(h, "GET", "/v1/recommendations", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before any submission, got %d", rec.Code)
	}

	do(h, "POST", "/v1/footprint", `{"car_km": 20, "meat_meals": 1}`)
	rec := do(h, "GET", "/v1/recommendations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Transportation") {
		t.Errorf("Expected fallback recommendations, got %s", rec.Body.String())
	}
}

func TestNews_NoSource(t *testing.T) {
	h, _ := newTestRouter(t, history.NewMemoryStore())
	rec := do(h, "GET", "/v1/news", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, history.NewMemoryStore())
	do(h, "POST", "/v1/footprint", `{"car_km": 1}`)

	rec := do(h, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "carbon_submissions_total 1") {
		t.Errorf("Expected submission counter in metrics output")
	}
}

func TestWrap_RecoversPanics(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	var logBuf bytes.Buffer
	h := Wrap(panicking, &logBuf)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 after panic, got %d", rec.Code)
	}
	if !strings.Contains(logBuf.String(), `"GET / HTTP/1.1" 500`) {
		t.Errorf("Expected access log line, got %q", logBuf.String())
	}
}
