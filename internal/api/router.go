package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smukkama/carbon-footprint/internal/pipeline"
)

// NewRouter registers the service routes. gatherer backs /metrics and may
// be nil.
func NewRouter(p *pipeline.Pipeline, gatherer prometheus.Gatherer, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{pipeline: p, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Handle("/footprint", handlers.ContentTypeHandler(http.HandlerFunc(h.submitFootprint), "application/json")).Methods("POST")
	v1.HandleFunc("/analysis", h.getAnalysis).Methods("GET")
	v1.HandleFunc("/news", h.getNews).Methods("GET")
	v1.HandleFunc("/recommendations", h.getRecommendations).Methods("GET")

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	return r
}

// Wrap adds panic recovery and combined access logging to w
func Wrap(h http.Handler, accessLog io.Writer) http.Handler {
	recovered := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	return handlers.CombinedLoggingHandler(accessLog, recovered)
}
