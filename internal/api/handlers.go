package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/smukkama/carbon-footprint/internal/analysis"
	"github.com/smukkama/carbon-footprint/internal/emissions"
	"github.com/smukkama/carbon-footprint/internal/pipeline"
)

const maxBodyBytes = 1 << 20

type handler struct {
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type recommendationsResponse struct {
	RecordID        string `json:"record_id"`
	Recommendations string `json:"recommendations"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) submitFootprint(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var raw emissions.RawInput
	if err := dec.Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be a JSON object"})
		return
	}
	if raw == nil {
		raw = emissions.RawInput{}
	}

	res, err := h.pipeline.Process(r.Context(), raw)
	if err != nil {
		h.logger.Error("failed to process submission", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to record submission"})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) getAnalysis(w http.ResponseWriter, r *http.Request) {
	res, err := h.pipeline.AnalyzeHistory(r.Context())
	switch {
	case errors.Is(err, analysis.ErrMalformedColumn):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case err != nil:
		h.logger.Error("analysis failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "analysis failed"})
	case res == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *handler) getNews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.News(r.Context()))
}

func (h *handler) getRecommendations(w http.ResponseWriter, r *http.Request) {
	last, ok := h.pipeline.Last()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no footprint has been calculated yet"})
		return
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{
		RecordID:        last.RecordID.String(),
		Recommendations: h.pipeline.Recommend(r.Context(), last),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
