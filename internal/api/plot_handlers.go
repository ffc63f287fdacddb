package api

import (
	"encoding/json"
	"net/http"

	"github.com/openforest/fieldcoord/internal/middleware"
	"github.com/openforest/fieldcoord/internal/plot"
)

// PlotHandlers holds dependencies for sub-plot outcome handlers.
type PlotHandlers struct {
	tracker *plot.Tracker
}

// NewPlotHandlers creates a new PlotHandlers instance.
func NewPlotHandlers(tracker *plot.Tracker) *PlotHandlers {
	return &PlotHandlers{tracker: tracker}
}

// RecordOutcome handles POST /subplots/{id}/outcome.
func (h *PlotHandlers) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var outcome plot.Outcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	result, err := h.tracker.RecordOutcome(r.Context(), actor(r), r.PathValue("id"), outcome)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
