package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/openforest/fieldcoord/internal/assignment"
	"github.com/openforest/fieldcoord/internal/brigade"
	"github.com/openforest/fieldcoord/internal/middleware"
)

// AssignRequest represents the request body for assigning a lead to a site.
type AssignRequest struct {
	SiteID string `json:"site_id"`
	LeadID string `json:"lead_id"`
}

// AssignmentHandlers holds dependencies for assignment HTTP handlers.
type AssignmentHandlers struct {
	coordinator *assignment.Coordinator
}

// NewAssignmentHandlers creates a new AssignmentHandlers instance.
func NewAssignmentHandlers(coordinator *assignment.Coordinator) *AssignmentHandlers {
	return &AssignmentHandlers{coordinator: coordinator}
}

// Assign handles POST /assignments - atomically binds an approved lead to a
// ready site and creates the brigade shell.
func (h *AssignmentHandlers) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if strings.TrimSpace(req.SiteID) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "site_id is required")
		return
	}
	if strings.TrimSpace(req.LeadID) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "lead_id is required")
		return
	}

	actor := brigade.Actor{PersonID: middleware.GetActor(r.Context())}
	result, err := h.coordinator.Assign(r.Context(), actor, req.SiteID, req.LeadID)
	if err != nil {
		WriteFault(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}
