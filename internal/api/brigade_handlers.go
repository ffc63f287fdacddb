package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/openforest/fieldcoord/internal/brigade"
	"github.com/openforest/fieldcoord/internal/directory"
	"github.com/openforest/fieldcoord/internal/middleware"
)

// AddMemberRequest represents the request body for adding a brigade member.
type AddMemberRequest struct {
	PersonID string `json:"person_id"`
	Role     string `json:"role"`
}

// RespondRequest represents the request body for an invitation response.
// Reason is required when accept is false.
type RespondRequest struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason,omitempty"`
}

// FieldDatesRequest represents the request body for planned field dates.
type FieldDatesRequest struct {
	FieldStart time.Time `json:"field_start"`
	FieldEnd   time.Time `json:"field_end"`
}

// SaveRoutePointsRequest represents the request body for appending reference
// points to an access route.
type SaveRoutePointsRequest struct {
	TransportMode     string                   `json:"transport_mode,omitempty"`
	AccessTimeMinutes int                      `json:"access_time_minutes,omitempty"`
	DistanceKm        float64                  `json:"distance_km,omitempty"`
	Points            []brigade.ReferencePoint `json:"points"`
}

// TransitionRequest represents the request body for a lifecycle transition.
type TransitionRequest struct {
	To string `json:"to"`
}

// BrigadeView is the brigade projection returned by GET /brigades/{id}:
// the brigade itself plus its derived consensus and route completeness.
type BrigadeView struct {
	Brigade        *brigade.Brigade  `json:"brigade"`
	Consensus      brigade.Consensus `json:"consensus"`
	RoutesComplete bool              `json:"routes_complete"`
}

// BrigadeHandlers holds dependencies for brigade HTTP handlers.
type BrigadeHandlers struct {
	engine *brigade.Engine
}

// NewBrigadeHandlers creates a new BrigadeHandlers instance.
func NewBrigadeHandlers(engine *brigade.Engine) *BrigadeHandlers {
	return &BrigadeHandlers{engine: engine}
}

// actor resolves the acting person from the request context.
func actor(r *http.Request) brigade.Actor {
	return brigade.Actor{PersonID: middleware.GetActor(r.Context())}
}

// GetBrigade handles GET /brigades/{id}.
func (h *BrigadeHandlers) GetBrigade(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteFault(w, r, err)
		return
	}

	view := BrigadeView{
		Brigade:   b,
		Consensus: brigade.ComputeConsensus(b.Memberships),
		RoutesComplete: b.Route(brigade.RouteToCamp) != nil && b.Route(brigade.RouteToCamp).Complete() &&
			b.Route(brigade.RouteToSite) != nil && b.Route(brigade.RouteToSite).Complete(),
	}
	writeJSON(w, http.StatusOK, view)
}

// AddMember handles POST /brigades/{id}/members.
func (h *BrigadeHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if strings.TrimSpace(req.PersonID) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "person_id is required")
		return
	}
	role := directory.Role(req.Role)
	if !directory.ValidRole(role) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "role must be one of: lead, botanist, technician, co_researcher")
		return
	}

	b, err := h.engine.AddMember(r.Context(), actor(r), r.PathValue("id"), req.PersonID, role)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// RemoveMember handles DELETE /brigades/{id}/members/{person_id}.
func (h *BrigadeHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.RemoveMember(r.Context(), actor(r), r.PathValue("id"), r.PathValue("person_id"))
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// SendInvitations handles POST /brigades/{id}/invitations.
func (h *BrigadeHandlers) SendInvitations(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.SendInvitations(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Respond handles POST /brigades/{id}/responses - the acting member accepts
// or rejects their own invitation.
func (h *BrigadeHandlers) Respond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	b, err := h.engine.Respond(r.Context(), actor(r), r.PathValue("id"), req.Accept, req.Reason)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// SetFieldDates handles PUT /brigades/{id}/dates.
func (h *BrigadeHandlers) SetFieldDates(w http.ResponseWriter, r *http.Request) {
	var req FieldDatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	b, err := h.engine.SetFieldDates(r.Context(), actor(r), r.PathValue("id"), req.FieldStart, req.FieldEnd)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// SaveRoutePoints handles POST /brigades/{id}/routes/{kind}/points. Points
// append to the existing route; they never replace it.
func (h *BrigadeHandlers) SaveRoutePoints(w http.ResponseWriter, r *http.Request) {
	kind := brigade.RouteKind(r.PathValue("kind"))
	if !brigade.ValidRouteKind(kind) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "route kind must be to_camp or to_site")
		return
	}

	var req SaveRoutePointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	b, err := h.engine.SaveRoutePoints(r.Context(), actor(r), r.PathValue("id"), kind,
		req.TransportMode, req.AccessTimeMinutes, req.DistanceKm, req.Points)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Transition handles POST /brigades/{id}/transition.
func (h *BrigadeHandlers) Transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	to := brigade.State(req.To)
	switch to {
	case brigade.StateInTransit, brigade.StateInExecution, brigade.StateCompleted:
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "to must be one of: in_transit, in_execution, completed")
		return
	}

	b, err := h.engine.Transition(r.Context(), actor(r), r.PathValue("id"), to)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Cancel handles POST /brigades/{id}/cancel - dissolves the brigade and
// returns its site to the assignment pool.
func (h *BrigadeHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.Cancel(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
