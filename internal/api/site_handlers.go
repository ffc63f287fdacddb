package api

import (
	"encoding/json"
	"net/http"

	"github.com/openforest/fieldcoord/internal/middleware"
	"github.com/openforest/fieldcoord/internal/site"
)

// CreateSiteRequest represents the request body for registering a sampling site.
type CreateSiteRequest struct {
	Code      string  `json:"code"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ReviewSiteRequest represents the request body for the review decision.
// Scope ids are required when approving and ignored when rejecting.
type ReviewSiteRequest struct {
	Approve        bool   `json:"approve"`
	RegionID       string `json:"region_id,omitempty"`
	DepartmentID   string `json:"department_id,omitempty"`
	MunicipalityID string `json:"municipality_id,omitempty"`
}

// SiteHandlers holds dependencies for sampling site HTTP handlers.
type SiteHandlers struct {
	sites *site.Service
}

// NewSiteHandlers creates a new SiteHandlers instance.
func NewSiteHandlers(sites *site.Service) *SiteHandlers {
	return &SiteHandlers{sites: sites}
}

// CreateSite handles POST /sites - registers a generated site for review.
func (h *SiteHandlers) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req CreateSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	created, err := h.sites.Create(r.Context(), req.Code, req.Latitude, req.Longitude)
	if err != nil {
		WriteFault(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GetSite handles GET /sites/{id} - returns a site with its five sub-plots.
func (h *SiteHandlers) GetSite(w http.ResponseWriter, r *http.Request) {
	s, err := h.sites.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteFault(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s)
}

// ReviewSite handles POST /sites/{id}/review - approves or rejects a site
// that is still in review.
func (h *SiteHandlers) ReviewSite(w http.ResponseWriter, r *http.Request) {
	var req ReviewSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	scope := site.AdminScope{}
	if req.RegionID != "" {
		scope.RegionID = &req.RegionID
	}
	if req.DepartmentID != "" {
		scope.DepartmentID = &req.DepartmentID
	}
	if req.MunicipalityID != "" {
		scope.MunicipalityID = &req.MunicipalityID
	}

	reviewed, err := h.sites.Review(r.Context(), r.PathValue("id"), req.Approve, scope)
	if err != nil {
		WriteFault(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewed)
}
