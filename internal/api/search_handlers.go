package api

import (
	"net/http"

	"github.com/openforest/fieldcoord/internal/directory"
	"github.com/openforest/fieldcoord/internal/middleware"
)

// CandidatesResponse is the envelope for a candidate search result.
type CandidatesResponse struct {
	Candidates []directory.Candidate `json:"candidates"`
	Count      int                   `json:"count"`
}

// SearchHandlers holds dependencies for candidate search handlers.
type SearchHandlers struct {
	engine *directory.SearchEngine
}

// NewSearchHandlers creates a new SearchHandlers instance.
func NewSearchHandlers(engine *directory.SearchEngine) *SearchHandlers {
	return &SearchHandlers{engine: engine}
}

// FindCandidates handles GET /candidates. The role query parameter is
// required; municipality_id, department_id and region_id seed the cascade
// and may all be omitted for a nationwide search.
func (h *SearchHandlers) FindCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	role := directory.Role(q.Get("role"))
	if !directory.ValidRole(role) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "role must be one of: lead, botanist, technician, co_researcher")
		return
	}

	scope := directory.Scope{
		MunicipalityID: q.Get("municipality_id"),
		DepartmentID:   q.Get("department_id"),
		RegionID:       q.Get("region_id"),
	}

	candidates, err := h.engine.FindCandidates(r.Context(), role, scope)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	if candidates == nil {
		candidates = []directory.Candidate{}
	}
	writeJSON(w, http.StatusOK, CandidatesResponse{Candidates: candidates, Count: len(candidates)})
}
