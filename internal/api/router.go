package api

import "net/http"

// RouterConfig carries the handler sets and the authentication middleware
// the router composes. A nil Authenticate leaves every route open, which is
// only appropriate in tests.
type RouterConfig struct {
	Sites       *SiteHandlers
	Assignments *AssignmentHandlers
	Brigades    *BrigadeHandlers
	Plots       *PlotHandlers
	Search      *SearchHandlers
	Reports     *ReportHandlers
	Health      *HealthHandlers

	Authenticate func(http.Handler) http.Handler
}

// NewRouter builds the API route table. Probes stay outside authentication;
// everything else requires a valid access token.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)

	protected := func(h http.HandlerFunc) http.Handler {
		if cfg.Authenticate == nil {
			return h
		}
		return cfg.Authenticate(h)
	}

	mux.Handle("POST /sites", protected(cfg.Sites.CreateSite))
	mux.Handle("GET /sites/{id}", protected(cfg.Sites.GetSite))
	mux.Handle("POST /sites/{id}/review", protected(cfg.Sites.ReviewSite))

	mux.Handle("GET /candidates", protected(cfg.Search.FindCandidates))
	mux.Handle("POST /assignments", protected(cfg.Assignments.Assign))

	mux.Handle("GET /brigades/{id}", protected(cfg.Brigades.GetBrigade))
	mux.Handle("POST /brigades/{id}/members", protected(cfg.Brigades.AddMember))
	mux.Handle("DELETE /brigades/{id}/members/{person_id}", protected(cfg.Brigades.RemoveMember))
	mux.Handle("POST /brigades/{id}/invitations", protected(cfg.Brigades.SendInvitations))
	mux.Handle("POST /brigades/{id}/responses", protected(cfg.Brigades.Respond))
	mux.Handle("PUT /brigades/{id}/dates", protected(cfg.Brigades.SetFieldDates))
	mux.Handle("POST /brigades/{id}/routes/{kind}/points", protected(cfg.Brigades.SaveRoutePoints))
	mux.Handle("POST /brigades/{id}/transition", protected(cfg.Brigades.Transition))
	mux.Handle("POST /brigades/{id}/cancel", protected(cfg.Brigades.Cancel))
	mux.Handle("GET /brigades/{id}/report", protected(cfg.Reports.GetReport))

	mux.Handle("POST /subplots/{id}/outcome", protected(cfg.Plots.RecordOutcome))

	return mux
}
