package directory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/openforest/fieldcoord/internal/geo"
)

// Scope is the geographic starting point of a candidate search. The most
// specific id provided determines the first cascade level; unset ids are
// skipped when widening.
type Scope struct {
	MunicipalityID string `json:"municipality_id,omitempty"`
	DepartmentID   string `json:"department_id,omitempty"`
	RegionID       string `json:"region_id,omitempty"`
}

// levels returns the ordered cascade for this scope, from the most specific
// provided level up to nationwide. Nationwide is always the last level, so
// the cascade is bounded at four queries.
func (s Scope) levels() []scopeQuery {
	var qs []scopeQuery
	if s.MunicipalityID != "" {
		qs = append(qs, scopeQuery{LevelMunicipality, s.MunicipalityID})
	}
	if s.DepartmentID != "" {
		qs = append(qs, scopeQuery{LevelDepartment, s.DepartmentID})
	}
	if s.RegionID != "" {
		qs = append(qs, scopeQuery{LevelRegion, s.RegionID})
	}
	qs = append(qs, scopeQuery{LevelNationwide, ""})
	return qs
}

type scopeQuery struct {
	level      ScopeLevel
	divisionID string
}

// Candidate is one search result: a resolved person, the cascade level that
// produced them, their current workload (lead candidates only) and a
// best-effort display location.
type Candidate struct {
	Person   Person     `json:"person"`
	Level    ScopeLevel `json:"level"`
	Workload int        `json:"workload"`
	Location string     `json:"location"`
}

// WorkloadCounter reports how many sites a person is currently assigned to
// as lead. The site repository satisfies this.
type WorkloadCounter interface {
	CountAssignedToLead(ctx context.Context, personID string) (int, error)
}

// SearchEngine finds ranked brigade candidates for a role within a
// geographic scope.
type SearchEngine struct {
	people   Repository
	workload WorkloadCounter
	lookup   geo.Lookup
	logger   *slog.Logger
}

// NewSearchEngine creates a search engine. lookup may be nil; enrichment
// then degrades to "unknown" locations.
func NewSearchEngine(people Repository, workload WorkloadCounter, lookup geo.Lookup, logger *slog.Logger) *SearchEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchEngine{people: people, workload: workload, lookup: lookup, logger: logger}
}

// FindCandidates searches for approved holders of the role, starting at the
// most specific scope level provided and widening one level at a time until
// a non-empty result is found. An empty nationwide result returns an empty
// list, not an error. The search is read-only and sequential; it never
// retries beyond the nationwide level.
//
// Ids that do not resolve to a person record are silently excluded. Lead
// candidates are ranked ascending by workload; other roles are ordered by
// name for stable output.
func (e *SearchEngine) FindCandidates(ctx context.Context, role Role, scope Scope) ([]Candidate, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	for _, q := range scope.levels() {
		ids, err := e.people.FindIDsByRole(ctx, role, q.level, q.divisionID)
		if err != nil {
			return nil, fmt.Errorf("directory search at %s level: %w", q.level, err)
		}

		candidates := e.resolve(ctx, role, q.level, ids)
		if len(candidates) == 0 {
			continue
		}

		e.rank(role, candidates)
		return candidates, nil
	}

	return []Candidate{}, nil
}

// resolve turns ids into candidates, skipping unresolvable records.
func (e *SearchEngine) resolve(ctx context.Context, role Role, level ScopeLevel, ids []string) []Candidate {
	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		p, err := e.people.GetByID(ctx, id)
		if err != nil {
			// Stale index entry. Skip, never fail the whole search.
			e.logger.Debug("skipping unresolvable candidate",
				slog.String("person_id", id),
				slog.String("error", err.Error()))
			continue
		}

		c := Candidate{
			Person:   *p,
			Level:    level,
			Location: e.displayLocation(ctx, p),
		}

		if role == RoleLead {
			workload, err := e.workload.CountAssignedToLead(ctx, id)
			if err != nil {
				e.logger.Warn("workload lookup failed, ranking candidate last",
					slog.String("person_id", id),
					slog.String("error", err.Error()))
				workload = int(^uint(0) >> 1)
			}
			c.Workload = workload
		}

		candidates = append(candidates, c)
	}
	return candidates
}

// rank orders candidates: leads ascending by workload (name as tiebreak),
// everyone else by name.
func (e *SearchEngine) rank(role Role, candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if role == RoleLead && candidates[i].Workload != candidates[j].Workload {
			return candidates[i].Workload < candidates[j].Workload
		}
		return candidates[i].Person.FullName < candidates[j].Person.FullName
	})
}

// displayLocation resolves the most specific division name of the person's
// home location, degrading to "unknown" on any lookup failure.
func (e *SearchEngine) displayLocation(ctx context.Context, p *Person) string {
	if p.MunicipalityID != nil && *p.MunicipalityID != "" {
		return geo.BestEffortName(ctx, e.lookup, geo.KindMunicipality, *p.MunicipalityID)
	}
	if p.DepartmentID != nil && *p.DepartmentID != "" {
		return geo.BestEffortName(ctx, e.lookup, geo.KindDepartment, *p.DepartmentID)
	}
	if p.RegionID != nil && *p.RegionID != "" {
		return geo.BestEffortName(ctx, e.lookup, geo.KindRegion, *p.RegionID)
	}
	return geo.UnknownName
}
