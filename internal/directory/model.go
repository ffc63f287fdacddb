// Package directory provides the personnel directory and the candidate
// search engine used to staff brigades: role-filtered lookups over an
// administrative scope, widening one level at a time until candidates are
// found.
package directory

import (
	"context"
	"errors"
	"sync"
)

// Role is an operative role a person can hold on a brigade.
type Role string

const (
	RoleLead         Role = "lead"
	RoleBotanist     Role = "botanist"
	RoleTechnician   Role = "technician"
	RoleCoResearcher Role = "co_researcher"
)

// ValidRole reports whether r is one of the operative roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleLead, RoleBotanist, RoleTechnician, RoleCoResearcher:
		return true
	}
	return false
}

// Person is a directory entry for field personnel.
type Person struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`

	// Role the person is approved to operate as.
	Role     Role `json:"role"`
	Approved bool `json:"approved"`

	// Home administrative location, used for scoped candidate search.
	RegionID       *string `json:"region_id,omitempty"`
	DepartmentID   *string `json:"department_id,omitempty"`
	MunicipalityID *string `json:"municipality_id,omitempty"`
}

// ErrPersonNotFound is returned when a person record cannot be resolved.
var ErrPersonNotFound = errors.New("person not found")

// ScopeLevel is one administrative level of the search cascade.
type ScopeLevel string

const (
	LevelMunicipality ScopeLevel = "municipality"
	LevelDepartment   ScopeLevel = "department"
	LevelRegion       ScopeLevel = "region"
	LevelNationwide   ScopeLevel = "nationwide"
)

// Repository defines directory data operations. Search is two-step: role
// lookups return ids, and each id resolves to a person record separately, so
// stale index entries surface as unresolvable ids rather than errors.
type Repository interface {
	// FindIDsByRole returns ids of approved holders of the role within the
	// given administrative division. divisionID is ignored for
	// LevelNationwide.
	FindIDsByRole(ctx context.Context, role Role, level ScopeLevel, divisionID string) ([]string, error)

	// GetByID resolves a person record.
	GetByID(ctx context.Context, id string) (*Person, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	people  map[string]*Person
	// ghost ids appear in role lookups but resolve to nothing; used to
	// model stale index entries.
	ghosts map[string]Role
}

// NewInMemoryRepository creates a new in-memory directory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		people: make(map[string]*Person),
		ghosts: make(map[string]Role),
	}
}

// Add stores a person record.
func (r *InMemoryRepository) Add(p Person) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.people[p.ID] = &cp
}

// AddGhost registers an id that role lookups return but GetByID cannot
// resolve.
func (r *InMemoryRepository) AddGhost(id string, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ghosts[id] = role
}

// FindIDsByRole returns ids of approved holders of the role within the given
// division.
func (r *InMemoryRepository) FindIDsByRole(_ context.Context, role Role, level ScopeLevel, divisionID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, p := range r.people {
		if p.Role != role || !p.Approved {
			continue
		}
		if !matchesLevel(p, level, divisionID) {
			continue
		}
		ids = append(ids, p.ID)
	}
	for id, ghostRole := range r.ghosts {
		if ghostRole == role {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func matchesLevel(p *Person, level ScopeLevel, divisionID string) bool {
	switch level {
	case LevelMunicipality:
		return p.MunicipalityID != nil && *p.MunicipalityID == divisionID
	case LevelDepartment:
		return p.DepartmentID != nil && *p.DepartmentID == divisionID
	case LevelRegion:
		return p.RegionID != nil && *p.RegionID == divisionID
	case LevelNationwide:
		return true
	}
	return false
}

// GetByID resolves a person record.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.people[id]
	if !ok {
		return nil, ErrPersonNotFound
	}
	cp := *p
	return &cp, nil
}
