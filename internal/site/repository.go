package site

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors for site operations.
var (
	ErrSiteNotFound    = errors.New("sampling site not found")
	ErrSubPlotNotFound = errors.New("sub-plot not found")
	ErrDuplicateCode   = errors.New("site code already exists")
)

// Repository defines data operations for sampling sites and their sub-plots.
// Reads return deep copies so callers always see a consistent snapshot.
type Repository interface {
	// Insert stores a new site, assigning ids to the site and its sub-plots.
	Insert(ctx context.Context, s *SamplingSite) error

	// GetByID retrieves a site with its sub-plots.
	GetByID(ctx context.Context, id string) (*SamplingSite, error)

	// GetBySubPlotID retrieves the site owning the given sub-plot.
	GetBySubPlotID(ctx context.Context, subPlotID string) (*SamplingSite, error)

	// Update persists the site and its sub-plots.
	Update(ctx context.Context, s *SamplingSite) error

	// CountAssignedToLead returns the number of sites currently assigned to
	// the person as lead (states assigned or in_execution). Used as the
	// workload measure when ranking lead candidates.
	CountAssignedToLead(ctx context.Context, personID string) (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu       sync.RWMutex
	sites    map[string]*SamplingSite // site ID -> site
	codes    map[string]string        // code -> site ID
	subPlots map[string]string        // sub-plot ID -> site ID
}

// NewInMemoryRepository creates a new in-memory site repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sites:    make(map[string]*SamplingSite),
		codes:    make(map[string]string),
		subPlots: make(map[string]string),
	}
}

// Insert stores a new site, assigning ids to the site and its sub-plots.
func (r *InMemoryRepository) Insert(_ context.Context, s *SamplingSite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.codes[s.Code]; exists {
		return ErrDuplicateCode
	}

	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	for i := range s.SubPlots {
		p := &s.SubPlots[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.SiteID = s.ID
	}

	stored := s.Clone()
	r.sites[s.ID] = stored
	r.codes[s.Code] = s.ID
	for i := range stored.SubPlots {
		r.subPlots[stored.SubPlots[i].ID] = s.ID
	}
	return nil
}

// GetByID retrieves a site with its sub-plots.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*SamplingSite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sites[id]
	if !ok {
		return nil, ErrSiteNotFound
	}
	return s.Clone(), nil
}

// GetBySubPlotID retrieves the site owning the given sub-plot.
func (r *InMemoryRepository) GetBySubPlotID(_ context.Context, subPlotID string) (*SamplingSite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	siteID, ok := r.subPlots[subPlotID]
	if !ok {
		return nil, ErrSubPlotNotFound
	}
	return r.sites[siteID].Clone(), nil
}

// Update persists the site and its sub-plots.
func (r *InMemoryRepository) Update(_ context.Context, s *SamplingSite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.sites[s.ID]
	if !ok {
		return ErrSiteNotFound
	}

	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	r.sites[s.ID] = s.Clone()
	return nil
}

// CountAssignedToLead returns the number of sites currently assigned to the
// person as lead.
func (r *InMemoryRepository) CountAssignedToLead(_ context.Context, personID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, s := range r.sites {
		if s.AssignedLeadID == nil || *s.AssignedLeadID != personID {
			continue
		}
		if s.State == StateAssigned || s.State == StateInExecution {
			count++
		}
	}
	return count, nil
}
