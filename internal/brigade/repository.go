package brigade

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors for brigade operations.
var (
	ErrBrigadeNotFound = errors.New("brigade not found")
	ErrSiteTaken       = errors.New("site already has a brigade")
)

// Repository defines brigade data operations. Reads return deep copies so
// callers always see a consistent snapshot; a brigade is never observed
// mid-mutation.
type Repository interface {
	// Insert stores a new brigade, assigning its id.
	Insert(ctx context.Context, b *Brigade) error

	// GetByID retrieves a brigade with memberships and routes.
	GetByID(ctx context.Context, id string) (*Brigade, error)

	// GetBySiteID retrieves the brigade bound to a site.
	GetBySiteID(ctx context.Context, siteID string) (*Brigade, error)

	// Update persists the brigade, its memberships and routes.
	Update(ctx context.Context, b *Brigade) error

	// Delete removes a brigade. Used only to compensate a failed
	// assignment; lifecycle states never delete.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu       sync.RWMutex
	brigades map[string]*Brigade // brigade ID -> brigade
	bySite   map[string]string   // site ID -> brigade ID
}

// NewInMemoryRepository creates a new in-memory brigade repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		brigades: make(map[string]*Brigade),
		bySite:   make(map[string]string),
	}
}

// Insert stores a new brigade, assigning its id.
func (r *InMemoryRepository) Insert(_ context.Context, b *Brigade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.bySite[b.SiteID]; taken {
		return ErrSiteTaken
	}

	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	for i := range b.Memberships {
		b.Memberships[i].BrigadeID = b.ID
	}

	r.brigades[b.ID] = b.Clone()
	r.bySite[b.SiteID] = b.ID
	return nil
}

// GetByID retrieves a brigade with memberships and routes.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Brigade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.brigades[id]
	if !ok {
		return nil, ErrBrigadeNotFound
	}
	return b.Clone(), nil
}

// GetBySiteID retrieves the brigade bound to a site.
func (r *InMemoryRepository) GetBySiteID(_ context.Context, siteID string) (*Brigade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySite[siteID]
	if !ok {
		return nil, ErrBrigadeNotFound
	}
	return r.brigades[id].Clone(), nil
}

// Update persists the brigade, its memberships and routes.
func (r *InMemoryRepository) Update(_ context.Context, b *Brigade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.brigades[b.ID]
	if !ok {
		return ErrBrigadeNotFound
	}

	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	r.brigades[b.ID] = b.Clone()
	return nil
}

// Delete removes a brigade.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.brigades[id]
	if !ok {
		return ErrBrigadeNotFound
	}
	delete(r.bySite, b.SiteID)
	delete(r.brigades, id)
	return nil
}
