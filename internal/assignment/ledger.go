package assignment

import (
	"context"
	"log/slog"
	"sync"

	"github.com/openforest/fieldcoord/internal/brigade"
	"github.com/openforest/fieldcoord/internal/site"
)

// Ledger is an in-memory Store. One mutex covers the site update and the
// brigade insert, so a partially applied assignment is never observable and
// concurrent assigns of the same site serialize.
type Ledger struct {
	mu       sync.Mutex
	sites    site.Repository
	brigades brigade.Repository
	logger   *slog.Logger
}

// NewLedger creates a ledger over the given repositories.
func NewLedger(sites site.Repository, brigades brigade.Repository, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{sites: sites, brigades: brigades, logger: logger}
}

// Site returns a snapshot of the site.
func (l *Ledger) Site(ctx context.Context, siteID string) (*site.SamplingSite, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sites.GetByID(ctx, siteID)
}

// Commit writes the assigned site and the new brigade under one lock,
// reverting the site if the brigade insert fails.
func (l *Ledger) Commit(ctx context.Context, s *site.SamplingSite, b *brigade.Brigade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, err := l.sites.GetByID(ctx, s.ID)
	if err != nil {
		return err
	}
	if prev.State != site.StateReadyForAssignment {
		return ErrSiteNotReady
	}

	if err := l.sites.Update(ctx, s); err != nil {
		return err
	}
	if err := l.brigades.Insert(ctx, b); err != nil {
		if revertErr := l.sites.Update(ctx, prev); revertErr != nil {
			l.logger.Error("failed to revert site after brigade insert failure",
				slog.String("site_id", s.ID),
				slog.String("error", revertErr.Error()))
		}
		return err
	}
	return nil
}
