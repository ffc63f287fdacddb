// Package assignment binds a reviewed sampling site to a brigade lead. The
// bind is written atomically: the site moving to assigned and the new brigade
// with its lead membership either both land or neither does.
package assignment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openforest/fieldcoord/internal/brigade"
	"github.com/openforest/fieldcoord/internal/directory"
	"github.com/openforest/fieldcoord/internal/fault"
	"github.com/openforest/fieldcoord/internal/site"
)

// ErrSiteNotReady is returned by stores when the site left
// ready_for_assignment between the coordinator's check and the commit.
var ErrSiteNotReady = errors.New("site is not ready for assignment")

// Store persists an assignment. Commit must be atomic and must re-check that
// the site is still assignable, so two concurrent assigns of the same site
// cannot both succeed.
type Store interface {
	Site(ctx context.Context, siteID string) (*site.SamplingSite, error)
	Commit(ctx context.Context, s *site.SamplingSite, b *brigade.Brigade) error
}

// Result is the pair of records an assignment produces.
type Result struct {
	Site    *site.SamplingSite `json:"site"`
	Brigade *brigade.Brigade   `json:"brigade"`
}

// Coordinator performs brigade-lead assignment.
type Coordinator struct {
	store  Store
	people directory.Repository
	logger *slog.Logger
}

// NewCoordinator creates an assignment coordinator.
func NewCoordinator(store Store, people directory.Repository, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, people: people, logger: logger}
}

// Assign marks the site assigned to the lead and creates its brigade in
// formation. The site must be in ready_for_assignment and the lead must be an
// approved holder of the lead role.
func (c *Coordinator) Assign(ctx context.Context, actor brigade.Actor, siteID, leadID string) (*Result, error) {
	s, err := c.store.Site(ctx, siteID)
	if err != nil {
		if err == site.ErrSiteNotFound {
			return nil, fault.NotFound("sampling site %s not found", siteID)
		}
		return nil, err
	}
	if s.State != site.StateReadyForAssignment {
		return nil, fault.InvalidState("site %s is %s, not ready for assignment", siteID, s.State)
	}

	lead, err := c.people.GetByID(ctx, leadID)
	if err != nil {
		if err == directory.ErrPersonNotFound {
			return nil, fault.NotFound("no approved lead with id %s", leadID)
		}
		return nil, err
	}
	if lead.Role != directory.RoleLead || !lead.Approved {
		return nil, fault.NotFound("no approved lead with id %s", leadID)
	}

	b := brigade.New(siteID, leadID)
	now := b.Lead().RespondedAt
	s.State = site.StateAssigned
	s.AssignedAt = now
	s.AssignedLeadID = &leadID

	if err := c.store.Commit(ctx, s, b); err != nil {
		switch err {
		case ErrSiteNotReady, brigade.ErrSiteTaken:
			return nil, fault.InvalidState("site %s is no longer ready for assignment", siteID)
		case site.ErrSiteNotFound:
			return nil, fault.NotFound("sampling site %s not found", siteID)
		}
		return nil, err
	}

	c.logger.Info("site assigned",
		slog.String("site_id", siteID),
		slog.String("lead_id", leadID),
		slog.String("brigade_id", b.ID),
		slog.String("actor_id", actor.PersonID))
	return &Result{Site: s, Brigade: b}, nil
}
