package site

import (
	"context"
	"log/slog"

	"github.com/openforest/fieldcoord/internal/fault"
	"github.com/openforest/fieldcoord/internal/validate"
)

// Site code length bounds.
const (
	minCodeLen = 3
	maxCodeLen = 32
)

// Service owns site creation and review. Assignment and execution-phase
// state changes belong to the assignment coordinator and the brigade
// lifecycle engine; this service only covers the review window.
type Service struct {
	sites  Repository
	logger *slog.Logger
}

// NewService creates a site service.
func NewService(sites Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sites: sites, logger: logger}
}

// Create registers a new sampling site in review, generating its five
// sub-plots at the fixed cardinal offsets.
func (v *Service) Create(ctx context.Context, code string, lat, lng float64) (*SamplingSite, error) {
	code, err := validate.Text(code, minCodeLen, maxCodeLen)
	if err != nil {
		return nil, fault.Validation("site code: %v", err)
	}
	if err := validate.Coordinates(lat, lng); err != nil {
		return nil, fault.Validation("site center: %v", err)
	}

	s := NewSite(code, lat, lng)
	if err := v.sites.Insert(ctx, s); err != nil {
		if err == ErrDuplicateCode {
			return nil, fault.Validation("site code %q already exists", code)
		}
		return nil, err
	}

	v.logger.Info("site created",
		slog.String("site_id", s.ID),
		slog.String("code", s.Code))
	return s, nil
}

// Get returns the site with its sub-plots.
func (v *Service) Get(ctx context.Context, siteID string) (*SamplingSite, error) {
	s, err := v.sites.GetByID(ctx, siteID)
	if err != nil {
		if err == ErrSiteNotFound {
			return nil, fault.NotFound("sampling site %s not found", siteID)
		}
		return nil, err
	}
	return s, nil
}

// Review closes the review window: approval requires the full administrative
// scope and moves the site to ready_for_assignment; rejection requires no
// scope and is terminal for the workflow.
func (v *Service) Review(ctx context.Context, siteID string, approve bool, scope AdminScope) (*SamplingSite, error) {
	s, err := v.Get(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if s.State != StateInReview {
		return nil, fault.InvalidState("site %s is %s; only sites in review can be reviewed", siteID, s.State)
	}

	if approve {
		if !scope.Complete() {
			return nil, fault.Validation("approval requires region, department and municipality")
		}
		s.Scope = scope
		s.State = StateReadyForAssignment
	} else {
		s.State = StateRejected
	}

	if err := v.sites.Update(ctx, s); err != nil {
		return nil, err
	}

	v.logger.Info("site reviewed",
		slog.String("site_id", siteID),
		slog.Bool("approved", approve))
	return s, nil
}
