// Package plot records field-truth outcomes for the sub-plots of a sampling
// site. Outcomes gate expedition completion reporting: a site is field-complete
// once all five sub-plots carry an outcome, and the pending count is surfaced
// until then.
package plot

import (
	"context"
	"log/slog"

	"github.com/openforest/fieldcoord/internal/brigade"
	"github.com/openforest/fieldcoord/internal/fault"
	"github.com/openforest/fieldcoord/internal/site"
	"github.com/openforest/fieldcoord/internal/validate"
)

// Outcome is the payload for recording a sub-plot's field outcome. The
// required fields depend on the branch: an established plot carries its
// measured position and GPS error, a non-established plot carries a reason
// from the fixed enumeration.
type Outcome struct {
	Established bool                         `json:"established"`
	Latitude    *float64                     `json:"latitude,omitempty"`
	Longitude   *float64                     `json:"longitude,omitempty"`
	GPSErrorM   *float64                     `json:"gps_error_m,omitempty"`
	ReasonCode  *site.NonEstablishmentReason `json:"reason_code,omitempty"`
	Notes       string                       `json:"notes,omitempty"`
}

// Result is a recorded outcome plus site-level completion progress.
type Result struct {
	SubPlot *site.SubPlot `json:"sub_plot"`
	// PendingOutcomes counts the site's sub-plots still without an outcome.
	PendingOutcomes int `json:"pending_outcomes"`
}

// LifecycleLocks serializes outcome writes against brigade lifecycle
// transitions. The brigade engine satisfies it.
type LifecycleLocks interface {
	LockBrigade(brigadeID string) func()
}

// Tracker records sub-plot outcomes while the owning brigade is in execution.
type Tracker struct {
	sites    site.Repository
	brigades brigade.Repository
	locks    LifecycleLocks
	logger   *slog.Logger
}

// NewTracker creates an establishment tracker. locks must be the engine
// driving the owning brigades, so an outcome write and a transition out of
// execution cannot interleave.
func NewTracker(sites site.Repository, brigades brigade.Repository, locks LifecycleLocks, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{sites: sites, brigades: brigades, locks: locks, logger: logger}
}

// RecordOutcome writes a sub-plot's field outcome. The parent site's brigade
// must be in execution, and the payload must carry the fields its branch
// requires. Recording over an existing outcome overwrites it; field crews
// correct readings while still on site.
func (t *Tracker) RecordOutcome(ctx context.Context, actor brigade.Actor, subPlotID string, outcome Outcome) (*Result, error) {
	s, err := t.sites.GetBySubPlotID(ctx, subPlotID)
	if err != nil {
		if err == site.ErrSubPlotNotFound || err == site.ErrSiteNotFound {
			return nil, fault.NotFound("sub-plot %s not found", subPlotID)
		}
		return nil, err
	}

	b, err := t.brigades.GetBySiteID(ctx, s.ID)
	if err != nil {
		if err == brigade.ErrBrigadeNotFound {
			return nil, fault.InvalidState("site %s has no brigade; outcomes can only be recorded in execution", s.ID)
		}
		return nil, err
	}

	// Hold the brigade's lifecycle lock for the state check and the site
	// write, so a concurrent transition to completed cannot close the site
	// between the two. Both records are re-read under the lock.
	defer t.locks.LockBrigade(b.ID)()

	b, err = t.brigades.GetByID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	s, err = t.sites.GetBySubPlotID(ctx, subPlotID)
	if err != nil {
		return nil, err
	}
	if b.State != brigade.StateInExecution {
		return nil, fault.InvalidState("brigade %s is %s; outcomes can only be recorded in execution", b.ID, b.State)
	}
	if b.Member(actor.PersonID) == nil {
		return nil, fault.Forbidden("person %s is not a member of brigade %s", actor.PersonID, b.ID)
	}

	var target *site.SubPlot
	for i := range s.SubPlots {
		if s.SubPlots[i].ID == subPlotID {
			target = &s.SubPlots[i]
			break
		}
	}
	if target == nil {
		return nil, fault.NotFound("sub-plot %s not found", subPlotID)
	}

	if err := applyOutcome(target, outcome); err != nil {
		return nil, err
	}

	if err := t.sites.Update(ctx, s); err != nil {
		return nil, err
	}

	pending := s.PendingOutcomes()
	t.logger.Info("sub-plot outcome recorded",
		slog.String("site_id", s.ID),
		slog.String("sub_plot_id", subPlotID),
		slog.Int("ordinal", target.Ordinal),
		slog.Bool("established", outcome.Established),
		slog.Int("pending_outcomes", pending))

	cp := *target
	return &Result{SubPlot: &cp, PendingOutcomes: pending}, nil
}

// applyOutcome validates the branch fields and writes them to the sub-plot.
func applyOutcome(p *site.SubPlot, o Outcome) error {
	established := o.Established
	if established {
		if o.Latitude == nil || o.Longitude == nil {
			return fault.Validation("established coordinates are required")
		}
		if err := validate.Coordinates(*o.Latitude, *o.Longitude); err != nil {
			return fault.Validation("established coordinates: %v", err)
		}
		if o.GPSErrorM == nil {
			return fault.Validation("GPS error margin is required")
		}
		if err := validate.GPSError(*o.GPSErrorM); err != nil {
			return fault.Validation("GPS error margin: %v", err)
		}

		p.Established = &established
		p.EstablishedLat = o.Latitude
		p.EstablishedLng = o.Longitude
		p.GPSErrorMeters = o.GPSErrorM
		p.ReasonCode = nil
	} else {
		if o.ReasonCode == nil {
			return fault.Validation("a non-establishment reason code is required")
		}
		if !site.ValidReason(*o.ReasonCode) {
			return fault.Validation("unknown reason code %q", *o.ReasonCode)
		}

		p.Established = &established
		p.ReasonCode = o.ReasonCode
		p.EstablishedLat = nil
		p.EstablishedLng = nil
		p.GPSErrorMeters = nil
	}
	if o.Notes != "" {
		p.Notes = o.Notes
	}
	return nil
}

// Progress reports the pending-outcome count for a site.
func (t *Tracker) Progress(ctx context.Context, siteID string) (int, error) {
	s, err := t.sites.GetByID(ctx, siteID)
	if err != nil {
		if err == site.ErrSiteNotFound {
			return 0, fault.NotFound("sampling site %s not found", siteID)
		}
		return 0, err
	}
	return s.PendingOutcomes(), nil
}
