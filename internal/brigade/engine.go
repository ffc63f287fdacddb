package brigade

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openforest/fieldcoord/internal/directory"
	"github.com/openforest/fieldcoord/internal/fault"
	"github.com/openforest/fieldcoord/internal/site"
	"github.com/openforest/fieldcoord/internal/validate"
)

// Actor identifies the person performing a lifecycle operation. Identity is
// always passed explicitly; the engine reads no ambient session state.
type Actor struct {
	PersonID string
}

// Engine owns the brigade lifecycle state machine. Every mutating operation
// on a single brigade is serialized through a per-brigade lock, so e.g. a
// membership removal and an invitation response cannot race. Reads go
// through the repository, which returns consistent snapshots.
type Engine struct {
	brigades Repository
	sites    site.Repository
	metrics  *Metrics
	logger   *slog.Logger

	locks sync.Map // brigade ID -> *sync.Mutex
}

// NewEngine creates a lifecycle engine. metrics may be nil.
func NewEngine(brigades Repository, sites site.Repository, metrics *Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		brigades: brigades,
		sites:    sites,
		metrics:  metrics,
		logger:   logger,
	}
}

// lock acquires the per-brigade mutex and returns its unlock function.
func (e *Engine) lock(brigadeID string) func() {
	v, _ := e.locks.LoadOrStore(brigadeID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// LockBrigade acquires the brigade's lifecycle mutex and returns the unlock
// function. Writes that are guarded by brigade state but live outside this
// package (sub-plot outcome recording) take it to order themselves against
// transitions.
func (e *Engine) LockBrigade(brigadeID string) func() {
	return e.lock(brigadeID)
}

// dropLock evicts a brigade's mutex once it reaches a terminal state.
// Terminal states never leave, and every operation re-checks state under its
// lock, so a mutex recreated for the same id cannot admit a conflicting
// write. Without eviction the map grows one entry per brigade forever.
func (e *Engine) dropLock(brigadeID string) {
	e.locks.Delete(brigadeID)
}

// load fetches the brigade or a not-found fault.
func (e *Engine) load(ctx context.Context, brigadeID string) (*Brigade, error) {
	b, err := e.brigades.GetByID(ctx, brigadeID)
	if err != nil {
		if err == ErrBrigadeNotFound {
			return nil, fault.NotFound("brigade %s not found", brigadeID)
		}
		return nil, err
	}
	return b, nil
}

// requireLead confirms the actor is the brigade's lead.
func requireLead(b *Brigade, actor Actor) error {
	lead := b.Lead()
	if lead == nil || lead.PersonID != actor.PersonID {
		return fault.Forbidden("person %s is not the lead of brigade %s", actor.PersonID, b.ID)
	}
	return nil
}

// AddMember adds a person to the brigade. Only the lead may edit
// membership, only in formation, and only before invitations are sent.
func (e *Engine) AddMember(ctx context.Context, actor Actor, brigadeID, personID string, role directory.Role) (*Brigade, error) {
	defer e.lock(brigadeID)()

	b, err := e.load(ctx, brigadeID)
	if err != nil {
		return nil, err
	}
	if err := requireLead(b, actor); err != nil {
		return nil, err
	}
	if err := membershipEditable(b); err != nil {
		return nil, err
	}

	if !directory.ValidRole(role) {
		return nil, fault.Validation("unknown role %q", role)
	}
	if role == directory.RoleLead {
		// Exactly one lead, set at creation.
		return nil, fault.Validation("brigade already has a lead; the lead is set at creation")
	}
	if b.Member(personID) != nil {
		return nil, fault.Validation("person %s is already a member of brigade %s", personID, brigadeID)
	}

	b.Memberships = append(b.Memberships, Membership{
		BrigadeID: brigadeID,
		PersonID:  personID,
		Role:      role,
	})
	if err := e.brigades.Update(ctx, b); err != nil {
		return nil, err
	}

	e.logger.Info("member added",
		slog.String("brigade_id", brigadeID),
		slog.String("person_id", personID),
		slog.String("role", string(role)))
	return b, nil
}

// RemoveMember removes a non-lead member before invitations are sent.
func (e *Engine) RemoveMember(ctx context.Context, actor Actor, brigadeID, personID string) (*Brigade, error) {
	defer e.lock(brigadeID)()

	b, err := e.load(ctx, brigadeID)
	if err != nil {
		return nil, err
	}
	if err := requireLead(b, actor); err != nil {
		return nil, err
	}
	if err := membershipEditable(b); err != nil {
		return nil, err
	}

	m := b.Member(personID)
	if m == nil {
		return nil, fault.NotFound("person %s is not a member of brigade %s", personID, brigadeID)
	}
	if m.Role == directory.RoleLead {
		return nil, fault.Validation("the lead cannot be removed from a brigade")
	}

	kept := b.Memberships[:0]
	for i := range b.Memberships {
		if b.Memberships[i].PersonID != personID {
			kept = append(kept, b.Memberships[i])
		}
	}
	b.Memberships = kept

	if err := e.brigades.Update(ctx, b); err != nil {
		return nil, err
	}

	e.logger.Info("member removed",
		slog.String("brigade_id", brigadeID),
		slog.String("person_id", personID))
	return b, nil
}

// membershipEditable checks the membership-edit window: formation state,
// invitations not yet sent. Once sent, membership is locked for the life of
// the brigade.
func membershipEditable(b *Brigade) error {
	if b.State != StateFormation {
		return fault.InvalidState("membership can only change in formation; brigade %s is %s", b.ID, b.State)
	}
	if b.InvitationsSent {
		return fault.InvalidState("membership is locked once invitations are sent")
	}
	return nil
}

// SendInvitations moves every non-lead membership to pending and locks
// membership edits. Requires the full required-role set. A second send
// attempt fails with an invalid-state fault.
func (e *Engine) SendInvitations(ctx context.Context, actor Actor, brigadeID string) (*Brigade, error) {
	defer e.lock(brigadeID)()

	b, err := e.load(ctx, brigadeID)
	if err != nil {
		return nil, err
	}
	if err := requireLead(b, actor); err != nil {
		return nil, err
	}
	if b.State != StateFormation {
		return nil, fault.InvalidState("invitations can only be sent in formation; brigade %s is %s", b.ID, b.State)
	}
	if b.InvitationsSent {
		return nil, fault.InvalidState("invitations already sent for brigade %s", brigadeID)
	}
	if missing := b.MissingRoles(); len(missing) > 0 {
		e.metrics.RecordGuardFailure("incomplete_roles")
		return nil, fault.Precondition("incomplete roles: missing %s", joinRoles(missing))
	}

	pending := InvitationPending
	for i := range b.Memberships {
		m := &b.Memberships[i]
		if m.Role == directory.RoleLead {
			continue
		}
		state := pending
		m.Invitation = &state
	}
	b.InvitationsSent = true

	if err := e.brigades.Update(ctx, b); err != nil {
		return nil, err
	}

	e.logger.Info("invitations sent",
		slog.String("brigade_id", brigadeID),
		slog.Int("members", len(b.Memberships)-1))
	return b, nil
}

// Respond records a member's accept or reject of a pending invitation.
// Only the invited person can respond, and only once.
func (e *Engine) Respond(ctx context.Context, actor Actor, brigadeID string, accept bool, reason string) (*Brigade, error) {
	defer e.lock(brigadeID)()

	b, err := e.load(ctx, brigadeID)
	if err != nil {
		return nil, err
	}

	m := b.Member(actor.PersonID)
	if m == nil {
		return nil, fault.NotFound("person %s is not a member of brigade %s", actor.PersonID, brigadeID)
	}
	if m.Invitation == nil || *m.Invitation != InvitationPending {
		return nil, fault.InvalidState("invitation for person %s is not pending", actor.PersonID)
	}

	now := time.Now().UTC()
	if accept {
		state := InvitationAccepted
		m.Invitation = &state
		m.RespondedAt = &now
	} else {
		cleaned, err := validate.RejectionReason(reason)
		if err != nil {
			return nil, fault.Validation("rejection reason must be at least %d characters", validate.MinRejectionReasonLen)
		}
		state := InvitationRejected
		m.Invitation = &state
		m.RespondedAt = &now
		m.RejectionReason = cleaned
	}

	if err := e.brigades.Update(ctx, b); err != nil {
		return nil, err
	}

	e.metrics.RecordResponse(*m.Invitation)
	e.logger.Info("invitation response recorded",
		slog.String("brigade_id", brigadeID),
		slog.String("person_id", actor.PersonID),
		slog.String("outcome", string(*m.Invitation)))
	return b, nil
}

// SetFieldDates records the planned field start and end. Dates are settable
// only in formation.
func (e *Engine) SetFieldDates(ctx context.Context, actor Actor, brigadeID string, start, end time.Time) (*Brigade, error) {
	defer e.lock(brigadeID)()

	b, err := e.load(ctx, brigadeID)
	if err != nil {
		return nil, err
	}
	if err := requireLead(b, actor); err != nil {
		return nil, err
	}
	if b.State != StateFormation {
		return nil, fault.InvalidState("field dates can only be set in formation; brigade %s is %s", b.ID, b.State)
	}
	if start.IsZero() {
		return nil, fault.Validation("field start date is required")
	}
	if !end.IsZero() && !end.After(start) {
		return nil, fault.Validation("field end date must be after the start date")
	}

	b.FieldStart = &start
	if end.IsZero() {
		b.FieldEnd = nil
	} else {
		b.FieldEnd = &end
	}

	if err := e.brigades.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SaveRoutePoints appends reference points to a route, creating the route
// record on first save. Previously saved points are never overwritten.
// Routes can be recorded in formation and in transit.
func (e *Engine) SaveRoutePoints(ctx context.Context, actor Actor, brigadeID string, kind RouteKind, transportMode string, accessTimeMinutes int, distanceKm float64, points []ReferencePoint) (*Brigade, error) {
	defer e.lock(brigadeID)()

	b, err := e.load(ctx, brigadeID)
	if err != nil {
		return nil, err
	}
	if err := requireLead(b, actor); err != nil {
		return nil, err
	}
	if b.State != StateFormation && b.State != StateInTransit {
		return nil, fault.InvalidState("routes can only be recorded in formation or in transit; brigade %s is %s", b.ID, b.State)
	}
	if !ValidRouteKind(kind) {
		return nil, fault.Validation("unknown route kind %q", kind)
	}
	if len(points) == 0 {
		return nil, fault.Validation("at least one reference point is required")
	}
	for _, p := range points {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fault.Validation("reference point name is required")
		}
		if err := validate.Coordinates(p.Latitude, p.Longitude); err != nil {
			return nil, fault.Validation("reference point %q: %v", p.Name, err)
		}
		if err := validate.GPSError(p.GPSErrorMeters); err != nil {
			return nil, fault.Validation("reference point %q: %v", p.Name, err)
		}
	}

	route := b.Route(kind)
	if route == nil {
		b.Routes = append(b.Routes, AccessRoute{BrigadeID: brigadeID, Kind: kind})
		route = &b.Routes[len(b.Routes)-1]
	}
	if transportMode != "" {
		route.TransportMode = transportMode
	}
	if accessTimeMinutes > 0 {
		route.AccessTimeMinutes = accessTimeMinutes
	}
	if distanceKm > 0 {
		route.DistanceKm = distanceKm
	}
	route.Points = append(route.Points, points...)

	if err := e.brigades.Update(ctx, b); err != nil {
		return nil, err
	}

	e.logger.Info("route points saved",
		slog.String("brigade_id", brigadeID),
		slog.String("kind", string(kind)),
		slog.Int("points", len(route.Points)))
	return b, nil
}

// Transition advances the brigade to the next lifecycle state, enforcing
// the guard for each edge. Guard violations fail with a precondition fault
// naming the unmet condition; transitions from the wrong state fail with an
// invalid-state fault.
func (e *Engine) Transition(ctx context.Context, actor Actor, brigadeID string, to State) (*Brigade, error) {
	defer e.lock(brigadeID)()

	b, err := e.load(ctx, brigadeID)
	if err != nil {
		return nil, err
	}
	if err := requireLead(b, actor); err != nil {
		return nil, err
	}

	switch to {
	case StateInTransit:
		if b.State != StateFormation {
			return nil, fault.InvalidState("cannot enter in_transit from %s", b.State)
		}
		if err := e.guardTransit(b); err != nil {
			return nil, err
		}
	case StateInExecution:
		if b.State != StateInTransit {
			return nil, fault.InvalidState("cannot enter in_execution from %s", b.State)
		}
		if incomplete := b.IncompleteRoutes(); len(incomplete) > 0 {
			e.metrics.RecordGuardFailure("routes_incomplete")
			return nil, fault.Precondition("routes incomplete: %s", strings.Join(incomplete, "; "))
		}
	case StateCompleted:
		if b.State != StateInExecution {
			return nil, fault.InvalidState("cannot complete from %s", b.State)
		}
	default:
		return nil, fault.Validation("unknown target state %q", to)
	}

	from := b.State
	if err := e.applyTransition(ctx, b, to); err != nil {
		return nil, err
	}

	if to.Terminal() {
		e.dropLock(brigadeID)
	}

	e.metrics.RecordTransition(from, to)
	e.logger.Info("brigade transitioned",
		slog.String("brigade_id", brigadeID),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	return b, nil
}

// guardTransit checks the formation → in_transit guards: full role set,
// invitations resolved unanimously, start date present.
func (e *Engine) guardTransit(b *Brigade) error {
	if missing := b.MissingRoles(); len(missing) > 0 {
		e.metrics.RecordGuardFailure("incomplete_roles")
		return fault.Precondition("incomplete roles: missing %s", joinRoles(missing))
	}
	if !b.InvitationsSent {
		e.metrics.RecordGuardFailure("invitations_not_sent")
		return fault.Precondition("invitations not sent")
	}

	c := ComputeConsensus(b.Memberships)
	if !c.AllAccepted {
		if c.PendingCount > 0 {
			e.metrics.RecordGuardFailure("pending_responses")
			return fault.Precondition("pending responses outstanding: %d member(s) have not responded", c.PendingCount)
		}
		e.metrics.RecordGuardFailure("rejected_invitations")
		return fault.Precondition("invitation rejections present; team is not confirmed")
	}

	if b.FieldStart == nil {
		e.metrics.RecordGuardFailure("start_date_missing")
		return fault.Precondition("field start date not set")
	}
	return nil
}

// applyTransition writes the site side effect and the brigade state. The
// previous site state is restored if the brigade write fails, so a
// transition never applies partially.
func (e *Engine) applyTransition(ctx context.Context, b *Brigade, to State) error {
	var prevSite *site.SamplingSite
	switch to {
	case StateInExecution:
		s, err := e.updateSiteState(ctx, b.SiteID, func(s *site.SamplingSite) {
			s.State = site.StateInExecution
		})
		if err != nil {
			return err
		}
		prevSite = s
	case StateCompleted:
		s, err := e.updateSiteState(ctx, b.SiteID, func(s *site.SamplingSite) {
			if s.AnyNotEstablished() {
				s.State = site.StateNotEstablished
			} else {
				s.State = site.StateFieldComplete
			}
		})
		if err != nil {
			return err
		}
		prevSite = s
	}

	b.State = to
	if err := e.brigades.Update(ctx, b); err != nil {
		if prevSite != nil {
			if revertErr := e.sites.Update(ctx, prevSite); revertErr != nil {
				e.logger.Error("failed to revert site state after brigade update failure",
					slog.String("site_id", prevSite.ID),
					slog.String("error", revertErr.Error()))
			}
		}
		return err
	}
	return nil
}

// updateSiteState mutates the site and returns its previous snapshot.
func (e *Engine) updateSiteState(ctx context.Context, siteID string, mutate func(*site.SamplingSite)) (*site.SamplingSite, error) {
	s, err := e.sites.GetByID(ctx, siteID)
	if err != nil {
		if err == site.ErrSiteNotFound {
			return nil, fault.NotFound("sampling site %s not found", siteID)
		}
		return nil, err
	}
	prev := s.Clone()
	mutate(s)
	if err := e.sites.Update(ctx, s); err != nil {
		return nil, err
	}
	return prev, nil
}

// Cancel moves the brigade to the terminal cancelled state from any
// non-terminal state and reverts the site to ready_for_assignment.
func (e *Engine) Cancel(ctx context.Context, actor Actor, brigadeID string) (*Brigade, error) {
	defer e.lock(brigadeID)()

	b, err := e.load(ctx, brigadeID)
	if err != nil {
		return nil, err
	}
	if err := requireLead(b, actor); err != nil {
		return nil, err
	}
	if b.State.Terminal() {
		return nil, fault.InvalidState("brigade %s is already %s", brigadeID, b.State)
	}

	prevSite, err := e.updateSiteState(ctx, b.SiteID, func(s *site.SamplingSite) {
		s.State = site.StateReadyForAssignment
		s.AssignedAt = nil
		s.AssignedLeadID = nil
	})
	if err != nil {
		return nil, err
	}

	from := b.State
	b.State = StateCancelled
	if err := e.brigades.Update(ctx, b); err != nil {
		if revertErr := e.sites.Update(ctx, prevSite); revertErr != nil {
			e.logger.Error("failed to revert site state after cancel failure",
				slog.String("site_id", prevSite.ID),
				slog.String("error", revertErr.Error()))
		}
		return nil, err
	}

	e.dropLock(brigadeID)

	e.metrics.RecordTransition(from, StateCancelled)
	e.logger.Info("brigade cancelled",
		slog.String("brigade_id", brigadeID),
		slog.String("from", string(from)))
	return b, nil
}

// Get returns a brigade by id, as a fault.NotFound when absent.
func (e *Engine) Get(ctx context.Context, brigadeID string) (*Brigade, error) {
	return e.load(ctx, brigadeID)
}

// ConsensusFor returns the derived consensus view for a brigade.
func (e *Engine) ConsensusFor(ctx context.Context, brigadeID string) (Consensus, error) {
	b, err := e.load(ctx, brigadeID)
	if err != nil {
		return Consensus{}, err
	}
	return ComputeConsensus(b.Memberships), nil
}

func joinRoles(roles []directory.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
