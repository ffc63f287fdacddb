// Package brigade provides the field-brigade domain: team composition,
// invitation consensus, access routes and the mission lifecycle state
// machine from formation through completion.
package brigade

import (
	"fmt"
	"time"

	"github.com/openforest/fieldcoord/internal/directory"
)

// State is the lifecycle state of a brigade.
type State string

const (
	StateFormation   State = "formation"
	StateInTransit   State = "in_transit"
	StateInExecution State = "in_execution"
	StateCompleted   State = "completed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// InvitationState is the response state of a membership invitation.
// A membership carries no invitation state until invitations are sent;
// the lead is the exception, implicitly accepted at creation.
type InvitationState string

const (
	InvitationPending  InvitationState = "pending"
	InvitationAccepted InvitationState = "accepted"
	InvitationRejected InvitationState = "rejected"
)

// Membership is one person's place on a brigade.
type Membership struct {
	BrigadeID string         `json:"brigade_id"`
	PersonID  string         `json:"person_id"`
	Role      directory.Role `json:"role"`

	Invitation      *InvitationState `json:"invitation,omitempty"`
	RespondedAt     *time.Time       `json:"responded_at,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
}

// RouteKind identifies one of the two access routes a brigade records.
type RouteKind string

const (
	RouteToCamp RouteKind = "to_camp"
	RouteToSite RouteKind = "to_site"
)

// ValidRouteKind reports whether k is one of the two route kinds.
func ValidRouteKind(k RouteKind) bool {
	return k == RouteToCamp || k == RouteToSite
}

// MinRoutePoints is the number of reference points a route needs to be
// considered complete.
const MinRoutePoints = 4

// ReferencePoint is one waypoint on an access route.
type ReferencePoint struct {
	Name           string  `json:"name"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	GPSErrorMeters float64 `json:"gps_error_m"`
}

// AccessRoute is a recorded path to the camp or to the site. Points are
// append-only: saves add to the existing set, never replace it.
type AccessRoute struct {
	BrigadeID         string           `json:"brigade_id"`
	Kind              RouteKind        `json:"kind"`
	TransportMode     string           `json:"transport_mode,omitempty"`
	AccessTimeMinutes int              `json:"access_time_minutes,omitempty"`
	DistanceKm        float64          `json:"distance_km,omitempty"`
	Points            []ReferencePoint `json:"points"`
}

// Complete reports whether the route has enough reference points.
func (r *AccessRoute) Complete() bool {
	return len(r.Points) >= MinRoutePoints
}

// Brigade is a field team bound to exactly one sampling site for its
// operational lifetime.
type Brigade struct {
	ID     string `json:"id"`
	SiteID string `json:"site_id"`
	State  State  `json:"state"`

	// InvitationsSent is an explicit flag, not inferred from membership
	// invitation states, so an empty or partially populated membership list
	// is never ambiguous.
	InvitationsSent bool `json:"invitations_sent"`

	FieldStart *time.Time `json:"field_start,omitempty"`
	FieldEnd   *time.Time `json:"field_end,omitempty"`

	Memberships []Membership  `json:"memberships"`
	Routes      []AccessRoute `json:"routes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a brigade in formation bound to a site, with a single lead
// membership implicitly accepted.
func New(siteID, leadID string) *Brigade {
	accepted := InvitationAccepted
	now := time.Now().UTC()
	return &Brigade{
		SiteID: siteID,
		State:  StateFormation,
		Memberships: []Membership{{
			PersonID:    leadID,
			Role:        directory.RoleLead,
			Invitation:  &accepted,
			RespondedAt: &now,
		}},
	}
}

// Lead returns the lead membership. A brigade always has exactly one.
func (b *Brigade) Lead() *Membership {
	for i := range b.Memberships {
		if b.Memberships[i].Role == directory.RoleLead {
			return &b.Memberships[i]
		}
	}
	return nil
}

// Member returns the membership for a person, or nil.
func (b *Brigade) Member(personID string) *Membership {
	for i := range b.Memberships {
		if b.Memberships[i].PersonID == personID {
			return &b.Memberships[i]
		}
	}
	return nil
}

// requiredRoles is the minimum role set needed before invitations can go
// out: one lead, one botanist, one technician.
var requiredRoles = []directory.Role{
	directory.RoleLead,
	directory.RoleBotanist,
	directory.RoleTechnician,
}

// MissingRoles returns the required roles with no membership, in a stable
// order.
func (b *Brigade) MissingRoles() []directory.Role {
	var missing []directory.Role
	for _, role := range requiredRoles {
		found := false
		for i := range b.Memberships {
			if b.Memberships[i].Role == role {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, role)
		}
	}
	return missing
}

// Route returns the route of the given kind, or nil if none recorded yet.
func (b *Brigade) Route(kind RouteKind) *AccessRoute {
	for i := range b.Routes {
		if b.Routes[i].Kind == kind {
			return &b.Routes[i]
		}
	}
	return nil
}

// IncompleteRoutes describes route kinds that are missing or short of
// points, for guard messages.
func (b *Brigade) IncompleteRoutes() []string {
	var incomplete []string
	for _, kind := range []RouteKind{RouteToCamp, RouteToSite} {
		r := b.Route(kind)
		if r == nil {
			incomplete = append(incomplete, fmt.Sprintf("%s has no points", kind))
			continue
		}
		if !r.Complete() {
			incomplete = append(incomplete, fmt.Sprintf("%s has %d of %d required points", kind, len(r.Points), MinRoutePoints))
		}
	}
	return incomplete
}

// Clone returns a deep copy of the brigade.
func (b *Brigade) Clone() *Brigade {
	cp := *b
	cp.FieldStart = clonePtr(b.FieldStart)
	cp.FieldEnd = clonePtr(b.FieldEnd)

	cp.Memberships = make([]Membership, len(b.Memberships))
	copy(cp.Memberships, b.Memberships)
	for i := range cp.Memberships {
		m := &cp.Memberships[i]
		m.Invitation = clonePtr(m.Invitation)
		m.RespondedAt = clonePtr(m.RespondedAt)
	}

	cp.Routes = make([]AccessRoute, len(b.Routes))
	copy(cp.Routes, b.Routes)
	for i := range cp.Routes {
		r := &cp.Routes[i]
		points := make([]ReferencePoint, len(r.Points))
		copy(points, r.Points)
		r.Points = points
	}
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
