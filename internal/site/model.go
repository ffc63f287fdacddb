// Package site provides models and repositories for sampling sites
// (conglomerates) and their five fixed-offset sub-plots.
package site

import (
	"math"
	"time"
)

// ReviewState is the lifecycle state of a sampling site.
type ReviewState string

const (
	// StateInReview is the initial state after generation.
	StateInReview ReviewState = "in_review"

	// StateRejected means the site was discarded during review. Rejected
	// sites keep whatever administrative scope they had; none is required.
	StateRejected ReviewState = "rejected"

	// StateReadyForAssignment means review approved the site and its full
	// administrative scope is set.
	StateReadyForAssignment ReviewState = "ready_for_assignment"

	// StateAssigned means a brigade lead has been assigned. Set exclusively
	// through the assignment coordinator.
	StateAssigned ReviewState = "assigned"

	// StateInExecution means the owning brigade is on site.
	StateInExecution ReviewState = "in_execution"

	// StateFieldComplete means field work finished with the site established.
	StateFieldComplete ReviewState = "field_complete"

	// StateNotEstablished means field work finished but the site could not
	// be established.
	StateNotEstablished ReviewState = "not_established"
)

// AdminScope is the administrative location of a site. All three ids are
// nullable until review approves the site.
type AdminScope struct {
	RegionID       *string `json:"region_id,omitempty"`
	DepartmentID   *string `json:"department_id,omitempty"`
	MunicipalityID *string `json:"municipality_id,omitempty"`
}

// Complete reports whether every administrative level is set.
func (s AdminScope) Complete() bool {
	return s.RegionID != nil && *s.RegionID != "" &&
		s.DepartmentID != nil && *s.DepartmentID != "" &&
		s.MunicipalityID != nil && *s.MunicipalityID != ""
}

// NonEstablishmentReason is the fixed reason set for sub-plots that could
// not be established in the field.
type NonEstablishmentReason string

const (
	ReasonAccessDenied   NonEstablishmentReason = "access_denied_by_owner"
	ReasonNaturalHazard  NonEstablishmentReason = "natural_hazard"
	ReasonSecurityHazard NonEstablishmentReason = "security_hazard"
	ReasonOther          NonEstablishmentReason = "other"
)

// ValidReason reports whether r belongs to the fixed reason set.
func ValidReason(r NonEstablishmentReason) bool {
	switch r {
	case ReasonAccessDenied, ReasonNaturalHazard, ReasonSecurityHazard, ReasonOther:
		return true
	}
	return false
}

// SubPlotCount is the fixed number of sub-plots per sampling site.
const SubPlotCount = 5

// SubPlotOffsetMeters is the distance from the site center to each of the
// four cardinal sub-plots.
const SubPlotOffsetMeters = 80.0

// SubPlot is one of the five measurement points of a sampling site. Its
// pre-assigned coordinates are computed at site generation and never change;
// field outcome fields are written only while the owning brigade is in
// execution.
type SubPlot struct {
	ID      string `json:"id"`
	SiteID  string `json:"site_id"`
	Ordinal int    `json:"ordinal"` // 1..5, cardinal direction fixed by ordinal

	// Pre-assigned position, immutable after generation.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Field outcome. Established is nil until a field outcome is recorded.
	Established    *bool                   `json:"established,omitempty"`
	EstablishedLat *float64                `json:"established_lat,omitempty"`
	EstablishedLng *float64                `json:"established_lng,omitempty"`
	GPSErrorMeters *float64                `json:"gps_error_m,omitempty"`
	ReasonCode     *NonEstablishmentReason `json:"reason_code,omitempty"`
	Notes          string                  `json:"notes,omitempty"`
}

// HasOutcome reports whether a field outcome has been recorded.
func (p *SubPlot) HasOutcome() bool {
	return p.Established != nil
}

// CardinalDirection returns the direction name fixed by a sub-plot ordinal.
func CardinalDirection(ordinal int) string {
	switch ordinal {
	case 1:
		return "center"
	case 2:
		return "north"
	case 3:
		return "east"
	case 4:
		return "south"
	case 5:
		return "west"
	}
	return "unknown"
}

// SamplingSite is a fixed geographic unit with five sub-plots, the subject
// of the whole expedition workflow.
type SamplingSite struct {
	ID   string `json:"id"`
	Code string `json:"code"`

	// Center position in decimal degrees.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Scope AdminScope  `json:"scope"`
	State ReviewState `json:"state"`

	AssignedAt     *time.Time `json:"assigned_at,omitempty"`
	AssignedLeadID *string    `json:"assigned_lead_id,omitempty"`

	SubPlots []SubPlot `json:"sub_plots"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// metersPerDegreeLat is the approximate length of one degree of latitude.
const metersPerDegreeLat = 111320.0

// GenerateSubPlots computes the five sub-plot positions for a site center:
// ordinal 1 at the center, ordinals 2-5 at the fixed offset due north, east,
// south and west. IDs are left empty; the repository assigns them on insert.
func GenerateSubPlots(centerLat, centerLng float64) []SubPlot {
	dLat := SubPlotOffsetMeters / metersPerDegreeLat
	// Longitude degrees shrink with latitude.
	dLng := SubPlotOffsetMeters / (metersPerDegreeLat * math.Cos(centerLat*math.Pi/180))

	offsets := [SubPlotCount][2]float64{
		{0, 0},        // center
		{dLat, 0},     // north
		{0, dLng},     // east
		{-dLat, 0},    // south
		{0, -dLng},    // west
	}

	plots := make([]SubPlot, 0, SubPlotCount)
	for i, off := range offsets {
		plots = append(plots, SubPlot{
			Ordinal:   i + 1,
			Latitude:  centerLat + off[0],
			Longitude: centerLng + off[1],
		})
	}
	return plots
}

// NewSite creates a sampling site in review state with its five sub-plots
// generated. The repository assigns ids and timestamps on insert.
func NewSite(code string, lat, lng float64) *SamplingSite {
	return &SamplingSite{
		Code:      code,
		Latitude:  lat,
		Longitude: lng,
		State:     StateInReview,
		SubPlots:  GenerateSubPlots(lat, lng),
	}
}

// PendingOutcomes returns the number of sub-plots without a recorded field
// outcome.
func (s *SamplingSite) PendingOutcomes() int {
	pending := 0
	for i := range s.SubPlots {
		if !s.SubPlots[i].HasOutcome() {
			pending++
		}
	}
	return pending
}

// AnyNotEstablished reports whether any sub-plot outcome was recorded as
// not established.
func (s *SamplingSite) AnyNotEstablished() bool {
	for i := range s.SubPlots {
		p := &s.SubPlots[i]
		if p.Established != nil && !*p.Established {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the site, including sub-plots.
func (s *SamplingSite) Clone() *SamplingSite {
	cp := *s
	cp.SubPlots = make([]SubPlot, len(s.SubPlots))
	copy(cp.SubPlots, s.SubPlots)
	for i := range cp.SubPlots {
		p := &cp.SubPlots[i]
		p.Established = clonePtr(p.Established)
		p.EstablishedLat = clonePtr(p.EstablishedLat)
		p.EstablishedLng = clonePtr(p.EstablishedLng)
		p.GPSErrorMeters = clonePtr(p.GPSErrorMeters)
		p.ReasonCode = clonePtr(p.ReasonCode)
	}
	cp.Scope.RegionID = clonePtr(s.Scope.RegionID)
	cp.Scope.DepartmentID = clonePtr(s.Scope.DepartmentID)
	cp.Scope.MunicipalityID = clonePtr(s.Scope.MunicipalityID)
	cp.AssignedAt = clonePtr(s.AssignedAt)
	cp.AssignedLeadID = clonePtr(s.AssignedLeadID)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
