package brigade

import "github.com/openforest/fieldcoord/internal/directory"

// Consensus is the derived invitation-consensus view over a brigade's
// memberships. It is recomputed on every query and never stored; the lead
// is excluded throughout.
type Consensus struct {
	// PendingCount is the number of non-lead memberships still pending.
	PendingCount int `json:"pending_count"`

	// AllAccepted is true iff every non-lead membership has accepted.
	AllAccepted bool `json:"all_accepted"`

	// AnyRejected is true if at least one non-lead membership rejected.
	AnyRejected bool `json:"any_rejected"`
}

// ComputeConsensus derives the consensus view from a membership list.
// Memberships whose invitations have not been sent yet count against
// AllAccepted but not toward PendingCount.
func ComputeConsensus(memberships []Membership) Consensus {
	c := Consensus{AllAccepted: true}
	for i := range memberships {
		m := &memberships[i]
		if m.Role == directory.RoleLead {
			continue
		}
		switch {
		case m.Invitation == nil:
			c.AllAccepted = false
		case *m.Invitation == InvitationPending:
			c.PendingCount++
			c.AllAccepted = false
		case *m.Invitation == InvitationRejected:
			c.AnyRejected = true
			c.AllAccepted = false
		}
	}
	return c
}
