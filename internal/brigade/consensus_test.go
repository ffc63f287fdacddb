package brigade

import (
	"testing"

	"github.com/openforest/fieldcoord/internal/directory"
)

func member(role directory.Role, inv *InvitationState) Membership {
	return Membership{PersonID: "p-" + string(role), Role: role, Invitation: inv}
}

func invState(s InvitationState) *InvitationState {
	return &s
}

func TestComputeConsensus(t *testing.T) {
	accepted := invState(InvitationAccepted)
	pending := invState(InvitationPending)
	rejected := invState(InvitationRejected)

	tests := []struct {
		name        string
		memberships []Membership
		want        Consensus
	}{
		{
			name:        "lead only",
			memberships: []Membership{member(directory.RoleLead, accepted)},
			want:        Consensus{PendingCount: 0, AllAccepted: true, AnyRejected: false},
		},
		{
			name: "all accepted",
			memberships: []Membership{
				member(directory.RoleLead, accepted),
				member(directory.RoleBotanist, accepted),
				member(directory.RoleTechnician, accepted),
			},
			want: Consensus{PendingCount: 0, AllAccepted: true, AnyRejected: false},
		},
		{
			name: "one pending",
			memberships: []Membership{
				member(directory.RoleLead, accepted),
				member(directory.RoleBotanist, accepted),
				member(directory.RoleTechnician, pending),
			},
			want: Consensus{PendingCount: 1, AllAccepted: false, AnyRejected: false},
		},
		{
			name: "one rejected",
			memberships: []Membership{
				member(directory.RoleLead, accepted),
				member(directory.RoleBotanist, accepted),
				member(directory.RoleTechnician, rejected),
			},
			want: Consensus{PendingCount: 0, AllAccepted: false, AnyRejected: true},
		},
		{
			name: "invitations not yet sent",
			memberships: []Membership{
				member(directory.RoleLead, accepted),
				member(directory.RoleBotanist, nil),
			},
			want: Consensus{PendingCount: 0, AllAccepted: false, AnyRejected: false},
		},
		{
			name: "lead rejection state is ignored",
			memberships: []Membership{
				// Not reachable in the modeled flow, but the lead must be
				// excluded from consensus regardless.
				member(directory.RoleLead, rejected),
				member(directory.RoleBotanist, accepted),
			},
			want: Consensus{PendingCount: 0, AllAccepted: true, AnyRejected: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeConsensus(tt.memberships)
			if got != tt.want {
				t.Errorf("ComputeConsensus() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
