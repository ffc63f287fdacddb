package assignment

import (
	"context"
	"testing"

	"github.com/openforest/fieldcoord/internal/brigade"
	"github.com/openforest/fieldcoord/internal/directory"
	"github.com/openforest/fieldcoord/internal/fault"
	"github.com/openforest/fieldcoord/internal/site"
)

func setup(t *testing.T) (*Coordinator, *site.InMemoryRepository, *brigade.InMemoryRepository, *directory.InMemoryRepository) {
	t.Helper()
	sites := site.NewInMemoryRepository()
	brigades := brigade.NewInMemoryRepository()
	people := directory.NewInMemoryRepository()
	coord := NewCoordinator(NewLedger(sites, brigades, nil), people, nil)
	return coord, sites, brigades, people
}

func readySite(t *testing.T, sites *site.InMemoryRepository, code string) *site.SamplingSite {
	t.Helper()
	s := site.NewSite(code, 4.6, -74.1)
	s.State = site.StateReadyForAssignment
	if err := sites.Insert(context.Background(), s); err != nil {
		t.Fatalf("site insert failed: %v", err)
	}
	return s
}

func approvedLead(people *directory.InMemoryRepository, id string) {
	people.Add(directory.Person{ID: id, FullName: "Lead " + id, Role: directory.RoleLead, Approved: true})
}

func TestAssign(t *testing.T) {
	coord, sites, brigades, people := setup(t)
	ctx := context.Background()
	s := readySite(t, sites, "SITE-1")
	approvedLead(people, "lead-1")

	res, err := coord.Assign(ctx, brigade.Actor{PersonID: "admin"}, s.ID, "lead-1")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if res.Site.State != site.StateAssigned {
		t.Errorf("Expected assigned site, got %s", res.Site.State)
	}
	if res.Site.AssignedLeadID == nil || *res.Site.AssignedLeadID != "lead-1" {
		t.Error("Expected lead reference on site")
	}
	if res.Site.AssignedAt == nil {
		t.Error("Expected assignment timestamp")
	}

	if res.Brigade.State != brigade.StateFormation {
		t.Errorf("Expected brigade in formation, got %s", res.Brigade.State)
	}
	if len(res.Brigade.Memberships) != 1 {
		t.Fatalf("Expected single lead membership, got %d", len(res.Brigade.Memberships))
	}
	lead := res.Brigade.Lead()
	if lead == nil || lead.PersonID != "lead-1" {
		t.Fatal("Expected lead membership for lead-1")
	}
	if lead.Invitation == nil || *lead.Invitation != brigade.InvitationAccepted {
		t.Error("Lead invitation must be implicitly accepted")
	}

	// Both records are persisted, not just returned.
	stored, err := sites.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.State != site.StateAssigned {
		t.Errorf("Expected stored site assigned, got %s", stored.State)
	}
	if _, err := brigades.GetByID(ctx, res.Brigade.ID); err != nil {
		t.Fatalf("Expected stored brigade: %v", err)
	}
}

func TestAssignSiteNotFound(t *testing.T) {
	coord, _, _, people := setup(t)
	approvedLead(people, "lead-1")

	_, err := coord.Assign(context.Background(), brigade.Actor{}, "ghost", "lead-1")
	if fault.KindOf(err) != fault.KindNotFound {
		t.Fatalf("Expected not_found, got %v", err)
	}
}

func TestAssignSiteNotReady(t *testing.T) {
	coord, sites, _, people := setup(t)
	approvedLead(people, "lead-1")

	s := site.NewSite("SITE-2", 4.6, -74.1)
	if err := sites.Insert(context.Background(), s); err != nil {
		t.Fatalf("site insert failed: %v", err)
	}

	_, err := coord.Assign(context.Background(), brigade.Actor{}, s.ID, "lead-1")
	if fault.KindOf(err) != fault.KindInvalidState {
		t.Fatalf("Expected invalid_state for in_review site, got %v", err)
	}
}

func TestAssignLeadValidation(t *testing.T) {
	coord, sites, _, people := setup(t)
	ctx := context.Background()
	s := readySite(t, sites, "SITE-3")

	people.Add(directory.Person{ID: "p-unapproved", Role: directory.RoleLead, Approved: false})
	people.Add(directory.Person{ID: "p-botanist", Role: directory.RoleBotanist, Approved: true})

	tests := []struct {
		name   string
		leadID string
	}{
		{"missing person", "ghost"},
		{"unapproved lead", "p-unapproved"},
		{"wrong role", "p-botanist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := coord.Assign(ctx, brigade.Actor{}, s.ID, tt.leadID)
			if fault.KindOf(err) != fault.KindNotFound {
				t.Fatalf("Expected not_found, got %v", err)
			}
		})
	}

	// The failed attempts leave the site untouched.
	stored, _ := sites.GetByID(ctx, s.ID)
	if stored.State != site.StateReadyForAssignment {
		t.Errorf("Expected site still ready, got %s", stored.State)
	}
}

func TestAssignTwice(t *testing.T) {
	coord, sites, _, people := setup(t)
	ctx := context.Background()
	s := readySite(t, sites, "SITE-4")
	approvedLead(people, "lead-1")
	approvedLead(people, "lead-2")

	if _, err := coord.Assign(ctx, brigade.Actor{}, s.ID, "lead-1"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	_, err := coord.Assign(ctx, brigade.Actor{}, s.ID, "lead-2")
	if fault.KindOf(err) != fault.KindInvalidState {
		t.Fatalf("Expected invalid_state on second assign, got %v", err)
	}
}

func TestLedgerRevertsOnBrigadeConflict(t *testing.T) {
	// Two ready-state snapshots of the same site driven through Commit
	// directly: the second hits the brigade-per-site constraint and must
	// leave the site as the first commit wrote it.
	sites := site.NewInMemoryRepository()
	brigades := brigade.NewInMemoryRepository()
	ledger := NewLedger(sites, brigades, nil)
	ctx := context.Background()

	s := readySite(t, sites, "SITE-5")

	first := s.Clone()
	leadID := "lead-1"
	first.State = site.StateAssigned
	first.AssignedLeadID = &leadID
	if err := ledger.Commit(ctx, first, brigade.New(s.ID, leadID)); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	second := s.Clone()
	otherID := "lead-2"
	second.State = site.StateAssigned
	second.AssignedLeadID = &otherID
	err := ledger.Commit(ctx, second, brigade.New(s.ID, otherID))
	if err != ErrSiteNotReady {
		t.Fatalf("Expected ErrSiteNotReady, got %v", err)
	}

	stored, _ := sites.GetByID(ctx, s.ID)
	if stored.AssignedLeadID == nil || *stored.AssignedLeadID != leadID {
		t.Error("Expected the first assignment to stand")
	}
}
