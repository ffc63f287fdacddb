package plot

import (
	"context"
	"testing"
	"time"

	"github.com/openforest/fieldcoord/internal/brigade"
	"github.com/openforest/fieldcoord/internal/fault"
	"github.com/openforest/fieldcoord/internal/site"
)

func setup(t *testing.T, brigadeState brigade.State) (*Tracker, *site.SamplingSite) {
	t.Helper()
	ctx := context.Background()

	sites := site.NewInMemoryRepository()
	s := site.NewSite("SITE-1", 4.6, -74.1)
	s.State = site.StateInExecution
	if err := sites.Insert(ctx, s); err != nil {
		t.Fatalf("site insert failed: %v", err)
	}

	brigades := brigade.NewInMemoryRepository()
	b := brigade.New(s.ID, "lead-1")
	b.State = brigadeState
	if err := brigades.Insert(ctx, b); err != nil {
		t.Fatalf("brigade insert failed: %v", err)
	}

	engine := brigade.NewEngine(brigades, sites, nil, nil)
	return NewTracker(sites, brigades, engine, nil), s
}

func f64(v float64) *float64 { return &v }

func TestRecordEstablished(t *testing.T) {
	tracker, s := setup(t, brigade.StateInExecution)
	ctx := context.Background()
	actor := brigade.Actor{PersonID: "lead-1"}

	res, err := tracker.RecordOutcome(ctx, actor, s.SubPlots[0].ID, Outcome{
		Established: true,
		Latitude:    f64(4.6001),
		Longitude:   f64(-74.1002),
		GPSErrorM:   f64(3.2),
		Notes:       "dense undergrowth",
	})
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	p := res.SubPlot
	if p.Established == nil || !*p.Established {
		t.Error("Expected established outcome")
	}
	if p.EstablishedLat == nil || *p.EstablishedLat != 4.6001 {
		t.Error("Expected established latitude recorded")
	}
	if p.ReasonCode != nil {
		t.Error("Established plot must not carry a reason code")
	}
	if p.Notes != "dense undergrowth" {
		t.Errorf("Unexpected notes %q", p.Notes)
	}
	if res.PendingOutcomes != site.SubPlotCount-1 {
		t.Errorf("Expected %d pending, got %d", site.SubPlotCount-1, res.PendingOutcomes)
	}
}

func TestRecordNotEstablished(t *testing.T) {
	tracker, s := setup(t, brigade.StateInExecution)
	reason := site.ReasonAccessDenied

	res, err := tracker.RecordOutcome(context.Background(), brigade.Actor{PersonID: "lead-1"}, s.SubPlots[2].ID, Outcome{
		Established: false,
		ReasonCode:  &reason,
	})
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	p := res.SubPlot
	if p.Established == nil || *p.Established {
		t.Error("Expected not-established outcome")
	}
	if p.ReasonCode == nil || *p.ReasonCode != site.ReasonAccessDenied {
		t.Error("Expected reason code recorded")
	}
	if p.EstablishedLat != nil || p.GPSErrorMeters != nil {
		t.Error("Not-established plot must not carry measured position")
	}
}

func TestRecordValidation(t *testing.T) {
	tracker, s := setup(t, brigade.StateInExecution)
	ctx := context.Background()
	actor := brigade.Actor{PersonID: "lead-1"}
	badReason := site.NonEstablishmentReason("bored")

	tests := []struct {
		name    string
		outcome Outcome
	}{
		{"established without coordinates", Outcome{Established: true, GPSErrorM: f64(2)}},
		{"established without gps error", Outcome{Established: true, Latitude: f64(4.6), Longitude: f64(-74.1)}},
		{"established with negative gps error", Outcome{Established: true, Latitude: f64(4.6), Longitude: f64(-74.1), GPSErrorM: f64(-1)}},
		{"established with bad latitude", Outcome{Established: true, Latitude: f64(91), Longitude: f64(-74.1), GPSErrorM: f64(2)}},
		{"not established without reason", Outcome{Established: false}},
		{"not established with unknown reason", Outcome{Established: false, ReasonCode: &badReason}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracker.RecordOutcome(ctx, actor, s.SubPlots[0].ID, tt.outcome)
			if fault.KindOf(err) != fault.KindValidation {
				t.Fatalf("Expected validation_error, got %v", err)
			}
		})
	}
}

func TestRecordOutsideExecution(t *testing.T) {
	tracker, s := setup(t, brigade.StateInTransit)
	reason := site.ReasonOther

	_, err := tracker.RecordOutcome(context.Background(), brigade.Actor{PersonID: "lead-1"}, s.SubPlots[0].ID, Outcome{
		Established: false,
		ReasonCode:  &reason,
	})
	if fault.KindOf(err) != fault.KindInvalidState {
		t.Fatalf("Expected invalid_state, got %v", err)
	}
}

func TestRecordByNonMember(t *testing.T) {
	tracker, s := setup(t, brigade.StateInExecution)

	_, err := tracker.RecordOutcome(context.Background(), brigade.Actor{PersonID: "stranger"}, s.SubPlots[0].ID, Outcome{
		Established: true,
		Latitude:    f64(4.6),
		Longitude:   f64(-74.1),
		GPSErrorM:   f64(2),
	})
	if fault.KindOf(err) != fault.KindForbidden {
		t.Fatalf("Expected forbidden, got %v", err)
	}
}

func TestRecordUnknownSubPlot(t *testing.T) {
	tracker, _ := setup(t, brigade.StateInExecution)

	_, err := tracker.RecordOutcome(context.Background(), brigade.Actor{PersonID: "lead-1"}, "ghost", Outcome{Established: true})
	if fault.KindOf(err) != fault.KindNotFound {
		t.Fatalf("Expected not_found, got %v", err)
	}
}

func TestRecordOutcomeSerializedWithTransition(t *testing.T) {
	ctx := context.Background()

	sites := site.NewInMemoryRepository()
	s := site.NewSite("SITE-1", 4.6, -74.1)
	s.State = site.StateInExecution
	if err := sites.Insert(ctx, s); err != nil {
		t.Fatalf("site insert failed: %v", err)
	}

	brigades := brigade.NewInMemoryRepository()
	b := brigade.New(s.ID, "lead-1")
	b.State = brigade.StateInExecution
	if err := brigades.Insert(ctx, b); err != nil {
		t.Fatalf("brigade insert failed: %v", err)
	}

	engine := brigade.NewEngine(brigades, sites, nil, nil)
	tracker := NewTracker(sites, brigades, engine, nil)

	// Hold the lifecycle lock and close the brigade while a recorder waits
	// on it. The recorder must re-check state after acquiring the lock and
	// refuse to write into the closed site.
	unlock := engine.LockBrigade(b.ID)

	reason := site.ReasonNaturalHazard
	errCh := make(chan error, 1)
	go func() {
		_, err := tracker.RecordOutcome(ctx, brigade.Actor{PersonID: "lead-1"}, s.SubPlots[0].ID, Outcome{
			Established: false,
			ReasonCode:  &reason,
		})
		errCh <- err
	}()

	select {
	case err := <-errCh:
		t.Fatalf("RecordOutcome finished while the lifecycle lock was held: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	b.State = brigade.StateCompleted
	if err := brigades.Update(ctx, b); err != nil {
		t.Fatalf("brigade update failed: %v", err)
	}
	unlock()

	if err := <-errCh; fault.KindOf(err) != fault.KindInvalidState {
		t.Fatalf("Expected invalid_state after the brigade completed, got %v", err)
	}

	got, err := sites.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("site fetch failed: %v", err)
	}
	if got.SubPlots[0].Established != nil {
		t.Error("Outcome must not land after the brigade left execution")
	}
}

func TestProgress(t *testing.T) {
	tracker, s := setup(t, brigade.StateInExecution)
	ctx := context.Background()
	actor := brigade.Actor{PersonID: "lead-1"}

	pending, err := tracker.Progress(ctx, s.ID)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if pending != site.SubPlotCount {
		t.Errorf("Expected %d pending, got %d", site.SubPlotCount, pending)
	}

	for _, p := range s.SubPlots {
		if _, err := tracker.RecordOutcome(ctx, actor, p.ID, Outcome{
			Established: true,
			Latitude:    f64(4.6),
			Longitude:   f64(-74.1),
			GPSErrorM:   f64(2),
		}); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}

	pending, err = tracker.Progress(ctx, s.ID)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if pending != 0 {
		t.Errorf("Expected 0 pending, got %d", pending)
	}
}
