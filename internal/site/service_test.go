package site

import (
	"context"
	"testing"

	"github.com/openforest/fieldcoord/internal/fault"
)

func str(s string) *string { return &s }

func fullScope() AdminScope {
	return AdminScope{
		RegionID:       str("reg-1"),
		DepartmentID:   str("dep-1"),
		MunicipalityID: str("mun-1"),
	}
}

func TestCreateSite(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil)
	ctx := context.Background()

	s, err := svc.Create(ctx, "CONG-042", 4.6, -74.1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.State != StateInReview {
		t.Errorf("Expected in_review, got %s", s.State)
	}
	if len(s.SubPlots) != SubPlotCount {
		t.Errorf("Expected %d sub-plots, got %d", SubPlotCount, len(s.SubPlots))
	}

	_, err = svc.Create(ctx, "CONG-042", 5.0, -73.0)
	if fault.KindOf(err) != fault.KindValidation {
		t.Fatalf("Expected validation_error for duplicate code, got %v", err)
	}
}

func TestCreateSiteValidation(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		code     string
		lat, lng float64
	}{
		{"empty code", "", 4.6, -74.1},
		{"code too short", "AB", 4.6, -74.1},
		{"latitude out of range", "CONG-1", 95, -74.1},
		{"longitude out of range", "CONG-1", 4.6, 190},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.code, tt.lat, tt.lng)
			if fault.KindOf(err) != fault.KindValidation {
				t.Fatalf("Expected validation_error, got %v", err)
			}
		})
	}
}

func TestReviewApprove(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil)
	ctx := context.Background()
	s, err := svc.Create(ctx, "CONG-1", 4.6, -74.1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Approval without a full scope is rejected.
	_, err = svc.Review(ctx, s.ID, true, AdminScope{RegionID: str("reg-1")})
	if fault.KindOf(err) != fault.KindValidation {
		t.Fatalf("Expected validation_error, got %v", err)
	}

	reviewed, err := svc.Review(ctx, s.ID, true, fullScope())
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if reviewed.State != StateReadyForAssignment {
		t.Errorf("Expected ready_for_assignment, got %s", reviewed.State)
	}
	if !reviewed.Scope.Complete() {
		t.Error("Expected scope recorded")
	}

	// The review window is closed.
	_, err = svc.Review(ctx, s.ID, false, AdminScope{})
	if fault.KindOf(err) != fault.KindInvalidState {
		t.Fatalf("Expected invalid_state, got %v", err)
	}
}

func TestReviewReject(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil)
	ctx := context.Background()
	s, err := svc.Create(ctx, "CONG-2", 4.6, -74.1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Rejection needs no scope.
	reviewed, err := svc.Review(ctx, s.ID, false, AdminScope{})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if reviewed.State != StateRejected {
		t.Errorf("Expected rejected, got %s", reviewed.State)
	}
}

func TestReviewUnknownSite(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), nil)
	_, err := svc.Review(context.Background(), "ghost", true, fullScope())
	if fault.KindOf(err) != fault.KindNotFound {
		t.Fatalf("Expected not_found, got %v", err)
	}
}
