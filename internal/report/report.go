// Package report renders expedition reports as xlsx workbooks: a summary
// sheet for the site and mission, a roster sheet, the recorded access routes
// and the per-sub-plot field outcomes.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/openforest/fieldcoord/internal/brigade"
	"github.com/openforest/fieldcoord/internal/directory"
	"github.com/openforest/fieldcoord/internal/fault"
	"github.com/openforest/fieldcoord/internal/site"
)

const (
	sheetSummary  = "Summary"
	sheetRoster   = "Roster"
	sheetRoutes   = "Routes"
	sheetSubPlots = "Sub-plots"
)

const dateLayout = "2006-01-02"

// Generator builds expedition reports from the brigade, site and directory
// stores.
type Generator struct {
	brigades brigade.Repository
	sites    site.Repository
	people   directory.Repository
	logger   *slog.Logger
}

// NewGenerator creates a report generator.
func NewGenerator(brigades brigade.Repository, sites site.Repository, people directory.Repository, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{brigades: brigades, sites: sites, people: people, logger: logger}
}

// Generate writes the expedition report for a brigade to w and returns the
// suggested file name. The brigade must exist; any lifecycle state is
// reportable, partial reports are useful mid-expedition.
func (g *Generator) Generate(ctx context.Context, brigadeID string, w io.Writer) (string, error) {
	b, err := g.brigades.GetByID(ctx, brigadeID)
	if err != nil {
		if err == brigade.ErrBrigadeNotFound {
			return "", fault.NotFound("brigade %s not found", brigadeID)
		}
		return "", fmt.Errorf("load brigade: %w", err)
	}

	s, err := g.sites.GetByID(ctx, b.SiteID)
	if err != nil {
		return "", fmt.Errorf("load site %s: %w", b.SiteID, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	g.writeSummary(f, b, s)
	g.writeRoster(ctx, f, b)
	g.writeRoutes(f, b)
	g.writeSubPlots(f, s)

	// Drop the default sheet excelize creates and land on the summary.
	if idx, err := f.GetSheetIndex(sheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}
	_ = f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}
	return fmt.Sprintf("expedition-%s.xlsx", s.Code), nil
}

func (g *Generator) writeSummary(f *excelize.File, b *brigade.Brigade, s *site.SamplingSite) {
	_, _ = f.NewSheet(sheetSummary)

	rows := [][]any{
		{"Site code", s.Code},
		{"Site state", string(s.State)},
		{"Center latitude", s.Latitude},
		{"Center longitude", s.Longitude},
		{"Brigade state", string(b.State)},
		{"Members", len(b.Memberships)},
		{"Pending outcomes", s.PendingOutcomes()},
	}
	if b.FieldStart != nil {
		rows = append(rows, []any{"Field start", b.FieldStart.Format(dateLayout)})
	}
	if b.FieldEnd != nil {
		rows = append(rows, []any{"Field end", b.FieldEnd.Format(dateLayout)})
	}
	if s.Scope.RegionID != nil {
		rows = append(rows, []any{"Region", *s.Scope.RegionID})
	}
	if s.Scope.DepartmentID != nil {
		rows = append(rows, []any{"Department", *s.Scope.DepartmentID})
	}
	if s.Scope.MunicipalityID != nil {
		rows = append(rows, []any{"Municipality", *s.Scope.MunicipalityID})
	}

	writeRows(f, sheetSummary, rows)
}

func (g *Generator) writeRoster(ctx context.Context, f *excelize.File, b *brigade.Brigade) {
	_, _ = f.NewSheet(sheetRoster)

	rows := [][]any{{"Person", "Role", "Invitation", "Responded", "Rejection reason"}}
	for i := range b.Memberships {
		m := &b.Memberships[i]

		name := m.PersonID
		if p, err := g.people.GetByID(ctx, m.PersonID); err == nil {
			name = p.FullName
		} else {
			g.logger.Warn("report: unresolvable member", "person_id", m.PersonID, "brigade_id", b.ID)
		}

		invitation := ""
		if m.Invitation != nil {
			invitation = string(*m.Invitation)
		}
		responded := ""
		if m.RespondedAt != nil {
			responded = m.RespondedAt.Format(dateLayout)
		}
		rows = append(rows, []any{name, string(m.Role), invitation, responded, m.RejectionReason})
	}

	writeRows(f, sheetRoster, rows)
}

func (g *Generator) writeRoutes(f *excelize.File, b *brigade.Brigade) {
	_, _ = f.NewSheet(sheetRoutes)

	rows := [][]any{{"Route", "Transport", "Access time (min)", "Distance (km)", "Point", "Latitude", "Longitude", "GPS error (m)"}}
	for _, kind := range []brigade.RouteKind{brigade.RouteToCamp, brigade.RouteToSite} {
		r := b.Route(kind)
		if r == nil {
			rows = append(rows, []any{string(kind), "", "", "", "no points recorded", "", "", ""})
			continue
		}
		for _, p := range r.Points {
			rows = append(rows, []any{string(kind), r.TransportMode, r.AccessTimeMinutes, r.DistanceKm, p.Name, p.Latitude, p.Longitude, p.GPSErrorMeters})
		}
	}

	writeRows(f, sheetRoutes, rows)
}

func (g *Generator) writeSubPlots(f *excelize.File, s *site.SamplingSite) {
	_, _ = f.NewSheet(sheetSubPlots)

	rows := [][]any{{"Ordinal", "Direction", "Planned lat", "Planned lng", "Outcome", "Measured lat", "Measured lng", "GPS error (m)", "Reason", "Notes"}}
	for i := range s.SubPlots {
		p := &s.SubPlots[i]

		outcome := "pending"
		var measuredLat, measuredLng, gpsErr any = "", "", ""
		reason := ""
		if p.Established != nil {
			if *p.Established {
				outcome = "established"
				if p.EstablishedLat != nil {
					measuredLat = *p.EstablishedLat
				}
				if p.EstablishedLng != nil {
					measuredLng = *p.EstablishedLng
				}
				if p.GPSErrorMeters != nil {
					gpsErr = *p.GPSErrorMeters
				}
			} else {
				outcome = "not_established"
				if p.ReasonCode != nil {
					reason = string(*p.ReasonCode)
				}
			}
		}
		rows = append(rows, []any{p.Ordinal, site.CardinalDirection(p.Ordinal), p.Latitude, p.Longitude, outcome, measuredLat, measuredLng, gpsErr, reason, p.Notes})
	}

	writeRows(f, sheetSubPlots, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) {
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(sheet, cell, &row)
	}
}
