package site

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// Insert stores the site and its sub-plots in one transaction.
func (r *PostgresRepository) Insert(ctx context.Context, s *SamplingSite) error {
	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.CreatedAt = now
	s.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sampling_sites (id, code, latitude, longitude, region_id, department_id, municipality_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.ID, s.Code, s.Latitude, s.Longitude, s.Scope.RegionID, s.Scope.DepartmentID, s.Scope.MunicipalityID, s.State, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert site: %w", err)
	}

	for i := range s.SubPlots {
		p := &s.SubPlots[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.SiteID = s.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sub_plots (id, site_id, ordinal, latitude, longitude, notes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.ID, p.SiteID, p.Ordinal, p.Latitude, p.Longitude, p.Notes)
		if err != nil {
			return fmt.Errorf("failed to insert sub-plot %d: %w", p.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// GetByID retrieves a site with its sub-plots.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*SamplingSite, error) {
	return r.getSite(ctx, "id = $1", id)
}

// GetBySubPlotID retrieves the site owning the given sub-plot.
func (r *PostgresRepository) GetBySubPlotID(ctx context.Context, subPlotID string) (*SamplingSite, error) {
	var siteID string
	err := r.db.QueryRowContext(ctx,
		`SELECT site_id FROM sub_plots WHERE id = $1`, subPlotID).Scan(&siteID)
	if err == sql.ErrNoRows {
		return nil, ErrSubPlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sub-plot: %w", err)
	}
	return r.getSite(ctx, "id = $1", siteID)
}

func (r *PostgresRepository) getSite(ctx context.Context, where string, arg any) (*SamplingSite, error) {
	s := &SamplingSite{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, latitude, longitude, region_id, department_id, municipality_id, state, assigned_at, assigned_lead_id, created_at, updated_at
		FROM sampling_sites WHERE `+where, arg).Scan(
		&s.ID, &s.Code, &s.Latitude, &s.Longitude,
		&s.Scope.RegionID, &s.Scope.DepartmentID, &s.Scope.MunicipalityID,
		&s.State, &s.AssignedAt, &s.AssignedLeadID, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query site: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, site_id, ordinal, latitude, longitude, established, established_lat, established_lng, gps_error_m, reason_code, notes
		FROM sub_plots WHERE site_id = $1 ORDER BY ordinal
	`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sub-plots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p SubPlot
		var reason sql.NullString
		if err := rows.Scan(&p.ID, &p.SiteID, &p.Ordinal, &p.Latitude, &p.Longitude,
			&p.Established, &p.EstablishedLat, &p.EstablishedLng, &p.GPSErrorMeters,
			&reason, &p.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan sub-plot: %w", err)
		}
		if reason.Valid {
			rc := NonEstablishmentReason(reason.String)
			p.ReasonCode = &rc
		}
		s.SubPlots = append(s.SubPlots, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sub-plots: %w", err)
	}
	return s, nil
}

// Update persists the site row and every sub-plot row in one transaction.
func (r *PostgresRepository) Update(ctx context.Context, s *SamplingSite) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE sampling_sites
		SET region_id = $2, department_id = $3, municipality_id = $4, state = $5,
		    assigned_at = $6, assigned_lead_id = $7, updated_at = now()
		WHERE id = $1
	`, s.ID, s.Scope.RegionID, s.Scope.DepartmentID, s.Scope.MunicipalityID,
		s.State, s.AssignedAt, s.AssignedLeadID)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSiteNotFound
	}

	for i := range s.SubPlots {
		p := &s.SubPlots[i]
		var reason *string
		if p.ReasonCode != nil {
			rc := string(*p.ReasonCode)
			reason = &rc
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sub_plots
			SET established = $2, established_lat = $3, established_lng = $4,
			    gps_error_m = $5, reason_code = $6, notes = $7
			WHERE id = $1
		`, p.ID, p.Established, p.EstablishedLat, p.EstablishedLng,
			p.GPSErrorMeters, reason, p.Notes)
		if err != nil {
			return fmt.Errorf("failed to update sub-plot %d: %w", p.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// CountAssignedToLead returns the number of sites currently assigned to the
// person as lead.
func (r *PostgresRepository) CountAssignedToLead(ctx context.Context, personID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sampling_sites
		WHERE assigned_lead_id = $1 AND state IN ('assigned', 'in_execution')
	`, personID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assigned sites: %w", err)
	}
	return count, nil
}
