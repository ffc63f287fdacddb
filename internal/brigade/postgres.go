package brigade

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresRepository implements Repository backed by PostgreSQL. Memberships,
// routes and reference points are written with the brigade row in a single
// transaction.
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

// Insert stores a new brigade, assigning its id.
func (r *PostgresRepository) Insert(ctx context.Context, b *Brigade) error {
	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	for i := range b.Memberships {
		b.Memberships[i].BrigadeID = b.ID
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO brigades (id, site_id, state, invitations_sent, field_start, field_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.SiteID, b.State, b.InvitationsSent, b.FieldStart, b.FieldEnd, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrSiteTaken
		}
		return fmt.Errorf("failed to insert brigade: %w", err)
	}

	if err := r.writeChildren(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Update persists the brigade, replacing its memberships, routes and points
// in one transaction.
func (r *PostgresRepository) Update(ctx context.Context, b *Brigade) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(tx)

	res, err := tx.ExecContext(ctx, `
		UPDATE brigades
		SET state = $2, invitations_sent = $3, field_start = $4, field_end = $5, updated_at = now()
		WHERE id = $1
	`, b.ID, b.State, b.InvitationsSent, b.FieldStart, b.FieldEnd)
	if err != nil {
		return fmt.Errorf("failed to update brigade: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBrigadeNotFound
	}

	for _, table := range []string{"route_points", "access_routes", "memberships"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE brigade_id = $1`, table), b.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := r.writeChildren(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *PostgresRepository) writeChildren(ctx context.Context, tx *sql.Tx, b *Brigade) error {
	for i := range b.Memberships {
		m := &b.Memberships[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memberships (brigade_id, person_id, role, invitation, responded_at, rejection_reason)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, b.ID, m.PersonID, m.Role, m.Invitation, m.RespondedAt, m.RejectionReason)
		if err != nil {
			return fmt.Errorf("failed to insert membership: %w", err)
		}
	}

	for i := range b.Routes {
		route := &b.Routes[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO access_routes (brigade_id, kind, transport_mode, access_time_minutes, distance_km)
			VALUES ($1, $2, $3, $4, $5)
		`, b.ID, route.Kind, route.TransportMode, route.AccessTimeMinutes, route.DistanceKm)
		if err != nil {
			return fmt.Errorf("failed to insert route: %w", err)
		}
		for ord, p := range route.Points {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO route_points (brigade_id, kind, ordinal, name, latitude, longitude, gps_error_m)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, b.ID, route.Kind, ord+1, p.Name, p.Latitude, p.Longitude, p.GPSErrorMeters)
			if err != nil {
				return fmt.Errorf("failed to insert route point: %w", err)
			}
		}
	}
	return nil
}

// GetByID retrieves a brigade with memberships and routes.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Brigade, error) {
	b := &Brigade{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, site_id, state, invitations_sent, field_start, field_end, created_at, updated_at
		FROM brigades WHERE id = $1
	`, id).Scan(&b.ID, &b.SiteID, &b.State, &b.InvitationsSent, &b.FieldStart, &b.FieldEnd, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBrigadeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query brigade: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT person_id, role, invitation, responded_at, rejection_reason
		FROM memberships WHERE brigade_id = $1 ORDER BY person_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m := Membership{BrigadeID: id}
		var invitation sql.NullString
		if err := rows.Scan(&m.PersonID, &m.Role, &invitation, &m.RespondedAt, &m.RejectionReason); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		if invitation.Valid {
			state := InvitationState(invitation.String)
			m.Invitation = &state
		}
		b.Memberships = append(b.Memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	if err := r.loadRoutes(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBySiteID retrieves the brigade bound to a site.
func (r *PostgresRepository) GetBySiteID(ctx context.Context, siteID string) (*Brigade, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM brigades WHERE site_id = $1`, siteID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrBrigadeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve brigade by site: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *PostgresRepository) loadRoutes(ctx context.Context, b *Brigade) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, transport_mode, access_time_minutes, distance_km
		FROM access_routes WHERE brigade_id = $1 ORDER BY kind
	`, b.ID)
	if err != nil {
		return fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		route := AccessRoute{BrigadeID: b.ID}
		if err := rows.Scan(&route.Kind, &route.TransportMode, &route.AccessTimeMinutes, &route.DistanceKm); err != nil {
			return fmt.Errorf("failed to scan route: %w", err)
		}
		b.Routes = append(b.Routes, route)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate routes: %w", err)
	}

	for i := range b.Routes {
		route := &b.Routes[i]
		pts, err := r.db.QueryContext(ctx, `
			SELECT name, latitude, longitude, gps_error_m
			FROM route_points WHERE brigade_id = $1 AND kind = $2 ORDER BY ordinal
		`, b.ID, route.Kind)
		if err != nil {
			return fmt.Errorf("failed to query route points: %w", err)
		}
		for pts.Next() {
			var p ReferencePoint
			if err := pts.Scan(&p.Name, &p.Latitude, &p.Longitude, &p.GPSErrorMeters); err != nil {
				pts.Close()
				return fmt.Errorf("failed to scan route point: %w", err)
			}
			route.Points = append(route.Points, p)
		}
		if err := pts.Err(); err != nil {
			pts.Close()
			return fmt.Errorf("failed to iterate route points: %w", err)
		}
		pts.Close()
	}
	return nil
}

// Delete removes a brigade and its children.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(tx)

	for _, table := range []string{"route_points", "access_routes", "memberships"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE brigade_id = $1`, table), id); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM brigades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete brigade: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBrigadeNotFound
	}
	return tx.Commit()
}

func (r *PostgresRepository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		r.logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
	}
}
