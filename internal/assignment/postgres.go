package assignment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/openforest/fieldcoord/internal/brigade"
	"github.com/openforest/fieldcoord/internal/site"
)

// PostgresStore implements Store with a single transaction covering the site
// update and the brigade insert. The site update is guarded on the current
// state so a concurrent assignment of the same site loses cleanly.
type PostgresStore struct {
	db     *sql.DB
	sites  *site.PostgresRepository
	logger *slog.Logger
}

// NewPostgresStore creates a postgres-backed assignment store.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		sites:  site.NewPostgresRepository(db, logger),
		logger: logger,
	}
}

// Site returns the site record.
func (s *PostgresStore) Site(ctx context.Context, siteID string) (*site.SamplingSite, error) {
	return s.sites.GetByID(ctx, siteID)
}

// Commit writes the assignment in one transaction.
func (s *PostgresStore) Commit(ctx context.Context, st *site.SamplingSite, b *brigade.Brigade) error {
	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	for i := range b.Memberships {
		b.Memberships[i].BrigadeID = b.ID
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE sampling_sites
		SET state = $2, assigned_at = $3, assigned_lead_id = $4, updated_at = now()
		WHERE id = $1 AND state = $5
	`, st.ID, st.State, st.AssignedAt, st.AssignedLeadID, site.StateReadyForAssignment)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSiteNotReady
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO brigades (id, site_id, state, invitations_sent, field_start, field_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.SiteID, b.State, b.InvitationsSent, b.FieldStart, b.FieldEnd, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return brigade.ErrSiteTaken
		}
		return fmt.Errorf("failed to insert brigade: %w", err)
	}

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

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
