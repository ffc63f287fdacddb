package directory

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindIDsByRole returns ids of approved holders of the role within the given
// division.
func (r *PostgresRepository) FindIDsByRole(ctx context.Context, role Role, level ScopeLevel, divisionID string) ([]string, error) {
	query := `SELECT id FROM people WHERE role = $1 AND approved`
	args := []any{string(role)}

	switch level {
	case LevelMunicipality:
		query += ` AND municipality_id = $2`
		args = append(args, divisionID)
	case LevelDepartment:
		query += ` AND department_id = $2`
		args = append(args, divisionID)
	case LevelRegion:
		query += ` AND region_id = $2`
		args = append(args, divisionID)
	case LevelNationwide:
		// No geographic filter.
	default:
		return nil, fmt.Errorf("unknown scope level %q", level)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query people: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan person id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetByID resolves a person record.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Person, error) {
	p := &Person{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, role, approved, region_id, department_id, municipality_id
		FROM people WHERE id = $1
	`, id).Scan(&p.ID, &p.FullName, &p.Email, &p.Role, &p.Approved,
		&p.RegionID, &p.DepartmentID, &p.MunicipalityID)
	if err == sql.ErrNoRows {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query person: %w", err)
	}
	return p, nil
}
