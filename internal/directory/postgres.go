package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresDirectory reads identities from the users table.
type PostgresDirectory struct {
	pool rowQuerier
}

// NewPostgresDirectory creates a directory over the users table.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	if pool == nil {
		panic("directory: pgx pool required")
	}
	return &PostgresDirectory{pool: pool}
}

func newPostgresDirectoryWithQuerier(q rowQuerier) *PostgresDirectory {
	if q == nil {
		panic("directory: querier required")
	}
	return &PostgresDirectory{pool: q}
}

// Find returns the user with id when it carries role.
func (d *PostgresDirectory) Find(ctx context.Context, id uuid.UUID, role Role) (*Person, error) {
	query := `
		SELECT id, first_name, last_name, email, role
		FROM users
		WHERE id = $1 AND role = $2
	`
	var (
		p       Person
		roleStr string
	)
	if err := d.pool.QueryRow(ctx, query, id, string(role)).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &roleStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPersonNotFound
		}
		return nil, fmt.Errorf("directory: find %s: %w", role, err)
	}
	p.Role = Role(roleStr)
	return &p, nil
}

// List returns every user carrying role.
func (d *PostgresDirectory) List(ctx context.Context, role Role) ([]Person, error) {
	query := `
		SELECT id, first_name, last_name, email, role
		FROM users
		WHERE role = $1
		ORDER BY last_name, first_name, id
	`
	rows, err := d.pool.Query(ctx, query, string(role))
	if err != nil {
		return nil, fmt.Errorf("directory: list %s: %w", role, err)
	}
	defer rows.Close()

	out := []Person{}
	for rows.Next() {
		var (
			p       Person
			roleStr string
		)
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &roleStr); err != nil {
			return nil, fmt.Errorf("directory: scan %s: %w", role, err)
		}
		p.Role = Role(roleStr)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: list %s: %w", role, err)
	}
	return out, nil
}
