package principals

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolroom-mes/toolroom/internal/platform/db"
	"github.com/toolroom-mes/toolroom/internal/shared"
)

const principalColumns = `id, handle, name, credential_hash, is_active, skill_level, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for principals.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a principal. A handle collision maps to shared.ErrDuplicateName.
func (r *Repository) Create(ctx context.Context, handle, name, credentialHash string, skill SkillLevel) (Principal, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO principals (handle, name, credential_hash, is_active, skill_level, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, NOW(), NOW())
		RETURNING `+principalColumns,
		handle, name, credentialHash, skill.String())
	p, err := scanPrincipal(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Principal{}, fmt.Errorf("principals: handle %q: %w", handle, shared.ErrDuplicateName)
		}
		return Principal{}, err
	}
	return p, nil
}

// GetByID fetches a principal by ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	p, err := scanPrincipal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, shared.ErrNotFound
		}
		return Principal{}, err
	}
	return p, nil
}

// GetByHandle fetches a principal by handle.
func (r *Repository) GetByHandle(ctx context.Context, handle string) (Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE handle = $1`, handle)
	p, err := scanPrincipal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, shared.ErrNotFound
		}
		return Principal{}, err
	}
	return p, nil
}

// List returns all principals ordered by ID.
func (r *Repository) List(ctx context.Context) ([]Principal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+principalColumns+` FROM principals ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var principals []Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return principals, nil
}

// SetActive flips the active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE principals SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetSkillLevel updates the qualification ordinal.
func (r *Repository) SetSkillLevel(ctx context.Context, id int64, skill SkillLevel) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE principals SET skill_level = $2, updated_at = NOW() WHERE id = $1`, id, skill.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a principal together with every role binding referencing
// it, in a single transaction.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM principal_roles WHERE principal_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM principals WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	var skill string
	if err := row.Scan(&p.ID, &p.Handle, &p.Name, &p.CredentialHash, &p.IsActive, &skill, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Principal{}, err
	}
	p.SkillLevel = ParseSkillLevel(skill)
	return p, nil
}
