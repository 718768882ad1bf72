package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// SpaceRepo manages the spaces table.
type SpaceRepo struct {
	s *storeCtx
}

// EnsureDefault creates the default space if it does not exist. Idempotent.
func (r *SpaceRepo) EnsureDefault(ctx context.Context) (*Space, error) {
	existing, err := r.GetByName(ctx, DefaultSpaceName)
	if err == nil {
		return existing, nil
	}
	if !spiralerr.HasCode(err, spiralerr.ErrCodeNotFound) {
		return nil, err
	}
	return r.Create(ctx, DefaultSpaceName, "Default space")
}

// Create inserts a new space. Names are unique case-insensitively.
func (r *SpaceRepo) Create(ctx context.Context, name, description string) (*Space, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, spiralerr.ValidationError("space name must not be empty", nil)
	}

	space := &Space{
		ID:          r.s.newID(),
		Name:        name,
		Description: description,
		Settings:    map[string]any{},
		CreatedAt:   r.s.now(),
	}

	_, err := r.s.db.ExecContext(ctx,
		`INSERT INTO spaces (id, name, description, settings, created_at) VALUES (?, ?, ?, '{}', ?)`,
		space.ID, space.Name, space.Description, fmtTime(space.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, spiralerr.AlreadyExists("space", name)
		}
		return nil, spiralerr.StoreError("failed to create space", err)
	}
	return space, nil
}

// Get returns a space by id.
func (r *SpaceRepo) Get(ctx context.Context, id string) (*Space, error) {
	return r.getWhere(ctx, `id = ?`, id)
}

// GetByName returns a space by case-insensitive name.
func (r *SpaceRepo) GetByName(ctx context.Context, name string) (*Space, error) {
	return r.getWhere(ctx, `LOWER(name) = LOWER(?)`, name)
}

func (r *SpaceRepo) getWhere(ctx context.Context, where string, arg any) (*Space, error) {
	row := r.s.db.QueryRowContext(ctx,
		`SELECT id, name, description, settings, created_at FROM spaces WHERE `+where, arg)

	var sp Space
	var settings, createdAt string
	if err := row.Scan(&sp.ID, &sp.Name, &sp.Description, &settings, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if s, ok := arg.(string); ok {
				return nil, spiralerr.NotFound("space", s)
			}
			return nil, spiralerr.NotFound("space", "")
		}
		return nil, spiralerr.StoreError("failed to load space", err)
	}
	sp.Settings = unmarshalMeta(settings)
	sp.CreatedAt = parseTime(createdAt)
	return &sp, nil
}

// List returns all spaces ordered by creation time.
func (r *SpaceRepo) List(ctx context.Context) ([]*Space, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT id, name, description, settings, created_at FROM spaces ORDER BY created_at`)
	if err != nil {
		return nil, spiralerr.StoreError("failed to list spaces", err)
	}
	defer rows.Close()

	var spaces []*Space
	for rows.Next() {
		var sp Space
		var settings, createdAt string
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Description, &settings, &createdAt); err != nil {
			return nil, spiralerr.StoreError("failed to scan space", err)
		}
		sp.Settings = unmarshalMeta(settings)
		sp.CreatedAt = parseTime(createdAt)
		spaces = append(spaces, &sp)
	}
	return spaces, rows.Err()
}

// Delete removes a space; memories cascade.
func (r *SpaceRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM spaces WHERE id = ?`, id)
	if err != nil {
		return spiralerr.StoreError("failed to delete space", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return spiralerr.NotFound("space", id)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite uniqueness failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
