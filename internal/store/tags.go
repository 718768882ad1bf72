package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// TagRepo manages tags and the memory_tags join table.
type TagRepo struct {
	s *storeCtx
}

// Ensure returns the tag with the given name, creating it if needed.
// Names are unique case-insensitively.
func (r *TagRepo) Ensure(ctx context.Context, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, spiralerr.ValidationError("tag name must not be empty", nil)
	}

	if tag, err := r.getByName(ctx, name); err == nil {
		return tag, nil
	} else if !spiralerr.HasCode(err, spiralerr.ErrCodeNotFound) {
		return nil, err
	}

	tag := &Tag{ID: r.s.newID(), Name: name, CreatedAt: r.s.now()}
	_, err := r.s.db.ExecContext(ctx,
		`INSERT INTO tags (id, name, created_at) VALUES (?, ?, ?)`,
		tag.ID, tag.Name, fmtTime(tag.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			// Raced with a concurrent Ensure; read the winner.
			return r.getByName(ctx, name)
		}
		return nil, spiralerr.StoreError("failed to create tag", err)
	}
	return tag, nil
}

func (r *TagRepo) getByName(ctx context.Context, name string) (*Tag, error) {
	row := r.s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM tags WHERE LOWER(name) = LOWER(?)`, name)

	var tag Tag
	var createdAt string
	if err := row.Scan(&tag.ID, &tag.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, spiralerr.NotFound("tag", name)
		}
		return nil, spiralerr.StoreError("failed to load tag", err)
	}
	tag.CreatedAt = parseTime(createdAt)
	return &tag, nil
}

// Attach links a tag to a memory. Idempotent.
func (r *TagRepo) Attach(ctx context.Context, memoryID, tagID string) error {
	_, err := r.s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memory_tags (memory_id, tag_id) VALUES (?, ?)`,
		memoryID, tagID)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return spiralerr.NotFound("memory or tag", memoryID+"/"+tagID)
		}
		return spiralerr.StoreError("failed to attach tag", err)
	}
	return nil
}

// ListForMemory returns tags attached to a memory.
func (r *TagRepo) ListForMemory(ctx context.Context, memoryID string) ([]*Tag, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.created_at
		FROM tags t JOIN memory_tags mt ON mt.tag_id = t.id
		WHERE mt.memory_id = ? ORDER BY t.name`, memoryID)
	if err != nil {
		return nil, spiralerr.StoreError("failed to list tags", err)
	}
	defer rows.Close()

	var tags []*Tag
	for rows.Next() {
		var tag Tag
		var createdAt string
		if err := rows.Scan(&tag.ID, &tag.Name, &createdAt); err != nil {
			return nil, spiralerr.StoreError("failed to scan tag", err)
		}
		tag.CreatedAt = parseTime(createdAt)
		tags = append(tags, &tag)
	}
	return tags, rows.Err()
}

// Delete removes a tag; memory links cascade.
func (r *TagRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return spiralerr.StoreError("failed to delete tag", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return spiralerr.NotFound("tag", id)
	}
	return nil
}

// Count returns the number of tags.
func (r *TagRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&n); err != nil {
		return 0, spiralerr.StoreError("failed to count tags", err)
	}
	return n, nil
}
