package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// MemoryRepo manages the memories table.
type MemoryRepo struct {
	s *storeCtx
}

// CreateMemoryInput is the input for MemoryRepo.Create.
type CreateMemoryInput struct {
	SpaceID     string
	ContentType ContentType
	Title       string
	Content     string
	Source      string
	FilePath    string
	Metadata    map[string]any
}

// Create inserts a memory, assigning id and timestamps. An empty SpaceID
// defaults to the default space.
func (r *MemoryRepo) Create(ctx context.Context, in CreateMemoryInput) (*Memory, error) {
	if in.ContentType == "" {
		return nil, spiralerr.ValidationError("memory content type must not be empty", nil)
	}

	spaceID := in.SpaceID
	if spaceID == "" {
		def, err := (&SpaceRepo{r.s}).EnsureDefault(ctx)
		if err != nil {
			return nil, err
		}
		spaceID = def.ID
	}

	now := r.s.now()
	mem := &Memory{
		ID:          r.s.newID(),
		SpaceID:     spaceID,
		ContentType: in.ContentType,
		Title:       in.Title,
		Content:     in.Content,
		Source:      in.Source,
		FilePath:    in.FilePath,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if mem.Metadata == nil {
		mem.Metadata = map[string]any{}
	}

	meta, err := marshalMeta(mem.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO memories (id, space_id, content_type, title, content, source, file_path, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.SpaceID, string(mem.ContentType), mem.Title, mem.Content,
		mem.Source, mem.FilePath, meta, fmtTime(now), fmtTime(now))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return nil, spiralerr.Wrap(err, spiralerr.ErrCodeInvalidSpace, "space does not exist: "+spaceID)
		}
		return nil, spiralerr.StoreError("failed to create memory", err)
	}
	return mem, nil
}

// Get returns a memory by id.
func (r *MemoryRepo) Get(ctx context.Context, id string) (*Memory, error) {
	row := r.s.db.QueryRowContext(ctx, selectMemory+` WHERE id = ?`, id)
	mem, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, spiralerr.NotFound("memory", id)
		}
		return nil, spiralerr.StoreError("failed to load memory", err)
	}
	return mem, nil
}

// GetBySource returns the memory whose source matches exactly.
func (r *MemoryRepo) GetBySource(ctx context.Context, source string) (*Memory, error) {
	row := r.s.db.QueryRowContext(ctx, selectMemory+` WHERE source = ? ORDER BY created_at DESC LIMIT 1`, source)
	mem, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, spiralerr.NotFound("memory", source)
		}
		return nil, spiralerr.StoreError("failed to load memory", err)
	}
	return mem, nil
}

// GetMany returns memories by id, keyed for enrichment.
func (r *MemoryRepo) GetMany(ctx context.Context, ids []string) (map[string]*Memory, error) {
	result := make(map[string]*Memory, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := r.s.db.QueryContext(ctx,
		selectMemory+` WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, spiralerr.StoreError("failed to load memories", err)
	}
	defer rows.Close()

	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, spiralerr.StoreError("failed to scan memory", err)
		}
		result[mem.ID] = mem
	}
	return result, rows.Err()
}

// Search returns memories whose title or content contains the query as a
// substring (case-insensitive), with optional filters. An empty query
// returns everything up to the limit, ordered by created_at desc.
func (r *MemoryRepo) Search(ctx context.Context, query string, filter MemoryFilter) ([]*Memory, error) {
	var conds []string
	var args []any

	if q := strings.TrimSpace(query); q != "" {
		conds = append(conds, `(LOWER(title) LIKE ? OR LOWER(content) LIKE ?)`)
		pat := "%" + strings.ToLower(q) + "%"
		args = append(args, pat, pat)
	}
	if filter.SpaceID != "" {
		conds = append(conds, `space_id = ?`)
		args = append(args, filter.SpaceID)
	}
	if len(filter.ContentTypes) > 0 {
		placeholders := make([]string, len(filter.ContentTypes))
		for i, ct := range filter.ContentTypes {
			placeholders[i] = "?"
			args = append(args, string(ct))
		}
		conds = append(conds, `content_type IN (`+strings.Join(placeholders, ",")+`)`)
	}
	if filter.From != nil {
		conds = append(conds, `created_at >= ?`)
		args = append(args, fmtTime(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, `created_at <= ?`)
		args = append(args, fmtTime(*filter.To))
	}

	q := selectMemory
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q += fmt.Sprintf(` LIMIT %d OFFSET %d`, limit, max(filter.Offset, 0))

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, spiralerr.StoreError("failed to search memories", err)
	}
	defer rows.Close()

	var memories []*Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, spiralerr.StoreError("failed to scan memory", err)
		}
		memories = append(memories, mem)
	}
	return memories, rows.Err()
}

// Count returns the number of memories, optionally per space.
func (r *MemoryRepo) Count(ctx context.Context, spaceID string) (int, error) {
	q := `SELECT COUNT(*) FROM memories`
	var args []any
	if spaceID != "" {
		q += ` WHERE space_id = ?`
		args = append(args, spaceID)
	}
	var n int
	if err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, spiralerr.StoreError("failed to count memories", err)
	}
	return n, nil
}

// CountByType returns memory counts grouped by content type.
func (r *MemoryRepo) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT content_type, COUNT(*) FROM memories GROUP BY content_type`)
	if err != nil {
		return nil, spiralerr.StoreError("failed to count memories by type", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ct string
		var n int
		if err := rows.Scan(&ct, &n); err != nil {
			return nil, spiralerr.StoreError("failed to scan memory counts", err)
		}
		counts[ct] = n
	}
	return counts, rows.Err()
}

// Delete removes a memory; chunks cascade.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return spiralerr.StoreError("failed to delete memory", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return spiralerr.NotFound("memory", id)
	}
	return nil
}

const selectMemory = `SELECT id, space_id, content_type, title, content, source, file_path, metadata, created_at, updated_at FROM memories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var mem Memory
	var contentType, meta, createdAt, updatedAt string
	if err := row.Scan(&mem.ID, &mem.SpaceID, &contentType, &mem.Title, &mem.Content,
		&mem.Source, &mem.FilePath, &meta, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	mem.ContentType = ContentType(contentType)
	mem.Metadata = unmarshalMeta(meta)
	mem.CreatedAt = parseTime(createdAt)
	mem.UpdatedAt = parseTime(updatedAt)
	return &mem, nil
}
