package store

import (
	"context"
	"fmt"
	"strings"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// ChunkRepo manages the chunks table.
type ChunkRepo struct {
	s *storeCtx
}

// CreateChunkInput is the input for ChunkRepo.Create.
type CreateChunkInput struct {
	MemoryID      string
	ChunkText     string
	ChunkOrder    int
	StartOffsetMs *int64
	EndOffsetMs   *int64
	Metadata      map[string]any
}

// Create inserts a chunk. Duplicate (memoryID, chunkOrder) pairs are
// rejected with AlreadyExists.
func (r *ChunkRepo) Create(ctx context.Context, in CreateChunkInput) (*Chunk, error) {
	if in.MemoryID == "" {
		return nil, spiralerr.ValidationError("chunk memory id must not be empty", nil)
	}
	if in.ChunkOrder < 0 {
		return nil, spiralerr.ValidationError("chunk order must be non-negative", nil)
	}

	chunk := &Chunk{
		ID:            r.s.newID(),
		MemoryID:      in.MemoryID,
		ChunkText:     in.ChunkText,
		ChunkOrder:    in.ChunkOrder,
		StartOffsetMs: in.StartOffsetMs,
		EndOffsetMs:   in.EndOffsetMs,
		Metadata:      in.Metadata,
		CreatedAt:     r.s.now(),
	}
	if chunk.Metadata == nil {
		chunk.Metadata = map[string]any{}
	}

	meta, err := marshalMeta(chunk.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, memory_id, chunk_text, chunk_order, start_offset_ms, end_offset_ms, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.MemoryID, chunk.ChunkText, chunk.ChunkOrder,
		chunk.StartOffsetMs, chunk.EndOffsetMs, meta, fmtTime(chunk.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, spiralerr.AlreadyExists("chunk",
				fmt.Sprintf("%s#%d", in.MemoryID, in.ChunkOrder))
		}
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return nil, spiralerr.NotFound("memory", in.MemoryID)
		}
		return nil, spiralerr.StoreError("failed to create chunk", err)
	}
	return chunk, nil
}

// FindByMemoryIDs returns chunks for the given memories, ordered by
// (memory_id asc, chunk_order asc).
func (r *ChunkRepo) FindByMemoryIDs(ctx context.Context, memoryIDs []string) ([]*Chunk, error) {
	if len(memoryIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(memoryIDs))
	args := make([]any, len(memoryIDs))
	for i, id := range memoryIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := r.s.db.QueryContext(ctx,
		selectChunk+` WHERE memory_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY memory_id ASC, chunk_order ASC`, args...)
	if err != nil {
		return nil, spiralerr.StoreError("failed to load chunks", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

// Get returns a chunk by id.
func (r *ChunkRepo) Get(ctx context.Context, id string) (*Chunk, error) {
	rows, err := r.s.db.QueryContext(ctx, selectChunk+` WHERE id = ?`, id)
	if err != nil {
		return nil, spiralerr.StoreError("failed to load chunk", err)
	}
	defer rows.Close()

	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, spiralerr.NotFound("chunk", id)
	}
	return chunks[0], nil
}

// GetMany returns chunks by id, keyed for enrichment.
func (r *ChunkRepo) GetMany(ctx context.Context, ids []string) (map[string]*Chunk, error) {
	result := make(map[string]*Chunk, len(ids))
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
		selectChunk+` WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, spiralerr.StoreError("failed to load chunks", err)
	}
	defer rows.Close()

	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		result[c.ID] = c
	}
	return result, nil
}

// Count returns the total number of chunks, optionally for one memory.
func (r *ChunkRepo) Count(ctx context.Context, memoryID string) (int, error) {
	q := `SELECT COUNT(*) FROM chunks`
	var args []any
	if memoryID != "" {
		q += ` WHERE memory_id = ?`
		args = append(args, memoryID)
	}
	var n int
	if err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, spiralerr.StoreError("failed to count chunks", err)
	}
	return n, nil
}

// Search returns chunks whose text contains term as a case-insensitive
// substring, optionally restricted to the given memories.
func (r *ChunkRepo) Search(ctx context.Context, term string, memoryIDs []string, limit int) ([]*Chunk, error) {
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	q := selectChunk + ` WHERE LOWER(chunk_text) LIKE ?`
	args := []any{"%" + strings.ToLower(term) + "%"}

	if len(memoryIDs) > 0 {
		placeholders := make([]string, len(memoryIDs))
		for i, id := range memoryIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		q += ` AND memory_id IN (` + strings.Join(placeholders, ",") + `)`
	}
	q += fmt.Sprintf(` ORDER BY memory_id ASC, chunk_order ASC LIMIT %d`, limit)

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, spiralerr.StoreError("failed to search chunks", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

// AllIDs returns every chunk id, for consistency checks and reindexing.
func (r *ChunkRepo) AllIDs(ctx context.Context) ([]string, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT id FROM chunks ORDER BY memory_id, chunk_order`)
	if err != nil {
		return nil, spiralerr.StoreError("failed to list chunk ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, spiralerr.StoreError("failed to scan chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const selectChunk = `SELECT id, memory_id, chunk_text, chunk_order, start_offset_ms, end_offset_ms, metadata, created_at FROM chunks`

type sqlRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectChunks(rows sqlRows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var meta, createdAt string
		if err := rows.Scan(&c.ID, &c.MemoryID, &c.ChunkText, &c.ChunkOrder,
			&c.StartOffsetMs, &c.EndOffsetMs, &meta, &createdAt); err != nil {
			return nil, spiralerr.StoreError("failed to scan chunk", err)
		}
		c.Metadata = unmarshalMeta(meta)
		c.CreatedAt = parseTime(createdAt)
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}
