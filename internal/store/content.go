package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// ContentRepo manages the processed_video_content table.
type ContentRepo struct {
	s *storeCtx
}

// Create stores the 1:1 snapshot of a completed job's output. The memory row
// must already exist; both writes happen inside the caller's transaction if
// one is supplied via CreateTx.
func (r *ContentRepo) Create(ctx context.Context, in *ProcessedContent) (*ProcessedContent, error) {
	return r.create(ctx, r.s.db, in)
}

// CreateTx stores the snapshot inside an existing transaction.
func (r *ContentRepo) CreateTx(ctx context.Context, tx *sql.Tx, in *ProcessedContent) (*ProcessedContent, error) {
	return r.create(ctx, tx, in)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *ContentRepo) create(ctx context.Context, db execer, in *ProcessedContent) (*ProcessedContent, error) {
	if in.JobID == "" || in.MemoryID == "" {
		return nil, spiralerr.ValidationError("processed content requires job and memory ids", nil)
	}

	out := *in
	out.ID = r.s.newID()
	out.CreatedAt = r.s.now()
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}

	var transcript any
	if out.Transcript != nil {
		data, err := json.Marshal(out.Transcript)
		if err != nil {
			return nil, spiralerr.StoreError("failed to marshal transcript", err)
		}
		transcript = string(data)
	}

	meta, err := marshalMeta(out.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO processed_video_content (id, job_id, memory_id, transcript, chunk_count, embedding_count, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.JobID, out.MemoryID, transcript,
		out.ChunkCount, out.EmbeddingCount, meta, fmtTime(out.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, spiralerr.AlreadyExists("processed content", in.JobID)
		}
		return nil, spiralerr.StoreError("failed to store processed content", err)
	}
	return &out, nil
}

// GetByJobID returns the snapshot for a job.
func (r *ContentRepo) GetByJobID(ctx context.Context, jobID string) (*ProcessedContent, error) {
	return r.getWhere(ctx, `job_id = ?`, jobID)
}

// GetByMemoryID returns the snapshot for a memory.
func (r *ContentRepo) GetByMemoryID(ctx context.Context, memoryID string) (*ProcessedContent, error) {
	return r.getWhere(ctx, `memory_id = ?`, memoryID)
}

func (r *ContentRepo) getWhere(ctx context.Context, where string, arg any) (*ProcessedContent, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, job_id, memory_id, transcript, chunk_count, embedding_count, metadata, created_at
		FROM processed_video_content WHERE `+where, arg)

	pc, err := scanProcessedContent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if s, ok := arg.(string); ok {
				return nil, spiralerr.NotFound("processed content", s)
			}
			return nil, spiralerr.NotFound("processed content", "")
		}
		return nil, spiralerr.StoreError("failed to load processed content", err)
	}
	return pc, nil
}

// SearchTranscripts returns snapshots whose transcript full text contains
// the term as a case-insensitive substring.
func (r *ContentRepo) SearchTranscripts(ctx context.Context, term string, limit int) ([]*ProcessedContent, error) {
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	// Transcript full text lives at $.full_text inside the JSON column.
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, job_id, memory_id, transcript, chunk_count, embedding_count, metadata, created_at
		FROM processed_video_content
		WHERE transcript IS NOT NULL
		  AND LOWER(json_extract(transcript, '$.full_text')) LIKE ?
		ORDER BY created_at DESC LIMIT ?`,
		"%"+strings.ToLower(term)+"%", limit)
	if err != nil {
		return nil, spiralerr.StoreError("failed to search transcripts", err)
	}
	defer rows.Close()

	var results []*ProcessedContent
	for rows.Next() {
		pc, err := scanProcessedContent(rows)
		if err != nil {
			return nil, spiralerr.StoreError("failed to scan processed content", err)
		}
		results = append(results, pc)
	}
	return results, rows.Err()
}

func scanProcessedContent(row rowScanner) (*ProcessedContent, error) {
	var pc ProcessedContent
	var transcript sql.NullString
	var meta, createdAt string
	if err := row.Scan(&pc.ID, &pc.JobID, &pc.MemoryID, &transcript,
		&pc.ChunkCount, &pc.EmbeddingCount, &meta, &createdAt); err != nil {
		return nil, err
	}
	if transcript.Valid && transcript.String != "" {
		var t Transcript
		if err := json.Unmarshal([]byte(transcript.String), &t); err == nil {
			pc.Transcript = &t
		}
	}
	pc.Metadata = unmarshalMeta(meta)
	pc.CreatedAt = parseTime(createdAt)
	return &pc, nil
}
