package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// EmbeddingRepo manages the vector_embeddings table.
type EmbeddingRepo struct {
	s *storeCtx
}

// Upsert stores an embedding, replacing any prior row for the same
// (contentID, contentType, model) key. Vectors must be finite.
func (r *EmbeddingRepo) Upsert(ctx context.Context, contentID string, contentType EmbeddingContentType, model string, vector []float32) (*VectorEmbedding, error) {
	if contentID == "" || model == "" {
		return nil, spiralerr.ValidationError("embedding content id and model must not be empty", nil)
	}
	if len(vector) == 0 {
		return nil, spiralerr.ValidationError("embedding vector must not be empty", nil)
	}
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, spiralerr.ValidationError(
				fmt.Sprintf("embedding vector component %d is not finite", i), nil)
		}
	}

	emb := &VectorEmbedding{
		ID:          embeddingKey(contentID, contentType, model),
		ContentID:   contentID,
		ContentType: contentType,
		Model:       model,
		Dimensions:  len(vector),
		Vector:      vector,
		CreatedAt:   r.s.now(),
	}

	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO vector_embeddings (id, content_id, content_type, embedding_model, dimensions, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_id, content_type, embedding_model)
		DO UPDATE SET dimensions = excluded.dimensions, vector = excluded.vector, created_at = excluded.created_at`,
		emb.ID, emb.ContentID, string(emb.ContentType), emb.Model,
		emb.Dimensions, encodeVector(vector), fmtTime(emb.CreatedAt))
	if err != nil {
		return nil, spiralerr.StoreError("failed to upsert embedding", err)
	}
	return emb, nil
}

// Get returns the embedding for a content key, with the full vector.
func (r *EmbeddingRepo) Get(ctx context.Context, contentID string, contentType EmbeddingContentType, model string) (*VectorEmbedding, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, content_id, content_type, embedding_model, dimensions, vector, created_at
		FROM vector_embeddings
		WHERE content_id = ? AND content_type = ? AND embedding_model = ?`,
		contentID, string(contentType), model)

	emb, err := scanEmbedding(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, spiralerr.NotFound("embedding", contentID)
		}
		return nil, spiralerr.StoreError("failed to load embedding", err)
	}
	return emb, nil
}

// ListByModel returns all embeddings indexed with the given model.
func (r *EmbeddingRepo) ListByModel(ctx context.Context, model string) ([]*VectorEmbedding, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, content_id, content_type, embedding_model, dimensions, vector, created_at
		FROM vector_embeddings WHERE embedding_model = ?`, model)
	if err != nil {
		return nil, spiralerr.StoreError("failed to list embeddings", err)
	}
	defer rows.Close()

	var embeddings []*VectorEmbedding
	for rows.Next() {
		emb, err := scanEmbedding(rows)
		if err != nil {
			return nil, spiralerr.StoreError("failed to scan embedding", err)
		}
		embeddings = append(embeddings, emb)
	}
	return embeddings, rows.Err()
}

// HasContent reports whether an embedding exists for the content key.
func (r *EmbeddingRepo) HasContent(ctx context.Context, contentID string, contentType EmbeddingContentType, model string) (bool, error) {
	var n int
	err := r.s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM vector_embeddings
		WHERE content_id = ? AND content_type = ? AND embedding_model = ?`,
		contentID, string(contentType), model).Scan(&n)
	if err != nil {
		return false, spiralerr.StoreError("failed to check embedding", err)
	}
	return n > 0, nil
}

// DeleteByContent removes all embeddings for a content id.
func (r *EmbeddingRepo) DeleteByContent(ctx context.Context, contentID string) error {
	_, err := r.s.db.ExecContext(ctx,
		`DELETE FROM vector_embeddings WHERE content_id = ?`, contentID)
	if err != nil {
		return spiralerr.StoreError("failed to delete embeddings", err)
	}
	return nil
}

// Stats summarizes the table for the vector-stats command.
func (r *EmbeddingRepo) Stats(ctx context.Context) (*EmbeddingStats, error) {
	stats := &EmbeddingStats{
		ByContentType: map[string]int{},
		ByModel:       map[string]int{},
	}

	rows, err := r.s.db.QueryContext(ctx, `
		SELECT content_type, embedding_model, COUNT(*), AVG(dimensions)
		FROM vector_embeddings GROUP BY content_type, embedding_model`)
	if err != nil {
		return nil, spiralerr.StoreError("failed to compute embedding stats", err)
	}
	defer rows.Close()

	var weightedDims float64
	for rows.Next() {
		var contentType, model string
		var count int
		var avgDims float64
		if err := rows.Scan(&contentType, &model, &count, &avgDims); err != nil {
			return nil, spiralerr.StoreError("failed to scan embedding stats", err)
		}
		stats.TotalEmbeddings += count
		stats.ByContentType[contentType] += count
		stats.ByModel[model] += count
		weightedDims += avgDims * float64(count)
	}
	if stats.TotalEmbeddings > 0 {
		stats.AvgDimensions = weightedDims / float64(stats.TotalEmbeddings)
	}
	return stats, rows.Err()
}

// embeddingKey builds the composite primary key.
func embeddingKey(contentID string, contentType EmbeddingContentType, model string) string {
	return contentID + ":" + string(contentType) + ":" + model
}

// encodeVector serializes a float32 vector as a little-endian blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector deserializes a little-endian float32 blob.
func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func scanEmbedding(row rowScanner) (*VectorEmbedding, error) {
	var emb VectorEmbedding
	var contentType, createdAt string
	var blob []byte
	if err := row.Scan(&emb.ID, &emb.ContentID, &contentType, &emb.Model,
		&emb.Dimensions, &blob, &createdAt); err != nil {
		return nil, err
	}
	emb.ContentType = EmbeddingContentType(contentType)
	emb.Vector = decodeVector(blob)
	emb.CreatedAt = parseTime(createdAt)
	return &emb, nil
}
