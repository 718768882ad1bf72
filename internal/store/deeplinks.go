package store

import (
	"context"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// DeepLinkRepo manages the video_deeplinks table.
type DeepLinkRepo struct {
	s *storeCtx
}

// Create stores a timestamped deep link into a video moment.
func (r *DeepLinkRepo) Create(ctx context.Context, in *DeepLink) (*DeepLink, error) {
	if in.VideoID == "" || in.DeeplinkURL == "" {
		return nil, spiralerr.ValidationError("deep link requires video id and url", nil)
	}
	if in.ConfidenceScore < 0 || in.ConfidenceScore > 1 {
		return nil, spiralerr.ValidationError("deep link confidence must be in [0,1]", nil)
	}

	out := *in
	out.ID = r.s.newID()
	out.CreatedAt = r.s.now()

	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO video_deeplinks (id, video_id, video_type, timestamp_start_sec, timestamp_end_sec,
			deeplink_url, context_summary, search_keywords, confidence_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.VideoID, string(out.VideoType), out.TimestampStartSec,
		out.TimestampEndSec, out.DeeplinkURL, out.ContextSummary,
		out.SearchKeywords, out.ConfidenceScore, fmtTime(out.CreatedAt))
	if err != nil {
		return nil, spiralerr.StoreError("failed to create deep link", err)
	}
	return &out, nil
}

// ListByVideo returns deep links for a video ordered by start timestamp.
func (r *DeepLinkRepo) ListByVideo(ctx context.Context, videoID string) ([]*DeepLink, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, video_id, video_type, timestamp_start_sec, timestamp_end_sec,
		       deeplink_url, context_summary, search_keywords, confidence_score, created_at
		FROM video_deeplinks WHERE video_id = ? ORDER BY timestamp_start_sec ASC`, videoID)
	if err != nil {
		return nil, spiralerr.StoreError("failed to list deep links", err)
	}
	defer rows.Close()

	var links []*DeepLink
	for rows.Next() {
		var dl DeepLink
		var videoType, createdAt string
		if err := rows.Scan(&dl.ID, &dl.VideoID, &videoType, &dl.TimestampStartSec,
			&dl.TimestampEndSec, &dl.DeeplinkURL, &dl.ContextSummary,
			&dl.SearchKeywords, &dl.ConfidenceScore, &createdAt); err != nil {
			return nil, spiralerr.StoreError("failed to scan deep link", err)
		}
		dl.VideoType = VideoType(videoType)
		dl.CreatedAt = parseTime(createdAt)
		links = append(links, &dl)
	}
	return links, rows.Err()
}
