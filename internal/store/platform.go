package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// PlatformRepo manages platform_videos and platform_transcripts.
type PlatformRepo struct {
	s *storeCtx
}

// UpsertVideo indexes a platform video, replacing any prior row for the
// same (platform, platformVideoID) pair.
func (r *PlatformRepo) UpsertVideo(ctx context.Context, in *PlatformVideo) (*PlatformVideo, error) {
	if in.Platform == "" || in.PlatformVideoID == "" {
		return nil, spiralerr.ValidationError("platform and platform video id must not be empty", nil)
	}

	out := *in
	if out.ID == "" {
		out.ID = r.s.newID()
	}
	out.LastIndexed = r.s.now()

	channelInfo, err := marshalMeta(out.ChannelInfo)
	if err != nil {
		return nil, err
	}
	playlistInfo, err := marshalMeta(out.PlaylistInfo)
	if err != nil {
		return nil, err
	}
	platformMeta, err := marshalMeta(out.PlatformMetadata)
	if err != nil {
		return nil, err
	}

	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO platform_videos (id, memory_id, platform, platform_video_id, video_url, thumbnail_url,
			duration_sec, upload_date, channel_info, playlist_info, platform_metadata, last_indexed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, platform_video_id) DO UPDATE SET
			memory_id = excluded.memory_id,
			video_url = excluded.video_url,
			thumbnail_url = excluded.thumbnail_url,
			duration_sec = excluded.duration_sec,
			upload_date = excluded.upload_date,
			channel_info = excluded.channel_info,
			playlist_info = excluded.playlist_info,
			platform_metadata = excluded.platform_metadata,
			last_indexed = excluded.last_indexed`,
		out.ID, out.MemoryID, string(out.Platform), out.PlatformVideoID,
		out.VideoURL, out.ThumbnailURL, out.DurationSec, out.UploadDate,
		channelInfo, playlistInfo, platformMeta, fmtTime(out.LastIndexed))
	if err != nil {
		return nil, spiralerr.StoreError("failed to upsert platform video", err)
	}
	return &out, nil
}

// GetVideo returns the indexed row for a (platform, id) pair.
func (r *PlatformRepo) GetVideo(ctx context.Context, platform Platform, platformVideoID string) (*PlatformVideo, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, memory_id, platform, platform_video_id, video_url, thumbnail_url,
		       duration_sec, upload_date, channel_info, playlist_info, platform_metadata, last_indexed
		FROM platform_videos WHERE platform = ? AND platform_video_id = ?`,
		string(platform), platformVideoID)

	var pv PlatformVideo
	var platformStr, channelInfo, playlistInfo, platformMeta, lastIndexed string
	err := row.Scan(&pv.ID, &pv.MemoryID, &platformStr, &pv.PlatformVideoID,
		&pv.VideoURL, &pv.ThumbnailURL, &pv.DurationSec, &pv.UploadDate,
		&channelInfo, &playlistInfo, &platformMeta, &lastIndexed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, spiralerr.NotFound("platform video", platformVideoID)
		}
		return nil, spiralerr.StoreError("failed to load platform video", err)
	}
	pv.Platform = Platform(platformStr)
	pv.ChannelInfo = unmarshalMeta(channelInfo)
	pv.PlaylistInfo = unmarshalMeta(playlistInfo)
	pv.PlatformMetadata = unmarshalMeta(platformMeta)
	pv.LastIndexed = parseTime(lastIndexed)
	return &pv, nil
}

// SaveTranscript stores (or replaces) the transcript for a platform video.
func (r *PlatformRepo) SaveTranscript(ctx context.Context, platformVideoID string, transcript *Transcript) (*PlatformTranscript, error) {
	if platformVideoID == "" || transcript == nil {
		return nil, spiralerr.ValidationError("platform video id and transcript are required", nil)
	}

	data, err := json.Marshal(transcript)
	if err != nil {
		return nil, spiralerr.StoreError("failed to marshal transcript", err)
	}

	pt := &PlatformTranscript{
		ID:              r.s.newID(),
		PlatformVideoID: platformVideoID,
		Transcript:      transcript,
		CreatedAt:       r.s.now(),
	}

	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO platform_transcripts (id, platform_video_id, transcript, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (platform_video_id) DO UPDATE SET
			transcript = excluded.transcript, created_at = excluded.created_at`,
		pt.ID, pt.PlatformVideoID, string(data), fmtTime(pt.CreatedAt))
	if err != nil {
		return nil, spiralerr.StoreError("failed to save platform transcript", err)
	}
	return pt, nil
}

// GetTranscript returns the transcript for a platform video id.
func (r *PlatformRepo) GetTranscript(ctx context.Context, platformVideoID string) (*PlatformTranscript, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, platform_video_id, transcript, created_at
		FROM platform_transcripts WHERE platform_video_id = ?`, platformVideoID)

	var pt PlatformTranscript
	var transcript, createdAt string
	if err := row.Scan(&pt.ID, &pt.PlatformVideoID, &transcript, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, spiralerr.NotFound("platform transcript", platformVideoID)
		}
		return nil, spiralerr.StoreError("failed to load platform transcript", err)
	}

	var t Transcript
	if err := json.Unmarshal([]byte(transcript), &t); err != nil {
		return nil, spiralerr.StoreError("corrupt platform transcript", err)
	}
	pt.Transcript = &t
	pt.CreatedAt = parseTime(createdAt)
	return &pt, nil
}
