package pipeline

import (
	"context"

	"github.com/spiralmem/spiralmem/internal/platform"
	"github.com/spiralmem/spiralmem/internal/store"
)

// VideoDownloader materializes a platform URL as a local file.
type VideoDownloader interface {
	Download(ctx context.Context, url string, opts platform.DownloadOptions) (*platform.DownloadResult, error)
}

// ProcessURL downloads a platform video and runs the standard pipeline on
// the local file. The download's suggested title fills CustomTitle unless
// the caller set one. On success the video is indexed in platform_videos
// and each stored chunk gets a timestamped deep link.
func (p *Pipeline) ProcessURL(ctx context.Context, d VideoDownloader, url string, opts Options) (*Result, error) {
	plat, videoID, err := platform.ExtractVideoID(url)
	if err != nil {
		return nil, err
	}

	dl, err := d.Download(ctx, url, platform.DownloadOptions{
		OutputDir: opts.OutputDirectory,
	})
	if err != nil {
		return nil, err
	}

	if opts.CustomTitle == "" {
		opts.CustomTitle = dl.SuggestedTitle
	}
	if plat == store.PlatformYouTube {
		opts.SourceType = store.SourceTypeYouTube
	} else {
		opts.SourceType = store.SourceTypePlatform
	}

	result, err := p.Process(ctx, dl.FilePath, opts)
	if err != nil || result == nil || result.MemoryID == "" {
		return result, err
	}
	p.indexPlatformVideo(ctx, plat, videoID, url, dl, result)
	return result, nil
}

// indexPlatformVideo records the platform identity of an ingested memory
// and creates deep links into each chunk's start offset. Indexing failures
// downgrade to warnings; the memory itself is already stored.
func (p *Pipeline) indexPlatformVideo(ctx context.Context, plat store.Platform, videoID, url string, dl *platform.DownloadResult, result *Result) {
	pv, err := p.store.Platform.UpsertVideo(ctx, &store.PlatformVideo{
		MemoryID:         result.MemoryID,
		Platform:         plat,
		PlatformVideoID:  videoID,
		VideoURL:         url,
		DurationSec:      dl.DurationSec,
		PlatformMetadata: dl.Metadata,
	})
	if err != nil {
		p.log.Warn("platform video indexing failed", "url", url, "error", err)
		result.Warnings = append(result.Warnings, "platform indexing failed: "+err.Error())
		return
	}

	if result.TranscriptAvailable {
		if pc, err := p.store.Content.GetByMemoryID(ctx, result.MemoryID); err == nil && pc.Transcript != nil {
			if _, err := p.store.Platform.SaveTranscript(ctx, pv.ID, pc.Transcript); err != nil {
				p.log.Warn("platform transcript save failed", "url", url, "error", err)
			}
		}
	}

	chunks, err := p.store.Chunks.FindByMemoryIDs(ctx, []string{result.MemoryID})
	if err != nil {
		p.log.Warn("deep link chunk lookup failed", "memory_id", result.MemoryID, "error", err)
		return
	}
	for _, c := range chunks {
		if c.StartOffsetMs == nil {
			continue
		}
		startSec := float64(*c.StartOffsetMs) / 1000
		link, err := platform.DeepLinkURL(plat, videoID, int64(startSec))
		if err != nil {
			// Platform has no timestamped URL scheme; nothing to store.
			return
		}
		dlRow := &store.DeepLink{
			VideoID:           pv.ID,
			VideoType:         store.VideoTypePlatform,
			TimestampStartSec: startSec,
			DeeplinkURL:       link,
			ContextSummary:    summarize(c.ChunkText),
			ConfidenceScore:   1,
		}
		if c.EndOffsetMs != nil {
			endSec := float64(*c.EndOffsetMs) / 1000
			dlRow.TimestampEndSec = &endSec
		}
		if _, err := p.store.DeepLinks.Create(ctx, dlRow); err != nil {
			p.log.Warn("deep link creation failed", "memory_id", result.MemoryID, "error", err)
			return
		}
	}
}

// summarize trims chunk text to a short context line for deep link rows.
func summarize(text string) string {
	const max = 120
	if len(text) <= max {
		return text
	}
	return text[:max]
}
