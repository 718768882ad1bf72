// Package channel orchestrates bulk ingestion of a platform channel:
// discovery, filtering, prioritization, and batched dispatch of per-video
// jobs through the ingestion pipeline.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spiralmem/spiralmem/internal/batch"
	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
	"github.com/spiralmem/spiralmem/internal/pipeline"
	"github.com/spiralmem/spiralmem/internal/platform"
)

// PriorityMode orders discovered videos before dispatch.
type PriorityMode string

const (
	PriorityNewestFirst PriorityMode = "newest-first"
	PriorityOldestFirst PriorityMode = "oldest-first"
	PriorityMostPopular PriorityMode = "most-popular"
	PriorityLongest     PriorityMode = "longest-first"
)

const shortsMaxDurationSec = 60

// FilterOptions drops videos before any download happens.
type FilterOptions struct {
	MinDurationSec     float64
	MaxDurationSec     float64
	IncludeShorts      bool
	IncludeLiveStreams bool
	KeywordFilter      []string
	ExcludeKeywords    []string
}

// ProcessingOptions tunes the dispatch of accepted videos.
type ProcessingOptions struct {
	BatchSize            int
	ConcurrentProcessing int
	PipelineOptions      pipeline.Options
}

// Options is the full orchestrator input.
type Options struct {
	MaxVideos  int
	Filter     FilterOptions
	Processing ProcessingOptions
	Priority   PriorityMode
	DryRun     bool
	OnProgress func(Progress)
}

// Progress is emitted on every per-video state change.
type Progress struct {
	Stage                 string  `json:"stage"`
	VideoID               string  `json:"videoId,omitempty"`
	VideoTitle            string  `json:"videoTitle,omitempty"`
	TotalToProcess        int     `json:"totalToProcess"`
	SuccessfullyProcessed int     `json:"successfullyProcessed"`
	FailedProcessing      int     `json:"failedProcessing"`
	OverallProgressPct    float64 `json:"overallProgressPct"`
	EstimatedRemainingMs  int64   `json:"estimatedRemainingMs"`
}

// VideoOutcome is one video's end state.
type VideoOutcome struct {
	Video    platform.ChannelVideo `json:"video"`
	MemoryID string                `json:"memoryId,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// Report aggregates a channel run.
type Report struct {
	ChannelInfo     *platform.ChannelInfo `json:"channelInfo,omitempty"`
	Discovered      int                   `json:"discovered"`
	Accepted        int                   `json:"accepted"`
	Skipped         int                   `json:"skipped"`
	Succeeded       int                   `json:"succeeded"`
	Failed          int                   `json:"failed"`
	Outcomes        []VideoOutcome        `json:"outcomes"`
	Errors          []string              `json:"errors,omitempty"`
	Recommendations []string              `json:"recommendations,omitempty"`
	QuotaExhausted  bool                  `json:"quotaExhausted,omitempty"`
	Elapsed         time.Duration         `json:"-"`
}

// Orchestrator drives channel ingestion end to end.
type Orchestrator struct {
	lister     platform.ChannelLister
	downloader pipeline.VideoDownloader
	pipe       *pipeline.Pipeline
	log        *slog.Logger
}

// New wires the orchestrator.
func New(lister platform.ChannelLister, downloader pipeline.VideoDownloader, pipe *pipeline.Pipeline, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{lister: lister, downloader: downloader, pipe: pipe, log: log}
}

// Process discovers, filters, sorts, and ingests a channel's videos.
// Individual video failures are isolated; a quota error stops new
// dispatches but keeps the results gathered so far.
func (o *Orchestrator) Process(ctx context.Context, channelURL string, opts Options) (*Report, error) {
	start := time.Now()
	if opts.Processing.BatchSize <= 0 {
		opts.Processing.BatchSize = 5
	}
	if opts.Processing.ConcurrentProcessing <= 0 {
		opts.Processing.ConcurrentProcessing = 2
	}
	if opts.Priority == "" {
		opts.Priority = PriorityNewestFirst
	}

	info, videos, err := o.lister.ListVideos(ctx, channelURL, opts.MaxVideos)
	if err != nil {
		return nil, err
	}

	report := &Report{ChannelInfo: info, Discovered: len(videos)}
	accepted := FilterVideos(videos, opts.Filter)
	SortVideos(accepted, opts.Priority)
	report.Accepted = len(accepted)
	report.Skipped = report.Discovered - report.Accepted

	o.emit(opts, Progress{Stage: "discovered", TotalToProcess: len(accepted)})

	if opts.DryRun {
		for _, v := range accepted {
			report.Outcomes = append(report.Outcomes, VideoOutcome{Video: v})
		}
		report.Elapsed = time.Since(start)
		return report, nil
	}

	tracker := &progressTracker{total: len(accepted), start: start}

	for batchStart := 0; batchStart < len(accepted); batchStart += opts.Processing.BatchSize {
		end := batchStart + opts.Processing.BatchSize
		if end > len(accepted) {
			end = len(accepted)
		}
		outcomes, quota := o.runBatch(ctx, accepted[batchStart:end], opts, tracker)
		report.Outcomes = append(report.Outcomes, outcomes...)

		for _, out := range outcomes {
			if out.Error == "" {
				report.Succeeded++
				continue
			}
			report.Failed++
			report.Errors = append(report.Errors,
				fmt.Sprintf("%s: %s", out.Video.VideoID, out.Error))
		}
		if quota {
			report.QuotaExhausted = true
			report.Recommendations = append(report.Recommendations,
				"platform quota exhausted; retry remaining videos after the quota window resets")
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	if report.Failed > 0 && !report.QuotaExhausted {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%d of %d videos failed; rerun the channel to retry them", report.Failed, report.Accepted))
	}
	o.emit(opts, tracker.progress("completed", ""))
	report.Elapsed = time.Since(start)
	return report, nil
}

// runBatch pushes one slice of videos through the batch processor and
// reports whether a quota error surfaced.
func (o *Orchestrator) runBatch(ctx context.Context, videos []platform.ChannelVideo, opts Options, tracker *progressTracker) ([]VideoOutcome, bool) {
	// Per-video failures must never take down the rest of the batch.
	proc := batch.New[platform.ChannelVideo](batch.Options{
		Concurrency:     opts.Processing.ConcurrentProcessing,
		ItemTimeout:     30 * time.Minute,
		MaxRetries:      1,
		ContinueOnError: true,
		MemoryWatermark: 2 << 30,
	}, o.log)

	rep, _ := proc.Run(ctx, videos, func(itemCtx context.Context, v platform.ChannelVideo) error {
		o.emit(opts, tracker.progress("processing", v.VideoID))

		pipeOpts := opts.Processing.PipelineOptions
		if pipeOpts.CustomTitle == "" {
			pipeOpts.CustomTitle = v.Title
		}
		result, err := o.pipe.ProcessURL(itemCtx, o.downloader, v.URL, pipeOpts)
		if err != nil {
			tracker.markFailed(v.VideoID)
			o.emit(opts, tracker.progress("failed", v.VideoID))
			return err
		}
		tracker.markSucceeded(v.VideoID, result.MemoryID)
		o.emit(opts, tracker.progress("processed", v.VideoID))
		return nil
	})

	quota := false
	outcomes := make([]VideoOutcome, 0, len(videos))
	for _, r := range rep.Results {
		out := VideoOutcome{Video: r.Item}
		if r.Err != nil {
			out.Error = r.Err.Error()
			if spiralerr.HasCode(r.Err, spiralerr.ErrCodeQuotaExceeded) {
				quota = true
			}
		} else {
			out.MemoryID = tracker.memoryID(r.Item.VideoID)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, quota
}

func (o *Orchestrator) emit(opts Options, p Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}

// progressTracker aggregates cross-batch counters for progress events.
type progressTracker struct {
	mu        sync.Mutex
	total     int
	succeeded int
	failed    int
	start     time.Time
	memoryIDs map[string]string
}

func (t *progressTracker) markSucceeded(videoID, memoryID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.succeeded++
	if t.memoryIDs == nil {
		t.memoryIDs = map[string]string{}
	}
	t.memoryIDs[videoID] = memoryID
}

func (t *progressTracker) markFailed(videoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
}

func (t *progressTracker) memoryID(videoID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.memoryIDs[videoID]
}

func (t *progressTracker) progress(stage, videoID string) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	done := t.succeeded + t.failed
	var pct float64
	var remainingMs int64
	if t.total > 0 {
		pct = float64(done) / float64(t.total) * 100
	}
	if done > 0 && done < t.total {
		perItem := time.Since(t.start) / time.Duration(done)
		remainingMs = (perItem * time.Duration(t.total-done)).Milliseconds()
	}
	return Progress{
		Stage:                 stage,
		VideoID:               videoID,
		TotalToProcess:        t.total,
		SuccessfullyProcessed: t.succeeded,
		FailedProcessing:      t.failed,
		OverallProgressPct:    pct,
		EstimatedRemainingMs:  remainingMs,
	}
}
