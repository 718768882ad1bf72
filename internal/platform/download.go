package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// DownloadOptions caps a single-video download.
type DownloadOptions struct {
	Quality     int           // max video height, default 720
	MaxSizeMB   int           // default 500
	MaxDuration time.Duration // default 1 hour
	OutputDir   string
	Format      string // output container, default mp4
}

// DownloadResult describes one materialized video file.
type DownloadResult struct {
	FilePath       string         `json:"filePath"`
	SuggestedTitle string         `json:"suggestedTitle"`
	DurationSec    float64        `json:"durationSec"`
	FileSize       int64          `json:"fileSize"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Downloader wraps yt-dlp. Proxy and cookie support come from the
// YOUTUBE_PROXY_URL and YOUTUBE_COOKIES_PATH environment variables.
type Downloader struct {
	binary      string
	cookiesPath string
	proxyURL    string
	log         *slog.Logger
}

// NewDownloader builds a downloader around the yt-dlp binary; an empty path
// resolves via PATH at call time.
func NewDownloader(ytDlpPath string, log *slog.Logger) *Downloader {
	if log == nil {
		log = slog.Default()
	}
	if ytDlpPath == "" {
		ytDlpPath = "yt-dlp"
	}
	return &Downloader{
		binary:      ytDlpPath,
		cookiesPath: os.Getenv("YOUTUBE_COOKIES_PATH"),
		proxyURL:    os.Getenv("YOUTUBE_PROXY_URL"),
		log:         log,
	}
}

// Available reports whether yt-dlp can run.
func (d *Downloader) Available() bool {
	_, err := exec.LookPath(d.binary)
	return err == nil
}

func withDownloadDefaults(opts DownloadOptions) DownloadOptions {
	if opts.Quality <= 0 {
		opts.Quality = 720
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 500
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = time.Hour
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Format == "" {
		opts.Format = "mp4"
	}
	return opts
}

// Download materializes a single platform video as a local file.
func (d *Downloader) Download(ctx context.Context, url string, opts DownloadOptions) (*DownloadResult, error) {
	platform, videoID, err := ExtractVideoID(url)
	if err != nil {
		return nil, err
	}
	opts = withDownloadDefaults(opts)

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeDownloadFailed, "cannot create download directory")
	}

	// Metadata first so the duration cap is enforced before any bytes move.
	meta, err := d.probeMetadata(ctx, url)
	if err != nil {
		return nil, err
	}
	durationSec, _ := meta["duration"].(float64)
	if durationSec > opts.MaxDuration.Seconds() {
		return nil, spiralerr.New(spiralerr.ErrCodeDownloadFailed,
			fmt.Sprintf("video is %.0fs, exceeds the %s limit", durationSec, opts.MaxDuration)).
			WithSuggestion("raise platform.maxDownloadDuration in the config to download longer videos")
	}

	outputTemplate := filepath.Join(opts.OutputDir,
		fmt.Sprintf("%s_%s.%%(ext)s", platform, videoID))

	args := []string{
		url,
		"-f", fmt.Sprintf("bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]/best[height<=%d][ext=mp4]/best[height<=%d]",
			opts.Quality, opts.Quality, opts.Quality),
		"-o", outputTemplate,
		"--no-playlist",
		"--no-warnings",
		"--max-filesize", fmt.Sprintf("%dM", opts.MaxSizeMB),
		"--merge-output-format", opts.Format,
		"--restrict-filenames",
	}
	args = d.appendAuthArgs(args)

	if _, err := d.run(ctx, opts.MaxDuration+10*time.Minute, args...); err != nil {
		return nil, err
	}

	filePath := findDownloadedFile(opts.OutputDir, fmt.Sprintf("%s_%s", platform, videoID))
	if filePath == "" {
		return nil, spiralerr.New(spiralerr.ErrCodeDownloadFailed,
			"yt-dlp completed but the downloaded file was not found")
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeDownloadFailed, "downloaded file unreadable")
	}

	title, _ := meta["title"].(string)
	d.log.Info("video downloaded",
		"platform", string(platform),
		"video_id", videoID,
		"path", filePath,
		"size_bytes", info.Size())

	return &DownloadResult{
		FilePath:       filePath,
		SuggestedTitle: title,
		DurationSec:    durationSec,
		FileSize:       info.Size(),
		Metadata:       meta,
	}, nil
}

// SegmentRange is one cut window in milliseconds.
type SegmentRange struct {
	StartMs int64
	EndMs   int64
}

// SegmentResult reports one attempted segment download.
type SegmentResult struct {
	Range    SegmentRange `json:"range"`
	Success  bool         `json:"success"`
	FilePath string       `json:"filePath,omitempty"`
	Duration float64      `json:"duration"`
	Error    string       `json:"error,omitempty"`
}

// DownloadSegments fetches only the given time ranges of a video using
// yt-dlp section downloads. Per-segment failures are isolated.
func (d *Downloader) DownloadSegments(ctx context.Context, url string, ranges []SegmentRange, opts DownloadOptions) ([]SegmentResult, error) {
	platform, videoID, err := ExtractVideoID(url)
	if err != nil {
		return nil, err
	}
	opts = withDownloadDefaults(opts)

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeDownloadFailed, "cannot create download directory")
	}

	results := make([]SegmentResult, 0, len(ranges))
	for i, rg := range ranges {
		res := SegmentResult{
			Range:    rg,
			Duration: float64(rg.EndMs-rg.StartMs) / 1000,
		}
		if rg.EndMs <= rg.StartMs {
			res.Error = "segment end must be after start"
			results = append(results, res)
			continue
		}

		outputTemplate := filepath.Join(opts.OutputDir,
			fmt.Sprintf("%s_%s_seg%03d.%%(ext)s", platform, videoID, i))
		section := fmt.Sprintf("*%.3f-%.3f", float64(rg.StartMs)/1000, float64(rg.EndMs)/1000)

		args := []string{
			url,
			"-f", fmt.Sprintf("best[height<=%d]", opts.Quality),
			"-o", outputTemplate,
			"--no-playlist",
			"--no-warnings",
			"--download-sections", section,
			"--force-keyframes-at-cuts",
			"--merge-output-format", opts.Format,
		}
		args = d.appendAuthArgs(args)

		if _, err := d.run(ctx, 15*time.Minute, args...); err != nil {
			res.Error = err.Error()
			d.log.Warn("segment download failed", "url", url, "segment", i)
			results = append(results, res)
			continue
		}

		if path := findDownloadedFile(opts.OutputDir, fmt.Sprintf("%s_%s_seg%03d", platform, videoID, i)); path != "" {
			res.Success = true
			res.FilePath = path
		} else {
			res.Error = "segment file not found after download"
		}
		results = append(results, res)
	}
	return results, nil
}

// probeMetadata fetches video metadata without downloading.
func (d *Downloader) probeMetadata(ctx context.Context, url string) (map[string]any, error) {
	args := []string{url, "--dump-json", "--no-playlist", "--no-warnings"}
	args = d.appendAuthArgs(args)

	out, err := d.run(ctx, 2*time.Minute, args...)
	if err != nil {
		return nil, err
	}

	var meta map[string]any
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeDownloadFailed, "unparseable yt-dlp metadata")
	}
	return meta, nil
}

func (d *Downloader) appendAuthArgs(args []string) []string {
	if d.proxyURL != "" {
		args = append(args, "--proxy", d.proxyURL)
	}
	if d.cookiesPath != "" {
		if _, err := os.Stat(d.cookiesPath); err == nil {
			args = append(args, "--cookies", d.cookiesPath)
		}
	}
	return args
}

// run executes yt-dlp with a timeout and typed failures. Quota and
// throttling responses map to their own code so orchestrators can stop.
func (d *Downloader) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	bin, err := exec.LookPath(d.binary)
	if err != nil {
		return nil, spiralerr.New(spiralerr.ErrCodeDownloadFailed,
			"yt-dlp not found on PATH").
			WithSuggestion("install yt-dlp, or set platform.ytDlpPath in the config")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := strings.TrimSpace(stderr.String())
		if len(tail) > 1024 {
			tail = tail[len(tail)-1024:]
		}
		if isQuotaError(tail) {
			return nil, spiralerr.New(spiralerr.ErrCodeQuotaExceeded,
				"platform rejected the request due to rate limiting").
				WithDetail("stderr_tail", tail)
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, spiralerr.New(spiralerr.ErrCodeTimeout, "yt-dlp timed out").
				WithDetail("stderr_tail", tail)
		}
		return nil, spiralerr.Wrap(err, spiralerr.ErrCodeDownloadFailed, "yt-dlp failed").
			WithDetail("stderr_tail", tail)
	}
	return stdout.Bytes(), nil
}

// isQuotaError recognizes throttling responses in yt-dlp stderr.
func isQuotaError(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "429") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "quota") ||
		strings.Contains(s, "rate-limited") ||
		strings.Contains(s, "rate limited")
}

// findDownloadedFile locates the file yt-dlp wrote for an output prefix;
// the %(ext)s template means the extension is only known afterwards.
func findDownloadedFile(dir, prefix string) string {
	for _, ext := range []string{"mp4", "webm", "mkv", "m4a", "avi", "mov"} {
		candidate := filepath.Join(dir, prefix+"."+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
