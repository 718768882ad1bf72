package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"time"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
)

// ChannelVideo is one discovered video, metadata only.
type ChannelVideo struct {
	VideoID     string  `json:"videoId"`
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	DurationSec float64 `json:"durationSec"`
	ViewCount   int64   `json:"viewCount"`
	UploadDate  string  `json:"uploadDate"` // YYYYMMDD
	IsLive      bool    `json:"isLive"`
}

// ChannelInfo identifies the channel the videos came from.
type ChannelInfo struct {
	ChannelID  string `json:"channelId"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	VideoCount int    `json:"videoCount"`
}

// ChannelLister discovers the videos of a channel without downloading.
type ChannelLister interface {
	ListVideos(ctx context.Context, channelURL string, maxVideos int) (*ChannelInfo, []ChannelVideo, error)
}

// NewChannelLister picks the YouTube Data API when an API key is present
// and falls back to yt-dlp flat playlist extraction otherwise.
func NewChannelLister(apiKey string, d *Downloader, log *slog.Logger) ChannelLister {
	if apiKey == "" {
		apiKey = os.Getenv("YOUTUBE_API_KEY")
	}
	if log == nil {
		log = slog.Default()
	}
	if apiKey != "" {
		return &apiChannelLister{
			apiKey:   apiKey,
			client:   &http.Client{Timeout: 30 * time.Second},
			fallback: &ytDlpChannelLister{d: d, log: log},
			log:      log,
		}
	}
	return &ytDlpChannelLister{d: d, log: log}
}

// ytDlpChannelLister shells out to yt-dlp with --flat-playlist.
type ytDlpChannelLister struct {
	d   *Downloader
	log *slog.Logger
}

type flatPlaylist struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	ChannelID string `json:"channel_id"`
	Uploader  string `json:"uploader"`
	Entries   []struct {
		ID         string  `json:"id"`
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Duration   float64 `json:"duration"`
		ViewCount  int64   `json:"view_count"`
		UploadDate string  `json:"upload_date"`
		LiveStatus string  `json:"live_status"`
	} `json:"entries"`
}

func (l *ytDlpChannelLister) ListVideos(ctx context.Context, channelURL string, maxVideos int) (*ChannelInfo, []ChannelVideo, error) {
	if _, err := Detect(channelURL); err != nil {
		return nil, nil, err
	}
	if maxVideos <= 0 {
		maxVideos = 50
	}

	args := []string{
		channelURL,
		"--flat-playlist",
		"-J",
		"--no-warnings",
		"--playlist-end", fmt.Sprintf("%d", maxVideos),
	}
	args = l.d.appendAuthArgs(args)

	out, err := l.d.run(ctx, 5*time.Minute, args...)
	if err != nil {
		return nil, nil, err
	}

	var pl flatPlaylist
	if err := json.Unmarshal(out, &pl); err != nil {
		return nil, nil, spiralerr.Wrap(err, spiralerr.ErrCodeDownloadFailed, "unparseable channel listing")
	}

	name := pl.Channel
	if name == "" {
		name = pl.Uploader
	}
	info := &ChannelInfo{
		ChannelID:  pl.ChannelID,
		Name:       name,
		URL:        channelURL,
		VideoCount: len(pl.Entries),
	}

	videos := make([]ChannelVideo, 0, len(pl.Entries))
	for _, e := range pl.Entries {
		if e.ID == "" {
			continue
		}
		u := e.URL
		if u == "" {
			u = "https://www.youtube.com/watch?v=" + e.ID
		}
		videos = append(videos, ChannelVideo{
			VideoID:     e.ID,
			URL:         u,
			Title:       e.Title,
			DurationSec: e.Duration,
			ViewCount:   e.ViewCount,
			UploadDate:  e.UploadDate,
			IsLive:      e.LiveStatus == "is_live" || e.LiveStatus == "is_upcoming",
		})
	}

	l.log.Info("channel discovered", "channel", info.Name, "videos", len(videos))
	return info, videos, nil
}

// apiChannelLister uses the YouTube Data API v3 for channels whose id is in
// the URL, and delegates handle-style URLs to the yt-dlp lister.
type apiChannelLister struct {
	apiKey   string
	client   *http.Client
	fallback ChannelLister
	log      *slog.Logger
}

var channelIDRe = regexp.MustCompile(`/channel/(UC[A-Za-z0-9_-]{22})`)

func (l *apiChannelLister) ListVideos(ctx context.Context, channelURL string, maxVideos int) (*ChannelInfo, []ChannelVideo, error) {
	m := channelIDRe.FindStringSubmatch(channelURL)
	if m == nil {
		// Handle and custom URLs need resolution the API cannot do in one
		// call; yt-dlp resolves them natively.
		return l.fallback.ListVideos(ctx, channelURL, maxVideos)
	}
	channelID := m[1]
	if maxVideos <= 0 {
		maxVideos = 50
	}
	if maxVideos > 50 {
		maxVideos = 50
	}

	q := url.Values{}
	q.Set("key", l.apiKey)
	q.Set("channelId", channelID)
	q.Set("part", "snippet")
	q.Set("order", "date")
	q.Set("type", "video")
	q.Set("maxResults", fmt.Sprintf("%d", maxVideos))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://www.googleapis.com/youtube/v3/search?"+q.Encode(), nil)
	if err != nil {
		return nil, nil, spiralerr.Wrap(err, spiralerr.ErrCodeDownloadFailed, "cannot build API request")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, nil, spiralerr.Wrap(err, spiralerr.ErrCodeDownloadFailed, "YouTube API request failed")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, nil, spiralerr.New(spiralerr.ErrCodeQuotaExceeded,
			"YouTube API quota exceeded").
			WithSuggestion("wait for the daily quota reset or use a different API key")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, spiralerr.New(spiralerr.ErrCodeDownloadFailed,
			fmt.Sprintf("YouTube API returned status %d", resp.StatusCode))
	}

	var payload struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title        string `json:"title"`
				ChannelTitle string `json:"channelTitle"`
				PublishedAt  string `json:"publishedAt"`
				LiveContent  string `json:"liveBroadcastContent"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, spiralerr.Wrap(err, spiralerr.ErrCodeDownloadFailed, "unparseable YouTube API response")
	}

	info := &ChannelInfo{ChannelID: channelID, URL: channelURL}
	videos := make([]ChannelVideo, 0, len(payload.Items))
	for _, it := range payload.Items {
		if it.ID.VideoID == "" {
			continue
		}
		if info.Name == "" {
			info.Name = it.Snippet.ChannelTitle
		}
		videos = append(videos, ChannelVideo{
			VideoID:    it.ID.VideoID,
			URL:        "https://www.youtube.com/watch?v=" + it.ID.VideoID,
			Title:      it.Snippet.Title,
			UploadDate: apiDateToCompact(it.Snippet.PublishedAt),
			IsLive:     it.Snippet.LiveContent == "live" || it.Snippet.LiveContent == "upcoming",
		})
	}
	info.VideoCount = len(videos)

	l.log.Info("channel discovered via API", "channel_id", channelID, "videos", len(videos))
	return info, videos, nil
}

// apiDateToCompact converts RFC3339 publishedAt to the YYYYMMDD shape the
// flat-playlist path uses.
func apiDateToCompact(published string) string {
	t, err := time.Parse(time.RFC3339, published)
	if err != nil {
		return ""
	}
	return t.Format("20060102")
}
