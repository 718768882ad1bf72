package channel

import (
	"sort"
	"strings"

	"github.com/spiralmem/spiralmem/internal/platform"
)

// FilterVideos applies duration, keyword, shorts, and live-stream filters.
// The input slice is not modified.
func FilterVideos(videos []platform.ChannelVideo, f FilterOptions) []platform.ChannelVideo {
	out := make([]platform.ChannelVideo, 0, len(videos))
	for _, v := range videos {
		if v.IsLive && !f.IncludeLiveStreams {
			continue
		}
		if !f.IncludeShorts && v.DurationSec > 0 && v.DurationSec < shortsMaxDurationSec {
			continue
		}
		if f.MinDurationSec > 0 && v.DurationSec < f.MinDurationSec {
			continue
		}
		if f.MaxDurationSec > 0 && v.DurationSec > f.MaxDurationSec {
			continue
		}
		if len(f.KeywordFilter) > 0 && !matchesAnyKeyword(v.Title, f.KeywordFilter) {
			continue
		}
		if matchesAnyKeyword(v.Title, f.ExcludeKeywords) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func matchesAnyKeyword(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// SortVideos orders videos in place by the priority mode. UploadDate is the
// platform's YYYYMMDD compact form, so string comparison orders by date.
func SortVideos(videos []platform.ChannelVideo, mode PriorityMode) {
	switch mode {
	case PriorityOldestFirst:
		sort.SliceStable(videos, func(i, j int) bool {
			return videos[i].UploadDate < videos[j].UploadDate
		})
	case PriorityMostPopular:
		sort.SliceStable(videos, func(i, j int) bool {
			return videos[i].ViewCount > videos[j].ViewCount
		})
	case PriorityLongest:
		sort.SliceStable(videos, func(i, j int) bool {
			return videos[i].DurationSec > videos[j].DurationSec
		})
	default:
		sort.SliceStable(videos, func(i, j int) bool {
			return videos[i].UploadDate > videos[j].UploadDate
		})
	}
}
