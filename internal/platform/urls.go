// Package platform handles video-platform URLs: detection, video-id
// extraction, deep links, downloads, and channel discovery. All per-platform
// patterns live in one table so callers never duplicate regexes.
package platform

import (
	"fmt"
	"regexp"
	"strings"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
	"github.com/spiralmem/spiralmem/internal/store"
)

// platformDef binds one platform to its detection and extraction rules.
// Order matters: the first matching hostPattern wins.
type platformDef struct {
	platform    store.Platform
	hostPattern *regexp.Regexp
	idPatterns  []*regexp.Regexp
}

var platformTable = []platformDef{
	{
		platform:    store.PlatformYouTube,
		hostPattern: regexp.MustCompile(`(?i)(youtube\.com|youtu\.be|youtube-nocookie\.com)`),
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})`),
			regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})`),
			regexp.MustCompile(`/embed/([A-Za-z0-9_-]{11})`),
			regexp.MustCompile(`/shorts/([A-Za-z0-9_-]{11})`),
			regexp.MustCompile(`/live/([A-Za-z0-9_-]{11})`),
		},
	},
	{
		platform:    store.PlatformSpotify,
		hostPattern: regexp.MustCompile(`(?i)(open\.)?spotify\.com`),
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`/episode/([A-Za-z0-9]{22})`),
			regexp.MustCompile(`/show/([A-Za-z0-9]{22})`),
		},
	},
	{
		platform:    store.PlatformZoom,
		hostPattern: regexp.MustCompile(`(?i)zoom\.us`),
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`/rec/(?:share|play)/([A-Za-z0-9_.-]+)`),
		},
	},
	{
		platform:    store.PlatformTeams,
		hostPattern: regexp.MustCompile(`(?i)(teams\.microsoft\.com|sharepoint\.com)`),
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`[?&]id=([^&]+)`),
			regexp.MustCompile(`/video/([A-Za-z0-9-]+)`),
		},
	},
	{
		platform:    store.PlatformVimeo,
		hostPattern: regexp.MustCompile(`(?i)vimeo\.com`),
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`vimeo\.com/(?:video/)?(\d+)`),
		},
	},
	{
		platform:    store.PlatformRumble,
		hostPattern: regexp.MustCompile(`(?i)rumble\.com`),
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`rumble\.com/([A-Za-z0-9]+)(?:-|\.html)`),
		},
	},
}

// Detect returns the platform owning a URL. Unknown hosts fail with an
// unsupported-platform error.
func Detect(rawURL string) (store.Platform, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return "", spiralerr.New(spiralerr.ErrCodeInvalidURL, "empty URL")
	}
	for _, def := range platformTable {
		if def.hostPattern.MatchString(url) {
			return def.platform, nil
		}
	}
	return "", spiralerr.New(spiralerr.ErrCodeUnsupportedPlatform,
		fmt.Sprintf("no supported platform matches URL: %s", url))
}

// ExtractVideoID pulls the platform-native video id out of a URL.
func ExtractVideoID(rawURL string) (store.Platform, string, error) {
	platform, err := Detect(rawURL)
	if err != nil {
		return "", "", err
	}
	for _, def := range platformTable {
		if def.platform != platform {
			continue
		}
		for _, re := range def.idPatterns {
			if m := re.FindStringSubmatch(rawURL); m != nil {
				return platform, m[1], nil
			}
		}
	}
	return "", "", spiralerr.New(spiralerr.ErrCodeInvalidURL,
		fmt.Sprintf("cannot extract %s video id from URL: %s", platform, rawURL))
}

// IsVideoURL reports whether the input looks like any URL at all, used to
// route add-video between the local-file and download paths.
func IsVideoURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// DeepLinkURL builds a timestamped navigation URL for a platform video.
// Platforms without timestamp support get the plain video URL back.
func DeepLinkURL(platform store.Platform, videoID string, offsetSec int64) (string, error) {
	if videoID == "" {
		return "", spiralerr.New(spiralerr.ErrCodeInvalidURL, "empty video id")
	}
	if offsetSec < 0 {
		offsetSec = 0
	}
	switch platform {
	case store.PlatformYouTube:
		return fmt.Sprintf("https://www.youtube.com/watch?v=%s&t=%ds", videoID, offsetSec), nil
	case store.PlatformVimeo:
		return fmt.Sprintf("https://vimeo.com/%s#t=%ds", videoID, offsetSec), nil
	case store.PlatformRumble:
		return fmt.Sprintf("https://rumble.com/%s.html", videoID), nil
	case store.PlatformSpotify:
		return fmt.Sprintf("https://open.spotify.com/episode/%s?t=%d", videoID, offsetSec), nil
	default:
		return "", spiralerr.New(spiralerr.ErrCodeUnsupportedPlatform,
			fmt.Sprintf("deep links not supported for platform %s", platform))
	}
}
