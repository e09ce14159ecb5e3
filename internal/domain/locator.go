package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const PlatformYouTube = "youtube"

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// ParseLocator checks that raw points at a single video on the supported
// platform and returns its canonical watch URL.
func ParseLocator(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("source locator is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("source locator is not a URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("source locator must be http(s)")
	}

	host := strings.ToLower(u.Hostname())
	if !youtubeHosts[host] {
		return "", fmt.Errorf("unsupported source host %q", host)
	}

	var id string
	switch {
	case host == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case u.Path == "/watch":
		id = u.Query().Get("v")
	default:
		for _, prefix := range []string{"/shorts/", "/live/", "/embed/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id = strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
				break
			}
		}
	}

	if !videoIDRe.MatchString(id) {
		return "", fmt.Errorf("source locator has no valid video id")
	}

	return "https://www.youtube.com/watch?v=" + id, nil
}
