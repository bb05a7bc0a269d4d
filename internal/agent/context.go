package agent

import (
	"net/url"
	"regexp"
	"strings"
)

// Host-page routes. The album detail route carries the foreign album ID
// (a MusicBrainz release-group GUID in practice, but opaque here).
var albumRoutePattern = regexp.MustCompile(`^/album/([^/?#]+)/?$`)

// ResolveAlbumID extracts the content identifier from a detail-page URL.
// Returns false for list pages and anything unparsable. Pure function.
func ResolveAlbumID(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	m := albumRoutePattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ResolvePageKind maps a URL to the page layout the classifier should use.
func ResolvePageKind(rawURL string) PageKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PageUnknown
	}
	path := u.Path
	switch {
	case albumRoutePattern.MatchString(path):
		return PageAlbumDetail
	case strings.HasPrefix(path, "/artist/"):
		return PageArtist
	case path == "/wanted/missing" || strings.HasPrefix(path, "/wanted/missing/"):
		return PageWantedMissing
	default:
		return PageUnknown
	}
}
