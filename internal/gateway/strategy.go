package gateway

import (
	"net/http"
	"path"
	"strings"
)

// Strategy is the caching policy chosen for one request.
type Strategy int

const (
	// NetworkFirst tries the network and falls back to the cache.
	NetworkFirst Strategy = iota
	// CacheFirst serves from cache and only then fetches.
	CacheFirst
	// StaleWhileRevalidate serves the cached copy immediately and refreshes
	// it in the background.
	StaleWhileRevalidate
	// NetworkFirstWithFallback is NetworkFirst plus a content-negotiated
	// offline fallback when neither network nor cache can serve.
	NetworkFirstWithFallback
)

func (s Strategy) String() string {
	switch s {
	case NetworkFirst:
		return "network-first"
	case CacheFirst:
		return "cache-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	case NetworkFirstWithFallback:
		return "network-first-with-fallback"
	default:
		return "unknown"
	}
}

// Rules holds the pattern sets driving interception and classification.
// Classification is a pure function over the request, so it is testable
// without any network or cache state.
type Rules struct {
	// OwnHost is the application's own origin host.
	OwnHost string
	// AllowedHosts are external hosts whose responses may be cached.
	AllowedHosts []string

	// NetworkFirstPaths are path prefixes of live/volatile endpoints.
	NetworkFirstPaths []string
	// StaticExtensions are file extensions served cache-first.
	StaticExtensions []string
	// APICachePatterns are URL substrings of third-party data APIs served
	// stale-while-revalidate.
	APICachePatterns []string
}

// DefaultRules returns the pattern sets for the fishing companion app.
func DefaultRules(ownHost string) Rules {
	return Rules{
		OwnHost: ownHost,
		AllowedHosts: []string{
			"api.fishwatch.example.com",
			"tiles.openstreetmap.org",
		},
		NetworkFirstPaths: []string{
			"/api/chat",
			"/api/weather",
			"/api/regulations",
		},
		StaticExtensions: []string{
			".js", ".css", ".html", ".png", ".jpg", ".jpeg", ".gif",
			".svg", ".ico", ".woff", ".woff2", ".webmanifest",
		},
		APICachePatterns: []string{
			"api.fishwatch.example.com",
			"tiles.openstreetmap.org",
		},
	}
}

// Intercepts reports whether the engine handles this request at all. Only
// GETs against the app's own origin or an allow-listed host are in scope;
// everything else passes through untouched and is never cached.
func (r Rules) Intercepts(req *Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	host := req.URL.Hostname()
	if host == "" || host == r.OwnHost {
		return true
	}
	for _, h := range r.AllowedHosts {
		if host == h {
			return true
		}
	}
	return false
}

// Classify picks the strategy for an intercepted request. First match wins:
// network-first paths, then static extensions, then API cache patterns, then
// the default fallback strategy.
func (r Rules) Classify(req *Request) Strategy {
	for _, p := range r.NetworkFirstPaths {
		if strings.HasPrefix(req.URL.Path, p) {
			return NetworkFirst
		}
	}

	ext := strings.ToLower(path.Ext(req.URL.Path))
	for _, e := range r.StaticExtensions {
		if ext == e {
			return CacheFirst
		}
	}

	full := req.URL.String()
	for _, p := range r.APICachePatterns {
		if strings.Contains(full, p) {
			return StaleWhileRevalidate
		}
	}

	return NetworkFirstWithFallback
}

// apiShaped reports whether a URL looks like an API endpoint, used to pick
// the structured JSON fallback.
func apiShaped(req *Request) bool {
	return strings.Contains(req.URL.Path, "/api/")
}
