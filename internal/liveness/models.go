package liveness

import "regexp"

// Handle is a canonical channel identifier with any leading "@" stripped.
type Handle string

// VideoID identifies a specific broadcast: exactly 11 characters from
// [A-Za-z0-9_-].
type VideoID string

var (
	handlePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// IsValidHandle reports whether s is a well-formed bare handle.
func IsValidHandle(s string) bool {
	return s != "" && handlePattern.MatchString(s)
}

// IsValidVideoID reports whether s is a well-formed 11-character video id.
// IDs of any other length are rejected outright; a truncated or extended id
// would point at a different (or nonexistent) broadcast.
func IsValidVideoID(s string) bool {
	return videoIDPattern.MatchString(s)
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(id VideoID) string {
	return "https://www.youtube.com/watch?v=" + string(id)
}

// FoundBy names the strategy that produced a verdict.
type FoundBy string

const (
	// FoundByAPI means the Data API confirmed a live broadcast.
	FoundByAPI FoundBy = "api"
	// FoundByRedirect means the /live path redirected to a concrete watch URL.
	FoundByRedirect FoundBy = "redirect"
	// FoundByPage means structured player data embedded in the page decided it.
	FoundByPage FoundBy = "page"
	// FoundByKeyword means keyword heuristics over the raw page decided it.
	FoundByKeyword FoundBy = "keyword"
	// FoundByCache means a last-known-good cache entry masked an upstream failure.
	FoundByCache FoundBy = "cache"
	// FoundByDirect means the caller supplied a watch URL or video id directly.
	FoundByDirect FoundBy = "direct"
	// FoundByNone means no strategy produced a positive verdict.
	FoundByNone FoundBy = "none"
)

// Result is the outcome of resolving one source. It is immutable once
// produced; it lives only in the caches and the HTTP response.
//
// A Result with Live=false covers both "confirmed offline" and "could not
// determine"; consumers that need the distinction can inspect FoundBy and
// Error.
type Result struct {
	Handle   string  `json:"handle"`
	Live     bool    `json:"isLive"`
	VideoID  string  `json:"videoId,omitempty"`
	WatchURL string  `json:"watchUrl,omitempty"`
	Title    string  `json:"title,omitempty"`
	FoundBy  FoundBy `json:"foundBy"`
	Error    string  `json:"error,omitempty"`
}
