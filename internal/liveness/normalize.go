package liveness

import (
	"net/url"
	"strings"
)

// Input is a normalized source: either a channel handle to resolve, or a
// direct video id that needs no resolution. Exactly one field is set.
type Input struct {
	Handle  Handle
	VideoID VideoID
}

// Key returns the canonical map key for this input. Handles compare
// case-insensitively; video ids are case-sensitive.
func (in Input) Key() string {
	if in.VideoID != "" {
		return string(in.VideoID)
	}
	return strings.ToLower(string(in.Handle))
}

// Normalize parses a free-form source string (a bare handle, an @handle, a
// channel URL, or a direct watch/short/live URL) into an Input. The second
// return is false when the string is unparseable.
//
// Precedence: bare/@ handle, then channel-URL handle extraction, then direct
// video-id extraction.
func Normalize(raw string) (Input, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Input{}, false
	}

	if h, ok := bareHandle(s); ok {
		return Input{Handle: h}, true
	}

	u, ok := parseSourceURL(s)
	if !ok {
		return Input{}, false
	}

	if h, ok := handleFromURL(u); ok {
		return Input{Handle: h}, true
	}
	if id, ok := videoIDFromURL(u); ok {
		return Input{VideoID: id}, true
	}
	return Input{}, false
}

// DedupeInputs drops repeated inputs, comparing handles case-insensitively.
// Order of first occurrence is preserved.
func DedupeInputs(inputs []Input) []Input {
	seen := make(map[string]struct{}, len(inputs))
	out := make([]Input, 0, len(inputs))
	for _, in := range inputs {
		key := in.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, in)
	}
	return out
}

// ParseSources splits a comma-separated source list, normalizes each entry,
// and dedupes the valid ones. Unparseable entries are returned separately so
// the caller can report them per-item without failing the batch.
func ParseSources(param string) (inputs []Input, invalid []string) {
	for _, piece := range strings.Split(param, ",") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		in, ok := Normalize(piece)
		if !ok {
			invalid = append(invalid, piece)
			continue
		}
		inputs = append(inputs, in)
	}
	return DedupeInputs(inputs), invalid
}

func bareHandle(s string) (Handle, bool) {
	candidate := strings.TrimPrefix(s, "@")
	if IsValidHandle(candidate) {
		return Handle(candidate), true
	}
	return "", false
}

func parseSourceURL(s string) (*url.URL, bool) {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, false
	}
	switch strings.ToLower(u.Hostname()) {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "youtu.be":
		return u, true
	}
	return nil, false
}

// handleFromURL extracts the channel handle from URLs like
// youtube.com/@Handle, optionally followed by /live, /streams, or /about.
// The handle's case is preserved.
func handleFromURL(u *url.URL) (Handle, bool) {
	p := strings.TrimPrefix(u.EscapedPath(), "/")
	if !strings.HasPrefix(p, "@") {
		return "", false
	}
	seg, _, _ := strings.Cut(p[1:], "/")
	if IsValidHandle(seg) {
		return Handle(seg), true
	}
	return "", false
}

// videoIDFromURL extracts the 11-character video id from watch, youtu.be,
// /live/<id>, /shorts/<id>, and /embed/<id> URLs. Candidates of any other
// length are rejected rather than trimmed.
func videoIDFromURL(u *url.URL) (VideoID, bool) {
	host := strings.ToLower(u.Hostname())

	if host == "youtu.be" {
		return validateID(firstPathSegment(u.Path))
	}

	if strings.EqualFold(strings.TrimSuffix(u.Path, "/"), "/watch") {
		return validateID(u.Query().Get("v"))
	}
	for _, prefix := range []string{"/live/", "/shorts/", "/embed/"} {
		if strings.HasPrefix(u.Path, prefix) {
			return validateID(firstPathSegment(strings.TrimPrefix(u.Path, prefix)))
		}
	}
	return "", false
}

func validateID(s string) (VideoID, bool) {
	if IsValidVideoID(s) {
		return VideoID(s), true
	}
	return "", false
}

func firstPathSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	seg, _, _ := strings.Cut(p, "/")
	return seg
}
