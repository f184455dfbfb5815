package liveness

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// This file is the only place that knows what a YouTube page looks like.
// Marker strings, embedded-object key names, and gjson paths all live here so
// upstream markup changes don't touch the chain or caching logic.

// Verdict classifies what a fetched page says about a channel.
type Verdict int

const (
	// VerdictUnknown means the page carried no usable signal.
	VerdictUnknown Verdict = iota
	// VerdictLive means the page positively indicates an active broadcast.
	VerdictLive
	// VerdictNotLive means the page positively indicates no active broadcast.
	VerdictNotLive
	// VerdictBotWall means a consent or captcha interstitial was served.
	// Nothing extracted from such a page can be trusted.
	VerdictBotWall
)

// Signal records which layer of heuristics produced a verdict.
type Signal int

const (
	// SignalStructured means the embedded player/initial-data object decided it.
	SignalStructured Signal = iota
	// SignalKeyword means raw-text keyword scanning decided it.
	SignalKeyword
)

// PageInfo is the outcome of classifying one fetched page.
type PageInfo struct {
	Verdict Verdict
	Signal  Signal
	VideoID VideoID
	Title   string
}

const playerResponseKey = "ytInitialPlayerResponse"

// botWallMarkers indicate a consent wall or bot interstitial. These pages can
// embed unrelated trending content, so any video id found on them is suspect.
var botWallMarkers = []string{
	"consent.youtube.com",
	"Before you continue to YouTube",
	"/sorry/index",
	`id="captcha-form"`,
	"recaptcha/api.js",
}

// livePhrases are strong positive indicators, matched case-insensitively.
var livePhrases = []string{
	`"islivenow":true`,
	`"islive":true`,
	"watching now",
	`"icontype":"live"`,
}

// notLivePhrases are strong negative indicators, matched case-insensitively.
// Absence of any signal also means not live; positive is never assumed.
// Deliberately longer than the bare words: "streamed" and "ended" alone
// match past-VOD titles and recommendation tiles on pages that also host a
// live player.
var notLivePhrases = []string{
	"streamed live",
	`"status":"ended"`,
	"premiered",
	"waiting for",
	"upcoming",
}

var canonicalWatchPattern = regexp.MustCompile(`<link rel="canonical" href="https://www\.youtube\.com/watch\?v=([A-Za-z0-9_-]{11})"`)

// IsBotWall reports whether the body looks like a consent or captcha
// interstitial rather than a channel page.
func IsBotWall(body []byte) bool {
	s := string(body)
	for _, marker := range botWallMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// ClassifyPage inspects a fetched channel page and returns the strongest
// verdict it can justify: bot-wall detection first, then the embedded
// structured player object, then keyword scanning.
func ClassifyPage(body []byte) PageInfo {
	if IsBotWall(body) {
		return PageInfo{Verdict: VerdictBotWall}
	}

	if raw, ok := ExtractObject(string(body), playerResponseKey); ok {
		if info := classifyPlayerResponse(raw); info.Verdict != VerdictUnknown {
			return info
		}
	}

	return classifyKeywords(body)
}

// ExtractObject locates key in body and returns the JSON object that follows
// it, using balanced-brace matching that respects quoted strings and escape
// sequences. This isolates valid JSON regardless of surrounding script noise.
func ExtractObject(body, key string) (string, bool) {
	idx := strings.Index(body, key)
	if idx < 0 {
		return "", false
	}

	start := idx + len(key)
	for start < len(body) && body[start] != '{' {
		// Stop scanning if the statement clearly ended before an object began.
		if body[start] == ';' || body[start] == '<' {
			return "", false
		}
		start++
	}
	if start >= len(body) {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(body); i++ {
		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return body[start : i+1], true
			}
		}
	}
	return "", false
}

// classifyPlayerResponse reads liveness out of an extracted
// ytInitialPlayerResponse object. Truly live means a live flag is set, or a
// broadcast start timestamp exists with no end timestamp.
func classifyPlayerResponse(raw string) PageInfo {
	videoDetails := gjson.Get(raw, "videoDetails")
	if !videoDetails.Exists() {
		return PageInfo{Verdict: VerdictUnknown}
	}

	info := PageInfo{Signal: SignalStructured, Title: videoDetails.Get("title").String()}
	if id := videoDetails.Get("videoId").String(); IsValidVideoID(id) {
		info.VideoID = VideoID(id)
	}

	details := gjson.Get(raw, "microformat.playerMicroformatRenderer.liveBroadcastDetails")
	started := details.Get("startTimestamp").Exists()
	ended := details.Get("endTimestamp").Exists()

	switch {
	case videoDetails.Get("isLive").Bool() || details.Get("isLiveNow").Bool():
		info.Verdict = VerdictLive
	case started && !ended:
		info.Verdict = VerdictLive
	case ended:
		info.Verdict = VerdictNotLive
	case videoDetails.Get("isUpcoming").Bool():
		info.Verdict = VerdictNotLive
	default:
		info.Verdict = VerdictUnknown
	}
	return info
}

// classifyKeywords falls back to phrase scanning over the raw page. A
// positive phrase wins over a negative one; no phrase at all means not live.
func classifyKeywords(body []byte) PageInfo {
	lowered := strings.ToLower(string(body))

	for _, phrase := range livePhrases {
		if strings.Contains(lowered, phrase) {
			info := PageInfo{Verdict: VerdictLive, Signal: SignalKeyword}
			if m := canonicalWatchPattern.FindSubmatch(body); m != nil {
				info.VideoID = VideoID(m[1])
			}
			return info
		}
	}
	for _, phrase := range notLivePhrases {
		if strings.Contains(lowered, phrase) {
			return PageInfo{Verdict: VerdictNotLive, Signal: SignalKeyword}
		}
	}
	return PageInfo{Verdict: VerdictUnknown, Signal: SignalKeyword}
}
