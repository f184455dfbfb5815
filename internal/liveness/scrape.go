package liveness

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"livewall/internal/platform/fetch"
)

const defaultChannelBase = "https://www.youtube.com"

// Pre-answering the consent prompt avoids most interstitials on cookie-less
// fetches.
var consentHeader = map[string]string{"Cookie": "CONSENT=YES+42"}

// ScrapeStrategy determines liveness from the channel's public pages, in
// order of decreasing confidence:
//
//  1. a redirect from /live to a concrete watch URL, which the platform
//     only issues for an active broadcast;
//  2. structured player data embedded in the fetched page;
//  3. keyword heuristics over the raw page, retried against /streams when
//     the /live page yields no verdict.
type ScrapeStrategy struct {
	fetcher  *fetch.Client
	baseURL  string
	baseHost string
}

// ScrapeOption provides functional configuration for ScrapeStrategy.
type ScrapeOption func(*ScrapeStrategy)

// WithScrapeBaseURL overrides the channel page origin. Useful for testing.
func WithScrapeBaseURL(base string) ScrapeOption {
	return func(s *ScrapeStrategy) { s.baseURL = strings.TrimSuffix(base, "/") }
}

// NewScrapeStrategy returns a strategy that fetches channel pages through the
// given client.
func NewScrapeStrategy(fetcher *fetch.Client, opts ...ScrapeOption) *ScrapeStrategy {
	s := &ScrapeStrategy{fetcher: fetcher, baseURL: defaultChannelBase}
	for _, opt := range opts {
		opt(s)
	}
	if u, err := url.Parse(s.baseURL); err == nil {
		s.baseHost = strings.ToLower(u.Host)
	}
	return s
}

// Name implements Strategy.
func (s *ScrapeStrategy) Name() string { return "scrape" }

// Check implements Strategy.
func (s *ScrapeStrategy) Check(ctx context.Context, handle Handle) (Result, error) {
	page, err := s.fetcher.Get(ctx, s.channelURL(handle, "live"), consentHeader)
	if err != nil {
		return Result{}, err
	}

	// Strongest signal first: did /live redirect to a watch URL?
	if id, ok := s.watchVideoID(page.FinalURL); ok {
		res := Result{
			Handle:   string(handle),
			Live:     true,
			VideoID:  string(id),
			WatchURL: WatchURL(id),
			FoundBy:  FoundByRedirect,
		}
		// The redirected page is the broadcast itself; its title is free.
		if !IsBotWall(page.Body) {
			if raw, ok := ExtractObject(string(page.Body), playerResponseKey); ok {
				res.Title = titleFromPlayerResponse(raw)
			}
		}
		return res, nil
	}

	if page.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("channel page status %d", page.StatusCode)
	}

	if res, done := s.classify(handle, page.Body); done {
		return res, nil
	}

	// No verdict from /live; the streams listing is the secondary source.
	page, err = s.fetcher.Get(ctx, s.channelURL(handle, "streams"), consentHeader)
	if err != nil {
		return Result{}, err
	}
	if page.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("streams page status %d", page.StatusCode)
	}
	if res, done := s.classify(handle, page.Body); done {
		return res, nil
	}

	return Result{Handle: string(handle), Live: false, FoundBy: FoundByNone}, nil
}

// classify turns one fetched page into a Result. done is false only for
// VerdictUnknown, which sends the caller to the secondary page.
func (s *ScrapeStrategy) classify(handle Handle, body []byte) (Result, bool) {
	info := ClassifyPage(body)
	switch info.Verdict {
	case VerdictBotWall:
		// Do not trust anything on an interstitial, including video ids.
		return Result{
			Handle:  string(handle),
			Live:    false,
			FoundBy: FoundByNone,
			Error:   "consent interstitial served",
		}, true
	case VerdictLive:
		res := Result{
			Handle:  string(handle),
			Live:    true,
			Title:   info.Title,
			FoundBy: foundBySignal(info.Signal),
		}
		if info.VideoID != "" {
			res.VideoID = string(info.VideoID)
			res.WatchURL = WatchURL(info.VideoID)
		}
		return res, true
	case VerdictNotLive:
		return Result{Handle: string(handle), Live: false, FoundBy: foundBySignal(info.Signal)}, true
	default:
		return Result{}, false
	}
}

func (s *ScrapeStrategy) channelURL(handle Handle, page string) string {
	return s.baseURL + "/@" + string(handle) + "/" + page
}

func foundBySignal(sig Signal) FoundBy {
	if sig == SignalStructured {
		return FoundByPage
	}
	return FoundByKeyword
}

// watchVideoID extracts a validated video id from a post-redirect URL. Only
// a /watch URL on the configured origin or a known platform host counts;
// a redirect off-site carries no liveness signal.
func (s *ScrapeStrategy) watchVideoID(u *url.URL) (VideoID, bool) {
	if u == nil || !strings.EqualFold(strings.TrimSuffix(u.Path, "/"), "/watch") {
		return "", false
	}
	if !s.allowedRedirectHost(u.Host) {
		return "", false
	}
	id := u.Query().Get("v")
	if !IsValidVideoID(id) {
		return "", false
	}
	return VideoID(id), true
}

func (s *ScrapeStrategy) allowedRedirectHost(host string) bool {
	switch strings.ToLower(host) {
	case s.baseHost, "youtube.com", "www.youtube.com", "m.youtube.com":
		return true
	}
	return false
}

func titleFromPlayerResponse(raw string) string {
	info := classifyPlayerResponse(raw)
	return info.Title
}
