package liveness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	channelsEndpoint = "https://www.googleapis.com/youtube/v3/channels"
	searchEndpoint   = "https://www.googleapis.com/youtube/v3/search"
	videosEndpoint   = "https://www.googleapis.com/youtube/v3/videos"

	defaultAPITimeout = 10 * time.Second

	// Handle-to-channel mappings are effectively permanent; cache them for a
	// day so repeated polls spend quota on live checks, not lookups.
	channelIDCacheTTL = 24 * time.Hour
)

var (
	// ErrMissingAPIKey is returned when the strategy is constructed without a key.
	ErrMissingAPIKey = errors.New("liveness: missing API key")

	// ErrQuotaExceeded marks an upstream quota rejection. It is a distinct,
	// retryable condition: the chain falls through to HTML strategies instead
	// of treating it as evidence the channel is offline.
	ErrQuotaExceeded = errors.New("liveness: api quota exceeded")
)

// APIStrategy resolves liveness through the structured Data API: handle to
// channel id, then a live-video search, then per-video broadcast detail
// verification.
type APIStrategy struct {
	apiKey      string
	httpClient  *http.Client
	channelsURL string
	searchURL   string
	videosURL   string
	channelIDs  *gocache.Cache
}

// APIOption provides functional configuration for APIStrategy.
type APIOption func(*APIStrategy)

// WithAPIHTTPClient overrides the default HTTP client.
func WithAPIHTTPClient(client *http.Client) APIOption {
	return func(s *APIStrategy) { s.httpClient = client }
}

// WithAPIEndpoints overrides the Data API endpoints. Useful for testing.
func WithAPIEndpoints(channelsURL, searchURL, videosURL string) APIOption {
	return func(s *APIStrategy) {
		s.channelsURL = channelsURL
		s.searchURL = searchURL
		s.videosURL = videosURL
	}
}

// NewAPIStrategy returns a configured Data API strategy.
func NewAPIStrategy(apiKey string, opts ...APIOption) *APIStrategy {
	s := &APIStrategy{
		apiKey:      apiKey,
		channelsURL: channelsEndpoint,
		searchURL:   searchEndpoint,
		videosURL:   videosEndpoint,
		channelIDs:  gocache.New(channelIDCacheTTL, 2*channelIDCacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: defaultAPITimeout}
	}
	return s
}

// Name implements Strategy.
func (s *APIStrategy) Name() string { return "api" }

// Check implements Strategy. A positive verdict carries the live video id
// verified against broadcast timestamps; ties between multiple live
// candidates go to the latest start time.
func (s *APIStrategy) Check(ctx context.Context, handle Handle) (Result, error) {
	if s.apiKey == "" {
		return Result{}, ErrMissingAPIKey
	}

	channelID, err := s.resolveChannelID(ctx, handle)
	if err != nil {
		return Result{}, err
	}

	candidates, err := s.liveCandidates(ctx, channelID)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{Handle: string(handle), Live: false, FoundBy: FoundByNone}, nil
	}

	verified, err := s.verifyCandidates(ctx, candidates)
	if err != nil {
		return Result{}, err
	}
	if len(verified) == 0 {
		return Result{Handle: string(handle), Live: false, FoundBy: FoundByNone}, nil
	}

	sort.Slice(verified, func(i, j int) bool {
		return verified[i].startedAt.After(verified[j].startedAt)
	})
	best := verified[0]
	return Result{
		Handle:   string(handle),
		Live:     true,
		VideoID:  best.id,
		WatchURL: WatchURL(VideoID(best.id)),
		Title:    best.title,
		FoundBy:  FoundByAPI,
	}, nil
}

// resolveChannelID maps a handle to its channel id, first by direct
// lookup-by-handle, then by a search-by-name fallback that picks the best
// title match.
func (s *APIStrategy) resolveChannelID(ctx context.Context, handle Handle) (string, error) {
	if id, ok := s.channelIDs.Get(strings.ToLower(string(handle))); ok {
		return id.(string), nil
	}

	id, err := s.lookupByHandle(ctx, handle)
	if err != nil && !errors.Is(err, errChannelNotFound) {
		return "", err
	}
	if id == "" {
		id, err = s.searchChannel(ctx, handle)
		if err != nil {
			return "", err
		}
	}
	if id == "" {
		return "", errChannelNotFound
	}

	s.channelIDs.Set(strings.ToLower(string(handle)), id, gocache.DefaultExpiration)
	return id, nil
}

var errChannelNotFound = errors.New("liveness: channel not found")

func (s *APIStrategy) lookupByHandle(ctx context.Context, handle Handle) (string, error) {
	var payload struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	params := map[string]string{
		"part":      "id",
		"forHandle": "@" + string(handle),
	}
	if err := s.getJSON(ctx, s.channelsURL, params, &payload); err != nil {
		return "", err
	}
	if len(payload.Items) == 0 {
		return "", errChannelNotFound
	}
	return payload.Items[0].ID, nil
}

func (s *APIStrategy) searchChannel(ctx context.Context, handle Handle) (string, error) {
	var payload struct {
		Items []struct {
			ID struct {
				ChannelID string `json:"channelId"`
			} `json:"id"`
			Snippet struct {
				Title     string `json:"title"`
				CustomURL string `json:"customUrl"`
			} `json:"snippet"`
		} `json:"items"`
	}
	params := map[string]string{
		"part":       "snippet",
		"type":       "channel",
		"maxResults": "5",
		"q":          string(handle),
	}
	if err := s.getJSON(ctx, s.searchURL, params, &payload); err != nil {
		return "", err
	}
	if len(payload.Items) == 0 {
		return "", nil
	}

	// Prefer an exact title or custom-URL match; otherwise trust the ranking.
	want := strings.ToLower(string(handle))
	for _, item := range payload.Items {
		title := strings.ToLower(item.Snippet.Title)
		custom := strings.ToLower(strings.TrimPrefix(item.Snippet.CustomURL, "@"))
		if title == want || custom == want {
			return item.ID.ChannelID, nil
		}
	}
	return payload.Items[0].ID.ChannelID, nil
}

// liveCandidates returns the ids of videos the search endpoint currently
// flags as live for the channel.
func (s *APIStrategy) liveCandidates(ctx context.Context, channelID string) ([]string, error) {
	var payload struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
		} `json:"items"`
	}
	params := map[string]string{
		"part":       "id",
		"channelId":  channelID,
		"eventType":  "live",
		"type":       "video",
		"maxResults": "5",
	}
	if err := s.getJSON(ctx, s.searchURL, params, &payload); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(payload.Items))
	for _, item := range payload.Items {
		if IsValidVideoID(item.ID.VideoID) {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

type liveVideo struct {
	id        string
	title     string
	startedAt time.Time
}

// verifyCandidates fetches broadcast details for the candidate videos and
// keeps only those that are truly live: a start time with no end time, or
// the provider's own live flag.
func (s *APIStrategy) verifyCandidates(ctx context.Context, ids []string) ([]liveVideo, error) {
	var payload struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title                string `json:"title"`
				LiveBroadcastContent string `json:"liveBroadcastContent"`
			} `json:"snippet"`
			LiveStreamingDetails struct {
				ActualStartTime string `json:"actualStartTime"`
				ActualEndTime   string `json:"actualEndTime"`
			} `json:"liveStreamingDetails"`
		} `json:"items"`
	}
	params := map[string]string{
		"part": "snippet,liveStreamingDetails",
		"id":   strings.Join(ids, ","),
	}
	if err := s.getJSON(ctx, s.videosURL, params, &payload); err != nil {
		return nil, err
	}

	var live []liveVideo
	for _, item := range payload.Items {
		details := item.LiveStreamingDetails
		flagged := strings.EqualFold(item.Snippet.LiveBroadcastContent, "live")
		broadcasting := details.ActualStartTime != "" && details.ActualEndTime == ""
		if !flagged && !broadcasting {
			continue
		}
		started, _ := time.Parse(time.RFC3339, details.ActualStartTime)
		live = append(live, liveVideo{id: item.ID, title: item.Snippet.Title, startedAt: started})
	}
	return live, nil
}

// getJSON performs an authenticated GET and decodes the response, mapping
// quota rejections to ErrQuotaExceeded.
func (s *APIStrategy) getJSON(ctx context.Context, endpoint string, params map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("key", s.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if isQuotaRejection(resp) {
			return ErrQuotaExceeded
		}
		return fmt.Errorf("api request failed: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// isQuotaRejection reports whether a non-200 response is a quota or rate
// limit rejection rather than an ordinary failure.
func isQuotaRejection(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return false
	}
	var body struct {
		Error struct {
			Errors []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// 429 without a parseable body is still a rate rejection.
		return resp.StatusCode == http.StatusTooManyRequests
	}
	for _, e := range body.Error.Errors {
		switch e.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return resp.StatusCode == http.StatusTooManyRequests
}
