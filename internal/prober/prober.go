package prober

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"livewall/internal/platform/fetch"
	"livewall/internal/platform/metrics"
	"livewall/internal/platform/ttlcache"
)

// State classifies an external source probe.
type State string

const (
	StateLive    State = "LIVE"
	StateOffline State = "OFFLINE"
	StateError   State = "ERROR"
)

// Source is one external page to probe.
type Source struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// StatusResult is the probe outcome for one source.
type StatusResult struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// defaultMarkers are checked on every probed page. This is deliberately a
// per-publisher text match: a new external source usually needs its own
// marker added to hostMarkers.
var defaultMarkers = []string{
	"ON AIR",
	"LIVE NOW",
	"ONLINE NOW",
}

// hostMarkers holds publisher-specific live markers keyed by hostname.
// Checked in addition to the defaults.
var hostMarkers = map[string][]string{}

// Defaults; all overridable through Options.
const (
	DefaultBatchTTL    = 12 * time.Second
	DefaultTimeout     = 9 * time.Second
	DefaultConcurrency = 6
)

// Options configures a Prober. Zero values fall back to the defaults above.
type Options struct {
	BatchTTL    time.Duration
	Timeout     time.Duration
	Concurrency int
	Clock       func() time.Time
	Log         *slog.Logger
	Metrics     *metrics.Metrics // may be nil to disable metric recording
}

// Prober fetches external pages and classifies them LIVE, OFFLINE, or ERROR
// by literal marker matching. Batches share a short-TTL cache keyed by the
// serialized URL list.
type Prober struct {
	fetcher     *fetch.Client
	cache       *ttlcache.Cache[[]StatusResult]
	timeout     time.Duration
	concurrency int
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// New returns a Prober that fetches through the given client.
func New(fetcher *fetch.Client, opts Options) *Prober {
	if opts.BatchTTL <= 0 {
		opts.BatchTTL = DefaultBatchTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Prober{
		fetcher:     fetcher,
		cache:       ttlcache.NewWithClock[[]StatusResult](opts.BatchTTL, opts.Clock),
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		log:         opts.Log,
		metrics:     opts.Metrics,
	}
}

// CheckBatch probes every source and returns results in input order. A fetch
// or status failure yields an ERROR entry for that source; the batch itself
// never fails.
func (p *Prober) CheckBatch(ctx context.Context, sources []Source) []StatusResult {
	if len(sources) == 0 {
		return []StatusResult{}
	}

	key := batchKey(sources)
	if cached, ok := p.cache.Get(key); ok {
		return cached
	}

	results := make([]StatusResult, len(sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res := p.probe(gctx, src)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if p.metrics != nil {
			p.metrics.IncProbe(string(res.State))
		}
	}

	p.cache.Set(key, results)
	return results
}

// probe fetches one source and classifies it. Markers are matched
// case-sensitively against the raw HTML first, then case-insensitively
// against the document's visible text.
func (p *Prober) probe(ctx context.Context, src Source) StatusResult {
	res := StatusResult{ID: src.ID, URL: src.URL}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	page, err := p.fetcher.Get(cctx, src.URL, nil)
	if err != nil {
		res.State = StateError
		res.Reason = err.Error()
		if p.metrics != nil {
			p.metrics.IncUpstreamError()
		}
		return res
	}
	if page.StatusCode < 200 || page.StatusCode > 299 {
		res.State = StateError
		res.Reason = fmt.Sprintf("unexpected status %d", page.StatusCode)
		return res
	}

	markers := markersFor(src.URL)

	for _, marker := range markers {
		if bytes.Contains(page.Body, []byte(marker)) {
			res.State = StateLive
			return res
		}
	}

	// Fallback: the marker may be assembled across markup; check the
	// rendered text without case sensitivity.
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body)); err == nil {
		text := strings.ToLower(doc.Text())
		for _, marker := range markers {
			if strings.Contains(text, strings.ToLower(marker)) {
				res.State = StateLive
				return res
			}
		}
	}

	res.State = StateOffline
	return res
}

func markersFor(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultMarkers
	}
	host := strings.ToLower(u.Hostname())
	if extra, ok := hostMarkers[host]; ok {
		return append(append([]string{}, extra...), defaultMarkers...)
	}
	return defaultMarkers
}

func batchKey(sources []Source) string {
	urls := make([]string, 0, len(sources))
	for _, src := range sources {
		urls = append(urls, src.URL)
	}
	return strings.Join(urls, ",")
}
