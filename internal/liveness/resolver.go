package liveness

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"livewall/internal/platform/metrics"
	"livewall/internal/platform/ttlcache"
)

// Strategy is one way of answering "is this handle live right now".
// Implementations must not panic across this boundary; errors are recovered
// by fallbacks in the Resolver.
type Strategy interface {
	Name() string
	Check(ctx context.Context, handle Handle) (Result, error)
}

// Defaults; all overridable through Options.
const (
	DefaultBatchTTL    = 12 * time.Second
	DefaultHoldoverTTL = 5 * time.Minute
	DefaultTimeout     = 9 * time.Second
	DefaultConcurrency = 6
)

// Options configures a Resolver. Zero values fall back to the defaults above.
type Options struct {
	BatchTTL    time.Duration // batch response cache lifetime
	HoldoverTTL time.Duration // last-known-good holdover lifetime
	Timeout     time.Duration // hard per-source resolution deadline
	Concurrency int           // upstream fan-out bound per batch
	Clock       func() time.Time
	Log         *slog.Logger
	Metrics     *metrics.Metrics // may be nil to disable metric recording
}

// Resolver runs the strategy chain over batches of normalized inputs, with a
// short-TTL batch cache collapsing near-simultaneous polls and a longer-TTL
// holdover masking transient upstream failures.
type Resolver struct {
	strategies  []Strategy
	batch       *ttlcache.Cache[map[string]Result]
	holdover    *ttlcache.Cache[Result]
	timeout     time.Duration
	concurrency int
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// NewResolver returns a Resolver that tries strategies in the given order,
// short-circuiting on the first positive verdict.
func NewResolver(strategies []Strategy, opts Options) *Resolver {
	if opts.BatchTTL <= 0 {
		opts.BatchTTL = DefaultBatchTTL
	}
	if opts.HoldoverTTL <= 0 {
		opts.HoldoverTTL = DefaultHoldoverTTL
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
	return &Resolver{
		strategies:  strategies,
		batch:       ttlcache.NewWithClock[map[string]Result](opts.BatchTTL, opts.Clock),
		holdover:    ttlcache.NewWithClock[Result](opts.HoldoverTTL, opts.Clock),
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		log:         opts.Log,
		metrics:     opts.Metrics,
	}
}

// ResolveBatch resolves every input and returns a map keyed by canonical
// handle (or video id for direct inputs). It waits for all sources to
// resolve or individually time out; there is no partial response. The
// returned map may be shared with the batch cache and must be treated as
// read-only by callers.
func (r *Resolver) ResolveBatch(ctx context.Context, inputs []Input) map[string]Result {
	if len(inputs) == 0 {
		return map[string]Result{}
	}

	key := batchKey(inputs)
	if cached, ok := r.batch.Get(key); ok {
		if r.metrics != nil {
			r.metrics.IncBatchCacheHit()
		}
		return cached
	}
	if r.metrics != nil {
		r.metrics.IncBatchCacheMiss()
	}

	results := make(map[string]Result, len(inputs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, in := range inputs {
		in := in
		g.Go(func() error {
			res := r.resolveOne(gctx, in)
			mu.Lock()
			results[in.Key()] = res
			mu.Unlock()
			return nil
		})
	}
	// Goroutines never return errors; Wait is a barrier.
	_ = g.Wait()

	r.batch.Set(key, results)
	return results
}

// resolveOne runs the chain for a single input under the per-source timeout.
func (r *Resolver) resolveOne(ctx context.Context, in Input) Result {
	// Direct video ids were supplied as concrete watch references; they skip
	// the chain entirely.
	if in.VideoID != "" {
		res := Result{
			Handle:   string(in.VideoID),
			Live:     true,
			VideoID:  string(in.VideoID),
			WatchURL: WatchURL(in.VideoID),
			FoundBy:  FoundByDirect,
		}
		r.record(res.FoundBy)
		return res
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		lastErr error
		lastRes Result
		haveRes bool
	)
	for _, strategy := range r.strategies {
		res, err := strategy.Check(cctx, in.Handle)
		if err != nil {
			switch {
			case errors.Is(err, ErrQuotaExceeded):
				// Retryable and distinct from "not live": fall through to the
				// next strategy without recording a failure.
				r.log.Warn("strategy quota exceeded, falling back",
					slog.String("strategy", strategy.Name()),
					slog.String("handle", string(in.Handle)))
			case errors.Is(err, ErrMissingAPIKey):
				// Configuration gap, not an upstream failure.
			default:
				lastErr = err
				if r.metrics != nil {
					r.metrics.IncUpstreamError()
				}
				r.log.Warn("strategy failed",
					slog.String("strategy", strategy.Name()),
					slog.String("handle", string(in.Handle)),
					slog.String("error", err.Error()))
			}
			continue
		}
		if res.Live {
			r.record(res.FoundBy)
			r.holdover.Set(in.Key(), res)
			return res
		}
		// A confident negative still lets later strategies look; only a
		// positive short-circuits.
		lastRes, haveRes = res, true
		if res.Error == "" {
			r.holdover.Set(in.Key(), res)
		}
	}

	if haveRes {
		r.record(lastRes.FoundBy)
		return lastRes
	}

	// Every strategy failed; serve the last known good verdict if it has not
	// aged out, so momentary upstream blips don't flicker the caller to
	// offline.
	if held, ok := r.holdover.Get(in.Key()); ok {
		held.FoundBy = FoundByCache
		held.Error = ""
		if r.metrics != nil {
			r.metrics.IncHoldoverServed()
		}
		r.record(FoundByCache)
		return held
	}

	reason := "no strategies configured"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		reason = "timeout"
	}
	r.record(FoundByNone)
	return Result{Handle: string(in.Handle), Live: false, FoundBy: FoundByNone, Error: reason}
}

func (r *Resolver) record(foundBy FoundBy) {
	if r.metrics != nil {
		r.metrics.IncResolution(string(foundBy))
	}
}

// batchKey serializes the deduped input list into a stable cache key.
func batchKey(inputs []Input) string {
	keys := make([]string, 0, len(inputs))
	for _, in := range inputs {
		keys = append(keys, in.Key())
	}
	return strings.Join(keys, ",")
}
