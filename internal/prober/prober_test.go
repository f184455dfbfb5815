package prober

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"livewall/internal/platform/fetch"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestProber(t *testing.T, mux *http.ServeMux) (*Prober, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	fetcher := fetch.New(5*time.Second, 0, fetch.WithHTTPClient(srv.Client()))
	p := New(fetcher, Options{
		Timeout: 2 * time.Second,
		Log:     quietLogger(),
	})
	return p, srv
}

func TestProber_onAirMarkerIsLive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ch1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div class="badge">ON AIR</div></body></html>`))
	})
	p, srv := newTestProber(t, mux)

	results := p.CheckBatch(context.Background(), []Source{{ID: "ch1", URL: srv.URL + "/ch1"}})
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].State != StateLive {
		t.Errorf("got %+v, want LIVE", results[0])
	}
}

func TestProber_visibleTextFallbackIsCaseInsensitive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ch1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><span>now On Air for you</span></body></html>`))
	})
	p, srv := newTestProber(t, mux)

	results := p.CheckBatch(context.Background(), []Source{{ID: "ch1", URL: srv.URL + "/ch1"}})
	if results[0].State != StateLive {
		t.Errorf("got %+v, want LIVE from text fallback", results[0])
	}
}

func TestProber_noMarkerIsOffline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ch1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>schedule for next week</body></html>`))
	})
	p, srv := newTestProber(t, mux)

	results := p.CheckBatch(context.Background(), []Source{{ID: "ch1", URL: srv.URL + "/ch1"}})
	if results[0].State != StateOffline {
		t.Errorf("got %+v, want OFFLINE", results[0])
	}
}

func TestProber_serverErrorEmbedsStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ch1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	p, srv := newTestProber(t, mux)

	results := p.CheckBatch(context.Background(), []Source{{ID: "ch1", URL: srv.URL + "/ch1"}})
	if results[0].State != StateError {
		t.Fatalf("got %+v, want ERROR", results[0])
	}
	if !strings.Contains(results[0].Reason, "500") {
		t.Errorf("reason %q should embed the status code", results[0].Reason)
	}
}

func TestProber_fetchFailureIsError(t *testing.T) {
	mux := http.NewServeMux()
	p, srv := newTestProber(t, mux)
	srv.Close() // force connection errors

	results := p.CheckBatch(context.Background(), []Source{{ID: "ch1", URL: srv.URL + "/ch1"}})
	if results[0].State != StateError || results[0].Reason == "" {
		t.Errorf("got %+v, want ERROR with reason", results[0])
	}
}

func TestProber_batchPreservesOrderAndIsolation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`ON AIR`))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/idle", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`nothing here`))
	})
	p, srv := newTestProber(t, mux)

	sources := []Source{
		{ID: "a", URL: srv.URL + "/live"},
		{ID: "b", URL: srv.URL + "/down"},
		{ID: "c", URL: srv.URL + "/idle"},
	}
	results := p.CheckBatch(context.Background(), sources)
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	want := []State{StateLive, StateError, StateOffline}
	for i, state := range want {
		if results[i].ID != sources[i].ID || results[i].State != state {
			t.Errorf("result %d = %+v, want id=%s state=%s", i, results[i], sources[i].ID, state)
		}
	}
}

func TestProber_batchCached(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/ch1", func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`ON AIR`))
	})
	p, srv := newTestProber(t, mux)

	sources := []Source{{ID: "ch1", URL: srv.URL + "/ch1"}}
	p.CheckBatch(context.Background(), sources)
	p.CheckBatch(context.Background(), sources)

	if hits != 1 {
		t.Errorf("upstream fetched %d times, want 1 (second batch cached)", hits)
	}
}
