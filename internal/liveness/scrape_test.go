package liveness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"livewall/internal/platform/fetch"
)

func newScrapeStrategy(t *testing.T, mux *http.ServeMux) *ScrapeStrategy {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	fetcher := fetch.New(5*time.Second, 0, fetch.WithHTTPClient(srv.Client()))
	return NewScrapeStrategy(fetcher, WithScrapeBaseURL(srv.URL))
}

func TestScrapeStrategy_redirectToWatchIsLive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/@handleA/live", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/watch?v=AbCdEfGhIjK", http.StatusFound)
	})
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"AbCdEfGhIjK","title":"Live Show","isLive":true}};</html>`))
	})
	s := newScrapeStrategy(t, mux)

	res, err := s.Check(context.Background(), "handleA")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Live || res.FoundBy != FoundByRedirect {
		t.Fatalf("got %+v, want live via redirect", res)
	}
	if res.VideoID != "AbCdEfGhIjK" || res.WatchURL != "https://www.youtube.com/watch?v=AbCdEfGhIjK" {
		t.Errorf("got %+v", res)
	}
	if res.Title != "Live Show" {
		t.Errorf("title = %q, want from redirected page", res.Title)
	}
}

func TestScrapeStrategy_offSiteRedirectIgnored(t *testing.T) {
	s := NewScrapeStrategy(nil, WithScrapeBaseURL("http://channels.internal"))

	bad, _ := url.Parse("https://evil.example/watch?v=AbCdEfGhIjK")
	if _, ok := s.watchVideoID(bad); ok {
		t.Error("off-site /watch redirect must carry no signal")
	}

	for _, raw := range []string{
		"https://www.youtube.com/watch?v=AbCdEfGhIjK",
		"http://channels.internal/watch?v=AbCdEfGhIjK",
	} {
		u, _ := url.Parse(raw)
		if id, ok := s.watchVideoID(u); !ok || id != "AbCdEfGhIjK" {
			t.Errorf("%s: expected accepted redirect target", raw)
		}
	}
}

func TestScrapeStrategy_redirectWithBadIDIgnored(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/@handleA/live", func(w http.ResponseWriter, r *http.Request) {
		// 10-character id: must not be trusted as a redirect signal.
		http.Redirect(w, r, "/watch?v=AbCdEfGhIj", http.StatusFound)
	})
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>Streamed live yesterday</html>`))
	})
	s := newScrapeStrategy(t, mux)

	res, err := s.Check(context.Background(), "handleA")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Live {
		t.Errorf("got %+v, want not live", res)
	}
}

func TestScrapeStrategy_structuredDataWithoutRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/@handleA/live", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"AbCdEfGhIjK","title":"t","isLive":true}};</html>`))
	})
	s := newScrapeStrategy(t, mux)

	res, err := s.Check(context.Background(), "handleA")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Live || res.FoundBy != FoundByPage || res.VideoID != "AbCdEfGhIjK" {
		t.Errorf("got %+v, want live via page data", res)
	}
}

func TestScrapeStrategy_botWallNeverLive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/@handleA/live", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>Before you continue to YouTube <a href="/watch?v=AbCdEfGhIjK">x</a></html>`))
	})
	s := newScrapeStrategy(t, mux)

	res, err := s.Check(context.Background(), "handleA")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Live || res.VideoID != "" {
		t.Fatalf("got %+v, want not live with no video id", res)
	}
	if res.Error == "" {
		t.Error("expected interstitial to be recorded in the error field")
	}
}

func TestScrapeStrategy_streamsPageAsSecondarySource(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/@handleA/live", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>nothing to see</html>`))
	})
	mux.HandleFunc("/@handleA/streams", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>1,234 watching now<link rel="canonical" href="https://www.youtube.com/watch?v=AbCdEfGhIjK"></html>`))
	})
	s := newScrapeStrategy(t, mux)

	res, err := s.Check(context.Background(), "handleA")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Live || res.FoundBy != FoundByKeyword {
		t.Fatalf("got %+v, want keyword live from /streams", res)
	}
	if res.VideoID != "AbCdEfGhIjK" {
		t.Errorf("got video id %q", res.VideoID)
	}
}

func TestScrapeStrategy_noSignalAnywhere(t *testing.T) {
	mux := http.NewServeMux()
	blank := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>nothing</html>`))
	}
	mux.HandleFunc("/@handleA/live", blank)
	mux.HandleFunc("/@handleA/streams", blank)
	s := newScrapeStrategy(t, mux)

	res, err := s.Check(context.Background(), "handleA")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Live || res.FoundBy != FoundByNone || res.Error != "" {
		t.Errorf("got %+v, want quiet not-live", res)
	}
}

func TestScrapeStrategy_serverErrorPropagates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/@handleA/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	s := newScrapeStrategy(t, mux)

	if _, err := s.Check(context.Background(), "handleA"); err == nil {
		t.Error("expected an error for a 500 channel page")
	}
}
