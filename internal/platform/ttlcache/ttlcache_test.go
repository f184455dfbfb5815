package ttlcache

import (
	"testing"
	"time"
)

// fakeClock returns a controllable now func and an advance helper.
func fakeClock(start time.Time) (func() time.Time, func(time.Duration)) {
	current := start
	now := func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	return now, advance
}

func TestCache_GetWithinTTL(t *testing.T) {
	now, advance := fakeClock(time.Unix(1000, 0))
	c := NewWithClock[string](10*time.Second, now)

	c.Set("k", "v")

	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get: got %q ok=%v, want %q", got, ok, "v")
	}

	// Idempotent: a second Get within the TTL returns the identical value.
	advance(9 * time.Second)
	got2, ok := c.Get("k")
	if !ok || got2 != got {
		t.Errorf("second Get: got %q ok=%v, want %q", got2, ok, got)
	}
}

func TestCache_ExpiredEntryRemoved(t *testing.T) {
	now, advance := fakeClock(time.Unix(1000, 0))
	c := NewWithClock[int](10*time.Second, now)

	c.Set("k", 42)
	advance(10*time.Second + time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to be absent")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be deleted, Len=%d", c.Len())
	}
}

func TestCache_ExactTTLBoundaryStillValid(t *testing.T) {
	now, advance := fakeClock(time.Unix(1000, 0))
	c := NewWithClock[int](10*time.Second, now)

	c.Set("k", 1)
	advance(10 * time.Second)

	if _, ok := c.Get("k"); !ok {
		t.Error("entry aged exactly ttl should still be served")
	}
}

func TestCache_SetReplacesAndRestartsTTL(t *testing.T) {
	now, advance := fakeClock(time.Unix(1000, 0))
	c := NewWithClock[int](10*time.Second, now)

	c.Set("k", 1)
	advance(8 * time.Second)
	c.Set("k", 2)
	advance(8 * time.Second)

	got, ok := c.Get("k")
	if !ok || got != 2 {
		t.Errorf("Get after replace: got %d ok=%v, want 2", got, ok)
	}
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c := New[string](time.Second)
	if _, ok := c.Get("nope"); ok {
		t.Error("expected miss for unknown key")
	}
}
