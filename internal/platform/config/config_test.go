package config

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("LIVEWALL_TEST_STR", "value")
	if got := GetEnv("LIVEWALL_TEST_STR", "fallback"); got != "value" {
		t.Errorf("got %q", got)
	}
	if got := GetEnv("LIVEWALL_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("LIVEWALL_TEST_INT", "8")
	if got := GetEnvInt("LIVEWALL_TEST_INT", 3); got != 8 {
		t.Errorf("got %d", got)
	}
	t.Setenv("LIVEWALL_TEST_INT", "not a number")
	if got := GetEnvInt("LIVEWALL_TEST_INT", 3); got != 3 {
		t.Errorf("got %d, want fallback on parse failure", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("LIVEWALL_TEST_DUR", "90s")
	if got := GetEnvDuration("LIVEWALL_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("got %v", got)
	}
	t.Setenv("LIVEWALL_TEST_DUR", "soon")
	if got := GetEnvDuration("LIVEWALL_TEST_DUR", 5*time.Minute); got != 5*time.Minute {
		t.Errorf("got %v, want fallback on parse failure", got)
	}
}
