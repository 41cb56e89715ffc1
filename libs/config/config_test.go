package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIntAndSeconds(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "42")
	t.Setenv("CFG_TEST_SECS", "7")
	t.Setenv("CFG_TEST_BAD", "x")

	n, err := Int("CFG_TEST_INT", 1)
	if err != nil || n != 42 {
		t.Fatalf("expected 42, got %d (%v)", n, err)
	}
	if n, err := Int("CFG_TEST_UNSET", 5); err != nil || n != 5 {
		t.Fatalf("expected fallback 5, got %d (%v)", n, err)
	}
	if _, err := Int("CFG_TEST_BAD", 1); err == nil {
		t.Fatal("expected error for non-integer value")
	}

	d, err := Seconds("CFG_TEST_SECS", time.Second)
	if err != nil || d != 7*time.Second {
		t.Fatalf("expected 7s, got %s (%v)", d, err)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("CFG_TEST_PORT", "70000")
	if _, err := Port("CFG_TEST_PORT", "8080"); err == nil {
		t.Fatal("expected out of range port to fail")
	}
	if p, err := Port("CFG_TEST_PORT_UNSET", "8080"); err != nil || p != "8080" {
		t.Fatalf("expected fallback port, got %q (%v)", p, err)
	}
}

func TestOverlayYAML(t *testing.T) {
	type settings struct {
		Timezone string `yaml:"timezone"`
		SpanDays int    `yaml:"span_days"`
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "timeline.yaml")
	if err := os.WriteFile(path, []byte("span_days: 7\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := settings{Timezone: "Asia/Jerusalem", SpanDays: 14}
	ok, err := OverlayYAML(path, &s)
	if err != nil || !ok {
		t.Fatalf("overlay failed: ok=%v err=%v", ok, err)
	}
	if s.SpanDays != 7 {
		t.Fatalf("expected span_days override, got %d", s.SpanDays)
	}
	if s.Timezone != "Asia/Jerusalem" {
		t.Fatalf("expected untouched timezone, got %q", s.Timezone)
	}

	ok, err = OverlayYAML(filepath.Join(dir, "missing.yaml"), &s)
	if err != nil || ok {
		t.Fatalf("expected missing file to be ignored, got ok=%v err=%v", ok, err)
	}
}
