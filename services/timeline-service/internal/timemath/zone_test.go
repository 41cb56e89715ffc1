package timemath

import (
	"errors"
	"testing"
	"time"
)

func jerusalem(t *testing.T) *Zone {
	t.Helper()
	z, err := LoadZone("Asia/Jerusalem")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return z
}

func TestLoadZoneUnknown(t *testing.T) {
	if _, err := LoadZone("Mars/Olympus"); !errors.Is(err, ErrUnknownTimezone) {
		t.Fatalf("expected ErrUnknownTimezone, got %v", err)
	}
}

func TestDayKeyNearMidnight(t *testing.T) {
	z := jerusalem(t)
	// 2025-06-01T23:45 at +03:00 is still June 1 locally.
	ts := time.Date(2025, 6, 1, 20, 45, 0, 0, time.UTC)
	if got := z.DayKey(ts); got != "2025-06-01" {
		t.Fatalf("expected 2025-06-01, got %s", got)
	}
	if got := NewZone(time.FixedZone("UTC+3", 3*3600)).DayKey(ts); got != "2025-06-01" {
		t.Fatalf("fixed zone: expected 2025-06-01, got %s", got)
	}
	if got := z.DayKey(ts.Add(15 * time.Minute)); got != "2025-06-02" {
		t.Fatalf("expected 2025-06-02 after local midnight, got %s", got)
	}
}

func TestDayKeyAcrossDST(t *testing.T) {
	z := jerusalem(t)
	// Israel moved to summer time at 02:00 local on 2025-03-28.
	before := time.Date(2025, 3, 27, 21, 59, 0, 0, time.UTC) // 23:59 +02
	after := time.Date(2025, 3, 27, 22, 0, 0, 0, time.UTC)   // 00:00 +02
	if z.DayKey(before) != "2025-03-27" || z.DayKey(after) != "2025-03-28" {
		t.Fatalf("unexpected keys %s %s", z.DayKey(before), z.DayKey(after))
	}
	late := time.Date(2025, 3, 28, 20, 59, 0, 0, time.UTC) // 23:59 +03
	if z.DayKey(late) != "2025-03-28" {
		t.Fatalf("expected 2025-03-28, got %s", z.DayKey(late))
	}
}

func TestMinutesFromMidnight(t *testing.T) {
	z := jerusalem(t)
	ts := time.Date(2025, 3, 10, 9, 15, 0, 0, z.Location())
	if got := z.MinutesFromMidnight(ts); got != 555 {
		t.Fatalf("expected 555, got %d", got)
	}
	dst := time.Date(2025, 3, 28, 3, 0, 0, 0, z.Location())
	if got := z.MinutesFromMidnight(dst); got != 180 {
		t.Fatalf("expected wall clock 180 on DST day, got %d", got)
	}
	last := time.Date(2025, 3, 10, 23, 59, 59, 0, z.Location())
	if got := z.MinutesFromMidnight(last); got != 1439 {
		t.Fatalf("expected 1439, got %d", got)
	}
}

func TestBuildRangeSpansLocalDays(t *testing.T) {
	z := jerusalem(t)
	anchor := time.Date(2025, 3, 20, 15, 30, 0, 0, z.Location())
	r := z.BuildRange(anchor, 14)

	if !r.Start.Equal(time.Date(2025, 3, 20, 0, 0, 0, 0, z.Location())) {
		t.Fatalf("unexpected start %s", r.Start)
	}
	if !r.End.Equal(time.Date(2025, 4, 3, 0, 0, 0, 0, z.Location())) {
		t.Fatalf("unexpected end %s", r.End)
	}
	// One hour is lost to the DST change on 2025-03-28.
	if got := r.End.Sub(r.Start); got != 14*24*time.Hour-time.Hour {
		t.Fatalf("unexpected duration %s", got)
	}
	if n := len(z.Days(r)); n != 14 {
		t.Fatalf("expected 14 days, got %d", n)
	}
}

func TestRangeContainsIsHalfOpen(t *testing.T) {
	z := jerusalem(t)
	r := z.BuildRange(time.Date(2025, 6, 1, 0, 0, 0, 0, z.Location()), 1)
	if !r.Contains(r.Start) {
		t.Fatal("start must be included")
	}
	if r.Contains(r.End) {
		t.Fatal("end must be excluded")
	}
	if !(Range{}).Contains(r.End) {
		t.Fatal("zero range is unbounded")
	}
}

func TestParseLocalTime(t *testing.T) {
	z := jerusalem(t)
	base := time.Date(2025, 6, 1, 21, 30, 0, 0, time.UTC) // 2025-06-02 00:30 local

	got, err := z.ParseLocalTime("9:05", base)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := time.Date(2025, 6, 2, 9, 5, 0, 0, z.Location()); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	for _, bad := range []string{"", "9", "930", "24:00", "12:60", "1:2", "012:00", "ab:cd", " 9:00"} {
		if _, err := z.ParseLocalTime(bad, base); !errors.Is(err, ErrInvalidTimeFormat) {
			t.Fatalf("%q: expected ErrInvalidTimeFormat, got %v", bad, err)
		}
	}
}

func TestParseDateTimeDoesNotDoubleShift(t *testing.T) {
	z := jerusalem(t)
	abs, err := z.ParseDateTime("2025-06-01T11:30:00Z")
	if err != nil {
		t.Fatalf("parse absolute: %v", err)
	}
	naive, err := z.ParseDateTime("2025-06-01T14:30:00")
	if err != nil {
		t.Fatalf("parse naive: %v", err)
	}
	if !abs.Equal(naive) {
		t.Fatalf("expected same instant, got %s and %s", abs, naive)
	}
	if _, err := z.ParseDateTime("yesterday"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseDayKey(t *testing.T) {
	z := jerusalem(t)
	got, err := z.ParseDayKey("2025-03-28")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if z.DayKey(got) != "2025-03-28" || z.MinutesFromMidnight(got) != 0 {
		t.Fatalf("expected local midnight, got %s", got)
	}
	if _, err := z.ParseDayKey("28/03/2025"); !errors.Is(err, ErrInvalidDayKey) {
		t.Fatalf("expected ErrInvalidDayKey, got %v", err)
	}
}

func TestIsTodayAndClock(t *testing.T) {
	z := jerusalem(t)
	now := time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC) // 01:00 on June 2 local
	if !z.IsToday(time.Date(2025, 6, 2, 8, 0, 0, 0, z.Location()), now) {
		t.Fatal("expected same local day")
	}
	if z.FormatClock(now) != "01:00" {
		t.Fatalf("unexpected clock %s", z.FormatClock(now))
	}
	if DiffMinutes(now, now.Add(95*time.Minute)) != 95 {
		t.Fatal("unexpected diff")
	}
}
