package model

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"confirmed":   StatusConfirmed,
		" Cancelled ": StatusCanceled,
		"canceled":    StatusCanceled,
		"COMPLETED":   StatusCompleted,
		"pending":     StatusPending,
		"booked":      StatusBooked,
		"no-show":     StatusBooked,
		"":            StatusBooked,
	}
	for raw, want := range cases {
		if got := ParseStatus(raw); got != want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	a := Appointment{StartAt: base, EndAt: base.Add(30 * time.Minute)}
	b := Appointment{StartAt: base.Add(30 * time.Minute), EndAt: base.Add(time.Hour)}
	c := Appointment{StartAt: base.Add(15 * time.Minute), EndAt: base.Add(45 * time.Minute)}

	if a.Overlaps(b) || b.Overlaps(a) {
		t.Fatal("back-to-back appointments must not overlap")
	}
	if !a.Overlaps(c) || !c.Overlaps(b) {
		t.Fatal("expected overlap")
	}
}

func TestSortByStartTieBreaksByID(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	appts := []Appointment{
		{ID: "c", StartAt: base.Add(time.Minute)},
		{ID: "b", StartAt: base},
		{ID: "a", StartAt: base},
	}
	SortByStart(appts)
	if appts[0].ID != "a" || appts[1].ID != "b" || appts[2].ID != "c" {
		t.Fatalf("unexpected order %v", appts)
	}
}
