package layout

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
)

func testEngine(t *testing.T) (*Engine, *time.Location) {
	t.Helper()
	zone, err := timemath.LoadZone("Asia/Jerusalem")
	if err != nil {
		t.Fatalf("zone: %v", err)
	}
	return New(Options{Zone: zone, DayStartHour: 6, DayEndHour: 24, MinVisualMinutes: 15}), zone.Location()
}

func appt(id string, loc *time.Location, day time.Time, hh, mm, minutes int) model.Appointment {
	start := time.Date(day.Year(), day.Month(), day.Day(), hh, mm, 0, 0, loc)
	return model.Appointment{
		ID:              id,
		StartAt:         start,
		EndAt:           start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
	}
}

func TestTwoOverlappingAppointments(t *testing.T) {
	e, loc := testEngine(t)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)
	slots := e.Layout(day, []model.Appointment{
		appt("b", loc, day, 9, 15, 30),
		appt("a", loc, day, 9, 0, 30),
	})

	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].AppointmentID != "a" || slots[0].Column != 0 || slots[0].ColumnCount != 2 {
		t.Fatalf("unexpected first slot %+v", slots[0])
	}
	if slots[1].AppointmentID != "b" || slots[1].Column != 1 || slots[1].ColumnCount != 2 {
		t.Fatalf("unexpected second slot %+v", slots[1])
	}
	if slots[0].StartOffsetMinutes != 180 || slots[1].StartOffsetMinutes != 195 {
		t.Fatalf("unexpected offsets %d %d", slots[0].StartOffsetMinutes, slots[1].StartOffsetMinutes)
	}
}

func TestColumnReuseAndClusters(t *testing.T) {
	e, loc := testEngine(t)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)
	slots := e.Layout(day, []model.Appointment{
		appt("a", loc, day, 9, 0, 60),   // 09:00-10:00
		appt("b", loc, day, 9, 0, 30),   // 09:00-09:30
		appt("c", loc, day, 9, 30, 60),  // 09:30-10:30 reuses b's column
		appt("d", loc, day, 10, 30, 30), // back to back, new cluster
		appt("e", loc, day, 12, 0, 30),
	})

	got := map[string]Slot{}
	for _, s := range slots {
		got[s.AppointmentID] = s
	}
	if got["a"].Column != 0 || got["b"].Column != 1 || got["c"].Column != 1 {
		t.Fatalf("unexpected columns %+v", slots)
	}
	for _, id := range []string{"a", "b", "c"} {
		if got[id].ColumnCount != 2 {
			t.Fatalf("%s: expected cluster width 2, got %d", id, got[id].ColumnCount)
		}
	}
	if got["d"].Column != 0 || got["d"].ColumnCount != 1 || got["e"].ColumnCount != 1 {
		t.Fatalf("expected isolated clusters, got %+v %+v", got["d"], got["e"])
	}
}

func TestIdenticalStartsTieBreakByID(t *testing.T) {
	e, loc := testEngine(t)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)
	slots := e.Layout(day, []model.Appointment{
		appt("z", loc, day, 10, 0, 30),
		appt("m", loc, day, 10, 0, 30),
		appt("a", loc, day, 10, 0, 30),
	})
	for i, id := range []string{"a", "m", "z"} {
		if slots[i].AppointmentID != id || slots[i].Column != i || slots[i].ColumnCount != 3 {
			t.Fatalf("position %d: unexpected slot %+v", i, slots[i])
		}
	}
}

func TestClampsShortAppointments(t *testing.T) {
	e, loc := testEngine(t)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)
	slots := e.Layout(day, []model.Appointment{
		appt("a", loc, day, 9, 0, 5),
		appt("b", loc, day, 9, 10, 30),
	})
	if slots[0].DurationMinutes != 5 || slots[0].VisualDurationMinutes != 15 {
		t.Fatalf("expected clamped visual duration, got %+v", slots[0])
	}
	// a renders until 09:15, so b must sit beside it.
	if slots[1].Column != 1 || slots[1].ColumnCount != 2 {
		t.Fatalf("expected collision avoidance on visual duration, got %+v", slots[1])
	}
}

func TestExcludesOutsideWindow(t *testing.T) {
	e, loc := testEngine(t)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)
	slots := e.Layout(day, []model.Appointment{
		appt("early", loc, day, 4, 0, 60),  // 04:00-05:00 hidden
		appt("edge", loc, day, 5, 30, 60),  // 05:30-06:30 partly visible
		appt("short", loc, day, 5, 50, 5),  // 05:50-05:55 hidden, though clamped to 15
		appt("late", loc, day, 23, 30, 20), // visible
		appt("next", loc, day.AddDate(0, 0, 1), 6, 0, 30),
	})
	ids := []string{}
	for _, s := range slots {
		ids = append(ids, s.AppointmentID)
	}
	if !reflect.DeepEqual(ids, []string{"edge", "late"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
	if slots[0].StartOffsetMinutes != -30 {
		t.Fatalf("expected negative offset, got %d", slots[0].StartOffsetMinutes)
	}
}

func TestRandomizedNonCollisionAndDeterminism(t *testing.T) {
	e, loc := testEngine(t)
	day := time.Date(2025, 3, 28, 0, 0, 0, 0, loc)
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		var in []model.Appointment
		for i := 0; i < 25; i++ {
			in = append(in, appt(fmt.Sprintf("a%02d", i), loc, day, 6+rng.Intn(16), rng.Intn(4)*15, rng.Intn(90)))
		}
		first := e.Layout(day, in)
		rng.Shuffle(len(in), func(i, j int) { in[i], in[j] = in[j], in[i] })
		second := e.Layout(day, in)
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("round %d: layout depends on input order", round)
		}

		for i := range first {
			for j := i + 1; j < len(first); j++ {
				a, b := first[i], first[j]
				if a.StartOffsetMinutes < b.end() && b.StartOffsetMinutes < a.end() {
					if a.Column == b.Column {
						t.Fatalf("round %d: %s and %s collide in column %d", round, a.AppointmentID, b.AppointmentID, a.Column)
					}
					if a.ColumnCount != b.ColumnCount {
						t.Fatalf("round %d: overlapping slots disagree on column count", round)
					}
				}
			}
			if first[i].Column >= first[i].ColumnCount {
				t.Fatalf("round %d: column %d outside count %d", round, first[i].Column, first[i].ColumnCount)
			}
		}
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	e := New(Options{DayStartHour: 30, DayEndHour: 2})
	if e.DayStartHour() != DefaultDayStartHour || e.DayEndHour() != DefaultDayEndHour {
		t.Fatalf("unexpected window %d-%d", e.DayStartHour(), e.DayEndHour())
	}
}
