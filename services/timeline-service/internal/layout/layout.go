// Package layout places the appointments of one lane into columns so that
// overlapping appointments sit side by side.
package layout

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
)

const (
	DefaultDayStartHour     = 6
	DefaultDayEndHour       = 24
	DefaultMinVisualMinutes = 15
)

type Options struct {
	Zone *timemath.Zone
	// DayStartHour is the lane's reference point; offsets are measured from it.
	DayStartHour int
	// DayEndHour closes the visible window. 24 means local midnight.
	DayEndHour       int
	MinVisualMinutes int
}

type Slot struct {
	AppointmentID      string `json:"appointmentId"`
	Column             int    `json:"column"`
	ColumnCount        int    `json:"columnCount"`
	StartOffsetMinutes int    `json:"startOffsetMinutes"`
	DurationMinutes    int    `json:"durationMinutes"`
	// VisualDurationMinutes is DurationMinutes raised to the minimum the lane
	// can render. Placement uses it.
	VisualDurationMinutes int `json:"visualDurationMinutes"`
}

func (s Slot) end() int { return s.StartOffsetMinutes + s.VisualDurationMinutes }

type Engine struct {
	zone       *timemath.Zone
	startHour  int
	endHour    int
	minVisual  int
	windowSize int
}

func New(opts Options) *Engine {
	e := &Engine{
		zone:      opts.Zone,
		startHour: opts.DayStartHour,
		endHour:   opts.DayEndHour,
		minVisual: opts.MinVisualMinutes,
	}
	if e.zone == nil {
		e.zone = timemath.NewZone(time.UTC)
	}
	if e.startHour < 0 || e.startHour > 23 {
		e.startHour = DefaultDayStartHour
	}
	if e.endHour <= e.startHour || e.endHour > 24 {
		e.endHour = DefaultDayEndHour
	}
	if e.minVisual <= 0 {
		e.minVisual = DefaultMinVisualMinutes
	}
	e.windowSize = (e.endHour - e.startHour) * 60
	return e
}

func (e *Engine) DayStartHour() int { return e.startHour }
func (e *Engine) DayEndHour() int   { return e.endHour }

// Layout computes slots for appointments on the local day of day. Output is
// ordered by start offset, then start instant and id, and omits appointments
// entirely outside the visible window.
func (e *Engine) Layout(day time.Time, appointments []model.Appointment) []Slot {
	sorted := make([]model.Appointment, len(appointments))
	copy(sorted, appointments)
	model.SortByStart(sorted)

	slots := make([]Slot, 0, len(sorted))
	for _, a := range sorted {
		s := Slot{
			AppointmentID:         a.ID,
			StartOffsetMinutes:    e.offset(day, a.StartAt),
			DurationMinutes:       a.DurationMinutes,
			VisualDurationMinutes: max(a.DurationMinutes, e.minVisual),
		}
		// The visible window is judged on the real duration.
		if (s.StartOffsetMinutes < 0 && s.StartOffsetMinutes+s.DurationMinutes <= 0) || s.StartOffsetMinutes >= e.windowSize {
			continue
		}
		slots = append(slots, s)
	}
	// Wall-clock offsets can run backwards across a DST fall-back hour.
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].StartOffsetMinutes < slots[j].StartOffsetMinutes
	})
	assignColumns(slots)
	return slots
}

// offset is the wall-clock distance in minutes from the lane's reference
// point to t. It is negative for appointments starting before the window.
func (e *Engine) offset(day, t time.Time) int {
	ly, lm, ld := day.In(e.zone.Location()).Date()
	ty, tm, td := t.In(e.zone.Location()).Date()
	days := int(time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC).Sub(time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)) / (24 * time.Hour))
	return days*1440 + e.zone.MinutesFromMidnight(t) - e.startHour*60
}

// assignColumns expects slots ordered by start offset.
func assignColumns(slots []Slot) {
	var (
		active       []int // indexes into slots
		clusterStart int
		clusterEnd   int
		clusterWidth int
	)
	closeCluster := func(upTo int) {
		for i := clusterStart; i < upTo; i++ {
			slots[i].ColumnCount = clusterWidth
		}
	}

	for i := range slots {
		s := &slots[i]
		if i > 0 && s.StartOffsetMinutes >= clusterEnd {
			closeCluster(i)
			clusterStart, clusterWidth = i, 0
			active = active[:0]
		}

		kept := active[:0]
		for _, j := range active {
			if slots[j].end() > s.StartOffsetMinutes {
				kept = append(kept, j)
			}
		}
		active = kept

		s.Column = freeColumn(slots, active)
		active = append(active, i)
		clusterWidth = max(clusterWidth, len(active))
		if i == clusterStart || s.end() > clusterEnd {
			clusterEnd = s.end()
		}
	}
	closeCluster(len(slots))
}

func freeColumn(slots []Slot, active []int) int {
	used := make(map[int]bool, len(active))
	for _, j := range active {
		used[slots[j].Column] = true
	}
	c := 0
	for used[c] {
		c++
	}
	return c
}
