package timemath

import "time"

// Range is the half-open interval [Start, End). A zero bound is unbounded.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r Range) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !t.Before(r.End) {
		return false
	}
	return true
}

// BuildRange starts at local midnight of anchorDay and spans spanDays local
// days, so a range crossing a DST change is not a multiple of 24h.
func (z *Zone) BuildRange(anchorDay time.Time, spanDays int) Range {
	if spanDays < 1 {
		spanDays = 1
	}
	start := z.StartOfDay(anchorDay)
	return Range{Start: start, End: z.AddDays(start, spanDays)}
}

// Days lists local midnights from r.Start up to but excluding r.End.
func (z *Zone) Days(r Range) []time.Time {
	var days []time.Time
	for d := z.StartOfDay(r.Start); d.Before(r.End); d = z.AddDays(d, 1) {
		days = append(days, d)
	}
	return days
}
