// Package aggregate groups appointments by local day and derives filtered
// views without touching the grouped data.
package aggregate

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
)

// Buckets maps a day key to that day's appointments in start order.
type Buckets map[string][]model.Appointment

// Keys returns the day keys in calendar order.
func (b Buckets) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Aggregate groups appointments by the local day of their start.
func Aggregate(zone *timemath.Zone, appointments []model.Appointment) Buckets {
	out := make(Buckets)
	for _, a := range appointments {
		key := zone.DayKey(a.StartAt)
		out[key] = append(out[key], a)
	}
	for _, list := range out {
		model.SortByStart(list)
	}
	return out
}

type Predicate func(model.Appointment) bool

// Filter returns the matching appointments in a new slice.
func Filter(appointments []model.Appointment, keep Predicate) []model.Appointment {
	out := make([]model.Appointment, 0, len(appointments))
	for _, a := range appointments {
		if keep == nil || keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// FilterBuckets applies keep to every bucket. Days left empty are kept so the
// caller still sees the full range.
func FilterBuckets(b Buckets, keep Predicate) Buckets {
	out := make(Buckets, len(b))
	for k, list := range b {
		out[k] = Filter(list, keep)
	}
	return out
}

// MatchSearch matches a case-folded substring of the client or service name.
// An empty query matches everything.
func MatchSearch(query string) Predicate {
	folder := cases.Fold()
	needle := folder.String(strings.TrimSpace(query))
	if needle == "" {
		return func(model.Appointment) bool { return true }
	}
	return func(a model.Appointment) bool {
		return strings.Contains(folder.String(a.ClientName), needle) ||
			strings.Contains(folder.String(a.ServiceName), needle)
	}
}

func ByResource(resourceID string) Predicate {
	return func(a model.Appointment) bool { return a.ResourceID == resourceID }
}

func CountByStatus(appointments []model.Appointment) map[model.Status]int {
	counts := make(map[model.Status]int, len(model.Statuses))
	for _, s := range model.Statuses {
		counts[s] = 0
	}
	for _, a := range appointments {
		counts[a.Status]++
	}
	return counts
}
