// Package view assembles what the timeline screens render from one snapshot.
package view

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/aggregate"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/catalog"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/layout"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
)

type LaneMode string

const (
	LanesCombined LaneMode = "combined"
	LanesResource LaneMode = "resource"
)

func ParseLaneMode(raw string) LaneMode {
	if LaneMode(raw) == LanesResource {
		return LanesResource
	}
	return LanesCombined
}

type Options struct {
	Zone    *timemath.Zone
	Locale  timemath.Locale
	Layout  *layout.Engine
	Catalog *catalog.Catalog
	Range   timemath.Range
	// ResourceID is the resolved resource filter, empty for all.
	ResourceID string
	Query      string
	Lanes      LaneMode
	Now        time.Time
}

type Lane struct {
	ResourceID   string        `json:"resourceId,omitempty"`
	ResourceName string        `json:"resourceName,omitempty"`
	Color        string        `json:"color,omitempty"`
	Slots        []layout.Slot `json:"slots"`
}

type Day struct {
	Key          string               `json:"key"`
	Label        string               `json:"label"`
	IsToday      bool                 `json:"isToday"`
	Appointments []model.Appointment  `json:"appointments"`
	Filtered     []model.Appointment  `json:"filtered"`
	Counts       map[model.Status]int `json:"counts"`
	Lanes        []Lane               `json:"lanes"`
}

type View struct {
	Range        timemath.Range      `json:"range"`
	ResourceID   string              `json:"resourceId"`
	Query        string              `json:"query,omitempty"`
	LaneMode     LaneMode            `json:"laneMode"`
	Mode         string              `json:"mode,omitempty"`
	Hours        []string            `json:"hours"`
	Days         []Day               `json:"days"`
	Appointments []model.Appointment `json:"appointments"`
}

// Build derives the full view from appointments. It does not modify its input.
func Build(appointments []model.Appointment, opts Options) View {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Empty()
	}
	if opts.Layout == nil {
		opts.Layout = layout.New(layout.Options{Zone: opts.Zone})
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	lanes := opts.Lanes
	if lanes == "" {
		lanes = LanesCombined
	}

	flat := make([]model.Appointment, len(appointments))
	copy(flat, appointments)
	model.SortByStart(flat)

	buckets := aggregate.Aggregate(opts.Zone, flat)
	filtered := aggregate.FilterBuckets(buckets, aggregate.MatchSearch(opts.Query))

	v := View{
		Range:        opts.Range,
		ResourceID:   opts.ResourceID,
		Query:        opts.Query,
		LaneMode:     lanes,
		Hours:        timemath.DayHours(opts.Layout.DayStartHour(), opts.Layout.DayEndHour()),
		Appointments: flat,
	}

	for _, key := range dayKeys(opts, buckets) {
		date, err := opts.Zone.ParseDayKey(key)
		if err != nil {
			continue
		}
		all := buckets[key]
		if all == nil {
			all = []model.Appointment{}
		}
		shown := filtered[key]
		if shown == nil {
			shown = []model.Appointment{}
		}
		v.Days = append(v.Days, Day{
			Key:          key,
			Label:        opts.Zone.FormatLocalizedDate(date, opts.Locale),
			IsToday:      opts.Zone.IsToday(date, opts.Now),
			Appointments: all,
			Filtered:     shown,
			Counts:       aggregate.CountByStatus(all),
			Lanes:        buildLanes(date, shown, lanes, opts),
		})
	}
	if v.Days == nil {
		v.Days = []Day{}
	}
	return v
}

// dayKeys lists every day of the range, plus days of any appointment outside
// it. An unbounded range lists only days that have appointments.
func dayKeys(opts Options, buckets aggregate.Buckets) []string {
	seen := make(map[string]bool)
	var keys []string
	if !opts.Range.Start.IsZero() && !opts.Range.End.IsZero() {
		for _, d := range opts.Zone.Days(opts.Range) {
			k := opts.Zone.DayKey(d)
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, k := range buckets.Keys() {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func buildLanes(day time.Time, appts []model.Appointment, mode LaneMode, opts Options) []Lane {
	if mode != LanesResource {
		return []Lane{{Slots: opts.Layout.Layout(day, appts)}}
	}

	byResource := make(map[string][]model.Appointment)
	for _, a := range appts {
		byResource[a.ResourceID] = append(byResource[a.ResourceID], a)
	}

	var lanes []Lane
	placed := make(map[string]bool)
	for _, r := range opts.Catalog.Resources() {
		if opts.ResourceID != "" && r.ID != opts.ResourceID {
			continue
		}
		placed[r.ID] = true
		lanes = append(lanes, Lane{
			ResourceID:   r.ID,
			ResourceName: r.Name,
			Color:        r.Color,
			Slots:        opts.Layout.Layout(day, byResource[r.ID]),
		})
	}

	var unknown []string
	for id := range byResource {
		if !placed[id] {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		list := byResource[id]
		lanes = append(lanes, Lane{
			ResourceID:   id,
			ResourceName: list[0].ResourceName,
			Color:        catalog.ColorFor(model.Resource{}, len(lanes)),
			Slots:        opts.Layout.Layout(day, list),
		})
	}
	if lanes == nil {
		lanes = []Lane{}
	}
	return lanes
}
