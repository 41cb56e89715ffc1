// Package normalize turns stored appointment documents into canonical
// appointments. It never fails; problems it recovers from are returned as
// issues next to the appointment.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/catalog"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
)

var (
	ErrMissingStart    = errors.New("normalize: record has no start")
	ErrUnparsedStart   = errors.New("normalize: record start could not be parsed")
	ErrInvalidEnd      = errors.New("normalize: record end is not after start")
	ErrInvalidDuration = errors.New("normalize: record duration is out of range")
)

const (
	DefaultDurationMinutes = 60
	// MaxDurationMinutes bounds a single appointment. Longer durations are
	// treated as missing.
	MaxDurationMinutes = 24 * 60
)

type placeholders struct {
	unspecified string
	service     string
}

var localePlaceholders = map[timemath.Locale]placeholders{
	timemath.Hebrew:  {unspecified: "לא צוין", service: "טיפול"},
	timemath.English: {unspecified: "Unspecified", service: "Service"},
}

type Options struct {
	Zone                   *timemath.Zone
	Locale                 timemath.Locale
	DefaultDurationMinutes int
	Now                    func() time.Time
}

type Normalizer struct {
	zone            *timemath.Zone
	text            placeholders
	defaultDuration int
	now             func() time.Time
}

func New(opts Options) *Normalizer {
	n := &Normalizer{
		zone:            opts.Zone,
		defaultDuration: opts.DefaultDurationMinutes,
		now:             opts.Now,
	}
	if n.zone == nil {
		n.zone = timemath.NewZone(time.UTC)
	}
	if n.defaultDuration <= 0 || n.defaultDuration > MaxDurationMinutes {
		n.defaultDuration = DefaultDurationMinutes
	}
	if n.now == nil {
		n.now = time.Now
	}
	text, ok := localePlaceholders[opts.Locale]
	if !ok {
		text = localePlaceholders[timemath.Hebrew]
	}
	n.text = text
	return n
}

func (n *Normalizer) Zone() *timemath.Zone { return n.zone }

// Normalize builds the canonical appointment for rec. cat may be nil.
func (n *Normalizer) Normalize(rec Record, cat *catalog.Catalog) (model.Appointment, []error) {
	if cat == nil {
		cat = catalog.Empty()
	}
	var issues []error

	start, err := n.resolveStart(rec)
	if err != nil {
		issues = append(issues, err)
	}
	treatment, hasTreatment := cat.Treatment(rec.TreatmentID)

	end, duration, err := n.resolveEnd(rec, start, treatment)
	if err != nil {
		issues = append(issues, err)
	}

	return model.Appointment{
		ID:              rec.ID,
		ResourceID:      rec.BarberID,
		ResourceName:    n.resourceName(rec, cat),
		ClientName:      n.clientName(rec),
		ClientPhone:     clientPhone(rec),
		ServiceName:     n.serviceName(rec, treatment, hasTreatment),
		StartAt:         start,
		EndAt:           end,
		DurationMinutes: duration,
		Status:          model.ParseStatus(rec.Status),
		Notes:           strings.TrimSpace(rec.Notes),
		Color:           strings.TrimSpace(rec.Color),
	}, issues
}

func (n *Normalizer) resolveStart(rec Record) (time.Time, error) {
	var base time.Time
	switch rec.Date.Kind {
	case StartAbsent:
		return n.now().In(n.zone.Location()), fmt.Errorf("%w: %s", ErrMissingStart, rec.ID)
	case StartInstant:
		base = rec.Date.Instant
	case StartDate:
		t, err := n.zone.ParseDayKey(rec.Date.Text)
		if err != nil {
			return n.now().In(n.zone.Location()), fmt.Errorf("%w: %s: %w", ErrUnparsedStart, rec.ID, err)
		}
		base = t
	case StartLocal:
		t, err := n.zone.ParseDateTime(rec.Date.Text)
		if err != nil {
			return n.now().In(n.zone.Location()), fmt.Errorf("%w: %s: %w", ErrUnparsedStart, rec.ID, err)
		}
		base = t
	default:
		return n.now().In(n.zone.Location()), fmt.Errorf("%w: %s: %q", ErrUnparsedStart, rec.ID, rec.Date.Text)
	}
	base = base.In(n.zone.Location())

	clock := strings.TrimSpace(rec.Time)
	if clock == "" {
		return base, nil
	}
	t, err := n.zone.ParseLocalTime(clock, base)
	if err != nil {
		return base, fmt.Errorf("normalize: %s: %w", rec.ID, err)
	}
	return t, nil
}

func (n *Normalizer) resolveEnd(rec Record, start time.Time, treatment model.Treatment) (time.Time, int, error) {
	var endErr error
	if end, ok := n.explicitEnd(rec.EndDate); ok {
		switch d := timemath.DiffMinutes(start, end); {
		case d < 1:
			endErr = fmt.Errorf("%w: %s", ErrInvalidEnd, rec.ID)
		case d > MaxDurationMinutes:
			endErr = fmt.Errorf("%w: %s: end is %d minutes after start", ErrInvalidDuration, rec.ID, d)
		default:
			return end.In(n.zone.Location()), d, nil
		}
	}

	duration := n.defaultDuration
	for _, d := range []int{int(rec.Duration), treatment.DurationMinutes} {
		if d <= 0 {
			continue
		}
		if d > MaxDurationMinutes {
			if endErr == nil {
				endErr = fmt.Errorf("%w: %s: %d minutes", ErrInvalidDuration, rec.ID, d)
			}
			continue
		}
		duration = d
		break
	}
	return start.Add(time.Duration(duration) * time.Minute), duration, endErr
}

func (n *Normalizer) explicitEnd(s Start) (time.Time, bool) {
	switch s.Kind {
	case StartInstant:
		return s.Instant, true
	case StartLocal:
		t, err := n.zone.ParseDateTime(s.Text)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

func (n *Normalizer) resourceName(rec Record, cat *catalog.Catalog) string {
	if name := strings.TrimSpace(rec.BarberName); name != "" && name != n.text.unspecified {
		return name
	}
	if r, ok := cat.Resource(rec.BarberID); ok {
		return r.Name
	}
	return n.text.unspecified
}

func (n *Normalizer) serviceName(rec Record, treatment model.Treatment, ok bool) string {
	if ok && strings.TrimSpace(treatment.Name) != "" {
		return treatment.Name
	}
	if name := strings.TrimSpace(rec.ServiceName); name != "" {
		return name
	}
	return n.text.service
}

func (n *Normalizer) clientName(rec Record) string {
	if rec.IsManualClient {
		if name := strings.TrimSpace(rec.ManualClientName); name != "" {
			return name
		}
	}
	if name := strings.TrimSpace(rec.ClientName); name != "" {
		return name
	}
	return n.text.unspecified
}

func clientPhone(rec Record) string {
	if rec.IsManualClient {
		if phone := strings.TrimSpace(rec.ManualClientPhone); phone != "" {
			return phone
		}
	}
	return strings.TrimSpace(rec.ClientPhone)
}

// IssueKind labels an issue for metrics and logs.
func IssueKind(err error) string {
	switch {
	case errors.Is(err, ErrMissingStart):
		return "missing_start"
	case errors.Is(err, ErrUnparsedStart):
		return "unparsed_start"
	case errors.Is(err, timemath.ErrInvalidTimeFormat):
		return "invalid_time"
	case errors.Is(err, ErrInvalidEnd):
		return "invalid_end"
	case errors.Is(err, ErrInvalidDuration):
		return "invalid_duration"
	default:
		return "other"
	}
}
