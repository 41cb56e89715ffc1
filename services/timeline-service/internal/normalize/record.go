package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type StartKind int

const (
	StartAbsent StartKind = iota
	// StartInstant is an absolute timestamp.
	StartInstant
	// StartDate is a bare YYYY-MM-DD local date.
	StartDate
	// StartLocal is a naive or offset-bearing date-time string, resolved in
	// the configured zone.
	StartLocal
	// StartUnparsed is a value of a shape no rule understands.
	StartUnparsed
)

func (k StartKind) String() string {
	switch k {
	case StartInstant:
		return "instant"
	case StartDate:
		return "date"
	case StartLocal:
		return "local"
	case StartUnparsed:
		return "unparsed"
	default:
		return "absent"
	}
}

// Start is the stored start of an appointment in any of its historical shapes.
type Start struct {
	Kind    StartKind
	Instant time.Time
	Text    string
}

func StartAt(t time.Time) Start { return Start{Kind: StartInstant, Instant: t} }

func StartOnDate(day string) Start { return Start{Kind: StartDate, Text: day} }

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type timestampObject struct {
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

func (s *Start) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = Start{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*s = classifyText(text)
	case '{':
		var obj timestampObject
		if err := json.Unmarshal(data, &obj); err != nil {
			*s = Start{Kind: StartUnparsed, Text: string(data)}
			return nil
		}
		switch {
		case obj.Seconds != nil:
			*s = StartAt(time.Unix(*obj.Seconds, obj.Nanoseconds).UTC())
		case obj.USeconds != nil:
			*s = StartAt(time.Unix(*obj.USeconds, obj.UNanoseconds).UTC())
		default:
			*s = Start{Kind: StartUnparsed, Text: string(data)}
		}
	default:
		ms, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			*s = Start{Kind: StartUnparsed, Text: string(data)}
			return nil
		}
		*s = StartAt(time.UnixMilli(int64(ms)).UTC())
	}
	return nil
}

func classifyText(text string) Start {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return Start{}
	case datePattern.MatchString(text):
		return StartOnDate(text)
	default:
		if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
			return StartAt(t)
		}
		return Start{Kind: StartLocal, Text: text}
	}
}

func (s Start) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StartAbsent:
		return []byte("null"), nil
	case StartInstant:
		return json.Marshal(s.Instant.Format(time.RFC3339Nano))
	default:
		return json.Marshal(s.Text)
	}
}

// Minutes accepts a JSON number or a numeric string. Values beyond
// math.MaxInt32 are pinned there so they stay representable.
type Minutes int

func (m *Minutes) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	switch {
	case err != nil && !errors.Is(err, strconv.ErrRange), math.IsNaN(f), f <= 0:
		*m = 0
	case f > math.MaxInt32:
		*m = math.MaxInt32
	default:
		*m = Minutes(f)
	}
	return nil
}

// Record is a stored appointment document.
type Record struct {
	ID                string  `json:"-"`
	Date              Start   `json:"date"`
	Time              string  `json:"time,omitempty"`
	EndDate           Start   `json:"endDate"`
	Duration          Minutes `json:"duration,omitempty"`
	BarberID          string  `json:"barberId,omitempty"`
	BarberName        string  `json:"barberName,omitempty"`
	ClientName        string  `json:"clientName,omitempty"`
	ClientPhone       string  `json:"clientPhone,omitempty"`
	IsManualClient    bool    `json:"isManualClient,omitempty"`
	ManualClientName  string  `json:"manualClientName,omitempty"`
	ManualClientPhone string  `json:"manualClientPhone,omitempty"`
	ServiceName       string  `json:"serviceName,omitempty"`
	TreatmentID       string  `json:"treatmentId,omitempty"`
	Status            string  `json:"status,omitempty"`
	Notes             string  `json:"notes,omitempty"`
	Color             string  `json:"color,omitempty"`
	UserID            string  `json:"userId,omitempty"`
}

// DecodeRecord parses a stored JSON document. The id lives outside the
// document and is attached here.
func DecodeRecord(id string, doc []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return Record{}, fmt.Errorf("normalize: decode %s: %w", id, err)
	}
	rec.ID = id
	return rec, nil
}
