package model

import (
	"sort"
	"strings"
	"time"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusBooked, StatusConfirmed, StatusPending, StatusCompleted, StatusCanceled}

// ParseStatus maps a stored status string onto the allow-list. Anything it
// does not recognize is booked.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "confirmed":
		return StatusConfirmed
	case "canceled", "cancelled":
		return StatusCanceled
	case "completed":
		return StatusCompleted
	case "pending":
		return StatusPending
	default:
		return StatusBooked
	}
}

type Appointment struct {
	ID              string    `json:"id"`
	ResourceID      string    `json:"resourceId"`
	ResourceName    string    `json:"resourceName"`
	ClientName      string    `json:"clientName"`
	ClientPhone     string    `json:"clientPhone,omitempty"`
	ServiceName     string    `json:"serviceName"`
	StartAt         time.Time `json:"startAt"`
	EndAt           time.Time `json:"endAt"`
	DurationMinutes int       `json:"durationMinutes"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	Color           string    `json:"color,omitempty"`
}

// Overlaps reports whether the half-open intervals of a and b intersect.
func (a Appointment) Overlaps(b Appointment) bool {
	return a.StartAt.Before(b.EndAt) && b.StartAt.Before(a.EndAt)
}

// SortByStart orders appointments by start, then id, then end, in place.
func SortByStart(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if !a.StartAt.Equal(b.StartAt) {
			return a.StartAt.Before(b.StartAt)
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.EndAt.Before(b.EndAt)
	})
}

type Resource struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type Treatment struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	DurationMinutes int     `json:"durationMinutes"`
	Price           float64 `json:"price"`
}
