package handlers

import (
	"net/http"
	"strings"

	ics "github.com/arran4/golang-ical"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
)

const calendarProductID = "-//salon-timeline//timeline-service//EN"

// Calendar exports the range as an iCalendar feed. Canceled appointments are
// left out.
func (h *TimelineHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, err := paramsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.resolve(r.Context(), p, staffScope(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appts, _ := h.engine.FetchTimeout(r.Context(), res.req, res.cat, h.cfg.SnapshotTimeout)
	cal := buildCalendar(appts, h.cfg.Zone.Name())

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="timeline.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cal.Serialize()))
}

func buildCalendar(appts []model.Appointment, timezone string) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName("Salon timeline")
	cal.SetXWRTimezone(timezone)

	for _, a := range appts {
		if a.Status == model.StatusCanceled {
			continue
		}
		ev := cal.AddEvent(a.ID + "@salon-timeline")
		ev.SetStartAt(a.StartAt)
		ev.SetEndAt(a.EndAt)
		ev.SetSummary(eventSummary(a))
		if a.ResourceName != "" {
			ev.SetLocation(a.ResourceName)
		}
		if a.Notes != "" {
			ev.SetDescription(a.Notes)
		}
		if a.Status == model.StatusPending {
			ev.SetStatus(ics.ObjectStatusTentative)
		} else {
			ev.SetStatus(ics.ObjectStatusConfirmed)
		}
	}
	return cal
}

func eventSummary(a model.Appointment) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(a.ServiceName); s != "" {
		parts = append(parts, s)
	}
	if c := strings.TrimSpace(a.ClientName); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, " - ")
}
