package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
)

const midnight = "0 0 * * *"

// Rollover re-anchors streams that follow today at local midnight.
type Rollover struct {
	cron   *cron.Cron
	stream *StreamHandler
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewRollover(stream *StreamHandler, zone *timemath.Zone, logger *slog.Logger) (*Rollover, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Rollover{
		cron:   cron.New(cron.WithLocation(zone.Location())),
		stream: stream,
		logger: logger,
		loc:    zone.Location(),
		now:    time.Now,
	}
	if _, err := r.cron.AddFunc(midnight, r.Run); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rollover) Start() { r.cron.Start() }

// Stop halts the scheduler and returns a context done once a running job
// has finished.
func (r *Rollover) Stop() context.Context { return r.cron.Stop() }

// Next is the next scheduled rollover.
func (r *Rollover) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(r.now().In(r.loc))
}

func (r *Rollover) Run() {
	n := r.stream.Rollover(r.now())
	r.logger.Info("day rollover", "streams", n)
}
