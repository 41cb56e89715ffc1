package storage

import (
	"context"
	"log/slog"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/feed"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/normalize"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/subscription"
)

// AppointmentSource turns the store into live queries: every change signal
// from the notifier re-runs the query and delivers a fresh snapshot.
type AppointmentSource struct {
	store    *AppointmentStore
	notifier feed.Notifier
	logger   *slog.Logger
}

func NewAppointmentSource(store *AppointmentStore, notifier feed.Notifier, logger *slog.Logger) *AppointmentSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AppointmentSource{store: store, notifier: notifier, logger: logger}
}

type listener struct {
	cancel context.CancelFunc
}

func (l *listener) Close() { l.cancel() }

// Listen runs q once up front so a rejected query is reported synchronously.
func (s *AppointmentSource) Listen(ctx context.Context, q subscription.BackendQuery, h subscription.Handler) (subscription.Listener, error) {
	ctx, cancel := context.WithCancel(ctx)

	changes, err := s.notifier.Subscribe(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	recs, err := s.store.Query(ctx, q)
	if err != nil {
		cancel()
		return nil, err
	}

	go s.run(ctx, q, h, recs, changes)
	return &listener{cancel: cancel}, nil
}

func (s *AppointmentSource) run(ctx context.Context, q subscription.BackendQuery, h subscription.Handler, first []normalize.Record, changes <-chan feed.Change) {
	if ctx.Err() != nil {
		return
	}
	h.OnSnapshot(first)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				if ctx.Err() == nil {
					h.OnError(feed.ErrFeedClosed)
				}
				return
			}
			drain(changes)
			recs, err := s.store.Query(ctx, q)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("live query failed", "err", err)
				h.OnError(err)
				return
			}
			if ctx.Err() != nil {
				return
			}
			h.OnSnapshot(recs)
		}
	}
}

// drain collapses a burst of change signals into one re-query.
func drain(changes <-chan feed.Change) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
