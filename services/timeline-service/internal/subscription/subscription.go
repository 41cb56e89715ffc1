package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/catalog"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/normalize"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
)

type Subscription struct {
	id         string
	engine     *Engine
	logger     *slog.Logger
	rng        timemath.Range
	resourceID string
	cat        *catalog.Catalog
	onUpdate   func(Update)

	ctx    context.Context
	cancel context.CancelFunc

	live atomic.Bool

	mu       sync.Mutex
	gen      int // bumped whenever the current listener is replaced or dropped
	mode     Mode
	listener Listener

	deliverMu sync.Mutex

	once sync.Once
	done chan struct{}
}

func (s *Subscription) ID() string { return s.id }

// ResourceID is the resolved resource filter; empty means all resources.
func (s *Subscription) ResourceID() string { return s.resourceID }

func (s *Subscription) Range() timemath.Range { return s.rng }

func (s *Subscription) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Done is closed once the subscription has been torn down and any callback
// that was already running has returned. No callback runs after that.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe tears the subscription down. It is safe to call more than once
// and from inside onUpdate. It does not wait for a callback that is already
// running; wait on Done for that.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.live.Store(false)

		s.mu.Lock()
		l := s.listener
		s.listener = nil
		s.gen++
		s.mode = ModeClosed
		s.mu.Unlock()

		s.cancel()
		if l != nil {
			l.Close()
		}
		s.engine.metrics.SubscriptionClosed()
		s.logger.Debug("subscription closed")

		// deliverMu is held for the whole of a callback, possibly by the
		// caller itself, so only wait for it off this goroutine.
		if s.deliverMu.TryLock() {
			s.deliverMu.Unlock()
			close(s.done)
			return
		}
		go func() {
			s.deliverMu.Lock()
			s.deliverMu.Unlock()
			close(s.done)
		}()
	})
}

func (s *Subscription) current(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Subscription) open(gen int, mode Mode, q BackendQuery) {
	h := Handler{
		OnSnapshot: func(recs []normalize.Record) { s.deliver(gen, mode, recs) },
		OnError:    func(err error) { s.fail(gen, mode, err) },
	}
	l, err := s.engine.source.Listen(s.ctx, q, h)

	s.mu.Lock()
	if s.gen != gen || !s.live.Load() {
		s.mu.Unlock()
		if l != nil {
			l.Close()
		}
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.fail(gen, mode, err)
		return
	}
	s.listener = l
	s.mu.Unlock()
}

// fail retires the listener of generation gen and moves one step down
// primary -> fallback -> empty. Stale generations are ignored.
func (s *Subscription) fail(gen int, mode Mode, err error) {
	s.mu.Lock()
	if s.gen != gen || !s.live.Load() {
		s.mu.Unlock()
		return
	}
	s.gen++
	next := s.gen
	old := s.listener
	s.listener = nil
	if mode == ModePrimary {
		s.mode = ModeFallback
	} else {
		s.mode = ModeEmpty
	}
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	if mode == ModePrimary {
		s.engine.metrics.ObserveFallback()
		s.logger.Warn("primary query rejected, falling back", "err", fmt.Errorf("%w: %w", ErrQueryRejected, err))
		// The failing source may still be inside its own callback.
		go s.open(next, ModeFallback, BackendQuery{ResourceID: s.resourceID})
		return
	}

	s.engine.metrics.ObserveFailure()
	s.logger.Error("fallback query failed", "err", fmt.Errorf("%w: %w", ErrSubscriptionFailed, err))
	go s.emit(next, ModeEmpty, []model.Appointment{})
}

func (s *Subscription) deliver(gen int, mode Mode, recs []normalize.Record) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if !s.live.Load() || !s.current(gen) {
		return
	}
	s.emitLocked(mode, s.normalize(mode, recs))
}

func (s *Subscription) emit(gen int, mode Mode, appts []model.Appointment) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if !s.live.Load() || !s.current(gen) {
		return
	}
	s.emitLocked(mode, appts)
}

func (s *Subscription) emitLocked(mode Mode, appts []model.Appointment) {
	s.engine.metrics.ObserveSnapshot(string(mode))
	if !s.live.Load() {
		return
	}
	if s.onUpdate != nil {
		s.onUpdate(Update{Appointments: appts, Mode: mode})
	}
}

// normalize converts a snapshot. The fallback query is broader than the
// request, so its results are narrowed to the range and resource here.
func (s *Subscription) normalize(mode Mode, recs []normalize.Record) []model.Appointment {
	out := make([]model.Appointment, 0, len(recs))
	for _, rec := range recs {
		appt, issues := s.engine.norm.Normalize(rec, s.cat)
		for _, issue := range issues {
			s.engine.metrics.ObserveNormalizeIssue(normalize.IssueKind(issue))
			s.logger.Debug("appointment normalized with issue", "appointment_id", rec.ID, "err", issue)
		}
		if mode == ModeFallback {
			if !s.rng.Contains(appt.StartAt) {
				continue
			}
			if s.resourceID != "" && appt.ResourceID != s.resourceID {
				continue
			}
		}
		out = append(out, appt)
	}
	model.SortByStart(out)
	return out
}
