package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/catalog"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/metrics"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/normalize"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
)

type Request struct {
	Range timemath.Range
	// ResourceID is a resource id or one of the catalog sentinels.
	ResourceID string
}

type Options struct {
	Source     Source
	Normalizer *normalize.Normalizer
	Logger     *slog.Logger
	Metrics    *metrics.TimelineMetrics
}

type Engine struct {
	source  Source
	norm    *normalize.Normalizer
	logger  *slog.Logger
	metrics *metrics.TimelineMetrics
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		source:  opts.Source,
		norm:    opts.Normalizer,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if e.norm == nil {
		e.norm = normalize.New(normalize.Options{})
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

func (e *Engine) Normalizer() *normalize.Normalizer { return e.norm }

// Subscribe opens a live subscription. onUpdate receives full replacement
// snapshots sorted by start; calls for one subscription never overlap. The
// subscription ends on Unsubscribe or when ctx is done.
func (e *Engine) Subscribe(ctx context.Context, req Request, cat *catalog.Catalog, onUpdate func([]model.Appointment)) *Subscription {
	var fn func(Update)
	if onUpdate != nil {
		fn = func(u Update) { onUpdate(u.Appointments) }
	}
	return e.Watch(ctx, req, cat, fn)
}

// Update is one delivered snapshot and the query mode that produced it.
type Update struct {
	Appointments []model.Appointment
	Mode         Mode
}

// Watch is Subscribe with the query mode reported alongside each snapshot.
func (e *Engine) Watch(ctx context.Context, req Request, cat *catalog.Catalog, onUpdate func(Update)) *Subscription {
	if cat == nil {
		cat = catalog.Empty()
	}
	ctx, cancel := context.WithCancel(ctx)
	resourceID := cat.ResolveResource(req.ResourceID)
	s := &Subscription{
		id:         uuid.NewString(),
		engine:     e,
		rng:        req.Range,
		resourceID: resourceID,
		cat:        cat,
		onUpdate:   onUpdate,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		mode:       ModePending,
	}
	s.logger = e.logger.With("subscription_id", s.id)
	s.live.Store(true)
	e.metrics.SubscriptionOpened()
	s.logger.Info("subscription opened",
		"start", req.Range.Start,
		"end", req.Range.End,
		"resource_id", resourceID,
	)

	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe()
		case <-s.done:
		}
	}()

	s.mu.Lock()
	s.gen = 1
	s.mode = ModePrimary
	s.mu.Unlock()
	s.open(1, ModePrimary, BackendQuery{
		Start:      req.Range.Start,
		End:        req.Range.End,
		ResourceID: resourceID,
	})
	return s
}

// Fetch returns the first snapshot for req and closes the subscription. When
// ctx ends first the result is empty.
func (e *Engine) Fetch(ctx context.Context, req Request, cat *catalog.Catalog) ([]model.Appointment, Mode) {
	first := make(chan Update, 1)
	sub := e.Watch(ctx, req, cat, func(u Update) {
		select {
		case first <- u:
		default:
		}
	})
	defer sub.Unsubscribe()

	select {
	case u := <-first:
		return u.Appointments, u.Mode
	case <-ctx.Done():
		return []model.Appointment{}, ModeEmpty
	}
}

// FetchTimeout is Fetch bounded by timeout.
func (e *Engine) FetchTimeout(ctx context.Context, req Request, cat *catalog.Catalog, timeout time.Duration) ([]model.Appointment, Mode) {
	if timeout <= 0 {
		return e.Fetch(ctx, req, cat)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.Fetch(ctx, req, cat)
}
