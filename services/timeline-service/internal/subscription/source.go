// Package subscription keeps a live, normalized view of the appointments in a
// date range. A rejected query falls back once to a broader query filtered in
// memory; if that also fails the subscriber receives an empty snapshot.
package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/normalize"
)

var (
	ErrQueryRejected      = errors.New("subscription: query rejected")
	ErrSubscriptionFailed = errors.New("subscription: primary and fallback queries failed")
)

// BackendQuery selects stored records whose start lies in [Start, End) and,
// when ResourceID is set, belong to that resource. A zero bound is unbounded.
type BackendQuery struct {
	Start      time.Time
	End        time.Time
	ResourceID string
}

func (q BackendQuery) Ranged() bool { return !q.Start.IsZero() || !q.End.IsZero() }

// Handler receives the events of one listener. Each OnSnapshot call carries
// the full current result set. OnError ends the listener.
type Handler struct {
	OnSnapshot func([]normalize.Record)
	OnError    func(error)
}

// Listener is a live query. Close stops delivery and must not block on an
// in-flight handler call.
type Listener interface {
	Close()
}

// Source opens live queries against the appointment store. Listen may reject
// a query synchronously by returning an error, or later through OnError.
type Source interface {
	Listen(ctx context.Context, q BackendQuery, h Handler) (Listener, error)
}

type Mode string

const (
	ModePending  Mode = "pending"
	ModePrimary  Mode = "primary"
	ModeFallback Mode = "fallback"
	ModeEmpty    Mode = "empty"
	ModeClosed   Mode = "closed"
)
