// Package feed provides change notifications for stored appointments. A
// notification only says that something changed; listeners re-query.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrFeedClosed = errors.New("feed: change feed closed")

// DefaultRetryDelay is the pause before a failed relay reconnects.
const DefaultRetryDelay = time.Second

// OpResync is published after a relay reconnects. Changes may have been
// missed while it was down, so listeners re-query.
const OpResync = "resync"

type Change struct {
	AppointmentID string `json:"id"`
	ResourceID    string `json:"barber_id"`
	Op            string `json:"op"`
}

// Notifier hands out change channels. Each channel is closed when ctx ends or
// the underlying feed fails.
type Notifier interface {
	Subscribe(ctx context.Context) (<-chan Change, error)
}

// ParsePayload decodes a JSON change payload. A payload that is not JSON is
// taken as a bare appointment id.
func ParsePayload(payload string) Change {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		c = Change{AppointmentID: strings.TrimSpace(payload)}
	}
	if c.Op == "" {
		c.Op = "upsert"
	}
	c.Op = strings.ToLower(c.Op)
	return c
}

// Hub fans one upstream feed out to many subscribers. Each subscriber has a
// one-slot buffer; a signal arriving while the slot is full is dropped, which
// is harmless because listeners re-query everything.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Change]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Change]struct{})}
}

func (h *Hub) Subscribe(ctx context.Context) (<-chan Change, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrFeedClosed
	}
	ch := make(chan Change, 1)
	h.subs[ch] = struct{}{}
	go func() {
		<-ctx.Done()
		h.remove(ch)
	}()
	return ch, nil
}

func (h *Hub) remove(ch chan Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) Publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// sleep waits for d or until ctx ends. It reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
