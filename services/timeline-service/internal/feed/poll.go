package feed

import (
	"context"
	"time"
)

// PollNotifier signals on a fixed interval, for stores without a push feed.
type PollNotifier struct {
	interval time.Duration
}

func NewPollNotifier(interval time.Duration) *PollNotifier {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PollNotifier{interval: interval}
}

func (n *PollNotifier) Subscribe(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, 1)
	go func() {
		defer close(ch)
		t := time.NewTicker(n.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case ch <- Change{Op: "poll"}:
				default:
				}
			}
		}
	}()
	return ch, nil
}
