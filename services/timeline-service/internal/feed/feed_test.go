package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func waitChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("change channel closed")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestParsePayload(t *testing.T) {
	c := ParsePayload(`{"id":"a1","barber_id":"b1","op":"UPDATE"}`)
	if c.AppointmentID != "a1" || c.ResourceID != "b1" || c.Op != "update" {
		t.Fatalf("unexpected change %+v", c)
	}
	c = ParsePayload(" a2 ")
	if c.AppointmentID != "a2" || c.Op != "upsert" {
		t.Fatalf("unexpected bare change %+v", c)
	}
}

func TestHubFanOutAndCoalesce(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	a, err := h.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b, _ := h.Subscribe(context.Background())

	h.Publish(Change{AppointmentID: "1"})
	h.Publish(Change{AppointmentID: "2"}) // dropped, slot full
	if waitChange(t, a).AppointmentID != "1" || waitChange(t, b).AppointmentID != "1" {
		t.Fatal("expected first change on both subscribers")
	}

	cancel()
	select {
	case _, ok := <-a:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not removed on cancel")
	}

	h.Close()
	if _, ok := <-b; ok {
		t.Fatal("expected close to end subscriptions")
	}
	if _, err := h.Subscribe(context.Background()); !errors.Is(err, ErrFeedClosed) {
		t.Fatalf("expected ErrFeedClosed, got %v", err)
	}
}

func TestPollNotifier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewPollNotifier(10 * time.Millisecond).Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if c := waitChange(t, ch); c.Op != "poll" {
		t.Fatalf("unexpected change %+v", c)
	}
	cancel()
	for range ch {
	}
}

func TestRedisNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	n := NewRedisNotifier(rdb, "", discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		n.Run(ctx, ready)
		close(done)
	}()
	<-ready

	ch, err := n.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, rdb.Publish(ctx, DefaultRedisChannel, `{"id":"a9","barber_id":"b2"}`).Err())

	c := waitChange(t, ch)
	assert.Equal(t, "a9", c.AppointmentID)
	assert.Equal(t, "b2", c.ResourceID)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("redis notifier did not stop")
	}
}

func TestRedisNotifierResubscribesAfterOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	n := NewRedisNotifier(rdb, "", discard())
	n.retryDelay = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	go n.Run(ctx, ready)
	<-ready

	// The relay is down, but the hub stays open.
	ch, err := n.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, mr.Restart())
	assert.Equal(t, OpResync, waitChange(t, ch).Op)

	require.NoError(t, rdb.Publish(ctx, DefaultRedisChannel, "a12").Err())
	assert.Equal(t, "a12", waitChange(t, ch).AppointmentID)
}

// fakeReader serves errs first, then msgs, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	errs      []error
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func runKafka(n *KafkaNotifier) (context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()
	return cancel, done
}

func TestKafkaNotifierPublishesAndCommits(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{{
		Topic:  DefaultKafkaTopic,
		Key:    []byte("a1"),
		Offset: 41,
		Headers: []kafka.Header{
			{Key: "barber_id", Value: []byte("b1")},
			{Key: "traceparent", Value: []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")},
		},
	}}}
	n := NewKafkaNotifier(reader, discard())
	ch, err := n.Subscribe(context.Background())
	require.NoError(t, err)

	cancel, done := runKafka(n)
	c := waitChange(t, ch)
	assert.Equal(t, "a1", c.AppointmentID)
	assert.Equal(t, "b1", c.ResourceID)

	cancel()
	<-done
	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Equal(t, []int64{41}, reader.committed)
	assert.True(t, reader.closed)

	_, ok := <-ch
	assert.False(t, ok, "hub should close once the notifier stops")
}

func TestKafkaNotifierSurvivesReadError(t *testing.T) {
	reader := &fakeReader{
		errs: []error{errors.New("kafka: broker not available")},
		msgs: []kafka.Message{{Topic: DefaultKafkaTopic, Key: []byte("a2"), Offset: 7}},
	}
	n := NewKafkaNotifier(reader, discard())
	n.retryDelay = 10 * time.Millisecond
	ch, err := n.Subscribe(context.Background())
	require.NoError(t, err)

	cancel, done := runKafka(n)
	defer func() {
		cancel()
		<-done
	}()

	assert.Equal(t, "a2", waitChange(t, ch).AppointmentID)
	_, err = n.Subscribe(context.Background())
	assert.NoError(t, err, "hub must stay open after a read error")
}

type fakeNote struct {
	payload string
	err     error
}

// fakeListenConn replays notes, then blocks until ctx ends.
type fakeListenConn struct {
	notes  chan fakeNote
	mu     sync.Mutex
	listen []string
	closed bool
}

func (c *fakeListenConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listen = append(c.listen, sql)
	return pgconn.NewCommandTag("LISTEN"), nil
}

func (c *fakeListenConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case n := <-c.notes:
		if n.err != nil {
			return nil, n.err
		}
		return &pgconn.Notification{Channel: DefaultPostgresChannel, Payload: n.payload}, nil
	}
}

func (c *fakeListenConn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestPostgresNotifierSharesOneConnection(t *testing.T) {
	conns := make(chan *fakeListenConn, 4)
	var dials atomic.Int32
	gate := make(chan struct{})
	n := newPostgresNotifier("", discard(), func(context.Context) (listenConn, error) {
		if dials.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		<-gate
		c := &fakeListenConn{notes: make(chan fakeNote, 4)}
		conns <- c
		return c, nil
	})
	n.retryDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		n.Run(ctx, ready)
		close(done)
	}()
	<-ready

	var subs []<-chan Change
	for i := 0; i < 25; i++ {
		ch, err := n.Subscribe(ctx)
		require.NoError(t, err)
		subs = append(subs, ch)
	}
	close(gate)

	first := <-conns
	for _, ch := range subs {
		assert.Equal(t, OpResync, waitChange(t, ch).Op)
	}
	first.notes <- fakeNote{payload: `{"id":"a1","barber_id":"b1","op":"INSERT"}`}
	for _, ch := range subs {
		c := waitChange(t, ch)
		assert.Equal(t, "a1", c.AppointmentID)
		assert.Equal(t, "insert", c.Op)
	}

	// A dropped connection is replaced and listeners are told to re-query.
	first.notes <- fakeNote{err: errors.New("unexpected EOF")}
	second := <-conns
	assert.Equal(t, OpResync, waitChange(t, subs[0]).Op)
	assert.Equal(t, int32(3), dials.Load())

	first.mu.Lock()
	assert.True(t, first.closed)
	assert.Equal(t, []string{`LISTEN "appointments_changed"`}, first.listen)
	first.mu.Unlock()

	cancel()
	<-done
	second.mu.Lock()
	assert.True(t, second.closed)
	second.mu.Unlock()
	_, ok := <-subs[0]
	assert.False(t, ok, "hub should close once the notifier stops")
}
