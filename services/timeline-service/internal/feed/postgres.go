package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/salon-timeline/libs/db"
)

const DefaultPostgresChannel = "appointments_changed"

// listenConn is the part of *pgx.Conn a LISTEN relay uses.
type listenConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// PostgresNotifier holds one dedicated connection in LISTEN for the whole
// process and fans its notifications out. The connection is opened outside
// the query pool, so listeners never take pooled connections.
type PostgresNotifier struct {
	*Hub
	channel    string
	logger     *slog.Logger
	connect    func(ctx context.Context) (listenConn, error)
	retryDelay time.Duration
}

func NewPostgresNotifier(pool *db.Pool, channel string, logger *slog.Logger) *PostgresNotifier {
	connConfig := pool.Config().ConnConfig
	return newPostgresNotifier(channel, logger, func(ctx context.Context) (listenConn, error) {
		return pgx.ConnectConfig(ctx, connConfig.Copy())
	})
}

func newPostgresNotifier(channel string, logger *slog.Logger, connect func(context.Context) (listenConn, error)) *PostgresNotifier {
	if channel == "" {
		channel = DefaultPostgresChannel
	}
	return &PostgresNotifier{
		Hub:        NewHub(),
		channel:    channel,
		logger:     logger,
		connect:    connect,
		retryDelay: DefaultRetryDelay,
	}
}

// Run relays until ctx ends, then closes the hub. A dropped connection is
// reopened after a delay. ready is closed after the first attempt.
func (n *PostgresNotifier) Run(ctx context.Context, ready chan<- struct{}) {
	defer n.Hub.Close()

	var once sync.Once
	markReady := func() {
		once.Do(func() {
			if ready != nil {
				close(ready)
			}
		})
	}
	defer markReady()

	for attempt := 0; ; attempt++ {
		err := n.relay(ctx, attempt > 0, markReady)
		if ctx.Err() != nil {
			return
		}
		n.logger.Warn("postgres change feed lost, reconnecting", "channel", n.channel, "err", err)
		markReady()
		if !sleep(ctx, n.retryDelay) {
			return
		}
	}
}

func (n *PostgresNotifier) relay(ctx context.Context, resync bool, listening func()) error {
	conn, err := n.connect(ctx)
	if err != nil {
		return fmt.Errorf("feed: connect listener: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize()); err != nil {
		return fmt.Errorf("feed: listen %s: %w", n.channel, err)
	}
	listening()
	if resync {
		n.Publish(Change{Op: OpResync})
	}

	for {
		note, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		n.Publish(ParsePayload(note.Payload))
	}
}
