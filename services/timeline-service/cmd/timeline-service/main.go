package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/salon-timeline/libs/db"
	"github.com/md-rashed-zaman/salon-timeline/libs/httpx"
	"github.com/md-rashed-zaman/salon-timeline/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salon-timeline/libs/otel"
	"github.com/md-rashed-zaman/salon-timeline/libs/runtime"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/catalog"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/feed"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/handlers"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/layout"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/metrics"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/normalize"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/settings"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/storage"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/subscription"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
)

func main() {
	cfg, err := settings.Load()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	zone, err := timemath.LoadZone(cfg.Timezone)
	if err != nil {
		panic(err)
	}
	locale := timemath.ParseLocale(cfg.Locale)

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	notifier, err := startFeed(ctx, cfg, pool, rdb, logger)
	if err != nil {
		logger.Error("change feed init failed", "err", err, "feed", cfg.ChangeFeed)
		panic(err)
	}
	if cfg.ChangeFeed == settings.FeedKafka {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(cfg.KafkaBrokers))})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	timelineMetrics := metrics.NewTimelineMetrics(reg)

	var loader storage.CatalogLoader = storage.NewCatalogRepository(pool)
	if rdb != nil {
		loader = storage.NewCachedCatalog(loader, rdb, cfg.CatalogCacheTTL, logger)
	}
	catalogs := handlers.CatalogFunc(func(ctx context.Context) (*catalog.Catalog, error) {
		return storage.LoadCatalog(ctx, loader, cfg.PrimaryResourceID, locale.Tag())
	})

	normalizer := normalize.New(normalize.Options{
		Zone:                   zone,
		Locale:                 locale,
		DefaultDurationMinutes: cfg.DefaultDurationMinutes,
	})
	source := storage.NewAppointmentSource(storage.NewAppointmentStore(pool), notifier, logger)
	engine := subscription.NewEngine(subscription.Options{
		Source:     source,
		Normalizer: normalizer,
		Logger:     logger,
		Metrics:    timelineMetrics,
	})
	layoutEngine := layout.New(layout.Options{
		Zone:             zone,
		DayStartHour:     cfg.DayStartHour,
		DayEndHour:       cfg.DayEndHour,
		MinVisualMinutes: cfg.MinVisualMinutes,
	})

	timelineHandler := handlers.NewTimelineHandler(engine, catalogs, handlers.Config{
		Zone:            zone,
		Locale:          locale,
		Layout:          layoutEngine,
		SpanDays:        cfg.SpanDays,
		SnapshotTimeout: cfg.SnapshotTimeout,
	}, logger, timelineMetrics)
	streamHandler := handlers.NewStreamHandler(timelineHandler, logger, timelineMetrics)

	rollover, err := handlers.NewRollover(streamHandler, zone, logger)
	if err != nil {
		panic(err)
	}
	rollover.Start()
	defer rollover.Stop()
	logger.Info("day rollover scheduled", "next", rollover.Next())

	mux := runtime.NewBaseMux(checks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/v1/timeline", timelineHandler.Timeline)
	mux.HandleFunc("/api/v1/timeline.ics", timelineHandler.Calendar)
	mux.HandleFunc("/api/v1/timeline/stream", streamHandler.Stream)
	mux.HandleFunc("/api/v1/resources", timelineHandler.Resources)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(handler, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}

// startFeed builds the change notifier for cfg.ChangeFeed and starts any
// background relay it needs.
func startFeed(ctx context.Context, cfg settings.Settings, pool *db.Pool, rdb *redis.Client, logger *slog.Logger) (feed.Notifier, error) {
	switch cfg.ChangeFeed {
	case settings.FeedPostgres:
		n := feed.NewPostgresNotifier(pool, cfg.PostgresChannel, logger)
		ready := make(chan struct{})
		go n.Run(ctx, ready)
		waitReady(ctx, ready)
		return n, nil
	case settings.FeedPoll:
		return feed.NewPollNotifier(cfg.PollInterval), nil
	case settings.FeedKafka:
		reader := feed.NewKafkaReader(kafkax.SplitBrokers(cfg.KafkaBrokers), cfg.KafkaTopic, cfg.KafkaGroupID)
		n := feed.NewKafkaNotifier(reader, logger)
		go n.Run(ctx)
		return n, nil
	case settings.FeedRedis:
		if rdb == nil {
			return nil, errors.New("redis change feed requires REDIS_ADDR")
		}
		n := feed.NewRedisNotifier(rdb, cfg.RedisChannel, logger)
		ready := make(chan struct{})
		go n.Run(ctx, ready)
		waitReady(ctx, ready)
		return n, nil
	default:
		return nil, errors.New("unknown change feed " + cfg.ChangeFeed)
	}
}

func waitReady(ctx context.Context, ready <-chan struct{}) {
	select {
	case <-ready:
	case <-ctx.Done():
	}
}
