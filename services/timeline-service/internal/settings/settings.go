package settings

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salon-timeline/libs/config"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
)

const (
	FeedPostgres = "postgres"
	FeedKafka    = "kafka"
	FeedRedis    = "redis"
	FeedPoll     = "poll"
)

type Settings struct {
	ServiceName string `yaml:"service_name"`
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level"`
	DBMaxConns  int    `yaml:"db_max_conns"`

	Timezone               string `yaml:"timezone"`
	Locale                 string `yaml:"locale"`
	PrimaryResourceID      string `yaml:"primary_resource_id"`
	SpanDays               int    `yaml:"span_days"`
	DayStartHour           int    `yaml:"day_start_hour"`
	DayEndHour             int    `yaml:"day_end_hour"`
	MinVisualMinutes       int    `yaml:"min_visual_minutes"`
	DefaultDurationMinutes int    `yaml:"default_duration_minutes"`

	ChangeFeed      string        `yaml:"change_feed"`
	PostgresChannel string        `yaml:"postgres_channel"`
	KafkaBrokers    string        `yaml:"kafka_brokers"`
	KafkaTopic      string        `yaml:"kafka_topic"`
	KafkaGroupID    string        `yaml:"kafka_group_id"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisChannel    string        `yaml:"redis_channel"`
	PollInterval    time.Duration `yaml:"poll_interval"`

	CatalogCacheTTL time.Duration `yaml:"catalog_cache_ttl"`
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout"`
}

// Load reads the environment, then applies the YAML file named by
// TIMELINE_CONFIG on top, then validates.
func Load() (Settings, error) {
	s, err := fromEnv()
	if err != nil {
		return Settings{}, err
	}
	if _, err := config.OverlayYAML(config.String("TIMELINE_CONFIG", ""), &s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func fromEnv() (Settings, error) {
	port, err := config.Port("PORT", "8090")
	if err != nil {
		return Settings{}, err
	}
	s := Settings{
		ServiceName:       config.String("SERVICE_NAME", "timeline-service"),
		Port:              port,
		DatabaseURL:       config.String("DATABASE_URL", ""),
		LogLevel:          config.String("LOG_LEVEL", "info"),
		Timezone:          config.String("TIMELINE_TIMEZONE", timemath.DefaultTimezone),
		Locale:            config.String("TIMELINE_LOCALE", string(timemath.Hebrew)),
		PrimaryResourceID: config.String("TIMELINE_PRIMARY_RESOURCE_ID", ""),
		ChangeFeed:        strings.ToLower(config.String("CHANGE_FEED", FeedPostgres)),
		PostgresChannel:   config.String("POSTGRES_CHANNEL", "appointments_changed"),
		KafkaBrokers:      config.String("KAFKA_BROKERS", ""),
		KafkaTopic:        config.String("KAFKA_TOPIC", "booking.appointment.changed"),
		KafkaGroupID:      config.String("KAFKA_GROUP_ID", ""),
		RedisAddr:         config.String("REDIS_ADDR", ""),
		RedisChannel:      config.String("REDIS_CHANNEL", "timeline:appointments"),
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"DB_MAX_CONNS", 20, &s.DBMaxConns},
		{"TIMELINE_SPAN_DAYS", 14, &s.SpanDays},
		{"TIMELINE_DAY_START_HOUR", 6, &s.DayStartHour},
		{"TIMELINE_DAY_END_HOUR", 24, &s.DayEndHour},
		{"TIMELINE_MIN_VISUAL_MINUTES", 15, &s.MinVisualMinutes},
		{"TIMELINE_DEFAULT_DURATION_MINUTES", 60, &s.DefaultDurationMinutes},
	}
	for _, it := range ints {
		v, err := config.Int(it.key, it.fallback)
		if err != nil {
			return Settings{}, err
		}
		*it.dst = v
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"POLL_INTERVAL_SECONDS", 15 * time.Second, &s.PollInterval},
		{"CATALOG_CACHE_TTL_SECONDS", 5 * time.Minute, &s.CatalogCacheTTL},
		{"SNAPSHOT_TIMEOUT_SECONDS", 3 * time.Second, &s.SnapshotTimeout},
	}
	for _, it := range durations {
		v, err := config.Seconds(it.key, it.fallback)
		if err != nil {
			return Settings{}, err
		}
		*it.dst = v
	}
	return s, nil
}

func (s *Settings) Validate() error {
	var errs []error
	if s.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if _, err := timemath.LoadZone(s.Timezone); err != nil {
		errs = append(errs, err)
	}
	if s.DBMaxConns < 1 || s.DBMaxConns > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("db max conns must be positive (got %d)", s.DBMaxConns))
	}
	if s.SpanDays < 1 || s.SpanDays > 62 {
		errs = append(errs, fmt.Errorf("span days must be within 1..62 (got %d)", s.SpanDays))
	}
	if s.DayStartHour < 0 || s.DayStartHour > 23 || s.DayEndHour <= s.DayStartHour || s.DayEndHour > 24 {
		errs = append(errs, fmt.Errorf("day window %d..%d is invalid", s.DayStartHour, s.DayEndHour))
	}
	if s.MinVisualMinutes < 1 {
		errs = append(errs, fmt.Errorf("min visual minutes must be positive (got %d)", s.MinVisualMinutes))
	}
	if s.DefaultDurationMinutes < 1 {
		errs = append(errs, fmt.Errorf("default duration must be positive (got %d)", s.DefaultDurationMinutes))
	}
	switch s.ChangeFeed {
	case FeedPostgres, FeedPoll:
	case FeedKafka:
		if strings.TrimSpace(s.KafkaBrokers) == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka change feed"))
		}
	case FeedRedis:
		if s.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis change feed"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown change feed %q", s.ChangeFeed))
	}
	if s.SnapshotTimeout <= 0 {
		s.SnapshotTimeout = 3 * time.Second
	}
	if s.KafkaGroupID == "" {
		s.KafkaGroupID = s.ServiceName
	}
	s.Locale = string(timemath.ParseLocale(s.Locale))
	return errors.Join(errs...)
}
