package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/catalog"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
)

type CatalogLoader interface {
	Resources(ctx context.Context) ([]model.Resource, error)
	Treatments(ctx context.Context) ([]model.Treatment, error)
}

type CatalogRepository struct {
	q Querier
}

func NewCatalogRepository(q Querier) *CatalogRepository {
	return &CatalogRepository{q: q}
}

func (r *CatalogRepository) Resources(ctx context.Context) ([]model.Resource, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, COALESCE(color, '')
		FROM barbers
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: query barbers: %w", err)
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		var res model.Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.Color); err != nil {
			return nil, fmt.Errorf("storage: scan barber: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *CatalogRepository) Treatments(ctx context.Context) ([]model.Treatment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, duration_minutes, price::float8
		FROM treatments
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: query treatments: %w", err)
	}
	defer rows.Close()

	var out []model.Treatment
	for rows.Next() {
		var t model.Treatment
		if err := rows.Scan(&t.ID, &t.Name, &t.DurationMinutes, &t.Price); err != nil {
			return nil, fmt.Errorf("storage: scan treatment: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const (
	resourcesKey  = "timeline:catalog:resources"
	treatmentsKey = "timeline:catalog:treatments"
)

// CachedCatalog keeps the catalog in Redis for ttl. Redis errors fall
// through to the loader.
type CachedCatalog struct {
	next   CatalogLoader
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCatalog(next CatalogLoader, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedCatalog{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) Resources(ctx context.Context) ([]model.Resource, error) {
	return cached(ctx, c, resourcesKey, c.next.Resources)
}

func (c *CachedCatalog) Treatments(ctx context.Context) ([]model.Treatment, error) {
	return cached(ctx, c, treatmentsKey, c.next.Treatments)
}

func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, resourcesKey, treatmentsKey).Err()
}

func cached[T any](ctx context.Context, c *CachedCatalog, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []T
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		c.logger.Warn("catalog cache entry unreadable", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("catalog cache read failed", "key", key, "err", err)
	}

	out, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("catalog cache write failed", "key", key, "err", err)
		}
	}
	return out, nil
}

// LoadCatalog reads resources and treatments once and builds the lookup
// catalog used for the lifetime of a subscription.
func LoadCatalog(ctx context.Context, loader CatalogLoader, primaryID string, tag language.Tag) (*catalog.Catalog, error) {
	resources, err := loader.Resources(ctx)
	if err != nil {
		return nil, err
	}
	treatments, err := loader.Treatments(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.New(resources, treatments, primaryID, tag), nil
}
