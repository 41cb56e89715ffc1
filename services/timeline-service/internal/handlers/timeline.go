package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/catalog"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/layout"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/metrics"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/model"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/subscription"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/timemath"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/view"
)

const maxSpanDays = 62

// Staff callers see only their own lane. The gateway sets these headers.
const (
	headerRole    = "X-Role"
	headerStaffID = "X-Staff-Id"
	roleStaff     = "staff"
)

// CatalogProvider loads the resource and treatment catalog for a request.
type CatalogProvider interface {
	Catalog(ctx context.Context) (*catalog.Catalog, error)
}

type CatalogFunc func(ctx context.Context) (*catalog.Catalog, error)

func (f CatalogFunc) Catalog(ctx context.Context) (*catalog.Catalog, error) { return f(ctx) }

type Config struct {
	Zone            *timemath.Zone
	Locale          timemath.Locale
	Layout          *layout.Engine
	SpanDays        int
	SnapshotTimeout time.Duration
	// Now is overridable in tests.
	Now func() time.Time
}

type TimelineHandler struct {
	engine   *subscription.Engine
	catalogs CatalogProvider
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.TimelineMetrics
}

func NewTimelineHandler(engine *subscription.Engine, catalogs CatalogProvider, cfg Config, logger *slog.Logger, m *metrics.TimelineMetrics) *TimelineHandler {
	if cfg.Zone == nil {
		cfg.Zone = engine.Normalizer().Zone()
	}
	if cfg.Layout == nil {
		cfg.Layout = layout.New(layout.Options{Zone: cfg.Zone})
	}
	if cfg.SpanDays <= 0 {
		cfg.SpanDays = 14
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Locale == "" {
		cfg.Locale = timemath.Hebrew
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TimelineHandler{engine: engine, catalogs: catalogs, cfg: cfg, logger: logger, metrics: m}
}

// timelineParams is the query shared by the timeline, calendar and stream
// endpoints.
type timelineParams struct {
	Date       string `json:"date"`
	Span       int    `json:"span"`
	ResourceID string `json:"resource_id"`
	Query      string `json:"q"`
	Lanes      string `json:"lanes"`
	Lang       string `json:"lang"`
}

func paramsFromQuery(r *http.Request) (timelineParams, error) {
	q := r.URL.Query()
	p := timelineParams{
		Date:       strings.TrimSpace(q.Get("date")),
		ResourceID: strings.TrimSpace(q.Get("resource_id")),
		Query:      q.Get("q"),
		Lanes:      q.Get("lanes"),
		Lang:       q.Get("lang"),
	}
	if p.Lang == "" {
		p.Lang = r.Header.Get("Accept-Language")
	}
	if raw := strings.TrimSpace(q.Get("span")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return timelineParams{}, errors.New("invalid span")
		}
		p.Span = n
	}
	return p, nil
}

// staffScope returns the staff id a caller is restricted to, if any.
func staffScope(r *http.Request) string {
	if strings.TrimSpace(r.Header.Get(headerRole)) != roleStaff {
		return ""
	}
	return strings.TrimSpace(r.Header.Get(headerStaffID))
}

// resolved is a validated request ready to subscribe.
type resolved struct {
	req     subscription.Request
	cat     *catalog.Catalog
	opts    view.Options
	anchor  time.Time
	span    int
	follows bool
}

func (h *TimelineHandler) resolve(ctx context.Context, p timelineParams, scope string) (resolved, error) {
	now := h.cfg.Now()
	anchor := h.cfg.Zone.Today(now)
	follows := true
	if p.Date != "" {
		day, err := h.cfg.Zone.ParseDayKey(p.Date)
		if err != nil {
			return resolved{}, errors.New("invalid date")
		}
		anchor = day
		follows = false
	}
	span := p.Span
	if span == 0 {
		span = h.cfg.SpanDays
	}
	if span < 1 || span > maxSpanDays {
		return resolved{}, errors.New("span out of range")
	}

	cat := catalog.Empty()
	if h.catalogs != nil {
		loaded, err := h.catalogs.Catalog(ctx)
		if err != nil {
			h.logger.Warn("catalog load failed", "err", err)
		} else if loaded != nil {
			cat = loaded
		}
	}

	requested := p.ResourceID
	if requested == "" {
		requested = catalog.PrimaryResource
	}
	if scope != "" {
		cat = cat.Only(scope)
		requested = scope
	}

	rng := h.cfg.Zone.BuildRange(anchor, span)
	locale := h.cfg.Locale
	if p.Lang != "" {
		locale = timemath.ParseLocale(p.Lang)
	}
	return resolved{
		req: subscription.Request{Range: rng, ResourceID: requested},
		cat: cat,
		opts: view.Options{
			Zone:       h.cfg.Zone,
			Locale:     locale,
			Layout:     h.cfg.Layout,
			Catalog:    cat,
			Range:      rng,
			ResourceID: cat.ResolveResource(requested),
			Query:      p.Query,
			Lanes:      view.ParseLaneMode(p.Lanes),
		},
		anchor:  anchor,
		span:    span,
		follows: follows,
	}, nil
}

func (h *TimelineHandler) build(appts []model.Appointment, mode subscription.Mode, res resolved) view.View {
	started := time.Now()
	opts := res.opts
	opts.Now = h.cfg.Now()
	v := view.Build(appts, opts)
	v.Mode = string(mode)
	h.metrics.ObserveBuild(time.Since(started).Seconds())
	return v
}

func (h *TimelineHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, err := paramsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.resolve(r.Context(), p, staffScope(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appts, mode := h.engine.FetchTimeout(r.Context(), res.req, res.cat, h.cfg.SnapshotTimeout)
	writeJSON(w, http.StatusOK, h.build(appts, mode, res))
}

type resourceItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type resourcesResponse struct {
	PrimaryResourceID string         `json:"primary_resource_id,omitempty"`
	Resources         []resourceItem `json:"resources"`
}

func (h *TimelineHandler) Resources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cat := catalog.Empty()
	if h.catalogs != nil {
		loaded, err := h.catalogs.Catalog(r.Context())
		if err != nil {
			h.logger.Error("catalog load failed", "err", err)
			http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
			return
		}
		cat = loaded
	}
	if scope := staffScope(r); scope != "" {
		cat = cat.Only(scope)
	}

	resp := resourcesResponse{
		PrimaryResourceID: cat.ResolveResource(catalog.PrimaryResource),
		Resources:         []resourceItem{},
	}
	for _, res := range cat.Resources() {
		resp.Resources = append(resp.Resources, resourceItem{ID: res.ID, Name: res.Name, Color: res.Color})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
