package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/metrics"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/subscription"
	"github.com/md-rashed-zaman/salon-timeline/services/timeline-service/internal/view"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
	actionPing        = "ping"
)

type clientMessage struct {
	Action string `json:"action"`
	timelineParams
}

type serverMessage struct {
	Type      string     `json:"type"` // session, view, unsubscribed, pong, error
	SessionID string     `json:"session_id,omitempty"`
	View      *view.View `json:"view,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// StreamHandler pushes a fresh view over a websocket whenever the subscribed
// range changes.
type StreamHandler struct {
	timeline *TimelineHandler
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.TimelineMetrics

	mu       sync.Mutex
	sessions map[string]*session
}

func NewStreamHandler(timeline *TimelineHandler, logger *slog.Logger, m *metrics.TimelineMetrics) *StreamHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamHandler{
		timeline: timeline,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]*session),
	}
}

func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	initial, err := paramsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{
		id:     uuid.NewString(),
		h:      h,
		conn:   conn,
		scope:  staffScope(r),
		ctx:    ctx,
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	s.logger = h.logger.With("session_id", s.id)

	h.register(s)
	h.metrics.StreamConnected()
	s.logger.Info("stream connected", "remote_addr", r.RemoteAddr)
	defer func() {
		s.close()
		h.unregister(s)
		h.metrics.StreamDisconnected()
		_ = conn.Close()
		s.logger.Info("stream disconnected")
	}()

	go s.writeLoop()
	s.enqueue(serverMessage{Type: "session", SessionID: s.id})
	if r.URL.RawQuery != "" {
		s.subscribe(initial)
	}
	s.readLoop()
}

// Sessions reports the number of connected streams.
func (h *StreamHandler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Rollover re-anchors every stream that follows today once the local day
// has changed. It returns the number of streams re-subscribed.
func (h *StreamHandler) Rollover(now time.Time) int {
	h.mu.Lock()
	list := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.Unlock()

	n := 0
	for _, s := range list {
		if s.rollover(now) {
			n++
		}
	}
	return n
}

func (h *StreamHandler) register(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

func (h *StreamHandler) unregister(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
}

type session struct {
	id     string
	h      *StreamHandler
	conn   *websocket.Conn
	scope  string
	logger *slog.Logger
	ctx    context.Context

	mu      sync.Mutex
	gen     int
	sub     *subscription.Subscription
	params  timelineParams
	follows bool
	dayKey  string
	control []serverMessage
	latest  *serverMessage // newest undelivered view; older ones are dropped

	wake   chan struct{}
	closed chan struct{}
	once   sync.Once
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("stream read failed", "err", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.enqueue(serverMessage{Type: "error", Error: "invalid message"})
			continue
		}
		switch msg.Action {
		case actionSubscribe:
			s.subscribe(msg.timelineParams)
		case actionUnsubscribe:
			s.unsubscribe(true)
		case actionPing:
			s.enqueue(serverMessage{Type: "pong"})
		default:
			s.enqueue(serverMessage{Type: "error", Error: "unknown action"})
		}
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.fail(err)
				return
			}
		case <-s.wake:
			for {
				msg, ok := s.next()
				if !ok {
					break
				}
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteJSON(msg); err != nil {
					s.fail(err)
					return
				}
			}
		}
	}
}

// fail closes the connection so the read loop returns.
func (s *session) fail(err error) {
	s.logger.Debug("stream write failed", "err", err)
	_ = s.conn.Close()
}

func (s *session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *session) enqueue(msg serverMessage) {
	s.mu.Lock()
	s.control = append(s.control, msg)
	s.mu.Unlock()
	s.signal()
}

func (s *session) offerView(gen int, v view.View) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.latest = &serverMessage{Type: "view", SessionID: s.id, View: &v}
	s.mu.Unlock()
	s.signal()
}

func (s *session) next() (serverMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.control) > 0 {
		msg := s.control[0]
		s.control = s.control[1:]
		return msg, true
	}
	if s.latest != nil {
		msg := *s.latest
		s.latest = nil
		return msg, true
	}
	return serverMessage{}, false
}

// subscribe replaces the current subscription. The previous one is torn
// down before the new one opens.
func (s *session) subscribe(p timelineParams) {
	t := s.h.timeline
	res, err := t.resolve(s.ctx, p, s.scope)
	if err != nil {
		s.enqueue(serverMessage{Type: "error", Error: err.Error()})
		return
	}

	day := t.cfg.Zone.DayKey(res.anchor)
	s.mu.Lock()
	old := s.sub
	s.sub = nil
	s.gen++
	gen := s.gen
	s.params = p
	s.follows = res.follows
	s.dayKey = day
	s.latest = nil
	s.mu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}

	sub := t.engine.Watch(s.ctx, res.req, res.cat, func(u subscription.Update) {
		if !s.current(gen) {
			return
		}
		s.offerView(gen, t.build(u.Appointments, u.Mode, res))
	})

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	s.sub = sub
	s.mu.Unlock()
	s.logger.Debug("stream subscribed", "subscription_id", sub.ID(), "day", day, "follows_today", res.follows)
}

func (s *session) unsubscribe(notify bool) {
	s.mu.Lock()
	old := s.sub
	s.sub = nil
	s.gen++
	s.follows = false
	s.latest = nil
	s.mu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}
	if notify {
		s.enqueue(serverMessage{Type: "unsubscribed", SessionID: s.id})
	}
}

func (s *session) current(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *session) rollover(now time.Time) bool {
	zone := s.h.timeline.cfg.Zone
	s.mu.Lock()
	if !s.follows || s.sub == nil || zone.DayKey(now) == s.dayKey {
		s.mu.Unlock()
		return false
	}
	p := s.params
	s.mu.Unlock()
	s.subscribe(p)
	return true
}

func (s *session) close() {
	s.once.Do(func() {
		s.unsubscribe(false)
		close(s.closed)
	})
}
