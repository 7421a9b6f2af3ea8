package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/tracker"
)

const (
	eventWriteTimeout = 5 * time.Second
	eventPingInterval = 30 * time.Second
	subscriberBuffer  = 16
)

// EventMessage is what /api/events clients receive, one per websocket text
// frame.
type EventMessage struct {
	Type     string            `json:"type"` // "snapshot" or "event"
	At       time.Time         `json:"at"`
	Event    *tracker.Event    `json:"event,omitempty"`
	Snapshot *tracker.Snapshot `json:"snapshot,omitempty"`
}

// Hub fans published events out to websocket subscribers. A subscriber that
// cannot keep up loses messages rather than stalling the monitor.
type Hub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
	log  *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: make(map[chan []byte]struct{}), log: log}
}

// Publish encodes ev once and offers it to every subscriber.
func (h *Hub) Publish(ev tracker.Event) {
	b, err := json.Marshal(EventMessage{Type: "event", At: time.Now().UTC(), Event: &ev})
	if err != nil {
		h.log.Warn("event_encode_failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- b:
		default:
			h.log.Debug("event_dropped_slow_subscriber")
		}
	}
}

func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Server) upgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, a := range allowed {
				if a == "*" || strings.EqualFold(a, origin) {
					return true
				}
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
}

// handleEvents streams a snapshot followed by every published event.
func (s *Server) handleEvents(up websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		events, cancel := s.Hub.Subscribe()
		defer cancel()

		snap := s.Status.Snapshot()
		first, _ := json.Marshal(EventMessage{Type: "snapshot", At: time.Now().UTC(), Snapshot: &snap})
		if err := writeFrame(conn, websocket.TextMessage, first); err != nil {
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(eventPingInterval)
		defer ping.Stop()
		for {
			select {
			case b := <-events:
				if err := writeFrame(conn, websocket.TextMessage, b); err != nil {
					return
				}
			case <-ping.C:
				if err := writeFrame(conn, websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, kind int, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	return conn.WriteMessage(kind, b)
}
