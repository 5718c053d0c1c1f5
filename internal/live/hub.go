package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/fleet-tracker/internal/geo"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/observability"
	"github.com/example/fleet-tracker/internal/roster"
)

const writeWait = 5 * time.Second

// Snapshot is what map clients receive after every roster refresh.
type Snapshot struct {
	At      time.Time       `json:"at"`
	Filter  models.Filter   `json:"filter"`
	Markers []models.Marker `json:"markers"`
	Region  geo.Region      `json:"region"`
	Counts  *roster.Counts  `json:"counts,omitempty"`
}

// session is one connected map client.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub fans snapshots out to every connected client.
type Hub struct {
	log zerolog.Logger

	mu       sync.RWMutex
	sessions map[*session]struct{}
	last     []byte
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:      log.With().Str("component", "live").Logger(),
		sessions: make(map[*session]struct{}),
	}
}

// Add registers conn, replays the latest snapshot, and drops the client
// once its read side fails.
func (h *Hub) Add(conn *websocket.Conn) {
	s := &session{conn: conn}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	last := h.last
	h.mu.Unlock()
	observability.LiveClients.Inc()

	if last != nil {
		if err := s.send(last); err != nil {
			h.remove(s)
			return
		}
	}
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(s)
				return
			}
		}
	}()
}

func (h *Hub) remove(s *session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if ok {
		observability.LiveClients.Dec()
		_ = s.conn.Close()
	}
}

// Broadcast sends v as JSON to every client. Clients whose write fails are
// dropped.
func (h *Hub) Broadcast(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.last = b
	targets := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		if err := s.send(b); err != nil {
			h.log.Warn().Err(err).Msg("ws send error, dropping client")
			h.remove(s)
		}
	}
	return nil
}

// Last returns the most recent broadcast payload.
func (h *Hub) Last() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[*session]struct{})
	h.mu.Unlock()
	for s := range sessions {
		observability.LiveClients.Dec()
		_ = s.conn.Close()
	}
}
