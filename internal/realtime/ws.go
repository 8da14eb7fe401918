package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 7 * time.Second
	pongWait     = 70 * time.Second
	pingInterval = 25 * time.Second
	sendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsClient) writeText(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait))
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WSSink fans events out to connected terminals. A client whose buffer is full
// is disconnected and expected to refetch /state on reconnect.
type WSSink struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	log     *slog.Logger
}

func NewWSSink(log *slog.Logger) *WSSink {
	if log == nil {
		log = slog.Default()
	}
	return &WSSink{clients: map[*wsClient]struct{}{}, log: log.With("component", "realtime.ws")}
}

func (s *WSSink) Name() string { return "websocket" }

func (s *WSSink) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *WSSink) Deliver(_ context.Context, e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	for _, c := range s.list() {
		select {
		case c.send <- raw:
		default:
			s.log.Warn("ws_client_dropped", "reason", "slow consumer", "type", e.Type)
			s.remove(c)
		}
	}
	return nil
}

// Overflow disconnects every client. Their state is behind once the hub dropped an
// event for this sink, and a reconnect makes them refetch /state.
func (s *WSSink) Overflow() {
	clients := s.list()
	if len(clients) == 0 {
		return
	}
	s.log.Warn("ws_clients_reset", "reason", "events dropped", "clients", len(clients))
	for _, c := range clients {
		s.remove(c)
	}
}

// Serve upgrades the request and pumps events until the peer goes away.
func (s *WSSink) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	s.add(c)
	defer s.remove(c)

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case raw := <-c.send:
			if err := c.writeText(raw); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return nil
			}
		case <-readDone:
			return nil
		case <-c.done:
			return nil
		case <-r.Context().Done():
			return nil
		}
	}
}

func (s *WSSink) add(c *wsClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *WSSink) remove(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

func (s *WSSink) list() []*wsClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}
