package orderclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
	"github.com/Skotchmaster/restaurant_pos/pkg/orderclient"
)

// streamServer serves /state and /ws. On the first connection it pushes a status
// change that commits while the first snapshot is still being built, then drops the
// connection when told to. The second snapshot holds a different order.
type streamServer struct {
	sent      chan struct{}
	dropFirst chan struct{}
	conns     atomic.Int32
	states    atomic.Int32
}

func newStreamServer(t *testing.T) (*streamServer, *httptest.Server) {
	t.Helper()
	s := &streamServer{sent: make(chan struct{}), dropFirst: make(chan struct{})}
	up := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if s.conns.Add(1) == 1 {
			_ = conn.WriteJSON(realtime.StatusEvent(sampleOrder(models.OrderStatusPreparing, 2)))
			close(s.sent)
			<-s.dropFirst
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		snap := models.Snapshot{Authoritative: true, TableCount: 12}
		if s.states.Add(1) == 1 {
			select {
			case <-s.sent:
			case <-time.After(2 * time.Second):
			}
			snap.ActiveOrders = []models.Order{*sampleOrder(models.OrderStatusPending, 1)}
		} else {
			next := sampleOrder(models.OrderStatusPending, 1)
			next.ID = 42
			snap.ActiveOrders = []models.Order{*next}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		select {
		case <-s.dropFirst:
		default:
			close(s.dropFirst)
		}
		srv.Close()
	})
	return s, srv
}

func (s *streamServer) drop() { close(s.dropFirst) }

func TestWatchKeepsEventsCommittedDuringSnapshotAndResyncs(t *testing.T) {
	stream, srv := newStreamServer(t)
	rc := orderclient.NewResilientClient(orderclient.NewClient(srv.URL), nil)
	t.Cleanup(rc.Close)
	m := orderclient.NewMirror()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rc.Watch(ctx, m) }()

	require.Eventually(t, func() bool {
		o, ok := m.Order("41")
		return ok && o.Status == models.OrderStatusPreparing
	}, 3*time.Second, 10*time.Millisecond)
	o, _ := m.Order("41")
	assert.EqualValues(t, 2, o.Version)
	assert.False(t, m.Stale())

	stream.drop()
	require.Eventually(t, func() bool {
		_, fresh := m.Order("42")
		_, old := m.Order("41")
		return fresh && !old
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}
