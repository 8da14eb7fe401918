package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Publisher interface {
	Publish(Event)
}

// Sink receives every event in emission order from its own dispatcher.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Overflower is implemented by sinks that can tell their consumers they missed events.
type Overflower interface {
	Overflow()
}

const deliverTimeout = 5 * time.Second

// lane is one sink with its own queue, so a slow sink only delays itself.
type lane struct {
	sink  Sink
	queue chan Event
}

// Hub decouples committed state changes from delivery: Publish only enqueues.
type Hub struct {
	buffer int
	log    *slog.Logger

	mu      sync.RWMutex
	lanes   []*lane
	ctx     context.Context
	running bool
	wg      sync.WaitGroup

	done chan struct{}
}

func NewHub(buffer int, log *slog.Logger, sinks ...Sink) *Hub {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		buffer: buffer,
		log:    log.With("component", "realtime.hub"),
		done:   make(chan struct{}),
	}
	for _, s := range sinks {
		h.AddSink(s)
	}
	return h
}

func (h *Hub) AddSink(s Sink) {
	l := &lane{sink: s, queue: make(chan Event, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lanes = append(h.lanes, l)
	if h.running {
		h.start(l)
	}
}

// Publish never blocks the caller. When a sink's queue is full the event is dropped
// for that sink only, and the sink is told so its consumers can resync.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, l := range h.lanes {
		select {
		case l.queue <- e:
		default:
			h.log.Warn("event_dropped", "sink", l.sink.Name(), "type", e.Type, "entity_id", e.EntityID, "reason", "queue full")
			if o, ok := l.sink.(Overflower); ok {
				o.Overflow()
			}
		}
	}
}

// Run dispatches until ctx is done; each sink then drains what is already queued.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.running = true
	for _, l := range h.lanes {
		h.start(l)
	}
	h.mu.Unlock()

	<-ctx.Done()
	h.wg.Wait()
	close(h.done)
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// start must be called with h.mu held.
func (h *Hub) start(l *lane) {
	ctx := h.ctx
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case e := <-l.queue:
				h.deliver(l.sink, e)
			case <-ctx.Done():
				for {
					select {
					case e := <-l.queue:
						h.deliver(l.sink, e)
					default:
						return
					}
				}
			}
		}
	}()
}

func (h *Hub) deliver(s Sink, e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := s.Deliver(ctx, e); err != nil {
		h.log.Warn("event_delivery_failed", "sink", s.Name(), "type", e.Type, "entity_id", e.EntityID, "error", err)
	}
}
