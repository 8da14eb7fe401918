package orderclient

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/session"
)

const defaultCartDebounce = 400 * time.Millisecond

// ResilientClient routes mutating calls through the offline queue while the server is
// unreachable and serves reads from a non-authoritative placeholder.
type ResilientClient struct {
	*Client
	Health *HealthMonitor
	Queue  *Queue
	Log    *slog.Logger

	// PlaceholderTables sizes the placeholder snapshot when nothing was ever loaded.
	PlaceholderTables int

	debounce *Debouncer
	flushMu  sync.Mutex
	resync   singleflight.Group

	mu   sync.Mutex
	last *models.Snapshot
}

func NewResilientClient(c *Client, log *slog.Logger) *ResilientClient {
	if log == nil {
		log = slog.Default()
	}
	r := &ResilientClient{
		Client:            c,
		Queue:             &Queue{},
		Log:               log.With("component", "orderclient"),
		PlaceholderTables: 12,
		debounce:          NewDebouncer(defaultCartDebounce),
	}
	r.Health = NewHealthMonitor(c.Live, nil)
	r.Health.Log = r.Log
	return r
}

// Outcome describes what Submit did with an action.
type Outcome int

const (
	Sent Outcome = iota
	Queued
)

// Submit sends a or, when the server is unreachable, appends it to the queue. Earlier
// queued actions always reach the server first. Business rejections are returned as
// errors and never queued.
func (r *ResilientClient) Submit(ctx context.Context, a Action, out any) (Outcome, error) {
	if !r.Health.Healthy() {
		r.Queue.Push(a)
		r.Log.Info("action_queued", "method", a.Method, "path", a.Path, "key", a.Key, "reason", "offline")
		return Queued, nil
	}
	if r.Queue.Len() > 0 {
		r.Flush(ctx)
		if r.Queue.Len() > 0 {
			r.Queue.Push(a)
			r.Log.Info("action_queued", "method", a.Method, "path", a.Path, "key", a.Key, "reason", "backlog")
			return Queued, nil
		}
	}
	err := r.Client.Execute(ctx, a, out)
	if Offline(err) {
		r.Health.Record(err)
		r.Queue.Push(a)
		r.Log.Warn("action_queued", "method", a.Method, "path", a.Path, "key", a.Key, "reason", "network", "error", err)
		return Queued, nil
	}
	r.Health.Record(nil)
	return Sent, err
}

// FlushReport lists what a flush did with each queued action, by key.
type FlushReport struct {
	Applied  []string
	Rejected map[string]error
	// Remaining counts actions still queued because the server went away again.
	Remaining int
}

// Flush replays the queue in order. An action leaves the queue only after a definitive
// answer; the first network failure stops the flush with the rest kept in order.
func (r *ResilientClient) Flush(ctx context.Context) FlushReport {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	rep := FlushReport{Rejected: map[string]error{}}
	for {
		a, ok := r.Queue.Peek()
		if !ok {
			break
		}
		err := r.Client.Execute(ctx, a, nil)
		if Offline(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.Health.Record(err)
			r.Log.Warn("flush_interrupted", "key", a.Key, "error", err)
			break
		}
		r.Queue.Remove(a.Key)
		if err != nil {
			r.Log.Warn("flush_rejected", "key", a.Key, "method", a.Method, "path", a.Path, "error", err)
			rep.Rejected[a.Key] = err
			continue
		}
		rep.Applied = append(rep.Applied, a.Key)
	}
	rep.Remaining = r.Queue.Len()
	if len(rep.Applied) > 0 || len(rep.Rejected) > 0 {
		r.Log.Info("flush_done", "applied", len(rep.Applied), "rejected", len(rep.Rejected), "remaining", rep.Remaining)
	}
	return rep
}

// Run checks health on the monitor interval and flushes the queue whenever the
// server is reachable.
func (r *ResilientClient) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Health.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.Health.Tick(ctx) && r.Queue.Len() > 0 {
				r.Flush(ctx)
			}
		}
	}
}

// Snapshot returns the server state, or a copy of the last one marked
// Authoritative=false when the server cannot be reached. Concurrent callers share
// one request.
func (r *ResilientClient) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	if r.Health.Healthy() {
		v, err, _ := r.resync.Do("snapshot", func() (any, error) {
			return r.Client.Snapshot(ctx)
		})
		if err == nil {
			s := v.(*models.Snapshot)
			r.Health.Record(nil)
			r.mu.Lock()
			r.last = s
			r.mu.Unlock()
			return s, nil
		}
		if !Offline(err) {
			return nil, err
		}
		r.Health.Record(err)
	}
	return r.placeholder(), nil
}

func (r *ResilientClient) placeholder() *models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last != nil {
		cp := *r.last
		cp.Tables = append([]models.Table(nil), r.last.Tables...)
		cp.ActiveOrders = append([]models.Order(nil), r.last.ActiveOrders...)
		cp.Authoritative = false
		return &cp
	}
	s := &models.Snapshot{TableCount: r.PlaceholderTables, GeneratedAt: time.Now().UTC()}
	for i := 1; i <= r.PlaceholderTables; i++ {
		s.Tables = append(s.Tables, models.Table{ID: strconv.Itoa(i), Status: models.TableEmpty})
	}
	return s
}

// SetCartQuantity coalesces rapid quantity edits for one line; only the last value
// within the debounce window is submitted. done, if set, receives the outcome.
func (r *ResilientClient) SetCartQuantity(table, itemID string, qty int, done func(Outcome, error)) {
	r.debounce.Do(table+"/"+itemID, func() {
		a, err := MutateCartAction(table, CartOp{Op: session.OpSetQuantity, ItemID: itemID, Quantity: qty})
		if err != nil {
			if done != nil {
				done(Sent, err)
			}
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		res, err := r.Submit(ctx, a, nil)
		if done != nil {
			done(res, err)
		}
	})
}

// FlushCartEdits sends pending debounced edits now, e.g. before submitting an order.
func (r *ResilientClient) FlushCartEdits() { r.debounce.Flush() }

func (r *ResilientClient) Close() { r.debounce.Stop() }
