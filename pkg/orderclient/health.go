package orderclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCheckInterval = 15 * time.Second
	DefaultCheckTimeout  = 30 * time.Second
	DefaultThreshold     = 5
	defaultWakePings     = 3
)

var errAwake = errors.New("server awake")

// HealthMonitor keeps a rolling health flag. It turns unhealthy after Threshold
// consecutive failed pings and healthy again on the first success.
type HealthMonitor struct {
	Ping      func(ctx context.Context) error
	Interval  time.Duration
	Timeout   time.Duration
	Threshold int
	WakePings int
	// WakeInitial is the first backoff step between wake pings.
	WakeInitial time.Duration
	OnChange    func(healthy bool)
	Log         *slog.Logger

	mu       sync.Mutex
	healthy  bool
	failures int
}

func NewHealthMonitor(ping func(ctx context.Context) error, onChange func(healthy bool)) *HealthMonitor {
	return &HealthMonitor{
		Ping:        ping,
		Interval:    DefaultCheckInterval,
		Timeout:     DefaultCheckTimeout,
		Threshold:   DefaultThreshold,
		WakePings:   defaultWakePings,
		WakeInitial: time.Second,
		OnChange:    onChange,
		healthy:     true,
	}
}

func (m *HealthMonitor) log() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}

func (m *HealthMonitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// Record feeds the outcome of any call to the server into the flag.
func (m *HealthMonitor) Record(err error) {
	m.mu.Lock()
	changed := false
	if err == nil {
		m.failures = 0
		if !m.healthy {
			m.healthy, changed = true, true
		}
	} else {
		m.failures++
		if m.healthy && m.failures >= m.Threshold {
			m.healthy, changed = false, true
		}
	}
	healthy, failures := m.healthy, m.failures
	m.mu.Unlock()

	if !changed {
		return
	}
	m.log().Info("health_changed", "healthy", healthy, "failures", failures)
	if m.OnChange != nil {
		m.OnChange(healthy)
	}
}

// Check runs one ping bounded by Timeout.
func (m *HealthMonitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	err := m.Ping(pctx)
	if err != nil {
		m.log().Warn("health_check_failed", "error", err)
	}
	m.Record(err)
	return err == nil
}

// Wake fires WakePings pings in parallel, each retrying with exponential backoff
// for up to Timeout. The first success stops the others and marks the server healthy.
func (m *HealthMonitor) Wake(ctx context.Context) bool {
	var awake atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	n := m.WakePings
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = m.WakeInitial
			b.MaxElapsedTime = m.Timeout
			err := backoff.Retry(func() error {
				pctx, cancel := context.WithTimeout(gctx, m.Timeout)
				defer cancel()
				return m.Ping(pctx)
			}, backoff.WithContext(b, gctx))
			if err != nil {
				return nil
			}
			awake.Store(true)
			return errAwake
		})
	}
	_ = g.Wait()

	if awake.Load() {
		m.Record(nil)
		return true
	}
	m.log().Warn("wake_failed", "pings", n)
	return false
}

// Tick does one round of the probing loop and reports the resulting flag.
func (m *HealthMonitor) Tick(ctx context.Context) bool {
	if m.Healthy() {
		m.Check(ctx)
	} else {
		m.Wake(ctx)
	}
	return m.Healthy()
}

func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}
