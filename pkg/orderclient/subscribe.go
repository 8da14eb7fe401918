package orderclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
)

// eventBuffer holds events that arrive while the snapshot is being fetched.
const eventBuffer = 256

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if c.token != "" {
		q := u.Query()
		q.Set("access_token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := c.wsURL()
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode < 500 {
			return nil, fmt.Errorf("subscribe: status %d: %w", resp.StatusCode, err)
		}
		return nil, unavailable(err)
	}
	return conn, nil
}

// readEvents passes every decoded event to fn until ctx ends or the connection drops.
func readEvents(ctx context.Context, conn *websocket.Conn, fn func(realtime.Event)) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return unavailable(err)
		}
		var e realtime.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		fn(e)
	}
}

// Subscribe streams events to fn until ctx ends or the connection drops. Events missed
// while disconnected are not replayed; callers resync from Snapshot.
func (c *Client) Subscribe(ctx context.Context, fn func(realtime.Event)) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return readEvents(ctx, conn, fn)
}

// Watch keeps mirror in sync. On every (re)connect the stream is opened before the
// snapshot is fetched; events received meanwhile are applied on top of it, and the
// mirror's version check discards the ones the snapshot already covers.
func (r *ResilientClient) Watch(ctx context.Context, mirror *Mirror) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = r.Health.Interval
	b.MaxElapsedTime = 0

	for {
		err := r.watchOnce(ctx, mirror, b)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !Offline(err) {
			return err
		}
		r.Log.Warn("event_stream_lost", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.NextBackOff()):
		}
	}
}

func (r *ResilientClient) watchOnce(ctx context.Context, mirror *Mirror, b backoff.BackOff) error {
	conn, err := r.Client.dial(ctx)
	if err != nil {
		if Offline(err) {
			// keep showing something while the server is away
			if snap, serr := r.Snapshot(ctx); serr == nil {
				mirror.Reset(snap)
			}
		}
		return err
	}
	defer conn.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan realtime.Event, eventBuffer)
	readErr := make(chan error, 1)
	go func() {
		defer close(events)
		readErr <- readEvents(streamCtx, conn, func(e realtime.Event) {
			select {
			case events <- e:
			case <-streamCtx.Done():
			}
		})
	}()

	snap, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	mirror.Reset(snap)
	if !snap.Authoritative {
		return unavailable(fmt.Errorf("snapshot not authoritative"))
	}

	for e := range events {
		b.Reset()
		mirror.Apply(e)
	}
	return <-readErr
}
