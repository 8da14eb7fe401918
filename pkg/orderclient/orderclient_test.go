package orderclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/restaurant_pos/internal/daybook"
	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/pkg/orderclient"
)

// fakeServer answers like the order service: 503 while down, and one stored
// response per Idempotency-Key.
type fakeServer struct {
	down atomic.Bool

	mu       sync.Mutex
	applied  map[string]int
	sequence []string
	byKey    map[string][]byte
	cartSets []int

	stateHits atomic.Int32
	stateGate chan struct{}
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	f := &fakeServer{applied: map[string]int{}, byKey: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	if f.down.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	switch {
	case r.URL.Path == "/health/live":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/daybook/transactions" && r.Method == http.MethodPost:
		f.appendTx(w, r)
	case r.URL.Path == "/tables/3/cart" && r.Method == http.MethodPost:
		var op orderclient.CartOp
		_ = json.NewDecoder(r.Body).Decode(&op)
		f.mu.Lock()
		f.cartSets = append(f.cartSets, op.Quantity)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"table_id":"3","items":[],"total":"0.00"}`))
	case r.URL.Path == "/state":
		f.stateHits.Add(1)
		if f.stateGate != nil {
			<-f.stateGate
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.Snapshot{
			Tables:        []models.Table{{ID: "1", Status: models.TableDining, Version: 3}},
			TableCount:    1,
			Authoritative: true,
		})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","kind":"not_found","message":"no route"}`))
	}
}

func (f *fakeServer) appendTx(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(orderclient.HeaderIdempotencyKey)
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if stored, ok := f.byKey[key]; ok && key != "" {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(stored)
		return
	}
	var in daybook.AppendInput
	if err := json.Unmarshal(body, &in); err != nil || in.Type == "tip" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","kind":"validation","message":"unknown transaction type"}`))
		return
	}
	f.applied[key]++
	f.sequence = append(f.sequence, in.Description)
	resp, _ := json.Marshal(models.DaybookTransaction{ID: uint(len(f.applied)), Type: models.TransactionType(in.Type), Amount: in.Amount})
	f.byKey[key] = resp
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(resp)
}

func (f *fakeServer) totalApplied() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.applied {
		n += c
	}
	return n
}

func newResilient(t *testing.T, srv *httptest.Server) (*orderclient.ResilientClient, *[]bool) {
	t.Helper()
	rc := orderclient.NewResilientClient(orderclient.NewClient(srv.URL), nil)
	rc.Health.Timeout = time.Second
	rc.Health.WakeInitial = 10 * time.Millisecond
	var mu sync.Mutex
	changes := &[]bool{}
	rc.Health.OnChange = func(h bool) {
		mu.Lock()
		defer mu.Unlock()
		*changes = append(*changes, h)
	}
	t.Cleanup(rc.Close)
	return rc, changes
}

func TestOfflineHandoverIsFlushedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeServer(t)
	rc, changes := newResilient(t, srv)

	f.down.Store(true)
	for i := 0; i < orderclient.DefaultThreshold-1; i++ {
		rc.Health.Check(ctx)
		require.True(t, rc.Health.Healthy(), "still healthy after %d failures", i+1)
	}
	rc.Health.Check(ctx)
	require.False(t, rc.Health.Healthy())
	assert.Equal(t, []bool{false}, *changes)

	a, err := orderclient.AppendTransactionAction(daybook.AppendInput{Type: "cash_handover", Amount: money.MustParse("1000"), Description: "to owner"})
	require.NoError(t, err)
	outcome, err := rc.Submit(ctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, orderclient.Queued, outcome)
	assert.Equal(t, 1, rc.Queue.Len())

	rep := rc.Flush(ctx)
	assert.Empty(t, rep.Applied)
	assert.Equal(t, 1, rep.Remaining)
	assert.Equal(t, 0, f.totalApplied())

	f.down.Store(false)
	require.True(t, rc.Health.Tick(ctx))
	assert.Equal(t, []bool{false, true}, *changes)

	rep = rc.Flush(ctx)
	assert.Equal(t, []string{a.Key}, rep.Applied)
	assert.Zero(t, rep.Remaining)

	rep = rc.Flush(ctx)
	assert.Empty(t, rep.Applied)
	assert.Equal(t, 1, f.totalApplied())
}

func TestSubmitKeepsQueuedActionsFirst(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeServer(t)
	rc, _ := newResilient(t, srv)

	first, err := orderclient.AppendTransactionAction(daybook.AppendInput{Type: "cash_handover", Amount: money.MustParse("1000"), Description: "first"})
	require.NoError(t, err)
	second, err := orderclient.AppendTransactionAction(daybook.AppendInput{Type: "expense", Amount: money.MustParse("200"), Description: "second"})
	require.NoError(t, err)

	f.down.Store(true)
	outcome, err := rc.Submit(ctx, first, nil)
	require.NoError(t, err)
	require.Equal(t, orderclient.Queued, outcome)
	require.True(t, rc.Health.Healthy(), "one failure stays under the threshold")

	f.down.Store(false)
	outcome, err = rc.Submit(ctx, second, nil)
	require.NoError(t, err)
	assert.Equal(t, orderclient.Sent, outcome)
	assert.Zero(t, rc.Queue.Len())

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, f.sequence)
}

func TestSubmitQueuesBehindBacklogWhileServerIsDown(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeServer(t)
	rc, _ := newResilient(t, srv)

	f.down.Store(true)
	for _, d := range []string{"first", "second"} {
		a, err := orderclient.AppendTransactionAction(daybook.AppendInput{Type: "expense", Amount: money.MustParse("10"), Description: d})
		require.NoError(t, err)
		outcome, err := rc.Submit(ctx, a, nil)
		require.NoError(t, err)
		assert.Equal(t, orderclient.Queued, outcome)
	}
	require.Equal(t, 2, rc.Queue.Len())

	f.down.Store(false)
	rep := rc.Flush(ctx)
	assert.Len(t, rep.Applied, 2)
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, f.sequence)
}

func TestFlushRetryAfterLostResponseDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeServer(t)
	rc, _ := newResilient(t, srv)

	a, err := orderclient.AppendTransactionAction(daybook.AppendInput{Type: "expense", Amount: money.MustParse("200")})
	require.NoError(t, err)

	// the server applied it but the terminal never saw the answer
	require.NoError(t, orderclient.NewClient(srv.URL).Execute(ctx, a, nil))
	rc.Queue.Push(a)

	rep := rc.Flush(ctx)
	assert.Equal(t, []string{a.Key}, rep.Applied)
	assert.Equal(t, 1, f.totalApplied())
}

func TestFlushReportsBusinessRejectionsWithoutRetrying(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeServer(t)
	rc, _ := newResilient(t, srv)

	bad, err := orderclient.AppendTransactionAction(daybook.AppendInput{Type: "tip", Amount: money.MustParse("10")})
	require.NoError(t, err)
	good, err := orderclient.AppendTransactionAction(daybook.AppendInput{Type: "expense", Amount: money.MustParse("50")})
	require.NoError(t, err)
	rc.Queue.Push(bad)
	rc.Queue.Push(good)

	rep := rc.Flush(ctx)
	assert.Equal(t, []string{good.Key}, rep.Applied)
	require.Contains(t, rep.Rejected, bad.Key)
	assert.ErrorIs(t, rep.Rejected[bad.Key], domain.ErrValidation)
	assert.Zero(t, rc.Queue.Len())
	assert.Equal(t, 1, f.totalApplied())
}

func TestClientMapsFailures(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeServer(t)
	c := orderclient.NewClient(srv.URL)

	_, err := c.GetOrder(ctx, 7)
	var apiErr *orderclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, orderclient.Offline(err))

	f.down.Store(true)
	_, err = c.GetOrder(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrNetworkUnavailable)
	assert.Contains(t, err.Error(), "server waking up, retry shortly")

	srv.Close()
	err = c.Live(ctx)
	assert.True(t, orderclient.Offline(err))
}

func TestSnapshotFallsBackToPlaceholder(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeServer(t)
	rc, _ := newResilient(t, srv)

	s, err := rc.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, s.Authoritative)

	f.down.Store(true)
	s, err = rc.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, s.Authoritative)
	require.Len(t, s.Tables, 1)
	assert.Equal(t, models.TableDining, s.Tables[0].Status)
	assert.Zero(t, rc.Queue.Len(), "reads are never queued")
}

func TestPlaceholderWithoutHistory(t *testing.T) {
	f, srv := newFakeServer(t)
	f.down.Store(true)
	rc, _ := newResilient(t, srv)
	rc.PlaceholderTables = 4

	s, err := rc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Authoritative)
	assert.Len(t, s.Tables, 4)
	assert.Empty(t, s.ActiveOrders)
}

func TestCartQuantityEditsAreDebounced(t *testing.T) {
	f, srv := newFakeServer(t)
	rc, _ := newResilient(t, srv)

	done := make(chan error, 4)
	for q := 1; q <= 4; q++ {
		rc.SetCartQuantity("3", "momo", q, func(_ orderclient.Outcome, err error) { done <- err })
	}
	rc.FlushCartEdits()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced edit never sent")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []int{4}, f.cartSets)
}

func TestConcurrentSnapshotsShareOneRequest(t *testing.T) {
	f, srv := newFakeServer(t)
	f.stateGate = make(chan struct{})
	rc, _ := newResilient(t, srv)

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan *models.Snapshot, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := rc.Snapshot(context.Background())
			if err == nil {
				results <- s
			}
		}()
	}
	require.Eventually(t, func() bool { return f.stateHits.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(f.stateGate)
	wg.Wait()
	close(results)

	n := 0
	for s := range results {
		assert.True(t, s.Authoritative)
		n++
	}
	assert.Equal(t, callers, n)
	assert.Less(t, f.stateHits.Load(), int32(callers))
}
