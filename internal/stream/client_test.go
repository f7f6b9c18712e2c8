package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/tasknotify/internal/model"
)

type fakeConn struct {
	msgs   chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs:   make(chan []byte, 8),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Next(ctx context.Context) ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, errors.New("closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeTransport records the fake-clock time of every Open and delegates
// the outcome to openFn, which receives the 1-based call number.
type fakeTransport struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	opens    []time.Time
	sessions []string
	openFn   func(ctx context.Context, n int) (Conn, error)
}

func (f *fakeTransport) Open(ctx context.Context, sessionID string) (Conn, error) {
	f.mu.Lock()
	f.opens = append(f.opens, f.clock.Now())
	f.sessions = append(f.sessions, sessionID)
	n := len(f.opens)
	fn := f.openFn
	f.mu.Unlock()
	return fn(ctx, n)
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func alwaysFail(context.Context, int) (Conn, error) {
	return nil, errors.New("connection refused")
}

type recorder struct {
	mu     sync.Mutex
	states []Status
}

func (r *recorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) reconnectAttempts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, s := range r.states {
		if s.State == model.ConnReconnecting {
			out = append(out, s.Attempt)
		}
	}
	return out
}

func newTestClient(t *testing.T, openFn func(context.Context, int) (Conn, error)) (*Client, *fakeTransport, *clockwork.FakeClock, *recorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	tr := &fakeTransport{clock: clock, openFn: openFn}
	rec := &recorder{}
	c := NewClient(tr, clock, Config{}, slog.Default(), rec.record)
	t.Cleanup(c.Disconnect)
	return c, tr, clock, rec
}

func waitState(t *testing.T, c *Client, want model.ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Status().State == want }, time.Second, time.Millisecond,
		"state never became %s (now %s)", want, c.Status().State)
}

func nextEvent(t *testing.T, c *Client) model.NotificationEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := c.Next(ctx)
	require.NoError(t, err, "no event delivered")
	return ev
}

func buffered(c *Client) int {
	return len(c.events)
}

func TestConnectDeliversEvents(t *testing.T) {
	conn := newFakeConn()
	c, tr, _, _ := newTestClient(t, func(context.Context, int) (Conn, error) { return conn, nil })

	require.NoError(t, c.Connect("s1"))
	waitState(t, c, model.ConnOpen)

	conn.msgs <- []byte(`{"type":"system","message":"heartbeat"}`)
	conn.msgs <- []byte(`{not json`)
	conn.msgs <- []byte(`{"type":"bogus","message":"x"}`)
	conn.msgs <- []byte(`{"type":"due_soon","message":"Report due","todoId":"t1"}`)

	ev := nextEvent(t, c)
	assert.Equal(t, model.EventDueSoon, ev.Type)
	assert.Equal(t, "Report due", ev.Message)
	assert.Equal(t, "t1", ev.TodoID)

	assert.Zero(t, buffered(c))
	assert.Equal(t, model.ConnOpen, c.Status().State)
	assert.Equal(t, []string{"s1"}, tr.sessions)
	assert.NotEmpty(t, c.Status().ConnID)
}

func TestConnectIsIdempotent(t *testing.T) {
	c, tr, _, _ := newTestClient(t, func(context.Context, int) (Conn, error) { return newFakeConn(), nil })

	require.NoError(t, c.Connect("s1"))
	waitState(t, c, model.ConnOpen)
	require.NoError(t, c.Connect("s1"))

	assert.Equal(t, 1, tr.count())
	assert.Equal(t, model.ConnOpen, c.Status().State)
}

func TestConnectNewSessionReplacesConnection(t *testing.T) {
	var conns []*fakeConn
	var mu sync.Mutex
	c, tr, _, _ := newTestClient(t, func(context.Context, int) (Conn, error) {
		conn := newFakeConn()
		mu.Lock()
		conns = append(conns, conn)
		mu.Unlock()
		return conn, nil
	})

	require.NoError(t, c.Connect("s1"))
	waitState(t, c, model.ConnOpen)
	require.NoError(t, c.Connect("s2"))
	require.Eventually(t, func() bool { return tr.count() == 2 }, time.Second, time.Millisecond)
	waitState(t, c, model.ConnOpen)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, conns[0].isClosed())
	assert.False(t, conns[1].isClosed())
}

func TestConnectWithoutSession(t *testing.T) {
	c, tr, _, _ := newTestClient(t, alwaysFail)

	err := c.Connect("")

	assert.ErrorIs(t, err, ErrNoSession)
	st := c.Status()
	assert.Equal(t, model.ConnError, st.State)
	assert.True(t, st.Terminal())
	assert.Equal(t, 0, tr.count())
}

func TestBackoffScheduleAndGiveUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, tr, clock, rec := newTestClient(t, alwaysFail)
	require.NoError(t, c.Connect("s1"))

	delays := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, d := range delays {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, model.ConnReconnecting, c.Status().State)

		clock.Advance(d - time.Millisecond)
		assert.Equal(t, i+1, tr.count(), "retry %d fired early", i+1)

		clock.Advance(time.Millisecond)
		want := i + 2
		require.Eventually(t, func() bool { return tr.count() == want }, time.Second, time.Millisecond)
	}

	waitState(t, c, model.ConnClosed)
	st := c.Status()
	assert.ErrorIs(t, st.Err, ErrMaxAttempts)
	assert.True(t, st.Terminal())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, rec.reconnectAttempts())

	tr.mu.Lock()
	for i := 1; i < len(tr.opens); i++ {
		assert.Equal(t, delays[i-1], tr.opens[i].Sub(tr.opens[i-1]))
	}
	tr.mu.Unlock()

	clock.Advance(time.Hour)
	assert.Never(t, func() bool { return tr.count() > len(delays)+1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, model.ConnClosed, c.Status().State)
}

func TestRecoversAndResetsAttempts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := newFakeConn()
	c, tr, clock, _ := newTestClient(t, func(_ context.Context, n int) (Conn, error) {
		if n <= 2 || n == 4 {
			return nil, errors.New("connection refused")
		}
		return conn, nil
	})
	require.NoError(t, c.Connect("s1"))

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return tr.count() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Second)

	waitState(t, c, model.ConnOpen)
	assert.Equal(t, 0, c.Status().Attempt)

	// A dropped connection starts the schedule over at the base delay.
	conn.errs <- errors.New("reset by peer")
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, c.Status().Attempt)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return tr.count() == 4 }, time.Second, time.Millisecond)
}

func TestDisconnectWhileConnecting(t *testing.T) {
	c, tr, clock, _ := newTestClient(t, func(ctx context.Context, _ int) (Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	require.NoError(t, c.Connect("s1"))
	require.Eventually(t, func() bool { return tr.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, model.ConnConnecting, c.Status().State)

	c.Disconnect()
	assert.Equal(t, model.ConnClosed, c.Status().State)

	clock.Advance(time.Minute)
	assert.Never(t, func() bool { return tr.count() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, model.ConnClosed, c.Status().State)
	assert.NoError(t, c.Status().Err)
}

func TestLateOpenIsIgnored(t *testing.T) {
	release := make(chan struct{})
	conn := newFakeConn()
	c, tr, _, _ := newTestClient(t, func(context.Context, int) (Conn, error) {
		<-release
		return conn, nil
	})

	require.NoError(t, c.Connect("s1"))
	require.Eventually(t, func() bool { return tr.count() == 1 }, time.Second, time.Millisecond)
	c.Disconnect()
	close(release)

	require.Eventually(t, conn.isClosed, time.Second, time.Millisecond)
	assert.Equal(t, model.ConnClosed, c.Status().State)
}

func TestDisconnectIsAlwaysSafe(t *testing.T) {
	c, _, _, _ := newTestClient(t, alwaysFail)

	c.Disconnect()
	c.Disconnect()

	assert.Equal(t, model.ConnClosed, c.Status().State)
}

func TestReconnectAfterGivingUp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	tr := &fakeTransport{clock: clock, openFn: alwaysFail}
	c := NewClient(tr, clock, Config{MaxAttempts: 1, BaseDelay: time.Second}, slog.Default(), nil)
	defer c.Disconnect()

	require.NoError(t, c.Connect("s1"))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	waitState(t, c, model.ConnClosed)
	assert.ErrorIs(t, c.Status().Err, ErrMaxAttempts)

	require.NoError(t, c.Reconnect())
	require.Eventually(t, func() bool { return tr.count() == 3 }, time.Second, time.Millisecond)
	waitState(t, c, model.ConnReconnecting)
	assert.Equal(t, 1, c.Status().Attempt)
}

func TestForeground(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := newFakeConn()
	c, tr, clock, _ := newTestClient(t, func(_ context.Context, n int) (Conn, error) {
		if n == 1 {
			return nil, errors.New("offline")
		}
		return conn, nil
	})

	c.Foreground()
	assert.Equal(t, 0, tr.count(), "no session yet")

	require.NoError(t, c.Connect("s1"))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	// Regaining focus while waiting to retry connects immediately.
	c.Foreground()
	waitState(t, c, model.ConnOpen)
	assert.Equal(t, 2, tr.count())

	c.Foreground()
	assert.Equal(t, 2, tr.count())
}

func TestLogoutForgetsSession(t *testing.T) {
	c, _, _, _ := newTestClient(t, func(context.Context, int) (Conn, error) { return newFakeConn(), nil })

	require.NoError(t, c.Connect("s1"))
	waitState(t, c, model.ConnOpen)
	c.Logout()

	assert.Equal(t, model.ConnClosed, c.Status().State)
	assert.ErrorIs(t, c.Reconnect(), ErrNoSession)
}

func TestLogoutDiscardsBufferedEvents(t *testing.T) {
	conn := newFakeConn()
	c, _, _, _ := newTestClient(t, func(context.Context, int) (Conn, error) { return conn, nil })

	require.NoError(t, c.Connect("s1"))
	waitState(t, c, model.ConnOpen)
	for i := 0; i < 3; i++ {
		conn.msgs <- []byte(`{"type":"due_soon","message":"Report due","todoId":"t1"}`)
	}
	require.Eventually(t, func() bool { return buffered(c) == 3 }, time.Second, time.Millisecond)

	c.Logout()

	assert.Zero(t, buffered(c))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDisconnectDiscardsBufferedEvents(t *testing.T) {
	conn := newFakeConn()
	c, _, _, _ := newTestClient(t, func(context.Context, int) (Conn, error) { return conn, nil })

	require.NoError(t, c.Connect("s1"))
	waitState(t, c, model.ConnOpen)
	conn.msgs <- []byte(`{"type":"overdue","message":"Taxes"}`)
	require.Eventually(t, func() bool { return buffered(c) == 1 }, time.Second, time.Millisecond)

	c.Disconnect()
	assert.Zero(t, buffered(c))
}

func TestStaleDeliveryIsDropped(t *testing.T) {
	c, _, _, _ := newTestClient(t, func(context.Context, int) (Conn, error) { return newFakeConn(), nil })

	c.mu.Lock()
	old := c.epoch
	c.mu.Unlock()
	c.Disconnect()

	c.events <- delivery{epoch: old, ev: model.NotificationEvent{Type: model.EventReminder, Message: "late"}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, buffered(c))
}

func TestConnectWithoutSessionForgetsPrevious(t *testing.T) {
	c, tr, _, _ := newTestClient(t, func(context.Context, int) (Conn, error) { return newFakeConn(), nil })

	require.NoError(t, c.Connect("s1"))
	waitState(t, c, model.ConnOpen)

	assert.ErrorIs(t, c.Connect(""), ErrNoSession)
	assert.Equal(t, model.ConnError, c.Status().State)

	c.Foreground()
	assert.Equal(t, model.ConnError, c.Status().State)
	assert.Equal(t, 1, tr.count())
	assert.ErrorIs(t, c.Reconnect(), ErrNoSession)
	assert.Equal(t, 1, tr.count())
}
