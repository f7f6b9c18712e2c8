// Package stream supervises the long-lived push connection that delivers
// notification events from the server.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/tasknotify/internal/model"
)

var (
	// ErrNoSession is returned when Connect is called without a session.
	// It is terminal: no retry is scheduled.
	ErrNoSession = errors.New("stream: no session")

	// ErrMaxAttempts is the terminal status after the retry budget is spent.
	ErrMaxAttempts = errors.New("stream: max reconnect attempts exceeded")
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second

	eventBufferSize = 16
)

// Transport opens push connections.
type Transport interface {
	Open(ctx context.Context, sessionID string) (Conn, error)
}

// Conn is one open push connection. Next blocks until a message payload
// arrives or the connection fails.
type Conn interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Config holds the reconnect policy.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Status is a snapshot of the client's connection.
type Status struct {
	State       model.ConnectionState `json:"state"`
	Attempt     int                   `json:"attempt"`
	MaxAttempts int                   `json:"max_attempts"`
	ConnID      string                `json:"conn_id,omitempty"`
	Err         error                 `json:"-"`
}

// Terminal reports whether the client gave up and needs an explicit
// Connect or Reconnect.
func (s Status) Terminal() bool {
	return s.Err != nil && (s.State == model.ConnClosed || errors.Is(s.Err, ErrNoSession))
}

// StatusCallback is called on every state transition. It runs with the
// client lock held and must not call back into the client.
type StatusCallback func(Status)

// delivery is an event tagged with the session epoch it was read under.
type delivery struct {
	epoch uint64
	ev    model.NotificationEvent
}

// Client owns at most one push connection at a time.
type Client struct {
	mu        sync.Mutex
	transport Transport
	clock     clockwork.Clock
	cfg       Config
	logger    *slog.Logger
	callback  StatusCallback
	events    chan delivery

	status  Status
	session string
	gen     uint64
	epoch   uint64
	cancel  context.CancelFunc
	conn    Conn
	timer   clockwork.Timer
	backoff retry.Backoff
}

// NewClient creates an idle client. Zero config values take the defaults.
func NewClient(t Transport, clock clockwork.Clock, cfg Config, logger *slog.Logger, cb StatusCallback) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	c := &Client{
		transport: t,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		callback:  cb,
		events:    make(chan delivery, eventBufferSize),
		status:    Status{State: model.ConnIdle, MaxAttempts: cfg.MaxAttempts},
	}
	c.resetBackoff()
	return c
}

// Next blocks until a notification event for the current session
// arrives or ctx is done. Heartbeats and malformed payloads never appear
// here, and events read before Disconnect, Logout or a session change
// are discarded.
func (c *Client) Next(ctx context.Context) (model.NotificationEvent, error) {
	for {
		select {
		case d := <-c.events:
			c.mu.Lock()
			current := d.epoch == c.epoch
			c.mu.Unlock()
			if current {
				return d.ev, nil
			}
		case <-ctx.Done():
			return model.NotificationEvent{}, ctx.Err()
		}
	}
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect opens a connection for sessionID. It is a no-op when a
// connection for the same session is already open or being opened.
func (c *Client) Connect(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sessionID == "" {
		c.teardownLocked()
		c.discardLocked()
		c.session = ""
		c.setState(Status{State: model.ConnError, Err: ErrNoSession})
		return ErrNoSession
	}

	if sessionID == c.session && c.activeLocked() {
		return nil
	}

	c.teardownLocked()
	if sessionID != c.session {
		c.discardLocked()
	}
	c.session = sessionID
	c.resetBackoff()
	c.startLocked(0)
	return nil
}

// Reconnect resets the attempt counter and starts a fresh connection for
// the last session.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == "" {
		c.setState(Status{State: model.ConnError, Err: ErrNoSession})
		return ErrNoSession
	}

	c.teardownLocked()
	c.resetBackoff()
	c.startLocked(0)
	return nil
}

// Foreground is called when the user returns to the client. A dropped
// connection is reconnected; an open or opening one is left alone.
func (c *Client) Foreground() {
	c.mu.Lock()
	skip := c.session == "" || c.activeLocked()
	c.mu.Unlock()

	if skip {
		return
	}
	if err := c.Reconnect(); err != nil {
		c.logger.Debug("foreground reconnect skipped", "error", err)
	}
}

// Disconnect closes the connection and cancels any pending retry. It is
// safe to call at any time, including while a connect is in flight.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.discardLocked()
	c.setState(Status{State: model.ConnClosed})
}

// Logout disconnects and forgets the session.
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.discardLocked()
	c.session = ""
	c.setState(Status{State: model.ConnClosed})
}

func (c *Client) activeLocked() bool {
	switch c.status.State {
	case model.ConnConnecting, model.ConnOpen:
		return true
	}
	return false
}

func (c *Client) resetBackoff() {
	c.backoff = retry.WithMaxRetries(uint64(c.cfg.MaxAttempts), retry.NewExponential(c.cfg.BaseDelay))
}

// teardownLocked invalidates every in-flight callback, stops the retry
// timer and closes the current connection.
func (c *Client) teardownLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// discardLocked drops buffered events and starts a new epoch so events
// still in flight from the old one are dropped by Next.
func (c *Client) discardLocked() {
	c.epoch++
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}

func (c *Client) startLocked(attempt int) {
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	connID := uuid.NewString()
	c.setState(Status{State: model.ConnConnecting, Attempt: attempt, ConnID: connID})

	go c.run(ctx, gen, c.epoch, c.session, connID, attempt)
}

func (c *Client) run(ctx context.Context, gen, epoch uint64, session, connID string, attempt int) {
	logger := c.logger.With("conn_id", connID)

	conn, err := c.transport.Open(ctx, session)
	if err != nil {
		c.fail(gen, connID, attempt, fmt.Errorf("open: %w", err))
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		logger.Debug("stale open ignored")
		return
	}
	c.conn = conn
	c.resetBackoff()
	c.setState(Status{State: model.ConnOpen, ConnID: connID})
	c.mu.Unlock()

	logger.Info("stream open")

	for {
		data, err := conn.Next(ctx)
		if err != nil {
			conn.Close()
			c.fail(gen, connID, 0, err)
			return
		}

		ev, err := model.DecodeEvent(data)
		if err != nil {
			logger.Warn("dropping malformed event", "error", err)
			continue
		}
		if ev.IsHeartbeat() {
			logger.Debug("heartbeat")
			continue
		}

		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale {
			return
		}

		select {
		case c.events <- delivery{epoch: epoch, ev: ev}:
		case <-ctx.Done():
			return
		}
	}
}

// fail records a transport error for generation gen and schedules the
// next retry, or gives up once the budget is spent.
func (c *Client) fail(gen uint64, connID string, attempt int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.conn = nil

	c.logger.Warn("stream error", "conn_id", connID, "attempt", attempt, "error", err)
	c.setState(Status{State: model.ConnError, Attempt: attempt, ConnID: connID, Err: err})

	delay, stop := c.backoff.Next()
	if stop {
		c.logger.Error("giving up on stream", "attempts", attempt)
		c.setState(Status{State: model.ConnClosed, Attempt: attempt, Err: ErrMaxAttempts})
		return
	}

	next := attempt + 1
	c.setState(Status{State: model.ConnReconnecting, Attempt: next, Err: err})
	c.logger.Info("reconnecting", "attempt", next, "max_attempts", c.cfg.MaxAttempts, "delay", delay)

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || c.status.State != model.ConnReconnecting {
			return
		}
		c.timer = nil
		c.startLocked(next)
	})
}

func (c *Client) setState(s Status) {
	s.MaxAttempts = c.cfg.MaxAttempts
	c.status = s
	if c.callback != nil {
		c.callback(s)
	}
}
