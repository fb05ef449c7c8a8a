// Package stream keeps a Socket.IO connection to the upstream mint feed
// alive and hands every decoded event to an EventHandler in arrival order.
package stream

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/core-coin/mintviewer/internal/metrics"
	"github.com/core-coin/mintviewer/internal/models"
	"github.com/core-coin/mintviewer/pkg/logger"
)

const (
	DefaultDispatchTimeout  = 45 * time.Second
	DefaultHandshakeTimeout = 15 * time.Second

	// eventBuffer decouples the socket reader from dispatch so ping replies
	// keep flowing while a slow event is fanned out.
	eventBuffer = 16
)

// State is the lifecycle state of a Client.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Options configures a Client.
type Options struct {
	// URL is the upstream endpoint, e.g. https://gsocket.trump.tg.
	URL              string
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	DispatchTimeout  time.Duration
	HandshakeTimeout time.Duration
	Dialer           *websocket.Dialer
}

// Client is a supervised upstream connection. Start launches the reconnect
// loop in the background and Stop shuts it down and waits for it.
type Client struct {
	logger  *logger.Logger
	handler models.EventHandler
	metrics *metrics.Collector

	wsURL            string
	dialer           *websocket.Dialer
	backoff          *Backoff
	dispatchTimeout  time.Duration
	handshakeTimeout time.Duration

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// onRetry observes every scheduled reconnect delay.
	onRetry func(delay time.Duration, err error)
}

// NewClient validates opts and creates a Client. metrics may be nil.
func NewClient(opts Options, handler models.EventHandler, metrics *metrics.Collector, logger *logger.Logger) (*Client, error) {
	wsURL, err := socketURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultDispatchTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	}
	return &Client{
		logger:           logger,
		handler:          handler,
		metrics:          metrics,
		wsURL:            wsURL,
		dialer:           opts.Dialer,
		backoff:          NewBackoff(opts.BaseDelay, opts.MaxDelay),
		dispatchTimeout:  opts.DispatchTimeout,
		handshakeTimeout: opts.HandshakeTimeout,
	}, nil
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Debugw("Stream state changed", "from", old, "to", s)
	}
}

// Start runs the reconnect loop in a new goroutine until ctx is cancelled or
// Stop is called.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return errors.New("stream client already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		c.Run(ctx)
	}()
	return nil
}

// Stop closes the upstream connection, waits for already received events to
// be dispatched and for the loop to exit. Safe to call more than once.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if done == nil {
		return
	}
	if c.State() != StateStopped {
		c.setState(StateStopping)
	}
	cancel()
	<-done
}

// Run connects and reconnects forever. It returns only when ctx is done.
func (c *Client) Run(ctx context.Context) {
	defer c.setState(StateStopped)

	for {
		c.setState(StateConnecting)
		c.logger.Infow("Connecting to upstream", "url", c.wsURL)

		sess, err := dialSession(ctx, c.dialer, c.wsURL, c.handshakeTimeout)
		if err == nil {
			c.backoff.Reset()
			c.setState(StateConnected)
			c.metrics.SetConnected(true)
			c.logger.Infow("Connected to upstream, waiting for events", "url", c.wsURL)

			err = c.serve(ctx, sess)

			c.metrics.SetConnected(false)
			c.logger.Infow("Disconnected from upstream", "url", c.wsURL)
		}
		if ctx.Err() != nil {
			return
		}

		delay := c.backoff.Next()
		c.metrics.RecordReconnect()
		c.logger.Errorw("Upstream connection failed", "error", err, "retry_in", delay)
		if c.onRetry != nil {
			c.onRetry(delay, err)
		}

		c.setState(StateBackoff)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// serve reads events until the session ends and dispatches them in order.
// Events read before the session ended are still dispatched.
func (c *Client) serve(ctx context.Context, sess *session) error {
	events := make(chan models.Event, eventBuffer)
	readErr := make(chan error, 1)

	// Closing the socket is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, sess.close)
	defer stop()

	go func() {
		defer close(events)
		defer sess.close()
		for {
			f, err := sess.next()
			if err != nil {
				readErr <- err
				return
			}
			event := DecodeFrame(f.Data)
			c.metrics.RecordFrame(string(event.Kind))
			if event.Kind != models.EventNewMint {
				c.logger.Debugw("Ignoring upstream event", "event", f.Name)
				continue
			}
			c.logger.Infow("Received mint event", "event", f.Name, "slug", event.Slug, "gift", event.GiftName)
			events <- event
		}
	}()

	for event := range events {
		c.dispatch(ctx, event)
	}
	return <-readErr
}

func (c *Client) dispatch(ctx context.Context, event models.Event) {
	// Received events are delivered even when shutdown has begun.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.dispatchTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("Dispatch panicked",
				"slug", event.Slug,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	c.handler.Dispatch(ctx, event)
}
