package talkline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/talkline/talkline-go/talkline/internal"

	"github.com/coder/websocket"
)

// Client owns the live presence channel: one bidirectional connection
// that announces the local user, delivers direct messages, and pushes
// full online-user snapshots. Durability is not its job; the history
// store is the source of truth for persisted messages.
type Client struct {
	cfg        Config
	logger     Logger
	writeCh    chan Inbound
	dispatcher Dispatcher

	mu      sync.Mutex
	state   ConnectionState
	conn    *internal.Conn
	cancel  context.CancelFunc
	onState func(StateEvent)
}

// NewClient constructs a client with provided config.
// Use DefaultConfig() as a starting point and modify as needed.
// Set a timeout to 0 to disable it.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:     cfg,
		logger:  noopLogger{},
		writeCh: make(chan Inbound, 16),
	}
}

// SetLogger overrides logger (optional).
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.logger = l
}

// OnMessage registers callback for incoming direct messages.
func (c *Client) OnMessage(fn func(MessageEvent)) { c.dispatcher.SetOnMessage(fn) }

// OnPresence registers callback for online-user snapshots.
func (c *Client) OnPresence(fn func(PresenceEvent)) { c.dispatcher.SetOnPresence(fn) }

// OnError registers callback for errors.
func (c *Client) OnError(fn func(error)) { c.dispatcher.SetOnError(fn) }

// OnStateChanged registers callback for connection state transitions.
func (c *Client) OnStateChanged(fn func(StateEvent)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server, announces the local user, and starts
// internal loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return NewError(ErrorConnection, "already connected")
	}
	c.mu.Unlock()

	if c.cfg.URL == "" {
		return NewError(ErrorValidation, "empty URL")
	}
	if c.cfg.UserID == "" {
		return NewError(ErrorValidation, "empty user id")
	}

	c.setState(StateConnecting, nil)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected, err)
		return WrapError(ErrorConnection, "dial failed", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()
	c.setState(StateConnected, nil)

	go c.readLoop(runCtx, conn)
	go c.writeLoop(runCtx, conn)
	return nil
}

// Announce re-sends the register payload. Idempotent; Connect and the
// reconnect path already announce, this is for callers that manage
// their own session lifecycle.
func (c *Client) Announce(ctx context.Context) error {
	return c.send(ctx, Inbound{Type: inboundRegister, Data: RegisterPayload{UserID: c.cfg.UserID}})
}

// SendPrivate emits one direct message over the live channel.
// Fire-and-forget: delivery is not acknowledged and a failed emit is
// not retried.
func (c *Client) SendPrivate(ctx context.Context, to, text, timestamp string) error {
	return c.send(ctx, Inbound{Type: inboundPrivate, Data: PrivatePayload{To: to, Message: text, Time: timestamp}})
}

// Close shuts down the client and closes the websocket. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	old := c.state
	c.state = StateClosed
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(StateEvent{OldState: old, NewState: StateClosed})
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client close")
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*internal.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	var opts *websocket.DialOptions
	if c.cfg.Token != "" {
		h := http.Header{}
		h.Set("Authorization", "Bearer "+c.cfg.Token)
		opts = &websocket.DialOptions{HTTPHeader: h}
	}

	ws, _, err := websocket.Dial(dialCtx, u.String(), opts)
	if err != nil {
		return nil, err
	}

	conn := internal.NewConn(ws, c.cfg.ReadTimeout, c.cfg.WriteTimeout)
	register := Inbound{Type: inboundRegister, Data: RegisterPayload{UserID: c.cfg.UserID}}
	if err := conn.Write(ctx, register); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "register error")
		return nil, err
	}
	return conn, nil
}

func (c *Client) send(ctx context.Context, in Inbound) error {
	c.mu.Lock()
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return NewError(ErrorNotConnected, "not connected")
	}

	select {
	case c.writeCh <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readLoop(ctx context.Context, conn *internal.Conn) {
	for {
		var out Outbound
		if err := conn.Read(ctx, &out); err != nil {
			if isExpectedDisconnect(ctx, err) {
				return
			}
			c.dispatcher.fireError(WrapError(ErrorConnection, "read failed", err))
			c.logger.Warn("read loop exit", map[string]any{"error": err.Error()})
			c.handleDrop(err)
			return
		}
		c.dispatcher.Dispatch(out)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *internal.Conn) {
	for {
		select {
		case in := <-c.writeCh:
			if err := conn.Write(ctx, in); err != nil {
				c.dispatcher.fireError(WrapError(ErrorConnection, "write failed", err))
				c.logger.Warn("write loop exit", map[string]any{"error": err.Error()})
				c.handleDrop(err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleDrop tears down the current connection after an unexpected
// error and, if configured, starts the reconnect loop. Only the first
// loop to fail acts; the other exits via the cancelled context.
func (c *Client) handleDrop(err error) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	auto := c.cfg.AutoReconnect
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusGoingAway, "connection dropped")
	}
	if !auto {
		c.setState(StateDisconnected, err)
		return
	}
	c.setState(StateReconnecting, err)
	go c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	delay := c.cfg.ReconnectInterval
	if delay <= 0 {
		delay = time.Second
	}
	for attempt := 1; ; attempt++ {
		if c.cfg.MaxReconnectTries > 0 && attempt > c.cfg.MaxReconnectTries {
			c.setState(StateDisconnected, NewError(ErrorDisconnected, "reconnect attempts exhausted"))
			return
		}
		time.Sleep(delay)
		delay *= 2
		if c.cfg.MaxReconnectDelay > 0 && delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}

		if c.State() == StateClosed {
			return
		}
		conn, err := c.dial(context.Background())
		if err != nil {
			c.logger.Warn("reconnect failed", map[string]any{"attempt": attempt, "error": err.Error()})
			continue
		}

		runCtx, cancel := context.WithCancel(context.Background())
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			cancel()
			_ = conn.Close(websocket.StatusNormalClosure, "client close")
			return
		}
		c.conn = conn
		c.cancel = cancel
		c.mu.Unlock()
		c.setState(StateConnected, nil)

		go c.readLoop(runCtx, conn)
		go c.writeLoop(runCtx, conn)
		return
	}
}

func (c *Client) setState(newState ConnectionState, err error) {
	c.mu.Lock()
	old := c.state
	c.state = newState
	fn := c.onState
	c.mu.Unlock()
	if fn != nil && old != newState {
		fn(StateEvent{OldState: old, NewState: newState, Error: err})
	}
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
