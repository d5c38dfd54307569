// Package ws owns the WebSocket side of the sync core: the connection
// manager (exclusive owner of the socket handle) and the subscription
// registry that replays chat subscriptions after every reconnect.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lbarreto/chatsync/internal/protocol"
	"github.com/lbarreto/chatsync/internal/status"
	"go.uber.org/zap"
)

const (
	// DefaultHeartbeat is the ping cadence while the socket is open.
	DefaultHeartbeat = 30 * time.Second
	// DefaultReconnectDelay is the fixed delay before redialing after a
	// drop. No backoff, no retry cap: an expired token therefore retries
	// forever, indistinguishable from a network blip at this layer.
	DefaultReconnectDelay = 3 * time.Second

	writeTimeout = 10 * time.Second
)

// FrameHandler receives every inbound frame except pong.
type FrameHandler func(raw []byte)

// Options tunes the connection timers. Zero values mean the defaults;
// tests shrink them.
type Options struct {
	Heartbeat      time.Duration
	ReconnectDelay time.Duration
}

// Hooks are optional observation points for metrics.
type Hooks struct {
	OnReconnect    func()
	OnSendDropped  func()
	OnFrameDropped func()
}

// Conn maintains at most one live socket per session token, transparently
// recovering from drops. The state machine is the single source of truth
// for connection state; there are no ad hoc "is connecting" flags beyond
// the mounted bit that teardown clears.
type Conn struct {
	url     string
	machine *status.Machine
	handler FrameHandler
	logger  *zap.Logger
	opts    Options
	hooks   Hooks

	mu        sync.Mutex
	sock      *websocket.Conn
	gen       int // connection generation; guards stale close handling
	mounted   bool
	readStop  context.CancelFunc
	reconnect *time.Timer
}

// URL builds the chat socket endpoint for a host and bearer token. The
// scheme is wss iff the origin is secure.
func URL(host string, secure bool, token string) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/ws/chat?token=%s", scheme, host, url.QueryEscape(token))
}

// NewConn creates a connection manager. handler receives every routed
// frame; it runs on the single read loop goroutine, so frames are
// processed strictly in arrival order.
func NewConn(wsURL string, machine *status.Machine, handler FrameHandler, logger *zap.Logger, opts Options, hooks Hooks) *Conn {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	return &Conn{
		url:     wsURL,
		machine: machine,
		handler: handler,
		logger:  logger,
		opts:    opts,
		hooks:   hooks,
		mounted: true,
	}
}

// Connect dials the server. It is a no-op while a connection attempt is
// already in flight or a socket is open. A dial failure schedules a
// retry like any other drop.
func (c *Conn) Connect(ctx context.Context) error {
	if c.machine.Is(status.Connecting, status.Connected) {
		return nil
	}

	c.detachCurrent()

	if err := c.machine.Transition(status.Connecting); err != nil {
		return err
	}

	sock, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		c.logger.Warn("dial failed", zap.Error(err))
		_ = c.machine.Transition(status.Disconnected)
		c.scheduleReconnect()
		return fmt.Errorf("dial chat socket: %w", err)
	}
	// Frames can be large during catch-up bursts.
	sock.SetReadLimit(1 << 20)

	readCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.sock = sock
	c.readStop = cancel
	c.mu.Unlock()

	if err := c.machine.Transition(status.Connected); err != nil {
		c.logger.Error("connected transition refused", zap.Error(err))
	}
	c.logger.Info("chat socket connected")

	go c.readLoop(readCtx, sock, gen)
	go c.heartbeatLoop(readCtx, gen)

	return nil
}

// Disconnect tears the connection down: pending reconnect and heartbeat
// timers are cancelled, close handling is detached, the socket closed.
// Idempotent; no reconnect follows.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.mounted = false
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.mu.Unlock()

	c.detachCurrent()

	if !c.machine.Is(status.Disconnected) {
		_ = c.machine.Transition(status.Disconnected)
	}
	c.logger.Info("chat socket disconnected")
}

// Send marshals v and writes it as one frame. When the socket is not
// open the command is silently dropped rather than queued; typing and
// read signals are latency-sensitive and safe to lose.
func (c *Conn) Send(v any) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()

	if sock == nil || !c.machine.Is(status.Connected) {
		c.logger.Debug("send dropped, socket not open")
		if c.hooks.OnSendDropped != nil {
			c.hooks.OnSendDropped()
		}
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := sock.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// detachCurrent closes any existing socket with its close handling
// disarmed (the generation moves on), so closing it cannot trigger a
// reconnect loop.
func (c *Conn) detachCurrent() {
	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.gen++
	stop := c.readStop
	c.readStop = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if sock != nil {
		_ = sock.Close(websocket.StatusNormalClosure, "")
	}
}

func (c *Conn) readLoop(ctx context.Context, sock *websocket.Conn, gen int) {
	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Conn) handleFrame(data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("dropping malformed frame", zap.Error(err))
		if c.hooks.OnFrameDropped != nil {
			c.hooks.OnFrameDropped()
		}
		return
	}
	if env.Type == protocol.TypePong {
		return
	}
	c.handler(data)
}

// handleClose runs when the read loop ends. A stale generation means the
// socket was already replaced or detached; only the current one drives
// the state machine and the reconnect timer.
func (c *Conn) handleClose(gen int, err error) {
	c.mu.Lock()
	current := gen == c.gen
	if current {
		c.sock = nil
		c.gen++
	}
	c.mu.Unlock()

	if !current {
		return
	}

	c.logger.Warn("chat socket closed", zap.Error(err))
	_ = c.machine.Transition(status.Disconnected)
	c.scheduleReconnect()
}

func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	if err := c.machine.Transition(status.Reconnecting); err != nil {
		return
	}
	if c.hooks.OnReconnect != nil {
		c.hooks.OnReconnect()
	}
	c.logger.Info("reconnecting", zap.Duration("delay", c.opts.ReconnectDelay))
	c.reconnect = time.AfterFunc(c.opts.ReconnectDelay, func() {
		if err := c.Connect(context.Background()); err != nil {
			c.logger.Warn("reconnect attempt failed", zap.Error(err))
		}
	})
}

func (c *Conn) heartbeatLoop(ctx context.Context, gen int) {
	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			current := gen == c.gen
			c.mu.Unlock()
			if !current {
				return
			}
			if err := c.Send(protocol.NewPing()); err != nil {
				c.logger.Warn("heartbeat failed", zap.Error(err))
			}
		}
	}
}
