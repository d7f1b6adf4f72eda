package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"
	"campusconnect/internal/infrastructure/monitoring"
	"campusconnect/pkg/config"
	"campusconnect/pkg/logger"
	"campusconnect/pkg/retry"
	"campusconnect/pkg/tracing"
	"campusconnect/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options configures a Client. Zero durations fall back to the defaults of
// config.DefaultConfig.
type Options struct {
	URL   string
	Token string
	// TokenSource, when set, is asked for the bearer token on every dial and
	// takes precedence over Token.
	TokenSource func(ctx context.Context) (string, error)

	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration

	// Outbox holds frames emitted while disconnected. Nil disables queueing.
	Outbox *Outbox

	Dialer  *websocket.Dialer
	Metrics *monitoring.PrometheusCollector
	Logger  *zap.SugaredLogger
}

// OptionsFromConfig builds client options from the socket and outbox sections.
func OptionsFromConfig(cfg *config.Config, url, token string) Options {
	opts := Options{
		URL:               url,
		Token:             token,
		ReconnectMinDelay: cfg.Socket.ReconnectMinDelay,
		ReconnectMaxDelay: cfg.Socket.ReconnectMaxDelay,
		HandshakeTimeout:  cfg.Socket.HandshakeTimeout,
		PingInterval:      cfg.Socket.PingInterval,
		PongTimeout:       cfg.Socket.PongTimeout,
		WriteTimeout:      cfg.Socket.WriteTimeout,
	}
	if cfg.Outbox.Enabled {
		opts.Outbox = NewOutbox(cfg.Outbox.MaxSize, cfg.Outbox.TTL)
	}
	return opts
}

func (o *Options) applyDefaults() {
	def := config.DefaultConfig()
	if o.ReconnectMinDelay <= 0 {
		o.ReconnectMinDelay = def.Socket.ReconnectMinDelay
	}
	if o.ReconnectMaxDelay < o.ReconnectMinDelay {
		o.ReconnectMaxDelay = o.ReconnectMinDelay
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.Socket.HandshakeTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = def.Socket.PingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = def.Socket.PongTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.Socket.WriteTimeout
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: o.HandshakeTimeout,
		}
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
}

type subscription struct {
	id      ports.SubscriptionID
	handler ports.EventHandler
}

// Client is a websocket connection to the realtime server that reconnects
// on its own until closed. Inbound events are dispatched on a single
// goroutine in arrival order.
type Client struct {
	opts   Options
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	handlers  map[domain.EventName][]subscription

	writeMu sync.Mutex
	nextSub uint64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ ports.Connection = (*Client)(nil)

func NewClient(opts Options) *Client {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		opts:     opts,
		logger:   opts.Logger.With("component", "socket", "url", opts.URL),
		handlers: make(map[domain.EventName][]subscription),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the connect loop. Dialing happens in the background; the
// connect event reports success.
func (c *Client) Start() {
	go c.run()
}

// Done is closed once the connect loop has exited after Close.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close stops reconnecting and closes the current connection. It does not
// wait for the loop to exit, so it is safe to call from an event handler.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		conn := c.conn
		c.connected = false
		c.mu.Unlock()

		if conn != nil {
			deadline := time.Now().Add(c.opts.WriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed"), deadline)
			_ = conn.Close()
		}
		c.logger.Infow("socket client closed")
	})
	return nil
}

func (c *Client) On(event domain.EventName, handler ports.EventHandler) ports.SubscriptionID {
	id := ports.SubscriptionID(atomic.AddUint64(&c.nextSub, 1))

	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], subscription{id: id, handler: handler})
	c.mu.Unlock()

	return id
}

func (c *Client) Off(event domain.EventName, id ports.SubscriptionID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.handlers[event]
	for i, s := range subs {
		if s.id == id {
			c.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

// Emit writes a frame when connected. Otherwise the frame goes to the outbox
// and is flushed on the next connect; ephemeral frames are dropped instead.
func (c *Client) Emit(ctx context.Context, event domain.EventName, payload interface{}) (domain.DeliveryStatus, error) {
	ctx, span := tracing.TraceSocketEmit(ctx, string(event))
	defer span.End()

	status, err := c.emit(event, payload)
	tracing.AddSpanAttributes(ctx, tracing.DeliveryKey.String(string(status)))
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	c.opts.Metrics.RecordEmit(event, status)
	return status, err
}

func (c *Client) emit(event domain.EventName, payload interface{}) (domain.DeliveryStatus, error) {
	if c.ctx.Err() != nil {
		return domain.DeliveryDropped, domain.ErrConnectionClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.DeliveryFailed, fmt.Errorf("%w: encode %s: %v", domain.ErrInvalidPayload, event, err)
	}
	frame := Frame{Event: event, ID: utils.GenerateFrameID(), Data: data}

	// The read lock keeps the connect path from declaring the link up
	// between our check and the outbox push.
	c.mu.RLock()
	if !c.connected {
		status, err := c.enqueue(frame)
		c.mu.RUnlock()
		return status, err
	}
	conn := c.conn
	c.mu.RUnlock()

	if err := c.write(conn, frame); err != nil {
		c.logger.Warnw("write failed, frame not sent", "event", event, "frame_id", frame.ID, "error", err)
		return c.enqueue(frame)
	}
	return domain.DeliverySent, nil
}

func (c *Client) enqueue(frame Frame) (domain.DeliveryStatus, error) {
	if domain.IsEphemeral(frame.Event) || c.opts.Outbox == nil {
		c.logger.Debugw("dropping frame while disconnected", "event", frame.Event)
		return domain.DeliveryDropped, domain.ErrNotConnected
	}
	if !c.opts.Outbox.Push(frame) {
		c.logger.Warnw("outbox full, dropping frame", "event", frame.Event, "frame_id", frame.ID)
		return domain.DeliveryDropped, domain.ErrNotConnected
	}
	c.opts.Metrics.SetOutboxDepth(c.opts.Outbox.Len())
	c.logger.Infow("frame queued for redelivery", "event", frame.Event, "frame_id", frame.ID)
	return domain.DeliveryQueued, nil
}

func (c *Client) write(conn *websocket.Conn, v interface{}) error {
	if conn == nil {
		return domain.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (c *Client) run() {
	defer close(c.done)

	cfg := retry.ReconnectConfig(c.opts.ReconnectMinDelay, c.opts.ReconnectMaxDelay)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.opts.Metrics.IncReconnectAttempts()
		c.logger.Infow("connection attempt failed", "attempt", attempt+1, "retry_in", delay, "error", err)
	}

	for {
		conn, err := retry.RetryWithResult(c.ctx, cfg, c.dial)
		if err != nil {
			return
		}

		c.serve(conn)

		if c.ctx.Err() != nil {
			return
		}

		// Give the server a moment before redialing after a drop.
		timer := time.NewTimer(c.opts.ReconnectMinDelay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// token returns the bearer token for the next dial. A failing source
// yields an anonymous attempt.
func (c *Client) token(ctx context.Context) string {
	if c.opts.TokenSource == nil {
		return c.opts.Token
	}
	token, err := c.opts.TokenSource(ctx)
	if err != nil {
		c.logger.Warnw("could not read auth token, connecting anonymously", "error", err)
		return ""
	}
	return token
}

func (c *Client) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.HandshakeTimeout)
	defer cancel()

	token := c.token(ctx)
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.opts.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	if err := c.write(conn, authFrame{Auth: authPayload{Token: token}}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send auth: %w", err)
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return nil, domain.ErrConnectionClosed
	}
	c.conn = conn
	c.mu.Unlock()

	return conn, nil
}

// serve runs one connected session and returns when it ends.
func (c *Client) serve(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	frames := make(chan Frame, 16)
	errCh := make(chan error, 1)
	stop := make(chan struct{})

	go func() {
		for {
			var f Frame
			if err := conn.ReadJSON(&f); err != nil {
				errCh <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
			select {
			case frames <- f:
			case <-stop:
				return
			}
		}
	}()

	reason := "connection lost"
	if err := c.markConnected(conn); err != nil {
		reason = err.Error()
		c.logger.Warnw("outbox flush failed", "error", err)
	} else {
		c.logger.Infow("connected")
		c.dispatch(domain.ConnectEvent{})

		pingTicker := time.NewTicker(c.opts.PingInterval)
		reason = c.loop(conn, frames, errCh, pingTicker.C)
		pingTicker.Stop()
	}

	close(stop)

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()

	c.opts.Metrics.SetConnected(false)
	c.logger.Infow("disconnected", "reason", reason)
	if wasConnected {
		c.dispatch(domain.DisconnectEvent{Reason: reason})
	}
}

func (c *Client) loop(conn *websocket.Conn, frames <-chan Frame, errCh <-chan error, ping <-chan time.Time) string {
	for {
		select {
		case f := <-frames:
			c.handleFrame(f)

		case <-ping:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Sprintf("ping failed: %v", err)
			}

		case err := <-errCh:
			// The reader hands over every frame before reporting the error,
			// so whatever is buffered arrived before the close.
			for drained := false; !drained; {
				select {
				case f := <-frames:
					c.handleFrame(f)
				default:
					drained = true
				}
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Infow("read error", "error", err)
			}
			return err.Error()

		case <-c.ctx.Done():
			return "client closed"
		}
	}
}

// markConnected flushes the outbox and flips the connected flag once nothing
// is left queued, so frames keep their emit order across a reconnect.
func (c *Client) markConnected(conn *websocket.Conn) error {
	for {
		if c.opts.Outbox != nil {
			sent, expired, err := c.opts.Outbox.Drain(func(f Frame) error {
				return c.write(conn, f)
			})
			c.opts.Metrics.SetOutboxDepth(c.opts.Outbox.Len())
			if sent > 0 || expired > 0 {
				c.logger.Infow("outbox flushed", "sent", sent, "expired", expired)
			}
			if err != nil {
				return fmt.Errorf("flush outbox: %w", err)
			}
		}

		c.mu.Lock()
		if c.opts.Outbox == nil || c.opts.Outbox.Len() == 0 {
			c.connected = true
			c.mu.Unlock()
			c.opts.Metrics.SetConnected(true)
			return nil
		}
		c.mu.Unlock()
	}
}

func (c *Client) handleFrame(f Frame) {
	ev, err := domain.DecodeEvent(f.Event, f.Data)
	if err != nil {
		c.opts.Metrics.RecordReceive(f.Event, "invalid")
		c.logger.Warnw("dropping inbound frame", "event", f.Event, "error", err)
		return
	}
	c.opts.Metrics.RecordReceive(f.Event, "handled")
	c.dispatch(ev)
}

func (c *Client) dispatch(ev domain.Event) {
	c.mu.RLock()
	subs := append([]subscription(nil), c.handlers[ev.EventName()]...)
	c.mu.RUnlock()

	for _, s := range subs {
		c.invoke(s, ev)
	}
}

func (c *Client) invoke(s subscription, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("event handler panicked", "event", ev.EventName(), "panic", r)
		}
	}()
	s.handler(ev)
}
