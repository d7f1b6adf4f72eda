package services

import (
	"context"
	"fmt"
	"sync"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"
	"campusconnect/pkg/config"
	"campusconnect/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type subscription struct {
	event domain.EventName
	id    ports.SubscriptionID
}

// ConnectionProvider is the only component that acquires and releases the
// shared connection. Everything else reads it from here.
type ConnectionProvider struct {
	manager ports.ConnectionManager
	typing  *rate.Limiter
	logger  *zap.SugaredLogger

	mu        sync.RWMutex
	mounted   bool
	conn      ports.Connection
	state     domain.ConnectionState
	subs      []subscription
	listeners map[uint64]func(connected bool)
	nextID    uint64
}

var _ ports.ConnectionProvider = (*ConnectionProvider)(nil)

func NewConnectionProvider(manager ports.ConnectionManager, cfg *config.Config, log *zap.SugaredLogger) *ConnectionProvider {
	if log == nil {
		log = logger.Nop()
	}
	return &ConnectionProvider{
		manager:   manager,
		typing:    rate.NewLimiter(rate.Limit(cfg.Typing.EventsPerSecond), cfg.Typing.Burst),
		logger:    log.With("component", "connection_provider"),
		state:     domain.StateDisconnected,
		listeners: make(map[uint64]func(bool)),
	}
}

// Mount acquires the connection and starts tracking connectivity. Mounting
// twice is a no-op.
func (p *ConnectionProvider) Mount(ctx context.Context) error {
	p.mu.Lock()
	if p.mounted {
		p.mu.Unlock()
		return nil
	}

	conn, err := p.manager.Acquire(ctx)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("acquire connection: %w", err)
	}

	p.conn = conn
	p.mounted = true
	p.subs = []subscription{
		{domain.EventConnect, conn.On(domain.EventConnect, func(domain.Event) { p.setConnected(true) })},
		{domain.EventDisconnect, conn.On(domain.EventDisconnect, func(domain.Event) { p.setConnected(false) })},
	}

	// Read after subscribing so a connect that raced the subscription is
	// not missed.
	connected := conn.IsConnected()
	if connected {
		p.state = domain.StateConnected
	} else {
		p.state = domain.StateConnecting
	}
	listeners := p.snapshotListenersLocked()
	p.mu.Unlock()

	p.logger.Infow("connection mounted", "connected", connected)
	if connected {
		notify(listeners, true)
	}
	return nil
}

// Unmount drops every subscription made by Mount and releases the connection.
func (p *ConnectionProvider) Unmount() error {
	p.mu.Lock()
	if !p.mounted {
		p.mu.Unlock()
		return nil
	}

	for _, s := range p.subs {
		p.conn.Off(s.event, s.id)
	}
	wasConnected := p.state == domain.StateConnected
	p.subs = nil
	p.conn = nil
	p.mounted = false
	p.state = domain.StateDisconnected
	listeners := p.snapshotListenersLocked()
	p.mu.Unlock()

	err := p.manager.Release()
	p.logger.Infow("connection unmounted")
	if wasConnected {
		notify(listeners, false)
	}
	return err
}

// Connection returns the mounted connection, or nil.
func (p *ConnectionProvider) Connection() ports.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

func (p *ConnectionProvider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == domain.StateConnected
}

func (p *ConnectionProvider) State() domain.ConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// OnConnectivityChange registers fn for every connected/disconnected flip.
func (p *ConnectionProvider) OnConnectivityChange(fn func(connected bool)) (cancel func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// SendMessage emits send_message. Empty receiver or content is a no-op.
func (p *ConnectionProvider) SendMessage(ctx context.Context, receiverID domain.UserID, content string) (domain.DeliveryStatus, error) {
	if receiverID == "" || content == "" {
		return domain.DeliverySkipped, nil
	}
	return p.emit(ctx, domain.EventSendMessage, domain.SendMessagePayload{
		ReceiverID: receiverID,
		Content:    content,
	})
}

// SendTyping emits typing or stop_typing. Typing starts are rate limited;
// stops always go out so the indicator never sticks.
func (p *ConnectionProvider) SendTyping(ctx context.Context, conversationID domain.ConversationID, receiverID domain.UserID, typing bool) (domain.DeliveryStatus, error) {
	if conversationID == "" || receiverID == "" {
		return domain.DeliverySkipped, nil
	}

	event := domain.EventStopTyping
	if typing {
		if !p.typing.Allow() {
			return domain.DeliverySkipped, nil
		}
		event = domain.EventTyping
	}

	return p.emit(ctx, event, domain.TypingPayload{
		ConversationID: conversationID,
		ReceiverID:     receiverID,
	})
}

func (p *ConnectionProvider) emit(ctx context.Context, event domain.EventName, payload interface{}) (domain.DeliveryStatus, error) {
	conn := p.Connection()
	if conn == nil {
		return domain.DeliveryDropped, domain.ErrNotConnected
	}
	return conn.Emit(ctx, event, payload)
}

func (p *ConnectionProvider) setConnected(connected bool) {
	p.mu.Lock()
	if !p.mounted {
		p.mu.Unlock()
		return
	}
	next := domain.StateDisconnected
	if connected {
		next = domain.StateConnected
	}
	changed := p.state != next
	p.state = next
	listeners := p.snapshotListenersLocked()
	p.mu.Unlock()

	if !changed {
		return
	}
	p.logger.Infow("connectivity changed", "state", next.String())
	notify(listeners, connected)
}

func (p *ConnectionProvider) snapshotListenersLocked() []func(bool) {
	out := make([]func(bool), 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(bool), connected bool) {
	for _, fn := range listeners {
		fn(connected)
	}
}
