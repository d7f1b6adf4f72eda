package services

import (
	"context"
	"sync"
	"time"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"
	"campusconnect/internal/infrastructure/repositories/memory"
	"campusconnect/pkg/config"

	"github.com/stretchr/testify/mock"
)

type emitted struct {
	event   domain.EventName
	payload interface{}
}

// fakeConn is an in-process Connection. Events are delivered with fire.
type fakeConn struct {
	mu        sync.Mutex
	connected bool
	status    domain.DeliveryStatus
	err       error
	handlers  map[domain.EventName]map[ports.SubscriptionID]ports.EventHandler
	nextID    ports.SubscriptionID
	emits     []emitted
	closed    bool
}

func newFakeConn(connected bool) *fakeConn {
	return &fakeConn{
		connected: connected,
		handlers:  make(map[domain.EventName]map[ports.SubscriptionID]ports.EventHandler),
	}
}

func (c *fakeConn) Emit(ctx context.Context, event domain.EventName, payload interface{}) (domain.DeliveryStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return domain.DeliveryDropped, c.err
	}
	status := c.status
	if status == "" {
		status = domain.DeliverySent
		if !c.connected {
			status = domain.DeliveryQueued
		}
	}
	c.emits = append(c.emits, emitted{event: event, payload: payload})
	return status, nil
}

func (c *fakeConn) On(event domain.EventName, handler ports.EventHandler) ports.SubscriptionID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[ports.SubscriptionID]ports.EventHandler)
	}
	c.handlers[event][c.nextID] = handler
	return c.nextID
}

func (c *fakeConn) Off(event domain.EventName, id ports.SubscriptionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers[event], id)
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// fire dispatches ev to every handler subscribed to its name.
func (c *fakeConn) fire(ev domain.Event) {
	c.mu.Lock()
	var hs []ports.EventHandler
	for _, h := range c.handlers[ev.EventName()] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

func (c *fakeConn) handlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, hs := range c.handlers {
		n += len(hs)
	}
	return n
}

func (c *fakeConn) emitted() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.emits...)
}

func (c *fakeConn) lastEmit() (emitted, bool) {
	all := c.emitted()
	if len(all) == 0 {
		return emitted{}, false
	}
	return all[len(all)-1], true
}

type mockManager struct {
	mock.Mock
}

func (m *mockManager) Acquire(ctx context.Context) (ports.Connection, error) {
	args := m.Called(ctx)
	conn, _ := args.Get(0).(ports.Connection)
	return conn, args.Error(1)
}

func (m *mockManager) Current() ports.Connection {
	conn, _ := m.Called().Get(0).(ports.Connection)
	return conn
}

func (m *mockManager) Release() error {
	return m.Called().Error(0)
}

func testConfig(userID string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Client.UserID = userID
	cfg.Call.TickInterval = 10 * time.Millisecond
	cfg.Call.SetupTimeout = time.Minute
	cfg.Typing.EventsPerSecond = 1
	cfg.Typing.Burst = 1
	return cfg
}

// mountedProvider returns a provider mounted on conn.
func mountedProvider(cfg *config.Config, conn *fakeConn) (*ConnectionProvider, *mockManager) {
	m := new(mockManager)
	m.On("Acquire", mock.Anything).Return(conn, nil)
	m.On("Release").Return(nil)

	p := NewConnectionProvider(m, cfg, nil)
	if err := p.Mount(context.Background()); err != nil {
		panic(err)
	}
	return p, m
}

func seededRepo(now time.Time) *memory.ConversationRepository {
	return memory.NewConversationRepository(memory.SeedConversations(now)...)
}

// noticeRecorder collects call notices delivered to an observer.
type noticeRecorder struct {
	mu      sync.Mutex
	notices []domain.CallNotice
}

func (r *noticeRecorder) observe(n domain.CallNotice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *noticeRecorder) kinds() []domain.CallNoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.CallNoticeKind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Kind)
	}
	return out
}

func (r *noticeRecorder) last() domain.CallNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}
