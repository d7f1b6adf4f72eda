package socket

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"campusconnect/internal/core/ports"
	"campusconnect/internal/infrastructure/monitoring"
	"campusconnect/pkg/config"
	"campusconnect/pkg/logger"
	"campusconnect/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Manager owns the single realtime connection of the process. It is created
// once at startup and handed to whoever needs to acquire the connection.
type Manager struct {
	cfg     *config.Config
	tokens  ports.TokenStore
	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger

	// Dialer overrides the websocket dialer, mostly for tests.
	Dialer *websocket.Dialer

	mu     sync.Mutex
	client *Client
}

var _ ports.ConnectionManager = (*Manager)(nil)

func NewManager(cfg *config.Config, tokens ports.TokenStore, metrics *monitoring.PrometheusCollector, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		cfg:     cfg,
		tokens:  tokens,
		metrics: metrics,
		logger:  log,
	}
}

// Acquire returns the live client when it is connected. Otherwise any stale
// client is closed and a fresh one is started. The token is read from the
// store on every dial, so a token stored later is used on the next reconnect.
func (m *Manager) Acquire(ctx context.Context) (ports.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		if m.client.IsConnected() {
			return m.client, nil
		}
		m.logger.Infow("replacing stale socket client")
		m.client.Close()
		m.client = nil
	}

	endpoint, err := Endpoint(m.cfg.Client.APIBaseURL, m.cfg.Socket.Path)
	if err != nil {
		return nil, err
	}

	opts := OptionsFromConfig(m.cfg, endpoint, "")
	opts.TokenSource = m.token
	opts.Dialer = m.Dialer
	opts.Metrics = m.metrics
	opts.Logger = m.logger

	client := NewClient(opts)
	client.Start()
	m.client = client

	return client, nil
}

func (m *Manager) token(ctx context.Context) (string, error) {
	if m.tokens == nil {
		return "", nil
	}
	token, err := m.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		m.logger.Infow("no auth token stored, connecting anonymously")
	} else {
		m.logger.Debugw("connecting with stored token", "token", utils.MaskSensitive(token, 6))
	}
	return token, nil
}

// Current returns the client without connecting, or nil when there is none.
func (m *Manager) Current() ports.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}
	return m.client
}

// Release closes the client and forgets it. Calling it again is a no-op.
func (m *Manager) Release() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// Endpoint derives the websocket URL from the REST API base: the scheme is
// switched to ws or wss, a trailing /api segment is dropped, and path is
// appended.
func Endpoint(apiBase, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(apiBase))
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported api base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api base url %q has no host", apiBase)
	}

	base := strings.TrimRight(u.Path, "/")
	base = strings.TrimSuffix(base, "/api")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = base + path
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}
