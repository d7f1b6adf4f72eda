package config

import (
	"fmt"
	"os"
	"time"

	"campusconnect/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Client struct {
		APIBaseURL string `yaml:"api_base_url"`
		UserID     string `yaml:"user_id"`
		TokenPath  string `yaml:"token_path"`
	} `yaml:"client"`

	Socket struct {
		Path              string        `yaml:"path"`
		ReconnectMinDelay time.Duration `yaml:"reconnect_min_delay"`
		ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
		HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
		PingInterval      time.Duration `yaml:"ping_interval"`
		PongTimeout       time.Duration `yaml:"pong_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
	} `yaml:"socket"`

	Outbox struct {
		Enabled bool          `yaml:"enabled"`
		MaxSize int           `yaml:"max_size"`
		TTL     time.Duration `yaml:"ttl"`
	} `yaml:"outbox"`

	Call struct {
		SetupTimeout time.Duration `yaml:"setup_timeout"`
		TickInterval time.Duration `yaml:"tick_interval"`
	} `yaml:"call"`

	Typing struct {
		EventsPerSecond float64 `yaml:"events_per_second"`
		Burst           int     `yaml:"burst"`
	} `yaml:"typing"`

	Agent struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// AuthToken, when set, must be presented as a bearer token on /api routes.
		AuthToken string `yaml:"auth_token"`
		RateLimit struct {
			Enabled           bool    `yaml:"enabled"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"rate_limit"`
	} `yaml:"agent"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Client
	if c.Client.APIBaseURL == "" {
		return fmt.Errorf("client.api_base_url must not be empty")
	}
	if err := validation.ValidateURL(c.Client.APIBaseURL); err != nil {
		return fmt.Errorf("client.api_base_url: %w", err)
	}
	if c.Client.UserID == "" {
		return fmt.Errorf("client.user_id must not be empty")
	}

	// Socket
	if c.Socket.Path == "" {
		return fmt.Errorf("socket.path must not be empty")
	}
	if c.Socket.ReconnectMinDelay <= 0 {
		return fmt.Errorf("socket.reconnect_min_delay must be > 0")
	}
	if c.Socket.ReconnectMaxDelay < c.Socket.ReconnectMinDelay {
		return fmt.Errorf("socket.reconnect_max_delay must be >= reconnect_min_delay")
	}
	if c.Socket.PingInterval <= 0 {
		return fmt.Errorf("socket.ping_interval must be > 0")
	}
	if c.Socket.PongTimeout <= c.Socket.PingInterval {
		return fmt.Errorf("socket.pong_timeout must be > ping_interval")
	}
	if c.Socket.WriteTimeout <= 0 {
		return fmt.Errorf("socket.write_timeout must be > 0")
	}

	// Outbox
	if c.Outbox.Enabled {
		if c.Outbox.MaxSize <= 0 {
			return fmt.Errorf("outbox.max_size must be > 0 when outbox.enabled=true")
		}
		if c.Outbox.TTL <= 0 {
			return fmt.Errorf("outbox.ttl must be > 0 when outbox.enabled=true")
		}
	}

	// Call
	if c.Call.SetupTimeout <= 0 {
		return fmt.Errorf("call.setup_timeout must be > 0")
	}
	if c.Outbox.Enabled && c.Outbox.TTL < c.Call.SetupTimeout {
		return fmt.Errorf("outbox.ttl must be at least call.setup_timeout so a queued accept outlives the ringing window")
	}
	if c.Call.TickInterval <= 0 {
		return fmt.Errorf("call.tick_interval must be > 0")
	}

	// Typing
	if c.Typing.EventsPerSecond <= 0 {
		return fmt.Errorf("typing.events_per_second must be > 0")
	}
	if c.Typing.Burst <= 0 {
		return fmt.Errorf("typing.burst must be > 0")
	}

	// Agent
	if c.Agent.Address == "" {
		return fmt.Errorf("agent.address must not be empty")
	}
	if c.Agent.ShutdownTimeout <= 0 {
		return fmt.Errorf("agent.shutdown_timeout must be > 0")
	}
	if c.Agent.RateLimit.Enabled {
		if c.Agent.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("agent.rate_limit.requests_per_second must be > 0 when enabled")
		}
		if c.Agent.RateLimit.Burst <= 0 {
			return fmt.Errorf("agent.rate_limit.burst must be > 0 when enabled")
		}
		if c.Agent.RateLimit.MaxConcurrent < 0 {
			return fmt.Errorf("agent.rate_limit.max_concurrent must be >= 0")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Client.APIBaseURL = "http://localhost:3000/api"
	cfg.Client.UserID = "local-user"
	cfg.Client.TokenPath = defaultTokenPath()

	cfg.Socket.Path = "/socket"
	cfg.Socket.ReconnectMinDelay = 1 * time.Second
	cfg.Socket.ReconnectMaxDelay = 5 * time.Second
	cfg.Socket.HandshakeTimeout = 10 * time.Second
	cfg.Socket.PingInterval = 25 * time.Second
	cfg.Socket.PongTimeout = 60 * time.Second
	cfg.Socket.WriteTimeout = 10 * time.Second

	cfg.Outbox.Enabled = true
	cfg.Outbox.MaxSize = 256
	cfg.Outbox.TTL = 5 * time.Minute

	cfg.Call.SetupTimeout = 45 * time.Second
	cfg.Call.TickInterval = 1 * time.Second

	cfg.Typing.EventsPerSecond = 0.5
	cfg.Typing.Burst = 1

	cfg.Agent.Address = "127.0.0.1:8090"
	cfg.Agent.ReadTimeout = 15 * time.Second
	cfg.Agent.WriteTimeout = 15 * time.Second
	cfg.Agent.ShutdownTimeout = 10 * time.Second
	cfg.Agent.RateLimit.Enabled = true
	cfg.Agent.RateLimit.RequestsPerSecond = 20
	cfg.Agent.RateLimit.Burst = 40
	cfg.Agent.RateLimit.MaxConcurrent = 64

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "campusconnect-agent"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func defaultTokenPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v + "/campusconnect/token.json"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "token.json"
	}
	return home + "/.config/campusconnect/token.json"
}

func (c *Config) applyEnvOverrides() {
	if base := os.Getenv("CAMPUS_API_BASE_URL"); base != "" {
		c.Client.APIBaseURL = base
	}
	if userID := os.Getenv("CAMPUS_USER_ID"); userID != "" {
		c.Client.UserID = userID
	}
	if path := os.Getenv("CAMPUS_TOKEN_PATH"); path != "" {
		c.Client.TokenPath = path
	}
	if level := os.Getenv("CAMPUS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("CAMPUS_AGENT_ADDRESS"); addr != "" {
		c.Agent.Address = addr
	}
	if token := os.Getenv("CAMPUS_AGENT_TOKEN"); token != "" {
		c.Agent.AuthToken = token
	}
}
