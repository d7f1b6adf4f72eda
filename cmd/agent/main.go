package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/services"
	httphandlers "campusconnect/internal/handlers/http"
	"campusconnect/internal/infrastructure/monitoring"
	"campusconnect/internal/infrastructure/repositories"
	"campusconnect/internal/infrastructure/socket"
	"campusconnect/internal/infrastructure/tokenstore"
	"campusconnect/pkg/config"
	"campusconnect/pkg/logger"
	"campusconnect/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	startTime := time.Now()

	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}
	if *configPath != "" {
		configPaths = []string{*configPath}
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if err != nil {
		log.Warnw("could not load config, using defaults", "error", err)
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		JaegerURL:      cfg.Tracing.JaegerURL,
		Environment:    cfg.Tracing.Environment,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceVersion: tracing.DefaultConfig().ServiceVersion,
	})
	if err != nil {
		log.Warnw("tracing disabled", "error", err)
		tp, _ = tracing.Init(tracing.Config{})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewPrometheusCollector(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repoFactory := repositories.NewRepositoryFactory(ctx, cfg, log)
	conversations := repoFactory.CreateConversationRepository()

	tokens := tokenstore.NewFileStore(cfg.Client.TokenPath)
	manager := socket.NewManager(cfg, tokens, metrics, log)
	provider := services.NewConnectionProvider(manager, cfg, log)

	if err := provider.Mount(ctx); err != nil {
		log.Fatalw("failed to mount connection", "error", err)
	}
	provider.OnConnectivityChange(func(connected bool) {
		log.Infow("realtime link", "connected", connected)
	})

	chatService := services.NewChatService(conversations, provider, cfg, repoFactory.Backend(), log)
	callService := services.NewCallService(provider, cfg, metrics, log)
	callService.SetObserver(func(n domain.CallNotice) {
		log.Infow("call notice",
			"kind", n.Kind,
			"call_id", n.Call.CallID,
			"peer_id", n.Call.PeerID,
			"phase", n.Call.Phase,
			"end_reason", n.Call.EndReason,
		)
	})
	if err := chatService.Attach(); err != nil {
		log.Fatalw("failed to attach chat service", "error", err)
	}
	if err := callService.Attach(); err != nil {
		log.Fatalw("failed to attach call service", "error", err)
	}

	health := monitoring.NewHealthChecker()
	health.AddConnectionCheck(provider, 0, time.Second)
	health.AddRepositoryCheck(conversations, 0, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 0, 2*time.Second)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers := httphandlers.Handlers{
		Chat:    httphandlers.NewChatHandler(chatService, provider),
		Call:    httphandlers.NewCallHandler(callService),
		Session: httphandlers.NewSessionHandler(tokens, provider),
		Health:  httphandlers.NewHealthHandler(health, startTime),
	}
	if cfg.Monitoring.PrometheusEnabled {
		handlers.Gatherer = registry
	}
	router := httphandlers.NewRouter(cfg, handlers, log)

	srv := &http.Server{
		Addr:         cfg.Agent.Address,
		Handler:      router,
		ReadTimeout:  cfg.Agent.ReadTimeout,
		WriteTimeout: cfg.Agent.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting campusconnect agent",
			"address", cfg.Agent.Address,
			"user_id", cfg.Client.UserID,
			"store", repoFactory.Backend(),
			"ready", health.IsReady(ctx),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("agent server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Agent.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	callService.Detach()
	chatService.Detach()
	if err := provider.Unmount(); err != nil {
		log.Errorw("error releasing connection", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracing", "error", err)
	}

	log.Info("campusconnect agent stopped")
}
