package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/audit"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/auth"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/config"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/credential"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/discovery"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/metrics"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/mqtt"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/device"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/media"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default $ONVIF_CONFIG or "+defaultConfigPath+")")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	flag.Parse()

	boot := zap.Must(zap.NewProduction())

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		boot.Warn("failed to load env file", zap.String("path", *envFile), zap.Error(err))
	}

	path := *configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		boot.Error("failed to load configuration", zap.String("path", path), zap.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		boot.Error("configuration validation failed", zap.String("path", path), zap.Error(err))
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		boot.Error("failed to build logger", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("configuration loaded",
		zap.String("path", path), zap.Int("profiles", len(cfg.Profiles)), zap.String("device", cfg.Device.Name))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	rec := metrics.Init(cfg.Metrics.Enabled)
	var metricsHandler http.Handler
	if m, ok := rec.(*metrics.Metrics); ok {
		metricsHandler = m.Handler()
	}

	users, closeUsers, err := openCredentialStore(cfg)
	if err != nil {
		return err
	}
	defer closeUsers()
	if err := credential.Seed(ctx, users, seedUsers(cfg.Auth.Users, logger)); err != nil {
		return err
	}

	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	var nonces auth.NonceGuard = auth.NewNonceCache(cfg.Auth.NonceCacheSize)
	if cfg.Auth.NonceStore == "redis" {
		nonces = auth.NewRedisNonceGuard(redisClient, cfg.Redis.KeyPrefix, cfg.Auth.NonceCacheSize)
	}

	gate := auth.NewGate(users, nonces, auth.GateOptions{
		RequireAuth:        cfg.Auth.Required,
		ExemptActions:      cfg.Auth.ExemptActions,
		TimestampTolerance: cfg.Auth.TimestampTolerance,
		Logger:             logger,
	})
	if !cfg.Auth.Required {
		logger.Warn("authentication is disabled, every request is accepted")
	}

	hub := audit.NewHub(logger)
	sinks := []audit.Sink{hub}
	if cfg.MQTT.Broker != "" {
		publisher, err := mqtt.NewPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      cfg.MQTT.QoS,
		}, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}
	bus := audit.NewBus(audit.DefaultBufferSize, logger, rec.RecordAuditDropped, sinks...)

	deviceRegistry := onvif.NewRegistry()
	device.NewService(cfg.Device, cfg.Server.BaseURL).Register(deviceRegistry)
	mediaRegistry := onvif.NewRegistry()
	media.NewService(cfg.Profiles).Register(mediaRegistry)

	var lim *limiter.Limiter
	if cfg.RateLimit.RequestsPerMinute > 0 {
		lim, err = onvif.NewRateLimiter(onvif.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Store:             onvif.RateLimitStore(cfg.RateLimit.Store),
			Redis:             redisClient,
			KeyPrefix:         cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return err
		}
	}

	server := onvif.NewServer(cfg, onvif.Services{
		Device: onvif.NewDispatcher(onvif.DispatcherConfig{
			Service: "device", Gate: gate, Registry: deviceRegistry, Metrics: rec, Events: bus, Logger: logger,
		}),
		Media: onvif.NewDispatcher(onvif.DispatcherConfig{
			Service: "media", Gate: gate, Registry: mediaRegistry, Metrics: rec, Events: bus, Logger: logger,
		}),
		Gate:           gate,
		Users:          users,
		Hub:            hub,
		Metrics:        rec,
		MetricsHandler: metricsHandler,
		Limiter:        lim,
		Logger:         logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	if cfg.Server.Discovery {
		responder := discovery.NewResponder(cfg.Device.Name, cfg.Server.BaseURL+onvif.DeviceServicePath,
			cfg.Device.PTZEnabled, logger)
		g.Go(func() error {
			// Multicast is often unavailable in containers; serve without it.
			if err := responder.Run(gctx); err != nil {
				logger.Error("WS-Discovery responder failed", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format != "json" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zc.Build()
}

func openCredentialStore(cfg *config.Config) (credential.Store, func(), error) {
	switch cfg.Store.Driver {
	case "sqlite", "postgres":
		store, err := credential.Open(cfg.Store.Driver, cfg.Store.DSN, cfg.Auth.MaxUsers)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "memory", "":
		return credential.NewMemoryStore(cfg.Auth.MaxUsers), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported credential store driver: %s", cfg.Store.Driver)
	}
}

func seedUsers(users []config.UserConfig, logger *zap.Logger) []credential.Credential {
	out := make([]credential.Credential, 0, len(users))
	for _, u := range users {
		if u.Password == u.Username {
			logger.Warn("user password equals username, change it in production", zap.String("username", u.Username))
		}
		out = append(out, credential.Credential{Username: u.Username, Password: u.Password, Enabled: u.IsEnabled()})
	}
	return out
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Auth.NonceStore == "redis" ||
		(cfg.RateLimit.RequestsPerMinute > 0 && cfg.RateLimit.Store == "redis")
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
