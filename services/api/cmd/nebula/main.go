package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"nebulaone/internal/ratelimit"
	"nebulaone/internal/util"
	"nebulaone/pkg/queue"
	"nebulaone/pkg/realtime"
	"nebulaone/pkg/storage"
	"nebulaone/pkg/store"
	"nebulaone/services/api/internal/app"
	"nebulaone/services/api/internal/config"
	"nebulaone/services/api/internal/server"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer closeStore()
	if cfg.SeedSampleData {
		if err := store.Seed(st, time.Now().UTC()); err != nil {
			log.Fatalf("failed to seed sample data: %v", err)
		}
		logger.Info("sample workspace seeded")
	}

	sessions, err := openSessions(cfg, redisClient)
	if err != nil {
		log.Fatalf("failed to init sessions: %v", err)
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to init object storage: %v", err)
		}
		objects = minioStore
	} else {
		logger.Warn("object storage not configured; attachment uploads are disabled")
	}

	loginLimiter, err := newLimiter(redisClient, "nebula:rl:login", cfg.LoginRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init login rate limiter: %v", err)
	}
	registerLimiter, err := newLimiter(redisClient, "nebula:rl:register", cfg.RegisterRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init register rate limiter: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trusted proxies: %v", err)
	}

	hub := realtime.NewHub(realtime.Options{
		PingInterval:   cfg.WSPingIntervalDuration(),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	var jobs *queue.RedisJobQueue
	if redisClient != nil {
		jobs, err = queue.NewRedisJobQueue(redisClient, queue.Config{Stream: "nebula:jobs", Group: "summarizers"})
		if err != nil {
			log.Fatalf("failed to init job queue: %v", err)
		}
	}

	appCfg := app.Config{
		Store:    st,
		Sessions: sessions,
		Objects:  objects,
		Events:   hub,
	}
	if jobs != nil {
		appCfg.Jobs = jobs
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:             appCore,
		Realtime:        hub,
		LoginLimiter:    loginLimiter,
		RegisterLimiter: registerLimiter,
		TrustedProxies:  trusted,
		AllowedOrigins:  cfg.AllowedOrigins,
		CookieName:      cfg.SessionCookieName,
		CookieSecure:    cfg.SessionCookieSecure,
		SessionTTL:      cfg.SessionTTLDuration(),
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if jobs != nil {
		jobs.Start(gctx, 2, appCore.RunJob)
	}
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "session_backend", cfg.SessionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func openStore(cfg config.FileConfig) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("databaseURL not set; using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}
	gs, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return gs, func() {
		if err := gs.Close(); err != nil {
			slog.Warn("close database failed", "err", err)
		}
	}, nil
}

func openSessions(cfg config.FileConfig, client *redis.Client) (store.SessionStore, error) {
	ttl := cfg.SessionTTLDuration()
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		return store.NewRedisSessionStore(client, ttl)
	case config.SessionBackendJWT:
		var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
		if client != nil {
			revoker = store.NewRedisTokenRevoker(client)
		}
		return store.NewJWTSessionStore(cfg.JWTSecret, ttl, revoker)
	default:
		return store.NewMemorySessionStore(ttl), nil
	}
}

// newLimiter returns nil when limit is zero, which disables limiting.
func newLimiter(client *redis.Client, prefix string, limit int) (*ratelimit.FixedWindowLimiter, error) {
	if limit <= 0 || client == nil {
		return nil, nil
	}
	return ratelimit.NewFixedWindowLimiter(client, prefix, limit, time.Minute)
}
