package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuschat/internal/chat"
	"github.com/campuschat/internal/config"
	"github.com/campuschat/internal/handler"
	"github.com/campuschat/internal/logger"
	"github.com/campuschat/internal/presence"
	"github.com/campuschat/internal/repository"
	"github.com/campuschat/internal/startup"
	"github.com/campuschat/internal/storage"
	"github.com/campuschat/internal/storage/memory"
	"github.com/campuschat/internal/ws"
)

// backend: то, что режим хранения отдаёт остальному сервису.
type backend struct {
	users    chat.UserDirectory
	messages chat.MessageLog
	sessions chat.SessionDirectory
	status   presence.StatusStore
	db       handler.Pinger
	seed     startup.UserWriter
	reset    func(ctx context.Context) error
	close    func()
}

func main() {
	logger.SetPrefix("chat")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	inMemory := flag.Bool("memory", false, "keep everything in process memory (no database)")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	logger.Info("starting chat service")

	var be *backend
	if *inMemory {
		be = memoryBackend()
	} else {
		var err error
		be, err = postgresBackend(cfg, *dev, *migrate)
		if err != nil {
			fatal(err)
		}
		if be == nil {
			return
		}
	}
	defer be.close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	if err := be.reset(ctx); err != nil {
		logger.Errorf("reset online status: %v", err)
	}
	cancel()

	if cfg.SeedPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := startup.LoadSeed(ctx, cfg.SeedPath, be.seed)
		cancel()
		if err != nil {
			fatal(fmt.Errorf("seed %s: %w", cfg.SeedPath, err))
		}
		logger.Infof("seeded %d users from %s", n, cfg.SeedPath)
	}

	cache := historyCache(cfg)
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Errorf("history cache close: %v", err)
		}
	}()

	svc := chat.NewService(be.users, be.messages, be.sessions, cache, cfg.StoreTimeout)
	registry := presence.NewRegistry(be.status, cfg.StoreTimeout)
	hub := ws.NewHub(svc, registry, ws.Options{
		MaxConns:       cfg.MaxWSConnections,
		SendBuffer:     cfg.WSSendBufferSize,
		WriteWait:      cfg.WSWriteTimeout,
		PongWait:       cfg.WSPongTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
	})

	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	srv := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: handler.NewRouter(handler.RouterConfig{
			Service:            svc,
			Hub:                hub,
			DB:                 be.db,
			AllowedOrigins:     cfg.AllowedOrigins(),
			RateLimitPerMinute: cfg.RateLimitPerMinute,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	logger.Flush(2 * time.Second)
}

func fatal(err error) {
	logger.Error(err)
	logger.Flush(time.Second)
	os.Exit(1)
}

func memoryBackend() *backend {
	store := memory.NewStore()
	logger.Info("using in-memory store; data is lost on exit")
	return &backend{
		users:    store,
		messages: store,
		sessions: store,
		status:   store,
		db:       store,
		seed:     store,
		reset:    store.ResetPresence,
		close:    func() { _ = store.Close() },
	}
}

// postgresBackend возвращает nil без ошибки, если с -migrate нужны были только миграции.
func postgresBackend(cfg *config.Config, dev, migrateOnly bool) (*backend, error) {
	stopDB := func() {}
	if dev {
		db, err := startEmbeddedPostgres(cfg)
		if err != nil {
			return nil, fmt.Errorf("embedded postgres: %w", err)
		}
		stopDB = func() {
			logger.Info("stopping embedded postgres...")
			if err := db.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		stopDB()
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections)
	poolCfg.MinConns = 2

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	closeAll := func() {
		pool.Close()
		stopDB()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := startup.RunMigrations(ctx, pool); err != nil {
		closeAll()
		return nil, err
	}
	if migrateOnly && !dev {
		closeAll()
		return nil, nil
	}
	logger.Info("database connected, migrations applied")

	users := repository.NewUserRepository(pool)
	return &backend{
		users:    users,
		messages: repository.NewMessageRepository(pool),
		sessions: repository.NewSessionRepository(pool),
		status:   users,
		db:       users,
		seed:     users,
		reset:    users.ResetPresence,
		close:    closeAll,
	}, nil
}

// historyCache: Redis, если он задан и доступен, иначе кеш в памяти процесса.
func historyCache(cfg *config.Config) storage.HistoryCache {
	if cfg.RedisURL != "" {
		client, err := startup.ConnectRedisWithRetry(cfg.RedisURL, cfg.HistoryCacheTTL, 10*time.Second)
		if err == nil {
			return client
		}
		logger.Errorf("redis unavailable, using in-process history cache: %v", err)
	}
	return memory.NewHistoryCache(cfg.HistoryCacheTTL)
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "campuschat"
		password = "campuschat_dev"
		database = "campuschat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.DatabaseURL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}

