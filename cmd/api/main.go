package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-notes/internal/config"
	"github.com/zhouzirui/z-notes/internal/handler"
	"github.com/zhouzirui/z-notes/internal/handler/events"
	"github.com/zhouzirui/z-notes/internal/logging"
	projectService "github.com/zhouzirui/z-notes/internal/service/project"
	tutorService "github.com/zhouzirui/z-notes/internal/service/tutor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, using system environment only", zap.Error(envErr))
	}

	hub := events.NewHub(logger.Named("events"))
	defer hub.Close()

	store, err := projectService.NewStore(cfg.Storage.DataFolder, hub, logger.Named("store"))
	if err != nil {
		logger.Fatal("failed to open data folder", zap.String("path", cfg.Storage.DataFolder), zap.Error(err))
	}

	threads, closeThreads := newThreadStore(ctx, cfg.Redis, logger)
	defer closeThreads()

	workflow := newWorkflow(ctx, cfg.AI, store, threads, logger)

	router := handler.NewRouter(store, workflow, hub, logger.Named("http"))

	startServer(ctx, cfg.Server, router, logger)
}

// newThreadStore prefers redis and falls back to process memory when redis is
// not configured or unreachable.
func newThreadStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (tutorService.ThreadStore, func()) {
	if !cfg.Enabled() {
		logger.Info("consent threads kept in memory")
		return tutorService.NewMemoryThreadStore(cfg.ThreadTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		logger.Warn("redis ping failed, consent threads kept in memory", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return tutorService.NewMemoryThreadStore(cfg.ThreadTTL), func() {}
	}

	logger.Info("consent threads kept in redis", zap.String("addr", cfg.Addr))
	return tutorService.NewRedisThreadStore(client, cfg.ThreadTTL), func() { _ = client.Close() }
}

// newWorkflow returns nil when no model is configured; the chat endpoint then
// answers 503 while the note API keeps working.
func newWorkflow(ctx context.Context, cfg config.AIConfig, store *projectService.Store, threads tutorService.ThreadStore, logger *zap.Logger) *tutorService.Workflow {
	if !cfg.Enabled() {
		logger.Warn("Ark 凭证未配置，跳过 AI 导师初始化")
		return nil
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		logger.Warn("failed to create chat model, continuing without the tutor", zap.Error(err))
		return nil
	}
	generator, err := tutorService.NewChainGenerator(ctx, chatModel, logger.Named("generator"))
	if err != nil {
		logger.Warn("failed to compile tutor chain, continuing without the tutor", zap.Error(err))
		return nil
	}

	logger.Info("AI tutor initialized", zap.String("model", cfg.Model), zap.Bool("llm_intent", cfg.IntentLLMEnabled))
	return tutorService.NewWorkflow(generator, store, threads, logger.Named("tutor"), tutorService.Config{
		IntentLLMEnabled: cfg.IntentLLMEnabled,
	})
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("z-notes api listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
