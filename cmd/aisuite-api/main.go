package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/PabloGalante/aisuite/internal/adapters/http"
	"github.com/PabloGalante/aisuite/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/aisuite/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/aisuite/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/aisuite/internal/adapters/storage/redis"
	"github.com/PabloGalante/aisuite/internal/app/assistant"
	"github.com/PabloGalante/aisuite/internal/app/conversation"
	"github.com/PabloGalante/aisuite/internal/config"
	"github.com/PabloGalante/aisuite/internal/domain"
	"github.com/PabloGalante/aisuite/internal/idgen"
	"github.com/PabloGalante/aisuite/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		observability.Logger().Error("aisuite api stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := observability.Setup(os.Stdout, cfg.LogLevel)

	if err := idgen.Init(cfg.NodeID); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmClient, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}

	sessionStore, messageStore, closeStore, err := newStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	engine := assistant.NewEngine(llmClient, assistant.Config{
		MaxContextLength:  cfg.MaxContextLength,
		MaxResponseLength: cfg.MaxResponseLength,
	})
	svc := conversation.NewService(engine, sessionStore, messageStore)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpadapter.NewServer(svc, httpadapter.Options{AllowedOrigins: cfg.CORSOrigins}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("aisuite api listening", "addr", srv.Addr, "storage", cfg.StorageBackend, "model", engine.ModelInfo().ModelName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newLLMClient returns nil when generation is disabled; the engine then
// answers from its fallback replies.
func newLLMClient(ctx context.Context, cfg *config.Config) (domain.LLMClient, error) {
	log := observability.Logger()

	switch {
	case cfg.DisableLLM:
		log.Info("LLM disabled, using fallback replies")
		return nil, nil
	case cfg.UseMockLLM:
		log.Info("using mock LLM client")
		return llm.NewMockLLM(), nil
	}

	log.Info("using Vertex LLM client", "project", cfg.GCPProjectID, "model", cfg.ModelName)
	client, err := llm.NewVertexClient(ctx, llm.VertexConfig{
		ProjectID: cfg.GCPProjectID,
		Location:  cfg.GCPLocation,
		ModelName: cfg.ModelName,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing Vertex LLM client: %w", err)
	}
	return client, nil
}

func newStores(ctx context.Context, cfg *config.Config) (domain.SessionStore, domain.MessageStore, func(), error) {
	log := observability.Logger()

	switch cfg.StorageBackend {
	case config.StorageRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parsing AISUITE_REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		store := redisstore.NewStore(rdb, redisstore.DefaultPrefix, cfg.SessionTTL)
		if err := store.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, nil, nil, err
		}
		log.Info("using redis storage", "addr", opts.Addr, "ttl", cfg.SessionTTL)
		// 1 store, implements 2 interfaces
		return store, store, func() { _ = rdb.Close() }, nil

	case config.StorageFirestore:
		store, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("initializing Firestore store: %w", err)
		}
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		return store, store, func() { _ = store.Close() }, nil

	default:
		log.Info("using in-memory storage")
		return memstore.NewSessionStore(), memstore.NewMessageStore(), func() {}, nil
	}
}
