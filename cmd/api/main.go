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

	"github.com/baochat/baochat/internal/config"
	"github.com/baochat/baochat/internal/handler"
	chatservice "github.com/baochat/baochat/internal/service/chat"
	"github.com/baochat/baochat/internal/service/ollama"
	"github.com/baochat/baochat/internal/service/search"
	"github.com/baochat/baochat/internal/session"
	"github.com/baochat/baochat/internal/store"
	"github.com/baochat/baochat/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := telemetry.InitLogger(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Log.Dir)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer shutdownTelemetry()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open conversation store: %v", err)
	}
	defer st.Close()

	searchClient := &http.Client{Timeout: cfg.Search.Timeout}
	resolver := search.NewResolver(logger,
		search.NewHTMLStrategy(searchClient, cfg.Search.UserAgent, ""),
		search.NewLiteStrategy(searchClient, cfg.Search.UserAgent, ""),
	)

	var ollamaOpts []ollama.Option
	if cfg.Ollama.InlineStreamErrors {
		ollamaOpts = append(ollamaOpts, ollama.WithInlineErrors())
	}
	ollamaClient := ollama.NewClient(cfg.Ollama.Host, cfg.Ollama.Model, logger, ollamaOpts...)

	pipeline := chatservice.NewPipeline(st, resolver, chatservice.NewOllamaGenerator(ollamaClient), logger,
		chatservice.WithMaxResults(cfg.Search.MaxResults))
	registry := session.NewRegistry(logger)

	router := handler.NewRouter(st, pipeline, ollamaClient, registry, logger)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Bao Chat backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
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
