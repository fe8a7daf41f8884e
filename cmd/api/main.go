package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/punchamoorthee/classfund/internal/api"
	"github.com/punchamoorthee/classfund/internal/config"
	"github.com/punchamoorthee/classfund/internal/extractor"
	"github.com/punchamoorthee/classfund/internal/proofs"
	"github.com/punchamoorthee/classfund/internal/queue"
	"github.com/punchamoorthee/classfund/internal/service"
	"github.com/punchamoorthee/classfund/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Layers
	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("store unavailable", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ps, err := openProofs(ctx, cfg)
	if err != nil {
		slog.Error("proof storage unavailable", "backend", cfg.ProofBackend, "error", err)
		os.Exit(1)
	}

	q, err := openQueue(ctx, cfg)
	if err != nil {
		slog.Error("queue unavailable", "backend", cfg.QueueBackend, "error", err)
		os.Exit(1)
	}

	ex := extractor.New(cfg.ExtractorURL, cfg.ExtractorTimeout)
	engine := service.NewEngine(st, ex, ps, cfg.ExtractorTimeout, logger.With("component", "engine"))

	var enqueuer service.Enqueuer
	var workers sync.WaitGroup
	if cfg.ExtractorURL != "" {
		enqueuer = q
		pool := queue.NewPool(q, engine.Reconcile, cfg.WorkerCount, logger.With("component", "worker"))
		workers.Add(1)
		go func() {
			defer workers.Done()
			pool.Run(ctx)
		}()
	} else {
		slog.Warn("EXTRACTOR_URL not set, payments wait for manual review")
	}

	handler := api.NewHandler(
		service.NewPaymentService(st, ps, enqueuer, engine),
		service.NewSummaryService(st),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "env", cfg.Env, "port", cfg.Port, "store", cfg.StoreBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	workers.Wait()
	slog.Info("server exited")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreBackend == "memory" {
		m := store.NewMemory()
		m.Load(store.DemoFixtures())
		slog.Warn("using in-memory store with demo data")
		return m, nil
	}
	pg, err := store.NewPostgres(ctx, cfg.DBSource)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

func openProofs(ctx context.Context, cfg *config.Config) (proofs.Store, error) {
	if cfg.ProofBackend == "azure" {
		return proofs.NewBlob(ctx, cfg.BlobServiceURL, cfg.ProofContainer)
	}
	return proofs.NewLocal(cfg.ProofDir)
}

func openQueue(ctx context.Context, cfg *config.Config) (queue.Queue, error) {
	if cfg.QueueBackend == "azure" {
		return queue.NewAzure(ctx, cfg.QueueServiceURL, cfg.QueueName, cfg.QueueMaxAttempts)
	}
	return queue.NewMemory(1024, cfg.QueueMaxAttempts), nil
}
