package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bpfgate/bpfgate/internal/api"
	"github.com/bpfgate/bpfgate/internal/config"
	"github.com/bpfgate/bpfgate/internal/engine"
	"github.com/bpfgate/bpfgate/internal/exec"
	"github.com/bpfgate/bpfgate/internal/storage"
	"github.com/bpfgate/bpfgate/internal/store"
	"github.com/bpfgate/bpfgate/internal/update"
)

func main() {
	cfgPath := flag.String("config", "", "path to bpfgate.yaml")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if images, err := st.ListImages(ctx); err == nil {
		logger.Info("image store opened", "path", cfg.DBPath, "provisioned_slots", len(images))
	}

	locator := storage.NewLocator(st, cfg.Slots)
	eng := engine.New(cfg.StackBytes, cfg.Engine.BranchBudget)

	upd := update.New(st, cfg.Update.TargetSlot,
		time.Duration(cfg.Update.FetchTimeoutMs)*time.Millisecond,
		cfg.Update.MaxImageBytes, cfg.Update.QueueSize, logger)
	go upd.Run(ctx)

	pool := exec.NewManager(locator, cfg.ExecPool.Workers, cfg.ExecPool.QueueSize,
		cfg.ExecPool.History, cfg.StackBytes, cfg.Engine.BranchBudget, logger)
	pool.Start(ctx)

	srv, err := api.NewServer(cfg, api.NewStorageLocator(locator), eng, upd, pool, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Listen, "board", cfg.Board, "slots", cfg.Slots)
	fmt.Fprintf(os.Stderr, "\n  bpfgate ready at http://%s\n\n", cfg.Listen)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
