package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"colorflow/internal/config"
	"colorflow/internal/lifecycle"
	"colorflow/internal/logging"
	"colorflow/internal/notifications"
	"colorflow/internal/orchestrator"
	"colorflow/internal/registry"
	"colorflow/internal/server"
	"colorflow/internal/storagefs"
	"colorflow/internal/store"
	"colorflow/internal/tasks"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return
	}

	notifier := notifications.NewService(cfg)
	engine := lifecycle.NewWithNotifier(st, notifier, logger)
	coord := tasks.NewCoordinator(st, storagefs.New(cfg), notifier, cfg, logger)
	sites := registry.New(st, cfg, logger)
	srv := server.New(cfg, st, engine, coord, sites, logger)

	d, err := orchestrator.New(cfg, st, srv, coord, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = st.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("colorflowd shutting down")
}
