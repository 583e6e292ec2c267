package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"colorflow/internal/agent"
	"colorflow/internal/config"
	"colorflow/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Agent.Site == "" || cfg.Agent.WatchDir == "" || cfg.Agent.OrchestratorURL == "" {
		log.Fatal("agent requires site, watch_dir, and orchestrator_url in the [agent] config section")
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	a := agent.New(cfg, logger)
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agent exited", logging.Error(err))
	}
}
