// Command crewd is the long-running orchestrator daemon: it builds a Crew
// from configuration, starts any configured channel adapters, serves
// Prometheus metrics, and runs the inbound consumption loop until signaled.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crewcore/crew/pkg/config"
	"github.com/crewcore/crew/pkg/crew"
	"github.com/crewcore/crew/pkg/discord"
	"github.com/crewcore/crew/pkg/logger"
	"github.com/crewcore/crew/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CREW_CONFIG_PATH"))
	if err != nil {
		logger.ErrorCF("crewd", "failed to load config", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	if _, err := tracing.Init(ctx, tracing.Config{Enabled: os.Getenv("CREW_TRACING_ENABLED") == "true"}); err != nil {
		logger.ErrorCF("crewd", "failed to init tracing", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	c, err := crew.New(*cfg)
	if err != nil {
		logger.ErrorCF("crewd", "failed to build crew", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer c.Close()

	if cfg.Discord.Enabled {
		adapter, err := discord.New(cfg.Discord, c.Bus())
		if err != nil {
			logger.ErrorCF("crewd", "failed to build discord adapter", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		if err := adapter.Start(ctx); err != nil {
			logger.ErrorCF("crewd", "failed to start discord adapter", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		defer adapter.Stop()
	}

	metricsSrv := &http.Server{Addr: ":9090", Handler: c.MetricsHandler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WarnCF("crewd", "metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.InfoCF("crewd", "crew started", map[string]interface{}{"workspace": cfg.Workspace})
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		logger.ErrorCF("crewd", "run loop exited with error", map[string]interface{}{"error": err.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.InfoCF("crewd", "crew stopped", nil)
}
