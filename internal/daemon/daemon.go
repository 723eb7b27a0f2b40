// Package daemon wires together every gatewayd component (project
// registry, session history, agent runner, filesystem watcher,
// WebSocket gateway, audit trail, metrics, and the sibling HTTP
// surface) and runs the process until it receives a shutdown signal.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/agentgate/agentgate/internal/agentrunner"
	"github.com/agentgate/agentgate/internal/api"
	"github.com/agentgate/agentgate/internal/audit"
	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/envstore"
	"github.com/agentgate/agentgate/internal/gateway"
	"github.com/agentgate/agentgate/internal/history"
	"github.com/agentgate/agentgate/internal/logger"
	"github.com/agentgate/agentgate/internal/metrics"
	"github.com/agentgate/agentgate/internal/project"
	"github.com/agentgate/agentgate/internal/toolconfig"
	"github.com/agentgate/agentgate/internal/watch"
)

// Run builds the full component graph from cfg and serves HTTP until
// SIGINT/SIGTERM.
func Run(cfg *config.Config) error {
	agentRoot, err := cfg.AgentRoot()
	if err != nil {
		return fmt.Errorf("resolve agent root: %w", err)
	}
	if err := os.MkdirAll(agentRoot, 0o755); err != nil {
		return fmt.Errorf("create agent root: %w", err)
	}
	sidecarPath, err := cfg.SidecarPath()
	if err != nil {
		return fmt.Errorf("resolve sidecar path: %w", err)
	}
	toolConfigPath, err := cfg.ToolConfigPath()
	if err != nil {
		return fmt.Errorf("resolve tool config path: %w", err)
	}
	auditDBPath, err := cfg.AuditDBPath()
	if err != nil {
		return fmt.Errorf("resolve audit db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(auditDBPath), 0o755); err != nil {
		return fmt.Errorf("create dotdir: %w", err)
	}

	env := envstore.New()
	registry := project.NewRegistry(agentRoot, sidecarPath)
	hist := history.NewReader(agentRoot)
	toolReader := toolconfig.NewReader(toolConfigPath)

	watcher, err := watch.New(agentRoot, registry)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Stop()
	go watcher.Run()

	runner := agentrunner.New(cfg.Agent.Binary, toolReader.Path(), env)

	auditStore, err := audit.Open(auditDBPath)
	if err != nil {
		return fmt.Errorf("open audit db: %w", err)
	}
	defer auditStore.Close()

	gw := gateway.New(registry, runner, watcher)
	gw.SetAudit(auditStore)
	gw.SetMetrics(metrics.New())

	apiServer := api.New(env, registry, hist, auditStore, toolReader)

	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Router())
	mux.Handle("/ws", gw)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gatewayd listening", "addr", addr, "agent", cfg.Agent.Binary)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("gatewayd shutting down")
		return httpSrv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
