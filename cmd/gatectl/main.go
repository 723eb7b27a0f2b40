package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/daemon"
	"github.com/agentgate/agentgate/internal/logger"
)

func main() {
	var envPath string

	root := &cobra.Command{
		Use:   "gatectl",
		Short: "gatectl — diagnostics and control for a gatewayd instance",
	}
	root.PersistentFlags().StringVarP(&envPath, "env", "e", "", "path to the YAML gatewayd config file")

	root.AddCommand(doctorCmd(&envPath), serveCmd(&envPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func doctorCmd(envPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the agent binary, config, and a running gatewayd",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envPath)
			if err != nil {
				return err
			}

			fmt.Println("gatectl doctor")
			fmt.Println()

			fmt.Println("Agent binary:")
			if path, err := exec.LookPath(cfg.Agent.Binary); err != nil {
				fmt.Printf("  %-12s not found on PATH\n", cfg.Agent.Binary)
			} else {
				fmt.Printf("  %-12s %s\n", cfg.Agent.Binary, path)
			}
			fmt.Println()

			agentRoot, _ := cfg.AgentRoot()
			toolConfigPath, _ := cfg.ToolConfigPath()
			auditDBPath, _ := cfg.AuditDBPath()
			fmt.Println("Config:")
			fmt.Printf("  dotdir:        %s\n", cfg.Agent.Dotdir)
			fmt.Printf("  agent root:    %s\n", agentRoot)
			fmt.Printf("  tool config:   %s\n", toolConfigPath)
			fmt.Printf("  audit db:      %s\n", auditDBPath)
			fmt.Printf("  port:          %d\n", cfg.Server.Port)
			fmt.Println()

			addr := fmt.Sprintf("http://localhost:%d/healthz", cfg.Server.Port)
			fmt.Println("gatewayd:")
			if reachable(addr) {
				fmt.Printf("  reachable at %s\n", addr)
			} else {
				fmt.Printf("  not reachable at %s\n", addr)
			}

			return nil
		},
	}
}

func serveCmd(envPath *string) *cobra.Command {
	var portFlag int
	var levelFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start gatewayd in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envPath)
			if err != nil {
				return err
			}
			if levelFlag != "" {
				cfg.Logging.Level = levelFlag
			}
			if portFlag != 0 {
				cfg.Server.Port = portFlag
			}
			if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return daemon.Run(cfg)
		},
	}
	cmd.Flags().IntVarP(&portFlag, "port", "p", 0, "listen port (overrides config)")
	cmd.Flags().StringVarP(&levelFlag, "log-level", "l", "", "log level override (debug|info|warn|error)")
	return cmd
}

func reachable(url string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
