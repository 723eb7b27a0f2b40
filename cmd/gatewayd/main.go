package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/daemon"
	"github.com/agentgate/agentgate/internal/logger"
)

func main() {
	var envPath string
	var portFlag int
	var levelFlag string

	root := &cobra.Command{
		Use:   "gatewayd",
		Short: "agentgate — a developer gateway between a browser UI and a coding agent CLI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envPath)
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

	root.Flags().StringVarP(&envPath, "env", "e", "", "path to the YAML gatewayd config file")
	root.Flags().IntVarP(&portFlag, "port", "p", 0, "listen port (overrides config)")
	root.Flags().StringVarP(&levelFlag, "log-level", "l", "", "log level override (debug|info|warn|error)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
