package main

import (
	"fmt"
	"os"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/config"
	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load and validate the config file, then exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (listen %s, backend %s, session store %s, rate limit %d/%ds via %s)\n",
			path, cfg.Server.Listen, cfg.Backend.BaseURL, cfg.Session.Store,
			cfg.RateLimit.Max, cfg.RateLimit.WindowSec, cfg.RateLimit.Backend)
		return nil
	},
}

// resolveConfigPath picks the config file: flag > FRONTEND_CONFIG > ./config.yaml > ./config.example.yaml
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("FRONTEND_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml"
	}
	return "./config.example.yaml"
}

func loadConfig() (string, *config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return path, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return path, nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return path, cfg, nil
}
