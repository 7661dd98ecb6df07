// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/staffmanagement/authservice/internal/config"
	"github.com/staffmanagement/authservice/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "staff-auth",
	Short: "staff-auth is the authorization gate of the staff management app",
	Long: `staff-auth admits federated logins by group allow-list, keeps local roles and the
remote group directory in sync and records security events in the audit log.`,
	Args: cobra.OnlyValidArgs,
}

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./etc/", "Directory containing main.toml")
}

var configPath string // Path to the configuration directory

// loadConfig reads the configuration and initialises the global logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.ReadConfig(configPath)
	if err != nil {
		return cfg, err
	}

	if err = logger.Init(cfg.Log); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
