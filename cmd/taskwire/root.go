package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperengineering/taskwire"
)

var (
	cfgDBPath    string
	cfgProfile   string
	cfgServerURL string
	cfgToken     string
)

var rootCmd = &cobra.Command{
	Use:   "taskwire",
	Short: "Taskwire - offline-first to-do list",
	Long: `Taskwire is a to-do list that works offline first.

Mutations apply to the local task list immediately and queue in a durable
changelog; whenever the server is reachable the pending changes sync up
with at-most-once semantics.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDBPath, "db-path", "", "Path to the local database (default: per-profile)")
	rootCmd.PersistentFlags().StringVar(&cfgProfile, "profile", "", "Local profile to operate against (default: \"default\")")
	rootCmd.PersistentFlags().StringVar(&cfgServerURL, "server-url", "", "URL of the Taskwire server")
	rootCmd.PersistentFlags().StringVar(&cfgToken, "token", "", "Bearer token for server authentication")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(uncompleteCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() taskwire.Config {
	cfg := taskwire.ConfigFromEnv()

	// Flags win over environment
	if cfgDBPath != "" {
		cfg.LocalPath = cfgDBPath
	}
	if cfgProfile != "" {
		cfg.Profile = cfgProfile
	}
	if cfgServerURL != "" {
		cfg.ServerURL = cfgServerURL
	}
	if cfgToken != "" {
		cfg.Token = cfgToken
	}

	return cfg
}

func openClient() (*taskwire.Client, error) {
	return taskwire.New(loadConfig())
}
