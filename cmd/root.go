/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/cosray/backend/config"
	"github.com/cosray/backend/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const serviceName = "cosray-backend"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cosray",
	Short: "CosRay muon detector backend",
	Long: `CosRay backend: headless authentication, a users API and muon packet
ingestion into Apache IoTDB.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and builds the logger. Configuration
// errors end the process.
func loadConfig() (config.Config, zerolog.Logger) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger.New(serviceName, cfg.Log.Level, cfg.Log.Format)
}
