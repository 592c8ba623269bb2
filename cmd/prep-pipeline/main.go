// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the prep-pipeline CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/prep-pipeline/internal/config"
	"github.com/pdiddy/prep-pipeline/internal/runid"
	"github.com/pdiddy/prep-pipeline/internal/secrets"
	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// currentRunID tags narration and cache rows for this invocation.
var currentRunID string

// rootCmd is the base command for the prep-pipeline CLI.
var rootCmd = &cobra.Command{
	Use:   "prep-pipeline",
	Short: "Harvest adverse-event case reports, extract PREP fields, and match literature",
	Long: `prep-pipeline builds a pharmacovigilance report in three stages:

  harvest   search PubMed for case reports and save their abstracts
  extract   pull Patient, Reporter, Event, and Product from each abstract
            with a language model
  match     find the best matching PubMed article for each product and
            event pair and write the final CSV report

Each stage reads the previous stage's file, so stages can be re-run on
their own. The run command executes all three in order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		currentRunID = runid.New()
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./prep-pipeline.yaml or ~/.config/prep-pipeline/prep-pipeline.yaml)")
}

func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	config.SetDefaults(viper.GetViper())

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(config.FileName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "prep-pipeline"))
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig returns the effective configuration for this invocation.
func loadConfig() types.PipelineConfig {
	return config.Load(viper.GetViper(), loadedSecrets)
}

// announceRun prints the run ID to stderr.
func announceRun(stage string) {
	fmt.Fprintf(os.Stderr, "%s run %s\n", stage, currentRunID)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
