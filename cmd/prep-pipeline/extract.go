// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/prep-pipeline/internal/config"
	"github.com/pdiddy/prep-pipeline/internal/extract"
	"github.com/pdiddy/prep-pipeline/internal/records"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract PREP fields from harvested abstracts with a language model",
	Long: `Extract sends each abstract to the configured model (a local Ollama model
by default) and writes one JSON object per line with the PATIENT, REPORTER,
EVENT, and PRODUCT fields plus the original text. Fields the model could not
determine are recorded as "Not found". Abstracts whose extraction fails are
skipped.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("backend", "", "model backend: ollama, openrouter, or anthropic (default ollama)")
	extractCmd.Flags().String("model", "", "model identifier (default "+extract.DefaultModel+")")
	extractCmd.Flags().Int("max-count", 0, "maximum number of input lines to consider (default 1000)")
	extractCmd.Flags().Duration("delay", 0, "pause between model calls (default 500ms)")
	extractCmd.Flags().String("input", "", "abstracts file (default "+config.DefaultAbstractsPath+")")
	extractCmd.Flags().String("output", "", "extraction file (default "+config.DefaultExtractionPath+")")

	_ = viper.BindPFlag(config.KeyBackend, extractCmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag(config.KeyModel, extractCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag(config.KeyExtractMaxCount, extractCmd.Flags().Lookup("max-count"))
	_ = viper.BindPFlag(config.KeyExtractDelay, extractCmd.Flags().Lookup("delay"))
	_ = viper.BindPFlag(config.KeyExtractInput, extractCmd.Flags().Lookup("input"))
	_ = viper.BindPFlag(config.KeyExtractOutput, extractCmd.Flags().Lookup("output"))

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	announceRun("extract")

	backend, err := extract.NewBackend(cfg.Extraction.AIConfig, nil)
	if err != nil {
		return err
	}

	src := records.AbstractFile{Path: cfg.Extraction.InputPath}
	sink := &records.JSONLFile{Path: cfg.Extraction.OutputPath}

	summary, err := extract.BatchExtract(cmd.Context(), backend, src, sink, cfg.Extraction, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d abstract(s) failed extraction", summary.Failed)
	}
	return nil
}
