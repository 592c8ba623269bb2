// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/prep-pipeline/internal/config"
	"github.com/pdiddy/prep-pipeline/internal/harvest"
	"github.com/pdiddy/prep-pipeline/internal/pubmed"
	"github.com/pdiddy/prep-pipeline/internal/records"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Search PubMed for case reports and save their abstracts",
	Long: `Harvest runs the configured PubMed query, pages through the matching
records in batches, and writes one abstract per line. A batch that keeps
failing after its retries is skipped; abstracts from the other batches are
still saved. Requires an NCBI API key.`,
	RunE: runHarvest,
}

func init() {
	harvestCmd.Flags().String("query", "", "PubMed query (default: adverse drug reaction case reports)")
	harvestCmd.Flags().Int("max-count", 0, "maximum number of abstracts to save (default 1000)")
	harvestCmd.Flags().Int("batch-size", 0, "records per EFetch request (default 200)")
	harvestCmd.Flags().String("output", "", "abstracts file (default "+config.DefaultAbstractsPath+")")

	_ = viper.BindPFlag(config.KeyHarvestQuery, harvestCmd.Flags().Lookup("query"))
	_ = viper.BindPFlag(config.KeyHarvestMaxCount, harvestCmd.Flags().Lookup("max-count"))
	_ = viper.BindPFlag(config.KeyHarvestBatchSize, harvestCmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag(config.KeyHarvestOutput, harvestCmd.Flags().Lookup("output"))

	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	announceRun("harvest")

	client := pubmed.NewClient(cfg.PubMed)
	sink := records.AbstractFile{Path: cfg.Harvest.OutputPath}

	summary, err := harvest.Harvest(cmd.Context(), client, sink, harvest.NewConfig(cfg), os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d batch(es) failed harvesting", summary.FailedBatches)
	}
	return nil
}
