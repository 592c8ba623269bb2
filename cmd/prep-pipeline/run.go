// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/prep-pipeline/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run harvest, extract, and match in sequence",
	Long: `Run executes the three stages in order using the configured paths. Each
stage reads what the previous stage just wrote. With --in-memory the
intermediate files are skipped and only the final report is written.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().Bool("in-memory", false, "pass data between stages in memory instead of files")

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	inMemory, _ := cmd.Flags().GetBool("in-memory")

	cfg := loadConfig()
	announceRun("pipeline")

	st, err := pipeline.Build(cfg, currentRunID, os.Stderr)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := pipeline.Run(cmd.Context(), st, cfg, pipeline.Options{InMemory: inMemory}, os.Stdout)
	if err != nil {
		return err
	}

	fmt.Printf("\nPipeline finished: %d abstracts, %d records, %d report rows (%d matched)\n",
		res.Harvest.Abstracts, res.Extract.Extracted, res.Match.Records, res.Match.Matched)
	if res.HasFailures() {
		return fmt.Errorf("pipeline completed with failures: %d batch(es), %d abstract(s), %d search(es)",
			res.Harvest.FailedBatches, res.Extract.Failed, res.Match.SearchFailed)
	}
	return nil
}
