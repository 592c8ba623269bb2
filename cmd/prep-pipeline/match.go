// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/prep-pipeline/internal/cache"
	"github.com/pdiddy/prep-pipeline/internal/config"
	"github.com/pdiddy/prep-pipeline/internal/match"
	"github.com/pdiddy/prep-pipeline/internal/pubmed"
	"github.com/pdiddy/prep-pipeline/internal/records"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match each extraction to a PubMed article and write the CSV report",
	Long: `Match searches PubMed for every record whose PRODUCT and EVENT are both
known, takes the top hit as the matched article, and writes the final report
with one row per record. Records missing either field are reported without
a search. Set match.cache_path (or --cache) to reuse answers across runs.`,
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().String("input", "", "extraction file (default "+config.DefaultExtractionPath+")")
	matchCmd.Flags().String("output", "", "report file (default "+config.DefaultReportPath+")")
	matchCmd.Flags().String("cache", "", "SQLite file caching search answers across runs")
	matchCmd.Flags().Duration("delay", 0, "pause between PubMed searches")

	_ = viper.BindPFlag(config.KeyMatchInput, matchCmd.Flags().Lookup("input"))
	_ = viper.BindPFlag(config.KeyMatchOutput, matchCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag(config.KeyMatchCachePath, matchCmd.Flags().Lookup("cache"))
	_ = viper.BindPFlag(config.KeyMatchDelay, matchCmd.Flags().Lookup("delay"))

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	announceRun("match")

	client := pubmed.NewClient(cfg.PubMed)
	var searcher match.Searcher = client
	if cfg.Match.CachePath != "" {
		store, err := cache.NewStore(cfg.Match.CachePath)
		if err != nil {
			return err
		}
		defer store.Close()
		cs := &cache.CachedSearcher{Store: store, Next: client, RunID: currentRunID, W: os.Stderr}
		defer func() {
			fmt.Fprintf(os.Stderr, "cache: %d hit(s), %d miss(es)\n", cs.Hits, cs.Misses)
		}()
		searcher = cs
	}

	src := &records.JSONLFile{Path: cfg.Match.InputPath}
	sink := records.CSVReport{Path: cfg.Match.OutputPath}

	summary, err := match.BatchMatch(cmd.Context(), searcher, src, sink, cfg.Match, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d search(es) failed, %d line(s) unreadable", summary.SearchFailed, summary.ParseFailed)
	}
	return nil
}
