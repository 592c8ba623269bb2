// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package harvest collects case-report abstracts from PubMed. It runs one
// history-backed ESearch, pages through the result set with EFetch, and
// writes every abstract it finds to an AbstractSink in a single write.
package harvest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdiddy/prep-pipeline/internal/httputil"
	"github.com/pdiddy/prep-pipeline/internal/pubmed"
	"github.com/pdiddy/prep-pipeline/internal/records"
	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// DefaultQuery finds adverse-drug-reaction case reports.
const DefaultQuery = "(adverse drug reaction[Title/Abstract]) AND (case report[Title/Abstract])"

const (
	defaultBatchSize   = 200
	defaultMaxAttempts = 3
	defaultBackoff     = 5 * time.Second
)

// API is the part of the PubMed client the harvester needs.
type API interface {
	ESearch(ctx context.Context, term string, retmax int, useHistory bool) (pubmed.SearchResult, error)
	EFetchHistory(ctx context.Context, webEnv, queryKey string, start, limit int) ([]pubmed.Article, error)
}

// Config is the resolved harvest configuration.
type Config struct {
	types.HarvestConfig

	// APIKey is checked before any request is made.
	APIKey string

	// Retry wraps each batch fetch.
	Retry httputil.RetryPolicy

	// Sleep waits out BatchDelay between batches. Nil means httputil.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewConfig resolves defaults for a pipeline configuration.
func NewConfig(pc types.PipelineConfig) Config {
	hc := pc.Harvest
	if hc.Query == "" {
		hc.Query = DefaultQuery
	}
	if hc.BatchSize <= 0 {
		hc.BatchSize = defaultBatchSize
	}
	if hc.Retry.MaxAttempts <= 0 {
		hc.Retry = types.RetryConfig{MaxAttempts: defaultMaxAttempts, Backoff: defaultBackoff}
	}
	return Config{
		HarvestConfig: hc,
		APIKey:        pc.PubMed.APIKey,
		Retry:         httputil.PolicyFromConfig(hc.Retry),
		Sleep:         httputil.Sleep,
	}
}

// Summary describes a harvest run.
type Summary struct {
	Found         int
	Batches       int
	FailedBatches int
	Abstracts     int
}

// HasFailures reports whether any batch was abandoned.
func (s Summary) HasFailures() bool {
	return s.FailedBatches > 0
}

// Harvest searches PubMed and writes up to cfg.MaxCount abstracts to sink.
// A batch whose fetch keeps failing is abandoned and the run moves on; the
// abstracts from other batches are still written. A missing or placeholder
// API key fails with types.ErrConfiguration before any request is sent, and
// a failed search leaves the sink untouched.
func Harvest(ctx context.Context, api API, sink records.AbstractSink, cfg Config, w io.Writer) (Summary, error) {
	var summary Summary

	if types.IsPlaceholder(cfg.APIKey) {
		fmt.Fprintln(w, "Error: NCBI API key is not set.")
		return summary, fmt.Errorf("%w: NCBI API key is missing or a placeholder", types.ErrConfiguration)
	}
	if cfg.MaxCount <= 0 {
		return summary, fmt.Errorf("%w: max count must be positive, got %d", types.ErrConfiguration, cfg.MaxCount)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	fmt.Fprintf(w, "Searching PubMed with query: %q\n", cfg.Query)
	res, err := api.ESearch(ctx, cfg.Query, cfg.MaxCount, true)
	if err != nil {
		fmt.Fprintf(w, "Error during ESearch: %v\n", err)
		return summary, fmt.Errorf("searching PubMed: %w", err)
	}
	summary.Found = res.Count
	fmt.Fprintf(w, "Found %d articles. Will fetch details for up to %d.\n", res.Count, cfg.MaxCount)

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = httputil.Sleep
	}

	limit := min(res.Count, cfg.MaxCount)
	var abstracts []string

	for start := 0; start < limit; start += batchSize {
		if start > 0 {
			if err := sleep(ctx, cfg.BatchDelay); err != nil {
				return summary, err
			}
		}
		summary.Batches++
		size := min(batchSize, limit-start)

		fmt.Fprintf(w, "\n[+] Fetching batch starting at article %d...\n", start)
		batch, err := fetchBatch(ctx, api, res, start, size, cfg.Retry, w)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			fmt.Fprintln(w, "  [!] All retry attempts failed for this batch. Moving on.")
			summary.FailedBatches++
			continue
		}
		abstracts = append(abstracts, batch...)
		fmt.Fprintf(w, "  [+] Finished batch: %d abstracts.\n", len(batch))
	}

	if len(abstracts) > cfg.MaxCount {
		abstracts = abstracts[:cfg.MaxCount]
	}
	summary.Abstracts = len(abstracts)

	if err := sink.WriteAbstracts(abstracts); err != nil {
		fmt.Fprintf(w, "Error writing abstracts: %v\n", err)
		return summary, fmt.Errorf("writing abstracts: %w", err)
	}
	fmt.Fprintf(w, "\nSuccess! Saved %d abstracts (%d of %d batches failed).\n",
		summary.Abstracts, summary.FailedBatches, summary.Batches)
	return summary, nil
}

// fetchBatch fetches one page of records under the retry policy and returns
// the normalized abstracts it contains.
func fetchBatch(ctx context.Context, api API, res pubmed.SearchResult, start, size int, policy httputil.RetryPolicy, w io.Writer) ([]string, error) {
	var articles []pubmed.Article
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		articles, err = api.EFetchHistory(ctx, res.WebEnv, res.QueryKey, start, size)
		return err
	}, func(attempt, total int, err error) {
		fmt.Fprintf(w, "  [!] Attempt %d/%d failed: %v\n", attempt, total, err)
	})
	if err != nil {
		return nil, err
	}

	var abstracts []string
	for _, a := range articles {
		if text := Normalize(a.Abstract); text != "" {
			abstracts = append(abstracts, text)
		}
	}
	return abstracts, nil
}

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Normalize collapses embedded line breaks to spaces and trims the result,
// so an abstract always fits on one line.
func Normalize(text string) string {
	return strings.TrimSpace(newlineReplacer.Replace(text))
}
