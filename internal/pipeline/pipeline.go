// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline wires the harvest, extract, and match stages together,
// either through the configured files or entirely in memory.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/prep-pipeline/internal/cache"
	"github.com/pdiddy/prep-pipeline/internal/extract"
	"github.com/pdiddy/prep-pipeline/internal/harvest"
	"github.com/pdiddy/prep-pipeline/internal/match"
	"github.com/pdiddy/prep-pipeline/internal/pubmed"
	"github.com/pdiddy/prep-pipeline/internal/records"
	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// Stages holds the external collaborators of a run.
type Stages struct {
	PubMed   harvest.API
	Backend  extract.AIBackend
	Searcher match.Searcher

	closers []io.Closer
}

// Close releases resources opened by Build.
func (s *Stages) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// Build constructs live stages from cfg: a PubMed client shared by harvest
// and match, the configured model backend, and, when cfg.Match.CachePath is
// set, a SQLite cache in front of match searches tagged with runID.
func Build(cfg types.PipelineConfig, runID string, w io.Writer) (*Stages, error) {
	client := pubmed.NewClient(cfg.PubMed)

	backend, err := extract.NewBackend(cfg.Extraction.AIConfig, &http.Client{})
	if err != nil {
		return nil, err
	}

	st := &Stages{PubMed: client, Backend: backend, Searcher: client}
	if cfg.Match.CachePath != "" {
		store, err := cache.NewStore(cfg.Match.CachePath)
		if err != nil {
			return nil, fmt.Errorf("opening match cache: %w", err)
		}
		st.closers = append(st.closers, store)
		st.Searcher = &cache.CachedSearcher{Store: store, Next: client, RunID: runID, W: w}
	}
	return st, nil
}

// Options selects how stages are connected.
type Options struct {
	// InMemory passes abstracts and records between stages without writing
	// the intermediate files. The final report is still written.
	InMemory bool
}

// Result collects the per-stage summaries of a run.
type Result struct {
	Harvest harvest.Summary
	Extract extract.BatchSummary
	Match   match.Summary
}

// HasFailures reports whether any stage dropped work.
func (r Result) HasFailures() bool {
	return r.Harvest.HasFailures() || r.Extract.HasFailures() || r.Match.HasFailures()
}

// Run executes harvest, extract, and match in order. In file mode each stage
// reads what the previous stage wrote, so extract reads the harvest output
// path and match reads the extraction output path regardless of their own
// configured inputs. The first stage error stops the run.
func Run(ctx context.Context, st *Stages, cfg types.PipelineConfig, opts Options, w io.Writer) (Result, error) {
	var res Result

	var (
		abstractSink records.AbstractSink
		abstractSrc  records.AbstractSource
		recordSink   records.RecordSink
		recordSrc    records.RecordSource
	)
	if opts.InMemory {
		abstracts := &records.MemoryAbstracts{}
		recs := &records.MemoryRecords{}
		abstractSink, abstractSrc = abstracts, abstracts
		recordSink, recordSrc = recs, recs
	} else {
		abstracts := records.AbstractFile{Path: cfg.Harvest.OutputPath}
		recs := &records.JSONLFile{Path: cfg.Extraction.OutputPath}
		abstractSink, abstractSrc = abstracts, abstracts
		recordSink, recordSrc = recs, recs
	}
	report := records.CSVReport{Path: cfg.Match.OutputPath}

	fmt.Fprintln(w, "=== Stage 1/3: harvest ===")
	hs, err := harvest.Harvest(ctx, st.PubMed, abstractSink, harvest.NewConfig(cfg), w)
	res.Harvest = hs
	if err != nil {
		return res, fmt.Errorf("harvest: %w", err)
	}

	fmt.Fprintln(w, "\n=== Stage 2/3: extract ===")
	es, err := extract.BatchExtract(ctx, st.Backend, abstractSrc, recordSink, cfg.Extraction, w)
	res.Extract = es
	if err != nil {
		return res, fmt.Errorf("extract: %w", err)
	}

	fmt.Fprintln(w, "\n=== Stage 3/3: match ===")
	ms, err := match.BatchMatch(ctx, st.Searcher, recordSrc, report, cfg.Match, w)
	res.Match = ms
	if err != nil {
		return res, fmt.Errorf("match: %w", err)
	}
	return res, nil
}
