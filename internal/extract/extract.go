// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract pulls the four PREP fields (patient, reporter, event,
// product) out of case-report abstracts with a language model and writes
// one record per abstract.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/prep-pipeline/internal/httputil"
	"github.com/pdiddy/prep-pipeline/internal/records"
	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// AIBackend abstracts the language model so tests can supply a mock.
// Complete sends one prompt and returns the raw text reply.
type AIBackend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// sleep waits out RequestDelay between model calls. Tests replace it.
var sleep = httputil.Sleep

// BatchSummary holds counts from a batch extraction run.
type BatchSummary struct {
	Extracted int
	Failed    int
	Blank     int
}

// Total returns the number of non-blank abstracts processed.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Failed
}

// HasFailures reports whether any abstract was dropped.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// ExtractRecord runs the model on one abstract and returns the parsed
// record with every PREP field present and the source text under
// "Original Description".
func ExtractRecord(ctx context.Context, backend AIBackend, description string) (types.Record, error) {
	prompt, err := RenderPrompt(description)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	raw, err := backend.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	rec, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}
	rec.FillMissing()
	rec[types.FieldOriginalDescription] = description
	return rec, nil
}

// BatchExtract reads abstracts from src and writes one record per
// successful extraction to sink. Lines are counted by position: the run
// stops at line index cfg.MaxCount even when some of the earlier lines were
// blank. A failed model call or unparseable reply drops that abstract and
// the batch continues. A missing input fails with types.ErrMissingInput
// before the sink is opened.
func BatchExtract(ctx context.Context, backend AIBackend, src records.AbstractSource, sink records.RecordSink, cfg types.ExtractionConfig, w io.Writer) (BatchSummary, error) {
	var summary BatchSummary

	lines, err := src.ReadAbstracts()
	if err != nil {
		if errors.Is(err, types.ErrMissingInput) {
			fmt.Fprintf(w, "Error: input not found (%v). Run 'prep-pipeline harvest' first.\n", err)
		}
		return summary, err
	}

	if err := sink.Open(); err != nil {
		return summary, err
	}
	defer sink.Close()

	fmt.Fprintf(w, "--- Starting PREP extraction of %d lines ---\n", len(lines))

	for i, line := range lines {
		if cfg.MaxCount > 0 && i >= cfg.MaxCount {
			break
		}
		description := strings.TrimSpace(line)
		if description == "" {
			summary.Blank++
			continue
		}

		if summary.Total() > 0 {
			if err := sleep(ctx, cfg.RequestDelay); err != nil {
				return summary, err
			}
		}

		fmt.Fprintf(w, "\nProcessing abstract #%d...\n", i+1)
		rec, err := ExtractRecord(ctx, backend, description)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			fmt.Fprintf(w, "   -> Failed to extract PREP data: %v\n", err)
			summary.Failed++
			continue
		}

		if err := sink.WriteRecord(rec); err != nil {
			return summary, fmt.Errorf("saving record for abstract #%d: %w", i+1, err)
		}
		fmt.Fprintln(w, "   -> Success. Saved to intermediate output.")
		summary.Extracted++
	}

	if err := sink.Close(); err != nil {
		return summary, err
	}

	fmt.Fprintf(w, "\n--- Extraction complete: %d extracted, %d failed, %d blank ---\n",
		summary.Extracted, summary.Failed, summary.Blank)
	return summary, nil
}
