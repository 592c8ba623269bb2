// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package match enriches extraction records with the best matching PubMed
// article for each product and event pair and writes the final report.
package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pdiddy/prep-pipeline/internal/httputil"
	"github.com/pdiddy/prep-pipeline/internal/pubmed"
	"github.com/pdiddy/prep-pipeline/internal/records"
	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// DefaultMemoSize bounds the in-run query memo when none is configured.
const DefaultMemoSize = 256

// sleep waits out RequestDelay between searches. Tests replace it.
var sleep = httputil.Sleep

// Searcher runs a single-shot literature query. *pubmed.Client satisfies
// it, as does the persistent cache wrapper.
type Searcher interface {
	Search(ctx context.Context, term string, limit int) ([]pubmed.Article, error)
}

// Result is the outcome of matching one record.
type Result struct {
	Title string
	PMID  string
	Found bool
}

// Summary holds counts from a batch match run.
type Summary struct {
	Records      int
	Matched      int
	NoMatch      int
	Skipped      int
	SearchFailed int
	ParseFailed  int
	MemoHits     int
}

// HasFailures reports whether any search or input line failed.
func (s Summary) HasFailures() bool {
	return s.SearchFailed > 0 || s.ParseFailed > 0
}

// BuildQuery combines product and event as required title/abstract terms.
func BuildQuery(product, event string) string {
	return fmt.Sprintf(`("%s"[Title/Abstract]) AND ("%s"[Title/Abstract])`,
		escapeTerm(product), escapeTerm(event))
}

func escapeTerm(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), `"`, "")
}

// Matcher answers match queries through a Searcher, remembering answers for
// identical queries within one run.
type Matcher struct {
	searcher Searcher
	limit    int
	memo     *lru.Cache[string, Result]
}

// NewMatcher returns a Matcher over searcher. cfg.MaxResults is the number
// of articles requested per query (default 1); only the first is used.
func NewMatcher(searcher Searcher, cfg types.MatchConfig) (*Matcher, error) {
	size := cfg.MemoSize
	if size <= 0 {
		size = DefaultMemoSize
	}
	memo, err := lru.New[string, Result](size)
	if err != nil {
		return nil, fmt.Errorf("creating query memo: %w", err)
	}
	limit := cfg.MaxResults
	if limit <= 0 {
		limit = 1
	}
	return &Matcher{searcher: searcher, limit: limit, memo: memo}, nil
}

// Lookup returns the match for query. The second return value reports a
// memo hit. Search errors are returned and never memoized.
func (m *Matcher) Lookup(ctx context.Context, query string) (Result, bool, error) {
	if res, ok := m.memo.Get(query); ok {
		return res, true, nil
	}
	articles, err := m.searcher.Search(ctx, query, m.limit)
	if err != nil {
		return Result{}, false, err
	}
	res := Result{Title: types.NoMatchingArticle, PMID: types.NotApplicable}
	if len(articles) > 0 {
		res = Result{Title: articles[0].Title, PMID: articles[0].PMID, Found: true}
	}
	m.memo.Add(query, res)
	return res, false, nil
}

// searchable reports whether a record carries both terms needed to search.
func searchable(rec types.Record) bool {
	return rec.Resolved(types.FieldEvent) && rec.Resolved(types.FieldProduct)
}

// BatchMatch reads every record from src, fills the matched title and PubMed
// ID columns, and writes the report to sink. Records missing EVENT or
// PRODUCT are emitted without a search. A failed search marks that record
// "Search failed." and the batch continues. When no record was read the
// sink is never called.
func BatchMatch(ctx context.Context, searcher Searcher, src records.RecordSource, sink records.ReportSink, cfg types.MatchConfig, w io.Writer) (Summary, error) {
	var summary Summary

	entries, err := src.ReadRecords()
	if err != nil {
		if errors.Is(err, types.ErrMissingInput) {
			fmt.Fprintf(w, "Error: input not found (%v). Run 'prep-pipeline extract' first.\n", err)
		}
		return summary, err
	}

	m, err := NewMatcher(searcher, cfg)
	if err != nil {
		return summary, err
	}

	fmt.Fprintf(w, "--- Starting article matching for %d records ---\n", len(entries))

	var rows []types.Record
	searched := 0
	for _, e := range entries {
		if e.Err != nil {
			fmt.Fprintf(w, "   -> Skipping line %d: %v\n", e.Line, e.Err)
			summary.ParseFailed++
			continue
		}
		rec := e.Record
		summary.Records++

		if !searchable(rec) {
			fmt.Fprintf(w, "Record %d: missing EVENT or PRODUCT, search skipped.\n", e.Line)
			rec[types.FieldMatchedTitle] = types.SearchNotPossible
			rec[types.FieldMatchedPMID] = types.NotApplicable
			summary.Skipped++
			rows = append(rows, rec)
			continue
		}

		query := BuildQuery(rec[types.FieldProduct], rec[types.FieldEvent])
		if _, ok := m.memo.Peek(query); !ok && searched > 0 {
			if err := sleep(ctx, cfg.RequestDelay); err != nil {
				return summary, err
			}
		}

		fmt.Fprintf(w, "Record %d: searching PubMed for %s\n", e.Line, query)
		res, hit, err := m.Lookup(ctx, query)
		if !hit {
			searched++
		}
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			fmt.Fprintf(w, "   -> Search failed: %v\n", err)
			rec[types.FieldMatchedTitle] = types.SearchFailed
			rec[types.FieldMatchedPMID] = types.NotApplicable
			summary.SearchFailed++
		case res.Found:
			fmt.Fprintf(w, "   -> Found PMID %s\n", res.PMID)
			rec[types.FieldMatchedTitle] = res.Title
			rec[types.FieldMatchedPMID] = res.PMID
			summary.Matched++
		default:
			fmt.Fprintln(w, "   -> No matching article found.")
			rec[types.FieldMatchedTitle] = res.Title
			rec[types.FieldMatchedPMID] = res.PMID
			summary.NoMatch++
		}
		if hit {
			summary.MemoHits++
		}
		rows = append(rows, rec)
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "\nNo records to report; nothing produced.")
		return summary, nil
	}

	if err := sink.WriteReport(rows); err != nil {
		return summary, fmt.Errorf("writing report: %w", err)
	}

	fmt.Fprintf(w, "\n--- Matching complete: %d records, %d matched, %d no match, %d skipped, %d search failures ---\n",
		summary.Records, summary.Matched, summary.NoMatch, summary.Skipped, summary.SearchFailed)
	return summary, nil
}
