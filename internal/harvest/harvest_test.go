// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/prep-pipeline/internal/httputil"
	"github.com/pdiddy/prep-pipeline/internal/pubmed"
	"github.com/pdiddy/prep-pipeline/internal/records"
	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// --- fake API ---

type fetchCall struct {
	start, limit int
}

type fakeAPI struct {
	count      int
	searchErr  error
	searches   int
	fetches    []fetchCall
	failStarts map[int]int // start offset -> number of failures before success (<0 = always)
	perBatch   func(start, limit int) []pubmed.Article
}

func (f *fakeAPI) ESearch(_ context.Context, _ string, _ int, useHistory bool) (pubmed.SearchResult, error) {
	f.searches++
	if f.searchErr != nil {
		return pubmed.SearchResult{}, f.searchErr
	}
	if !useHistory {
		return pubmed.SearchResult{}, errors.New("history expected")
	}
	return pubmed.SearchResult{Count: f.count, WebEnv: "MCID_1", QueryKey: "1"}, nil
}

func (f *fakeAPI) EFetchHistory(_ context.Context, webEnv, queryKey string, start, limit int) ([]pubmed.Article, error) {
	f.fetches = append(f.fetches, fetchCall{start, limit})
	if webEnv != "MCID_1" || queryKey != "1" {
		return nil, errors.New("wrong history handle")
	}
	if n, ok := f.failStarts[start]; ok && n != 0 {
		if n > 0 {
			f.failStarts[start] = n - 1
		}
		return nil, fmt.Errorf("%w: connection reset", types.ErrTransport)
	}
	if f.perBatch != nil {
		return f.perBatch(start, limit), nil
	}
	articles := make([]pubmed.Article, limit)
	for i := range articles {
		articles[i] = pubmed.Article{
			PMID:     fmt.Sprintf("%d", start+i),
			Abstract: fmt.Sprintf("abstract %d\nsecond line", start+i),
		}
	}
	return articles, nil
}

func (f *fakeAPI) fetchesAt(start int) int {
	n := 0
	for _, c := range f.fetches {
		if c.start == start {
			n++
		}
	}
	return n
}

func testConfig(maxCount int) Config {
	return Config{
		HarvestConfig: types.HarvestConfig{
			Query:     DefaultQuery,
			MaxCount:  maxCount,
			BatchSize: 2,
		},
		APIKey: "real-key",
		Retry:  httputil.RetryPolicy{MaxAttempts: 3, Backoff: httputil.FixedBackoff(0)},
	}
}

// --- tests ---

func TestHarvestPaginatesAndNormalizes(t *testing.T) {
	api := &fakeAPI{count: 100}
	sink := &records.MemoryAbstracts{}
	var out bytes.Buffer

	summary, err := Harvest(context.Background(), api, sink, testConfig(5), &out)
	require.NoError(t, err)

	assert.Equal(t, []fetchCall{{0, 2}, {2, 2}, {4, 1}}, api.fetches)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 5, summary.Abstracts)
	assert.Equal(t, 100, summary.Found)
	assert.False(t, summary.HasFailures())
	require.Len(t, sink.Lines, 5)
	assert.Equal(t, "abstract 0 second line", sink.Lines[0])
	assert.Equal(t, "abstract 4 second line", sink.Lines[4])
	assert.Contains(t, out.String(), "Found 100 articles")
}

func TestHarvestStopsAtResultCount(t *testing.T) {
	api := &fakeAPI{count: 3}
	sink := &records.MemoryAbstracts{}

	summary, err := Harvest(context.Background(), api, sink, testConfig(1000), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []fetchCall{{0, 2}, {2, 1}}, api.fetches)
	assert.Equal(t, 3, summary.Abstracts)
}

func TestHarvestSkipsArticlesWithoutAbstract(t *testing.T) {
	api := &fakeAPI{
		count: 3,
		perBatch: func(start, limit int) []pubmed.Article {
			return []pubmed.Article{
				{PMID: "1", Abstract: "  kept  "},
				{PMID: "2"},
				{PMID: "3", Abstract: " \n "},
			}
		},
	}
	cfg := testConfig(3)
	cfg.BatchSize = 200
	sink := &records.MemoryAbstracts{}

	summary, err := Harvest(context.Background(), api, sink, cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, sink.Lines)
	assert.Equal(t, 1, summary.Abstracts)
}

func TestHarvestAbandonsBatchAfterRetries(t *testing.T) {
	api := &fakeAPI{count: 6, failStarts: map[int]int{2: -1}}
	sink := &records.MemoryAbstracts{}
	var out bytes.Buffer

	summary, err := Harvest(context.Background(), api, sink, testConfig(6), &out)
	require.NoError(t, err)

	assert.Equal(t, 3, api.fetchesAt(2), "failing batch gets exactly three attempts")
	assert.Equal(t, 1, api.fetchesAt(4), "later batches still run")
	assert.Equal(t, 1, summary.FailedBatches)
	assert.True(t, summary.HasFailures())
	assert.Equal(t, []string{
		"abstract 0 second line", "abstract 1 second line",
		"abstract 4 second line", "abstract 5 second line",
	}, sink.Lines)
	assert.Contains(t, out.String(), "Attempt 3/3 failed")
	assert.Contains(t, out.String(), "Moving on")
}

// pauseRecorder records requested pauses instead of sleeping.
type pauseRecorder struct {
	pauses []time.Duration
}

func (p *pauseRecorder) sleep(ctx context.Context, d time.Duration) error {
	p.pauses = append(p.pauses, d)
	return ctx.Err()
}

func TestHarvestPausesBetweenBatches(t *testing.T) {
	api := &fakeAPI{count: 8, failStarts: map[int]int{2: -1}}
	rec := &pauseRecorder{}
	cfg := testConfig(8)
	cfg.BatchDelay = time.Second
	cfg.Sleep = rec.sleep

	summary, err := Harvest(context.Background(), api, &records.MemoryAbstracts{}, cfg, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Batches)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, rec.pauses,
		"one pause between each pair of batches, including after the abandoned one")
}

func TestHarvestNoPauseForSingleBatch(t *testing.T) {
	rec := &pauseRecorder{}
	cfg := testConfig(2)
	cfg.BatchDelay = time.Second
	cfg.Sleep = rec.sleep

	_, err := Harvest(context.Background(), &fakeAPI{count: 2}, &records.MemoryAbstracts{}, cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Empty(t, rec.pauses)
}

func TestHarvestRecoversWithinRetryBudget(t *testing.T) {
	api := &fakeAPI{count: 2, failStarts: map[int]int{0: 2}}
	sink := &records.MemoryAbstracts{}

	summary, err := Harvest(context.Background(), api, sink, testConfig(2), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 3, api.fetchesAt(0))
	assert.Equal(t, 0, summary.FailedBatches)
	assert.Len(t, sink.Lines, 2)
}

func TestHarvestRejectsPlaceholderKey(t *testing.T) {
	for _, key := range []string{"", "your_ncbi_api_key_here", "YOUR_NCBI_API_KEY"} {
		t.Run(key, func(t *testing.T) {
			api := &fakeAPI{count: 10}
			path := filepath.Join(t.TempDir(), "abstracts.txt")
			cfg := testConfig(10)
			cfg.APIKey = key

			_, err := Harvest(context.Background(), api, records.AbstractFile{Path: path}, cfg, &bytes.Buffer{})
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrConfiguration)
			assert.Equal(t, 0, api.searches, "no network call")
			assert.NoFileExists(t, path)
		})
	}
}

func TestHarvestSearchFailureWritesNothing(t *testing.T) {
	api := &fakeAPI{searchErr: fmt.Errorf("%w: HTTP 500", types.ErrTransport)}
	path := filepath.Join(t.TempDir(), "abstracts.txt")

	_, err := Harvest(context.Background(), api, records.AbstractFile{Path: path}, testConfig(10), &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.NoFileExists(t, path)
	assert.Empty(t, api.fetches)
}

func TestHarvestWritesFile(t *testing.T) {
	api := &fakeAPI{count: 2}
	path := filepath.Join(t.TempDir(), "abstracts.txt")

	_, err := Harvest(context.Background(), api, records.AbstractFile{Path: path}, testConfig(2), &bytes.Buffer{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abstract 0 second line\nabstract 1 second line\n", string(data))
}

type failingSink struct{}

func (failingSink) WriteAbstracts([]string) error { return errors.New("disk full") }

func TestHarvestReportsWriteFailure(t *testing.T) {
	var out bytes.Buffer
	_, err := Harvest(context.Background(), &fakeAPI{count: 1}, failingSink{}, testConfig(1), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, out.String(), "Error writing abstracts")
}

func TestHarvestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &fakeAPI{count: 4}
	sink := &records.MemoryAbstracts{}
	cfg := testConfig(4)

	_, err := Harvest(ctx, api, sink, cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, sink.Lines)
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig(types.PipelineConfig{
		PubMed:  types.PubMedConfig{APIKey: "k"},
		Harvest: types.HarvestConfig{MaxCount: 10},
	})
	assert.Equal(t, DefaultQuery, cfg.Query)
	assert.Equal(t, 200, cfg.BatchSize)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, defaultBackoff, cfg.Retry.Backoff(1))
	assert.Equal(t, "k", cfg.APIKey)
	assert.NotNil(t, cfg.Sleep)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a\nb\r\nc  "))
	assert.Equal(t, "", Normalize("\n\n"))
}
