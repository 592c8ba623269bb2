// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/prep-pipeline/internal/pubmed"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache", "matches.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

type countingSearcher struct {
	articles []pubmed.Article
	err      error
	calls    int
}

func (s *countingSearcher) Search(_ context.Context, _ string, _ int) ([]pubmed.Article, error) {
	s.calls++
	return s.articles, s.err
}

func TestStorePutGet(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "q1")
	require.NoError(t, err)
	assert.False(t, ok)

	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, Entry{Query: "q1", PMID: "42", Title: "Answer", Found: true, RunID: "run-a", FetchedAt: fetched}))

	e, ok, err := store.Get(ctx, "q1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", e.PMID)
	assert.Equal(t, "Answer", e.Title)
	assert.True(t, e.Found)
	assert.Equal(t, "run-a", e.RunID)
	assert.True(t, fetched.Equal(e.FetchedAt))

	require.NoError(t, store.Put(ctx, Entry{Query: "q1", RunID: "run-b"}))
	e, ok, err = store.Get(ctx, "q1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, e.Found)
	assert.Empty(t, e.PMID)
	assert.Equal(t, "run-b", e.RunID)
	assert.False(t, e.FetchedAt.IsZero())
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	store, path := testStore(t)
	require.NoError(t, store.Put(context.Background(), Entry{Query: "q", PMID: "1", Title: "T", Found: true}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreClear(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	for _, q := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, Entry{Query: q}))
	}

	removed, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCachedSearcherHitAndMiss(t *testing.T) {
	store, _ := testStore(t)
	next := &countingSearcher{articles: []pubmed.Article{{PMID: "9", Title: "Nine", Abstract: "dropped"}}}
	cs := &CachedSearcher{Store: store, Next: next, RunID: "run-1"}
	ctx := context.Background()

	got, err := cs.Search(ctx, "q", 1)
	require.NoError(t, err)
	assert.Equal(t, "9", got[0].PMID)

	got, err = cs.Search(ctx, "q", 1)
	require.NoError(t, err)
	assert.Equal(t, []pubmed.Article{{PMID: "9", Title: "Nine"}}, got)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, 1, cs.Hits)
	assert.Equal(t, 1, cs.Misses)

	e, ok, err := store.Get(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-1", e.RunID)
}

func TestCachedSearcherCachesEmptyResults(t *testing.T) {
	store, _ := testStore(t)
	next := &countingSearcher{}
	cs := &CachedSearcher{Store: store, Next: next}

	for range 3 {
		got, err := cs.Search(context.Background(), "nothing", 1)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, 1, next.calls)
}

func TestCachedSearcherDoesNotCacheErrors(t *testing.T) {
	store, _ := testStore(t)
	next := &countingSearcher{err: errors.New("HTTP 502")}
	cs := &CachedSearcher{Store: store, Next: next}

	_, err := cs.Search(context.Background(), "q", 1)
	require.Error(t, err)
	_, err = cs.Search(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCachedSearcherWarnsOnWriteFailure(t *testing.T) {
	store, _ := testStore(t)
	require.NoError(t, store.Close())

	var warn bytes.Buffer
	next := &countingSearcher{articles: []pubmed.Article{{PMID: "1", Title: "One"}}}
	cs := &CachedSearcher{Store: store, Next: next, W: &warn}

	got, err := cs.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, warn.String(), "warning: cache write failed")
}
