// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/prep-pipeline/internal/pubmed"
)

// Searcher is the single-shot search the cache sits in front of.
type Searcher interface {
	Search(ctx context.Context, term string, limit int) ([]pubmed.Article, error)
}

// CachedSearcher answers from the Store when it can and records fresh
// answers from Next. Only the first article of a result is kept. Failed
// searches are not cached.
type CachedSearcher struct {
	Store *Store
	Next  Searcher
	RunID string

	// W receives warnings about cache read and write failures. These never
	// fail the search itself.
	W io.Writer

	Hits   int
	Misses int
}

// Search implements the Searcher interface.
func (c *CachedSearcher) Search(ctx context.Context, term string, limit int) ([]pubmed.Article, error) {
	e, ok, err := c.Store.Get(ctx, term)
	if err != nil {
		c.warn("cache read failed for %q: %v", term, err)
	}
	if ok {
		c.Hits++
		if !e.Found {
			return nil, nil
		}
		return []pubmed.Article{{PMID: e.PMID, Title: e.Title}}, nil
	}

	c.Misses++
	articles, err := c.Next.Search(ctx, term, limit)
	if err != nil {
		return nil, err
	}

	entry := Entry{Query: term, RunID: c.RunID}
	if len(articles) > 0 {
		entry.PMID = articles[0].PMID
		entry.Title = articles[0].Title
		entry.Found = true
	}
	if err := c.Store.Put(ctx, entry); err != nil {
		c.warn("cache write failed for %q: %v", term, err)
	}
	return articles, nil
}

func (c *CachedSearcher) warn(format string, args ...any) {
	if c.W == nil {
		return
	}
	fmt.Fprintf(c.W, "warning: "+format+"\n", args...)
}
