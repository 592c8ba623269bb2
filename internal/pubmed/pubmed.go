// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubmed is a small client for the NCBI E-utilities endpoints the
// pipeline consumes: ESearch (with or without a server-side history handle)
// and EFetch (by history handle or by PMID list).
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/prep-pipeline/internal/httputil"
	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// eutilsBase is the E-utilities root. Declared as a var so tests can
// substitute an httptest server.
var eutilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"

const (
	database    = "pubmed"
	defaultTool = "prep-pipeline"

	// DefaultRateLimitRetries is how often an HTTP 429 is retried inside a
	// single request. Stage-level retry policies sit on top of this.
	DefaultRateLimitRetries = 1
)

// SearchResult is the outcome of an ESearch call. WebEnv and QueryKey are
// only set when the history server was requested.
type SearchResult struct {
	Count            int
	IDs              []string
	WebEnv           string
	QueryKey         string
	QueryTranslation string
}

// Article is the subset of a PubMed record the pipeline uses.
type Article struct {
	PMID     string
	Title    string
	Abstract string
}

// Client calls E-utilities with the configured credentials and etiquette
// parameters.
type Client struct {
	HTTP   *http.Client
	Config types.PubMedConfig

	// RateLimitRetries bounds the HTTP 429 retries per request. Zero means
	// DefaultRateLimitRetries.
	RateLimitRetries int
}

// NewClient returns a Client with an HTTP timeout taken from cfg.
func NewClient(cfg types.PubMedConfig) *Client {
	return &Client{
		HTTP:   &http.Client{Timeout: cfg.Timeout},
		Config: cfg,
	}
}

// ESearch runs term against PubMed. With useHistory the result set is kept
// on the NCBI history server and can be paged with EFetchHistory.
func (c *Client) ESearch(ctx context.Context, term string, retmax int, useHistory bool) (SearchResult, error) {
	params := url.Values{
		"term":    {term},
		"retmax":  {strconv.Itoa(retmax)},
		"retmode": {"json"},
	}
	if useHistory {
		params.Set("usehistory", "y")
	}

	body, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return SearchResult{}, err
	}
	defer body.Close()

	var resp esearchResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return SearchResult{}, fmt.Errorf("%w: decoding ESearch response: %v", types.ErrParse, err)
	}
	if resp.Error != "" {
		return SearchResult{}, fmt.Errorf("%w: ESearch error: %s", types.ErrTransport, resp.Error)
	}
	if resp.Result.Error != "" {
		return SearchResult{}, fmt.Errorf("%w: ESearch error: %s", types.ErrTransport, resp.Result.Error)
	}

	count := 0
	if resp.Result.Count != "" {
		count, err = strconv.Atoi(resp.Result.Count)
		if err != nil {
			return SearchResult{}, fmt.Errorf("%w: ESearch count %q: %v", types.ErrParse, resp.Result.Count, err)
		}
	}
	if useHistory && (resp.Result.WebEnv == "" || resp.Result.QueryKey == "") {
		return SearchResult{}, fmt.Errorf("%w: ESearch response has no history handle", types.ErrParse)
	}

	return SearchResult{
		Count:            count,
		IDs:              resp.Result.IDList,
		WebEnv:           resp.Result.WebEnv,
		QueryKey:         resp.Result.QueryKey,
		QueryTranslation: resp.Result.QueryTranslation,
	}, nil
}

// EFetchHistory fetches up to limit records starting at offset start from a
// history-server result set.
func (c *Client) EFetchHistory(ctx context.Context, webEnv, queryKey string, start, limit int) ([]Article, error) {
	params := url.Values{
		"retmode":   {"xml"},
		"retstart":  {strconv.Itoa(start)},
		"retmax":    {strconv.Itoa(limit)},
		"WebEnv":    {webEnv},
		"query_key": {queryKey},
	}
	return c.efetch(ctx, params)
}

// EFetchIDs fetches the records for the given PMIDs.
func (c *Client) EFetchIDs(ctx context.Context, ids []string) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{
		"retmode": {"xml"},
		"id":      {strings.Join(ids, ",")},
	}
	return c.efetch(ctx, params)
}

// Search is the single-shot variant: it returns the top limit articles for
// term, in PubMed relevance order. An empty slice means no hits.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]Article, error) {
	res, err := c.ESearch(ctx, term, limit, false)
	if err != nil {
		return nil, err
	}
	if len(res.IDs) == 0 {
		return nil, nil
	}
	ids := res.IDs
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return c.EFetchIDs(ctx, ids)
}

func (c *Client) efetch(ctx context.Context, params url.Values) ([]Article, error) {
	body, err := c.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	articles, err := ParseArticles(body)
	if err != nil {
		return nil, err
	}
	return articles, nil
}

// get issues a GET against an E-utilities endpoint with the shared
// parameters (db, tool, email, api_key) and returns the body of a 200
// response. HTTP 429 is retried with exponential backoff.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (io.ReadCloser, error) {
	params.Set("db", database)
	tool := c.Config.Tool
	if tool == "" {
		tool = defaultTool
	}
	params.Set("tool", tool)
	if c.Config.Email != "" {
		params.Set("email", c.Config.Email)
	}
	if c.Config.APIKey != "" {
		params.Set("api_key", c.Config.APIKey)
	}

	reqURL := eutilsBase + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.Config.UserAgent != "" {
		req.Header.Set("User-Agent", c.Config.UserAgent)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	retries := c.RateLimitRetries
	if retries <= 0 {
		retries = DefaultRateLimitRetries
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, retries)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %v", types.ErrTransport, endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned HTTP %d", types.ErrTransport, endpoint, resp.StatusCode)
	}
	return resp.Body, nil
}

// ParseArticles decodes an EFetch PubmedArticleSet document. Records
// without a PMID are skipped.
func ParseArticles(r io.Reader) ([]Article, error) {
	var set articleSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decoding EFetch XML: %v", types.ErrParse, err)
	}

	articles := make([]Article, 0, len(set.Articles))
	for _, pa := range set.Articles {
		mc := pa.MedlineCitation
		pmid := strings.TrimSpace(mc.PMID)
		if pmid == "" {
			continue
		}
		a := Article{
			PMID:  pmid,
			Title: strings.TrimSpace(mc.Article.Title.Text),
		}
		if len(mc.Article.Abstract.Texts) > 0 {
			a.Abstract = mc.Article.Abstract.Texts[0].Text
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// ESearch JSON structures.
type esearchResponse struct {
	Error  string        `json:"error"`
	Result esearchResult `json:"esearchresult"`
}

type esearchResult struct {
	Count            string   `json:"count"`
	IDList           []string `json:"idlist"`
	QueryKey         string   `json:"querykey"`
	WebEnv           string   `json:"webenv"`
	QueryTranslation string   `json:"querytranslation"`
	Error            string   `json:"ERROR"`
}

// EFetch PubmedArticleSet XML structures.
type articleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation medlineCitation `xml:"MedlineCitation"`
}

type medlineCitation struct {
	PMID    string        `xml:"PMID"`
	Article articleDetail `xml:"Article"`
}

type articleDetail struct {
	Title    textNode     `xml:"ArticleTitle"`
	Abstract abstractNode `xml:"Abstract"`
}

type abstractNode struct {
	Texts []textNode `xml:"AbstractText"`
}

// textNode holds the full text of an element, including the text inside
// inline markup children such as <i>, <b>, <sup>, and <sub>.
type textNode struct {
	Text string
}

// UnmarshalXML concatenates every character data token under start.
func (n *textNode) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				n.Text = sb.String()
				return nil
			}
			depth--
		}
	}
}
