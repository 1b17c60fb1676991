// Package pubmed is a client for the NCBI E-utilities PubMed API.
package pubmed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// NCBI allows 3 req/s without an API key, 10 req/s with one.
	anonymousRate = 3
	keyedRate     = 10
)

// SearchRequest is one PubMed search. DateType selects which date the
// range applies to ("pdat" publication, "edat" Entrez). RetMax caps the
// hydrated articles; IDCap caps the full identifier list.
type SearchRequest struct {
	Term     string
	MinDate  string
	MaxDate  string
	DateType string
	RetMax   int
	IDCap    int
}

// Article is one hydrated PubMed record.
type Article struct {
	PMID    string
	Title   string
	Authors []string
	Journal string
	PubDate string
	Year    int
	DOI     string
}

// SearchResult holds the total match count, the identifier list up to
// the cap, and the hydrated page.
type SearchResult struct {
	Count    int
	IDs      []string
	Articles []Article
}

// Client searches PubMed via esearch + esummary.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the E-utilities base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithCache attaches a response cache.
func WithCache(cache *Cache) Option {
	return func(c *httpClient) { c.cache = cache }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cache   *Cache
}

// NewClient creates a PubMed client. apiKey may be empty; the request
// rate adapts to NCBI's keyed/anonymous limits.
func NewClient(apiKey string, opts ...Option) Client {
	r := rate.Limit(anonymousRate)
	if apiKey != "" {
		r = rate.Limit(keyedRate)
	}
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(r, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// esearchResponse is the subset of the esearch JSON we read.
type esearchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Term == "" {
		return nil, eris.New("pubmed: empty search term")
	}
	if req.RetMax <= 0 {
		req.RetMax = 20
	}
	if req.IDCap < req.RetMax {
		req.IDCap = req.RetMax
	}

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", req.Term)
	q.Set("retmode", "json")
	q.Set("retmax", strconv.Itoa(req.IDCap))
	if req.MinDate != "" || req.MaxDate != "" {
		dt := req.DateType
		if dt == "" {
			dt = "pdat"
		}
		q.Set("datetype", dt)
		q.Set("mindate", req.MinDate)
		q.Set("maxdate", req.MaxDate)
	}

	body, err := c.get(ctx, "/esearch.fcgi", q)
	if err != nil {
		return nil, err
	}

	var es esearchResponse
	if err := json.Unmarshal(body, &es); err != nil {
		return nil, eris.Wrap(err, "pubmed: unmarshal esearch response")
	}
	count, err := strconv.Atoi(es.ESearchResult.Count)
	if err != nil {
		return nil, eris.Wrap(err, "pubmed: parse match count")
	}

	result := &SearchResult{
		Count: count,
		IDs:   es.ESearchResult.IDList,
	}

	n := len(result.IDs)
	if n > req.RetMax {
		n = req.RetMax
	}
	if n > 0 {
		articles, err := c.summaries(ctx, result.IDs[:n])
		if err != nil {
			return nil, err
		}
		result.Articles = articles
	}

	zap.L().Debug("pubmed: search complete",
		zap.String("term", req.Term),
		zap.Int("count", count),
		zap.Int("ids", len(result.IDs)),
		zap.Int("articles", len(result.Articles)),
	)
	return result, nil
}

// summaries hydrates articles via esummary.
func (c *httpClient) summaries(ctx context.Context, ids []string) ([]Article, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("retmode", "json")
	q.Set("id", strings.Join(ids, ","))

	body, err := c.get(ctx, "/esummary.fcgi", q)
	if err != nil {
		return nil, err
	}

	// esummary keys each record by its uid alongside a "uids" array, so
	// the result object decodes to raw messages first.
	var outer struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, eris.Wrap(err, "pubmed: unmarshal esummary response")
	}

	var uids []string
	if raw, ok := outer.Result["uids"]; ok {
		if err := json.Unmarshal(raw, &uids); err != nil {
			return nil, eris.Wrap(err, "pubmed: unmarshal esummary uids")
		}
	}

	articles := make([]Article, 0, len(uids))
	for _, uid := range uids {
		raw, ok := outer.Result[uid]
		if !ok {
			continue
		}
		var rec struct {
			UID     string `json:"uid"`
			Title   string `json:"title"`
			Authors []struct {
				Name string `json:"name"`
			} `json:"authors"`
			FullJournalName string `json:"fulljournalname"`
			Source          string `json:"source"`
			PubDate         string `json:"pubdate"`
			ArticleIDs      []struct {
				IDType string `json:"idtype"`
				Value  string `json:"value"`
			} `json:"articleids"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			zap.L().Warn("pubmed: skipping malformed summary record",
				zap.String("uid", uid),
				zap.Error(err),
			)
			continue
		}

		a := Article{
			PMID:    rec.UID,
			Title:   rec.Title,
			PubDate: rec.PubDate,
			Journal: rec.FullJournalName,
		}
		if a.Journal == "" {
			a.Journal = rec.Source
		}
		for _, au := range rec.Authors {
			a.Authors = append(a.Authors, au.Name)
		}
		for _, aid := range rec.ArticleIDs {
			if aid.IDType == "doi" {
				a.DOI = aid.Value
				break
			}
		}
		if len(rec.PubDate) >= 4 {
			if y, err := strconv.Atoi(rec.PubDate[:4]); err == nil {
				a.Year = y
			}
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// get performs one rate-limited E-utilities GET, consulting the cache
// when one is attached.
func (c *httpClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	full := c.baseURL + path + "?" + q.Encode()

	if c.cache != nil {
		if body, ok := c.cache.Get(ctx, full); ok {
			return body, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "pubmed: rate limiter wait")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pubmed: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "pubmed: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "pubmed: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("pubmed: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, full, body); err != nil {
			zap.L().Warn("pubmed: cache write failed", zap.Error(err))
		}
	}
	return body, nil
}
