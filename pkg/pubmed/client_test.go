package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const esearchBody = `{
	"esearchresult": {
		"count": "137",
		"idlist": ["101", "102", "103", "104"]
	}
}`

func esummaryBody(ids []string) string {
	var records []string
	for _, id := range ids {
		records = append(records, fmt.Sprintf(`"%s": {
			"uid": "%s",
			"title": "Study %s",
			"authors": [{"name": "Smith J"}, {"name": "Doe A"}],
			"fulljournalname": "Journal of Testing",
			"pubdate": "2021 Mar 15",
			"articleids": [{"idtype": "pubmed", "value": "%s"}, {"idtype": "doi", "value": "10.1000/%s"}]
		}`, id, id, id, id, id))
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return fmt.Sprintf(`{"result": {"uids": [%s], %s}}`,
		strings.Join(quoted, ","), strings.Join(records, ","))
}

func fakeEutils(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		switch r.URL.Path {
		case "/esearch.fcgi":
			fmt.Fprint(w, esearchBody)
		case "/esummary.fcgi":
			ids := strings.Split(r.URL.Query().Get("id"), ",")
			fmt.Fprint(w, esummaryBody(ids))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestClient_Search(t *testing.T) {
	srv, paths := fakeEutils(t)
	c := NewClient("", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	res, err := c.Search(context.Background(), SearchRequest{
		Term:   "heart failure",
		RetMax: 2,
		IDCap:  4,
	})
	require.NoError(t, err)

	assert.Equal(t, 137, res.Count)
	assert.Equal(t, []string{"101", "102", "103", "104"}, res.IDs,
		"identifier list runs to the id cap")
	require.Len(t, res.Articles, 2, "only retmax articles hydrated")

	a := res.Articles[0]
	assert.Equal(t, "101", a.PMID)
	assert.Equal(t, "Study 101", a.Title)
	assert.Equal(t, []string{"Smith J", "Doe A"}, a.Authors)
	assert.Equal(t, "Journal of Testing", a.Journal)
	assert.Equal(t, 2021, a.Year)
	assert.Equal(t, "10.1000/101", a.DOI)

	require.Len(t, *paths, 2)
	assert.Contains(t, (*paths)[0], "term=heart+failure")
}

func TestClient_SearchDateRange(t *testing.T) {
	srv, paths := fakeEutils(t)
	c := NewClient("", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	_, err := c.Search(context.Background(), SearchRequest{
		Term:     "x",
		MinDate:  "2020/01/01",
		MaxDate:  "2023/12/31",
		DateType: "edat",
		RetMax:   1,
	})
	require.NoError(t, err)

	first := (*paths)[0]
	assert.Contains(t, first, "datetype=edat")
	assert.Contains(t, first, "mindate=2020%2F01%2F01")
	assert.Contains(t, first, "maxdate=2023%2F12%2F31")
}

func TestClient_SearchEmptyTerm(t *testing.T) {
	c := NewClient("")
	_, err := c.Search(context.Background(), SearchRequest{})
	assert.Error(t, err)
}

func TestClient_SearchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	c := NewClient("", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	_, err := c.Search(context.Background(), SearchRequest{Term: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestClient_CacheShortCircuitsRepeatSearches(t *testing.T) {
	srv, paths := fakeEutils(t)
	cache := testCache(t, 0)
	c := NewClient("", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithCache(cache))

	req := SearchRequest{Term: "cached query", RetMax: 2}
	first, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, *paths, 2)

	second, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, *paths, 2, "repeat search served entirely from cache")
	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, first.IDs, second.IDs)
}

func TestClient_APIKeyOnQuery(t *testing.T) {
	srv, paths := fakeEutils(t)
	c := NewClient("secret-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	_, err := c.Search(context.Background(), SearchRequest{Term: "x", RetMax: 1})
	require.NoError(t, err)
	assert.Contains(t, (*paths)[0], "api_key=secret-key")
}
