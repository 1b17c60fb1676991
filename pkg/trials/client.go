// Package trials is a client for the ClinicalTrials.gov v2 API.
package trials

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://clinicaltrials.gov/api/v2"

	// The API asks clients to stay under ~1 req/s sustained.
	requestRate  = 1
	requestBurst = 3
)

// SearchRequest is one study search. From/To bound the selected date
// field; DateType is "start" or "update" (study start vs last update).
type SearchRequest struct {
	Query    string
	From     string
	To       string
	DateType string
	PageSize int
	IDCap    int
}

// Study is one clinical trial record.
type Study struct {
	NCTID      string
	Title      string
	Status     string
	Phases     []string
	Conditions []string
	Enrollment int
	StartDate  string
}

// SearchResult holds the total count, identifier list and hydrated page.
type SearchResult struct {
	Total   int
	IDs     []string
	Studies []Study
}

// Client searches ClinicalTrials.gov.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a ClinicalTrials.gov client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(requestRate, requestBurst),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// studiesResponse is the subset of the /studies JSON we read.
type studiesResponse struct {
	TotalCount int `json:"totalCount"`
	Studies    []struct {
		ProtocolSection struct {
			IdentificationModule struct {
				NCTID      string `json:"nctId"`
				BriefTitle string `json:"briefTitle"`
			} `json:"identificationModule"`
			StatusModule struct {
				OverallStatus  string `json:"overallStatus"`
				StartDateStruct struct {
					Date string `json:"date"`
				} `json:"startDateStruct"`
			} `json:"statusModule"`
			DesignModule struct {
				Phases         []string `json:"phases"`
				EnrollmentInfo struct {
					Count int `json:"count"`
				} `json:"enrollmentInfo"`
			} `json:"designModule"`
			ConditionsModule struct {
				Conditions []string `json:"conditions"`
			} `json:"conditionsModule"`
		} `json:"protocolSection"`
	} `json:"studies"`
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, eris.New("trials: empty query")
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.IDCap < req.PageSize {
		req.IDCap = req.PageSize
	}

	q := url.Values{}
	q.Set("query.term", c.termWithDates(req))
	q.Set("pageSize", strconv.Itoa(req.IDCap))
	q.Set("countTotal", "true")
	q.Set("fields", "NCTId,BriefTitle,OverallStatus,Phase,Condition,EnrollmentCount,StartDate")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "trials: rate limiter wait")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/studies?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "trials: create request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "trials: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "trials: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("trials: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var sr studiesResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, eris.Wrap(err, "trials: unmarshal response")
	}

	result := &SearchResult{Total: sr.TotalCount}
	for _, s := range sr.Studies {
		ps := s.ProtocolSection
		result.IDs = append(result.IDs, ps.IdentificationModule.NCTID)
		if len(result.Studies) < req.PageSize {
			result.Studies = append(result.Studies, Study{
				NCTID:      ps.IdentificationModule.NCTID,
				Title:      ps.IdentificationModule.BriefTitle,
				Status:     ps.StatusModule.OverallStatus,
				Phases:     ps.DesignModule.Phases,
				Conditions: ps.ConditionsModule.Conditions,
				Enrollment: ps.DesignModule.EnrollmentInfo.Count,
				StartDate:  ps.StatusModule.StartDateStruct.Date,
			})
		}
	}

	zap.L().Debug("trials: search complete",
		zap.String("query", req.Query),
		zap.Int("total", sr.TotalCount),
		zap.Int("studies", len(result.Studies)),
	)
	return result, nil
}

// termWithDates folds the date range into the query expression using
// the API's AREA syntax.
func (c *httpClient) termWithDates(req SearchRequest) string {
	if req.From == "" && req.To == "" {
		return req.Query
	}
	field := "StartDate"
	if req.DateType == "update" {
		field = "LastUpdatePostDate"
	}
	from, to := req.From, req.To
	if from == "" {
		from = "MIN"
	}
	if to == "" {
		to = "MAX"
	}
	return req.Query + " AND AREA[" + field + "]RANGE[" + from + "," + to + "]"
}
