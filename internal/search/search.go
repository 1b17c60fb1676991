// Package search defines the provider boundary for literature and
// trial search backends.
package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/litscope/internal/table"
)

// Criteria is a domain-agnostic search request. From/To bound the
// selected date field (YYYY/MM/DD for PubMed, YYYY-MM-DD for trials);
// DateType selects which date the range applies to. Limit caps the
// number of fully-populated rows returned.
type Criteria struct {
	Query    string `json:"query"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	DateType string `json:"date_type,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Validate rejects criteria before any network call is made.
func (c Criteria) Validate() error {
	if c.Query == "" {
		return eris.New("search: query is required")
	}
	if c.Limit < 0 {
		return eris.New("search: limit must be non-negative")
	}
	return nil
}

// ResultSet is a bounded page of fully-populated rows plus the complete
// matching identifier set up to a larger cap, kept for later set
// comparison even when full row data was not fetched.
type ResultSet struct {
	Rows         []table.Row
	TotalMatched int
	AllIDs       []string
}

// Provider is one search backend. Each provider defines its own key
// field and base column set; switching providers replaces the table's
// base columns.
type Provider interface {
	Name() string
	KeyField() string
	BaseColumns() []table.Column
	Search(ctx context.Context, c Criteria) (*ResultSet, error)
}
