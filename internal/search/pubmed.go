package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/litscope/internal/table"
	"github.com/sells-group/litscope/pkg/pubmed"
)

// defaultIDCap bounds the full identifier list fetched per search for
// later set comparison.
const defaultIDCap = 500

// PubMedProvider adapts the E-utilities client to the workbench.
type PubMedProvider struct {
	client pubmed.Client
	idCap  int
}

// NewPubMedProvider wraps a pubmed client. idCap <= 0 uses the default.
func NewPubMedProvider(client pubmed.Client, idCap int) *PubMedProvider {
	if idCap <= 0 {
		idCap = defaultIDCap
	}
	return &PubMedProvider{client: client, idCap: idCap}
}

func (p *PubMedProvider) Name() string     { return "pubmed" }
func (p *PubMedProvider) KeyField() string { return "pmid" }

// BaseColumns returns the article column set.
func (p *PubMedProvider) BaseColumns() []table.Column {
	return []table.Column{
		{ID: "pmid", Label: "PMID", Accessor: "pmid", Visible: true},
		{ID: "title", Label: "Title", Accessor: "title", Visible: true},
		{ID: "authors", Label: "Authors", Accessor: "authors", Visible: true},
		{ID: "journal", Label: "Journal", Accessor: "journal", Visible: true},
		{ID: "year", Label: "Year", Accessor: "year", Numeric: true, Visible: true},
		{ID: "doi", Label: "DOI", Accessor: "doi", Visible: false},
	}
}

func (p *PubMedProvider) Search(ctx context.Context, c Criteria) (*ResultSet, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	res, err := p.client.Search(ctx, pubmed.SearchRequest{
		Term:     c.Query,
		MinDate:  c.From,
		MaxDate:  c.To,
		DateType: c.DateType,
		RetMax:   c.Limit,
		IDCap:    p.idCap,
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: pubmed")
	}

	rows := make([]table.Row, 0, len(res.Articles))
	for _, a := range res.Articles {
		rows = append(rows, articleRow(a))
	}
	return &ResultSet{
		Rows:         rows,
		TotalMatched: res.Count,
		AllIDs:       res.IDs,
	}, nil
}

// articleRow converts an article to the dynamic row shape, validated at
// ingestion. Absent fields become null values, not empty strings, so
// sorting treats them as missing.
func articleRow(a pubmed.Article) table.Row {
	row := table.Row{
		"pmid":  table.String(a.PMID),
		"title": table.String(a.Title),
	}
	if len(a.Authors) > 0 {
		row["authors"] = table.List(a.Authors)
	}
	if a.Journal != "" {
		row["journal"] = table.String(a.Journal)
	}
	if a.Year > 0 {
		row["year"] = table.Number(float64(a.Year))
	}
	if a.DOI != "" {
		row["doi"] = table.String(a.DOI)
	}
	return row
}
