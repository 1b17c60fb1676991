package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/litscope/internal/table"
	"github.com/sells-group/litscope/pkg/trials"
)

// TrialsProvider adapts the ClinicalTrials.gov client to the workbench.
type TrialsProvider struct {
	client trials.Client
	idCap  int
}

// NewTrialsProvider wraps a trials client. idCap <= 0 uses the default.
func NewTrialsProvider(client trials.Client, idCap int) *TrialsProvider {
	if idCap <= 0 {
		idCap = defaultIDCap
	}
	return &TrialsProvider{client: client, idCap: idCap}
}

func (p *TrialsProvider) Name() string     { return "trials" }
func (p *TrialsProvider) KeyField() string { return "nct_id" }

// BaseColumns returns the study column set.
func (p *TrialsProvider) BaseColumns() []table.Column {
	return []table.Column{
		{ID: "nct_id", Label: "NCT ID", Accessor: "nct_id", Visible: true},
		{ID: "title", Label: "Title", Accessor: "title", Visible: true},
		{ID: "status", Label: "Status", Accessor: "status", Visible: true},
		{ID: "phases", Label: "Phases", Accessor: "phases", Visible: true},
		{ID: "conditions", Label: "Conditions", Accessor: "conditions", Visible: true},
		{ID: "enrollment", Label: "Enrollment", Accessor: "enrollment", Numeric: true, Visible: true},
		{ID: "start_date", Label: "Start Date", Accessor: "start_date", Visible: false},
	}
}

func (p *TrialsProvider) Search(ctx context.Context, c Criteria) (*ResultSet, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	res, err := p.client.Search(ctx, trials.SearchRequest{
		Query:    c.Query,
		From:     c.From,
		To:       c.To,
		DateType: c.DateType,
		PageSize: c.Limit,
		IDCap:    p.idCap,
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: trials")
	}

	rows := make([]table.Row, 0, len(res.Studies))
	for _, s := range res.Studies {
		rows = append(rows, studyRow(s))
	}
	return &ResultSet{
		Rows:         rows,
		TotalMatched: res.Total,
		AllIDs:       res.IDs,
	}, nil
}

func studyRow(s trials.Study) table.Row {
	row := table.Row{
		"nct_id": table.String(s.NCTID),
		"title":  table.String(s.Title),
	}
	if s.Status != "" {
		row["status"] = table.String(s.Status)
	}
	if len(s.Phases) > 0 {
		row["phases"] = table.List(s.Phases)
	}
	if len(s.Conditions) > 0 {
		row["conditions"] = table.List(s.Conditions)
	}
	if s.Enrollment > 0 {
		row["enrollment"] = table.Number(float64(s.Enrollment))
	}
	if s.StartDate != "" {
		row["start_date"] = table.String(s.StartDate)
	}
	return row
}
