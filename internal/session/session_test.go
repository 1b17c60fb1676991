package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/litscope/internal/enrich"
	"github.com/sells-group/litscope/internal/lineage"
	"github.com/sells-group/litscope/internal/search"
	"github.com/sells-group/litscope/internal/table"
)

// fakeProvider serves a canned corpus: Search returns up to Limit rows,
// the full id list up to the id cap, and the total match count.
type fakeProvider struct {
	name     string
	keyField string
	corpus   []table.Row
	total    int
	idCap    int
	err      error
	searches []search.Criteria
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) KeyField() string { return f.keyField }

func (f *fakeProvider) BaseColumns() []table.Column {
	return []table.Column{
		{ID: f.keyField, Label: "ID", Accessor: f.keyField, Visible: true},
		{ID: "title", Label: "Title", Accessor: "title", Visible: true},
	}
}

func (f *fakeProvider) Search(_ context.Context, c search.Criteria) (*search.ResultSet, error) {
	f.searches = append(f.searches, c)
	if f.err != nil {
		return nil, f.err
	}
	n := c.Limit
	if n > len(f.corpus) {
		n = len(f.corpus)
	}
	capN := f.idCap
	if capN <= 0 || capN > f.total {
		capN = f.total
	}
	allIDs := make([]string, capN)
	for i := range allIDs {
		allIDs[i] = fmt.Sprintf("%s%d", f.name, i+1)
	}
	return &search.ResultSet{
		Rows:         f.corpus[:n],
		TotalMatched: f.total,
		AllIDs:       allIDs,
	}, nil
}

func makeCorpus(prefix string, keyField string, n int) []table.Row {
	out := make([]table.Row, n)
	for i := range out {
		out[i] = table.Row{
			keyField: table.String(fmt.Sprintf("%s%d", prefix, i+1)),
			"title":  table.String(fmt.Sprintf("record %d", i+1)),
		}
	}
	return out
}

// yesUpTo answers Yes for the first n submitted rows and No after.
func yesUpTo(n int) enrich.Inferencer {
	return inferFunc(func(_ context.Context, req enrich.InferRequest) ([]enrich.RowJudgment, error) {
		out := make([]enrich.RowJudgment, len(req.Rows))
		for i, r := range req.Rows {
			out[i] = enrich.RowJudgment{
				ID:         table.Identity(r, req.KeyField),
				Passed:     i < n,
				Confidence: 0.8,
			}
		}
		return out, nil
	})
}

type inferFunc func(ctx context.Context, req enrich.InferRequest) ([]enrich.RowJudgment, error)

func (f inferFunc) Infer(ctx context.Context, req enrich.InferRequest) ([]enrich.RowJudgment, error) {
	return f(ctx, req)
}

func newTestSession(p *fakeProvider, inf enrich.Inferencer) *Session {
	return New(Config{SearchLimit: 20, MaxEnrichRows: 200}, []search.Provider{p}, inf)
}

func TestSession_SearchLoadsPageAndRecordsRoot(t *testing.T) {
	p := &fakeProvider{name: "pubmed", keyField: "pmid", corpus: makeCorpus("pubmed", "pmid", 137), total: 137, idCap: 500}
	s := newTestSession(p, yesUpTo(0))

	snapID, err := s.Search(context.Background(), "pubmed", search.Criteria{Query: "heart failure"})
	require.NoError(t, err)

	assert.Len(t, s.DisplayRows(), 20, "default page size")
	assert.Empty(t, s.LastError())

	views := s.Snapshots()
	require.Len(t, views, 1)
	assert.Equal(t, snapID, views[0].ID)
	assert.Equal(t, 137, views[0].TotalMatched)
	assert.Len(t, views[0].RowIDs, 137, "identity set covers every match")
	assert.Equal(t, 1, views[0].Version)
	assert.Equal(t, lineage.ProvenanceSearch, views[0].Provenance.Kind)
}

func TestSession_SearchFailureRetainsMessage(t *testing.T) {
	p := &fakeProvider{name: "pubmed", keyField: "pmid", err: eris.New("upstream 500")}
	s := newTestSession(p, yesUpTo(0))

	_, err := s.Search(context.Background(), "pubmed", search.Criteria{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, s.LastError(), "upstream 500")
	assert.Empty(t, s.Snapshots(), "failed searches record no lineage")

	// The next successful search clears the retained message.
	p.err = nil
	p.corpus = makeCorpus("pubmed", "pmid", 5)
	p.total = 5
	_, err = s.Search(context.Background(), "pubmed", search.Criteria{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, s.LastError())
}

func TestSession_SearchUnknownDomain(t *testing.T) {
	s := newTestSession(&fakeProvider{name: "pubmed", keyField: "pmid"}, yesUpTo(0))
	_, err := s.Search(context.Background(), "preprints", search.Criteria{Query: "q"})
	assert.Error(t, err)
}

func TestSession_EnrichExpandsThenFilters(t *testing.T) {
	// 137 matches, 20 loaded; enrichment expands to the full set capped
	// at MaxEnrichRows, judges Yes for 15, and the yes-filter narrows the
	// view to those 15.
	p := &fakeProvider{name: "pubmed", keyField: "pmid", corpus: makeCorpus("pubmed", "pmid", 137), total: 137, idCap: 500}
	s := New(Config{SearchLimit: 20, MaxEnrichRows: 100}, []search.Provider{p}, yesUpTo(15))

	_, err := s.Search(context.Background(), "pubmed", search.Criteria{Query: "q"})
	require.NoError(t, err)

	colID, err := s.AddDerivedColumn(context.Background(), "Relevant", table.DerivedSpec{
		Criterion:  "is it relevant",
		OutputType: table.OutputBoolean,
	})
	require.NoError(t, err)
	assert.True(t, s.Engine().IsProcessing(colID), "pending marker exists before enrichment finishes")

	s.WaitForColumn(colID)

	assert.False(t, s.Engine().IsProcessing(colID))
	assert.Equal(t, 100, s.Engine().RowCount(), "expansion capped at MaxEnrichRows")
	require.Len(t, p.searches, 2)
	assert.Equal(t, 100, p.searches[1].Limit)

	require.NoError(t, s.SetBooleanFilter(colID, table.FilterYes))
	assert.Len(t, s.DisplayRows(), 15)

	require.NoError(t, s.SetBooleanFilter(colID, table.FilterNo))
	assert.Len(t, s.DisplayRows(), 85)

	require.NoError(t, s.SetBooleanFilter(colID, table.FilterAll))
	assert.Len(t, s.DisplayRows(), 100)
}

func TestSession_AddDerivedColumnValidation(t *testing.T) {
	p := &fakeProvider{name: "pubmed", keyField: "pmid", corpus: makeCorpus("pubmed", "pmid", 5), total: 5}
	s := newTestSession(p, yesUpTo(0))

	_, err := s.AddDerivedColumn(context.Background(), "X", table.DerivedSpec{Criterion: "c"})
	assert.Error(t, err, "no dataset loaded yet")

	_, err = s.Search(context.Background(), "pubmed", search.Criteria{Query: "q"})
	require.NoError(t, err)

	_, err = s.AddDerivedColumn(context.Background(), "X", table.DerivedSpec{Criterion: "  "})
	assert.Error(t, err, "blank criterion")

	_, err = s.AddDerivedColumn(context.Background(), " ", table.DerivedSpec{Criterion: "c"})
	assert.Error(t, err, "blank label")
}

func TestSession_SetBooleanFilterRejectsNonBooleanColumns(t *testing.T) {
	p := &fakeProvider{name: "pubmed", keyField: "pmid", corpus: makeCorpus("pubmed", "pmid", 5), total: 5}
	s := newTestSession(p, yesUpTo(0))
	_, err := s.Search(context.Background(), "pubmed", search.Criteria{Query: "q"})
	require.NoError(t, err)

	assert.Error(t, s.SetBooleanFilter("title", table.FilterYes), "base column")
	assert.Error(t, s.SetBooleanFilter("missing", table.FilterYes))

	colID, err := s.AddDerivedColumn(context.Background(), "Score", table.DerivedSpec{
		Criterion:  "score it",
		OutputType: table.OutputNumber,
	})
	require.NoError(t, err)
	s.WaitForColumn(colID)
	assert.Error(t, s.SetBooleanFilter(colID, table.FilterYes), "number column")
}

func TestSession_FreezeFilteredAndCompare(t *testing.T) {
	p := &fakeProvider{name: "pubmed", keyField: "pmid", corpus: makeCorpus("pubmed", "pmid", 20), total: 20}
	s := newTestSession(p, yesUpTo(12))

	rootA, err := s.Search(context.Background(), "pubmed", search.Criteria{Query: "first"})
	require.NoError(t, err)

	colID, err := s.AddDerivedColumn(context.Background(), "RCT", table.DerivedSpec{
		Criterion:  "rct?",
		OutputType: table.OutputBoolean,
	})
	require.NoError(t, err)
	s.WaitForColumn(colID)
	require.NoError(t, s.SetBooleanFilter(colID, table.FilterYes))

	frozen, err := s.FreezeFiltered("rct subset")
	require.NoError(t, err)

	views := s.Snapshots()
	require.Len(t, views, 2)
	assert.Equal(t, "rct subset", views[1].Label)
	assert.Equal(t, []string{rootA}, views[1].Provenance.ParentIDs)
	assert.Len(t, views[1].RowIDs, 12)
	assert.Contains(t, views[1].Description, "RCT=yes")
	assert.Contains(t, views[1].Description, "from #2")

	cmp, err := s.Compare(rootA, frozen)
	require.NoError(t, err)
	assert.Len(t, cmp.OnlyAIDs, 8)
	assert.Empty(t, cmp.OnlyBIDs)
	assert.Len(t, cmp.BothIDs, 12)
}

func TestSession_ComparePartitionsTwoSearches(t *testing.T) {
	// 100 ids vs 150 ids with 80 shared: 20 / 70 / 80.
	p := &fakeProvider{name: "pubmed", keyField: "pmid", corpus: makeCorpus("pubmed", "pmid", 10), total: 100, idCap: 500}
	s := newTestSession(p, yesUpTo(0))

	a, err := s.Search(context.Background(), "pubmed", search.Criteria{Query: "first"})
	require.NoError(t, err)

	// Second search matches ids 21..170: shares 21..100 with the first.
	b, err := s.Search(context.Background(), "pubmed", search.Criteria{Query: "second"})
	require.NoError(t, err)

	// Rewrite the second snapshot's id window to overlap partially.
	snaps := s.Snapshots()
	require.Len(t, snaps, 2)
	shifted := make([]string, 150)
	for i := range shifted {
		shifted[i] = fmt.Sprintf("pubmed%d", i+21)
	}
	require.NoError(t, s.tracker.Delete(b))
	bSnap := snaps[1].Snapshot
	bSnap.RowIDs = shifted
	b = s.tracker.RecordSearch(bSnap.Rows, 150, shifted, lineage.SearchParams{Query: "second"})

	cmp, err := s.Compare(a, b)
	require.NoError(t, err)
	assert.Len(t, cmp.OnlyAIDs, 20)
	assert.Len(t, cmp.OnlyBIDs, 70)
	assert.Len(t, cmp.BothIDs, 80)

	snapID, err := s.MaterializePartition(a, b, lineage.PartitionOnlyA, "first only")
	require.NoError(t, err)
	snap, ok := s.tracker.Get(snapID)
	require.True(t, ok)
	assert.Equal(t, lineage.ProvenanceCompare, snap.Provenance.Kind)
	assert.Equal(t, []string{a, b}, snap.Provenance.ParentIDs)
	assert.Equal(t, 20, snap.TotalMatched)
}

func TestSession_ResetClearsEverything(t *testing.T) {
	p := &fakeProvider{name: "pubmed", keyField: "pmid", corpus: makeCorpus("pubmed", "pmid", 5), total: 5}
	s := newTestSession(p, yesUpTo(5))

	_, err := s.Search(context.Background(), "pubmed", search.Criteria{Query: "q"})
	require.NoError(t, err)
	colID, err := s.AddDerivedColumn(context.Background(), "X", table.DerivedSpec{Criterion: "c", OutputType: table.OutputBoolean})
	require.NoError(t, err)
	s.WaitForColumn(colID)

	s.Reset()

	assert.Empty(t, s.DisplayRows())
	assert.Empty(t, s.Columns())
	assert.Empty(t, s.Snapshots())
	assert.Empty(t, s.LastError())

	_, err = s.FreezeFiltered("x")
	assert.Error(t, err, "no root to derive from after reset")
}

func TestSession_CellStates(t *testing.T) {
	p := &fakeProvider{name: "pubmed", keyField: "pmid", corpus: makeCorpus("pubmed", "pmid", 3), total: 3}
	s := newTestSession(p, inferFunc(func(context.Context, enrich.InferRequest) ([]enrich.RowJudgment, error) {
		return nil, eris.New("model down")
	}))

	_, err := s.Search(context.Background(), "pubmed", search.Criteria{Query: "q"})
	require.NoError(t, err)

	colID, err := s.AddDerivedColumn(context.Background(), "X", table.DerivedSpec{Criterion: "c", OutputType: table.OutputBoolean})
	require.NoError(t, err)
	s.WaitForColumn(colID)

	cell := s.Cell(colID, "pubmed1")
	assert.True(t, cell.Failed)
	assert.Equal(t, table.ErrorSentinel, cell.Value)
	assert.False(t, cell.Pending)
}
