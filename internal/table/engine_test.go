package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			"pmid":  String(string(rune('a' + i))),
			"title": String("paper " + string(rune('a'+i))),
		}
	}
	return rows
}

func TestEngine_NewDatasetResetsDerivedState(t *testing.T) {
	eng := NewEngine("pmid", "en")
	eng.SetRows(seedRows(4), baseCols(), "pmid")

	colID := eng.AddDerivedColumn("RCT", DerivedSpec{OutputType: OutputBoolean})
	eng.PutCell(colID, "a", CellValue{Value: String("Yes")})
	eng.ToggleSort("title")
	eng.SetTextFilter("paper")
	eng.SetBooleanFilter(colID, FilterYes)

	fresh := []Row{
		{"pmid": String("x1"), "title": String("different search")},
		{"pmid": String("x2"), "title": String("entirely")},
	}
	reset := eng.SetRows(fresh, baseCols(), "pmid")

	assert.True(t, reset)
	assert.Len(t, eng.Columns(), 3, "only base columns survive")
	_, ok := eng.Cell(colID, "a")
	assert.False(t, ok, "derived values purged")
	assert.Nil(t, eng.SortSpec())
	assert.True(t, eng.Filters().Empty())
	assert.False(t, eng.IsProcessing(colID))
}

func TestEngine_ExpansionPreservesDerivedState(t *testing.T) {
	eng := NewEngine("pmid", "en")
	rows := seedRows(4)
	eng.SetRows(rows, baseCols(), "pmid")

	colID := eng.AddDerivedColumn("RCT", DerivedSpec{OutputType: OutputBoolean})
	eng.PutCell(colID, "a", CellValue{Value: String("Yes"), Confidence: 0.9})
	eng.ToggleSort("title")

	// Same leading rows, more appended: an expansion, not a new dataset.
	expanded := append(append([]Row{}, rows...), seedRows(8)[4:]...)
	reset := eng.SetRows(expanded, nil, "")

	assert.False(t, reset)
	assert.Equal(t, 8, eng.RowCount())
	require.Len(t, eng.Columns(), 4, "derived column survives expansion")
	cv, ok := eng.Cell(colID, "a")
	require.True(t, ok)
	assert.Equal(t, 0.9, cv.Confidence)
	assert.NotNil(t, eng.SortSpec())
}

func TestEngine_ExpansionKeepsBaseColumnsWhenNil(t *testing.T) {
	eng := NewEngine("pmid", "en")
	eng.SetRows(seedRows(2), baseCols(), "pmid")

	eng.SetRows(seedRows(5), nil, "")
	assert.Len(t, eng.Columns(), 3)
}

func TestEngine_FirstLoadIsNotAReset(t *testing.T) {
	eng := NewEngine("pmid", "en")
	assert.False(t, eng.SetRows(seedRows(3), baseCols(), "pmid"))
}

func TestEngine_AddDerivedColumnMarksProcessingSynchronously(t *testing.T) {
	eng := NewEngine("pmid", "en")
	eng.SetRows(seedRows(2), baseCols(), "pmid")

	colID := eng.AddDerivedColumn("X", DerivedSpec{OutputType: OutputText})
	assert.True(t, eng.IsProcessing(colID))

	eng.SetProcessing(colID, false)
	assert.False(t, eng.IsProcessing(colID))
}

func TestEngine_RemoveDerivedColumnPurges(t *testing.T) {
	eng := NewEngine("pmid", "en")
	eng.SetRows(seedRows(2), baseCols(), "pmid")
	colID := eng.AddDerivedColumn("X", DerivedSpec{OutputType: OutputBoolean})
	eng.PutCell(colID, "a", CellValue{Value: String("Yes")})
	eng.SetBooleanFilter(colID, FilterYes)

	require.True(t, eng.RemoveDerivedColumn(colID))

	_, ok := eng.Cell(colID, "a")
	assert.False(t, ok)
	assert.True(t, eng.Filters().Empty(), "stale boolean filter dropped with the column")
	assert.False(t, eng.RemoveDerivedColumn("pmid"), "base columns are not removable")
}

func TestEngine_MarkColumnFailedWritesSentinel(t *testing.T) {
	eng := NewEngine("pmid", "en")
	rows := seedRows(3)
	eng.SetRows(rows, baseCols(), "pmid")
	colID := eng.AddDerivedColumn("X", DerivedSpec{OutputType: OutputBoolean})

	eng.MarkColumnFailed(colID, Identities(rows, "pmid"))

	for _, id := range Identities(rows, "pmid") {
		cv, ok := eng.Cell(colID, id)
		require.True(t, ok)
		assert.Equal(t, ErrorSentinel, cv.Value.Display())
		assert.True(t, cv.Failed)
	}
	_, stillThere := eng.Column(colID)
	assert.True(t, stillThere, "failed column stays registered for inspection")
}

func TestEngine_LateWritesAfterResetAreDropped(t *testing.T) {
	eng := NewEngine("pmid", "en")
	rows := seedRows(4)
	eng.SetRows(rows, baseCols(), "pmid")
	colID := eng.AddDerivedColumn("RCT", DerivedSpec{OutputType: OutputBoolean})

	// New dataset purges the column while its batch is still in flight.
	fresh := []Row{
		{"pmid": String("b1"), "title": String("other topic")},
		{"pmid": String("b2"), "title": String("entirely")},
	}
	require.True(t, eng.SetRows(fresh, baseCols(), "pmid"))

	eng.PutCell(colID, "a", CellValue{Value: String("Yes"), Confidence: 0.9})
	eng.MarkColumnFailed(colID, Identities(rows, "pmid"))

	for _, id := range Identities(rows, "pmid") {
		_, ok := eng.Cell(colID, id)
		assert.False(t, ok, "write for purged column %s row %s must be dropped", colID, id)
	}
}

func TestEngine_ExpandRowsRejectsStaleGeneration(t *testing.T) {
	eng := NewEngine("pmid", "en")
	eng.SetRows(seedRows(4), baseCols(), "pmid")
	gen := eng.Generation()

	fresh := []Row{
		{"pmid": String("b1"), "title": String("other topic")},
		{"pmid": String("b2"), "title": String("entirely")},
	}
	require.True(t, eng.SetRows(fresh, baseCols(), "pmid"))

	stale := seedRows(8)
	assert.False(t, eng.ExpandRows(gen, stale), "expansion of a replaced dataset")
	assert.Equal(t, []string{"b1", "b2"}, Identities(eng.Rows(), "pmid"))

	assert.True(t, eng.ExpandRows(eng.Generation(), append(fresh, Row{
		"pmid": String("b3"), "title": String("late page"),
	})))
	assert.Equal(t, 3, eng.RowCount())
}

func TestEngine_Reset(t *testing.T) {
	eng := NewEngine("pmid", "en")
	eng.SetRows(seedRows(3), baseCols(), "pmid")
	colID := eng.AddDerivedColumn("X", DerivedSpec{OutputType: OutputBoolean})
	eng.SetTextFilter("paper")

	eng.Reset()

	assert.Zero(t, eng.RowCount())
	assert.Empty(t, eng.Columns())
	assert.False(t, eng.IsProcessing(colID))
	assert.True(t, eng.Filters().Empty())

	// A fresh load after reset is a first load again, not a reset.
	assert.False(t, eng.SetRows(seedRows(2), baseCols(), "pmid"))
}

func TestEngine_DisplayRowsAppliesSortAndFilter(t *testing.T) {
	eng := NewEngine("pmid", "en")
	eng.SetRows([]Row{
		{"pmid": String("1"), "title": String("zeta")},
		{"pmid": String("2"), "title": String("alpha")},
		{"pmid": String("3"), "title": String("omega")},
	}, baseCols(), "pmid")

	eng.ToggleSort("title")
	eng.SetTextFilter("a")

	out := eng.DisplayRows()
	assert.Equal(t, []string{"2", "3", "1"}, Identities(out, "pmid"))
}
