package lineage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/litscope/internal/table"
)

func snapWithIDs(keyField string, ids []string, rows []table.Row) Snapshot {
	return Snapshot{ID: "snap-" + ids[0], RowIDs: ids, Rows: rows, KeyField: keyField}
}

func seqIDs(prefix string, from, to int) []string {
	out := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

func TestCompare_Partitions(t *testing.T) {
	// 100 ids in a, 150 in b, 80 shared.
	shared := seqIDs("s", 0, 80)
	a := snapWithIDs("pmid", append(seqIDs("a", 0, 20), shared...), nil)
	b := snapWithIDs("pmid", append(seqIDs("b", 0, 70), shared...), nil)

	c := Compare(a, b)
	assert.Len(t, c.OnlyAIDs, 20)
	assert.Len(t, c.OnlyBIDs, 70)
	assert.Len(t, c.BothIDs, 80)
}

func TestCompare_PartitionsAreDisjointAndComplete(t *testing.T) {
	a := snapWithIDs("pmid", []string{"1", "2", "3", "4"}, nil)
	b := snapWithIDs("pmid", []string{"3", "4", "5"}, nil)

	c := Compare(a, b)

	seen := make(map[string]int)
	for _, id := range c.OnlyAIDs {
		seen[id]++
	}
	for _, id := range c.OnlyBIDs {
		seen[id]++
	}
	for _, id := range c.BothIDs {
		seen[id]++
	}
	assert.Len(t, seen, 5, "union of partitions covers every input id")
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s appears in exactly one partition", id)
	}
	assert.Equal(t, []string{"1", "2"}, c.OnlyAIDs)
	assert.Equal(t, []string{"5"}, c.OnlyBIDs)
	assert.Equal(t, []string{"3", "4"}, c.BothIDs)
}

func TestCompare_IdentityNotRowEquality(t *testing.T) {
	// Same id, different row contents: still the same entity.
	a := snapWithIDs("pmid", []string{"1"}, []table.Row{
		{"pmid": table.String("1"), "title": table.String("old title")},
	})
	b := snapWithIDs("pmid", []string{"1"}, []table.Row{
		{"pmid": table.String("1"), "title": table.String("corrected title"), "doi": table.String("x")},
	})

	c := Compare(a, b)
	assert.Empty(t, c.OnlyAIDs)
	assert.Empty(t, c.OnlyBIDs)
	require.Len(t, c.Both, 1)
	assert.Equal(t, "old title", c.Both[0]["title"].Display(),
		"shared rows materialize from a's copy first")
}

func TestCompare_MaterializesKeyOnlyRows(t *testing.T) {
	// Row data was only fetched for the first page; the rest are bare ids.
	a := snapWithIDs("pmid", []string{"1", "2"}, []table.Row{
		{"pmid": table.String("1"), "title": table.String("fetched")},
	})
	b := snapWithIDs("pmid", []string{"3"}, nil)

	c := Compare(a, b)
	require.Len(t, c.OnlyA, 2)
	assert.Equal(t, "fetched", c.OnlyA[0]["title"].Display())
	assert.Equal(t, table.Row{"pmid": table.String("2")}, c.OnlyA[1],
		"unfetched ids materialize as key-only rows")
	require.Len(t, c.OnlyB, 1)
	assert.Equal(t, table.Row{"pmid": table.String("3")}, c.OnlyB[0])
}

func TestComparison_RowsAccessor(t *testing.T) {
	a := snapWithIDs("pmid", []string{"1", "2"}, nil)
	b := snapWithIDs("pmid", []string{"2"}, nil)
	c := Compare(a, b)

	assert.Len(t, c.Rows(PartitionOnlyA), 1)
	assert.Empty(t, c.Rows(PartitionOnlyB))
	assert.Len(t, c.Rows(PartitionBoth), 1)
	assert.Nil(t, c.Rows("bogus"))
}
