package lineage

import (
	"github.com/sells-group/litscope/internal/table"
)

// Comparison partitions two snapshots' identity sets. The three id
// lists are pairwise disjoint and their union equals the union of the
// inputs' id sets. Rows materializes each partition back to row
// objects where row data exists; ids whose row data was never fetched
// materialize as a bare row carrying only the key field.
type Comparison struct {
	OnlyAIDs []string
	OnlyBIDs []string
	BothIDs  []string
	OnlyA    []table.Row
	OnlyB    []table.Row
	Both     []table.Row
}

// Partition names one side of a comparison.
type Partition string

const (
	PartitionOnlyA Partition = "only_a"
	PartitionOnlyB Partition = "only_b"
	PartitionBoth  Partition = "both"
)

// Compare partitions a and b by row identity, not full-row equality.
// Rows for the shared partition come from a's store, falling back to
// b's, since either copy is an equally valid representative. Each
// snapshot's rows are indexed by its own key field.
func Compare(a, b Snapshot) Comparison {
	aSet := idSet(a.RowIDs)
	bSet := idSet(b.RowIDs)
	aRows := rowIndex(a.Rows, a.KeyField)
	bRows := rowIndex(b.Rows, b.KeyField)
	keyField := a.KeyField

	var c Comparison
	for _, id := range a.RowIDs {
		if _, shared := bSet[id]; shared {
			c.BothIDs = append(c.BothIDs, id)
			c.Both = append(c.Both, materialize(id, keyField, aRows, bRows))
		} else {
			c.OnlyAIDs = append(c.OnlyAIDs, id)
			c.OnlyA = append(c.OnlyA, materialize(id, keyField, aRows))
		}
	}
	for _, id := range b.RowIDs {
		if _, shared := aSet[id]; !shared {
			c.OnlyBIDs = append(c.OnlyBIDs, id)
			c.OnlyB = append(c.OnlyB, materialize(id, keyField, bRows))
		}
	}
	return c
}

// Rows returns the materialized rows of one partition.
func (c Comparison) Rows(p Partition) []table.Row {
	switch p {
	case PartitionOnlyA:
		return c.OnlyA
	case PartitionOnlyB:
		return c.OnlyB
	case PartitionBoth:
		return c.Both
	}
	return nil
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func rowIndex(rows []table.Row, keyField string) map[string]table.Row {
	idx := make(map[string]table.Row, len(rows))
	for _, r := range rows {
		idx[table.Identity(r, keyField)] = r
	}
	return idx
}

// materialize resolves an id through the given stores in order,
// synthesizing a key-only row when no store holds it.
func materialize(id, keyField string, stores ...map[string]table.Row) table.Row {
	for _, store := range stores {
		if r, ok := store[id]; ok {
			return r
		}
	}
	return table.Row{keyField: table.String(id)}
}
