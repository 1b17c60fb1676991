package table

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortDirection orders a sorted column.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortSpec is the single active sort. A nil *SortSpec means unsorted.
type SortSpec struct {
	ColumnID  string        `json:"column_id"`
	Direction SortDirection `json:"direction"`
}

// CycleSort advances the sort state for a header click: same column
// cycles asc, desc, none; a different column resets to asc on it.
func CycleSort(current *SortSpec, columnID string) *SortSpec {
	if current == nil || current.ColumnID != columnID {
		return &SortSpec{ColumnID: columnID, Direction: SortAsc}
	}
	if current.Direction == SortAsc {
		return &SortSpec{ColumnID: columnID, Direction: SortDesc}
	}
	return nil
}

// TriState is a per-derived-boolean-column filter setting.
type TriState string

const (
	FilterAll TriState = "all"
	FilterYes TriState = "yes"
	FilterNo  TriState = "no"
)

// FilterState holds the active filters: a free-text substring filter
// across all columns plus tri-state filters keyed by derived boolean
// column id. Both are conjunctive.
type FilterState struct {
	Text    string              `json:"text"`
	Boolean map[string]TriState `json:"boolean,omitempty"`
}

// Empty reports whether no filter is active.
func (f FilterState) Empty() bool {
	if f.Text != "" {
		return false
	}
	for _, st := range f.Boolean {
		if st != FilterAll && st != "" {
			return false
		}
	}
	return true
}

// newCollator builds the case-insensitive locale-aware collator used
// for string ordering. Unknown tags fall back to English.
func newCollator(locale string) *collate.Collator {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return collate.New(tag, collate.IgnoreCase)
}

// ComputeView produces the display row sequence: sort, then filter.
// Pure with respect to its inputs; the input slice is never mutated and
// no truncation is applied.
func ComputeView(rows []Row, reg *Registry, store *ValueStore, keyField string, spec *SortSpec, filters FilterState, coll *collate.Collator) []Row {
	sorted := sortRows(rows, reg, store, keyField, spec, coll)
	return filterRows(sorted, reg, store, keyField, filters)
}

// sortRows returns a sorted copy of rows per the sort spec. Missing and
// null values sort last regardless of direction; numeric columns compare
// numerically with non-numeric values coerced to 0; all other columns
// compare case-insensitively with locale-aware ordering.
func sortRows(rows []Row, reg *Registry, store *ValueStore, keyField string, spec *SortSpec, coll *collate.Collator) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	if spec == nil {
		return out
	}
	col, ok := reg.Get(spec.ColumnID)
	if !ok {
		return out
	}
	desc := spec.Direction == SortDesc
	numeric := col.IsNumeric()

	sort.SliceStable(out, func(i, j int) bool {
		vi, oki := Resolve(out[i], col, keyField, store)
		vj, okj := Resolve(out[j], col, keyField, store)
		mi := !oki || vi.IsNull()
		mj := !okj || vj.IsNull()
		if mi || mj {
			// Missing values sink to the bottom in both directions.
			return !mi && mj
		}
		if numeric {
			ni, nj := vi.Num(), vj.Num()
			if ni == nj {
				return false
			}
			if desc {
				return ni > nj
			}
			return ni < nj
		}
		cmp := coll.CompareString(vi.Display(), vj.Display())
		if cmp == 0 {
			return false
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return out
}

// filterRows applies the conjunctive filter set.
func filterRows(rows []Row, reg *Registry, store *ValueStore, keyField string, filters FilterState) []Row {
	if filters.Empty() {
		return rows
	}
	cols := reg.Columns()
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if passesFilters(row, cols, store, keyField, filters) {
			out = append(out, row)
		}
	}
	return out
}

// passesFilters reports whether a row satisfies the text filter and
// every active boolean filter.
func passesFilters(row Row, cols []Column, store *ValueStore, keyField string, filters FilterState) bool {
	if !passesTextFilter(row, cols, store, keyField, filters.Text) {
		return false
	}
	for colID, state := range filters.Boolean {
		if !passesBooleanFilter(row, colID, store, keyField, state) {
			return false
		}
	}
	return true
}

// passesTextFilter matches if any column's resolved display value,
// case-insensitively, contains the filter substring. Visibility does
// not matter; pending derived cells read as empty strings.
func passesTextFilter(row Row, cols []Column, store *ValueStore, keyField string, text string) bool {
	if text == "" {
		return true
	}
	needle := strings.ToLower(text)
	for _, col := range cols {
		v, ok := Resolve(row, col, keyField, store)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(v.Display()), needle) {
			return true
		}
	}
	return false
}

// passesBooleanFilter applies one tri-state filter: yes matches rows
// whose resolved value is truthy, no is the negation, all always
// matches.
func passesBooleanFilter(row Row, colID string, store *ValueStore, keyField string, state TriState) bool {
	if state == FilterAll || state == "" {
		return true
	}
	cv, ok := store.Get(colID, Identity(row, keyField))
	yes := ok && isAffirmative(cv.Value)
	if state == FilterYes {
		return yes
	}
	return !yes
}

// isAffirmative reports truthiness for boolean-column values: true
// bools and yes/true/1 strings, case-insensitively. Pending and error
// cells are never affirmative.
func isAffirmative(v Value) bool {
	switch v.Kind() {
	case KindBool:
		return v.Num() == 1
	case KindString:
		switch strings.ToLower(strings.TrimSpace(v.Display())) {
		case "yes", "true", "1":
			return true
		}
	case KindNumber:
		return v.Num() == 1
	}
	return false
}
