package table

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
)

// fingerprintRows is the number of leading row identities hashed into
// the dataset fingerprint for reset detection.
const fingerprintRows = 3

// Engine owns the mutable table state for one session: the row set,
// column registry, derived value store, sort spec and filters. All
// mutation goes through its methods; concurrent enrichment goroutines
// and the HTTP surface share it safely through the internal mutex.
type Engine struct {
	mu         sync.Mutex
	keyField   string
	rows       []Row
	registry   *Registry
	store      *ValueStore
	sortSpec   *SortSpec
	filters    FilterState
	fingerprnt string
	generation int
	processing map[string]bool
	coll       *collate.Collator
}

// NewEngine creates an engine keyed by the given row identity field.
// Locale controls string sort ordering ("en" when empty).
func NewEngine(keyField, locale string) *Engine {
	if locale == "" {
		locale = "en"
	}
	return &Engine{
		keyField:   keyField,
		registry:   NewRegistry(),
		store:      NewValueStore(),
		filters:    FilterState{Boolean: map[string]TriState{}},
		processing: make(map[string]bool),
		coll:       newCollator(locale),
	}
}

// KeyField returns the configured identity field.
func (e *Engine) KeyField() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keyField
}

// fingerprint derives the dataset fingerprint from the identities of
// the first few rows.
func fingerprint(rows []Row, keyField string) string {
	n := len(rows)
	if n > fingerprintRows {
		n = fingerprintRows
	}
	ids := make([]string, 0, n)
	for _, r := range rows[:n] {
		ids = append(ids, Identity(r, keyField))
	}
	return strings.Join(ids, "|")
}

// SetRows installs a row set with the base columns for its domain and
// detects whether this is a new dataset or an expansion of the current
// one. A changed leading-row fingerprint atomically clears all derived
// columns, derived values, the sort spec and the filters; an unchanged
// fingerprint (same dataset, possibly with appended rows) preserves all
// derived state so expansion can retroactively enrich new rows.
// A nil baseColumns keeps the current base columns (used by expansion).
// Returns whether derived state was reset.
func (e *Engine) SetRows(rows []Row, baseColumns []Column, keyField string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if keyField != "" {
		e.keyField = keyField
	}
	next := fingerprint(rows, e.keyField)
	reset := e.fingerprnt != "" && e.fingerprnt != next
	e.rows = rows
	e.fingerprnt = next
	if baseColumns != nil {
		e.registry.SetBaseColumns(baseColumns)
	}

	if reset {
		e.generation++
		for _, c := range e.registry.DerivedColumns() {
			e.registry.RemoveDerived(c.ID)
		}
		e.store.Clear()
		e.sortSpec = nil
		e.filters = FilterState{Boolean: map[string]TriState{}}
		e.processing = make(map[string]bool)
		zap.L().Info("table: dataset replaced, derived state cleared",
			zap.Int("rows", len(rows)),
		)
	}
	return reset
}

// Generation identifies the current dataset. It advances whenever the
// dataset is replaced or the engine is reset, so work captured against
// an abandoned dataset can be recognized and dropped.
func (e *Engine) Generation() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// ExpandRows swaps in a larger row set for the dataset identified by
// gen. A stale generation means the dataset the expansion was fetched
// for has been replaced; the rows are dropped. Reports whether the
// expansion was installed.
func (e *Engine) ExpandRows(gen int, rows []Row) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return false
	}
	e.rows = rows
	e.fingerprnt = fingerprint(rows, e.keyField)
	return true
}

// Rows returns a snapshot copy of the raw row set.
func (e *Engine) Rows() []Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Row, len(e.rows))
	copy(out, e.rows)
	return out
}

// RowCount returns the number of loaded rows.
func (e *Engine) RowCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rows)
}

// DisplayRows computes the sorted, filtered display sequence.
func (e *Engine) DisplayRows() []Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ComputeView(e.rows, e.registry, e.store, e.keyField, e.sortSpec, e.filters, e.coll)
}

// Columns returns the ordered column set.
func (e *Engine) Columns() []Column {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Columns()
}

// Column returns a column by id.
func (e *Engine) Column(id string) (Column, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Get(id)
}

// AddDerivedColumn registers a derived column and synchronously marks it
// processing, so a pending indicator exists before the first suspension
// point of the enrichment pipeline.
func (e *Engine) AddDerivedColumn(label string, spec DerivedSpec) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.registry.AddDerived(label, spec)
	e.processing[id] = true
	return id
}

// RemoveDerivedColumn removes a derived column and purges its stored
// values. No-op for base columns.
func (e *Engine) RemoveDerivedColumn(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.registry.RemoveDerived(id) {
		return false
	}
	e.store.PurgeColumn(id)
	delete(e.processing, id)
	delete(e.filters.Boolean, id)
	return true
}

// SetVisibility toggles column visibility.
func (e *Engine) SetVisibility(id string, visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry.SetVisibility(id, visible)
}

// ToggleExplanationDisplay flips a derived column's explanation flag.
func (e *Engine) ToggleExplanationDisplay(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry.ToggleExplanationDisplay(id)
}

// PutCell stores a derived value record. Writes for columns no longer
/// registered are dropped: a dataset reset that purged the column also
// abandons its in-flight results. The caller is responsible for only
// writing rows that were part of the column's submitted batch.
func (e *Engine) PutCell(columnID, rowID string, cv CellValue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.derivedRegistered(columnID) {
		return
	}
	e.store.Put(columnID, rowID, cv)
}

// derivedRegistered reports whether columnID names a currently
// registered derived column. Callers must hold the mutex.
func (e *Engine) derivedRegistered(columnID string) bool {
	col, ok := e.registry.Get(columnID)
	return ok && col.Kind == ColumnDerived
}

// Cell returns the derived value record for a cell.
func (e *Engine) Cell(columnID, rowID string) (CellValue, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(columnID, rowID)
}

// MarkColumnFailed writes the error sentinel for every submitted row of
// a failed batch. The column stays registered so the user can inspect,
// delete, or retry by re-adding. Sentinels for a column a reset already
// purged are dropped like any other late write.
func (e *Engine) MarkColumnFailed(columnID string, rowIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.derivedRegistered(columnID) {
		return
	}
	e.store.MarkFailed(columnID, rowIDs)
}

// SetProcessing sets or clears a column's in-flight marker.
func (e *Engine) SetProcessing(columnID string, on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if on {
		e.processing[columnID] = true
	} else {
		delete(e.processing, columnID)
	}
}

// IsProcessing reports whether a column's batch is in flight.
func (e *Engine) IsProcessing(columnID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processing[columnID]
}

// ToggleSort advances the sort state for a column header click.
func (e *Engine) ToggleSort(columnID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sortSpec = CycleSort(e.sortSpec, columnID)
}

// SortSpec returns the active sort, nil when unsorted.
func (e *Engine) SortSpec() *SortSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sortSpec == nil {
		return nil
	}
	s := *e.sortSpec
	return &s
}

// SetTextFilter sets the free-text substring filter.
func (e *Engine) SetTextFilter(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters.Text = text
}

// SetBooleanFilter sets a tri-state filter on a derived boolean column.
func (e *Engine) SetBooleanFilter(columnID string, state TriState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state == FilterAll || state == "" {
		delete(e.filters.Boolean, columnID)
		return
	}
	e.filters.Boolean[columnID] = state
}

// Filters returns a copy of the active filter state.
func (e *Engine) Filters() FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	boolean := make(map[string]TriState, len(e.filters.Boolean))
	for k, v := range e.filters.Boolean {
		boolean[k] = v
	}
	return FilterState{Text: e.filters.Text, Boolean: boolean}
}

/// Reset clears everything: rows, columns, derived values, sort, filters
// and in-flight markers.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = nil
	e.fingerprnt = ""
	e.generation++
	e.registry = NewRegistry()
	e.store.Clear()
	e.sortSpec = nil
	e.filters = FilterState{Boolean: map[string]TriState{}}
	e.processing = make(map[string]bool)
}

// ResolveCell returns the display value for one cell of a row.
func (e *Engine) ResolveCell(row Row, col Column) (Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Resolve(row, col, e.keyField, e.store)
}
