package table

// ErrorSentinel is the display value stored for every row of a derived
// column whose batch inference call failed.
const ErrorSentinel = "Error"

// CellValue is one derived value record, keyed by (columnID, rowID).
// Confidence and explanation are retained independent of the display
// value for later inspection and export.
type CellValue struct {
	Value       Value   `json:"value"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	TextValue   string  `json:"text_value,omitempty"`
	Failed      bool    `json:"failed,omitempty"`
}

// ValueStore holds derived value records. Keys are namespaced by column
// id, so concurrent batches for different columns cannot collide.
type ValueStore struct {
	cells map[string]map[string]CellValue
}

// NewValueStore creates an empty store.
func NewValueStore() *ValueStore {
	return &ValueStore{cells: make(map[string]map[string]CellValue)}
}

// Put records an inference result for a cell. Presence of a record
// means inference completed for that cell; absence while the column is
// in flight means pending.
func (s *ValueStore) Put(columnID, rowID string, cv CellValue) {
	col, ok := s.cells[columnID]
	if !ok {
		col = make(map[string]CellValue)
		s.cells[columnID] = col
	}
	col[rowID] = cv
}

// Get looks up a cell record.
func (s *ValueStore) Get(columnID, rowID string) (CellValue, bool) {
	cv, ok := s.cells[columnID][rowID]
	return cv, ok
}

// MarkFailed writes the error sentinel for every given row of a column.
func (s *ValueStore) MarkFailed(columnID string, rowIDs []string) {
	for _, id := range rowIDs {
		s.Put(columnID, id, CellValue{Value: String(ErrorSentinel), Failed: true})
	}
}

// PurgeColumn removes all records for a column.
func (s *ValueStore) PurgeColumn(columnID string) {
	delete(s.cells, columnID)
}

// Clear removes every record.
func (s *ValueStore) Clear() {
	s.cells = make(map[string]map[string]CellValue)
}

// Count returns the number of records stored for a column.
func (s *ValueStore) Count(columnID string) int {
	return len(s.cells[columnID])
}

// Resolve returns the display value for a (row, column) cell. Base
// columns read the row field directly; derived columns look up the
// value store by (columnID, identity). The second return is false for
// a pending derived cell (no record yet).
func Resolve(row Row, col Column, keyField string, store *ValueStore) (Value, bool) {
	if col.Kind == ColumnDerived {
		cv, ok := store.Get(col.ID, Identity(row, keyField))
		if !ok {
			return Null, false
		}
		return cv.Value, true
	}
	v, ok := row[col.Accessor]
	if !ok {
		return Null, false
	}
	return v, true
}
