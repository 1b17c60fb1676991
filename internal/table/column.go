package table

import "github.com/google/uuid"

// ColumnKind distinguishes caller-supplied base columns from AI-derived ones.
type ColumnKind string

const (
	ColumnBase    ColumnKind = "base"
	ColumnDerived ColumnKind = "derived"
)

// OutputType is the typed judgment a derived column produces.
type OutputType string

const (
	OutputBoolean OutputType = "boolean"
	OutputNumber  OutputType = "number"
	OutputText    OutputType = "text"
)

// ScoreRange bounds a numeric derived column's score.
type ScoreRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DerivedSpec describes how a derived column's values are computed.
type DerivedSpec struct {
	Criterion       string      `json:"criterion"`
	InputFields     []string    `json:"input_fields"`
	OutputType      OutputType  `json:"output_type"`
	ScoreRange      *ScoreRange `json:"score_range,omitempty"`
	ShowExplanation bool        `json:"show_explanation"`
}

// Column is one column of the table. Accessor is the row field read for
// base columns; derived columns resolve through the value store instead.
type Column struct {
	ID       string       `json:"id"`
	Label    string       `json:"label"`
	Accessor string       `json:"accessor"`
	Kind     ColumnKind   `json:"kind"`
	Numeric  bool         `json:"numeric"`
	Visible  bool         `json:"visible"`
	Derived  *DerivedSpec `json:"derived,omitempty"`
}

// IsNumeric reports whether the column compares numerically: base
// columns flagged numeric, or derived columns with number output.
func (c Column) IsNumeric() bool {
	if c.Kind == ColumnDerived && c.Derived != nil {
		return c.Derived.OutputType == OutputNumber
	}
	return c.Numeric
}

// Registry holds the ordered column set for a session: base columns
// first, derived columns appended in creation order. Mutations never
// reorder existing columns except SetBaseColumns, which is the only
// way base columns change.
type Registry struct {
	cols []Column
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// SetBaseColumns replaces all base columns, preserving currently
// registered derived columns after them in their original order.
func (r *Registry) SetBaseColumns(base []Column) {
	cols := make([]Column, 0, len(base)+len(r.cols))
	for _, c := range base {
		c.Kind = ColumnBase
		c.Derived = nil
		if c.ID == "" {
			c.ID = c.Accessor
		}
		cols = append(cols, c)
	}
	for _, c := range r.cols {
		if c.Kind == ColumnDerived {
			cols = append(cols, c)
		}
	}
	r.cols = cols
}

// AddDerived appends a visible derived column with a fresh session-unique
// id and returns the id immediately, before any inference has run, so
// the caller can bind a pending indicator to it.
func (r *Registry) AddDerived(label string, spec DerivedSpec) string {
	id := uuid.New().String()
	r.cols = append(r.cols, Column{
		ID:      id,
		Label:   label,
		Kind:    ColumnDerived,
		Visible: true,
		Derived: &spec,
	})
	return id
}

// RemoveDerived removes a derived column from the registry. Base
// columns are never removed this way; the call is a no-op for them.
// Returns whether a column was removed.
func (r *Registry) RemoveDerived(id string) bool {
	for i, c := range r.cols {
		if c.ID == id && c.Kind == ColumnDerived {
			r.cols = append(r.cols[:i], r.cols[i+1:]...)
			return true
		}
	}
	return false
}

// SetVisibility toggles a column's visibility flag.
func (r *Registry) SetVisibility(id string, visible bool) {
	for i := range r.cols {
		if r.cols[i].ID == id {
			r.cols[i].Visible = visible
			return
		}
	}
}

// ToggleExplanationDisplay flips the show-explanation flag on a derived
// column.
func (r *Registry) ToggleExplanationDisplay(id string) {
	for i := range r.cols {
		if r.cols[i].ID == id && r.cols[i].Derived != nil {
			r.cols[i].Derived.ShowExplanation = !r.cols[i].Derived.ShowExplanation
			return
		}
	}
}

// Get returns a column by id.
func (r *Registry) Get(id string) (Column, bool) {
	for _, c := range r.cols {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// Columns returns a copy of the ordered column set.
func (r *Registry) Columns() []Column {
	out := make([]Column, len(r.cols))
	copy(out, r.cols)
	return out
}

// DerivedColumns returns the derived columns in order.
func (r *Registry) DerivedColumns() []Column {
	var out []Column
	for _, c := range r.cols {
		if c.Kind == ColumnDerived {
			out = append(out, c)
		}
	}
	return out
}
