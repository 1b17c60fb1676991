// Package table implements the enrichment table engine: dynamic rows,
// base plus AI-derived columns, and the sorted/filtered view computed
// over them.
package table

import (
	"strconv"
	"strings"
)

// ValueKind discriminates the closed set of cell value types.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

// Value is a single cell value. Rows are free-form records, so values
// carry their own kind rather than relying on Go's static types.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []string
}

// Null is the zero Value.
var Null = Value{}

// String wraps a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List wraps a list-of-strings value.
func List(items []string) Value { return Value{kind: KindList, list: items} }

// Kind returns the value's kind tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Num returns the numeric value, coercing non-numeric kinds to 0.
// Numeric-looking strings parse; everything else is 0.
func (v Value) Num() float64 {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64); err == nil {
			return n
		}
	case KindBool:
		if v.b {
			return 1
		}
	}
	return 0
}

// Items returns the underlying list for KindList values, nil otherwise.
func (v Value) Items() []string {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Display renders the value as its display string. Lists join with a
// comma separator; the joined string is what sorting and filtering see.
func (v Value) Display() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindList:
		return strings.Join(v.list, ", ")
	}
	return ""
}

// Row is one unit of tabular data, keyed by arbitrary accessor strings.
type Row map[string]Value

// Identity resolves a row's stable identity: the key field's value
// coerced to a string. Missing or null fields yield the empty string;
// this never errors. Two rows are the same entity iff their identities
// are equal, regardless of any other field differences.
func Identity(row Row, keyField string) string {
	v, ok := row[keyField]
	if !ok || v.IsNull() {
		return ""
	}
	return v.Display()
}

// Identities maps a row slice to its identity strings, in order.
func Identities(rows []Row, keyField string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = Identity(r, keyField)
	}
	return out
}
