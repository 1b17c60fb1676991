// Package lineage tracks derived dataset snapshots: immutable,
// timestamped, labeled nodes with typed provenance links, plus
// identity-set comparison between any two nodes.
package lineage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/litscope/internal/table"
)

// ProvenanceKind tags how a snapshot was produced.
type ProvenanceKind string

const (
	ProvenanceSearch  ProvenanceKind = "search"
	ProvenanceFilter  ProvenanceKind = "filter"
	ProvenanceCompare ProvenanceKind = "compare"
)

// SearchParams records the search that produced a root snapshot.
type SearchParams struct {
	Query    string `json:"query"`
	DateFrom string `json:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty"`
	DateType string `json:"date_type,omitempty"`
	Domain   string `json:"domain,omitempty"`
}

// Provenance is the structured origin of a snapshot. Search nodes are
// roots with no parents; filter nodes have one parent; compare nodes
// have two.
type Provenance struct {
	Kind        ProvenanceKind `json:"kind"`
	Search      *SearchParams  `json:"search,omitempty"`
	Description string         `json:"description,omitempty"`
	ParentIDs   []string       `json:"parent_ids,omitempty"`
}

// Snapshot is one immutable lineage node. RowIDs may exceed Rows: a
// search records all matching identifiers up to a cap even when only a
// page of row data was fetched.
type Snapshot struct {
	ID           string      `json:"id"`
	Timestamp    time.Time   `json:"timestamp"`
	Label        string      `json:"label,omitempty"`
	Provenance   Provenance  `json:"provenance"`
	Rows         []table.Row `json:"-"`
	RowIDs       []string    `json:"row_ids"`
	TotalMatched int         `json:"total_matched"`
	KeyField     string      `json:"key_field"`
}

// Tracker holds the append-only snapshot list for one session. The key
// field is recorded per snapshot because switching search domains
// changes the identity field for subsequent nodes.
type Tracker struct {
	keyField string
	snaps    []Snapshot
}

// NewTracker creates an empty tracker keyed by the row identity field.
func NewTracker(keyField string) *Tracker {
	return &Tracker{keyField: keyField}
}

// SetKeyField changes the identity field used for snapshots recorded
// from now on. Existing snapshots keep the field they were recorded
// with.
func (t *Tracker) SetKeyField(keyField string) {
	t.keyField = keyField
}

// RecordSearch appends a new root node. Repeat searches with identical
// parameters are distinct history entries; nothing is ever merged.
// allIDs, when non-empty, becomes the node's identity set; otherwise
// the fetched rows' identities are used.
func (t *Tracker) RecordSearch(rows []table.Row, totalMatched int, allIDs []string, params SearchParams) string {
	ids := allIDs
	if len(ids) == 0 {
		ids = table.Identities(rows, t.keyField)
	}
	snap := Snapshot{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Provenance: Provenance{
			Kind:   ProvenanceSearch,
			Search: &params,
		},
		Rows:         rows,
		RowIDs:       ids,
		TotalMatched: totalMatched,
		KeyField:     t.keyField,
	}
	t.snaps = append(t.snaps, snap)
	return snap.ID
}

// RecordDerived appends a child node. A derived node's total is its own
// size, not its ancestor's. The identity field comes from the parent
// snapshots, not the tracker's current one: a node derived after a
// domain switch still keys its rows the way its ancestors did.
func (t *Tracker) RecordDerived(rows []table.Row, prov Provenance, label string) string {
	keyField := t.keyField
	for _, pid := range prov.ParentIDs {
		if parent, ok := t.Get(pid); ok {
			keyField = parent.KeyField
			break
		}
	}
	snap := Snapshot{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Label:        label,
		Provenance:   prov,
		Rows:         rows,
		RowIDs:       table.Identities(rows, keyField),
		TotalMatched: len(rows),
		KeyField:     keyField,
	}
	t.snaps = append(t.snaps, snap)
	return snap.ID
}

// Get returns a snapshot by id.
func (t *Tracker) Get(id string) (Snapshot, bool) {
	for _, s := range t.snaps {
		if s.ID == id {
			return s, true
		}
	}
	return Snapshot{}, false
}

// List returns the snapshots in recording order.
func (t *Tracker) List() []Snapshot {
	out := make([]Snapshot, len(t.snaps))
	copy(out, t.snaps)
	return out
}

// Relabel sets a snapshot's label.
func (t *Tracker) Relabel(id, label string) error {
	for i := range t.snaps {
		if t.snaps[i].ID == id {
			t.snaps[i].Label = label
			return nil
		}
	}
	return eris.Errorf("lineage: snapshot %s not found", id)
}

// Delete removes a snapshot from the list. Surviving children keep
// their parent id references; a dangling reference displays as an
// unknown parent rather than erroring.
func (t *Tracker) Delete(id string) error {
	for i := range t.snaps {
		if t.snaps[i].ID == id {
			t.snaps = append(t.snaps[:i], t.snaps[i+1:]...)
			return nil
		}
	}
	return eris.Errorf("lineage: snapshot %s not found", id)
}

// Reset clears the entire lineage list atomically.
func (t *Tracker) Reset() {
	t.snaps = nil
}

// VersionOf returns a snapshot's positional version number: most recent
// is highest. Recomputed on every call, never cached, because deletion
// shifts positions. Returns 0 and false when the id is unknown.
func (t *Tracker) VersionOf(id string) (int, bool) {
	for i, s := range t.snaps {
		if s.ID == id {
			return len(t.snaps) - i, true
		}
	}
	return 0, false
}

// Describe renders a snapshot's provenance as display text. Parent
// references resolve to current positional versions; deleted parents
// degrade to "unknown parent".
func (t *Tracker) Describe(s Snapshot) string {
	switch s.Provenance.Kind {
	case ProvenanceSearch:
		p := s.Provenance.Search
		if p == nil {
			return "search"
		}
		desc := fmt.Sprintf("search %q", p.Query)
		if p.DateFrom != "" || p.DateTo != "" {
			desc += fmt.Sprintf(" (%s %s..%s)", p.DateType, p.DateFrom, p.DateTo)
		}
		return desc
	case ProvenanceFilter:
		return fmt.Sprintf("%s from %s", s.Provenance.Description, t.parentRef(s.Provenance.ParentIDs, 0))
	case ProvenanceCompare:
		return fmt.Sprintf("%s of %s and %s",
			s.Provenance.Description,
			t.parentRef(s.Provenance.ParentIDs, 0),
			t.parentRef(s.Provenance.ParentIDs, 1),
		)
	}
	return string(s.Provenance.Kind)
}

// parentRef formats one parent reference by positional version.
func (t *Tracker) parentRef(parents []string, idx int) string {
	if idx >= len(parents) {
		return "unknown parent"
	}
	v, ok := t.VersionOf(parents[idx])
	if !ok {
		return "unknown parent"
	}
	return fmt.Sprintf("#%d", v)
}
