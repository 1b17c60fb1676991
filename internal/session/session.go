// Package session ties the table engine, enrichment pipeline, search
// providers and lineage tracker into one single-writer workbench
// session. All shared mutable state is owned here; callers mutate only
// through these operations.
package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/litscope/internal/enrich"
	"github.com/sells-group/litscope/internal/export"
	"github.com/sells-group/litscope/internal/lineage"
	"github.com/sells-group/litscope/internal/search"
	"github.com/sells-group/litscope/internal/table"
)

// Config bounds session behavior.
type Config struct {
	// SearchLimit is the default page size for searches.
	SearchLimit int
	// MaxEnrichRows caps the expanded row set fetched before enrichment.
	MaxEnrichRows int
	// Locale controls string sort ordering.
	Locale string
}

// Session is one live workbench. Operations are serialized by the
// mutex; enrichment batches run on goroutines keyed by column id and
// touch only the engine, whose own lock keeps them isolated.
type Session struct {
	mu         sync.Mutex
	cfg        Config
	engine     *table.Engine
	tracker    *lineage.Tracker
	providers  map[string]search.Provider
	pipeline   *enrich.Pipeline
	active     search.Provider
	criteria   search.Criteria
	total      int
	rootSnapID string
	lastErr    string
	tasks      map[string]chan struct{}
}

// New creates a session over the given providers and inference backend.
func New(cfg Config, providers []search.Provider, inf enrich.Inferencer) *Session {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 20
	}
	if cfg.MaxEnrichRows <= 0 {
		cfg.MaxEnrichRows = 200
	}
	byName := make(map[string]search.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Session{
		cfg:       cfg,
		engine:    table.NewEngine("", cfg.Locale),
		tracker:   lineage.NewTracker(""),
		providers: byName,
		pipeline:  enrich.NewPipeline(inf),
		tasks:     make(map[string]chan struct{}),
	}
}

// Engine exposes the table engine for read-side consumers (export,
// rendering). Mutation still goes through session operations.
func (s *Session) Engine() *table.Engine {
	return s.engine
}

// Search runs a query against a provider, installs the result as the
// active dataset, and records a root lineage node. A failed search
// retains its error message and records nothing.
func (s *Session) Search(ctx context.Context, domain string, c search.Criteria) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	provider, ok := s.providers[domain]
	if !ok {
		return "", eris.Errorf("session: unknown search domain %q", domain)
	}
	if c.Limit == 0 {
		c.Limit = s.cfg.SearchLimit
	}
	if err := c.Validate(); err != nil {
		s.lastErr = err.Error()
		return "", err
	}

	res, err := provider.Search(ctx, c)
	if err != nil {
		s.lastErr = err.Error()
		zap.L().Error("session: search failed",
			zap.String("domain", domain),
			zap.String("query", c.Query),
			zap.Error(err),
		)
		return "", err
	}

	s.lastErr = ""
	s.active = provider
	s.criteria = c
	s.total = res.TotalMatched

	s.engine.SetRows(res.Rows, provider.BaseColumns(), provider.KeyField())
	s.tracker.SetKeyField(provider.KeyField())
	s.rootSnapID = s.tracker.RecordSearch(res.Rows, res.TotalMatched, res.AllIDs, lineage.SearchParams{
		Query:    c.Query,
		DateFrom: c.From,
		DateTo:   c.To,
		DateType: c.DateType,
		Domain:   domain,
	})

	zap.L().Info("session: search complete",
		zap.String("domain", domain),
		zap.String("query", c.Query),
		zap.Int("rows", len(res.Rows)),
		zap.Int("total_matched", res.TotalMatched),
	)
	return s.rootSnapID, nil
}

// AddDerivedColumn registers a derived column, returns its id
// immediately, and enriches it in the background. The processing
// marker is set before this returns, so no caller can observe the
// column without either data or a pending indicator.
func (s *Session) AddDerivedColumn(ctx context.Context, label string, spec table.DerivedSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(spec.Criterion) == "" {
		return "", eris.New("session: criterion is required")
	}
	if strings.TrimSpace(label) == "" {
		return "", eris.New("session: column label is required")
	}
	if s.engine.RowCount() == 0 {
		return "", eris.New("session: no dataset loaded")
	}

	id := s.engine.AddDerivedColumn(label, spec)
	done := make(chan struct{})
	s.tasks[id] = done

	expand := s.expandFunc()
	total := s.total
	if total > s.cfg.MaxEnrichRows {
		total = s.cfg.MaxEnrichRows
	}

	// Once submitted, a batch is not cancellable by the caller; detach
	// from the request context so a returning handler cannot abort it.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		// The pipeline converts its own failures into the per-row error
		// sentinel; nothing propagates past this goroutine.
		if err := s.pipeline.Run(runCtx, s.engine, id, spec, total, expand); err != nil {
			zap.L().Warn("session: enrichment ended with error state",
				zap.String("column_id", id),
				zap.Error(err),
			)
		}
	}()
	return id, nil
}

// expandFunc builds the lazy row-expansion callback for the current
// dataset, or nil when no search is active.
func (s *Session) expandFunc() enrich.ExpandFunc {
	provider := s.active
	if provider == nil {
		return nil
	}
	criteria := s.criteria
	criteria.Limit = s.cfg.MaxEnrichRows
	return func(ctx context.Context) ([]table.Row, error) {
		res, err := provider.Search(ctx, criteria)
		if err != nil {
			return nil, err
		}
		return res.Rows, nil
	}
}

// WaitForColumn blocks until a column's enrichment completes. Returns
// immediately for unknown or already-finished columns.
func (s *Session) WaitForColumn(columnID string) {
	s.mu.Lock()
	done, ok := s.tasks[columnID]
	s.mu.Unlock()
	if ok {
		<-done
	}
}

// RemoveDerivedColumn drops a derived column and its values.
func (s *Session) RemoveDerivedColumn(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return s.engine.RemoveDerivedColumn(id)
}

// SetVisibility toggles a column's visibility.
func (s *Session) SetVisibility(id string, visible bool) {
	s.engine.SetVisibility(id, visible)
}

// ToggleExplanationDisplay flips a derived column's explanation flag.
func (s *Session) ToggleExplanationDisplay(id string) {
	s.engine.ToggleExplanationDisplay(id)
}

// ToggleSort advances the sort cycle for a column.
func (s *Session) ToggleSort(columnID string) {
	s.engine.ToggleSort(columnID)
}

// SetTextFilter sets the free-text filter.
func (s *Session) SetTextFilter(text string) {
	s.engine.SetTextFilter(text)
}

// SetBooleanFilter sets a tri-state filter on a derived boolean column.
func (s *Session) SetBooleanFilter(columnID string, state table.TriState) error {
	col, ok := s.engine.Column(columnID)
	if !ok {
		return eris.Errorf("session: unknown column %s", columnID)
	}
	if col.Kind != table.ColumnDerived || col.Derived == nil || col.Derived.OutputType != table.OutputBoolean {
		return eris.Errorf("session: column %s is not a derived boolean column", columnID)
	}
	s.engine.SetBooleanFilter(columnID, state)
	return nil
}

// DisplayRows returns the current sorted, filtered display sequence.
func (s *Session) DisplayRows() []table.Row {
	return s.engine.DisplayRows()
}

// Columns returns the current column set.
func (s *Session) Columns() []table.Column {
	return s.engine.Columns()
}

// CellState describes one derived cell for rendering.
type CellState struct {
	Pending     bool    `json:"pending"`
	Failed      bool    `json:"failed"`
	Value       string  `json:"value"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Cell reports the resolved state of a derived cell.
func (s *Session) Cell(columnID, rowID string) CellState {
	cv, ok := s.engine.Cell(columnID, rowID)
	if !ok {
		return CellState{Pending: s.engine.IsProcessing(columnID)}
	}
	return CellState{
		Failed:      cv.Failed,
		Value:       cv.Value.Display(),
		Confidence:  cv.Confidence,
		Explanation: cv.Explanation,
	}
}

// FreezeFiltered records the current display sequence as a filter-type
// lineage node under the active search root.
func (s *Session) FreezeFiltered(label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rootSnapID == "" {
		return "", eris.New("session: no search to derive from")
	}
	rows := s.engine.DisplayRows()
	id := s.tracker.RecordDerived(rows, lineage.Provenance{
		Kind:        lineage.ProvenanceFilter,
		Description: filterDescription(s.engine.Filters(), s.engine.Columns()),
		ParentIDs:   []string{s.rootSnapID},
	}, label)

	zap.L().Info("session: filtered view frozen",
		zap.String("snapshot_id", id),
		zap.Int("rows", len(rows)),
	)
	return id, nil
}

// filterDescription renders the active filters as provenance text.
func filterDescription(f table.FilterState, cols []table.Column) string {
	var parts []string
	if f.Text != "" {
		parts = append(parts, fmt.Sprintf("text %q", f.Text))
	}
	for colID, state := range f.Boolean {
		label := colID
		for _, c := range cols {
			if c.ID == colID {
				label = c.Label
				break
			}
		}
		parts = append(parts, fmt.Sprintf("%s=%s", label, state))
	}
	if len(parts) == 0 {
		return "filtered"
	}
	return "filtered " + strings.Join(parts, ", ")
}

// Compare partitions two snapshots' identity sets.
func (s *Session) Compare(aID, bID string) (lineage.Comparison, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.tracker.Get(aID)
	if !ok {
		return lineage.Comparison{}, eris.Errorf("session: snapshot %s not found", aID)
	}
	b, ok := s.tracker.Get(bID)
	if !ok {
		return lineage.Comparison{}, eris.Errorf("session: snapshot %s not found", bID)
	}
	return lineage.Compare(a, b), nil
}

// MaterializePartition freezes one comparison partition as a
// compare-type lineage node carrying both parent ids.
func (s *Session) MaterializePartition(aID, bID string, p lineage.Partition, label string) (string, error) {
	cmp, err := s.Compare(aID, bID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := cmp.Rows(p)
	id := s.tracker.RecordDerived(rows, lineage.Provenance{
		Kind:        lineage.ProvenanceCompare,
		Description: partitionDescription(p),
		ParentIDs:   []string{aID, bID},
	}, label)
	return id, nil
}

func partitionDescription(p lineage.Partition) string {
	switch p {
	case lineage.PartitionOnlyA:
		return "difference (first only)"
	case lineage.PartitionOnlyB:
		return "difference (second only)"
	default:
		return "intersection"
	}
}

// SnapshotView is one lineage entry with its recomputed positional
// version and display description.
type SnapshotView struct {
	lineage.Snapshot
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// Snapshots lists the lineage with versions recomputed per query.
func (s *Session) Snapshots() []SnapshotView {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps := s.tracker.List()
	out := make([]SnapshotView, 0, len(snaps))
	for _, snap := range snaps {
		v, _ := s.tracker.VersionOf(snap.ID)
		out = append(out, SnapshotView{
			Snapshot:    snap,
			Version:     v,
			Description: s.tracker.Describe(snap),
		})
	}
	return out
}

// RelabelSnapshot sets a snapshot's label.
func (s *Session) RelabelSnapshot(id, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Relabel(id, label)
}

// DeleteSnapshot removes a lineage node. Children keep their parent
// references; display degrades to "unknown parent".
func (s *Session) DeleteSnapshot(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Delete(id)
}

// Reset clears the whole workbench atomically: dataset, derived state,
// and the entire lineage list.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Reset()
	s.tracker.Reset()
	s.active = nil
	s.criteria = search.Criteria{}
	s.total = 0
	s.rootSnapID = ""
	s.lastErr = ""
	s.tasks = make(map[string]chan struct{})
}

// LastError returns the retained message of the most recent failed
// search, empty after a success.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ExportCSV writes the current display sequence as CSV.
func (s *Session) ExportCSV(w io.Writer) error {
	return export.WriteCSV(w, s.engine)
}

// ExportXLSX writes the current display sequence as an XLSX workbook.
func (s *Session) ExportXLSX(path string) error {
	return export.WriteXLSX(path, s.engine)
}

// Grid renders the current display sequence as a string grid.
func (s *Session) Grid() export.Grid {
	return export.BuildGrid(s.engine)
}
