// Package server exposes a workbench session over an HTTP JSON API for
// the rendering layer.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/litscope/internal/lineage"
	"github.com/sells-group/litscope/internal/search"
	"github.com/sells-group/litscope/internal/session"
	"github.com/sells-group/litscope/internal/table"
)

// Server handles workbench API requests for one session.
type Server struct {
	session *session.Session
}

// New creates a server over a session.
func New(s *session.Session) *Server {
	return &Server{session: s}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/view", s.handleView)
		r.Post("/reset", s.handleReset)

		r.Post("/columns", s.handleAddColumn)
		r.Delete("/columns/{id}", s.handleRemoveColumn)
		r.Post("/columns/{id}/visibility", s.handleVisibility)
		r.Post("/columns/{id}/explanation", s.handleExplanation)

		r.Post("/sort", s.handleSort)
		r.Post("/filter/text", s.handleTextFilter)
		r.Post("/filter/boolean", s.handleBooleanFilter)

		r.Get("/snapshots", s.handleSnapshots)
		r.Post("/snapshots/freeze", s.handleFreeze)
		r.Patch("/snapshots/{id}", s.handleRelabel)
		r.Delete("/snapshots/{id}", s.handleDeleteSnapshot)

		r.Get("/compare", s.handleCompare)
		r.Post("/compare/materialize", s.handleMaterialize)

		r.Get("/export.csv", s.handleExportCSV)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
		search.Criteria
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Domain == "" {
		req.Domain = "pubmed"
	}
	snapID, err := s.session.Search(r.Context(), req.Domain, req.Criteria)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": snapID,
		"rows":        len(s.session.DisplayRows()),
	})
}

// rowView is one display row: resolved cell values keyed by column id,
// with derived cell state alongside.
type rowView struct {
	ID    string                       `json:"id"`
	Cells map[string]string            `json:"cells"`
	State map[string]session.CellState `json:"state,omitempty"`
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	cols := s.session.Columns()
	eng := s.session.Engine()
	keyField := eng.KeyField()

	rows := s.session.DisplayRows()
	views := make([]rowView, 0, len(rows))
	for _, row := range rows {
		rv := rowView{
			ID:    table.Identity(row, keyField),
			Cells: make(map[string]string, len(cols)),
		}
		for _, c := range cols {
			v, _ := eng.ResolveCell(row, c)
			rv.Cells[c.ID] = v.Display()
			if c.Kind == table.ColumnDerived {
				if rv.State == nil {
					rv.State = make(map[string]session.CellState)
				}
				rv.State[c.ID] = s.session.Cell(c.ID, rv.ID)
			}
		}
		views = append(views, rv)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"columns": cols,
		"rows":    views,
		"sort":    eng.SortSpec(),
		"filters": eng.Filters(),
		"error":   s.session.LastError(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.session.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string            `json:"label"`
		Spec  table.DerivedSpec `json:"spec"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.session.AddDerivedColumn(r.Context(), req.Label, req.Spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// Enrichment continues in the background; the id binds the pending
	// indicator.
	writeJSON(w, http.StatusAccepted, map[string]string{"column_id": id})
}

func (s *Server) handleRemoveColumn(w http.ResponseWriter, r *http.Request) {
	if !s.session.RemoveDerivedColumn(chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusOK, map[string]bool{"removed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.session.SetVisibility(chi.URLParam(r, "id"), req.Visible)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExplanation(w http.ResponseWriter, r *http.Request) {
	s.session.ToggleExplanationDisplay(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ColumnID string `json:"column_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.session.ToggleSort(req.ColumnID)
	writeJSON(w, http.StatusOK, map[string]any{"sort": s.session.Engine().SortSpec()})
}

func (s *Server) handleTextFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.session.SetTextFilter(req.Text)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBooleanFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ColumnID string         `json:"column_id"`
		State    table.TriState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.session.SetBooleanFilter(req.ColumnID, req.State); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": s.session.Snapshots()})
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.session.FreezeFiltered(req.Label)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"snapshot_id": id})
}

func (s *Server) handleRelabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.session.RelabelSnapshot(chi.URLParam(r, "id"), req.Label); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DeleteSnapshot(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	cmp, err := s.session.Compare(a, b)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"only_a": cmp.OnlyAIDs,
		"only_b": cmp.OnlyBIDs,
		"both":   cmp.BothIDs,
	})
}

func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		A         string            `json:"a"`
		B         string            `json:"b"`
		Partition lineage.Partition `json:"partition"`
		Label     string            `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.session.MaterializePartition(req.A, req.B, req.Partition, req.Label)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"snapshot_id": id})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="litscope.csv"`)
	if err := s.session.ExportCSV(w); err != nil {
		zap.L().Error("server: csv export failed", zap.Error(err))
	}
}
