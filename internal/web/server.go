// Package web serves a small JSON API for inspecting and steering the
// monitor: list and register cases, queue re-checks, read stats and search.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/renderinc/docket-monitor/internal/budget"
	"github.com/renderinc/docket-monitor/internal/model"
	"github.com/renderinc/docket-monitor/internal/registry"
	"github.com/renderinc/docket-monitor/internal/search"
	"github.com/renderinc/docket-monitor/internal/storage"
)

type Server struct {
	db       *storage.DB
	registry *registry.Registry
	ledger   *budget.Ledger
	idx      *search.Index // nil disables /api/search
	logger   *slog.Logger
	now      func() time.Time
}

func NewServer(db *storage.DB, reg *registry.Registry, ledger *budget.Ledger, idx *search.Index, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		db:       db,
		registry: reg,
		ledger:   ledger,
		idx:      idx,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/cases", s.handleListCases)
	mux.HandleFunc("POST /api/cases", s.handleAddCase)
	mux.HandleFunc("POST /api/cases/{id}/check", s.handleCheckCase)
	mux.HandleFunc("GET /api/cases/{id}/entries", s.handleCaseEntries)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/stats/costs", s.handleCosts)
	mux.HandleFunc("GET /api/search", s.handleSearch)

	return mux
}

// CaseView is the JSON form of a monitored case
type CaseView struct {
	ID                  string         `json:"id"`
	CourtID             string         `json:"court_id"`
	CaseNumber          string         `json:"case_number"`
	Name                string         `json:"name,omitempty"`
	Priority            model.Priority `json:"priority"`
	NotificationEnabled bool           `json:"notification_enabled"`
	LastChecked         *time.Time     `json:"last_checked"`
	LastUpdated         *time.Time     `json:"last_updated"`
	EntryCount          int            `json:"entry_count"`
	CreatedAt           time.Time      `json:"created_at"`
}

// EntryView is the JSON form of a docket entry
type EntryView struct {
	CaseID      string     `json:"case_id"`
	Number      int        `json:"number"`
	DateFiled   *time.Time `json:"date_filed"`
	Description string     `json:"description"`
	DocumentURL string     `json:"document_url,omitempty"`
	FirstSeen   time.Time  `json:"first_seen"`
}

// AddCaseRequest is the body of POST /api/cases
type AddCaseRequest struct {
	Court      string `json:"court"`
	CaseNumber string `json:"case_number"`
	Priority   string `json:"priority"`
	Name       string `json:"name"`
}

// Stats is the dashboard summary
type Stats struct {
	TotalCases        int         `json:"total_cases"`
	Quarter           string      `json:"quarter"`
	QuarterSpend      string      `json:"quarter_spend"`
	QueriesToday      int         `json:"queries_today"`
	NewEntriesWeek    int         `json:"new_entries_7d"`
	RecentEntries     []EntryView `json:"recent_entries"`
	SearchIndexedDocs uint64      `json:"search_indexed_docs,omitempty"`
}

// CostStats is the quarter's spend breakdown
type CostStats struct {
	Quarter   string     `json:"quarter"`
	Spent     string     `json:"spent"`
	Budget    string     `json:"budget"`
	Limit     string     `json:"limit"`
	Remaining string     `json:"remaining"`
	Daily     []DayTotal `json:"daily"`
}

type DayTotal struct {
	Date  string `json:"date"`
	Total string `json:"total"`
}

type SearchResponse struct {
	Results []*search.SearchResult `json:"results"`
	Query   string                 `json:"query"`
	Count   int                    `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	cases, _ := s.db.CountCases(r.Context())

	s.writeJSON(w, code, map[string]any{
		"status": status,
		"cases":  cases,
	})
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.registry.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	views := make([]CaseView, 0, len(cases))
	for _, c := range cases {
		n, err := s.db.CountEntries(r.Context(), c.ID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		views = append(views, caseView(c, n))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddCase(w http.ResponseWriter, r *http.Request) {
	var req AddCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Priority == "" {
		req.Priority = string(model.PriorityMedium)
	}

	c := &model.Case{
		CourtID:    req.Court,
		CaseNumber: req.CaseNumber,
		Name:       req.Name,
		Priority:   model.Priority(req.Priority),
	}
	created, err := s.registry.Upsert(r.Context(), c)
	switch {
	case errors.Is(err, model.ErrInvalidPriority), errors.Is(err, registry.ErrMissingIdentity):
		s.writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	stored, err := s.registry.Get(r.Context(), c.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	n, _ := s.db.CountEntries(r.Context(), c.ID)

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	s.writeJSON(w, code, caseView(stored, n))
}

func (s *Server) handleCheckCase(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.ForceCheck(r.Context(), id); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
}

func (s *Server) handleCaseEntries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	entries, err := s.db.ListEntries(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entryViews(entries))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var stats Stats
	var err error

	if stats.TotalCases, err = s.db.CountCases(ctx); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	spend, err := s.ledger.CurrentQuarterSpend(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	stats.Quarter = model.QuarterLabel(now)
	stats.QuarterSpend = spend.StringFixed(2)

	if stats.QueriesToday, err = s.db.CountCostsSince(ctx, today); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if stats.NewEntriesWeek, err = s.db.CountEntriesSince(ctx, now.Add(-7*24*time.Hour)); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	recent, err := s.db.RecentEntries(ctx, 10)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	stats.RecentEntries = entryViews(recent)

	if s.idx != nil {
		stats.SearchIndexedDocs, _ = s.idx.Count()
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.QuarterReport(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := CostStats{
		Quarter:   report.Quarter,
		Spent:     report.Spent.StringFixed(2),
		Budget:    report.Budget.StringFixed(2),
		Limit:     report.Limit.StringFixed(2),
		Remaining: report.Remaining.StringFixed(2),
		Daily:     make([]DayTotal, 0, len(report.Daily)),
	}
	for _, d := range report.Daily {
		out.Daily = append(out.Daily, DayTotal{Date: d.Date.Format(time.DateOnly), Total: d.Total.StringFixed(2)})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.idx == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("search index not available"))
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing q parameter"))
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	results, err := s.idx.Search(query, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("search failed: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, SearchResponse{Results: results, Query: query, Count: len(results)})
}

func caseView(c *model.Case, entryCount int) CaseView {
	return CaseView{
		ID:                  c.ID,
		CourtID:             c.CourtID,
		CaseNumber:          c.CaseNumber,
		Name:                c.Name,
		Priority:            c.Priority,
		NotificationEnabled: c.NotificationEnabled,
		LastChecked:         c.LastChecked,
		LastUpdated:         c.LastUpdated,
		EntryCount:          entryCount,
		CreatedAt:           c.CreatedAt,
	}
}

func entryViews(entries []model.DocketEntry) []EntryView {
	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		v := EntryView{
			CaseID:      e.CaseID,
			Number:      e.Number,
			Description: e.Description,
			DocumentURL: e.DocumentURL,
			FirstSeen:   e.FirstSeen,
		}
		if !e.DateFiled.IsZero() {
			d := e.DateFiled
			v.DateFiled = &d
		}
		views = append(views, v)
	}
	return views
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}
