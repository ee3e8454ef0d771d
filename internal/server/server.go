package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/leadflow/internal/database"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// logPageSize is the number of log rows shown on /logs.
const logPageSize = 200

// Server is the read-only dashboard over target sheets, KPI tables and run
// reports.
type Server struct {
	db      *database.DB
	pages   map[string]*template.Template
	router  chi.Router
	origins []string
	log     zerolog.Logger
}

// New creates a new Server. allowedOrigins enables CORS on the JSON API;
// an empty list leaves CORS off.
func New(db *database.DB, allowedOrigins []string, logger zerolog.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"percent":  percent,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so that "title" and "content" don't collide.
	pageNames := []string{"index.html", "targets.html", "kpi_daily.html", "kpi_lists.html", "logs.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		db:      db,
		pages:   pages,
		router:  chi.NewRouter(),
		origins: allowedOrigins,
		log:     logger.With().Str("component", "server").Logger(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimiddleware.Recoverer)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", s.handleIndex)
	r.Get("/targets/{agent}", s.handleTargets)
	r.Get("/kpi/daily", s.handleDailyKPI)
	r.Get("/kpi/lists", s.handleListKPI)
	r.Get("/logs", s.handleLogs)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if len(s.origins) > 0 {
			r.Use(corsMiddleware(s.origins))
		}
		r.Get("/targets/{agent}", s.handleTargetsJSON)
		r.Get("/kpi/daily", s.handleDailyKPIJSON)
		r.Get("/kpi/lists", s.handleListKPIJSON)
	})
}

type sheetLink struct {
	Name  string
	Agent string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		s.serverError(w, "loading stats", err)
		return
	}
	report, err := s.db.GetLatestRunReport()
	if err != nil {
		s.serverError(w, "loading latest run", err)
		return
	}
	names, err := s.db.ListTables(database.TargetSheetPrefix)
	if err != nil {
		s.serverError(w, "listing target sheets", err)
		return
	}
	var sheets []sheetLink
	for _, name := range names {
		if agent, ok := database.AgentFromSheet(name); ok {
			sheets = append(sheets, sheetLink{Name: name, Agent: agent})
		}
	}

	s.render(w, "index.html", map[string]any{
		"Stats":  stats,
		"Report": report,
		"Sheets": sheets,
	})
}

func (s *Server) targetSheet(w http.ResponseWriter, r *http.Request) (*database.Sheet, string, bool) {
	agent := chi.URLParam(r, "agent")
	sheet, err := s.db.GetTable(database.TargetSheetName(agent))
	if err != nil {
		s.serverError(w, "loading target sheet", err)
		return nil, "", false
	}
	if sheet == nil {
		http.NotFound(w, r)
		return nil, "", false
	}
	return sheet, agent, true
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	sheet, agent, ok := s.targetSheet(w, r)
	if !ok {
		return
	}
	s.render(w, "targets.html", map[string]any{
		"Agent": agent,
		"Sheet": sheet,
	})
}

func (s *Server) handleDailyKPI(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ListDailyKPI()
	if err != nil {
		s.serverError(w, "loading daily kpi", err)
		return
	}
	s.render(w, "kpi_daily.html", map[string]any{"Rows": rows})
}

func (s *Server) handleListKPI(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ListListKPI()
	if err != nil {
		s.serverError(w, "loading list kpi", err)
		return
	}
	s.render(w, "kpi_lists.html", map[string]any{"Rows": rows})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.RecentLogs(logPageSize)
	if err != nil {
		s.serverError(w, "loading logs", err)
		return
	}
	s.render(w, "logs.html", map[string]any{"Entries": entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// targetRecord is one target sheet row keyed by header column.
type targetRecord struct {
	Row    int               `json:"row"`
	Fields map[string]string `json:"fields"`
}

func (s *Server) handleTargetsJSON(w http.ResponseWriter, r *http.Request) {
	sheet, agent, ok := s.targetSheet(w, r)
	if !ok {
		return
	}
	records := make([]targetRecord, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		fields := make(map[string]string, len(sheet.Header))
		for _, col := range sheet.Header {
			fields[col] = sheet.Value(row, col)
		}
		records = append(records, targetRecord{Row: row.Num, Fields: fields})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent": agent,
		"sheet": sheet.Name,
		"rows":  records,
	})
}

func (s *Server) handleDailyKPIJSON(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ListDailyKPI()
	if err != nil {
		s.serverError(w, "loading daily kpi", err)
		return
	}
	if rows == nil {
		rows = []database.DailyKPI{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleListKPIJSON(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ListListKPI()
	if err != nil {
		s.serverError(w, "loading list kpi", err)
		return
	}
	if rows == nil {
		rows = []database.ListKPI{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.serverError(w, "rendering "+name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, what string, err error) {
	s.log.Error().Stack().Err(err).Msg(what)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func percent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

// Serve runs the dashboard on 127.0.0.1:port until ctx is cancelled, then
// shuts down gracefully.
func Serve(ctx context.Context, db *database.DB, port int, allowedOrigins []string, logger zerolog.Logger) error {
	s, err := New(db, allowedOrigins, logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", "http://"+addr).Msg("server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info().Msg("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
