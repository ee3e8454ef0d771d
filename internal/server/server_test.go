package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/TobiSchelling/leadflow/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, db *database.DB, origins ...string) *Server {
	t.Helper()
	srv, err := New(db, origins, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func seedTargetSheet(t *testing.T, db *database.DB, agent string) {
	t.Helper()
	name := database.TargetSheetName(agent)
	if err := db.EnsureTable(name, database.TargetHeader); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	row := []string{"cus_1", "yui", "Yui Tanaka", "09012345678", "gift-claim", "", "0", "Uncontacted", "", "", "", "", ""}
	if err := db.AppendRows(name, [][]string{row}); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
}

func TestIndexRouteEmpty(t *testing.T) {
	srv := newTestServer(t, openTestDB(t))

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "No runs yet") {
		t.Error("expected empty run notice in response body")
	}
	if !strings.Contains(body, "No target sheets yet") {
		t.Error("expected empty sheet notice in response body")
	}
}

func TestIndexRendersLatestReport(t *testing.T) {
	db := openTestDB(t)
	seedTargetSheet(t, db, "alice")
	err := db.InsertRunReport(&database.RunReport{
		RunID:          "run-1",
		StartedAt:      "2026-03-10T08:00:00Z",
		FinishedAt:     "2026-03-10T08:00:05Z",
		ReportMarkdown: "# Run 2026-03-10\n\n## Ingest\n\n12 rows processed",
	})
	if err != nil {
		t.Fatalf("InsertRunReport: %v", err)
	}
	srv := newTestServer(t, db)

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h2>Ingest</h2>") {
		t.Error("expected report markdown rendered as HTML")
	}
	if !strings.Contains(body, `href="/targets/alice"`) {
		t.Error("expected link to alice's target sheet")
	}
}

func TestTargetsRoute(t *testing.T) {
	db := openTestDB(t)
	seedTargetSheet(t, db, "alice")
	srv := newTestServer(t, db)

	rec := get(t, srv, "/targets/alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "TODAY_CALL_alice") {
		t.Error("expected sheet name in response")
	}
	if !strings.Contains(body, "Yui Tanaka") {
		t.Error("expected target row in response")
	}

	rec = get(t, srv, "/targets/nobody")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown agent, got %d", rec.Code)
	}
}

func TestTargetsJSON(t *testing.T) {
	db := openTestDB(t)
	seedTargetSheet(t, db, "alice")
	srv := newTestServer(t, db)

	rec := get(t, srv, "/api/targets/alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Agent string         `json:"agent"`
		Rows  []targetRecord `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if payload.Agent != "alice" || len(payload.Rows) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Rows[0].Row != 2 {
		t.Errorf("expected first data row number 2, got %d", payload.Rows[0].Row)
	}
	if got := payload.Rows[0].Fields[database.ColCustomerID]; got != "cus_1" {
		t.Errorf("expected customer_id cus_1, got %q", got)
	}
}

func TestKPIRoutes(t *testing.T) {
	db := openTestDB(t)
	err := db.ReplaceDailyKPI([]database.DailyKPI{{
		Date:       "2026-03-10",
		Agent:      "alice",
		SourceType: "ALL",
		Metrics:    database.Metrics{CallCount: 4, ConnectedCount: 2, ConnectionRate: 0.5},
		UpdatedAt:  "2026-03-10T09:00:00Z",
	}})
	if err != nil {
		t.Fatalf("ReplaceDailyKPI: %v", err)
	}
	srv := newTestServer(t, db)

	rec := get(t, srv, "/kpi/daily")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "50.0%") {
		t.Error("expected formatted connection rate")
	}

	rec = get(t, srv, "/api/kpi/daily")
	var rows []database.DailyKPI
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(rows) != 1 || rows[0].CallCount != 4 {
		t.Errorf("unexpected daily rows: %+v", rows)
	}

	rec = get(t, srv, "/kpi/lists")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No list KPI rows") {
		t.Error("expected empty list KPI notice")
	}

	rec = get(t, srv, "/api/kpi/lists")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %q", rec.Body.String())
	}
}

func TestLogsRoute(t *testing.T) {
	db := openTestDB(t)
	if err := db.AppendLog("2026-03-10T09:00:00Z", "intake", "error", "feed failed", ""); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	srv := newTestServer(t, db)

	rec := get(t, srv, "/logs")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "feed failed") {
		t.Error("expected log message in response")
	}
}

func TestHealthAndStatic(t *testing.T) {
	srv := newTestServer(t, openTestDB(t))

	rec := get(t, srv, "/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response: %d %q", rec.Code, rec.Body.String())
	}

	rec = get(t, srv, "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "font-family") {
		t.Error("expected CSS content")
	}
}

func TestCORSOnAPI(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), "http://dashboard.local")

	req := httptest.NewRequest(http.MethodGet, "/api/kpi/daily", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/kpi/daily", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow-origin for unknown origin, got %q", got)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := requestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/kpi/daily", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["method"] != "GET" {
		t.Errorf("expected method GET, got %v", entry["method"])
	}
	if entry["path"] != "/kpi/daily" {
		t.Errorf("expected path /kpi/daily, got %v", entry["path"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("expected status 418, got %v", entry["status"])
	}
	if entry["message"] != "request completed" {
		t.Errorf("expected message 'request completed', got %v", entry["message"])
	}
}
