package database

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func fixedClock(ts string) func() time.Time {
	t, _ := time.ParseInLocation(DateTimeFormat, ts, time.Local)
	return func() time.Time { return t }
}

func TestInsertAndGetCustomer(t *testing.T) {
	db := openTestDB(t)
	db.SetClock(fixedClock("2026-03-01 10:00:00"))

	c := &Customer{LineName: "H1", PhoneNumber: "09011112222", Status: "Uncontacted"}
	if err := db.InsertCustomer(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(c.ID, "CUST_") {
		t.Errorf("expected CUST_ prefix, got %q", c.ID)
	}

	got, err := db.GetCustomer(c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.LineName != "H1" || got.CreatedAt != "2026-03-01 10:00:00" {
		t.Errorf("unexpected customer: %+v", got)
	}

	missing, err := db.GetCustomer("CUST_nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing customer, got %v, %v", missing, err)
	}
}

func TestListCustomersKeepsInsertionOrder(t *testing.T) {
	db := openTestDB(t)
	for _, h := range []string{"c", "a", "b"} {
		if err := db.InsertCustomer(&Customer{LineName: h}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	customers, err := db.ListCustomers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []string
	for _, c := range customers {
		got = append(got, c.LineName)
	}
	if strings.Join(got, ",") != "c,a,b" {
		t.Errorf("expected insertion order c,a,b, got %v", got)
	}
}

func TestUpdateCustomerContactKeepsStatus(t *testing.T) {
	db := openTestDB(t)
	c := &Customer{LineName: "H1", Status: "Closed"}
	db.InsertCustomer(c)

	c.Email = "h1@example.com"
	c.Status = "Uncontacted"
	if err := db.UpdateCustomerContact(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := db.GetCustomer(c.ID)
	if got.Email != "h1@example.com" {
		t.Errorf("expected email to be updated, got %q", got.Email)
	}
	if got.Status != "Closed" {
		t.Errorf("expected status to stay Closed, got %q", got.Status)
	}
}

func TestUpdateCustomerStatusMissing(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpdateCustomerStatus("CUST_missing", "Closed"); err == nil {
		t.Error("expected error for missing customer")
	}
}

func TestLeadSourceUniqueTriple(t *testing.T) {
	db := openTestDB(t)
	c := &Customer{LineName: "H1"}
	db.InsertCustomer(c)

	ls := &LeadSource{CustomerID: c.ID, SourceType: "gift-claim", SourceDetail: "Campaign A"}
	if err := db.InsertLeadSource(ls); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dup := &LeadSource{CustomerID: c.ID, SourceType: "gift-claim", SourceDetail: "Campaign A"}
	if err := db.InsertLeadSource(dup); err == nil {
		t.Error("expected unique constraint error for duplicate triple")
	}

	primary, err := db.GetPrimaryLeadSource(c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary == nil || primary.ID != ls.ID {
		t.Errorf("expected primary %s, got %+v", ls.ID, primary)
	}
}

func TestUpdateLeadSourceDates(t *testing.T) {
	db := openTestDB(t)
	c := &Customer{LineName: "H1"}
	db.InsertCustomer(c)

	db.SetClock(fixedClock("2026-03-01 10:00:00"))
	ls := &LeadSource{CustomerID: c.ID, SourceType: "gift-claim", ListAddedDate: "2026-03-01"}
	db.InsertLeadSource(ls)

	db.SetClock(fixedClock("2026-03-05 10:00:00"))
	ls.ListAddedDate = "2026-03-05"
	ls.EventDate = "2026-03-10"
	if err := db.UpdateLeadSourceDates(ls); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sources, _ := db.ListLeadSources()
	if len(sources) != 1 {
		t.Fatalf("expected 1 lead source, got %d", len(sources))
	}
	got := sources[0]
	if got.ListAddedDate != "2026-03-05" || got.EventDate != "2026-03-10" {
		t.Errorf("dates not updated: %+v", got)
	}
	if got.CreatedAt != "2026-03-01 10:00:00" || got.UpdatedAt != "2026-03-05 10:00:00" {
		t.Errorf("unexpected timestamps: %+v", got)
	}
}

func TestCallLogsAndAgents(t *testing.T) {
	db := openTestDB(t)
	c := &Customer{LineName: "H1"}
	db.InsertCustomer(c)

	db.InsertCallLog(&CallLog{CustomerID: c.ID, Agent: "bob", Attempt: 1, Outcome: "busy"})
	db.InsertCallLog(&CallLog{CustomerID: c.ID, Agent: "alice", Attempt: 2, Outcome: "answered"})

	n, err := db.CountCallLogs(c.ID)
	if err != nil || n != 2 {
		t.Errorf("expected 2 call logs, got %d (%v)", n, err)
	}

	agents, err := db.ListCallAgents()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(agents, ",") != "alice,bob" {
		t.Errorf("expected alice,bob, got %v", agents)
	}

	logs, _ := db.ListCallLogsForCustomer(c.ID)
	if len(logs) != 2 || logs[1].Outcome != "answered" {
		t.Errorf("unexpected call logs: %+v", logs)
	}
}

func TestResolveAppointment(t *testing.T) {
	db := openTestDB(t)
	c := &Customer{LineName: "H1"}
	db.InsertCustomer(c)

	a := &Appointment{CustomerID: c.ID, MeetingAt: "2026-03-10 14:00:00"}
	if err := db.InsertAppointment(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := db.ResolveAppointment(a.ID, "attended", "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	amount := 120000.0
	if err := db.ResolveAppointment(a.ID, "", "deal", &amount); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := db.GetAppointment(a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AttendanceStatus != "attended" || got.DealStatus != "deal" {
		t.Errorf("unexpected outcome: %+v", got)
	}
	if got.DealAmount == nil || *got.DealAmount != amount {
		t.Errorf("expected deal amount %v, got %v", amount, got.DealAmount)
	}

	if err := db.ResolveAppointment("APPT_missing", "attended", "", nil); err == nil {
		t.Error("expected error for missing appointment")
	}
}

func TestSheetGateway(t *testing.T) {
	db := openTestDB(t)
	name := TargetSheetName("alice")

	if err := db.AppendRows(name, [][]string{{"x"}}); err == nil {
		t.Error("expected error appending to a missing table")
	}

	if err := db.EnsureTable(name, TargetHeader); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.AppendRows(name, [][]string{{"CUST_1"}, {"CUST_2"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.AppendRows(name, [][]string{{"CUST_3"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sheet, err := db.GetTable(name)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sheet.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(sheet.Rows))
	}
	if sheet.Rows[0].Num != 2 || sheet.Rows[2].Num != 4 {
		t.Errorf("expected rows numbered from 2, got %d..%d", sheet.Rows[0].Num, sheet.Rows[2].Num)
	}

	if err := db.SetCell(name, 3, sheet.Col(ColMemo)+1, "call back"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.SetCell(name, HeaderRowNum, 1, "nope"); err == nil {
		t.Error("expected error writing the header row")
	}

	found, err := db.FindRowsWhere(name, func(s *Sheet, r SheetRow) bool {
		return s.Value(r, ColMemo) != ""
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 1 || found[0].Num != 3 {
		t.Errorf("expected row 3 to match, got %+v", found)
	}

	if err := db.ReplaceRows(name, [][]string{{"CUST_9"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sheet, _ = db.GetTable(name)
	if len(sheet.Rows) != 1 || sheet.Rows[0].Num != 2 || sheet.Rows[0].Cells[0] != "CUST_9" {
		t.Errorf("unexpected rows after replace: %+v", sheet.Rows)
	}
	if len(sheet.Header) != len(TargetHeader) {
		t.Errorf("header lost on replace: %v", sheet.Header)
	}

	if err := db.UpdateRow(name, 2, []string{"CUST_10"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.UpdateRow(name, 7, []string{"x"}); err == nil {
		t.Error("expected error updating a missing row")
	}

	names, _ := db.ListTables(TargetSheetPrefix)
	if len(names) != 1 || names[0] != name {
		t.Errorf("expected [%s], got %v", name, names)
	}

	missing, err := db.GetTable("NOPE")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing table, got %v, %v", missing, err)
	}
}

func TestEnsureTableRewritesHeader(t *testing.T) {
	db := openTestDB(t)
	db.EnsureTable("T", []string{"a"})
	db.EnsureTable("T", []string{"a", "b"})

	sheet, _ := db.GetTable("T")
	if len(sheet.Header) != 2 {
		t.Errorf("expected header to be rewritten, got %v", sheet.Header)
	}
}

func TestReplaceKPISnapshots(t *testing.T) {
	db := openTestDB(t)

	first := []DailyKPI{
		{Date: "2026-03-01", Agent: "alice", SourceType: "ALL", Metrics: Metrics{CallCount: 2, ConnectedCount: 1, ConnectionRate: 0.5}},
		{Date: "2026-03-02", Agent: "alice", SourceType: "ALL", Metrics: Metrics{CallCount: 1}},
	}
	if err := db.ReplaceDailyKPI(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.ReplaceDailyKPI(first[:1]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _ := db.ListDailyKPI()
	if len(rows) != 1 || rows[0].ConnectionRate != 0.5 {
		t.Errorf("expected single replaced row, got %+v", rows)
	}

	lists := []ListKPI{
		{SourceType: "seminar-survey", SourceDetail: "Spring", TotalCustomers: 3},
		{SourceType: "gift-claim", SourceDetail: "Campaign A", TotalCustomers: 1},
	}
	if err := db.ReplaceListKPI(lists); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := db.ListListKPI()
	if len(got) != 2 || got[0].SourceType != "seminar-survey" {
		t.Errorf("expected write order preserved, got %+v", got)
	}
}

func TestLogsAndStats(t *testing.T) {
	db := openTestDB(t)
	db.AppendLog("2026-03-01 10:00:00", "Ingest", "info", "started", "")
	db.AppendLog("2026-03-01 10:00:05", "Ingest", "error", "feed failed", "boom")

	entries, err := db.RecentLogs(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 || entries[0].Level != "error" {
		t.Errorf("expected newest first, got %+v", entries)
	}

	c := &Customer{LineName: "H1"}
	db.InsertCustomer(c)
	db.EnsureTable(TargetSheetName("alice"), TargetHeader)
	db.InsertRunReport(&RunReport{RunID: "r1", StartedAt: "2026-03-01 10:00:00", FinishedAt: "2026-03-01 10:01:00", ReportMarkdown: "# Run"})

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Customers != 1 || stats.TargetSheets != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.CustomersByState[""] != 1 {
		t.Errorf("expected one blank-status customer, got %v", stats.CustomersByState)
	}
	if stats.LastRunAt != "2026-03-01 10:01:00" {
		t.Errorf("expected last run time, got %q", stats.LastRunAt)
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var km KeyedMutex
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("k")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("expected 50, got %d", counter)
	}
}

func TestDayWindow(t *testing.T) {
	from, _ := ParseTime("2026-03-01")
	to, _ := ParseTime("2026-03-03 18:00:00")
	w := NewDayWindow(from, to)

	if len(w.Days()) != 3 {
		t.Errorf("expected 3 days, got %d", len(w.Days()))
	}
	inside, _ := ParseTime("2026-03-03 23:59:59")
	if !w.Contains(inside) {
		t.Error("expected last second of the last day to be inside")
	}
	outside, _ := ParseTime("2026-03-04 00:00:00")
	if w.Contains(outside) {
		t.Error("expected next midnight to be outside")
	}
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2026-03-01", "2026-03-01 09:30:00", "2026/03/01 09:30", "March 1, 2026"} {
		if _, ok := ParseTime(s); !ok {
			t.Errorf("expected %q to parse", s)
		}
	}
	for _, s := range []string{"", "   ", "soon"} {
		if _, ok := ParseTime(s); ok {
			t.Errorf("expected %q not to parse", s)
		}
	}
	if got := NormalizeDate("2026/3/5"); got != "2026-03-05" {
		t.Errorf("expected 2026-03-05, got %q", got)
	}
}
