package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/leadflow/internal/config"
	"github.com/TobiSchelling/leadflow/internal/database"
)

var asOf = time.Date(2026, 3, 10, 7, 0, 0, 0, time.Local)

func setup(t *testing.T) (*config.Config, *database.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	db.SetClock(func() time.Time { return asOf })
	t.Cleanup(func() { db.Close() })

	feed := filepath.Join(dir, "campaign.csv")
	require.NoError(t, os.WriteFile(feed, []byte("Handle,Phone,Campaign\nH1,090-1111-2222,Campaign A\nH2,,Campaign A\n"), 0o644))

	cfg := &config.Config{
		Feeds: []config.Feed{{
			Name: "Campaign", SourceType: "campaign-other", Kind: config.KindCSV, Location: feed,
			HeaderRow: 1, DataStartRow: 2,
			Mapping: config.Mapping{Handle: "Handle", Phone: "Phone", SourceDetail: "Campaign"},
		}},
		Agents:      []string{"alice"},
		Targeting:   config.Targeting{Statuses: []string{"Uncontacted", "In-Progress"}},
		SourceTypes: []string{"gift-claim", "seminar-survey", "cancel-list", "campaign-other"},
		Outcomes:    config.DefaultOutcomes(),
		KPI:         config.KPI{DailyWindowDays: 31, ByListPeriodMonths: 1},
	}
	return cfg, db
}

func TestRun(t *testing.T) {
	cfg, db := setup(t)

	r := New(cfg, db, zerolog.Nop()).Run(context.Background(), asOf)
	require.Len(t, r.Steps, 4)
	for _, s := range r.Steps {
		assert.NoError(t, s.Err, s.Name)
	}
	assert.False(t, r.Failed())
	assert.NotEmpty(t, r.RunID)
	assert.Contains(t, r.Steps[0].Summary, "2 new customers")
	assert.Equal(t, "Wrote 2 entries to 1 target sheets", r.Steps[1].Summary)

	sheet, err := db.GetTable("TODAY_CALL_alice")
	require.NoError(t, err)
	require.NotNil(t, sheet)
	assert.Len(t, sheet.Rows, 2)

	lists, err := db.ListListKPI()
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Campaign A", lists[0].SourceDetail)
	assert.Equal(t, 2, lists[0].TotalCustomers)

	report, err := db.GetLatestRunReport()
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, r.RunID, report.RunID)
	assert.Contains(t, report.ReportMarkdown, "## Ingest")
	assert.Contains(t, report.ReportMarkdown, "| alice | 2 | 0 | 0 | 0 |")
}

func TestRunIsRepeatable(t *testing.T) {
	cfg, db := setup(t)
	p := New(cfg, db, zerolog.Nop())

	p.Run(context.Background(), asOf)
	r := p.Run(context.Background(), asOf)
	assert.False(t, r.Failed())
	assert.Contains(t, r.Steps[0].Summary, "0 new customers, 2 updated")

	customers, _ := db.ListCustomers()
	assert.Len(t, customers, 2)
}

func TestRunStopsWhenIngestFails(t *testing.T) {
	cfg, db := setup(t)
	require.NoError(t, db.Close())

	r := New(cfg, db, zerolog.Nop()).Run(context.Background(), asOf)
	require.Len(t, r.Steps, 1)
	assert.Error(t, r.Steps[0].Err)
	assert.True(t, r.Failed())
}

func TestDryRunWritesNothing(t *testing.T) {
	cfg, db := setup(t)

	r := New(cfg, db, zerolog.Nop()).DryRun(context.Background(), asOf)
	require.Len(t, r.Steps, 4)
	assert.Equal(t, "[dry-run] 1 of 1 feeds readable, 2 data rows", r.Steps[0].Summary)

	customers, _ := db.ListCustomers()
	assert.Empty(t, customers)
	tables, _ := db.ListTables(database.TargetSheetPrefix)
	assert.Empty(t, tables)
	report, _ := db.GetLatestRunReport()
	assert.Nil(t, report)
}

func TestRenderReport(t *testing.T) {
	r := &Result{
		RunID:      "0123456789abcdef",
		AsOf:       asOf,
		StartedAt:  asOf,
		FinishedAt: asOf.Add(3 * time.Second),
		Steps: []StepResult{
			{Name: "Ingest", Summary: "Processed 1 rows", Detail: "| a |\n"},
			{Name: "Targets", Err: errors.New("disk full")},
		},
	}
	md := RenderReport(r)

	assert.True(t, strings.HasPrefix(md, "# Run 2026-03-10 (01234567)\n"))
	assert.Contains(t, md, "- Finished: 2026-03-10 07:00:03")
	assert.Contains(t, md, "## Ingest\n\nProcessed 1 rows\n\n| a |")
	assert.Contains(t, md, "## Targets\n\n**Failed:** disk full")
	assert.Equal(t, 2, strings.Count(md, "\n---\n"))
}
