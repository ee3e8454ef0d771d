package database

import "database/sql"

// InsertRunReport stores the summary of one pipeline run.
func (db *DB) InsertRunReport(r *RunReport) error {
	_, err := db.conn.Exec(
		`INSERT INTO run_reports (run_id, started_at, finished_at, report_markdown) VALUES (?, ?, ?, ?)`,
		r.RunID, r.StartedAt, r.FinishedAt, r.ReportMarkdown,
	)
	return err
}

// GetLatestRunReport returns the most recently finished run, or nil if none.
func (db *DB) GetLatestRunReport() (*RunReport, error) {
	var r RunReport
	err := db.conn.QueryRow(
		`SELECT run_id, started_at, finished_at, report_markdown FROM run_reports
		ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.ReportMarkdown)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetStats returns store-wide counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM customers", &s.Customers},
		{"SELECT COUNT(*) FROM lead_sources", &s.LeadSources},
		{"SELECT COUNT(*) FROM call_logs", &s.CallLogs},
		{"SELECT COUNT(*) FROM appointments", &s.Appointments},
		{"SELECT COUNT(*) FROM sheet_tables WHERE name LIKE 'TODAY\\_CALL\\_%' ESCAPE '\\'", &s.TargetSheets},
		{"SELECT COUNT(*) FROM kpi_daily", &s.DailyKPIRows},
		{"SELECT COUNT(*) FROM kpi_by_list", &s.ListKPIRows},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	byState, err := db.CountCustomersByStatus()
	if err != nil {
		return nil, err
	}
	s.CustomersByState = byState

	last, err := db.GetLatestRunReport()
	if err != nil {
		return nil, err
	}
	if last != nil {
		s.LastRunAt = last.FinishedAt
	}
	return s, nil
}
