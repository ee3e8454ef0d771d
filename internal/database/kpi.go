package database

import (
	"database/sql"
	"fmt"
)

// ReplaceDailyKPI swaps the kpi_daily snapshot for rows in one transaction.
func (db *DB) ReplaceDailyKPI(rows []DailyKPI) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM kpi_daily"); err != nil {
			return fmt.Errorf("clearing kpi_daily: %w", err)
		}
		stmt, err := tx.Prepare(`INSERT INTO kpi_daily (date, assigned_is, lead_source_type,
			call_count, connected_count, connection_rate, appointment_count, appointment_rate,
			attendance_count, attendance_rate, deal_count, deal_rate, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range rows {
			m := r.Metrics
			if _, err := stmt.Exec(r.Date, r.Agent, r.SourceType,
				m.CallCount, m.ConnectedCount, m.ConnectionRate, m.AppointmentCount, m.AppointmentRate,
				m.AttendanceCount, m.AttendanceRate, m.DealCount, m.DealRate, r.UpdatedAt); err != nil {
				return fmt.Errorf("writing kpi_daily row %s/%s/%s: %w", r.Date, r.Agent, r.SourceType, err)
			}
		}
		return nil
	})
}

// ListDailyKPI returns the kpi_daily snapshot ordered by date, agent and source.
func (db *DB) ListDailyKPI() ([]DailyKPI, error) {
	rows, err := db.conn.Query(`SELECT date, assigned_is, lead_source_type,
		call_count, connected_count, connection_rate, appointment_count, appointment_rate,
		attendance_count, attendance_rate, deal_count, deal_rate, updated_at
		FROM kpi_daily ORDER BY date, assigned_is, lead_source_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyKPI
	for rows.Next() {
		var r DailyKPI
		m := &r.Metrics
		if err := rows.Scan(&r.Date, &r.Agent, &r.SourceType,
			&m.CallCount, &m.ConnectedCount, &m.ConnectionRate, &m.AppointmentCount, &m.AppointmentRate,
			&m.AttendanceCount, &m.AttendanceRate, &m.DealCount, &m.DealRate, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceListKPI swaps the kpi_by_list snapshot for rows in one transaction.
func (db *DB) ReplaceListKPI(rows []ListKPI) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM kpi_by_list"); err != nil {
			return fmt.Errorf("clearing kpi_by_list: %w", err)
		}
		stmt, err := tx.Prepare(`INSERT INTO kpi_by_list (source_type, source_detail, period_start, period_end,
			total_customers, call_count, connected_count, connection_rate, appointment_count, appointment_rate,
			attendance_count, attendance_rate, deal_count, deal_rate, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range rows {
			m := r.Metrics
			if _, err := stmt.Exec(r.SourceType, r.SourceDetail, r.PeriodStart, r.PeriodEnd, r.TotalCustomers,
				m.CallCount, m.ConnectedCount, m.ConnectionRate, m.AppointmentCount, m.AppointmentRate,
				m.AttendanceCount, m.AttendanceRate, m.DealCount, m.DealRate, r.UpdatedAt); err != nil {
				return fmt.Errorf("writing kpi_by_list row %s/%s: %w", r.SourceType, r.SourceDetail, err)
			}
		}
		return nil
	})
}

// ListListKPI returns the kpi_by_list snapshot in write order.
func (db *DB) ListListKPI() ([]ListKPI, error) {
	rows, err := db.conn.Query(`SELECT source_type, source_detail, period_start, period_end, total_customers,
		call_count, connected_count, connection_rate, appointment_count, appointment_rate,
		attendance_count, attendance_rate, deal_count, deal_rate, updated_at
		FROM kpi_by_list ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListKPI
	for rows.Next() {
		var r ListKPI
		m := &r.Metrics
		if err := rows.Scan(&r.SourceType, &r.SourceDetail, &r.PeriodStart, &r.PeriodEnd, &r.TotalCustomers,
			&m.CallCount, &m.ConnectedCount, &m.ConnectionRate, &m.AppointmentCount, &m.AppointmentRate,
			&m.AttendanceCount, &m.AttendanceRate, &m.DealCount, &m.DealRate, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
