package database

import (
	"database/sql"
	"fmt"
)

const callLogColumns = `call_id, customer_id, lead_source_id, assigned_is, call_datetime, call_count,
	status, note_rank, next_action_date, memo, created_at, updated_at`

// InsertCallLog inserts an outreach record, assigning an ID and timestamps when unset.
func (db *DB) InsertCallLog(c *CallLog) error {
	if c.ID == "" {
		c.ID = NewID(PrefixCall)
	}
	now := db.stamp()
	if c.CalledAt == "" {
		c.CalledAt = now
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = now
	}
	_, err := db.conn.Exec(
		`INSERT INTO call_logs (`+callLogColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CustomerID, c.LeadSourceID, c.Agent, c.CalledAt, c.Attempt,
		c.Outcome, c.Rank, c.NextActionDate, c.Memo, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting call log: %w", err)
	}
	return nil
}

// CountCallLogs returns the number of outreach records for a customer.
func (db *DB) CountCallLogs(customerID string) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM call_logs WHERE customer_id = ?", customerID).Scan(&n)
	return n, err
}

// ListCallLogs returns all outreach records in insertion order.
func (db *DB) ListCallLogs() ([]CallLog, error) {
	rows, err := db.conn.Query(`SELECT ` + callLogColumns + ` FROM call_logs ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCallLogs(rows)
}

// ListCallLogsForCustomer returns one customer's outreach records in insertion order.
func (db *DB) ListCallLogsForCustomer(customerID string) ([]CallLog, error) {
	rows, err := db.conn.Query(
		`SELECT `+callLogColumns+` FROM call_logs WHERE customer_id = ? ORDER BY seq`, customerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCallLogs(rows)
}

// ListCallAgents returns the distinct agents that appear in the call log.
func (db *DB) ListCallAgents() ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT DISTINCT assigned_is FROM call_logs WHERE assigned_is != '' ORDER BY assigned_is",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func scanCallLogs(rows *sql.Rows) ([]CallLog, error) {
	var logs []CallLog
	for rows.Next() {
		var c CallLog
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.LeadSourceID, &c.Agent, &c.CalledAt, &c.Attempt,
			&c.Outcome, &c.Rank, &c.NextActionDate, &c.Memo, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, c)
	}
	return logs, rows.Err()
}
