package database

import (
	"database/sql"
	"fmt"
)

const leadSourceColumns = `lead_source_id, customer_id, source_type, source_detail, list_added_date, event_date, created_at, updated_at`

// InsertLeadSource inserts a provenance record, assigning an ID and timestamps when unset.
func (db *DB) InsertLeadSource(ls *LeadSource) error {
	if ls.ID == "" {
		ls.ID = NewID(PrefixLeadSource)
	}
	now := db.stamp()
	if ls.CreatedAt == "" {
		ls.CreatedAt = now
	}
	if ls.UpdatedAt == "" {
		ls.UpdatedAt = now
	}
	_, err := db.conn.Exec(
		`INSERT INTO lead_sources (`+leadSourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ls.ID, ls.CustomerID, ls.SourceType, ls.SourceDetail, ls.ListAddedDate, ls.EventDate, ls.CreatedAt, ls.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting lead source: %w", err)
	}
	return nil
}

// UpdateLeadSourceDates refreshes the list/event dates and updated_at of an
// existing provenance record.
func (db *DB) UpdateLeadSourceDates(ls *LeadSource) error {
	ls.UpdatedAt = db.stamp()
	_, err := db.conn.Exec(
		`UPDATE lead_sources SET list_added_date = ?, event_date = ?, updated_at = ? WHERE lead_source_id = ?`,
		ls.ListAddedDate, ls.EventDate, ls.UpdatedAt, ls.ID,
	)
	if err != nil {
		return fmt.Errorf("updating lead source %s: %w", ls.ID, err)
	}
	return nil
}

// ListLeadSources returns all lead sources in insertion order.
func (db *DB) ListLeadSources() ([]LeadSource, error) {
	rows, err := db.conn.Query(`SELECT ` + leadSourceColumns + ` FROM lead_sources ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLeadSources(rows)
}

// GetPrimaryLeadSource returns the first lead source attached to a customer,
// or nil when it has none.
func (db *DB) GetPrimaryLeadSource(customerID string) (*LeadSource, error) {
	row := db.conn.QueryRow(
		`SELECT `+leadSourceColumns+` FROM lead_sources WHERE customer_id = ? ORDER BY seq LIMIT 1`,
		customerID,
	)
	var ls LeadSource
	err := row.Scan(&ls.ID, &ls.CustomerID, &ls.SourceType, &ls.SourceDetail,
		&ls.ListAddedDate, &ls.EventDate, &ls.CreatedAt, &ls.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ls, nil
}

func scanLeadSources(rows *sql.Rows) ([]LeadSource, error) {
	var sources []LeadSource
	for rows.Next() {
		var ls LeadSource
		if err := rows.Scan(&ls.ID, &ls.CustomerID, &ls.SourceType, &ls.SourceDetail,
			&ls.ListAddedDate, &ls.EventDate, &ls.CreatedAt, &ls.UpdatedAt); err != nil {
			return nil, err
		}
		sources = append(sources, ls)
	}
	return sources, rows.Err()
}
