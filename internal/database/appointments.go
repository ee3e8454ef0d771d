package database

import (
	"database/sql"
	"fmt"
)

const appointmentColumns = `appointment_id, customer_id, from_call_id, appointment_created_datetime,
	meeting_datetime, attendance_status, deal_status, deal_amount, created_at, updated_at`

// InsertAppointment inserts an appointment, assigning an ID and timestamps when unset.
func (db *DB) InsertAppointment(a *Appointment) error {
	if a.ID == "" {
		a.ID = NewID(PrefixAppointment)
	}
	now := db.stamp()
	if a.BookedAt == "" {
		a.BookedAt = now
	}
	if a.CreatedAt == "" {
		a.CreatedAt = now
	}
	if a.UpdatedAt == "" {
		a.UpdatedAt = now
	}
	_, err := db.conn.Exec(
		`INSERT INTO appointments (`+appointmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CustomerID, a.FromCallID, a.BookedAt, a.MeetingAt,
		a.AttendanceStatus, a.DealStatus, a.DealAmount, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting appointment: %w", err)
	}
	return nil
}

// ResolveAppointment records the attendance and deal outcome of an appointment.
// Empty values leave the stored field unchanged; a nil amount keeps the stored amount.
func (db *DB) ResolveAppointment(appointmentID, attendance, deal string, amount *float64) error {
	res, err := db.conn.Exec(
		`UPDATE appointments SET
			attendance_status = CASE WHEN ? = '' THEN attendance_status ELSE ? END,
			deal_status = CASE WHEN ? = '' THEN deal_status ELSE ? END,
			deal_amount = COALESCE(?, deal_amount),
			updated_at = ?
		WHERE appointment_id = ?`,
		attendance, attendance, deal, deal, amount, db.stamp(), appointmentID,
	)
	if err != nil {
		return fmt.Errorf("resolving appointment %s: %w", appointmentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("appointment %s not found", appointmentID)
	}
	return nil
}

// GetAppointment returns an appointment by ID, or nil if it does not exist.
func (db *DB) GetAppointment(appointmentID string) (*Appointment, error) {
	rows, err := db.conn.Query(
		`SELECT `+appointmentColumns+` FROM appointments WHERE appointment_id = ?`, appointmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	appts, err := scanAppointments(rows)
	if err != nil || len(appts) == 0 {
		return nil, err
	}
	return &appts[0], nil
}

// ListAppointments returns all appointments in insertion order.
func (db *DB) ListAppointments() ([]Appointment, error) {
	rows, err := db.conn.Query(`SELECT ` + appointmentColumns + ` FROM appointments ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListAppointmentsForCustomer returns one customer's appointments in insertion order.
func (db *DB) ListAppointmentsForCustomer(customerID string) ([]Appointment, error) {
	rows, err := db.conn.Query(
		`SELECT `+appointmentColumns+` FROM appointments WHERE customer_id = ? ORDER BY seq`, customerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func scanAppointments(rows *sql.Rows) ([]Appointment, error) {
	var appts []Appointment
	for rows.Next() {
		var a Appointment
		var amount sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.FromCallID, &a.BookedAt, &a.MeetingAt,
			&a.AttendanceStatus, &a.DealStatus, &amount, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if amount.Valid {
			v := amount.Float64
			a.DealAmount = &v
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}
