package database

import (
	"database/sql"
	"fmt"
)

const customerColumns = `customer_id, line_name, full_name, phone_number, email, status_overall, created_at, updated_at`

// InsertCustomer inserts a new customer, assigning an ID and timestamps when unset.
func (db *DB) InsertCustomer(c *Customer) error {
	if c.ID == "" {
		c.ID = NewID(PrefixCustomer)
	}
	now := db.stamp()
	if c.CreatedAt == "" {
		c.CreatedAt = now
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = now
	}
	_, err := db.conn.Exec(
		`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.LineName, c.FullName, c.PhoneNumber, c.Email, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting customer: %w", err)
	}
	return nil
}

// UpdateCustomerContact rewrites contact fields and refreshes updated_at.
// Status is left untouched.
func (db *DB) UpdateCustomerContact(c *Customer) error {
	c.UpdatedAt = db.stamp()
	_, err := db.conn.Exec(
		`UPDATE customers SET line_name = ?, full_name = ?, phone_number = ?, email = ?, updated_at = ?
		WHERE customer_id = ?`,
		c.LineName, c.FullName, c.PhoneNumber, c.Email, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating customer %s: %w", c.ID, err)
	}
	return nil
}

// UpdateCustomerStatus sets the overall lifecycle status.
func (db *DB) UpdateCustomerStatus(customerID, status string) error {
	res, err := db.conn.Exec(
		"UPDATE customers SET status_overall = ?, updated_at = ? WHERE customer_id = ?",
		status, db.stamp(), customerID,
	)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", customerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating status: customer %s not found", customerID)
	}
	return nil
}

// GetCustomer returns a customer by ID, or nil if it does not exist.
func (db *DB) GetCustomer(customerID string) (*Customer, error) {
	row := db.conn.QueryRow(`SELECT `+customerColumns+` FROM customers WHERE customer_id = ?`, customerID)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCustomers returns all customers in listing (insertion) order.
func (db *DB) ListCustomers() ([]Customer, error) {
	rows, err := db.conn.Query(`SELECT ` + customerColumns + ` FROM customers ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.LineName, &c.FullName, &c.PhoneNumber, &c.Email,
			&c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// CountCustomersByStatus returns customer counts keyed by raw status (blank included).
func (db *DB) CountCustomersByStatus() (map[string]int, error) {
	rows, err := db.conn.Query("SELECT status_overall, COUNT(*) FROM customers GROUP BY status_overall")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanCustomer(row *sql.Row) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.LineName, &c.FullName, &c.PhoneNumber, &c.Email,
		&c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
