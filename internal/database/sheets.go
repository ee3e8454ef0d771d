package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// HeaderRowNum is the row number of a sheet table's header; data starts below it.
const HeaderRowNum = 1

// SheetRow is one data row of a sheet table. Num is the 1-based row number
// as an editor would see it (the first data row is 2).
type SheetRow struct {
	Num   int
	Cells []string
}

// Sheet is a named, header-schema table of string cells.
type Sheet struct {
	Name   string
	Header []string
	Rows   []SheetRow
}

// Col returns the 0-based index of a header column, or -1.
func (s *Sheet) Col(name string) int {
	return indexOf(s.Header, name)
}

// Value returns the named cell of row, or "" when absent.
func (s *Sheet) Value(row SheetRow, column string) string {
	i := s.Col(column)
	if i < 0 || i >= len(row.Cells) {
		return ""
	}
	return row.Cells[i]
}

// Row returns the data row with the given number.
func (s *Sheet) Row(num int) (SheetRow, bool) {
	for _, r := range s.Rows {
		if r.Num == num {
			return r, true
		}
	}
	return SheetRow{}, false
}

// EnsureTable creates a sheet table with the given header, or rewrites the
// header of an existing table when it differs.
func (db *DB) EnsureTable(name string, header []string) error {
	encoded, err := json.Marshal(header)
	if err != nil {
		return err
	}
	now := db.stamp()
	_, err = db.conn.Exec(
		`INSERT INTO sheet_tables (name, header, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET header = excluded.header, updated_at = excluded.updated_at
		WHERE sheet_tables.header != excluded.header`,
		name, string(encoded), now, now,
	)
	if err != nil {
		return fmt.Errorf("ensuring table %s: %w", name, err)
	}
	return nil
}

// GetTable returns a sheet table with its rows in row order, or nil if the
// table does not exist.
func (db *DB) GetTable(name string) (*Sheet, error) {
	var header string
	err := db.conn.QueryRow("SELECT header FROM sheet_tables WHERE name = ?", name).Scan(&header)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", name, err)
	}

	s := &Sheet{Name: name}
	if err := json.Unmarshal([]byte(header), &s.Header); err != nil {
		return nil, fmt.Errorf("decoding header of %s: %w", name, err)
	}

	rows, err := db.conn.Query(
		"SELECT row_num, cells FROM sheet_rows WHERE table_name = ? ORDER BY row_num", name,
	)
	if err != nil {
		return nil, fmt.Errorf("reading rows of %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r SheetRow
		var cells string
		if err := rows.Scan(&r.Num, &cells); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cells), &r.Cells); err != nil {
			return nil, fmt.Errorf("decoding row %d of %s: %w", r.Num, name, err)
		}
		s.Rows = append(s.Rows, r)
	}
	return s, rows.Err()
}

// ListTables returns the names of sheet tables starting with prefix.
func (db *DB) ListTables(prefix string) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT name FROM sheet_tables WHERE substr(name, 1, ?) = ? ORDER BY name",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// AppendRows appends rows after the last existing row.
func (db *DB) AppendRows(name string, rows [][]string) error {
	return db.inTx(func(tx *sql.Tx) error {
		if err := requireTable(tx, name); err != nil {
			return err
		}
		var last int
		if err := tx.QueryRow(
			"SELECT COALESCE(MAX(row_num), ?) FROM sheet_rows WHERE table_name = ?", HeaderRowNum, name,
		).Scan(&last); err != nil {
			return err
		}
		return insertSheetRows(tx, name, last+1, rows)
	})
}

// ReplaceRows swaps every data row of a table for rows in one transaction,
// keeping the header. Readers see either the old or the new snapshot.
func (db *DB) ReplaceRows(name string, rows [][]string) error {
	return db.inTx(func(tx *sql.Tx) error {
		if err := requireTable(tx, name); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM sheet_rows WHERE table_name = ?", name); err != nil {
			return fmt.Errorf("clearing %s: %w", name, err)
		}
		if err := insertSheetRows(tx, name, HeaderRowNum+1, rows); err != nil {
			return err
		}
		_, err := tx.Exec("UPDATE sheet_tables SET updated_at = ? WHERE name = ?", db.stamp(), name)
		return err
	})
}

// UpdateRow overwrites the cells of an existing data row.
func (db *DB) UpdateRow(name string, rowNum int, values []string) error {
	encoded, err := json.Marshal(values)
	if err != nil {
		return err
	}
	res, err := db.conn.Exec(
		"UPDATE sheet_rows SET cells = ? WHERE table_name = ? AND row_num = ?",
		string(encoded), name, rowNum,
	)
	if err != nil {
		return fmt.Errorf("updating row %d of %s: %w", rowNum, name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("row %d of %s not found", rowNum, name)
	}
	return nil
}

// SetCell writes one cell addressed by 1-based row and column, padding the
// row as needed.
func (db *DB) SetCell(name string, rowNum, col int, value string) error {
	if rowNum <= HeaderRowNum || col < 1 {
		return fmt.Errorf("cell (%d,%d) of %s is not a data cell", rowNum, col, name)
	}
	return db.inTx(func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRow(
			"SELECT cells FROM sheet_rows WHERE table_name = ? AND row_num = ?", name, rowNum,
		).Scan(&raw)
		if err == sql.ErrNoRows {
			return fmt.Errorf("row %d of %s not found", rowNum, name)
		}
		if err != nil {
			return err
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return err
		}
		for len(cells) < col {
			cells = append(cells, "")
		}
		cells[col-1] = value
		encoded, err := json.Marshal(cells)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			"UPDATE sheet_rows SET cells = ? WHERE table_name = ? AND row_num = ?",
			string(encoded), name, rowNum,
		)
		return err
	})
}

// FindRowsWhere returns the rows of a table matching pred.
func (db *DB) FindRowsWhere(name string, pred func(s *Sheet, row SheetRow) bool) ([]SheetRow, error) {
	s, err := db.GetTable(name)
	if err != nil || s == nil {
		return nil, err
	}
	var out []SheetRow
	for _, r := range s.Rows {
		if pred(s, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func requireTable(tx *sql.Tx, name string) error {
	var n int
	if err := tx.QueryRow("SELECT COUNT(*) FROM sheet_tables WHERE name = ?", name).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("table %s does not exist", name)
	}
	return nil
}

func insertSheetRows(tx *sql.Tx, name string, first int, rows [][]string) error {
	stmt, err := tx.Prepare("INSERT INTO sheet_rows (table_name, row_num, cells) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, cells := range rows {
		if cells == nil {
			cells = []string{}
		}
		encoded, err := json.Marshal(cells)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(name, first+i, string(encoded)); err != nil {
			return fmt.Errorf("writing row %d of %s: %w", first+i, name, err)
		}
	}
	return nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}
