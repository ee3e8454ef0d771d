package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "canonical entities and kpi tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS customers (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    customer_id TEXT UNIQUE NOT NULL,
    line_name TEXT NOT NULL DEFAULT '',
    full_name TEXT NOT NULL DEFAULT '',
    phone_number TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    status_overall TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_sources (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    lead_source_id TEXT UNIQUE NOT NULL,
    customer_id TEXT NOT NULL REFERENCES customers(customer_id),
    source_type TEXT NOT NULL,
    source_detail TEXT NOT NULL DEFAULT '',
    list_added_date TEXT NOT NULL DEFAULT '',
    event_date TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (customer_id, source_type, source_detail)
);

CREATE TABLE IF NOT EXISTS call_logs (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    call_id TEXT UNIQUE NOT NULL,
    customer_id TEXT NOT NULL REFERENCES customers(customer_id),
    lead_source_id TEXT NOT NULL DEFAULT '',
    assigned_is TEXT NOT NULL,
    call_datetime TEXT NOT NULL DEFAULT '',
    call_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT '',
    note_rank TEXT NOT NULL DEFAULT '',
    next_action_date TEXT NOT NULL DEFAULT '',
    memo TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS appointments (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    appointment_id TEXT UNIQUE NOT NULL,
    customer_id TEXT NOT NULL REFERENCES customers(customer_id),
    from_call_id TEXT NOT NULL DEFAULT '',
    appointment_created_datetime TEXT NOT NULL,
    meeting_datetime TEXT NOT NULL,
    attendance_status TEXT NOT NULL DEFAULT '',
    deal_status TEXT NOT NULL DEFAULT '',
    deal_amount REAL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kpi_daily (
    date TEXT NOT NULL,
    assigned_is TEXT NOT NULL,
    lead_source_type TEXT NOT NULL,
    call_count INTEGER NOT NULL,
    connected_count INTEGER NOT NULL,
    connection_rate REAL NOT NULL,
    appointment_count INTEGER NOT NULL,
    appointment_rate REAL NOT NULL,
    attendance_count INTEGER NOT NULL,
    attendance_rate REAL NOT NULL,
    deal_count INTEGER NOT NULL,
    deal_rate REAL NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (date, assigned_is, lead_source_type)
);

CREATE TABLE IF NOT EXISTS kpi_by_list (
    source_type TEXT NOT NULL,
    source_detail TEXT NOT NULL,
    period_start TEXT NOT NULL,
    period_end TEXT NOT NULL,
    total_customers INTEGER NOT NULL,
    call_count INTEGER NOT NULL,
    connected_count INTEGER NOT NULL,
    connection_rate REAL NOT NULL,
    appointment_count INTEGER NOT NULL,
    appointment_rate REAL NOT NULL,
    attendance_count INTEGER NOT NULL,
    attendance_rate REAL NOT NULL,
    deal_count INTEGER NOT NULL,
    deal_rate REAL NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (source_type, source_detail)
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "sheet tables, logs and run reports",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sheet_tables (
    name TEXT PRIMARY KEY,
    header TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sheet_rows (
    table_name TEXT NOT NULL REFERENCES sheet_tables(name) ON DELETE CASCADE,
    row_num INTEGER NOT NULL,
    cells TEXT NOT NULL,
    PRIMARY KEY (table_name, row_num)
);

CREATE TABLE IF NOT EXISTS logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    function_name TEXT NOT NULL DEFAULT '',
    level TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    stacktrace TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_reports (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    report_markdown TEXT NOT NULL
);
`)
			return err
		},
	},
	{
		Version:     3,
		Description: "lookup indexes",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_customers_phone ON customers(phone_number);
CREATE INDEX IF NOT EXISTS idx_customers_line_name ON customers(line_name);
CREATE INDEX IF NOT EXISTS idx_lead_sources_customer ON lead_sources(customer_id);
CREATE INDEX IF NOT EXISTS idx_call_logs_customer ON call_logs(customer_id);
CREATE INDEX IF NOT EXISTS idx_call_logs_agent ON call_logs(assigned_is, call_datetime);
CREATE INDEX IF NOT EXISTS idx_appointments_customer ON appointments(customer_id);
CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
