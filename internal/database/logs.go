package database

// AppendLog writes one row to the logs table.
func (db *DB) AppendLog(timestamp, function, level, message, stacktrace string) error {
	_, err := db.conn.Exec(
		`INSERT INTO logs (timestamp, function_name, level, message, stacktrace) VALUES (?, ?, ?, ?, ?)`,
		timestamp, function, level, message, stacktrace,
	)
	return err
}

// RecentLogs returns the newest log rows first, at most limit of them.
func (db *DB) RecentLogs(limit int) ([]LogEntry, error) {
	rows, err := db.conn.Query(
		`SELECT id, timestamp, function_name, level, message, stacktrace
		FROM logs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.FunctionName, &e.Level, &e.Message, &e.Stacktrace); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
