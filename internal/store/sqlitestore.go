package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver
)

// sqliteStore is the embedded relational backend. The schema mirrors the
// shared database the bot process reads: a kv_store table for whole-replace
// blobs, append-only trade/system log tables and the command queue.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dataSourceName and creates the
// tables if they don't exist.
func NewSQLiteStore(dataSourceName string) (Store, error) {
	// WAL keeps the single writer from blocking dashboard reads.
	db, err := sql.Open("sqlite3", dataSourceName+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

// createTables creates the necessary database tables if they don't exist.
func createTables(db *sql.DB) error {
	createKVTableSQL := `
	CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createKVTableSQL); err != nil {
		return err
	}

	createLogsTableSQL := `
	CREATE TABLE IF NOT EXISTS log_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tbl TEXT NOT NULL,
		record BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_log_records_tbl ON log_records (tbl, id);`

	if _, err := db.Exec(createLogsTableSQL); err != nil {
		return err
	}

	createCommandQueueSQL := `
	CREATE TABLE IF NOT EXISTS command_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cmd_type TEXT NOT NULL,
		payload BLOB,
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createCommandQueueSQL); err != nil {
		return err
	}

	return nil
}

func (s *sqliteStore) Get(key string) ([]byte, time.Time, error) {
	row := s.db.QueryRow("SELECT value, updated_at FROM kv_store WHERE key = ?", key)

	var value []byte
	var updatedAt int64
	err := row.Scan(&value, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, time.Unix(0, updatedAt), nil
}

func (s *sqliteStore) Set(key string, value []byte) error {
	query := `
	INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at;`

	_, err := s.db.Exec(query, key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM kv_store WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) AppendLog(table string, record []byte) error {
	_, err := s.db.Exec(
		"INSERT INTO log_records (tbl, record, created_at) VALUES (?, ?, ?)",
		table, record, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", table, err)
	}
	return nil
}

func (s *sqliteStore) ReadRecent(table string, limit int) ([][]byte, error) {
	rows, err := s.db.Query(
		"SELECT record FROM log_records WHERE tbl = ? ORDER BY id DESC LIMIT ?",
		table, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var records [][]byte
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *sqliteStore) EnqueueCommand(cmdType string, payload []byte) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO command_queue (cmd_type, payload, status, created_at) VALUES (?, ?, 'PENDING', ?)",
		cmdType, payload, time.Now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue command: %w", err)
	}
	return res.LastInsertId()
}

func (s *sqliteStore) NextPendingCommand() (*CommandRecord, error) {
	row := s.db.QueryRow(
		"SELECT id, cmd_type, payload, created_at FROM command_queue WHERE status = 'PENDING' ORDER BY id ASC LIMIT 1",
	)

	var rec CommandRecord
	var payload []byte
	var createdAt int64
	err := row.Scan(&rec.ID, &rec.Type, &payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read command queue: %w", err)
	}
	rec.Payload = json.RawMessage(payload)
	rec.Status = "PENDING"
	rec.CreatedAt = time.Unix(0, createdAt)
	return &rec, nil
}

func (s *sqliteStore) MarkCommandDone(id int64) error {
	res, err := s.db.Exec("UPDATE command_queue SET status = 'DONE' WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark command %d done: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("command %d not found", id)
	}
	return nil
}

func (s *sqliteStore) Cleanup(olderThan time.Time) (int, error) {
	cutoff := olderThan.UnixNano()
	removed := 0

	res, err := s.db.Exec("DELETE FROM log_records WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up logs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += int(n)
	}

	res, err = s.db.Exec("DELETE FROM command_queue WHERE status = 'DONE' AND created_at < ?", cutoff)
	if err != nil {
		return removed, fmt.Errorf("failed to clean up command queue: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += int(n)
	}

	return removed, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
