// Package store defines the persistent store shared by the control process
// and the bot process, and its interchangeable backends. The store is the
// only channel between the two processes: single-key replaces are atomic,
// log tables are append-only, and the command queue is strictly FIFO.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0022papa/kiwoom-bot/internal/models"
)

// ErrNotFound reports that a key has no value. Absence is a normal,
// non-error condition for callers; they check it with errors.Is.
var ErrNotFound = errors.New("store: key not found")

// Log tables kept by every backend.
const (
	TableTrades     = "trade_logs"
	TableSystemLogs = "system_logs"
)

// CommandRecord is the queue's wire envelope. The status field is owned by
// the store: it starts PENDING and only MarkCommandDone advances it.
type CommandRecord struct {
	ID        int64           `json:"id"`
	Type      string          `json:"cmd_type"`
	Payload   json.RawMessage `json:"payload"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is the persistence contract behind the control plane. All methods
// are safe for concurrent use within one process; cross-process consistency
// relies on the atomicity of Set and the append-only queue/log tables.
type Store interface {
	// Get returns the value and last-write time for key, or ErrNotFound.
	Get(key string) ([]byte, time.Time, error)

	// Set atomically replaces the value for key. A concurrent reader sees
	// either the old value or the new one, never a torn write.
	Set(key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// AppendLog appends one record to the named log table.
	AppendLog(table string, record []byte) error

	// ReadRecent returns up to limit records from the table, newest first.
	ReadRecent(table string, limit int) ([][]byte, error)

	// EnqueueCommand appends a PENDING command and returns its id.
	// Command ids are strictly increasing in enqueue order.
	EnqueueCommand(cmdType string, payload []byte) (int64, error)

	// NextPendingCommand returns the oldest PENDING command, or nil when
	// the queue is drained.
	NextPendingCommand() (*CommandRecord, error)

	// MarkCommandDone advances the command's status to DONE.
	MarkCommandDone(id int64) error

	// Cleanup removes log records and finished commands older than the
	// cutoff. It returns the number of removed rows.
	Cleanup(olderThan time.Time) (int, error)

	// Close releases the backend.
	Close() error
}

// Open constructs the backend named by cfg.
func Open(cfg models.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "file":
		return NewFileStore(cfg.Path)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "badger":
		return NewBadgerStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
