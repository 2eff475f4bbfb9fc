package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// badgerStore is the embedded transactional backend. KV entries live under
// kv:, log records under log:<table>: with a monotonically increasing
// sequence suffix, and commands under cmd:.
type badgerStore struct {
	db *badger.DB
}

// kvEntry wraps a value with its last-write time, since Badger itself does
// not track one.
type kvEntry struct {
	UpdatedAt int64           `json:"updated_at"`
	Value     json.RawMessage `json:"value"`
}

// NewBadgerStore creates and returns a store backed by a BadgerDB database
// at dbPath.
func NewBadgerStore(dbPath string) (Store, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled to keep the app's logs clean.
	// Errors are still returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerStore{db: db}, nil
}

func kvKey(key string) []byte    { return []byte("kv:" + key) }
func seqKey(scope string) []byte { return []byte("seq:" + scope) }

func logPrefix(table string) []byte {
	return []byte("log:" + table + ":")
}

func logKey(table string, seq uint64) []byte {
	key := logPrefix(table)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

func cmdKey(seq uint64) []byte {
	key := []byte("cmd:")
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

// nextSeq increments and returns the counter for scope inside txn.
func nextSeq(txn *badger.Txn, scope string) (uint64, error) {
	var seq uint64
	item, err := txn.Get(seqKey(scope))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		seq = 0
	case err != nil:
		return 0, err
	default:
		if err := item.Value(func(val []byte) error {
			if len(val) == 8 {
				seq = binary.BigEndian.Uint64(val)
			}
			return nil
		}); err != nil {
			return 0, err
		}
	}
	seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := txn.Set(seqKey(scope), buf[:]); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *badgerStore) Get(key string) ([]byte, time.Time, error) {
	var entry kvEntry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kvKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return entry.Value, time.Unix(0, entry.UpdatedAt), nil
}

func (s *badgerStore) Set(key string, value []byte) error {
	data, err := json.Marshal(kvEntry{
		UpdatedAt: time.Now().UnixNano(),
		Value:     json.RawMessage(value),
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(kvKey(key), data)
	})
}

func (s *badgerStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(kvKey(key))
	})
}

func (s *badgerStore) AppendLog(table string, record []byte) error {
	line, err := json.Marshal(logLine{
		CreatedAt: time.Now().UnixNano(),
		Record:    json.RawMessage(record),
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn, "log:"+table)
		if err != nil {
			return err
		}
		return txn.Set(logKey(table, seq), line)
	})
}

func (s *badgerStore) ReadRecent(table string, limit int) ([][]byte, error) {
	var records [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = logPrefix(table)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the highest possible sequence so the reverse walk
		// starts at the newest record.
		seekTo := append(logPrefix(table), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		for it.Seek(seekTo); it.Valid() && len(records) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var ll logLine
				if err := json.Unmarshal(val, &ll); err != nil {
					return nil // skip undecodable record
				}
				records = append(records, append([]byte(nil), ll.Record...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *badgerStore) EnqueueCommand(cmdType string, payload []byte) (int64, error) {
	var id int64

	err := s.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn, "cmd")
		if err != nil {
			return err
		}
		id = int64(seq)
		rec := CommandRecord{
			ID:        id,
			Type:      cmdType,
			Payload:   json.RawMessage(payload),
			Status:    "PENDING",
			CreatedAt: time.Now(),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(cmdKey(seq), data)
	})

	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *badgerStore) NextPendingCommand() (*CommandRecord, error) {
	var found *CommandRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("cmd:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte("cmd:")); it.Valid(); it.Next() {
			var rec CommandRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				continue // skip undecodable command
			}
			if rec.Status == "PENDING" {
				found = &rec
				return nil
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *badgerStore) MarkCommandDone(id int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := cmdKey(uint64(id))
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("command %d not found", id)
		}
		if err != nil {
			return err
		}
		var rec CommandRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		rec.Status = "DONE"
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func (s *badgerStore) Cleanup(olderThan time.Time) (int, error) {
	cutoff := olderThan.UnixNano()
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		for _, table := range []string{TableTrades, TableSystemLogs} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = logPrefix(table)
			it := txn.NewIterator(opts)
			for it.Seek(opts.Prefix); it.Valid(); it.Next() {
				item := it.Item()
				var ll logLine
				err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &ll)
				})
				if err != nil || ll.CreatedAt < cutoff {
					stale = append(stale, item.KeyCopy(nil))
				}
			}
			it.Close()
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("cmd:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			item := it.Item()
			var rec CommandRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if rec.Status == "DONE" && rec.CreatedAt.UnixNano() < cutoff {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range stale {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// Close gracefully closes the connection to the database.
func (s *badgerStore) Close() error {
	return s.db.Close()
}
