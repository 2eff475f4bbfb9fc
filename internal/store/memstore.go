package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests. It implements the full
// contract and additionally exposes hooks to reshape state (timestamps,
// injected failures) that a real backend would not allow.
type MemStore struct {
	mu sync.Mutex

	kv       map[string]memEntry
	logs     map[string][]logLine
	commands []CommandRecord
	nextID   int64

	// SetCalls counts Set invocations; tests use it to assert a code path
	// never mutated the store.
	SetCalls int

	// FailReads makes every read return the given error, simulating an
	// unreachable backend.
	FailReads error
}

type memEntry struct {
	value     []byte
	updatedAt time.Time
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		kv:   make(map[string]memEntry),
		logs: make(map[string][]logLine),
	}
}

func (s *MemStore) Get(key string) ([]byte, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailReads != nil {
		return nil, time.Time{}, s.FailReads
	}
	entry, ok := s.kv[key]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}
	return append([]byte(nil), entry.value...), entry.updatedAt, nil
}

func (s *MemStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SetCalls++
	s.kv[key] = memEntry{
		value:     append([]byte(nil), value...),
		updatedAt: time.Now(),
	}
	return nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.kv, key)
	return nil
}

// SetUpdatedAt rewrites the last-write time of a key so staleness tests can
// simulate an aging status entry.
func (s *MemStore) SetUpdatedAt(key string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.kv[key]; ok {
		entry.updatedAt = t
		s.kv[key] = entry
	}
}

func (s *MemStore) AppendLog(table string, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[table] = append(s.logs[table], logLine{
		CreatedAt: time.Now().UnixNano(),
		Record:    append(json.RawMessage(nil), record...),
	})
	return nil
}

func (s *MemStore) ReadRecent(table string, limit int) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailReads != nil {
		return nil, s.FailReads
	}
	lines := s.logs[table]
	var out [][]byte
	for i := len(lines) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, append([]byte(nil), lines[i].Record...))
	}
	return out, nil
}

func (s *MemStore) EnqueueCommand(cmdType string, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.commands = append(s.commands, CommandRecord{
		ID:        s.nextID,
		Type:      cmdType,
		Payload:   append(json.RawMessage(nil), payload...),
		Status:    "PENDING",
		CreatedAt: time.Now(),
	})
	return s.nextID, nil
}

func (s *MemStore) NextPendingCommand() (*CommandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailReads != nil {
		return nil, s.FailReads
	}
	for i := range s.commands {
		if s.commands[i].Status == "PENDING" {
			rec := s.commands[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *MemStore) MarkCommandDone(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.commands {
		if s.commands[i].ID == id {
			s.commands[i].Status = "DONE"
			return nil
		}
	}
	return fmt.Errorf("command %d not found", id)
}

func (s *MemStore) Cleanup(olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := olderThan.UnixNano()
	removed := 0

	for table, lines := range s.logs {
		kept := lines[:0]
		for _, ll := range lines {
			if ll.CreatedAt < cutoff {
				removed++
				continue
			}
			kept = append(kept, ll)
		}
		s.logs[table] = kept
	}

	keptCmds := s.commands[:0]
	for _, rec := range s.commands {
		if rec.Status == "DONE" && rec.CreatedAt.UnixNano() < cutoff {
			removed++
			continue
		}
		keptCmds = append(keptCmds, rec)
	}
	s.commands = keptCmds

	return removed, nil
}

func (s *MemStore) Close() error {
	return nil
}
