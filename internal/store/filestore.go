package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fileStore keeps every KV entry as one JSON file under kv/, every log
// table as a JSONL file under logs/, and every command as one numbered file
// under commands/. Replaces go through write-to-temp-then-rename so readers
// never observe a torn value.
type fileStore struct {
	root string

	mu sync.Mutex // guards command id allocation, log appends and cleanup
}

type logLine struct {
	CreatedAt int64           `json:"created_at"`
	Record    json.RawMessage `json:"record"`
}

// NewFileStore opens (and if needed creates) a flat-file store rooted at dir.
func NewFileStore(dir string) (Store, error) {
	for _, sub := range []string{"kv", "logs", "commands"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &fileStore{root: dir}, nil
}

func (s *fileStore) kvPath(key string) string {
	return filepath.Join(s.root, "kv", key+".json")
}

func (s *fileStore) logPath(table string) string {
	return filepath.Join(s.root, "logs", table+".jsonl")
}

func (s *fileStore) cmdPath(id int64) string {
	return filepath.Join(s.root, "commands", fmt.Sprintf("%010d.json", id))
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename, so concurrent readers see old or new, never partial.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *fileStore) Get(key string) ([]byte, time.Time, error) {
	path := s.kvPath(key)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}

func (s *fileStore) Set(key string, value []byte) error {
	return writeAtomic(s.kvPath(key), value)
}

func (s *fileStore) Delete(key string) error {
	err := os.Remove(s.kvPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *fileStore) AppendLog(table string, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(logLine{
		CreatedAt: time.Now().UnixNano(),
		Record:    json.RawMessage(record),
	})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.logPath(table), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (s *fileStore) ReadRecent(table string, limit int) ([][]byte, error) {
	f, err := os.Open(s.logPath(table))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []logLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ll logLine
		if err := json.Unmarshal(raw, &ll); err != nil {
			// A torn trailing line must not block the rest of the log.
			continue
		}
		lines = append(lines, ll)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var out [][]byte
	for i := len(lines) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, lines[i].Record)
	}
	return out, nil
}

func (s *fileStore) EnqueueCommand(cmdType string, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextCommandID()
	if err != nil {
		return 0, err
	}
	rec := CommandRecord{
		ID:        id,
		Type:      cmdType,
		Payload:   json.RawMessage(payload),
		Status:    "PENDING",
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	if err := writeAtomic(s.cmdPath(id), data); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *fileStore) nextCommandID() (int64, error) {
	ids, err := s.commandIDs()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 1, nil
	}
	return ids[len(ids)-1] + 1, nil
}

// commandIDs returns all command ids in ascending order.
func (s *fileStore) commandIDs() ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "commands"))
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *fileStore) NextPendingCommand() (*CommandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.commandIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		rec, err := s.readCommand(id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if rec.Status == "PENDING" {
			return rec, nil
		}
	}
	return nil, nil
}

func (s *fileStore) readCommand(id int64) (*CommandRecord, error) {
	data, err := os.ReadFile(s.cmdPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec CommandRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// An unreadable command file is skipped, not fatal.
		return nil, nil
	}
	return &rec, nil
}

func (s *fileStore) MarkCommandDone(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readCommand(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("command %d not found", id)
	}
	rec.Status = "DONE"
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return writeAtomic(s.cmdPath(id), data)
}

func (s *fileStore) Cleanup(olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for _, table := range []string{TableTrades, TableSystemLogs} {
		n, err := s.cleanupLog(table, olderThan)
		if err != nil {
			return removed, err
		}
		removed += n
	}

	ids, err := s.commandIDs()
	if err != nil {
		return removed, err
	}
	for _, id := range ids {
		rec, err := s.readCommand(id)
		if err != nil {
			return removed, err
		}
		if rec == nil {
			continue
		}
		if rec.Status == "DONE" && rec.CreatedAt.Before(olderThan) {
			if err := os.Remove(s.cmdPath(id)); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// cleanupLog rewrites the table keeping only records at or after the cutoff.
func (s *fileStore) cleanupLog(table string, olderThan time.Time) (int, error) {
	path := s.logPath(table)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := olderThan.UnixNano()
	var kept bytes.Buffer
	removed := 0
	for _, raw := range bytes.Split(data, []byte("\n")) {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var ll logLine
		if err := json.Unmarshal(raw, &ll); err != nil || ll.CreatedAt < cutoff {
			removed++
			continue
		}
		kept.Write(raw)
		kept.WriteByte('\n')
	}
	if removed == 0 {
		return 0, nil
	}
	if err := writeAtomic(path, kept.Bytes()); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *fileStore) Close() error {
	return nil
}
