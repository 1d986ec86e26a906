package synth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Record describes a gap proven infeasible.
type Record struct {
	Function  string    `msgpack:"function" json:"function"`
	Gap       string    `msgpack:"gap" json:"gap"`
	Condition string    `msgpack:"condition" json:"condition"`
	Reason    string    `msgpack:"reason,omitempty" json:"reason,omitempty"`
	MarkedAt  time.Time `msgpack:"marked_at" json:"marked_at"`
}

// FeasibilityStore remembers gaps whose conditions cannot be satisfied so
// later runs do not query them again. Keys are derived from the function
// body and the query clauses.
type FeasibilityStore interface {
	Infeasible(key string) (Record, bool)
	MarkInfeasible(key string, rec Record) error
}

// MemoryStore is a FeasibilityStore that lives for one process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Infeasible implements FeasibilityStore.
func (s *MemoryStore) Infeasible(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

// MarkInfeasible implements FeasibilityStore.
func (s *MemoryStore) MarkInfeasible(key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

// Len returns the number of records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FileStore is a FeasibilityStore persisted to one file as zstd-compressed
// msgpack. Every mark rewrites the file.
type FileStore struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
}

// OpenFileStore loads the store at path. A missing file gives an empty
// store that is created on the first mark.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, records: make(map[string]Record)}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening feasibility store: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading feasibility store: %w", err)
	}
	defer dec.Close()
	if err := msgpack.NewDecoder(dec).Decode(&s.records); err != nil {
		return nil, fmt.Errorf("decoding feasibility store %s: %w", path, err)
	}
	if s.records == nil {
		s.records = make(map[string]Record)
	}
	return s, nil
}

// Path returns the file backing s.
func (s *FileStore) Path() string { return s.path }

// Infeasible implements FeasibilityStore.
func (s *FileStore) Infeasible(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Records returns every record ordered by function and gap.
func (s *FileStore) Records() []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Function != out[j].Function {
			return out[i].Function < out[j].Function
		}
		return out[i].Gap < out[j].Gap
	})
	return out
}

// MarkInfeasible implements FeasibilityStore.
func (s *FileStore) MarkInfeasible(key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return s.save()
}

// save writes the records to a temporary file and renames it over path.
func (s *FileStore) save() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating store directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("creating feasibility store: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := msgpack.NewEncoder(enc).Encode(s.records); err != nil {
		enc.Close()
		tmp.Close()
		return fmt.Errorf("encoding feasibility store: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

var (
	_ FeasibilityStore = (*MemoryStore)(nil)
	_ FeasibilityStore = (*FileStore)(nil)
)
