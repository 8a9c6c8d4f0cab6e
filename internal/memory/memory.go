// Package memory is the durable store of queries the pipeline could
// not answer. It owns its JSON file exclusively: one writer, fsync on
// every mutation, copy-on-return reads.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/metrics"
	"github.com/korpuslab/zapytaj/internal/models"
)

// Entry statuses.
const (
	StatusPending  = "pending"
	StatusResolved = "resolved"
)

// Entry is one unresolved query with the metadata hints the change
// detector matches new documents against.
type Entry struct {
	ID           uint64   `json:"id"`
	Query        string   `json:"query"`
	EntitiesHint []string `json:"entities_hint"`
	YearsHint    []int    `json:"years_hint"`
	PlacesHint   []string `json:"places_hint"`
	RetryCount   int      `json:"retry_count"`
	Status       string   `json:"status"`
	Timestamp    string   `json:"timestamp"`
	ResolvedAt   string   `json:"resolved_at,omitempty"`
}

// Stats summarizes the store.
type Stats struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Resolved      int     `json:"resolved"`
	AvgRetryCount float64 `json:"avg_retry_count"`
}

// Store holds the entries in memory and mirrors every mutation to the
// file.
type Store struct {
	path string
	log  *zap.Logger

	mu      sync.Mutex
	entries []Entry
	nextID  uint64
}

// Open loads the store from path, creating parent directories. A
// missing file starts an empty store; ids continue from max(ids)+1.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create memory directory: %w", err)
		}
	}

	s := &Store{path: path, log: logger, nextID: 1}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// first run
	case err != nil:
		return nil, fmt.Errorf("read unresolved store: %w", err)
	default:
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("parse unresolved store: %w", err)
		}
		for _, e := range s.entries {
			if e.ID >= s.nextID {
				s.nextID = e.ID + 1
			}
		}
		sort.Slice(s.entries, func(i, j int) bool { return s.entries[i].ID < s.entries[j].ID })
	}

	logger.Info("Unresolved memory opened",
		zap.String("path", path),
		zap.Int("entries", len(s.entries)))
	s.updateGauge()
	return s, nil
}

// Add appends a pending entry with the given metadata hints and
// persists. Returns the new id.
func (s *Store) Add(query string, meta models.Metadata) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		ID:           s.nextID,
		Query:        query,
		EntitiesHint: append([]string(nil), meta.Entities...),
		YearsHint:    append([]int(nil), meta.Years...),
		PlacesHint:   append([]string(nil), meta.Places...),
		Status:       StatusPending,
		Timestamp:    time.Now().Format(time.RFC3339),
	}
	s.entries = append(s.entries, entry)
	if err := s.persistLocked(); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		return 0, err
	}
	s.nextID++

	metrics.UnresolvedAdded.Inc()
	s.updateGaugeLocked()
	s.log.Info("Query saved as unresolved",
		zap.Uint64("id", entry.ID),
		zap.String("query", query))
	return entry.ID, nil
}

// Pending returns copies of the pending entries in id order.
func (s *Store) Pending() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Status == StatusPending {
			out = append(out, e)
		}
	}
	return out
}

// ByID returns a copy of the entry, or models.ErrNotFound.
func (s *Store) ByID(id uint64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, models.ErrNotFound
}

// IncrementRetry bumps the retry counter and persists.
func (s *Store) IncrementRetry(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].RetryCount++
			return s.persistLocked()
		}
	}
	return models.ErrNotFound
}

// MarkResolved flips the entry to resolved. Calling it again on an
// already resolved entry is a no-op.
func (s *Store) MarkResolved(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID != id {
			continue
		}
		if s.entries[i].Status == StatusResolved {
			return nil
		}
		s.entries[i].Status = StatusResolved
		s.entries[i].ResolvedAt = time.Now().Format(time.RFC3339)
		if err := s.persistLocked(); err != nil {
			return err
		}
		metrics.UnresolvedResolved.Inc()
		s.updateGaugeLocked()
		return nil
	}
	return models.ErrNotFound
}

// Stats reports totals and the average retry count over pending
// entries.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Total: len(s.entries)}
	retries := 0
	for _, e := range s.entries {
		if e.Status == StatusPending {
			st.Pending++
			retries += e.RetryCount
		} else {
			st.Resolved++
		}
	}
	if st.Pending > 0 {
		st.AvgRetryCount = float64(retries) / float64(st.Pending)
	}
	return st
}

// ClearResolved drops resolved entries and persists.
func (s *Store) ClearResolved() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Status == StatusPending {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return s.persistLocked()
}

// ShouldSaveAsUnresolved reports whether an answer failed outright:
// the model declared it has nothing, no chunks reached the prompt, or
// the answer cites nothing.
func (s *Store) ShouldSaveAsUnresolved(answer string, usedChunks, citations int) bool {
	upper := strings.ToUpper(answer)
	if strings.Contains(upper, "BRAK INFORMACJI") || strings.Contains(upper, "BRAK ODPOWIEDZI") {
		return true
	}
	if usedChunks < 1 {
		return true
	}
	return citations < 1
}

// persistLocked writes the whole entry list and fsyncs. Callers hold
// the lock.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode unresolved store: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open unresolved store: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write unresolved store: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync unresolved store: %w", err)
	}
	return f.Close()
}

func (s *Store) updateGauge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateGaugeLocked()
}

func (s *Store) updateGaugeLocked() {
	pending := 0
	for _, e := range s.entries {
		if e.Status == StatusPending {
			pending++
		}
	}
	metrics.UnresolvedPending.Set(float64(pending))
}
