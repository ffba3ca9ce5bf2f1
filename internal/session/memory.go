package session

// #region imports
import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// #endregion

// #region memory-store
// MemoryStore keeps records in a map. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Record)}
}

// Save stores a deep copy so later caller mutations cannot leak in.
// The same sequence fence as the durable stores applies.
func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Snapshot == nil {
		return fmt.Errorf("save: nil record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.data[rec.ID]; ok && rec.Seq() < prev.Seq() {
		return fmt.Errorf("session %s at seq %d behind active %d: %w",
			rec.ID, rec.Seq(), prev.Seq(), ErrVersionConflict)
	}
	s.data[rec.ID] = rec.Clone()
	return nil
}

// Load returns a deep copy so the caller cannot mutate stored state
// by pointer.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return rec.Clone(), nil
}

// Delete removes the record.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns stored session IDs in stable order.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// #endregion memory-store
