package session

// #region imports
import (
	"context"
	"errors"
	"sync"
	"time"
)

// #endregion

// #region lock-entry
// lockEntry holds the per-session mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// #endregion lock-entry

// #region manager
// Manager serializes mutating access per session ID. The engine never
// locks; every caller that loads, steps and saves a session must do so
// inside WithLock. Locks are reference counted and garbage collected
// when the last holder releases.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewManager wraps a store with per-session locking.
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		locks: make(map[string]*lockEntry),
	}
}

// acquire gets or creates a lock entry and increments its reference
// count. The caller must lock entry.mu and later call release.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and drops the entry at zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()
	return fn(ctx)
}

// #endregion manager

// #region convenience
// Load retrieves a record under the session lock.
func (m *Manager) Load(ctx context.Context, sessionID string) (*Record, error) {
	var rec *Record
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		rec, err = m.store.Load(ctx, sessionID)
		return err
	})
	return rec, err
}

// Save persists a record under the session lock.
func (m *Manager) Save(ctx context.Context, rec *Record) error {
	return m.WithLock(ctx, rec.ID, func(ctx context.Context) error {
		return m.store.Save(ctx, rec)
	})
}

// Delete removes a record under the session lock.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() Store {
	return m.store
}

// #endregion convenience

// #region expiry
// ExpireStale marks every record past its TTL as expired and reports
// how many were flipped. Sessions deleted mid-sweep are skipped.
func (m *Manager) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		err := m.WithLock(ctx, id, func(ctx context.Context) error {
			rec, err := m.store.Load(ctx, id)
			if err != nil {
				return err
			}
			if !rec.Stale(now) || !rec.Expire() {
				return nil
			}
			if err := m.store.Save(ctx, rec); err != nil {
				return err
			}
			expired++
			return nil
		})
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}

// #endregion expiry
