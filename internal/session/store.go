package session

// #region imports
import (
	"context"
	"errors"
)

// #endregion

// #region errors
var (
	// ErrSessionNotFound is returned when no record exists for the ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVersionConflict is returned when a save carries a snapshot
	// sequence that lost the race against a concurrent writer.
	ErrVersionConflict = errors.New("session version conflict")
)

// #endregion errors

// #region store-interface
// Store persists session records. Implementations must treat the
// snapshot sequence number as the write fence: a save that would move
// a session backwards fails with ErrVersionConflict.
type Store interface {
	// Save persists the record under its session ID.
	Save(ctx context.Context, rec *Record) error

	// Load retrieves the record for a session ID.
	// Returns ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*Record, error)

	// Delete removes the record and all its history.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)

	// Close releases the backing resources.
	Close() error
}

// #endregion store-interface
