package session

// #region imports
import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/psycheos/screening-engine/internal/orchestrator"
)

// #endregion

// #region status
// Status is the persistence-level lifecycle of a session record.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
)

// statusFor derives the record status from the snapshot it wraps.
// Expiry is an external decision and never derived here.
func statusFor(snap *orchestrator.SessionSnapshot) Status {
	switch {
	case snap == nil || snap.Seq == 0:
		return StatusCreated
	case snap.Phase == orchestrator.PhaseCompleted:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// #endregion status

// #region record
// Record wraps a session snapshot with the bookkeeping the stores
// persist alongside it.
type Record struct {
	ID          string                        `json:"id"`
	Status      Status                        `json:"status"`
	Snapshot    *orchestrator.SessionSnapshot `json:"snapshot"`
	CreatedAt   time.Time                     `json:"created_at"`
	StartedAt   time.Time                     `json:"started_at"`
	CompletedAt time.Time                     `json:"completed_at"`
	ExpiresAt   time.Time                     `json:"expires_at"`
}

// NewRecord wraps a freshly started snapshot. A zero ttl means the
// record never expires.
func NewRecord(snap *orchestrator.SessionSnapshot, ttl time.Duration) *Record {
	now := time.Now().UTC()
	rec := &Record{
		ID:        snap.SessionID,
		Status:    statusFor(snap),
		Snapshot:  snap,
		CreatedAt: now,
		StartedAt: now,
	}
	if ttl > 0 {
		rec.ExpiresAt = now.Add(ttl)
	}
	return rec
}

// Update replaces the snapshot after an accepted step and re-derives
// the status. An expired record stays expired.
func (r *Record) Update(snap *orchestrator.SessionSnapshot) {
	r.Snapshot = snap
	if r.Status == StatusExpired {
		return
	}
	r.Status = statusFor(snap)
	if r.Status == StatusCompleted && r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now().UTC()
	}
}

// Expire marks the record stale. Completed records are kept as-is.
func (r *Record) Expire() bool {
	if r.Status == StatusCompleted || r.Status == StatusExpired {
		return false
	}
	r.Status = StatusExpired
	return true
}

// Stale reports whether the record has outlived its TTL at the given
// instant. Records without an expiry never go stale.
func (r *Record) Stale(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Seq returns the sequence number of the wrapped snapshot.
func (r *Record) Seq() int {
	if r.Snapshot == nil {
		return 0
	}
	return r.Snapshot.Seq
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (r *Record) Clone() *Record {
	c := *r
	if r.Snapshot != nil {
		c.Snapshot = r.Snapshot.Clone()
	}
	return &c
}

// #endregion record

// #region codec
// EncodeRecord serializes a record to JSON for storage.
func EncodeRecord(r *Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// DecodeRecord deserializes a stored record.
func DecodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// #endregion codec
