package session

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/psycheos/screening-engine/internal/orchestrator"
	_ "modernc.org/sqlite"
)

// #endregion

// #region schema
const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	active_seq    INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	completed_at  TEXT,
	expires_at    TEXT,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_versions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	phase         TEXT NOT NULL,
	confidence    REAL NOT NULL,
	snapshot      TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE (session_id, seq),
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS probe_stats (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id        TEXT NOT NULL,
	seq               INTEGER NOT NULL,
	node              TEXT NOT NULL,
	phase             INTEGER NOT NULL,
	confidence_before REAL NOT NULL,
	confidence_after  REAL NOT NULL,
	created_at        TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	phase         TEXT NOT NULL,
	decision      TEXT NOT NULL,
	reason        TEXT,
	response_json TEXT,
	created_at    TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// SQLiteStore keeps one row per session plus an append-only trail of
// snapshot versions, one per accepted step, with an active pointer.
type SQLiteStore struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewSQLiteStore opens a SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so the audit and inspect layers can
// share one database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region save
// Save commits the record. A snapshot sequence ahead of the active
// pointer appends a new version and advances the pointer; the same
// sequence with an unchanged snapshot refreshes session metadata only;
// anything else lost a race and fails with ErrVersionConflict.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Snapshot == nil {
		return errors.New("save: nil record")
	}
	snap, err := encodeSnapshot(rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var activeSeq int
	err = tx.QueryRowContext(ctx,
		`SELECT active_seq FROM sessions WHERE session_id = ?`, rec.ID,
	).Scan(&activeSeq)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := insertSession(ctx, tx, rec, now); err != nil {
			return err
		}
		if err := insertVersion(ctx, tx, rec, snap, now); err != nil {
			return err
		}

	case err != nil:
		return fmt.Errorf("read active seq: %w", err)

	case rec.Snapshot.Seq < activeSeq:
		return fmt.Errorf("session %s at seq %d behind active %d: %w",
			rec.ID, rec.Snapshot.Seq, activeSeq, ErrVersionConflict)

	case rec.Snapshot.Seq == activeSeq:
		// Metadata refresh is allowed only when the snapshot itself is
		// untouched. A different snapshot at the same seq means another
		// writer committed this step first.
		var stored string
		err := tx.QueryRowContext(ctx,
			`SELECT snapshot FROM snapshot_versions WHERE session_id = ? AND seq = ?`,
			rec.ID, rec.Snapshot.Seq,
		).Scan(&stored)
		if err != nil {
			return fmt.Errorf("read active version: %w", err)
		}
		if stored != snap {
			return fmt.Errorf("session %s seq %d already committed by another writer: %w",
				rec.ID, rec.Snapshot.Seq, ErrVersionConflict)
		}
		if err := updateSession(ctx, tx, rec, now); err != nil {
			return err
		}

	default:
		if err := insertVersion(ctx, tx, rec, snap, now); err != nil {
			return err
		}
		if err := updateSession(ctx, tx, rec, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertSession(ctx context.Context, tx *sql.Tx, rec *Record, now string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, status, active_seq, created_at, started_at, completed_at, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Status), rec.Snapshot.Seq,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		nullTime(rec.CompletedAt), nullTime(rec.ExpiresAt), now,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func updateSession(ctx context.Context, tx *sql.Tx, rec *Record, now string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE sessions SET status = ?, active_seq = ?, completed_at = ?, expires_at = ?, updated_at = ?
		 WHERE session_id = ?`,
		string(rec.Status), rec.Snapshot.Seq,
		nullTime(rec.CompletedAt), nullTime(rec.ExpiresAt), now, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, rec *Record, snap, now string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_versions (session_id, seq, phase, confidence, snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Snapshot.Seq, string(rec.Snapshot.Phase),
		rec.Snapshot.Confidence, snap, now,
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// #endregion save

// #region load
// Load reads the session row joined with its active snapshot version.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*Record, error) {
	var (
		rec        Record
		statusStr  string
		createdStr string
		startedStr string
		completed  sql.NullString
		expires    sql.NullString
		snapJSON   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT s.session_id, s.status, s.created_at, s.started_at, s.completed_at, s.expires_at, v.snapshot
		 FROM sessions s
		 JOIN snapshot_versions v ON v.session_id = s.session_id AND v.seq = s.active_seq
		 WHERE s.session_id = ?`, sessionID,
	).Scan(&rec.ID, &statusStr, &createdStr, &startedStr, &completed, &expires, &snapJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	rec.Status = Status(statusStr)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	if completed.Valid {
		rec.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed.String)
	}
	if expires.Valid {
		rec.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expires.String)
	}
	if rec.Snapshot, err = decodeSnapshot(snapJSON); err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return &rec, nil
}

// #endregion load

// #region delete
// Delete removes the session with its version trail and probe stats.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM probe_stats WHERE session_id = ?`,
		`DELETE FROM snapshot_versions WHERE session_id = ?`,
		`DELETE FROM sessions WHERE session_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, sessionID); err != nil {
			return fmt.Errorf("delete session %s: %w", sessionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// #endregion delete

// #region list
// List returns all session IDs, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions ORDER BY created_at, session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// #endregion list

// #region versions
// VersionInfo summarizes one accepted step without decoding the full
// snapshot.
type VersionInfo struct {
	Seq        int       `json:"seq"`
	Phase      string    `json:"phase"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Versions returns the append-only step trail for a session.
func (s *SQLiteStore) Versions(ctx context.Context, sessionID string) ([]VersionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, phase, confidence, created_at
		 FROM snapshot_versions WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var infos []VersionInfo
	for rows.Next() {
		var v VersionInfo
		var createdStr string
		if err := rows.Scan(&v.Seq, &v.Phase, &v.Confidence, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		infos = append(infos, v)
	}
	return infos, rows.Err()
}

// #endregion versions

// #region helpers
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeSnapshot(rec *Record) (string, error) {
	data, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(data), nil
}

func decodeSnapshot(data string) (*orchestrator.SessionSnapshot, error) {
	var snap orchestrator.SessionSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// #endregion helpers
