package audit

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes an audit entry to the audit_log table. The table
// is created by the session store's migrations; the runner layer calls
// this after every submit, whether the step was accepted or rejected.
func LogDecision(db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO audit_log (session_id, seq, phase, decision, reason, response_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.Seq,
		entry.Phase,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.ResponseJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region trail
// Trail returns the audit entries for one session in submit order.
// A limit of 0 returns the full trail.
func Trail(db *sql.DB, sessionID string, limit int) ([]Entry, error) {
	q := `SELECT session_id, seq, phase, decision, reason, response_json, created_at
	      FROM audit_log WHERE session_id = ? ORDER BY id`
	args := []interface{}{sessionID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("read trail: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var reason, respJSON sql.NullString
		var createdStr string
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.Phase, &e.Decision,
			&reason, &respJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		if respJSON.Valid {
			e.ResponseJSON = respJSON.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion trail

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
