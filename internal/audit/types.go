package audit

import "time"

// #region entry
// Decision values recorded per submit attempt.
const (
	DecisionCommit = "commit"
	DecisionReject = "reject"
)

// Entry is a single row in the audit_log table.
type Entry struct {
	SessionID    string    `json:"session_id"`
	Seq          int       `json:"seq"`
	Phase        string    `json:"phase"`
	Decision     string    `json:"decision"` // "commit" | "reject"
	Reason       string    `json:"reason,omitempty"`
	ResponseJSON string    `json:"response_json,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// #endregion entry
