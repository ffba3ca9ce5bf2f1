package session

// #region imports
import (
	"context"
	"fmt"
	"time"
)

// #endregion

// #region probe-stat
// ProbeStat records what one adaptive question did to session
// confidence: the value when the probe was asked against the value
// after its answer was folded in.
type ProbeStat struct {
	SessionID        string    `json:"session_id"`
	Seq              int       `json:"seq"`
	Node             string    `json:"node"`
	Phase            int       `json:"phase"`
	ConfidenceBefore float64   `json:"confidence_before"`
	ConfidenceAfter  float64   `json:"confidence_after"`
	CreatedAt        time.Time `json:"created_at"`
}

// Delta is the confidence movement attributed to the probe.
func (p ProbeStat) Delta() float64 {
	return p.ConfidenceAfter - p.ConfidenceBefore
}

// #endregion probe-stat

// #region record-probe
// RecordProbe appends one probe measurement.
func (s *SQLiteStore) RecordProbe(ctx context.Context, stat ProbeStat) error {
	if stat.CreatedAt.IsZero() {
		stat.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO probe_stats (session_id, seq, node, phase, confidence_before, confidence_after, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stat.SessionID, stat.Seq, stat.Node, stat.Phase,
		stat.ConfidenceBefore, stat.ConfidenceAfter,
		stat.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record probe: %w", err)
	}
	return nil
}

// #endregion record-probe

// #region probe-stats
// ProbeStats returns the probe trail for one session in step order.
func (s *SQLiteStore) ProbeStats(ctx context.Context, sessionID string) ([]ProbeStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, seq, node, phase, confidence_before, confidence_after, created_at
		 FROM probe_stats WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list probes: %w", err)
	}
	defer rows.Close()

	var stats []ProbeStat
	for rows.Next() {
		var p ProbeStat
		var createdStr string
		if err := rows.Scan(&p.SessionID, &p.Seq, &p.Node, &p.Phase,
			&p.ConfidenceBefore, &p.ConfidenceAfter, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		stats = append(stats, p)
	}
	return stats, rows.Err()
}

// #endregion probe-stats

// #region probe-summary
// NodeProbeSummary aggregates probe effectiveness per node across all
// sessions.
type NodeProbeSummary struct {
	Node      string  `json:"node"`
	Probes    int     `json:"probes"`
	MeanDelta float64 `json:"mean_delta"`
}

// ProbeSummary ranks nodes by how often they were probed, with the
// mean confidence movement each one produced.
func (s *SQLiteStore) ProbeSummary(ctx context.Context) ([]NodeProbeSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node, COUNT(*), AVG(confidence_after - confidence_before)
		 FROM probe_stats GROUP BY node ORDER BY COUNT(*) DESC, node`)
	if err != nil {
		return nil, fmt.Errorf("probe summary: %w", err)
	}
	defer rows.Close()

	var out []NodeProbeSummary
	for rows.Next() {
		var n NodeProbeSummary
		if err := rows.Scan(&n.Node, &n.Probes, &n.MeanDelta); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// #endregion probe-summary
