// Command inspect reads a screening database and renders what the
// engine recorded: stored sessions, the per-step version trail, probe
// effectiveness, and the audit log.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/psycheos/screening-engine/internal/audit"
	"github.com/psycheos/screening-engine/internal/session"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to screening.db")
	sessionID := flag.String("session", "", "show single session detail")
	probes := flag.Bool("probes", false, "show probe effectiveness across all sessions")
	limit := flag.Int("limit", 20, "max audit entries in detail mode")
	jsonOut := flag.Bool("json", false, "output as JSON instead of tables")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/screening.db [--session id] [--probes] [--limit N] [--json]")
		os.Exit(2)
	}

	store, err := session.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	switch {
	case *probes:
		err = runProbeMode(ctx, store, *jsonOut)
	case *sessionID != "":
		err = runDetailMode(ctx, store, *sessionID, *limit, *jsonOut)
	default:
		err = runListMode(ctx, store, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	SessionID  string  `json:"session_id"`
	Status     string  `json:"status"`
	Phase      string  `json:"phase"`
	Seq        int     `json:"seq"`
	Confidence float64 `json:"confidence"`
	Responses  int     `json:"responses"`
	UpdatedAt  string  `json:"updated_at"`
}

func runListMode(ctx context.Context, store *session.SQLiteStore, jsonOut bool) error {
	ids, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found")
		return nil
	}

	rows := make([]listRow, 0, len(ids))
	for _, id := range ids {
		rec, err := store.Load(ctx, id)
		if err != nil {
			return err
		}
		rows = append(rows, listRow{
			SessionID:  rec.ID,
			Status:     string(rec.Status),
			Phase:      string(rec.Snapshot.Phase),
			Seq:        rec.Snapshot.Seq,
			Confidence: rec.Snapshot.Confidence,
			Responses:  len(rec.Snapshot.History),
			UpdatedAt:  rec.Snapshot.UpdatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %-12s  %-11s  %4s  %6s  %5s  %s\n",
		"Session", "Status", "Phase", "Seq", "Conf", "Resps", "Updated")
	fmt.Printf("%-12s+-%-12s+-%-11s+-%4s+-%6s+-%5s+-%s\n",
		"------------", "------------", "-----------", "----", "------", "-----", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-12s  %-12s  %-11s  %4d  %6.3f  %5d  %s\n",
			shortID(r.SessionID), r.Status, r.Phase, r.Seq, r.Confidence, r.Responses, r.UpdatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Record   *session.Record       `json:"record"`
	Versions []session.VersionInfo `json:"versions"`
	Probes   []session.ProbeStat   `json:"probes,omitempty"`
	Audit    []audit.Entry         `json:"audit,omitempty"`
}

func runDetailMode(ctx context.Context, store *session.SQLiteStore, sessionID string, limit int, jsonOut bool) error {
	rec, err := store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	versions, err := store.Versions(ctx, sessionID)
	if err != nil {
		return err
	}
	probes, err := store.ProbeStats(ctx, sessionID)
	if err != nil {
		return err
	}
	trail, err := audit.Trail(store.DB(), sessionID, limit)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(detailOutput{Record: rec, Versions: versions, Probes: probes, Audit: trail})
	}

	snap := rec.Snapshot
	fmt.Printf("Session:    %s\n", rec.ID)
	fmt.Printf("Status:     %s\n", rec.Status)
	fmt.Printf("Phase:      %s\n", snap.Phase)
	fmt.Printf("Seq:        %d\n", snap.Seq)
	fmt.Printf("Confidence: %.3f\n", snap.Confidence)
	fmt.Printf("Responses:  %d\n", len(snap.History))
	if len(snap.ProbedNodes) > 0 {
		fmt.Printf("Probed:     %v\n", snap.ProbedNodes)
	}

	fmt.Printf("\nVersion trail:\n")
	fmt.Printf("  %4s  %-11s  %6s  %s\n", "Seq", "Phase", "Conf", "Time")
	for _, v := range versions {
		fmt.Printf("  %4d  %-11s  %6.3f  %s\n",
			v.Seq, v.Phase, v.Confidence, v.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}

	if len(probes) > 0 {
		fmt.Printf("\nProbes:\n")
		fmt.Printf("  %4s  %-8s  %5s  %8s\n", "Seq", "Node", "Phase", "Delta")
		for _, p := range probes {
			fmt.Printf("  %4d  %-8s  %5d  %+8.4f\n", p.Seq, p.Node, p.Phase, p.Delta())
		}
	}

	if len(trail) > 0 {
		fmt.Printf("\nAudit trail (last %d):\n", limit)
		for _, e := range trail {
			fmt.Printf("  seq %-3d %-7s %-11s %s\n", e.Seq, e.Decision, e.Phase, e.Reason)
		}
	}
	return nil
}

// #endregion detail-mode

// #region probe-mode

func runProbeMode(ctx context.Context, store *session.SQLiteStore, jsonOut bool) error {
	rows, err := store.ProbeSummary(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no probes recorded")
		return nil
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-8s  %6s  %10s\n", "Node", "Probes", "Mean Delta")
	fmt.Printf("%-8s+-%6s+-%10s\n", "--------", "------", "----------")
	for _, r := range rows {
		fmt.Printf("%-8s  %6d  %+10.4f\n", r.Node, r.Probes, r.MeanDelta)
	}
	return nil
}

// #endregion probe-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// #endregion output
