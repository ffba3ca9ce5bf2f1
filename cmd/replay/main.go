// Command replay re-runs a recorded screening walk through the live
// engine and compares every turn against the recording. With no flags
// it replays the embedded calibration walk, which is the fastest way
// to check a build for scoring or routing drift.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/psycheos/screening-engine/internal/bank"
	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/replay"
	"github.com/psycheos/screening-engine/internal/session"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	dbPath := flag.String("db", "", "path to screening.db (session mode, with --session)")
	sessionID := flag.String("session", "", "session id to rebuild and verify (session mode)")
	flag.Parse()

	if *fixturePath != "" && *dbPath != "" {
		fmt.Fprintln(os.Stderr, "usage: replay                      (embedded calibration walk)")
		fmt.Fprintln(os.Stderr, "       replay --fixture walk.json")
		fmt.Fprintln(os.Stderr, "       replay --db screening.db --session <id>")
		os.Exit(2)
	}
	if (*dbPath == "") != (*sessionID == "") {
		fmt.Fprintln(os.Stderr, "session mode needs both --db and --session")
		os.Exit(2)
	}

	f, err := loadFixture(*fixturePath, *dbPath, *sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		os.Exit(2)
	}

	b, err := bank.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load question bank: %v\n", err)
		os.Exit(2)
	}

	res, err := replay.NewHarness(b).Run(context.Background(), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(2)
	}

	os.Exit(printComparison(f, res))
}

// loadFixture resolves the three input modes. Session mode rebuilds a
// fixture from a stored session so the replay checks that the current
// engine still lands on the recorded anchors.
func loadFixture(fixturePath, dbPath, sessionID string) (*replay.Fixture, error) {
	switch {
	case fixturePath != "":
		return replay.LoadFixture(fixturePath)
	case dbPath != "":
		store, err := session.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		rec, err := store.Load(context.Background(), sessionID)
		if err != nil {
			return nil, err
		}
		return replay.FromSession(rec.Snapshot, fmt.Sprintf("rebuilt from session %s", sessionID)), nil
	default:
		return replay.Calibration()
	}
}

// #endregion main

// #region output

// printComparison renders one row per replayed turn, extra rows for
// terminal anchor mismatches, and returns the exit code.
func printComparison(f *replay.Fixture, res *replay.Result) int {
	fmt.Printf("%-8s| %-26s| %-26s| %s\n", "Turn", "Expected", "Replayed", "Match")
	fmt.Printf("%-8s+%-27s+%-27s+%s\n",
		"--------", "---------------------------", "---------------------------", "------")

	byTurn := make(map[int][]replay.Divergence)
	for _, d := range res.Divergences {
		byTurn[d.Turn] = append(byTurn[d.Turn], d)
	}

	matches := 0
	for i := 0; i < res.Turns; i++ {
		n := i + 1
		label := fmt.Sprintf("t%d", n)
		divs := byTurn[n]
		if len(divs) == 0 {
			want := expectSummary(f, i)
			fmt.Printf("%-8s| %-26s| %-26s| %s\n", label, want, want, "OK")
			matches++
			continue
		}
		for j, d := range divs {
			if j > 0 {
				label = ""
			}
			fmt.Printf("%-8s| %-26s| %-26s| %s\n", label, d.Field+"="+d.Want, d.Field+"="+d.Got, "DIFF")
		}
	}

	for j, d := range byTurn[0] {
		label := "final"
		if j > 0 {
			label = ""
		}
		fmt.Printf("%-8s| %-26s| %-26s| %s\n", label, d.Field+"="+d.Want, d.Field+"="+d.Got, "DIFF")
	}

	diverge := res.Turns - matches
	fmt.Printf("\nSummary: %d turns, %d match, %d diverge\n", res.Turns, matches, diverge)
	if len(byTurn[0]) > 0 {
		fmt.Printf("Terminal anchors: %d field(s) diverged\n", len(byTurn[0]))
	}

	if !res.OK() {
		return 1
	}
	return 0
}

// expectSummary renders the scripted expectation for a turn; exported
// fixtures carry none, so those rows show the recorded marker.
func expectSummary(f *replay.Fixture, i int) string {
	if i >= len(f.Turns) {
		return "(recorded)"
	}
	e := f.Turns[i].Expected
	if e == (replay.FixtureExpect{}) {
		return "(recorded)"
	}
	s := fmt.Sprintf("%s/%s %.3f", phaseLabel(e.Phase), e.Action, e.Confidence)
	if e.ProbeNode != "" {
		s += " " + e.ProbeNode
	}
	return s
}

func phaseLabel(p string) string {
	if p == "" {
		return string(orchestrator.PhaseNotStarted)
	}
	return p
}

// #endregion output
