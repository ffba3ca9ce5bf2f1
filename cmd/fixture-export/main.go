// Command fixture-export rebuilds a replay fixture from a stored
// session: the recorded responses become scripted turns and the stored
// vectors become the terminal anchors, so the walk can be replayed
// against future builds.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/psycheos/screening-engine/internal/replay"
	"github.com/psycheos/screening-engine/internal/session"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to screening.db")
	sessionID := flag.String("session", "", "session id to export")
	outPath := flag.String("out", "", "output fixture JSON path (empty: stdout)")
	description := flag.String("description", "", "fixture description (default derived from session)")
	flag.Parse()

	if *dbPath == "" || *sessionID == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/screening.db --session <id> [--out fixture.json] [--description text]")
		os.Exit(2)
	}

	if err := run(*dbPath, *sessionID, *outPath, *description); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, sessionID, outPath, description string) error {
	store, err := session.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	rec, err := store.Load(context.Background(), sessionID)
	if err != nil {
		return err
	}
	if len(rec.Snapshot.History) == 0 {
		return fmt.Errorf("session %s has no responses to export", sessionID)
	}

	if description == "" {
		description = fmt.Sprintf("Session export: %d responses, finished in %s",
			len(rec.Snapshot.History), rec.Snapshot.Phase)
	}
	fixture := replay.FromSession(rec.Snapshot, description)

	return writeFixture(fixture, outPath)
}

func writeFixture(fixture *replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	if outPath == "" {
		fmt.Println(string(data))
		return nil
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d bytes, %d turns)\n", outPath, len(data), len(fixture.Turns))
	return nil
}

// #endregion export
