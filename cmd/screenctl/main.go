// Command screenctl runs a screening session in the terminal: the six
// fixed screens, then adaptive probes until the walk finalizes, with
// every accepted step persisted to SQLite and the profile printed at
// the end.
package main

// #region imports
import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psycheos/screening-engine/internal/audit"
	"github.com/psycheos/screening-engine/internal/bank"
	"github.com/psycheos/screening-engine/internal/config"
	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/policy"
	"github.com/psycheos/screening-engine/internal/report"
	"github.com/psycheos/screening-engine/internal/session"
)

// #endregion

// #region main

func main() {
	configPath := flag.String("config", "", "config file (default screening.yaml when present)")
	dbPath := flag.String("db", "", "sqlite database path (overrides config)")
	sessionID := flag.String("session", "", "session id to resume or create (empty: new session)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	store, err := session.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	mgr := session.NewManager(store)

	b, err := bank.Load()
	if err != nil {
		log.Fatalf("failed to load question bank: %v", err)
	}

	ctx := context.Background()
	stop, route, construct := buildPolicies(ctx, cfg, b)
	orch := orchestrator.New(b, stop, route, construct, orchestrator.DefaultConfig())

	rec, pending, err := openSession(ctx, mgr, orch, *sessionID, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("open session: %v", err)
	}

	fmt.Println("Screening session ready.")
	fmt.Printf("  DB: %s | Session: %s\n", cfg.DBPath, rec.ID)
	fmt.Println("Answer with option numbers, or 'quit' to pause and exit.")
	fmt.Println()

	runSession(ctx, store, mgr, orch, b, rec, pending)
}

// openSession resumes a stored session or starts a fresh one. The
// returned question is the probe to re-display on resume, nil when the
// next prompt is a fixed screen or the walk is already finalized.
func openSession(ctx context.Context, mgr *session.Manager, orch *orchestrator.Orchestrator, id string, ttl time.Duration) (*session.Record, *orchestrator.Question, error) {
	if id != "" {
		rec, err := mgr.Load(ctx, id)
		switch {
		case err == nil:
			fmt.Printf("Resuming session %s (%s, %d responses)\n", rec.ID, rec.Snapshot.Phase, len(rec.Snapshot.History))
			return rec, nil, nil
		case !errors.Is(err, session.ErrSessionNotFound):
			return nil, nil, err
		}
	}

	step, err := orch.Start(id)
	if err != nil {
		return nil, nil, err
	}
	rec := session.NewRecord(step.Snapshot, ttl)
	if err := mgr.Save(ctx, rec); err != nil {
		return nil, nil, err
	}
	return rec, step.Question, nil
}

func runSession(ctx context.Context, store *session.SQLiteStore, mgr *session.Manager, orch *orchestrator.Orchestrator, b *bank.Bank, rec *session.Record, pending *orchestrator.Question) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		snap := rec.Snapshot
		switch snap.Phase {
		case orchestrator.Phase1:
			screen, err := b.Phase1Screen(snap.ScreenIndex)
			if err != nil {
				log.Fatalf("screen %d: %v", snap.ScreenIndex, err)
			}
			printScreen(screen, snap.ScreenIndex+1, b.ScreenCount())
			selected, quit := readSelection(scanner, len(screen.Options), true)
			if quit {
				fmt.Printf("Paused. Resume with --session %s\n", rec.ID)
				return
			}
			resps, err := bank.ResponsesFromSelection(screen, selected, 1)
			if err != nil {
				fmt.Printf("  %v\n", err)
				continue
			}
			step, err := orch.SubmitScreenResponses(ctx, snap, resps)
			if err != nil {
				logReject(store, snap, resps, err)
				fmt.Printf("  rejected: %v\n", err)
				continue
			}
			commitStep(ctx, store, mgr, rec, step)
			pending = step.Question

		case orchestrator.Phase2, orchestrator.Phase3:
			q := pending
			if q == nil {
				q = resumeQuestion(b, snap)
			}
			if q == nil {
				log.Fatalf("no probe to resume for session %s", rec.ID)
			}
			printQuestion(q, snap)
			selected, quit := readSelection(scanner, len(q.Options), false)
			if quit {
				fmt.Printf("Paused. Resume with --session %s\n", rec.ID)
				return
			}
			resp, err := q.Response(selected[0])
			if err != nil {
				fmt.Printf("  %v\n", err)
				continue
			}
			before := snap.Confidence
			step, err := orch.SubmitResponse(ctx, snap, resp)
			if err != nil {
				logReject(store, snap, []interface{}{resp}, err)
				fmt.Printf("  rejected: %v\n", err)
				continue
			}
			logProbe(ctx, store, snap.Phase, q.Node, before, step)
			commitStep(ctx, store, mgr, rec, step)
			pending = step.Question

		case orchestrator.PhaseReport:
			finishSession(ctx, mgr, orch, rec)
			return

		default:
			fmt.Println(report.RenderText(report.Build(snap)))
			return
		}
	}
}

// commitStep persists the advanced session and audits the decision.
func commitStep(ctx context.Context, store *session.SQLiteStore, mgr *session.Manager, rec *session.Record, step *orchestrator.StepResult) {
	rec.Update(step.Snapshot)
	if err := mgr.Save(ctx, rec); err != nil {
		log.Fatalf("save session: %v", err)
	}
	err := audit.LogDecision(store.DB(), audit.Entry{
		SessionID: rec.ID,
		Seq:       step.Snapshot.Seq,
		Phase:     string(step.Snapshot.Phase),
		Decision:  audit.DecisionCommit,
		Reason:    step.Reason,
	})
	if err != nil {
		log.Printf("audit error: %v", err)
	}
	fmt.Printf("[seq %d] %s confidence=%.3f\n\n", step.Snapshot.Seq, step.Snapshot.Phase, step.Snapshot.Confidence)
}

func finishSession(ctx context.Context, mgr *session.Manager, orch *orchestrator.Orchestrator, rec *session.Record) {
	next, err := orch.Complete(rec.Snapshot)
	if err != nil {
		log.Fatalf("complete session: %v", err)
	}
	rec.Update(next)
	if err := mgr.Save(ctx, rec); err != nil {
		log.Fatalf("save session: %v", err)
	}
	fmt.Println(report.RenderText(report.Build(next)))
	fmt.Printf("Session %s completed.\n", rec.ID)
}

// resumeQuestion rebuilds the probe a resumed session was waiting on
// from the reference template of the last routed node.
func resumeQuestion(b *bank.Bank, snap *orchestrator.SessionSnapshot) *orchestrator.Question {
	if len(snap.ProbedNodes) == 0 {
		return nil
	}
	node := snap.ProbedNodes[len(snap.ProbedNodes)-1]
	tmpl, err := b.Phase2Template(node)
	if err != nil {
		return nil
	}
	q := orchestrator.QuestionFromTemplate(tmpl)
	q.ID = uuid.New().String()
	q.Phase = snap.Phase.Number()
	return q
}

// #endregion

// #region policies

// buildPolicies wires the adaptive policy set: deterministic rules by
// default, model-backed when a key is configured.
func buildPolicies(ctx context.Context, cfg config.Config, b *bank.Bank) (orchestrator.StopPolicy, orchestrator.RoutingPolicy, orchestrator.ConstructionPolicy) {
	if cfg.GenAIKey == "" {
		return policy.NewDeltaStop(), policy.NewRuleRouter(), policy.BankConstructor{Bank: b}
	}
	specs := policy.DefaultSpecs()
	if cfg.RouterModel != "" {
		for _, role := range []policy.Role{policy.RoleStop, policy.RoleRouter} {
			spec := specs[role]
			spec.Model = cfg.RouterModel
			specs[role] = spec
		}
	}
	if cfg.ConstructorModel != "" {
		spec := specs[policy.RoleConstruct]
		spec.Model = cfg.ConstructorModel
		specs[policy.RoleConstruct] = spec
	}
	client, err := policy.NewClient(ctx, cfg.GenAIKey, specs)
	if err != nil {
		log.Printf("model policies unavailable (%v), using deterministic set", err)
		return policy.NewDeltaStop(), policy.NewRuleRouter(), policy.BankConstructor{Bank: b}
	}
	return policy.ModelStop{Client: client}, policy.ModelRouter{Client: client}, policy.ModelConstructor{Client: client}
}

// #endregion

// #region terminal

func printScreen(s bank.Screen, number, total int) {
	fmt.Printf("[SCREEN %d/%d] %s\n", number, total, s.Title)
	fmt.Println(s.Prompt)
	for i, opt := range s.Options {
		fmt.Printf("  %d. %s\n", i+1, opt.Text)
	}
	fmt.Println("Select all that apply, comma separated (e.g. 1,3):")
}

func printQuestion(q *orchestrator.Question, snap *orchestrator.SessionSnapshot) {
	label := "PROBE"
	if snap.Phase == orchestrator.Phase3 {
		label = "DEEP DIVE"
	}
	fmt.Printf("[%s] %s\n", label, q.Node)
	fmt.Println(q.Text)
	for i, opt := range q.Options {
		fmt.Printf("  %d. %s\n", i+1, opt.Text)
	}
	fmt.Println("Choose one:")
}

// readSelection parses a numbered answer line into zero-based option
// indexes. Returns quit=true on 'quit', 'exit', or closed stdin.
func readSelection(scanner *bufio.Scanner, options int, multi bool) ([]int, bool) {
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return nil, true
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil, true
		}

		parts := []string{line}
		if multi {
			parts = strings.Split(line, ",")
		}
		selected := make([]int, 0, len(parts))
		ok := true
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 1 || n > options {
				fmt.Printf("  enter numbers between 1 and %d\n", options)
				ok = false
				break
			}
			selected = append(selected, n-1)
		}
		if ok {
			return selected, false
		}
	}
}

// #endregion

// #region recording

func logReject(store *session.SQLiteStore, snap *orchestrator.SessionSnapshot, resps interface{}, cause error) {
	payload, _ := json.Marshal(resps)
	err := audit.LogDecision(store.DB(), audit.Entry{
		SessionID:    snap.SessionID,
		Seq:          snap.Seq,
		Phase:        string(snap.Phase),
		Decision:     audit.DecisionReject,
		Reason:       cause.Error(),
		ResponseJSON: string(payload),
	})
	if err != nil {
		log.Printf("audit error: %v", err)
	}
}

func logProbe(ctx context.Context, store *session.SQLiteStore, phase orchestrator.Phase, node string, before float64, step *orchestrator.StepResult) {
	err := store.RecordProbe(ctx, session.ProbeStat{
		SessionID:        step.Snapshot.SessionID,
		Seq:              step.Snapshot.Seq,
		Node:             node,
		Phase:            phase.Number(),
		ConfidenceBefore: before,
		ConfidenceAfter:  step.Snapshot.Confidence,
	})
	if err != nil {
		log.Printf("probe stat error: %v", err)
	}
}

// #endregion
