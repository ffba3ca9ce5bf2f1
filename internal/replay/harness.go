package replay

// #region imports
import (
	"context"
	"fmt"
	"math"

	"github.com/psycheos/screening-engine/internal/bank"
	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/policy"
	"github.com/psycheos/screening-engine/internal/schema"
)

// #endregion

// #region types

// Tolerance is the absolute error allowed on replayed float anchors.
const Tolerance = 1e-6

// Divergence is one mismatch between the fixture and the replayed run.
// Turn 0 marks a terminal-anchor mismatch.
type Divergence struct {
	Turn  int    `json:"turn"`
	Field string `json:"field"`
	Want  string `json:"want"`
	Got   string `json:"got"`
}

// Result is the outcome of replaying one fixture. Turns counts the
// scripted turns actually replayed; a rejected submission stops the
// run early.
type Result struct {
	Turns       int
	Divergences []Divergence
	Final       *orchestrator.SessionSnapshot
}

// OK reports whether the replayed run matched the fixture everywhere.
func (r *Result) OK() bool {
	return len(r.Divergences) == 0
}

// #endregion types

// #region harness

// Harness replays fixtures through a live orchestrator wired with the
// deterministic policy set: the rule router, the bank constructor, and
// the stop policy the fixture pins.
type Harness struct {
	bank *bank.Bank
}

// NewHarness builds a harness over the given question bank.
func NewHarness(b *bank.Bank) *Harness {
	return &Harness{bank: b}
}

// Run drives every scripted turn and compares the observable outcome
// against the fixture, then checks the terminal anchors.
func (h *Harness) Run(ctx context.Context, f *Fixture) (*Result, error) {
	stop, err := stopPolicy(f.Stop)
	if err != nil {
		return nil, err
	}

	o := orchestrator.New(h.bank, stop, policy.NewRuleRouter(),
		policy.BankConstructor{Bank: h.bank}, f.Config.ToConfig())

	sessionID := f.SessionID
	if sessionID == "" {
		sessionID = "replay-session"
	}
	step, err := o.Start(sessionID)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	result := &Result{}
	snap := step.Snapshot

	for i := range f.Turns {
		turn := &f.Turns[i]
		n := i + 1
		result.Turns = n

		step, err = h.submit(ctx, o, snap, turn)
		if err != nil {
			result.Divergences = append(result.Divergences, Divergence{
				Turn: n, Field: "submit", Want: "accepted", Got: err.Error(),
			})
			break
		}
		snap = step.Snapshot

		h.compareTurn(result, n, turn.Expected, step)
	}

	result.Final = snap
	if len(result.Divergences) == 0 {
		h.compareFinal(result, f.Final, snap)
	}
	return result, nil
}

func (h *Harness) submit(ctx context.Context, o *orchestrator.Orchestrator, snap *orchestrator.SessionSnapshot, turn *FixtureTurn) (*orchestrator.StepResult, error) {
	switch len(turn.Responses) {
	case 0:
		return nil, fmt.Errorf("turn %d has no responses", turn.Turn)
	case 1:
		return o.SubmitResponse(ctx, snap, turn.Responses[0].ToResponse())
	default:
		batch := make([]schema.WeightedResponse, len(turn.Responses))
		for i := range turn.Responses {
			batch[i] = turn.Responses[i].ToResponse()
		}
		return o.SubmitScreenResponses(ctx, snap, batch)
	}
}

// compareTurn records divergences between one step and its script. A
// zero-valued expectation marks an unscripted turn (fixtures exported
// from a stored session carry only responses and terminal anchors).
func (h *Harness) compareTurn(result *Result, turn int, want FixtureExpect, step *orchestrator.StepResult) {
	if want == (FixtureExpect{}) {
		return
	}
	if got := string(step.Snapshot.Phase); want.Phase != "" && got != want.Phase {
		result.Divergences = append(result.Divergences, Divergence{
			Turn: turn, Field: "phase", Want: want.Phase, Got: got,
		})
	}
	if got := string(step.Action); want.Action != "" && got != want.Action {
		result.Divergences = append(result.Divergences, Divergence{
			Turn: turn, Field: "action", Want: want.Action, Got: got,
		})
	}
	if got := step.Snapshot.Confidence; math.Abs(got-want.Confidence) > Tolerance {
		result.Divergences = append(result.Divergences, Divergence{
			Turn: turn, Field: "confidence",
			Want: fmt.Sprintf("%.9f", want.Confidence),
			Got:  fmt.Sprintf("%.9f", got),
		})
	}
	probe := ""
	if step.Question != nil {
		probe = step.Question.Node
	}
	if probe != want.ProbeNode {
		result.Divergences = append(result.Divergences, Divergence{
			Turn: turn, Field: "probe_node", Want: want.ProbeNode, Got: probe,
		})
	}
}

// compareFinal checks the terminal anchors against the fixture.
func (h *Harness) compareFinal(result *Result, want FixtureFinal, snap *orchestrator.SessionSnapshot) {
	diverge := func(field, w, g string) {
		result.Divergences = append(result.Divergences, Divergence{
			Turn: 0, Field: field, Want: w, Got: g,
		})
	}
	closeTo := func(a, b float64) bool { return math.Abs(a-b) <= Tolerance }

	for _, a := range schema.Axes() {
		if w, ok := want.Axes[string(a)]; ok && !closeTo(snap.Axes[a], w) {
			diverge("axis "+string(a), fmt.Sprintf("%.9f", w), fmt.Sprintf("%.9f", snap.Axes[a]))
		}
	}
	for _, l := range schema.Layers() {
		if w, ok := want.Layers[string(l)]; ok && !closeTo(snap.Layers[l], w) {
			diverge("layer "+string(l), fmt.Sprintf("%.9f", w), fmt.Sprintf("%.9f", snap.Layers[l]))
		}
	}
	if !closeTo(snap.Confidence, want.Confidence) {
		diverge("confidence", fmt.Sprintf("%.9f", want.Confidence), fmt.Sprintf("%.9f", snap.Confidence))
	}
	if !closeTo(snap.Rigidity.Total, want.RigidityTotal) {
		diverge("rigidity_total", fmt.Sprintf("%.9f", want.RigidityTotal), fmt.Sprintf("%.9f", snap.Rigidity.Total))
	}
	if want.AmbiguityZones != nil && !equalStrings(snap.AmbiguityZones, want.AmbiguityZones) {
		diverge("ambiguity_zones", fmt.Sprint(want.AmbiguityZones), fmt.Sprint(snap.AmbiguityZones))
	}
	if want.DominantCells != nil && !equalStrings(snap.DominantCells, want.DominantCells) {
		diverge("dominant_cells", fmt.Sprint(want.DominantCells), fmt.Sprint(snap.DominantCells))
	}
	if want.ProbedNodes != nil && !equalStrings(snap.ProbedNodes, want.ProbedNodes) {
		diverge("probed_nodes", fmt.Sprint(want.ProbedNodes), fmt.Sprint(snap.ProbedNodes))
	}
}

// #endregion harness

// #region helpers

func stopPolicy(name string) (orchestrator.StopPolicy, error) {
	switch name {
	case "", "never":
		return policy.NeverStop{}, nil
	case "delta":
		return policy.NewDeltaStop(), nil
	}
	return nil, fmt.Errorf("unknown stop policy %q", name)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// #endregion helpers
