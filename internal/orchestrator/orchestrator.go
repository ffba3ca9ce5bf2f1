package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"

	"github.com/psycheos/screening-engine/internal/analysis"
	"github.com/psycheos/screening-engine/internal/bank"
	"github.com/psycheos/screening-engine/internal/estimate"
	"github.com/psycheos/screening-engine/internal/schema"
)

// #endregion

// #region orchestrator-struct

// Orchestrator drives a session through the three-phase walk: six fixed
// screens, a bounded probe loop over the ambiguity zones, and a bounded
// deep dive that always terminates.
type Orchestrator struct {
	bank      *bank.Bank
	stop      StopPolicy
	route     RoutingPolicy
	construct ConstructionPolicy
	cfg       Config
	analysis  analysis.Config
	estimate  estimate.Config
}

// New creates an orchestrator wired to the given bank and policies.
// Any nil policy skips its consultation and the deterministic fallback
// for that role applies directly.
func New(b *bank.Bank, stop StopPolicy, route RoutingPolicy, construct ConstructionPolicy, cfg Config) *Orchestrator {
	return &Orchestrator{
		bank:      b,
		stop:      stop,
		route:     route,
		construct: construct,
		cfg:       cfg,
		analysis:  analysis.DefaultConfig(),
		estimate:  estimate.DefaultConfig(),
	}
}

// #endregion

// #region start

// Start opens a new session and returns the first fixed screen. An
// empty sessionID gets a generated one.
func (o *Orchestrator) Start(sessionID string) (*StepResult, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	snap := NewSnapshot(sessionID)
	snap.Phase = Phase1
	screen, err := o.bank.Phase1Screen(0)
	if err != nil {
		return nil, fmt.Errorf("first screen: %w", err)
	}
	log.Printf("[ORCH] start: session=%s → phase1 screen 1/%d", sessionID, o.bank.ScreenCount())
	return &StepResult{
		Snapshot: snap,
		Action:   ActionAsk,
		Screen:   &screen,
		From:     PhaseNotStarted,
		Reason:   "session started",
	}, nil
}

// #endregion

// #region submit

// SubmitResponse feeds one answered question into the session and
// advances the walk. The input snapshot is never modified: on success
// the StepResult carries a new snapshot, on rejection the caller keeps
// the one it has.
func (o *Orchestrator) SubmitResponse(ctx context.Context, snap *SessionSnapshot, resp schema.WeightedResponse) (*StepResult, error) {
	return o.step(ctx, snap, []schema.WeightedResponse{resp})
}

// SubmitScreenResponses feeds a multi-select screen answer, one
// weighted response per chosen option, as a single atomic step. Only
// phase 1 screens are multi-select.
func (o *Orchestrator) SubmitScreenResponses(ctx context.Context, snap *SessionSnapshot, resps []schema.WeightedResponse) (*StepResult, error) {
	if snap != nil && snap.Phase != Phase1 {
		return nil, schema.NewValidationError(fmt.Sprintf("screen submissions are phase 1 only, session is in %s", snap.Phase))
	}
	if len(resps) == 0 {
		return nil, schema.NewValidationError("empty screen submission")
	}
	return o.step(ctx, snap, resps)
}

func (o *Orchestrator) step(ctx context.Context, snap *SessionSnapshot, resps []schema.WeightedResponse) (*StepResult, error) {
	// 1. Reject before touching anything: missing or terminal session,
	//    history cap, phase mismatch, malformed weights. All or nothing.
	if snap == nil {
		return nil, schema.NewValidationError("nil session snapshot")
	}
	if snap.Phase.Number() == 0 {
		return nil, schema.NewValidationError(fmt.Sprintf("session in %s state does not accept responses", snap.Phase))
	}
	if len(snap.History)+len(resps) > o.cfg.HistoryCap {
		return nil, schema.NewValidationError(fmt.Sprintf("response history cap %d exceeded", o.cfg.HistoryCap))
	}
	var reasons []string
	for i := range resps {
		if resps[i].Phase != snap.Phase.Number() {
			reasons = append(reasons, fmt.Sprintf("response %d carries phase %d, session is in phase %d", i, resps[i].Phase, snap.Phase.Number()))
		}
		if err := schema.ValidateResponse(resps[i]); err != nil {
			var verr *schema.ValidationError
			if errors.As(err, &verr) {
				reasons = append(reasons, verr.Reasons...)
			} else {
				reasons = append(reasons, err.Error())
			}
		}
	}
	if len(reasons) > 0 {
		return nil, schema.NewValidationError(reasons...)
	}

	// 2. Accept: clone, append, recompute the whole derived surface.
	next := snap.Clone()
	for i := range resps {
		next.History = append(next.History, resps[i].Clone())
	}
	next.Seq++
	next.recompute(o.analysis, o.estimate)
	if err := checkConsistency(next); err != nil {
		return nil, err
	}

	// 3. Advance the walk from the pre-step phase.
	switch snap.Phase {
	case Phase1:
		return o.advancePhase1(ctx, next)
	case Phase2:
		return o.advancePhase2(ctx, next)
	default:
		return o.advancePhase3(ctx, next)
	}
}

// #endregion

// #region phase1

func (o *Orchestrator) advancePhase1(ctx context.Context, next *SessionSnapshot) (*StepResult, error) {
	next.ScreenIndex++
	if next.ScreenIndex < o.bank.ScreenCount() {
		screen, err := o.bank.Phase1Screen(next.ScreenIndex)
		if err != nil {
			return nil, fmt.Errorf("screen %d: %w", next.ScreenIndex, err)
		}
		return &StepResult{
			Snapshot: next,
			Action:   ActionAsk,
			Screen:   &screen,
			From:     Phase1,
			Reason:   fmt.Sprintf("screen %d of %d", next.ScreenIndex+1, o.bank.ScreenCount()),
		}, nil
	}

	next.Phase1Completed = true
	if next.Confidence >= o.cfg.ConfidenceThreshold {
		return o.finalize(next, Phase1, fmt.Sprintf("confidence %.3f at or above %.2f after fixed screens", next.Confidence, o.cfg.ConfidenceThreshold)), nil
	}
	next.Phase = Phase2
	q, err := o.nextQuestion(ctx, next)
	if err != nil {
		return nil, err
	}
	next.Phase2Questions = 1
	log.Printf("[ORCH] transition: session=%s phase1 → phase2 conf=%.3f probe=%s", next.SessionID, next.Confidence, q.Node)
	return &StepResult{
		Snapshot: next,
		Action:   ActionAsk,
		Question: q,
		From:     Phase1,
		Reason:   fmt.Sprintf("confidence %.3f below %.2f, probing %s", next.Confidence, o.cfg.ConfidenceThreshold, q.Node),
	}, nil
}

// #endregion

// #region phase2

func (o *Orchestrator) advancePhase2(ctx context.Context, next *SessionSnapshot) (*StepResult, error) {
	// Exit on the question cap without consulting the policy; the cap
	// is not the policy's call.
	exit := next.Phase2Questions >= o.cfg.Phase2Cap
	reason := fmt.Sprintf("probe budget %d exhausted", o.cfg.Phase2Cap)
	if !exit {
		stop, why := o.consultStop(ctx, next)
		exit = stop
		reason = why
	}

	if !exit {
		q, err := o.nextQuestion(ctx, next)
		if err != nil {
			return nil, err
		}
		next.Phase2Questions++
		return &StepResult{
			Snapshot: next,
			Action:   ActionAsk,
			Question: q,
			From:     Phase2,
			Reason:   fmt.Sprintf("probing %s (%d of %d)", q.Node, next.Phase2Questions, o.cfg.Phase2Cap),
		}, nil
	}

	if next.Confidence >= o.cfg.ConfidenceThreshold {
		return o.finalize(next, Phase2, fmt.Sprintf("%s, confidence %.3f sufficient", reason, next.Confidence)), nil
	}
	next.Phase = Phase3
	q, err := o.nextQuestion(ctx, next)
	if err != nil {
		return nil, err
	}
	next.Phase3Questions = 1
	log.Printf("[ORCH] transition: session=%s phase2 → phase3 conf=%.3f probe=%s", next.SessionID, next.Confidence, q.Node)
	return &StepResult{
		Snapshot: next,
		Action:   ActionAsk,
		Question: q,
		From:     Phase2,
		Reason:   fmt.Sprintf("%s, confidence %.3f still below %.2f, deep dive on %s", reason, next.Confidence, o.cfg.ConfidenceThreshold, q.Node),
	}, nil
}

// consultStop asks the stop policy whether phase 2 can end. Policy
// failures mean "keep going": a stop decision must be affirmative.
func (o *Orchestrator) consultStop(ctx context.Context, next *SessionSnapshot) (bool, string) {
	if o.stop == nil {
		return false, ""
	}
	stop, err := o.stop.ShouldStop(ctx, next)
	if err != nil {
		perr := &PolicyError{Role: "stop", Err: err}
		log.Printf("[ORCH] fallback: session=%s %v → continue", next.SessionID, perr)
		return false, ""
	}
	if stop {
		return true, "stop policy satisfied"
	}
	return false, ""
}

// #endregion

// #region phase3

func (o *Orchestrator) advancePhase3(ctx context.Context, next *SessionSnapshot) (*StepResult, error) {
	if next.Confidence >= o.cfg.ConfidenceThreshold {
		return o.finalize(next, Phase3, fmt.Sprintf("confidence %.3f reached %.2f", next.Confidence, o.cfg.ConfidenceThreshold)), nil
	}
	if next.Phase3Questions >= o.cfg.Phase3Cap {
		return o.finalize(next, Phase3, fmt.Sprintf("deep dive budget %d exhausted at confidence %.3f", o.cfg.Phase3Cap, next.Confidence)), nil
	}
	q, err := o.nextQuestion(ctx, next)
	if err != nil {
		return nil, err
	}
	next.Phase3Questions++
	return &StepResult{
		Snapshot: next,
		Action:   ActionAsk,
		Question: q,
		From:     Phase3,
		Reason:   fmt.Sprintf("deep dive on %s (%d of %d)", q.Node, next.Phase3Questions, o.cfg.Phase3Cap),
	}, nil
}

// #endregion

// #region finalize

func (o *Orchestrator) finalize(next *SessionSnapshot, from Phase, reason string) *StepResult {
	next.Phase = PhaseReport
	log.Printf("[ORCH] finalize: session=%s %s → report: %s", next.SessionID, from, reason)
	return &StepResult{
		Snapshot: next,
		Action:   ActionFinalize,
		From:     from,
		Reason:   reason,
	}
}

// Complete marks a finalized session as fully closed out. Only valid
// once the walk has emitted its finalize action.
func (o *Orchestrator) Complete(snap *SessionSnapshot) (*SessionSnapshot, error) {
	if snap == nil || snap.Phase != PhaseReport {
		return nil, schema.NewValidationError("session is not awaiting report")
	}
	next := snap.Clone()
	next.Phase = PhaseCompleted
	next.Seq++
	return next, nil
}

// #endregion

// #region next-question

// nextQuestion runs the routing and construction policies with their
// documented fallbacks and returns a validated probe for the session's
// current phase. The routed node is recorded as probed.
func (o *Orchestrator) nextQuestion(ctx context.Context, next *SessionSnapshot) (*Question, error) {
	node := o.selectNode(ctx, next)
	q, err := o.constructQuestion(ctx, next, node)
	if err != nil {
		return nil, err
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	q.Node = node
	q.Phase = next.Phase.Number()
	next.ProbedNodes = append(next.ProbedNodes, node)
	return q, nil
}

// selectNode asks the routing policy for a probe target. A failed call
// or an answer outside the ambiguity zones falls back to the strongest
// tension cell in node form.
func (o *Orchestrator) selectNode(ctx context.Context, next *SessionSnapshot) string {
	fallback := o.fallbackNode(next)
	if o.route == nil || len(next.AmbiguityZones) == 0 {
		return fallback
	}
	node, err := o.route.SelectNode(ctx, next)
	if err != nil {
		perr := &PolicyError{Role: "routing", Err: err}
		log.Printf("[ORCH] fallback: session=%s %v → %s", next.SessionID, perr, fallback)
		return fallback
	}
	if !containsNode(next.AmbiguityZones, node) {
		perr := &PolicyError{Role: "routing", Err: fmt.Errorf("node %q outside ambiguity zones", node)}
		log.Printf("[ORCH] fallback: session=%s %v → %s", next.SessionID, perr, fallback)
		return fallback
	}
	return node
}

// fallbackNode converts the strongest tension cell into node form.
func (o *Orchestrator) fallbackNode(next *SessionSnapshot) string {
	if len(next.DominantCells) > 0 {
		if n, err := schema.NodeFromCell(next.DominantCells[0]); err == nil {
			return n
		}
	}
	return schema.NodeKeys()[0]
}

// constructQuestion asks the construction policy for the probe wording,
// retries once, then falls back to the reference template for the node.
func (o *Orchestrator) constructQuestion(ctx context.Context, next *SessionSnapshot, node string) (*Question, error) {
	if o.construct != nil {
		for attempt := 1; attempt <= 2; attempt++ {
			q, err := o.construct.Construct(ctx, node, next)
			if err == nil {
				err = ValidateQuestion(q, node)
				if err == nil {
					q.Source = SourcePolicy
					return q, nil
				}
			}
			perr := &PolicyError{Role: "construction", Err: err}
			log.Printf("[ORCH] fallback: session=%s %v (attempt %d/2)", next.SessionID, perr, attempt)
		}
	}
	tmpl, err := o.bank.Phase2Template(node)
	if err != nil {
		return nil, fmt.Errorf("reference template for %s: %w", node, err)
	}
	return QuestionFromTemplate(tmpl), nil
}

func containsNode(nodes []string, node string) bool {
	for _, n := range nodes {
		if n == node {
			return true
		}
	}
	return false
}

// #endregion

// #region consistency

const consistencyTol = 1e-9

// checkConsistency verifies the recomputed derived surface against its
// structural invariants.
func checkConsistency(s *SessionSnapshot) error {
	// 1. Rigidity is the fixed convex combination of its components.
	wsum := analysis.WeightPolarization + analysis.WeightLowVariance + analysis.WeightRepetition
	if math.Abs(wsum-1) > consistencyTol {
		return &ConsistencyError{Check: "rigidity-weights", Detail: fmt.Sprintf("component weights sum to %v, want 1", wsum)}
	}
	r := s.Rigidity
	want := analysis.WeightPolarization*r.Polarization + analysis.WeightLowVariance*r.LowVariance + analysis.WeightRepetition*r.StrategyRepetition
	if math.Abs(r.Total-want) > consistencyTol {
		return &ConsistencyError{Check: "rigidity-total", Detail: fmt.Sprintf("total %v does not recompose from components (%v)", r.Total, want)}
	}
	if r.Total < -consistencyTol || r.Total > 1+consistencyTol {
		return &ConsistencyError{Check: "rigidity-range", Detail: fmt.Sprintf("total %v outside [0,1]", r.Total)}
	}

	// 2. Tension carries exactly one cell per layer and axis pair.
	keys := schema.CellKeys()
	if len(s.Tension) != len(keys) {
		return &ConsistencyError{Check: "tension-shape", Detail: fmt.Sprintf("%d cells, want %d", len(s.Tension), len(keys))}
	}
	for _, k := range keys {
		if _, ok := s.Tension[k]; !ok {
			return &ConsistencyError{Check: "tension-shape", Detail: fmt.Sprintf("cell %s missing", k)}
		}
	}

	// 3. Every score and the confidence stay inside their ranges.
	for _, a := range schema.Axes() {
		if v := s.Axes[a]; v < -1 || v > 1 || math.IsNaN(v) {
			return &ConsistencyError{Check: "axis-range", Detail: fmt.Sprintf("%s score %v outside [-1,1]", a, v)}
		}
	}
	for _, l := range schema.Layers() {
		if v := s.Layers[l]; v < -1 || v > 1 || math.IsNaN(v) {
			return &ConsistencyError{Check: "layer-range", Detail: fmt.Sprintf("%s score %v outside [-1,1]", l, v)}
		}
	}
	if s.Confidence < 0 || s.Confidence > 1 || math.IsNaN(s.Confidence) {
		return &ConsistencyError{Check: "confidence-range", Detail: fmt.Sprintf("confidence %v outside [0,1]", s.Confidence)}
	}
	return nil
}

// #endregion
