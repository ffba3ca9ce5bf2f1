package policy

// #region imports
import (
	"context"
	"errors"
	"math"

	"github.com/psycheos/screening-engine/internal/bank"
	"github.com/psycheos/screening-engine/internal/estimate"
	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/schema"
	"github.com/psycheos/screening-engine/internal/scoring"
)

// #endregion

// #region stop

// DeltaStop ends the probe loop once the evidence stops moving: every
// axis moved less than DeltaThreshold on the last accepted step, or
// confidence already clears the gate, or the probe budget is consumed.
type DeltaStop struct {
	DeltaThreshold      float64
	ConfidenceThreshold float64
	MaxQuestions        int
}

// NewDeltaStop returns the stock thresholds: 0.1 delta, 0.85
// confidence, 3 probes.
func NewDeltaStop() DeltaStop {
	return DeltaStop{DeltaThreshold: 0.1, ConfidenceThreshold: 0.85, MaxQuestions: 3}
}

func (d DeltaStop) ShouldStop(_ context.Context, snap *orchestrator.SessionSnapshot) (bool, error) {
	if snap.Confidence >= d.ConfidenceThreshold {
		return true, nil
	}
	if snap.Phase2Questions >= d.MaxQuestions {
		return true, nil
	}
	if len(snap.LastAxisDelta) == 0 {
		return false, nil
	}
	for _, a := range schema.Axes() {
		if math.Abs(snap.LastAxisDelta[a]) >= d.DeltaThreshold {
			return false, nil
		}
	}
	return true, nil
}

// NeverStop always lets the walk run to its caps. Replay harnesses use
// it to exercise every phase.
type NeverStop struct{}

func (NeverStop) ShouldStop(context.Context, *orchestrator.SessionSnapshot) (bool, error) {
	return false, nil
}

// #endregion

// #region router

// ErrNoCandidate reports that every ambiguity zone has already been
// probed this session; the orchestrator's dominant-cell fallback takes
// over.
var ErrNoCandidate = errors.New("no unprobed ambiguity zone")

// RuleRouter picks probe targets by a fixed cascade: contested nodes
// first (sign conflict on both the axis and the layer), then nodes on
// the axis with the strongest aggregate signal, then nodes on the
// loudest remaining layer. Already-probed nodes are skipped.
type RuleRouter struct {
	ConflictThreshold float64
}

// NewRuleRouter returns the router at the stock 0.25 conflict fraction.
func NewRuleRouter() RuleRouter {
	return RuleRouter{ConflictThreshold: 0.25}
}

func (r RuleRouter) SelectNode(_ context.Context, snap *orchestrator.SessionSnapshot) (string, error) {
	probed := make(map[string]bool, len(snap.ProbedNodes))
	for _, n := range snap.ProbedNodes {
		probed[n] = true
	}
	var candidates []string
	for _, n := range snap.AmbiguityZones {
		if !probed[n] {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return "", ErrNoCandidate
	}

	axisConflict := make(map[schema.Axis]float64, len(schema.Axes()))
	for _, a := range schema.Axes() {
		axisConflict[a] = estimate.ConflictFraction(scoring.AxisContributions(snap.History, a))
	}
	layerConflict := make(map[schema.Layer]float64, len(schema.Layers()))
	for _, l := range schema.Layers() {
		layerConflict[l] = estimate.ConflictFraction(scoring.LayerContributions(snap.History, l))
	}

	// 1. Contested nodes carry live disagreement on both dimensions;
	//    resolving one settles the most.
	for _, n := range candidates {
		axis, layer, err := schema.ParseNodeKey(n)
		if err != nil {
			continue
		}
		if axisConflict[axis] >= r.ConflictThreshold && layerConflict[layer] >= r.ConflictThreshold {
			return n, nil
		}
	}

	// 2. Nodes on the axis with the strongest aggregate signal.
	dominant := schema.Axes()[0]
	best := math.Abs(snap.Axes[dominant])
	for _, a := range schema.Axes()[1:] {
		if v := math.Abs(snap.Axes[a]); v > best {
			dominant, best = a, v
		}
	}
	for _, n := range candidates {
		if axis, _, err := schema.ParseNodeKey(n); err == nil && axis == dominant {
			return n, nil
		}
	}

	// 3. Nodes on the loudest layer still represented among candidates.
	var loudest schema.Layer
	best = -1
	for _, l := range schema.Layers() {
		represented := false
		for _, n := range candidates {
			if _, layer, err := schema.ParseNodeKey(n); err == nil && layer == l {
				represented = true
				break
			}
		}
		if represented {
			if v := math.Abs(snap.Layers[l]); v > best {
				loudest, best = l, v
			}
		}
	}
	for _, n := range candidates {
		if _, layer, err := schema.ParseNodeKey(n); err == nil && layer == loudest {
			return n, nil
		}
	}
	return candidates[0], nil
}

// #endregion

// #region constructor

// BankConstructor serves the reference template for the routed node.
type BankConstructor struct {
	Bank *bank.Bank
}

func (c BankConstructor) Construct(_ context.Context, node string, _ *orchestrator.SessionSnapshot) (*orchestrator.Question, error) {
	tmpl, err := c.Bank.Phase2Template(node)
	if err != nil {
		return nil, err
	}
	return orchestrator.QuestionFromTemplate(tmpl), nil
}

// #endregion
