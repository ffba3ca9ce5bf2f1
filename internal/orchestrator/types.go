package orchestrator

// #region imports
import (
	"context"

	"github.com/psycheos/screening-engine/internal/bank"
)

// #endregion

// #region phases

// Phase is the lifecycle stage of a screening session.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	Phase1          Phase = "phase1"
	Phase2          Phase = "phase2"
	Phase3          Phase = "phase3"
	PhaseReport     Phase = "report"
	PhaseCompleted  Phase = "completed"
)

// Number returns the numeric phase stamped on responses accepted in
// this stage, or 0 for stages that accept none.
func (p Phase) Number() int {
	switch p {
	case Phase1:
		return 1
	case Phase2:
		return 2
	case Phase3:
		return 3
	}
	return 0
}

// Terminal reports whether the walk has ended for this session.
func (p Phase) Terminal() bool {
	return p == PhaseReport || p == PhaseCompleted
}

// #endregion

// #region policy-contracts

// StopPolicy decides, after each accepted phase 2 answer, whether the
// probe loop has gathered enough signal to exit early.
type StopPolicy interface {
	ShouldStop(ctx context.Context, snap *SessionSnapshot) (bool, error)
}

// RoutingPolicy picks the next node to probe. The returned node must
// come from snap.AmbiguityZones; anything else is out of contract and
// the orchestrator substitutes its fallback.
type RoutingPolicy interface {
	SelectNode(ctx context.Context, snap *SessionSnapshot) (string, error)
}

// ConstructionPolicy produces the adaptive question for a routed node.
type ConstructionPolicy interface {
	Construct(ctx context.Context, node string, snap *SessionSnapshot) (*Question, error)
}

// #endregion

// #region step-result

// Action tells the caller what the session needs next.
type Action string

const (
	ActionAsk      Action = "ask"
	ActionFinalize Action = "finalize"
)

// StepResult is the outcome of one accepted submission: the new
// snapshot plus either the next thing to ask or the finalize signal.
type StepResult struct {
	Snapshot *SessionSnapshot `json:"snapshot"`
	Action   Action           `json:"action"`
	Screen   *bank.Screen     `json:"screen,omitempty"`
	Question *Question        `json:"question,omitempty"`
	From     Phase            `json:"from"`
	Reason   string           `json:"reason"`
}

// #endregion

// #region config

// Config bounds the adaptive walk.
type Config struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Phase2Cap           int     `json:"phase2_cap"`
	Phase3Cap           int     `json:"phase3_cap"`
	HistoryCap          int     `json:"history_cap"`
}

// DefaultConfig returns the published walk bounds: 0.85 confidence
// gate, 3 probes, 5 deep-dive questions, 50 responses total.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.85,
		Phase2Cap:           3,
		Phase3Cap:           5,
		HistoryCap:          50,
	}
}

// #endregion
