package orchestrator

// #region imports
import (
	"time"

	"github.com/psycheos/screening-engine/internal/analysis"
	"github.com/psycheos/screening-engine/internal/estimate"
	"github.com/psycheos/screening-engine/internal/schema"
	"github.com/psycheos/screening-engine/internal/scoring"
)

// #endregion

// #region snapshot

// SessionSnapshot is the complete observable state of one screening
// session: the raw response history plus every derived surface,
// recomputed as a unit after each accepted submission.
type SessionSnapshot struct {
	SessionID       string                    `json:"session_id"`
	Phase           Phase                     `json:"phase"`
	Seq             int                       `json:"seq"`
	ScreenIndex     int                       `json:"screen_index"`
	Phase1Completed bool                      `json:"phase1_completed"`
	Phase2Questions int                       `json:"phase2_questions"`
	Phase3Questions int                       `json:"phase3_questions"`
	ProbedNodes     []string                  `json:"probed_nodes,omitempty"`
	History         []schema.WeightedResponse `json:"response_history"`
	Axes            schema.AxisVector         `json:"axis_vector"`
	Layers          schema.LayerVector        `json:"layer_vector"`
	Tension         schema.TensionMatrix      `json:"tension_matrix"`
	Rigidity        schema.RigidityIndex      `json:"rigidity"`
	Confidence      float64                   `json:"confidence"`
	AmbiguityZones  []string                  `json:"ambiguity_zones,omitempty"`
	DominantCells   []string                  `json:"dominant_cells,omitempty"`
	LastAxisDelta   map[schema.Axis]float64   `json:"last_axis_delta,omitempty"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// NewSnapshot returns a not-yet-started session with an empty history
// and the derived surface computed from it, so the structural
// invariants hold from the first moment.
func NewSnapshot(sessionID string) *SessionSnapshot {
	s := &SessionSnapshot{
		SessionID: sessionID,
		Phase:     PhaseNotStarted,
		Axes:      schema.NewAxisVector(),
		Layers:    schema.NewLayerVector(),
	}
	s.recompute(analysis.DefaultConfig(), estimate.DefaultConfig())
	return s
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (s *SessionSnapshot) Clone() *SessionSnapshot {
	c := *s
	c.History = make([]schema.WeightedResponse, len(s.History))
	for i := range s.History {
		c.History[i] = s.History[i].Clone()
	}
	c.ProbedNodes = append([]string(nil), s.ProbedNodes...)
	c.AmbiguityZones = append([]string(nil), s.AmbiguityZones...)
	c.DominantCells = append([]string(nil), s.DominantCells...)
	c.Axes = s.Axes.Clone()
	c.Layers = s.Layers.Clone()
	c.Tension = s.Tension.Clone()
	if s.LastAxisDelta != nil {
		c.LastAxisDelta = make(map[schema.Axis]float64, len(s.LastAxisDelta))
		for a, d := range s.LastAxisDelta {
			c.LastAxisDelta[a] = d
		}
	}
	return &c
}

// recompute rebuilds every derived field from the raw history.
// Ordering matters: zones are found first (against the confidence of
// the previous step), then confidence folds the new zone count in.
func (s *SessionSnapshot) recompute(acfg analysis.Config, ecfg estimate.Config) {
	prev := s.Axes
	s.Axes, s.Layers = scoring.Aggregate(s.History)
	s.Tension = analysis.Tension(s.Axes, s.Layers)
	s.Rigidity = analysis.Rigidity(s.History, s.Axes, acfg)
	s.AmbiguityZones = estimate.AmbiguityZones(s.History, s.Axes, s.Layers, s.Tension, s.Confidence, ecfg)
	s.Confidence = estimate.Confidence(s.History, s.Axes, len(s.AmbiguityZones), ecfg)
	s.DominantCells = estimate.DominantCells(s.Tension, ecfg.TopN)

	delta := make(map[schema.Axis]float64, len(schema.Axes()))
	for _, a := range schema.Axes() {
		delta[a] = s.Axes[a] - prev[a]
	}
	s.LastAxisDelta = delta
	s.UpdatedAt = time.Now().UTC()
}

// #endregion
