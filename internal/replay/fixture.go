package replay

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/schema"
)

// #endregion

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a
// scripted session with per-turn expectations and terminal anchors.
type Fixture struct {
	Description string        `json:"description"`
	SessionID   string        `json:"session_id"`
	Stop        string        `json:"stop"` // "never" | "delta"; empty means never
	Config      FixtureConfig `json:"config"`
	Turns       []FixtureTurn `json:"turns"`
	Final       FixtureFinal  `json:"final"`
}

// FixtureConfig mirrors orchestrator.Config with JSON tags. Zero
// fields fall back to the engine defaults.
type FixtureConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Phase2Cap           int     `json:"phase2_cap"`
	Phase3Cap           int     `json:"phase3_cap"`
	HistoryCap          int     `json:"history_cap"`
}

// FixtureResponse mirrors schema.WeightedResponse with string keys.
type FixtureResponse struct {
	ScreenID     string             `json:"screen_id"`
	Phase        int                `json:"phase"`
	AxisWeights  map[string]float64 `json:"axis_weights,omitempty"`
	LayerWeights map[string]float64 `json:"layer_weights,omitempty"`
}

// FixtureTurn is one scripted submission with its expected outcome.
// More than one response in a turn is a phase-1 multi-select screen.
type FixtureTurn struct {
	Turn      int               `json:"turn"`
	Responses []FixtureResponse `json:"responses"`
	Expected  FixtureExpect     `json:"expected"`
}

// FixtureExpect captures the observable outcome of one step.
type FixtureExpect struct {
	Phase      string  `json:"phase"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	ProbeNode  string  `json:"probe_node,omitempty"`
}

// FixtureFinal pins the terminal anchors of the walk.
type FixtureFinal struct {
	Axes           map[string]float64 `json:"axes"`
	Layers         map[string]float64 `json:"layers"`
	Confidence     float64            `json:"confidence"`
	RigidityTotal  float64            `json:"rigidity_total"`
	AmbiguityZones []string           `json:"ambiguity_zones"`
	DominantCells  []string           `json:"dominant_cells"`
	ProbedNodes    []string           `json:"probed_nodes"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return ParseFixture(data)
}

// ParseFixture parses fixture JSON.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// ToConfig converts the fixture config, filling gaps with defaults.
func (fc *FixtureConfig) ToConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	if fc.ConfidenceThreshold > 0 {
		cfg.ConfidenceThreshold = fc.ConfidenceThreshold
	}
	if fc.Phase2Cap > 0 {
		cfg.Phase2Cap = fc.Phase2Cap
	}
	if fc.Phase3Cap > 0 {
		cfg.Phase3Cap = fc.Phase3Cap
	}
	if fc.HistoryCap > 0 {
		cfg.HistoryCap = fc.HistoryCap
	}
	return cfg
}

// ToResponse converts a fixture response to a domain response.
func (fr *FixtureResponse) ToResponse() schema.WeightedResponse {
	resp := schema.WeightedResponse{
		ScreenID: fr.ScreenID,
		Phase:    fr.Phase,
	}
	if len(fr.AxisWeights) > 0 {
		resp.AxisWeights = make(map[schema.Axis]float64, len(fr.AxisWeights))
		for k, v := range fr.AxisWeights {
			resp.AxisWeights[schema.Axis(k)] = v
		}
	}
	if len(fr.LayerWeights) > 0 {
		resp.LayerWeights = make(map[schema.Layer]float64, len(fr.LayerWeights))
		for k, v := range fr.LayerWeights {
			resp.LayerWeights[schema.Layer(k)] = v
		}
	}
	return resp
}

// #endregion fixture-loader

// #region fixture-export

// FromSession rebuilds a fixture from a finished session's history so
// a stored walk can be replayed elsewhere. Expected outcomes are left
// for the next run to fill in (the responses alone pin the math).
func FromSession(snap *orchestrator.SessionSnapshot, description string) *Fixture {
	f := &Fixture{
		Description: description,
		SessionID:   snap.SessionID,
		Stop:        "never",
		Config: FixtureConfig{
			ConfidenceThreshold: orchestrator.DefaultConfig().ConfidenceThreshold,
			Phase2Cap:           orchestrator.DefaultConfig().Phase2Cap,
			Phase3Cap:           orchestrator.DefaultConfig().Phase3Cap,
			HistoryCap:          orchestrator.DefaultConfig().HistoryCap,
		},
		Final: FixtureFinal{
			Axes:           map[string]float64{},
			Layers:         map[string]float64{},
			Confidence:     snap.Confidence,
			RigidityTotal:  snap.Rigidity.Total,
			AmbiguityZones: append([]string(nil), snap.AmbiguityZones...),
			DominantCells:  append([]string(nil), snap.DominantCells...),
			ProbedNodes:    append([]string(nil), snap.ProbedNodes...),
		},
	}
	for _, a := range schema.Axes() {
		f.Final.Axes[string(a)] = snap.Axes[a]
	}
	for _, l := range schema.Layers() {
		f.Final.Layers[string(l)] = snap.Layers[l]
	}

	// Phase-1 multi-select answers share a screen and were accepted as
	// one step; group consecutive responses with the same screen base
	// so the replayed walk takes the same number of steps.
	for _, resp := range snap.History {
		fr := FixtureResponse{
			ScreenID: resp.ScreenID,
			Phase:    resp.Phase,
		}
		if len(resp.AxisWeights) > 0 {
			fr.AxisWeights = make(map[string]float64, len(resp.AxisWeights))
			for k, v := range resp.AxisWeights {
				fr.AxisWeights[string(k)] = v
			}
		}
		if len(resp.LayerWeights) > 0 {
			fr.LayerWeights = make(map[string]float64, len(resp.LayerWeights))
			for k, v := range resp.LayerWeights {
				fr.LayerWeights[string(k)] = v
			}
		}

		n := len(f.Turns)
		if resp.Phase == 1 && n > 0 {
			last := &f.Turns[n-1]
			if last.Responses[0].Phase == 1 && screenBase(last.Responses[0].ScreenID) == screenBase(resp.ScreenID) {
				last.Responses = append(last.Responses, fr)
				continue
			}
		}
		f.Turns = append(f.Turns, FixtureTurn{
			Turn:      n + 1,
			Responses: []FixtureResponse{fr},
		})
	}
	return f
}

// screenBase strips the option suffix from a screen-scoped ID.
func screenBase(id string) string {
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[:i]
	}
	return id
}

// #endregion fixture-export
