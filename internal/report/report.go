package report

// #region imports
import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/schema"
)

// #endregion

// #region labels

var axisLabels = map[schema.Axis]string{
	schema.AxisA1: "initiative",
	schema.AxisA2: "control",
	schema.AxisA3: "orientation",
	schema.AxisA4: "steadiness",
}

var layerLabels = map[schema.Layer]string{
	schema.LayerL0: "energetic",
	schema.LayerL1: "emotional",
	schema.LayerL2: "behavioral",
	schema.LayerL3: "relational",
	schema.LayerL4: "cognitive",
}

// AxisLabel returns the display name for an axis.
func AxisLabel(a schema.Axis) string {
	return axisLabels[a]
}

// LayerLabel returns the display name for a layer.
func LayerLabel(l schema.Layer) string {
	return layerLabels[l]
}

// #endregion labels

// #region bands

// Rigidity bands.
const (
	BandLow    = "low"
	BandMedium = "medium"
	BandHigh   = "high"
)

// RigidityBand maps a total rigidity score to its band. Boundaries sit
// at 0.3 and 0.6, lower bound inclusive.
func RigidityBand(total float64) string {
	switch {
	case total < 0.3:
		return BandLow
	case total < 0.6:
		return BandMedium
	default:
		return BandHigh
	}
}

// #endregion bands

// #region types

// AxisScore is one axis with its display label.
type AxisScore struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// LayerScore is one layer with its display label.
type LayerScore struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// CellScore is one tension cell in both spellings with its value.
type CellScore struct {
	Cell  string  `json:"cell"`
	Node  string  `json:"node"`
	Value float64 `json:"value"`
}

// RigiditySummary carries the rigidity components with their band.
type RigiditySummary struct {
	Total              float64 `json:"total"`
	Band               string  `json:"band"`
	Polarization       float64 `json:"polarization"`
	LowVariance        float64 `json:"low_variance"`
	StrategyRepetition float64 `json:"strategy_repetition"`
}

// PhaseCounts tallies how much of each phase the session used.
type PhaseCounts struct {
	Screens  int `json:"screens"`
	Probes   int `json:"probes"`
	DeepDive int `json:"deep_dive"`
}

// Report is the structured summary built from a session snapshot.
type Report struct {
	SessionID   string          `json:"session_id"`
	Phase       string          `json:"phase"`
	GeneratedAt time.Time       `json:"generated_at"`
	Confidence  float64         `json:"confidence"`
	Responses   int             `json:"responses"`
	Counts      PhaseCounts     `json:"phase_counts"`
	Axes        []AxisScore     `json:"axes"`
	Layers      []LayerScore    `json:"layers"`
	TopCells    []CellScore     `json:"top_cells"`
	Rigidity    RigiditySummary `json:"rigidity"`
	OpenZones   []string        `json:"open_zones,omitempty"`
}

// #endregion types

// #region build

// Build summarizes a snapshot. Axes keep canonical order; layers are
// ranked by amplitude, canonical order breaking ties.
func Build(snap *orchestrator.SessionSnapshot) Report {
	r := Report{
		SessionID:   snap.SessionID,
		Phase:       string(snap.Phase),
		GeneratedAt: time.Now().UTC(),
		Confidence:  snap.Confidence,
		Responses:   len(snap.History),
		Counts: PhaseCounts{
			Screens:  snap.ScreenIndex,
			Probes:   snap.Phase2Questions,
			DeepDive: snap.Phase3Questions,
		},
		OpenZones: append([]string(nil), snap.AmbiguityZones...),
	}

	for _, a := range schema.Axes() {
		r.Axes = append(r.Axes, AxisScore{
			Key:   string(a),
			Label: AxisLabel(a),
			Score: snap.Axes[a],
		})
	}

	for _, l := range schema.Layers() {
		r.Layers = append(r.Layers, LayerScore{
			Key:   string(l),
			Label: LayerLabel(l),
			Score: snap.Layers[l],
		})
	}
	sort.SliceStable(r.Layers, func(i, j int) bool {
		return math.Abs(r.Layers[i].Score) > math.Abs(r.Layers[j].Score)
	})

	for _, cell := range snap.DominantCells {
		node, err := schema.NodeFromCell(cell)
		if err != nil {
			continue
		}
		r.TopCells = append(r.TopCells, CellScore{
			Cell:  cell,
			Node:  node,
			Value: snap.Tension[cell],
		})
	}

	r.Rigidity = RigiditySummary{
		Total:              snap.Rigidity.Total,
		Band:               RigidityBand(snap.Rigidity.Total),
		Polarization:       snap.Rigidity.Polarization,
		LowVariance:        snap.Rigidity.LowVariance,
		StrategyRepetition: snap.Rigidity.StrategyRepetition,
	}

	return r
}

// #endregion build

// #region render

// RenderText formats the report as a plain-text profile.
func RenderText(r Report) string {
	var b strings.Builder

	b.WriteString("[SCREENING PROFILE]\n")
	b.WriteString(fmt.Sprintf("session: %s\n", r.SessionID))
	b.WriteString(fmt.Sprintf("generated: %s\n", r.GeneratedAt.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("confidence: %.0f%% (%d responses; %d screens, %d probes, %d deep dive)\n",
		math.Round(r.Confidence*100), r.Responses,
		r.Counts.Screens, r.Counts.Probes, r.Counts.DeepDive))

	b.WriteString("\n[AXES]\n")
	for _, a := range r.Axes {
		b.WriteString(fmt.Sprintf("- %s (%s): %+.3f\n", a.Label, a.Key, a.Score))
	}

	b.WriteString("\n[LAYERS ranked by amplitude]\n")
	for _, l := range r.Layers {
		b.WriteString(fmt.Sprintf("- %s (%s): %+.3f\n", l.Label, l.Key, l.Score))
	}

	if len(r.TopCells) > 0 {
		b.WriteString("\n[DOMINANT TENSION]\n")
		for _, c := range r.TopCells {
			label := cellLabel(c.Cell)
			b.WriteString(fmt.Sprintf("- %s (%s): %+.3f\n", label, c.Cell, c.Value))
		}
	}

	b.WriteString("\n[RIGIDITY]\n")
	b.WriteString(fmt.Sprintf("total %.3f (%s): polarization %.2f, low variance %.2f, repetition %.2f\n",
		r.Rigidity.Total, r.Rigidity.Band,
		r.Rigidity.Polarization, r.Rigidity.LowVariance, r.Rigidity.StrategyRepetition))

	if len(r.OpenZones) > 0 {
		b.WriteString("\n[UNRESOLVED ZONES]\n")
		for _, z := range r.OpenZones {
			b.WriteString(fmt.Sprintf("- %s\n", z))
		}
	}

	return b.String()
}

// cellLabel renders a layer-first cell key with display names.
func cellLabel(cell string) string {
	l, a, err := schema.ParseCellKey(cell)
	if err != nil {
		return cell
	}
	return fmt.Sprintf("%s x %s", LayerLabel(l), AxisLabel(a))
}

// #endregion render
