package report

import (
	"strings"
	"testing"

	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/schema"
)

// #region helpers
// profileSnapshot builds a finalized-looking snapshot with hand-set
// derived fields.
func profileSnapshot() *orchestrator.SessionSnapshot {
	snap := orchestrator.NewSnapshot("s1")
	snap.Phase = orchestrator.PhaseReport
	snap.Seq = 14
	snap.ScreenIndex = 6
	snap.Phase2Questions = 3
	snap.Phase3Questions = 5
	snap.History = make([]schema.WeightedResponse, 14)
	snap.Confidence = 0.665

	snap.Axes = schema.AxisVector{
		schema.AxisA1: -0.386, schema.AxisA2: -0.527,
		schema.AxisA3: 0.265, schema.AxisA4: -0.581,
	}
	snap.Layers = schema.LayerVector{
		schema.LayerL0: 0.2, schema.LayerL1: -0.7,
		schema.LayerL2: 0.7, schema.LayerL3: 0, schema.LayerL4: 0.5,
	}
	snap.Tension["L4_A4"] = -0.581
	snap.Tension["L0_A2"] = 0.412
	snap.DominantCells = []string{"L4_A4", "L0_A2"}
	snap.AmbiguityZones = []string{"A1_L1", "A3_L3"}
	snap.Rigidity = schema.RigidityIndex{
		Polarization:       0,
		LowVariance:        1,
		StrategyRepetition: 0.0714285714,
		Total:              0.3285714286,
	}
	return snap
}

// #endregion helpers

// #region build-tests
func TestBuildRanksLayersByAmplitude(t *testing.T) {
	r := Build(profileSnapshot())

	if len(r.Layers) != 5 {
		t.Fatalf("expected 5 layers, got %d", len(r.Layers))
	}
	// |−0.7| ties |0.7|; canonical order keeps L1 ahead of L2.
	want := []string{"L1", "L2", "L4", "L0", "L3"}
	for i, w := range want {
		if r.Layers[i].Key != w {
			t.Fatalf("rank %d: expected %s, got %s", i, w, r.Layers[i].Key)
		}
	}
	if r.Layers[0].Label != "emotional" {
		t.Fatalf("expected emotional label, got %s", r.Layers[0].Label)
	}
}

func TestBuildAxesKeepCanonicalOrder(t *testing.T) {
	r := Build(profileSnapshot())

	want := []string{"A1", "A2", "A3", "A4"}
	for i, w := range want {
		if r.Axes[i].Key != w {
			t.Fatalf("axis %d: expected %s, got %s", i, w, r.Axes[i].Key)
		}
	}
	if r.Axes[3].Label != "steadiness" || r.Axes[3].Score != -0.581 {
		t.Fatalf("unexpected A4 entry %+v", r.Axes[3])
	}
}

func TestBuildTopCells(t *testing.T) {
	r := Build(profileSnapshot())

	if len(r.TopCells) != 2 {
		t.Fatalf("expected 2 top cells, got %d", len(r.TopCells))
	}
	if r.TopCells[0].Cell != "L4_A4" || r.TopCells[0].Node != "A4_L4" {
		t.Fatalf("expected L4_A4/A4_L4, got %+v", r.TopCells[0])
	}
	if r.TopCells[0].Value != -0.581 {
		t.Fatalf("expected tension value -0.581, got %v", r.TopCells[0].Value)
	}
}

func TestBuildCountsAndZones(t *testing.T) {
	r := Build(profileSnapshot())

	if r.Responses != 14 {
		t.Fatalf("expected 14 responses, got %d", r.Responses)
	}
	if r.Counts.Screens != 6 || r.Counts.Probes != 3 || r.Counts.DeepDive != 5 {
		t.Fatalf("unexpected counts %+v", r.Counts)
	}
	if len(r.OpenZones) != 2 || r.OpenZones[0] != "A1_L1" {
		t.Fatalf("unexpected open zones %v", r.OpenZones)
	}
	if r.Rigidity.Band != BandMedium {
		t.Fatalf("expected medium band, got %s", r.Rigidity.Band)
	}
}

func TestRigidityBandBoundaries(t *testing.T) {
	cases := []struct {
		total float64
		want  string
	}{
		{0.0, BandLow},
		{0.29, BandLow},
		{0.3, BandMedium},
		{0.59, BandMedium},
		{0.6, BandHigh},
		{1.0, BandHigh},
	}
	for _, tc := range cases {
		if got := RigidityBand(tc.total); got != tc.want {
			t.Fatalf("band(%v): expected %s, got %s", tc.total, tc.want, got)
		}
	}
}

// #endregion build-tests

// #region render-tests
func TestRenderTextSections(t *testing.T) {
	text := RenderText(Build(profileSnapshot()))

	for _, want := range []string{
		"[SCREENING PROFILE]",
		"session: s1",
		"confidence: 67% (14 responses; 6 screens, 3 probes, 5 deep dive)",
		"[AXES]",
		"- initiative (A1): -0.386",
		"[LAYERS ranked by amplitude]",
		"- emotional (L1): -0.700",
		"[DOMINANT TENSION]",
		"- cognitive x steadiness (L4_A4): -0.581",
		"[RIGIDITY]",
		"total 0.329 (medium): polarization 0.00, low variance 1.00, repetition 0.07",
		"[UNRESOLVED ZONES]",
		"- A3_L3",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("rendered profile missing %q:\n%s", want, text)
		}
	}
}

// #endregion render-tests
