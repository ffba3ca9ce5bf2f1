package schema

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func makeResponse(axes map[Axis]float64, layers map[Layer]float64) WeightedResponse {
	return WeightedResponse{
		ScreenID:     "scr-1",
		Phase:        1,
		AxisWeights:  axes,
		LayerWeights: layers,
		AnsweredAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestValidWeightAcceptsVocabulary(t *testing.T) {
	for _, w := range AllowedWeights {
		if !ValidWeight(w) {
			t.Fatalf("weight %g should be valid", w)
		}
	}
}

func TestValidWeightAbsorbsFloatDrift(t *testing.T) {
	// JSON round-trips can perturb the last bits
	if !ValidWeight(0.3 + 1e-12) {
		t.Fatal("0.3 within tolerance should be valid")
	}
}

func TestValidWeightRejectsOffVocabulary(t *testing.T) {
	for _, w := range []float64{0.45, -0.7, 0.81, 1.0, -1.0, 0.2999} {
		if ValidWeight(w) {
			t.Fatalf("weight %g should be invalid", w)
		}
	}
}

func TestValidateResponseAccepts(t *testing.T) {
	r := makeResponse(map[Axis]float64{AxisA1: -0.8, AxisA3: 0.3}, map[Layer]float64{LayerL0: 0.5})
	if err := ValidateResponse(r); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateResponseLayersOnly(t *testing.T) {
	// A response may carry only layer weights
	r := makeResponse(nil, map[Layer]float64{LayerL4: 0.8})
	if err := ValidateResponse(r); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateResponseRejectsOffVocabularyWeight(t *testing.T) {
	r := makeResponse(map[Axis]float64{AxisA1: 0.45}, nil)
	err := ValidateResponse(r)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Reasons) != 1 {
		t.Fatalf("expected 1 reason, got %d: %v", len(verr.Reasons), verr.Reasons)
	}
	if !strings.Contains(verr.Reasons[0], "0.45") {
		t.Fatalf("reason should name the bad value: %s", verr.Reasons[0])
	}
}

func TestValidateResponseRejectsUnknownKeys(t *testing.T) {
	r := makeResponse(map[Axis]float64{Axis("A9"): 0.3}, map[Layer]float64{Layer("L7"): 0.5})
	err := ValidateResponse(r)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Reasons) != 2 {
		t.Fatalf("expected 2 reasons, got %v", verr.Reasons)
	}
}

func TestValidateResponseRejectsEmpty(t *testing.T) {
	r := makeResponse(nil, nil)
	if err := ValidateResponse(r); err == nil {
		t.Fatal("expected error for response with no weights")
	}
}

func TestValidateResponseRejectsBadPhase(t *testing.T) {
	r := makeResponse(map[Axis]float64{AxisA1: 0.3}, nil)
	r.Phase = 4
	if err := ValidateResponse(r); err == nil {
		t.Fatal("expected error for phase 4")
	}
	r.Phase = 0
	if err := ValidateResponse(r); err == nil {
		t.Fatal("expected error for phase 0")
	}
}

func TestValidateResponseAccumulatesViolations(t *testing.T) {
	r := WeightedResponse{Phase: 7, AxisWeights: map[Axis]float64{AxisA2: 0.45}}
	err := ValidateResponse(r)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	// bad phase + empty screen_id + bad weight
	if len(verr.Reasons) != 3 {
		t.Fatalf("expected 3 reasons, got %v", verr.Reasons)
	}
}

func TestCellAndNodeKeys(t *testing.T) {
	if got := CellKey(LayerL2, AxisA1); got != "L2_A1" {
		t.Fatalf("cell key: got %s", got)
	}
	if got := NodeKey(AxisA1, LayerL2); got != "A1_L2" {
		t.Fatalf("node key: got %s", got)
	}
	node, err := NodeFromCell("L2_A1")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if node != "A1_L2" {
		t.Fatalf("expected A1_L2, got %s", node)
	}
}

func TestCellKeysCardinality(t *testing.T) {
	keys := CellKeys()
	if len(keys) != 20 {
		t.Fatalf("expected 20 cells, got %d", len(keys))
	}
	if keys[0] != "L0_A1" || keys[19] != "L4_A4" {
		t.Fatalf("unexpected order: first=%s last=%s", keys[0], keys[19])
	}
}

func TestNodeKeysOrder(t *testing.T) {
	keys := NodeKeys()
	if len(keys) != 20 {
		t.Fatalf("expected 20 nodes, got %d", len(keys))
	}
	if keys[0] != "A1_L0" || keys[5] != "A2_L0" || keys[19] != "A4_L4" {
		t.Fatalf("unexpected order: %v", keys[:6])
	}
}

func TestParseNodeKeyRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "A1", "A1-L0", "A9_L0", "A1_L9", "L0_A1"} {
		if _, _, err := ParseNodeKey(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestResponseCloneIsIndependent(t *testing.T) {
	r := makeResponse(map[Axis]float64{AxisA1: -0.8}, map[Layer]float64{LayerL0: 0.8})
	c := r.Clone()
	c.AxisWeights[AxisA1] = 0.3
	c.LayerWeights[LayerL0] = -0.5
	if r.AxisWeights[AxisA1] != -0.8 || r.LayerWeights[LayerL0] != 0.8 {
		t.Fatal("clone mutation leaked into original")
	}
}

func TestVectorCloneIsIndependent(t *testing.T) {
	v := NewAxisVector()
	v[AxisA2] = 0.5
	c := v.Clone()
	c[AxisA2] = -0.5
	if v[AxisA2] != 0.5 {
		t.Fatal("clone mutation leaked into original")
	}
}
