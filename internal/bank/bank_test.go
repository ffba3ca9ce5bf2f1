package bank

import (
	"strings"
	"testing"

	"github.com/psycheos/screening-engine/internal/schema"
)

func loadBank(t *testing.T) *Bank {
	t.Helper()
	b, err := Load()
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	return b
}

func TestLoadEmbeddedBank(t *testing.T) {
	b := loadBank(t)
	if b.ScreenCount() != 6 {
		t.Fatalf("expected 6 screens, got %d", b.ScreenCount())
	}
	if len(b.AllNodes()) != 20 {
		t.Fatalf("expected 20 templates, got %d", len(b.AllNodes()))
	}
}

func TestEveryOptionPassesWeightSchema(t *testing.T) {
	b := loadBank(t)
	for i := 0; i < b.ScreenCount(); i++ {
		s, err := b.Phase1Screen(i)
		if err != nil {
			t.Fatalf("screen %d: %v", i, err)
		}
		for _, o := range s.Options {
			r := schema.WeightedResponse{ScreenID: s.ID, Phase: 1, AxisWeights: o.AxisWeights, LayerWeights: o.LayerWeights}
			if err := schema.ValidateResponse(r); err != nil {
				t.Fatalf("screen %s option %s: %v", s.ID, o.ID, err)
			}
		}
	}
	for _, node := range b.AllNodes() {
		tpl, err := b.Phase2Template(node)
		if err != nil {
			t.Fatalf("template %s: %v", node, err)
		}
		for _, o := range tpl.Options {
			r := schema.WeightedResponse{ScreenID: node, Phase: 2, AxisWeights: o.AxisWeights, LayerWeights: o.LayerWeights}
			if err := schema.ValidateResponse(r); err != nil {
				t.Fatalf("template %s option %s: %v", node, o.ID, err)
			}
		}
	}
}

func TestTemplatesCoverEveryNodeInCanonicalOrder(t *testing.T) {
	b := loadBank(t)
	want := schema.NodeKeys()
	got := b.AllNodes()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestTemplatesDiscriminateTheirAxis(t *testing.T) {
	// A diagnostic probe must offer evidence in both directions of its axis,
	// and every option must touch the node's layer.
	b := loadBank(t)
	for _, node := range b.AllNodes() {
		axis, layer, err := schema.ParseNodeKey(node)
		if err != nil {
			t.Fatalf("parse %s: %v", node, err)
		}
		tpl, _ := b.Phase2Template(node)
		pos, neg := false, false
		for _, o := range tpl.Options {
			w, ok := o.AxisWeights[axis]
			if !ok {
				t.Fatalf("template %s option %s does not weight axis %s", node, o.ID, axis)
			}
			if w > 0 {
				pos = true
			}
			if w < 0 {
				neg = true
			}
			if _, ok := o.LayerWeights[layer]; !ok {
				t.Fatalf("template %s option %s does not weight layer %s", node, o.ID, layer)
			}
		}
		if !pos || !neg {
			t.Fatalf("template %s offers only one axis direction", node)
		}
	}
}

func TestPhase1ScreenRange(t *testing.T) {
	b := loadBank(t)
	if _, err := b.Phase1Screen(-1); err == nil {
		t.Fatal("expected error for index -1")
	}
	if _, err := b.Phase1Screen(6); err == nil {
		t.Fatal("expected error for index 6")
	}
	s, err := b.Phase1Screen(0)
	if err != nil || s.ID == "" {
		t.Fatalf("screen 0: %v", err)
	}
}

func TestPhase2TemplateUnknownNodeListsValid(t *testing.T) {
	b := loadBank(t)
	_, err := b.Phase2Template("A9_L9")
	if err == nil {
		t.Fatal("expected error for unknown node")
	}
	if !strings.Contains(err.Error(), "A1_L0") || !strings.Contains(err.Error(), "A4_L4") {
		t.Fatalf("error should list valid nodes: %v", err)
	}
}

func TestResponsesFromSelection(t *testing.T) {
	b := loadBank(t)
	s, _ := b.Phase1Screen(0)

	// duplicates collapse, order is ascending regardless of input order
	rs, err := ResponsesFromSelection(s, []int{2, 0, 2}, 1)
	if err != nil {
		t.Fatalf("selection: %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(rs))
	}
	if rs[0].ScreenID != s.ID+":"+s.Options[0].ID || rs[1].ScreenID != s.ID+":"+s.Options[2].ID {
		t.Fatalf("unexpected screen ids: %s, %s", rs[0].ScreenID, rs[1].ScreenID)
	}
	for _, r := range rs {
		if r.Phase != 1 {
			t.Fatalf("expected phase 1, got %d", r.Phase)
		}
		if err := schema.ValidateResponse(r); err != nil {
			t.Fatalf("selection produced invalid response: %v", err)
		}
	}
}

func TestResponsesFromSelectionErrors(t *testing.T) {
	b := loadBank(t)
	s, _ := b.Phase1Screen(0)
	if _, err := ResponsesFromSelection(s, nil, 1); err == nil {
		t.Fatal("expected error for empty selection")
	}
	if _, err := ResponsesFromSelection(s, []int{99}, 1); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestResponsesFromSelectionCopiesWeights(t *testing.T) {
	b := loadBank(t)
	s, _ := b.Phase1Screen(0)
	rs, _ := ResponsesFromSelection(s, []int{0}, 1)
	for k := range rs[0].AxisWeights {
		rs[0].AxisWeights[k] = 0.3
	}
	// bank data must be untouched by mutations on produced responses
	rs2, _ := ResponsesFromSelection(s, []int{0}, 1)
	for k, v := range s.Options[0].AxisWeights {
		if rs2[0].AxisWeights[k] != v {
			t.Fatal("selection responses must not alias bank weight maps")
		}
	}
}
