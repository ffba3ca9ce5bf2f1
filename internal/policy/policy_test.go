package policy

// #region imports
import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/psycheos/screening-engine/internal/bank"
	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/schema"
)

// #endregion

// #region helpers

func resp(id string, axes map[schema.Axis]float64, layers map[schema.Layer]float64) schema.WeightedResponse {
	return schema.WeightedResponse{ScreenID: id, Phase: 2, AxisWeights: axes, LayerWeights: layers}
}

func probeSnapshot() *orchestrator.SessionSnapshot {
	snap := orchestrator.NewSnapshot("policy-test")
	snap.Phase = orchestrator.Phase2
	return snap
}

// #endregion

// #region stop-tests

func TestDeltaStopOnSettledAxes(t *testing.T) {
	stop := NewDeltaStop()

	snap := probeSnapshot()
	snap.Confidence = 0.5
	snap.LastAxisDelta = map[schema.Axis]float64{
		schema.AxisA1: 0.02, schema.AxisA2: -0.05, schema.AxisA3: 0.0, schema.AxisA4: 0.09,
	}
	got, err := stop.ShouldStop(context.Background(), snap)
	if err != nil || !got {
		t.Fatalf("settled deltas: stop=%v err=%v, want true", got, err)
	}

	// One axis still moving 0.15 keeps the loop alive.
	snap.LastAxisDelta[schema.AxisA3] = 0.15
	got, err = stop.ShouldStop(context.Background(), snap)
	if err != nil || got {
		t.Fatalf("moving axis: stop=%v err=%v, want false", got, err)
	}
}

func TestDeltaStopOnConfidenceGate(t *testing.T) {
	stop := NewDeltaStop()
	snap := probeSnapshot()
	snap.Confidence = 0.86
	snap.LastAxisDelta = map[schema.Axis]float64{schema.AxisA1: 0.4}

	got, err := stop.ShouldStop(context.Background(), snap)
	if err != nil || !got {
		t.Fatalf("confidence 0.86: stop=%v err=%v, want true", got, err)
	}
}

func TestDeltaStopOnBudget(t *testing.T) {
	stop := NewDeltaStop()
	snap := probeSnapshot()
	snap.Confidence = 0.4
	snap.Phase2Questions = 3
	snap.LastAxisDelta = map[schema.Axis]float64{schema.AxisA1: 0.4}

	got, err := stop.ShouldStop(context.Background(), snap)
	if err != nil || !got {
		t.Fatalf("budget consumed: stop=%v err=%v, want true", got, err)
	}
}

func TestDeltaStopWithoutDeltaKeepsGoing(t *testing.T) {
	stop := NewDeltaStop()
	snap := probeSnapshot()
	snap.Confidence = 0.4
	snap.LastAxisDelta = nil

	got, err := stop.ShouldStop(context.Background(), snap)
	if err != nil || got {
		t.Fatalf("no delta yet: stop=%v err=%v, want false", got, err)
	}
}

func TestNeverStop(t *testing.T) {
	snap := probeSnapshot()
	snap.Confidence = 1.0
	got, err := NeverStop{}.ShouldStop(context.Background(), snap)
	if err != nil || got {
		t.Fatalf("stop=%v err=%v, want false", got, err)
	}
}

// #endregion

// #region router-tests

func TestRuleRouterPrefersContestedNode(t *testing.T) {
	snap := probeSnapshot()
	// A1 carries 0.8,0.8,-0.8 and L0 carries 0.8,-0.8,0.8: one third
	// minority on both, over the 0.25 threshold. A2/L1 carry nothing.
	snap.History = []schema.WeightedResponse{
		resp("h1", map[schema.Axis]float64{schema.AxisA1: 0.8}, map[schema.Layer]float64{schema.LayerL0: 0.8}),
		resp("h2", map[schema.Axis]float64{schema.AxisA1: 0.8}, map[schema.Layer]float64{schema.LayerL0: -0.8}),
		resp("h3", map[schema.Axis]float64{schema.AxisA1: -0.8}, map[schema.Layer]float64{schema.LayerL0: 0.8}),
	}
	snap.AmbiguityZones = []string{"A2_L1", "A1_L0"}

	node, err := NewRuleRouter().SelectNode(context.Background(), snap)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if node != "A1_L0" {
		t.Fatalf("node = %s, want the contested A1_L0 over the listed-first A2_L1", node)
	}
}

func TestRuleRouterSkipsProbedNodes(t *testing.T) {
	snap := probeSnapshot()
	snap.History = []schema.WeightedResponse{
		resp("h1", map[schema.Axis]float64{schema.AxisA1: 0.8}, map[schema.Layer]float64{schema.LayerL0: 0.8}),
		resp("h2", map[schema.Axis]float64{schema.AxisA1: -0.8}, map[schema.Layer]float64{schema.LayerL0: -0.8}),
	}
	snap.AmbiguityZones = []string{"A1_L0", "A2_L1"}
	snap.ProbedNodes = []string{"A1_L0"}

	node, err := NewRuleRouter().SelectNode(context.Background(), snap)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if node != "A2_L1" {
		t.Fatalf("node = %s, want A2_L1 (contested node already probed)", node)
	}
}

func TestRuleRouterDominantAxisTier(t *testing.T) {
	snap := probeSnapshot()
	snap.Axes[schema.AxisA1] = 0.2
	snap.Axes[schema.AxisA3] = -0.6
	snap.AmbiguityZones = []string{"A1_L0", "A3_L2"}

	node, err := NewRuleRouter().SelectNode(context.Background(), snap)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if node != "A3_L2" {
		t.Fatalf("node = %s, want A3_L2 on the strongest axis", node)
	}
}

func TestRuleRouterLayerAmplitudeTier(t *testing.T) {
	snap := probeSnapshot()
	// Strongest axis is A4 but no candidate sits on it, so amplitude
	// falls through to the layers: L1 outweighs L0.
	snap.Axes[schema.AxisA4] = 0.7
	snap.Layers[schema.LayerL0] = 0.1
	snap.Layers[schema.LayerL1] = -0.5
	snap.AmbiguityZones = []string{"A1_L0", "A2_L1"}

	node, err := NewRuleRouter().SelectNode(context.Background(), snap)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if node != "A2_L1" {
		t.Fatalf("node = %s, want A2_L1 on the loudest layer", node)
	}
}

func TestRuleRouterExhaustedZones(t *testing.T) {
	snap := probeSnapshot()
	snap.AmbiguityZones = []string{"A1_L0", "A2_L1"}
	snap.ProbedNodes = []string{"A2_L1", "A1_L0"}

	_, err := NewRuleRouter().SelectNode(context.Background(), snap)
	if !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("err = %v, want ErrNoCandidate", err)
	}
}

// #endregion

// #region constructor-tests

func TestBankConstructorServesTemplate(t *testing.T) {
	b, err := bank.Load()
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	c := BankConstructor{Bank: b}

	q, err := c.Construct(context.Background(), "A2_L3", probeSnapshot())
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	tmpl, _ := b.Phase2Template("A2_L3")
	if q.Text != tmpl.Question || len(q.Options) != len(tmpl.Options) {
		t.Fatalf("question = %q with %d options, want template %q with %d", q.Text, len(q.Options), tmpl.Question, len(tmpl.Options))
	}
	if err := orchestrator.ValidateQuestion(q, "A2_L3"); err != nil {
		t.Fatalf("template question fails validation: %v", err)
	}

	if _, err := c.Construct(context.Background(), "A7_L7", probeSnapshot()); err == nil {
		t.Fatal("unknown node accepted")
	}
}

// #endregion

// #region parse-tests

func TestCleanJSONResponse(t *testing.T) {
	fenced := "```json\n{\"stop\": true}\n```"
	if got := cleanJSONResponse(fenced); got != `{"stop": true}` {
		t.Fatalf("fenced = %q", got)
	}
	bare := "  {\"stop\": false} \n"
	if got := cleanJSONResponse(bare); got != `{"stop": false}` {
		t.Fatalf("bare = %q", got)
	}
}

func TestParseStopVerdict(t *testing.T) {
	v, err := parseStopVerdict("```json\n{\"stop\": true, \"reason\": \"settled\"}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !v.Stop || v.Reason != "settled" {
		t.Fatalf("verdict = %+v", v)
	}
	if _, err := parseStopVerdict("the walk should stop"); err == nil {
		t.Fatal("prose accepted as verdict")
	}
}

func TestParseNodePick(t *testing.T) {
	p, err := parseNodePick(`{"node": "A3_L4", "reason": "contested"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Node != "A3_L4" {
		t.Fatalf("node = %s", p.Node)
	}
	if _, err := parseNodePick(`{"node": "L4_A3"}`); err == nil {
		t.Fatal("cell-form key accepted as node")
	}
	if _, err := parseNodePick(`{"node": ""}`); err == nil {
		t.Fatal("empty node accepted")
	}
}

func TestParseQuestionSpecMapsToQuestion(t *testing.T) {
	out := "```json\n" + `{
		"text": "When the plan collapses, what do you actually do first?",
		"options": [
			{"text": "Rebuild the plan before moving", "axis_weights": {"A2": 0.8}, "layer_weights": {"L2": 0.5}},
			{"text": "Move first, shape it later", "axis_weights": {"A2": -0.8}, "layer_weights": {"L2": 0.5}},
			{"text": "Patch the next step only", "axis_weights": {"A2": 0.3}, "layer_weights": {"L2": 0.3}}
		]
	}` + "\n```"

	q, err := parseQuestionSpec(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(q.Options) != 3 {
		t.Fatalf("options = %d, want 3", len(q.Options))
	}
	if q.Options[1].AxisWeights[schema.AxisA2] != -0.8 {
		t.Fatalf("option 1 axis weights = %v", q.Options[1].AxisWeights)
	}
	if err := orchestrator.ValidateQuestion(q, "A2_L2"); err != nil {
		t.Fatalf("mapped question fails validation: %v", err)
	}
	// Same spec against the wrong node must fail the boundary check.
	if err := orchestrator.ValidateQuestion(q, "A1_L2"); err == nil {
		t.Fatal("foreign-axis question passed validation")
	}
}

// #endregion

// #region prompt-tests

func TestContextBlockSections(t *testing.T) {
	snap := probeSnapshot()
	snap.AmbiguityZones = []string{"A1_L0"}
	snap.ProbedNodes = nil
	block := ContextBlock(snap)

	for _, want := range []string{"[SESSION]", "[AXES]", "[LAYERS]", "[AMBIGUITY ZONES]", "- A1_L0", "[PROBED NODES]", "- none", "[DOMINANT CELLS]"} {
		if !strings.Contains(block, want) {
			t.Fatalf("context block missing %q:\n%s", want, block)
		}
	}
}

func TestRolePromptsDeclareJSONContract(t *testing.T) {
	for name, p := range map[string]string{"stop": stopPrompt, "router": routerPrompt, "construct": constructPrompt} {
		if !strings.Contains(p, "JSON only") {
			t.Fatalf("%s prompt does not pin the output format", name)
		}
		if !strings.HasSuffix(p, "--- INPUT DATA ---\n") {
			t.Fatalf("%s prompt does not end with the input separator", name)
		}
	}
}

func TestDefaultSpecsCoverAllRoles(t *testing.T) {
	specs := DefaultSpecs()
	for _, role := range []Role{RoleStop, RoleRouter, RoleConstruct} {
		spec, ok := specs[role]
		if !ok || spec.Model == "" || spec.MaxTokens == 0 {
			t.Fatalf("role %s spec = %+v", role, spec)
		}
	}
	if specs[RoleConstruct].Model == specs[RoleRouter].Model {
		t.Fatal("construction should run on the stronger model")
	}
}

// #endregion
