package policy

// #region imports
import (
	"fmt"
	"strings"

	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/schema"
)

// #endregion

// #region prompts

const stopPrompt = `You supervise an adaptive screening walk. Decide whether the probe loop should stop now.
Stop when the axis estimates have settled (small deltas), when confidence is already high, or when further probes are unlikely to move the picture. Otherwise keep probing.
Answer with JSON only: {"stop": true, "reason": "..."}

--- INPUT DATA ---
`

const routerPrompt = `You route the next probe of an adaptive screening walk.
Pick exactly one node key from the ambiguity zones listed below. Prefer contested nodes (conflicting evidence on both the axis and the layer), then nodes on the strongest axis, then the loudest layer. Never pick a node that was already probed.
Answer with JSON only: {"node": "A1_L2", "reason": "..."}

--- INPUT DATA ---
`

const constructPrompt = `You write one diagnostic multiple-choice question for a screening session.
Target the node given below. The question must discriminate its axis in both directions, and every option must ground in its layer. Do not touch any other axis or layer.
Use only weights from {-0.8, -0.5, -0.3, 0.3, 0.5, 0.8}. Two to six options, each a short first-person behavior.
Answer with JSON only: {"text": "...", "options": [{"text": "...", "axis_weights": {"A1": 0.8}, "layer_weights": {"L2": 0.5}}]}

--- INPUT DATA ---
`

// #endregion

// #region context

// ContextBlock renders the session state the way the role prompts
// expect it: bracketed sections, one fact per line.
func ContextBlock(snap *orchestrator.SessionSnapshot) string {
	var b strings.Builder
	b.WriteString("[SESSION]\n")
	fmt.Fprintf(&b, "phase: %s\n", snap.Phase)
	fmt.Fprintf(&b, "responses: %d\n", len(snap.History))
	fmt.Fprintf(&b, "confidence: %.3f\n", snap.Confidence)
	fmt.Fprintf(&b, "rigidity: %.3f\n", snap.Rigidity.Total)

	b.WriteString("[AXES]\n")
	for _, a := range schema.Axes() {
		fmt.Fprintf(&b, "- %s: %+.3f (last delta %+.3f)\n", a, snap.Axes[a], snap.LastAxisDelta[a])
	}

	b.WriteString("[LAYERS]\n")
	for _, l := range schema.Layers() {
		fmt.Fprintf(&b, "- %s: %+.3f\n", l, snap.Layers[l])
	}

	b.WriteString("[AMBIGUITY ZONES]\n")
	if len(snap.AmbiguityZones) == 0 {
		b.WriteString("- none\n")
	}
	for _, n := range snap.AmbiguityZones {
		fmt.Fprintf(&b, "- %s\n", n)
	}

	b.WriteString("[PROBED NODES]\n")
	if len(snap.ProbedNodes) == 0 {
		b.WriteString("- none\n")
	}
	for _, n := range snap.ProbedNodes {
		fmt.Fprintf(&b, "- %s\n", n)
	}

	b.WriteString("[DOMINANT CELLS]\n")
	for _, c := range snap.DominantCells {
		fmt.Fprintf(&b, "- %s: %+.3f\n", c, snap.Tension[c])
	}
	return b.String()
}

// TargetBlock names the routed node for the construction prompt.
func TargetBlock(node string) string {
	return fmt.Sprintf("[TARGET NODE]\n- %s\n", node)
}

// #endregion
