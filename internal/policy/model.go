package policy

// #region imports
import (
	"context"

	"github.com/psycheos/screening-engine/internal/orchestrator"
)

// #endregion

// #region model-policies

// ModelStop asks a model whether the probe loop has learned enough.
// Errors surface to the orchestrator, which treats them as "keep
// going".
type ModelStop struct {
	Client *Client
}

func (m ModelStop) ShouldStop(ctx context.Context, snap *orchestrator.SessionSnapshot) (bool, error) {
	out, err := m.Client.Generate(ctx, RoleStop, stopPrompt+ContextBlock(snap))
	if err != nil {
		return false, err
	}
	v, err := parseStopVerdict(out)
	if err != nil {
		return false, err
	}
	return v.Stop, nil
}

// ModelRouter asks a model to pick the next probe node. Unparseable or
// malformed picks come back as errors so the orchestrator can fall
// back; membership in the ambiguity zones is checked at the boundary.
type ModelRouter struct {
	Client *Client
}

func (m ModelRouter) SelectNode(ctx context.Context, snap *orchestrator.SessionSnapshot) (string, error) {
	out, err := m.Client.Generate(ctx, RoleRouter, routerPrompt+ContextBlock(snap))
	if err != nil {
		return "", err
	}
	p, err := parseNodePick(out)
	if err != nil {
		return "", err
	}
	return p.Node, nil
}

// ModelConstructor asks a model to word the probe question for a node.
// The orchestrator validates the produced options and falls back to the
// reference template after one retry.
type ModelConstructor struct {
	Client *Client
}

func (m ModelConstructor) Construct(ctx context.Context, node string, snap *orchestrator.SessionSnapshot) (*orchestrator.Question, error) {
	prompt := constructPrompt + TargetBlock(node) + ContextBlock(snap)
	out, err := m.Client.Generate(ctx, RoleConstruct, prompt)
	if err != nil {
		return nil, err
	}
	return parseQuestionSpec(out)
}

// #endregion
