package policy

// #region imports
import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/psycheos/screening-engine/internal/orchestrator"
	"github.com/psycheos/screening-engine/internal/schema"
)

// #endregion

// #region clean

// cleanJSONResponse strips the markdown code fence models like to wrap
// JSON in.
func cleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}

// #endregion

// #region verdicts

type stopVerdict struct {
	Stop   bool   `json:"stop"`
	Reason string `json:"reason"`
}

func parseStopVerdict(out string) (stopVerdict, error) {
	var v stopVerdict
	if err := json.Unmarshal([]byte(cleanJSONResponse(out)), &v); err != nil {
		return stopVerdict{}, fmt.Errorf("parse stop verdict: %w", err)
	}
	return v, nil
}

type nodePick struct {
	Node   string `json:"node"`
	Reason string `json:"reason"`
}

func parseNodePick(out string) (nodePick, error) {
	var p nodePick
	if err := json.Unmarshal([]byte(cleanJSONResponse(out)), &p); err != nil {
		return nodePick{}, fmt.Errorf("parse node pick: %w", err)
	}
	if _, _, err := schema.ParseNodeKey(p.Node); err != nil {
		return nodePick{}, fmt.Errorf("model picked %q: %w", p.Node, err)
	}
	return p, nil
}

// #endregion

// #region question-spec

type questionSpec struct {
	Text    string `json:"text"`
	Options []struct {
		Text         string             `json:"text"`
		AxisWeights  map[string]float64 `json:"axis_weights"`
		LayerWeights map[string]float64 `json:"layer_weights"`
	} `json:"options"`
}

// parseQuestionSpec decodes the constructor's JSON into a Question. The
// orchestrator validates the result against the target node; this only
// maps the shape.
func parseQuestionSpec(out string) (*orchestrator.Question, error) {
	var spec questionSpec
	if err := json.Unmarshal([]byte(cleanJSONResponse(out)), &spec); err != nil {
		return nil, fmt.Errorf("parse question spec: %w", err)
	}
	q := &orchestrator.Question{Text: spec.Text}
	for _, o := range spec.Options {
		opt := orchestrator.QuestionOption{Text: o.Text}
		if len(o.AxisWeights) > 0 {
			opt.AxisWeights = make(map[schema.Axis]float64, len(o.AxisWeights))
			for k, v := range o.AxisWeights {
				opt.AxisWeights[schema.Axis(k)] = v
			}
		}
		if len(o.LayerWeights) > 0 {
			opt.LayerWeights = make(map[schema.Layer]float64, len(o.LayerWeights))
			for k, v := range o.LayerWeights {
				opt.LayerWeights[schema.Layer(k)] = v
			}
		}
		q.Options = append(q.Options, opt)
	}
	return q, nil
}

// #endregion
