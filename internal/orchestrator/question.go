package orchestrator

// #region imports
import (
	"fmt"
	"time"

	"github.com/psycheos/screening-engine/internal/bank"
	"github.com/psycheos/screening-engine/internal/schema"
)

// #endregion

// #region question

// Question source labels.
const (
	SourcePolicy   = "policy"
	SourceTemplate = "template"
)

// Option count bounds for a constructed question.
const (
	minQuestionOptions = 2
	maxQuestionOptions = 6
)

// QuestionOption is one selectable answer with its scoring weights.
type QuestionOption struct {
	Text         string                   `json:"text"`
	AxisWeights  map[schema.Axis]float64  `json:"axis_weights,omitempty"`
	LayerWeights map[schema.Layer]float64 `json:"layer_weights,omitempty"`
}

// Question is a fully specified adaptive probe aimed at one node.
type Question struct {
	ID      string           `json:"id"`
	Node    string           `json:"node"`
	Phase   int              `json:"phase"`
	Text    string           `json:"text"`
	Options []QuestionOption `json:"options"`
	Source  string           `json:"source"`
}

// Response converts the chosen option into the weighted response the
// caller submits back. The weights are deep copies.
func (q *Question) Response(option int) (schema.WeightedResponse, error) {
	if option < 0 || option >= len(q.Options) {
		return schema.WeightedResponse{}, fmt.Errorf("option %d out of range for question %s with %d options", option, q.ID, len(q.Options))
	}
	opt := q.Options[option]
	resp := schema.WeightedResponse{
		ScreenID:   fmt.Sprintf("%s:%d", q.ID, option),
		Phase:      q.Phase,
		AnsweredAt: time.Now().UTC(),
	}
	if len(opt.AxisWeights) > 0 {
		resp.AxisWeights = make(map[schema.Axis]float64, len(opt.AxisWeights))
		for a, w := range opt.AxisWeights {
			resp.AxisWeights[a] = w
		}
	}
	if len(opt.LayerWeights) > 0 {
		resp.LayerWeights = make(map[schema.Layer]float64, len(opt.LayerWeights))
		for l, w := range opt.LayerWeights {
			resp.LayerWeights[l] = w
		}
	}
	return resp, nil
}

// QuestionFromTemplate converts a bank template into a ready question.
func QuestionFromTemplate(t bank.Template) *Question {
	q := &Question{
		Node:    t.Node,
		Text:    t.Question,
		Source:  SourceTemplate,
		Options: make([]QuestionOption, 0, len(t.Options)),
	}
	for _, opt := range t.Options {
		qo := QuestionOption{Text: opt.Text}
		if len(opt.AxisWeights) > 0 {
			qo.AxisWeights = make(map[schema.Axis]float64, len(opt.AxisWeights))
			for a, w := range opt.AxisWeights {
				qo.AxisWeights[a] = w
			}
		}
		if len(opt.LayerWeights) > 0 {
			qo.LayerWeights = make(map[schema.Layer]float64, len(opt.LayerWeights))
			for l, w := range opt.LayerWeights {
				qo.LayerWeights[l] = w
			}
		}
		q.Options = append(q.Options, qo)
	}
	return q
}

// #endregion

// #region validation

// ValidateQuestion checks a policy-built question against the contract:
// 2 to 6 options, non-empty wording, every weight in the discrete
// vocabulary, and no weight outside the target node's axis and layer.
func ValidateQuestion(q *Question, node string) error {
	if q == nil {
		return fmt.Errorf("nil question")
	}
	axis, layer, err := schema.ParseNodeKey(node)
	if err != nil {
		return fmt.Errorf("target node: %w", err)
	}
	if q.Text == "" {
		return fmt.Errorf("empty question text")
	}
	if len(q.Options) < minQuestionOptions || len(q.Options) > maxQuestionOptions {
		return fmt.Errorf("question has %d options, want %d to %d", len(q.Options), minQuestionOptions, maxQuestionOptions)
	}
	for i, opt := range q.Options {
		if opt.Text == "" {
			return fmt.Errorf("option %d: empty text", i)
		}
		if len(opt.AxisWeights)+len(opt.LayerWeights) == 0 {
			return fmt.Errorf("option %d: no weights", i)
		}
		for a, w := range opt.AxisWeights {
			if a != axis {
				return fmt.Errorf("option %d: axis %s outside target node %s", i, a, node)
			}
			if !schema.ValidWeight(w) {
				return fmt.Errorf("option %d: axis weight %v not in vocabulary", i, w)
			}
		}
		for l, w := range opt.LayerWeights {
			if l != layer {
				return fmt.Errorf("option %d: layer %s outside target node %s", i, l, node)
			}
			if !schema.ValidWeight(w) {
				return fmt.Errorf("option %d: layer weight %v not in vocabulary", i, w)
			}
		}
	}
	return nil
}

// #endregion
