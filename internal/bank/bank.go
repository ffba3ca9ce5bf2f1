package bank

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/psycheos/screening-engine/internal/schema"
)

//go:embed bank.yaml
var bankYAML []byte

// #region types

// Option is one selectable answer carrying its weight pattern.
type Option struct {
	ID           string                   `yaml:"id" json:"id"`
	Text         string                   `yaml:"text" json:"text"`
	AxisWeights  map[schema.Axis]float64  `yaml:"axis_weights" json:"axis_weights,omitempty"`
	LayerWeights map[schema.Layer]float64 `yaml:"layer_weights" json:"layer_weights,omitempty"`
}

// Screen is one fixed phase-1 screen: a prompt with multi-select options.
type Screen struct {
	ID      string   `yaml:"id" json:"id"`
	Title   string   `yaml:"title" json:"title"`
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Options []Option `yaml:"options" json:"options"`
}

// Template is the reference diagnostic question for one node, used directly
// in phase 2/3 when no construction policy is wired and as the deterministic
// fallback when one misbehaves.
type Template struct {
	Node     string   `yaml:"node" json:"node"`
	Goal     string   `yaml:"goal" json:"goal"`
	Question string   `yaml:"question" json:"question"`
	Options  []Option `yaml:"options" json:"options"`
}

// Bank is the embedded question inventory: the six fixed screens and one
// template per diagnostic node.
type Bank struct {
	screens   []Screen
	templates map[string]Template
	nodeOrder []string
}

// #endregion

// #region loading

type bankFile struct {
	Phase1    []Screen   `yaml:"phase1"`
	Templates []Template `yaml:"templates"`
}

// Load parses and validates the embedded bank. Every option's weights must
// pass the weight schema; a bank that fails validation is a build defect.
func Load() (*Bank, error) {
	return parse(bankYAML)
}

func parse(raw []byte) (*Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse bank: %w", err)
	}
	if len(f.Phase1) != 6 {
		return nil, fmt.Errorf("bank: expected 6 phase-1 screens, found %d", len(f.Phase1))
	}

	b := &Bank{
		screens:   f.Phase1,
		templates: make(map[string]Template, len(f.Templates)),
	}
	for i, s := range f.Phase1 {
		if s.ID == "" {
			return nil, fmt.Errorf("bank: screen %d has no id", i)
		}
		if len(s.Options) < 2 {
			return nil, fmt.Errorf("bank: screen %s has %d options, need at least 2", s.ID, len(s.Options))
		}
		for _, o := range s.Options {
			if err := validateOption(s.ID, o, 1); err != nil {
				return nil, err
			}
		}
	}
	for _, tpl := range f.Templates {
		if _, _, err := schema.ParseNodeKey(tpl.Node); err != nil {
			return nil, fmt.Errorf("bank: template node: %w", err)
		}
		if _, dup := b.templates[tpl.Node]; dup {
			return nil, fmt.Errorf("bank: duplicate template for node %s", tpl.Node)
		}
		if len(tpl.Options) < 2 {
			return nil, fmt.Errorf("bank: template %s has %d options, need at least 2", tpl.Node, len(tpl.Options))
		}
		for _, o := range tpl.Options {
			if err := validateOption(tpl.Node, o, 2); err != nil {
				return nil, err
			}
		}
		b.templates[tpl.Node] = tpl
		b.nodeOrder = append(b.nodeOrder, tpl.Node)
	}
	if len(b.templates) != 20 {
		return nil, fmt.Errorf("bank: expected 20 node templates, found %d", len(b.templates))
	}
	return b, nil
}

func validateOption(owner string, o Option, phase int) error {
	probe := schema.WeightedResponse{
		ScreenID:     owner,
		Phase:        phase,
		AxisWeights:  o.AxisWeights,
		LayerWeights: o.LayerWeights,
	}
	if err := schema.ValidateResponse(probe); err != nil {
		return fmt.Errorf("bank: %s option %q: %w", owner, o.ID, err)
	}
	return nil
}

// #endregion

// #region accessors

// ScreenCount returns the number of fixed phase-1 screens.
func (b *Bank) ScreenCount() int {
	return len(b.screens)
}

// Phase1Screen returns the fixed screen at index 0-5.
func (b *Bank) Phase1Screen(index int) (Screen, error) {
	if index < 0 || index >= len(b.screens) {
		return Screen{}, fmt.Errorf("screen index %d out of range [0,%d]", index, len(b.screens)-1)
	}
	return b.screens[index], nil
}

// Phase2Template returns the reference template for a node. Unknown nodes get
// an error naming every valid node, so misrouted lookups are diagnosable.
func (b *Bank) Phase2Template(node string) (Template, error) {
	tpl, ok := b.templates[node]
	if !ok {
		return Template{}, fmt.Errorf("no template for node %q (valid: %s)", node, strings.Join(b.AllNodes(), ", "))
	}
	return tpl, nil
}

// AllNodes returns the template nodes in bank definition order.
func (b *Bank) AllNodes() []string {
	out := make([]string, len(b.nodeOrder))
	copy(out, b.nodeOrder)
	return out
}

// #endregion

// #region selection

// ResponsesFromSelection converts a multi-select answer on a screen into one
// weighted response per chosen option. Indices are deduplicated and applied
// in ascending order so the same selection always yields the same history
// slice.
func ResponsesFromSelection(s Screen, selected []int, phase int) ([]schema.WeightedResponse, error) {
	if len(selected) == 0 {
		return nil, fmt.Errorf("screen %s: empty selection", s.ID)
	}
	picked := make(map[int]bool, len(selected))
	for _, idx := range selected {
		if idx < 0 || idx >= len(s.Options) {
			return nil, fmt.Errorf("screen %s: option index %d out of range [0,%d]", s.ID, idx, len(s.Options)-1)
		}
		picked[idx] = true
	}
	order := make([]int, 0, len(picked))
	for idx := range picked {
		order = append(order, idx)
	}
	sort.Ints(order)

	now := time.Now().UTC()
	out := make([]schema.WeightedResponse, 0, len(order))
	for _, idx := range order {
		o := s.Options[idx]
		out = append(out, schema.WeightedResponse{
			ScreenID:     fmt.Sprintf("%s:%s", s.ID, o.ID),
			Phase:        phase,
			AxisWeights:  cloneAxisMap(o.AxisWeights),
			LayerWeights: cloneLayerMap(o.LayerWeights),
			AnsweredAt:   now,
		})
	}
	return out, nil
}

func cloneAxisMap(m map[schema.Axis]float64) map[schema.Axis]float64 {
	if m == nil {
		return nil
	}
	out := make(map[schema.Axis]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneLayerMap(m map[schema.Layer]float64) map[schema.Layer]float64 {
	if m == nil {
		return nil
	}
	out := make(map[schema.Layer]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// #endregion
