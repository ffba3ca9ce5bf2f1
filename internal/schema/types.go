package schema

import (
	"fmt"
	"time"
)

// #region axis

// Axis identifies one of the four bipolar scoring axes.
type Axis string

const (
	AxisA1 Axis = "A1"
	AxisA2 Axis = "A2"
	AxisA3 Axis = "A3"
	AxisA4 Axis = "A4"
)

// Axes returns the four axes in canonical order.
func Axes() []Axis {
	return []Axis{AxisA1, AxisA2, AxisA3, AxisA4}
}

// #endregion

// #region layer

// Layer identifies one of the five depth layers, energetic through cognitive.
type Layer string

const (
	LayerL0 Layer = "L0"
	LayerL1 Layer = "L1"
	LayerL2 Layer = "L2"
	LayerL3 Layer = "L3"
	LayerL4 Layer = "L4"
)

// Layers returns the five layers in canonical order.
func Layers() []Layer {
	return []Layer{LayerL0, LayerL1, LayerL2, LayerL3, LayerL4}
}

// #endregion

// #region vectors

// AxisVector maps every axis to a score in [-1, 1]. Derived state: always
// recomputed from the full response history, never patched in place.
type AxisVector map[Axis]float64

// LayerVector maps every layer to a score in [-1, 1].
type LayerVector map[Layer]float64

// NewAxisVector returns a vector with all four axes at zero.
func NewAxisVector() AxisVector {
	v := make(AxisVector, len(Axes()))
	for _, a := range Axes() {
		v[a] = 0
	}
	return v
}

// NewLayerVector returns a vector with all five layers at zero.
func NewLayerVector() LayerVector {
	v := make(LayerVector, len(Layers()))
	for _, l := range Layers() {
		v[l] = 0
	}
	return v
}

// Clone returns an independent copy.
func (v AxisVector) Clone() AxisVector {
	out := make(AxisVector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Clone returns an independent copy.
func (v LayerVector) Clone() LayerVector {
	out := make(LayerVector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// #endregion

// #region weighted-response

// WeightedResponse is one scored answer: partial weight maps over axes and
// layers, drawn from the fixed weight vocabulary. Immutable once accepted.
type WeightedResponse struct {
	ScreenID     string            `json:"screen_id"`
	Phase        int               `json:"phase"`
	AxisWeights  map[Axis]float64  `json:"axis_weights,omitempty"`
	LayerWeights map[Layer]float64 `json:"layer_weights,omitempty"`
	AnsweredAt   time.Time         `json:"answered_at"`
}

// Clone returns a deep copy with independent weight maps.
func (r WeightedResponse) Clone() WeightedResponse {
	out := r
	if r.AxisWeights != nil {
		out.AxisWeights = make(map[Axis]float64, len(r.AxisWeights))
		for k, v := range r.AxisWeights {
			out.AxisWeights[k] = v
		}
	}
	if r.LayerWeights != nil {
		out.LayerWeights = make(map[Layer]float64, len(r.LayerWeights))
		for k, v := range r.LayerWeights {
			out.LayerWeights[k] = v
		}
	}
	return out
}

// #endregion

// #region tension-matrix

// TensionMatrix holds the 20 layer×axis product cells, keyed layer-first
// ("L2_A1"). Fully recomputed from the current vectors on every update.
type TensionMatrix map[string]float64

// CellKey builds the layer-first tension cell key.
func CellKey(l Layer, a Axis) string {
	return fmt.Sprintf("%s_%s", l, a)
}

// CellKeys returns all 20 cell keys in layer-major canonical order.
func CellKeys() []string {
	keys := make([]string, 0, 20)
	for _, l := range Layers() {
		for _, a := range Axes() {
			keys = append(keys, CellKey(l, a))
		}
	}
	return keys
}

// Clone returns an independent copy.
func (m TensionMatrix) Clone() TensionMatrix {
	out := make(TensionMatrix, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// #endregion

// #region rigidity

// RigidityIndex is the composite inflexibility estimate. Total is always the
// fixed convex combination 0.3*Polarization + 0.3*LowVariance +
// 0.4*StrategyRepetition.
type RigidityIndex struct {
	Polarization       float64 `json:"polarization"`
	LowVariance        float64 `json:"low_variance"`
	StrategyRepetition float64 `json:"strategy_repetition"`
	Total              float64 `json:"total"`
}

// #endregion
