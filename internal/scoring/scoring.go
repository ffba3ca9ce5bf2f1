package scoring

import (
	"math"

	"github.com/psycheos/screening-engine/internal/schema"
)

// #region aggregate

// Aggregate folds a full response history into axis and layer score vectors.
// Per key: mean contribution over the whole history (an absent key contributes
// 0 to the numerator, history length is the denominator), squashed with tanh
// so repeated strong answers saturate instead of diverging. Empty history
// yields explicit zero vectors. Pure function: identical history always
// produces identical vectors.
func Aggregate(history []schema.WeightedResponse) (schema.AxisVector, schema.LayerVector) {
	axes := schema.NewAxisVector()
	layers := schema.NewLayerVector()
	if len(history) == 0 {
		return axes, layers
	}

	n := float64(len(history))
	for _, a := range schema.Axes() {
		var sum float64
		for _, r := range history {
			sum += r.AxisWeights[a]
		}
		axes[a] = math.Tanh(sum / n)
	}
	for _, l := range schema.Layers() {
		var sum float64
		for _, r := range history {
			sum += r.LayerWeights[l]
		}
		layers[l] = math.Tanh(sum / n)
	}
	return axes, layers
}

// #endregion

// #region contributions

// AxisContributions returns the weights actually present for one axis across
// the history, in arrival order. Responses that do not weight the axis are
// skipped, not zero-filled.
func AxisContributions(history []schema.WeightedResponse, a schema.Axis) []float64 {
	var out []float64
	for _, r := range history {
		if v, ok := r.AxisWeights[a]; ok {
			out = append(out, v)
		}
	}
	return out
}

// LayerContributions returns the weights actually present for one layer
// across the history, in arrival order.
func LayerContributions(history []schema.WeightedResponse, l schema.Layer) []float64 {
	var out []float64
	for _, r := range history {
		if v, ok := r.LayerWeights[l]; ok {
			out = append(out, v)
		}
	}
	return out
}

// #endregion

// #region contribution-stats

// Variance is the population variance of a contribution list. Fewer than two
// values carry no spread: 0.
func Variance(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(vals))
}

// Std is the population standard deviation of a contribution list.
func Std(vals []float64) float64 {
	return math.Sqrt(Variance(vals))
}

// #endregion
