package analysis

import (
	"fmt"
	"strings"

	"github.com/psycheos/screening-engine/internal/schema"
	"github.com/psycheos/screening-engine/internal/scoring"
)

// #region config

// Config holds the rigidity thresholds.
type Config struct {
	PolarizationThreshold float64 // |axis score| above this counts as polarized
	VarianceFloor         float64 // average variance at or below this → low_variance 1.0
	VarianceCeiling       float64 // average variance at or above this → low_variance 0.0
}

// DefaultConfig returns the calibrated rigidity thresholds.
func DefaultConfig() Config {
	return Config{
		PolarizationThreshold: 0.7,
		VarianceFloor:         0.15,
		VarianceCeiling:       0.60,
	}
}

// #endregion

// #region composite-weights

// Fixed convex weights of the rigidity composite. They sum to 1 and are not
// runtime-configurable.
const (
	WeightPolarization = 0.3
	WeightLowVariance  = 0.3
	WeightRepetition   = 0.4
)

// #endregion

// #region tension

// Tension computes the 20-cell layer×axis product matrix: each cell is
// layer score times axis score, sign carrying directional agreement.
func Tension(axes schema.AxisVector, layers schema.LayerVector) schema.TensionMatrix {
	m := make(schema.TensionMatrix, 20)
	for _, l := range schema.Layers() {
		for _, a := range schema.Axes() {
			m[schema.CellKey(l, a)] = layers[l] * axes[a]
		}
	}
	return m
}

// #endregion

// #region rigidity

// Rigidity computes the composite inflexibility index from the history and
// the current axis vector:
//   - polarization: fraction of axes with |score| above the threshold;
//   - low_variance: linear ramp on the average per-axis population variance
//     of present contributions, 1.0 at or below the floor and 0.0 at or
//     above the ceiling (tight clustering reads as inflexibility);
//   - strategy_repetition: fraction of responses whose weight pattern exactly
//     matches an earlier response in the session.
//
// Empty history yields the zero index.
func Rigidity(history []schema.WeightedResponse, axes schema.AxisVector, cfg Config) schema.RigidityIndex {
	if len(history) == 0 {
		return schema.RigidityIndex{}
	}

	// 1. Polarization
	polarized := 0
	for _, a := range schema.Axes() {
		if abs(axes[a]) > cfg.PolarizationThreshold {
			polarized++
		}
	}
	polarization := float64(polarized) / float64(len(schema.Axes()))

	// 2. Low variance
	lowVariance := lowVarianceScore(history, cfg)

	// 3. Strategy repetition
	repetition := repetitionScore(history)

	total := WeightPolarization*polarization +
		WeightLowVariance*lowVariance +
		WeightRepetition*repetition

	return schema.RigidityIndex{
		Polarization:       polarization,
		LowVariance:        lowVariance,
		StrategyRepetition: repetition,
		Total:              total,
	}
}

func lowVarianceScore(history []schema.WeightedResponse, cfg Config) float64 {
	var sum float64
	counted := 0
	for _, a := range schema.Axes() {
		c := scoring.AxisContributions(history, a)
		if len(c) == 0 {
			continue
		}
		sum += scoring.Variance(c)
		counted++
	}
	avg := 0.0
	if counted > 0 {
		avg = sum / float64(counted)
	}
	score := (cfg.VarianceCeiling - avg) / (cfg.VarianceCeiling - cfg.VarianceFloor)
	return clamp01(score)
}

func repetitionScore(history []schema.WeightedResponse) float64 {
	seen := make(map[string]bool, len(history))
	repeats := 0
	for _, r := range history {
		key := PatternKey(r)
		if seen[key] {
			repeats++
		}
		seen[key] = true
	}
	return float64(repeats) / float64(len(history))
}

// #endregion

// #region pattern-key

// PatternKey canonicalizes a response's weight pattern: keys in schema order,
// values at vocabulary precision. Two responses repeat a strategy iff their
// pattern keys are equal.
func PatternKey(r schema.WeightedResponse) string {
	parts := make([]string, 0, len(r.AxisWeights)+len(r.LayerWeights)+1)
	for _, a := range schema.Axes() {
		if v, ok := r.AxisWeights[a]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.2f", a, v))
		}
	}
	parts = append(parts, "/")
	for _, l := range schema.Layers() {
		if v, ok := r.LayerWeights[l]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.2f", l, v))
		}
	}
	return strings.Join(parts, " ")
}

// #endregion

// #region helpers

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion
