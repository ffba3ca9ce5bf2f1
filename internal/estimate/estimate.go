package estimate

import (
	"math"
	"sort"

	"github.com/psycheos/screening-engine/internal/schema"
	"github.com/psycheos/screening-engine/internal/scoring"
)

// #region config

// Config holds the estimator thresholds.
type Config struct {
	AmbiguityThreshold float64 // |cell| below this is unresolved
	ConflictThreshold  float64 // minority sign fraction at or above this marks a contested pair
	WeakAxisThreshold  float64 // |axis score| at or below this is weak signal
	StabilityStdRef    float64 // std normalization reference for the dispersion signal
	TopN               int     // dominant cell count
}

// DefaultConfig returns the calibrated estimator thresholds.
func DefaultConfig() Config {
	return Config{
		AmbiguityThreshold: 0.1,
		ConflictThreshold:  0.25,
		WeakAxisThreshold:  0.2,
		StabilityStdRef:    0.5,
		TopN:               3,
	}
}

// #endregion

// #region confidence

// Confidence derives the scalar confidence from three uncertainty signals,
// each normalized to [0,1] and averaged with equal weight:
//   - dispersion: average per-axis standard deviation of present
//     contributions, against the std reference;
//   - ambiguity: the larger of sign-conflicted keys over the 9 axes+layers
//     and the supplied ambiguity-zone count over the 20 cells;
//   - weak signal: fraction of axes whose magnitude stays at or below the
//     low-amplitude threshold.
//
// confidence = clamp(1 - mean of the three). Empty history is 0 by
// definition: no evidence, no confidence.
func Confidence(history []schema.WeightedResponse, axes schema.AxisVector, ambiguityCount int, cfg Config) float64 {
	if len(history) == 0 {
		return 0
	}

	// (a) dispersion
	var stdSum float64
	counted := 0
	for _, a := range schema.Axes() {
		c := scoring.AxisContributions(history, a)
		if len(c) == 0 {
			continue
		}
		stdSum += scoring.Std(c)
		counted++
	}
	avgStd := 0.0
	if counted > 0 {
		avgStd = stdSum / float64(counted)
	}
	dispersion := clamp01(avgStd / cfg.StabilityStdRef)

	// (b) ambiguity: sign conflicts across all 9 keys vs flagged zones
	conflicted := 0
	for _, a := range schema.Axes() {
		if ConflictFraction(scoring.AxisContributions(history, a)) > 0 {
			conflicted++
		}
	}
	for _, l := range schema.Layers() {
		if ConflictFraction(scoring.LayerContributions(history, l)) > 0 {
			conflicted++
		}
	}
	ambiguity := math.Max(float64(conflicted)/9.0, float64(ambiguityCount)/20.0)

	// (c) weak signal
	weak := 0
	for _, a := range schema.Axes() {
		if math.Abs(axes[a]) <= cfg.WeakAxisThreshold {
			weak++
		}
	}
	weakSignal := float64(weak) / float64(len(schema.Axes()))

	uncertainty := (dispersion + ambiguity + weakSignal) / 3.0
	return clamp01(1 - uncertainty)
}

// #endregion

// #region ambiguity-zones

// AmbiguityZones flags the diagnostic cells the current evidence does not
// resolve: amplitude below the threshold, or contributions on both the axis
// and the layer disagreeing in sign at or beyond the conflict fraction.
// Returned as axis-first node keys in canonical axis-major order, recomputed
// fresh each call. The confidence input is part of the estimator contract;
// the current thresholds do not modulate on it.
func AmbiguityZones(history []schema.WeightedResponse, axes schema.AxisVector, layers schema.LayerVector, tension schema.TensionMatrix, confidence float64, cfg Config) []string {
	_ = confidence

	axisConflict := make(map[schema.Axis]float64, len(schema.Axes()))
	for _, a := range schema.Axes() {
		axisConflict[a] = ConflictFraction(scoring.AxisContributions(history, a))
	}
	layerConflict := make(map[schema.Layer]float64, len(schema.Layers()))
	for _, l := range schema.Layers() {
		layerConflict[l] = ConflictFraction(scoring.LayerContributions(history, l))
	}

	var zones []string
	for _, a := range schema.Axes() {
		for _, l := range schema.Layers() {
			cell := tension[schema.CellKey(l, a)]
			lowAmplitude := math.Abs(cell) < cfg.AmbiguityThreshold
			contested := axisConflict[a] >= cfg.ConflictThreshold && layerConflict[l] >= cfg.ConflictThreshold
			if lowAmplitude || contested {
				zones = append(zones, schema.NodeKey(a, l))
			}
		}
	}
	return zones
}

// ConflictFraction is the minority sign share of a contribution list:
// min(#positive, #negative) / #present. Zero weights count toward presence
// but carry no sign.
func ConflictFraction(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	pos, neg := 0, 0
	for _, v := range vals {
		switch {
		case v > 0:
			pos++
		case v < 0:
			neg++
		}
	}
	return float64(min(pos, neg)) / float64(len(vals))
}

// #endregion

// #region dominant-cells

// DominantCells ranks all 20 tension cells by |value| descending, ties broken
// by (layer, axis) ascending, and returns the first topN layer-first cell
// keys.
func DominantCells(tension schema.TensionMatrix, topN int) []string {
	keys := schema.CellKeys()
	sort.SliceStable(keys, func(i, j int) bool {
		vi := math.Abs(tension[keys[i]])
		vj := math.Abs(tension[keys[j]])
		if vi != vj {
			return vi > vj
		}
		li, ai, _ := schema.ParseCellKey(keys[i])
		lj, aj, _ := schema.ParseCellKey(keys[j])
		if li != lj {
			return schema.LayerIndex(li) < schema.LayerIndex(lj)
		}
		return schema.AxisIndex(ai) < schema.AxisIndex(aj)
	})
	if topN < 0 {
		topN = 0
	}
	if topN > len(keys) {
		topN = len(keys)
	}
	return keys[:topN]
}

// #endregion

// #region helpers

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
