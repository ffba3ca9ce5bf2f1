package schema

import (
	"fmt"
	"math"
	"strings"
)

// #region weight-vocabulary

// AllowedWeights is the closed vocabulary for answer weights. Any other value
// is a validation error.
var AllowedWeights = []float64{-0.8, -0.5, -0.3, 0, 0.3, 0.5, 0.8}

// weightTolerance absorbs float drift from JSON round-trips.
const weightTolerance = 1e-9

// ValidWeight reports whether v is in the allowed vocabulary.
func ValidWeight(v float64) bool {
	for _, w := range AllowedWeights {
		if math.Abs(v-w) <= weightTolerance {
			return true
		}
	}
	return false
}

// #endregion

// #region validation-error

// ValidationError carries every violation found in a single response, so the
// caller sees the full list rather than the first failure.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "invalid response: " + strings.Join(e.Reasons, "; ")
}

// NewValidationError builds a ValidationError from the given reasons.
func NewValidationError(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

// #endregion

// #region validate-response

// ValidateResponse checks a response against the weight schema: phase range,
// known keys, in-vocabulary values, and at least one weight present. Returns
// nil or a *ValidationError listing every violation.
func ValidateResponse(r WeightedResponse) error {
	var reasons []string

	if r.Phase < 1 || r.Phase > 3 {
		reasons = append(reasons, fmt.Sprintf("phase %d out of range [1,3]", r.Phase))
	}
	if r.ScreenID == "" {
		reasons = append(reasons, "empty screen_id")
	}
	if len(r.AxisWeights) == 0 && len(r.LayerWeights) == 0 {
		reasons = append(reasons, "no axis or layer weights")
	}

	for _, a := range Axes() {
		v, ok := r.AxisWeights[a]
		if !ok {
			continue
		}
		if !ValidWeight(v) {
			reasons = append(reasons, fmt.Sprintf("axis %s weight %g not in allowed set", a, v))
		}
	}
	for k := range r.AxisWeights {
		if !validAxis(k) {
			reasons = append(reasons, fmt.Sprintf("unknown axis key %q", string(k)))
		}
	}

	for _, l := range Layers() {
		v, ok := r.LayerWeights[l]
		if !ok {
			continue
		}
		if !ValidWeight(v) {
			reasons = append(reasons, fmt.Sprintf("layer %s weight %g not in allowed set", l, v))
		}
	}
	for k := range r.LayerWeights {
		if !validLayer(k) {
			reasons = append(reasons, fmt.Sprintf("unknown layer key %q", string(k)))
		}
	}

	if len(reasons) == 0 {
		return nil
	}
	return NewValidationError(reasons...)
}

// #endregion
