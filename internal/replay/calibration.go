package replay

import _ "embed"

//go:embed calibration.json
var calibrationJSON []byte

// Calibration returns the built-in reference fixture: a fourteen turn
// session walked through all three phases with every intermediate
// confidence value and probe choice pinned. Replaying it verifies that
// the scoring math and the phase transitions still produce the recorded
// trajectory.
func Calibration() (*Fixture, error) {
	return ParseFixture(calibrationJSON)
}
