// Package environment models the light conditions driving the simulated
// plant: a deterministic day cycle with a layered cloud perturbation, plus
// an optional live sun-position source for the panel-tilt target angle.
package environment

import "math"

// DayLengthSec is the length of one simulated day.
const DayLengthSec = 360.0

// Irradiance bounds of the simulated sky, in lux.
const (
	MinLux = 10000
	MaxLux = 80000
)

// Sample is the light condition at one instant of simulated time.
type Sample struct {
	Lux         int     `json:"lux"`           // irradiance in [MinLux, MaxLux]
	SunAngleDeg float64 `json:"sun_angle_deg"` // sun elevation in [0, 60]
}

// SampleAt returns the environment at simulated time tSec. It is a pure
// function of time: identical inputs always produce identical samples,
// which the reproducibility tests rely on.
func SampleAt(tSec float64) Sample {
	phase := math.Mod(tSec, DayLengthSec) / DayLengthSec
	if phase < 0 {
		phase += 1
	}

	base := math.Max(0, math.Sin(phase*2*math.Pi))

	// Two incommensurate sinusoids stand in for passing cloud cover.
	cloud := 0.15*math.Sin(phase*2*math.Pi*2.4+1.7) +
		0.08*math.Sin(phase*2*math.Pi*4.1+0.3)

	clamped := base + cloud
	if clamped < 0 {
		clamped = 0
	} else if clamped > 1 {
		clamped = 1
	}

	return Sample{
		Lux:         int(math.Round(MinLux + clamped*(MaxLux-MinLux))),
		SunAngleDeg: math.Max(0, math.Sin(phase*math.Pi)*60),
	}
}
