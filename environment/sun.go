package environment

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// LiveSunAngle returns the real solar elevation in degrees at the given wall
// clock time and coordinates, clamped into [0, 60] so it can replace the
// synthetic sun angle as the tilt-efficiency target. Below the horizon the
// angle is 0.
func LiveSunAngle(t time.Time, latitude, longitude float64) float64 {
	pos := suncalc.GetPosition(t, latitude, longitude)
	altDeg := pos.Altitude * 180 / math.Pi
	if altDeg < 0 {
		return 0
	}
	if altDeg > 60 {
		return 60
	}
	return altDeg
}
