// Package plant models the photovoltaic-electrolysis chain: how favorable
// the current panel tilt and electrolyte concentration are under the current
// sun, the instantaneous hydrogen production rate, and the integration of
// that rate into cumulative yield.
package plant

import "math"

// Controllable parameter domains.
const (
	MaxTiltDeg        = 60.0
	MaxElectrolytePct = 2.0
)

// Production model constants.
const (
	// RateScale converts lux scaled by both efficiencies into a volume/min rate.
	RateScale = 0.00035
	// NoiseAmplitude bounds the symmetric perturbation added to each rate sample.
	NoiseAmplitude = 0.25
	// ElectrolytePeakPct is the concentration at which electrolysis efficiency is exactly 1.
	ElectrolytePeakPct = 0.85
	// ElectrolyteFloor is the efficiency floor far from the peak concentration.
	ElectrolyteFloor = 0.2
)

// Rand is the random source used for the production noise term. *math/rand.Rand
// satisfies it; tests substitute fixed sequences.
type Rand interface {
	Float64() float64
}

// Configuration is the controllable parameter vector of the plant.
type Configuration struct {
	TiltDeg        float64 `json:"tilt_deg"`
	ElectrolytePct float64 `json:"electrolyte_pct"`
}

// Clamp returns the configuration with both parameters forced into their
// domains. Out-of-range inputs are clamped, never rejected.
func (c Configuration) Clamp() Configuration {
	return Configuration{
		TiltDeg:        clamp(c.TiltDeg, 0, MaxTiltDeg),
		ElectrolytePct: clamp(c.ElectrolytePct, 0, MaxElectrolytePct),
	}
}

// TiltEfficiency is 1.0 when the panel tilt matches the sun elevation and
// falls off with the cosine of the angular difference, reaching 0 at a 90
// degree mismatch and staying there beyond.
func TiltEfficiency(tiltDeg, sunAngleDeg float64) float64 {
	diff := math.Abs(tiltDeg - sunAngleDeg)
	return clamp(math.Cos(diff*math.Pi/180), 0, 1)
}

// ElectrolyteEfficiency is a Gaussian bump over concentration: exactly 1.0
// at ElectrolytePeakPct, decaying toward ElectrolyteFloor at the domain edges.
func ElectrolyteEfficiency(pct float64) float64 {
	z := (pct - ElectrolytePeakPct) / 0.45
	return clamp(ElectrolyteFloor+0.8*math.Exp(-0.5*z*z), 0, 1)
}

// Rate returns the instantaneous production rate in volume/min for the given
// irradiance and efficiency factors, including a bounded symmetric noise term
// drawn from rng. Never negative.
func Rate(lux int, tiltEff, elecEff float64, rng Rand) float64 {
	noise := (rng.Float64()*2 - 1) * NoiseAmplitude
	return math.Max(0, float64(lux)*tiltEff*elecEff*RateScale+noise)
}

// Accumulate adds rate (volume/min) held for dtSec seconds onto total.
// Non-decreasing for non-negative rate and dtSec, which callers guarantee.
func Accumulate(total, rate, dtSec float64) float64 {
	return total + rate*dtSec/60
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
