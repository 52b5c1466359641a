package plant

import (
	"math"
	"math/rand"
	"testing"
)

// fixedRand feeds a predetermined sequence of values into the noise term.
type fixedRand struct {
	values []float64
	next   int
}

func (f *fixedRand) Float64() float64 {
	v := f.values[f.next%len(f.values)]
	f.next++
	return v
}

func TestTiltEfficiency(t *testing.T) {
	tests := []struct {
		name     string
		tiltDeg  float64
		sunDeg   float64
		expected float64
	}{
		{
			name:     "perfect alignment at zero",
			tiltDeg:  0,
			sunDeg:   0,
			expected: 1.0,
		},
		{
			name:     "perfect alignment mid-range",
			tiltDeg:  37.5,
			sunDeg:   37.5,
			expected: 1.0,
		},
		{
			name:    "mid-morning sun with near tilt",
			tiltDeg: 42,
			sunDeg:  42.4264,
			// cos(0.4264 deg) = 0.99997
			expected: 0.99997,
		},
		{
			name:    "sixty degree mismatch",
			tiltDeg: 60,
			sunDeg:  0,
			// cos(60 deg) = 0.5
			expected: 0.5,
		},
		{
			name:     "ninety degree mismatch clamps to zero",
			tiltDeg:  90,
			sunDeg:   0,
			expected: 0,
		},
		{
			name:     "beyond ninety stays zero",
			tiltDeg:  120,
			sunDeg:   0,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TiltEfficiency(tt.tiltDeg, tt.sunDeg)
			if math.Abs(got-tt.expected) > 1e-4 {
				t.Errorf("TiltEfficiency(%v, %v) = %v, want %v", tt.tiltDeg, tt.sunDeg, got, tt.expected)
			}
		})
	}
}

func TestTiltEfficiencyMonotone(t *testing.T) {
	// Efficiency must not increase as the angular difference grows over [0, 90].
	prev := TiltEfficiency(0, 0)
	for diff := 1.0; diff <= 90; diff++ {
		cur := TiltEfficiency(diff, 0)
		if cur > prev {
			t.Fatalf("TiltEfficiency increased at diff=%v: %v > %v", diff, cur, prev)
		}
		prev = cur
	}
}

func TestElectrolyteEfficiencyPeak(t *testing.T) {
	// The Gaussian term is exp(0) = 1 at the peak, so efficiency is exactly
	// 0.2 + 0.8 = 1.0 there.
	if got := ElectrolyteEfficiency(ElectrolytePeakPct); got != 1.0 {
		t.Errorf("ElectrolyteEfficiency(%v) = %v, want exactly 1.0", ElectrolytePeakPct, got)
	}

	// Global maximum over the whole domain.
	for pct := 0.0; pct <= MaxElectrolytePct; pct += 0.01 {
		if got := ElectrolyteEfficiency(pct); got > 1.0 {
			t.Fatalf("ElectrolyteEfficiency(%v) = %v, exceeds the peak", pct, got)
		}
	}
}

func TestElectrolyteEfficiencyBounds(t *testing.T) {
	tests := []struct {
		name string
		pct  float64
		min  float64
		max  float64
	}{
		{name: "domain low edge", pct: 0, min: ElectrolyteFloor, max: 0.4},
		{name: "domain high edge", pct: 2, min: ElectrolyteFloor, max: 0.4},
		{name: "near peak", pct: 0.9, min: 0.95, max: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ElectrolyteEfficiency(tt.pct)
			if got < tt.min || got > tt.max {
				t.Errorf("ElectrolyteEfficiency(%v) = %v, want within [%v, %v]", tt.pct, got, tt.min, tt.max)
			}
		})
	}
}

func TestRateNeverNegative(t *testing.T) {
	// Zero irradiance contribution with the noise term at its negative
	// extreme: rng.Float64() = 0 maps to noise = -0.25.
	rng := &fixedRand{values: []float64{0}}

	if got := Rate(10000, 0, 0.2, rng); got != 0 {
		t.Errorf("Rate with max negative noise = %v, want clamped to 0", got)
	}
}

func TestRateDeterministicWithInjectedNoise(t *testing.T) {
	// rng.Float64() = 0.5 maps to noise = 0, so the rate is the bare product:
	// 60000 * 0.8 * 1.0 * 0.00035 = 16.8
	rng := &fixedRand{values: []float64{0.5}}

	got := Rate(60000, 0.8, 1.0, rng)
	if math.Abs(got-16.8) > 1e-9 {
		t.Errorf("Rate(60000, 0.8, 1.0) with zero noise = %v, want 16.8", got)
	}
}

func TestRateNoiseBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := float64(50000) * 1.0 * 1.0 * RateScale

	for i := 0; i < 10000; i++ {
		got := Rate(50000, 1.0, 1.0, rng)
		if math.Abs(got-base) > NoiseAmplitude {
			t.Fatalf("Rate noise out of bounds: |%v - %v| > %v", got, base, NoiseAmplitude)
		}
	}
}

func TestAccumulateMonotone(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	total := 0.0

	for i := 0; i < 1000; i++ {
		rate := rng.Float64() * 30
		dt := rng.Float64() * 2

		next := Accumulate(total, rate, dt)
		if next < total {
			t.Fatalf("Accumulate decreased: %v -> %v (rate=%v dt=%v)", total, next, rate, dt)
		}
		total = next
	}
}

func TestAccumulateUnits(t *testing.T) {
	// 12 volume/min held for 30 s contributes 6 volume.
	if got := Accumulate(10, 12, 30); math.Abs(got-16) > 1e-12 {
		t.Errorf("Accumulate(10, 12, 30) = %v, want 16", got)
	}
}

func TestConfigurationClamp(t *testing.T) {
	tests := []struct {
		name     string
		in       Configuration
		expected Configuration
	}{
		{
			name:     "in range untouched",
			in:       Configuration{TiltDeg: 30, ElectrolytePct: 1.2},
			expected: Configuration{TiltDeg: 30, ElectrolytePct: 1.2},
		},
		{
			name:     "both low",
			in:       Configuration{TiltDeg: -10, ElectrolytePct: -0.5},
			expected: Configuration{TiltDeg: 0, ElectrolytePct: 0},
		},
		{
			name:     "both high",
			in:       Configuration{TiltDeg: 75, ElectrolytePct: 2.6},
			expected: Configuration{TiltDeg: 60, ElectrolytePct: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Clamp(); got != tt.expected {
				t.Errorf("Clamp(%+v) = %+v, want %+v", tt.in, got, tt.expected)
			}
		})
	}
}
