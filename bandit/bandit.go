// Package bandit implements the epsilon-greedy learner that searches the
// discretized (tilt, electrolyte) space for the configuration with the best
// observed production rate.
package bandit

import (
	"sort"

	"github.com/devskill-org/hydrosim/plant"
)

// Discretization lattice: tilt in multiples of TiltStepDeg over [0, 60],
// electrolyte in multiples of ElectrolyteStepPct over [0, 2].
const (
	TiltStepDeg        = 5
	ElectrolyteStepPct = 0.1

	tiltBinCount        = 13 // 0, 5, ..., 60
	electrolyteBinCount = 21 // 0.0, 0.1, ..., 2.0
)

// Epsilon and decision cadence domains.
const (
	MinDecisionCadenceSec = 2.0
	MaxDecisionCadenceSec = 30.0
)

// Rand is the random source for exploration. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Bin is the canonical discretized representative of a plant configuration,
// used directly as the learner's memory key. Electrolyte values are exact
// multiples of 0.1 produced by Discretize, so value equality is reliable.
type Bin struct {
	TiltDeg        int     `json:"tilt_deg"`
	ElectrolytePct float64 `json:"electrolyte_pct"`
}

// Configuration converts the bin back into a plant configuration.
func (b Bin) Configuration() plant.Configuration {
	return plant.Configuration{TiltDeg: float64(b.TiltDeg), ElectrolytePct: b.ElectrolytePct}
}

// less orders bins by ascending tilt, then ascending electrolyte. This is
// the documented tie-break order for exploitation.
func (b Bin) less(other Bin) bool {
	if b.TiltDeg != other.TiltDeg {
		return b.TiltDeg < other.TiltDeg
	}
	return b.ElectrolytePct < other.ElectrolytePct
}

// Discretize maps any configuration to its bin: tilt rounded to the nearest
// multiple of 5 degrees, electrolyte to the nearest 0.1, both clamped into
// domain. Total and idempotent.
func Discretize(config plant.Configuration) Bin {
	config = config.Clamp()

	tiltIdx := int(config.TiltDeg/TiltStepDeg + 0.5)
	if tiltIdx >= tiltBinCount {
		tiltIdx = tiltBinCount - 1
	}

	elecIdx := int(config.ElectrolytePct/ElectrolyteStepPct + 0.5)
	if elecIdx >= electrolyteBinCount {
		elecIdx = electrolyteBinCount - 1
	}

	return Bin{
		TiltDeg:        tiltIdx * TiltStepDeg,
		ElectrolytePct: float64(elecIdx) * ElectrolyteStepPct,
	}
}

// RewardRecord holds the incremental statistics for one bin. No raw reward
// history is retained.
type RewardRecord struct {
	Count          int     `json:"count"`
	RunningAverage float64 `json:"running_average"`
}

// BestObservation is the single best raw reward ever recorded, together with
// the bin it was recorded under. It tracks raw single-sample rewards, not
// bin averages: a lucky noisy sample wins over a better average and ties
// keep the earlier observation.
type BestObservation struct {
	Bin    Bin     `json:"bin"`
	Reward float64 `json:"reward"`
}

// Learner maintains per-bin running-average reward statistics and implements
// epsilon-greedy configuration selection. It is not safe for concurrent use;
// the controller serializes all access.
type Learner struct {
	epsilon            float64
	decisionCadenceSec float64

	memory map[Bin]RewardRecord
	best   *BestObservation
}

// NewLearner creates a learner with the given exploration rate and decision
// cadence; both are clamped into domain.
func NewLearner(epsilon, decisionCadenceSec float64) *Learner {
	l := &Learner{memory: make(map[Bin]RewardRecord)}
	l.SetEpsilon(epsilon)
	l.SetDecisionCadence(decisionCadenceSec)
	return l
}

// SetEpsilon updates the exploration probability, clamped into [0, 1].
func (l *Learner) SetEpsilon(epsilon float64) {
	if epsilon < 0 {
		epsilon = 0
	} else if epsilon > 1 {
		epsilon = 1
	}
	l.epsilon = epsilon
}

// Epsilon returns the current exploration probability.
func (l *Learner) Epsilon() float64 { return l.epsilon }

// SetDecisionCadence updates the minimum interval between applied decisions,
// clamped into [MinDecisionCadenceSec, MaxDecisionCadenceSec]. The learner
// only stores the value; cadence gating is the controller's job.
func (l *Learner) SetDecisionCadence(sec float64) {
	if sec < MinDecisionCadenceSec {
		sec = MinDecisionCadenceSec
	} else if sec > MaxDecisionCadenceSec {
		sec = MaxDecisionCadenceSec
	}
	l.decisionCadenceSec = sec
}

// DecisionCadence returns the minimum seconds between applied decisions.
func (l *Learner) DecisionCadence() float64 { return l.decisionCadenceSec }

// Record folds one raw reward observation into the bin statistics for the
// given configuration and updates the best observation on strict improvement.
func (l *Learner) Record(config plant.Configuration, rawReward float64) {
	bin := Discretize(config)

	rec := l.memory[bin]
	rec.RunningAverage += (rawReward - rec.RunningAverage) / float64(rec.Count+1)
	rec.Count++
	l.memory[bin] = rec

	if l.best == nil || rawReward > l.best.Reward {
		l.best = &BestObservation{Bin: bin, Reward: rawReward}
	}
}

// Suggest returns the next configuration to try. With probability epsilon,
// or always while memory is empty, it explores a uniformly random lattice
// bin; otherwise it exploits the bin with the highest running average, ties
// broken by ascending (tilt, electrolyte).
func (l *Learner) Suggest(rng Rand) plant.Configuration {
	if len(l.memory) == 0 || rng.Float64() < l.epsilon {
		return l.randomBin(rng).Configuration()
	}
	return l.bestAverageBin().Configuration()
}

// randomBin draws uniformly on the lattice. Generating indices and scaling
// by the step keeps the result in domain even at the edges, and the final
// Discretize guards the invariant against any rounding drift.
func (l *Learner) randomBin(rng Rand) Bin {
	bin := Bin{
		TiltDeg:        rng.Intn(tiltBinCount) * TiltStepDeg,
		ElectrolytePct: float64(rng.Intn(electrolyteBinCount)) * ElectrolyteStepPct,
	}
	return Discretize(bin.Configuration())
}

// bestAverageBin scans memory for the maximum running average. Map iteration
// order is randomized, so candidates are sorted into the documented
// tie-break order before the scan.
func (l *Learner) bestAverageBin() Bin {
	bins := make([]Bin, 0, len(l.memory))
	for bin := range l.memory {
		bins = append(bins, bin)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].less(bins[j]) })

	best := bins[0]
	bestAvg := l.memory[best].RunningAverage
	for _, bin := range bins[1:] {
		if avg := l.memory[bin].RunningAverage; avg > bestAvg {
			best = bin
			bestAvg = avg
		}
	}
	return best
}

// Best returns the best raw observation so far, or nil before any reward has
// been recorded.
func (l *Learner) Best() *BestObservation {
	if l.best == nil {
		return nil
	}
	b := *l.best
	return &b
}

// Memory returns a copy of the per-bin statistics.
func (l *Learner) Memory() map[Bin]RewardRecord {
	out := make(map[Bin]RewardRecord, len(l.memory))
	for bin, rec := range l.memory {
		out[bin] = rec
	}
	return out
}

// BinCount returns the number of bins with at least one observation.
func (l *Learner) BinCount() int { return len(l.memory) }

// ObservationCount returns the total number of recorded rewards.
func (l *Learner) ObservationCount() int {
	total := 0
	for _, rec := range l.memory {
		total += rec.Count
	}
	return total
}

// Reset clears all bin statistics and the best observation. Epsilon and
// cadence settings survive a reset.
func (l *Learner) Reset() {
	l.memory = make(map[Bin]RewardRecord)
	l.best = nil
}
