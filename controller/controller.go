// Package controller owns the simulation loop: it advances the simulated
// clock on external ticks, runs the environment -> efficiency -> production
// -> integration pipeline, feeds reward observations into the learner at a
// fixed cadence, and applies the learner's suggestions back onto the plant
// configuration.
package controller

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/devskill-org/hydrosim/bandit"
	"github.com/devskill-org/hydrosim/environment"
	"github.com/devskill-org/hydrosim/plant"
	"github.com/devskill-org/hydrosim/utils"
)

// State is the lifecycle state of the simulator.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// rateWindowSize bounds the rolling window used for snapshot rate statistics.
const rateWindowSize = 120

// Rand is the random source shared by the production noise term and the
// learner's exploration. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Snapshot is the per-tick view exposed to the web server and any other
// consumer. It is a value copy; readers never share state with the tick loop.
type Snapshot struct {
	State       State   `json:"state"`
	ElapsedSec  float64 `json:"elapsed_sec"`
	Elapsed     string  `json:"elapsed"` // minutes:seconds display form
	Lux         int     `json:"lux"`
	SunAngleDeg float64 `json:"sun_angle_deg"`
	TiltEff     float64 `json:"tilt_eff"`
	ElecEff     float64 `json:"elec_eff"`
	Rate        float64 `json:"rate"`  // volume/min
	Yield       float64 `json:"yield"` // cumulative volume

	Config plant.Configuration `json:"config"`

	// Rolling statistics over recent rate samples
	RateMean   float64 `json:"rate_mean"`
	RateStdDev float64 `json:"rate_std_dev"`

	// Learner view; Best is nil until the first reward and BestChanged is
	// set only on the tick that replaced it.
	LearnerEnabled bool                    `json:"learner_enabled"`
	Epsilon        float64                 `json:"epsilon"`
	CadenceSec     float64                 `json:"cadence_sec"`
	BinCount       int                     `json:"bin_count"`
	Observations   int                     `json:"observations"`
	Best           *bandit.BestObservation `json:"best,omitempty"`
	BestChanged    bool                    `json:"best_changed"`
}

// Simulator ties the plant model, environment, and learner together behind a
// single tick-driven loop. All mutation happens inside Tick and the command
// methods; one RWMutex serializes them against snapshot readers on the web
// server and metrics goroutines.
type Simulator struct {
	config *Config
	logger *log.Logger

	mu sync.RWMutex

	state          State
	clockSec       float64
	yield          float64
	current        plant.Configuration
	learner        *bandit.Learner
	learnerEnabled bool

	lastDecisionSec float64

	// Wall-clock tick bookkeeping; the first observed delta is forced to 0
	// so an idle gap before the first tick cannot jump the clock.
	lastTickWall time.Time
	haveLastWall bool

	rng Rand

	rateWindow []float64
	snapshot   Snapshot

	samples *ProductionSamples
	history *HistoryLog

	webServer *WebServer
}

// NewSimulator creates a simulator from config. A nil logger falls back to
// log.Default().
func NewSimulator(config *Config, logger *log.Logger) *Simulator {
	if logger == nil {
		logger = log.Default()
	}

	seed := config.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Simulator{
		config:         config,
		logger:         logger,
		state:          StateStopped,
		current:        defaultConfiguration(config),
		learner:        bandit.NewLearner(config.Epsilon, config.DecisionCadenceSec),
		learnerEnabled: config.LearnerEnabled,
		rng:            rand.New(rand.NewSource(seed)),
		samples:        &ProductionSamples{},
	}

	if config.HistoryPath != "" {
		s.history = NewHistoryLog(config.HistoryPath)
	}

	s.snapshot = s.buildSnapshot(0, false)
	return s
}

// NewSimulatorWithServer creates a simulator with the web/control server
// attached (port 0 disables it).
func NewSimulatorWithServer(config *Config, logger *log.Logger) *Simulator {
	s := NewSimulator(config, logger)
	s.webServer = NewWebServer(s, config.ServerPort)
	return s
}

func defaultConfiguration(config *Config) plant.Configuration {
	return plant.Configuration{
		TiltDeg:        config.DefaultTiltDeg,
		ElectrolytePct: config.DefaultElectrolytePct,
	}.Clamp()
}

// Start moves the simulator into the running state. No-op while running.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return
	}
	s.state = StateRunning
	s.logger.Printf("Simulation started at t=%s", utils.FormatClock(s.clockSec))
}

// Pause suspends clock advancement. Only valid from the running state.
func (s *Simulator) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return
	}
	s.state = StatePaused
	s.logger.Printf("Simulation paused at t=%s", utils.FormatClock(s.clockSec))
}

// Reset returns to the stopped state and clears the clock, yield, plant
// configuration (back to configured defaults), and the learner's memory and
// best observation.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateStopped
	s.clockSec = 0
	s.yield = 0
	s.current = defaultConfiguration(s.config)
	s.learner.Reset()
	s.lastDecisionSec = 0
	s.haveLastWall = false
	s.rateWindow = s.rateWindow[:0]
	s.snapshot = s.buildSnapshot(0, false)
	s.logger.Printf("Simulation reset")
}

// TickAt derives the tick delta from a monotonically non-decreasing wall
// clock and advances the simulation. The first call after construction or
// Reset contributes a zero delta.
func (s *Simulator) TickAt(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	dt := 0.0
	if s.haveLastWall {
		dt = now.Sub(s.lastTickWall).Seconds()
	}
	s.lastTickWall = now
	s.haveLastWall = true

	return s.tickLocked(dt)
}

// Tick advances the simulation by dtSec seconds and returns the resulting
// snapshot. Negative deltas are clamped to 0. The pipeline order within a
// tick is fixed: environment -> efficiency -> production -> integration ->
// (conditional) record -> (conditional) suggest.
func (s *Simulator) Tick(dtSec float64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tickLocked(dtSec)
}

func (s *Simulator) tickLocked(dtSec float64) Snapshot {
	if dtSec < 0 {
		dtSec = 0
	}

	if s.state != StateRunning {
		// Refresh the display snapshot at the frozen clock without
		// advancing any state.
		s.snapshot = s.buildSnapshot(s.computeRate(s.environmentNow()), false)
		return s.snapshot
	}

	prevWhole := int(s.clockSec)
	s.clockSec += dtSec

	env := s.environmentNow()
	rate := s.computeRate(env)
	s.yield = plant.Accumulate(s.yield, rate, dtSec)

	s.pushRate(rate)
	s.samples.Add(rate, env.Lux, s.clockSec)

	bestChanged := false
	if int(s.clockSec) != prevWhole {
		before := s.learner.Best()
		s.learner.Record(s.current, rate)
		after := s.learner.Best()
		bestChanged = before == nil || after.Reward != before.Reward || after.Bin != before.Bin
	}

	if s.learnerEnabled && s.clockSec-s.lastDecisionSec >= s.learner.DecisionCadence() {
		next := s.learner.Suggest(s.rng).Clamp()
		if next != s.current {
			s.logger.Printf("Learner decision at t=%s: tilt %.0f -> %.0f deg, electrolyte %.1f -> %.1f%%",
				utils.FormatClock(s.clockSec), s.current.TiltDeg, next.TiltDeg,
				s.current.ElectrolytePct, next.ElectrolytePct)
		}
		s.current = next
		s.lastDecisionSec = s.clockSec
	}

	s.snapshot = s.buildSnapshot(rate, bestChanged)
	return s.snapshot
}

// environmentNow samples the environment at the current clock, substituting
// the live solar elevation when local-sun mode is on.
func (s *Simulator) environmentNow() environment.Sample {
	env := environment.SampleAt(s.clockSec)
	if s.config.UseLocalSun {
		env.SunAngleDeg = environment.LiveSunAngle(time.Now(), s.config.Latitude, s.config.Longitude)
	}
	return env
}

func (s *Simulator) computeRate(env environment.Sample) float64 {
	tiltEff := plant.TiltEfficiency(s.current.TiltDeg, env.SunAngleDeg)
	elecEff := plant.ElectrolyteEfficiency(s.current.ElectrolytePct)
	return plant.Rate(env.Lux, tiltEff, elecEff, s.rng)
}

func (s *Simulator) pushRate(rate float64) {
	s.rateWindow = append(s.rateWindow, rate)
	if len(s.rateWindow) > rateWindowSize {
		s.rateWindow = s.rateWindow[len(s.rateWindow)-rateWindowSize:]
	}
}

// buildSnapshot assembles the exposed view at the current clock. Callers
// hold the write lock.
func (s *Simulator) buildSnapshot(rate float64, bestChanged bool) Snapshot {
	env := s.environmentNow()

	snap := Snapshot{
		State:          s.state,
		ElapsedSec:     s.clockSec,
		Elapsed:        utils.FormatClock(s.clockSec),
		Lux:            env.Lux,
		SunAngleDeg:    env.SunAngleDeg,
		TiltEff:        plant.TiltEfficiency(s.current.TiltDeg, env.SunAngleDeg),
		ElecEff:        plant.ElectrolyteEfficiency(s.current.ElectrolytePct),
		Rate:           rate,
		Yield:          s.yield,
		Config:         s.current,
		LearnerEnabled: s.learnerEnabled,
		Epsilon:        s.learner.Epsilon(),
		CadenceSec:     s.learner.DecisionCadence(),
		BinCount:       s.learner.BinCount(),
		Observations:   s.learner.ObservationCount(),
		Best:           s.learner.Best(),
		BestChanged:    bestChanged,
	}

	if len(s.rateWindow) > 0 {
		snap.RateMean = stat.Mean(s.rateWindow, nil)
		if len(s.rateWindow) > 1 {
			sd := stat.StdDev(s.rateWindow, nil)
			if !math.IsNaN(sd) {
				snap.RateStdDev = sd
			}
		}
	}

	return snap
}

// Snapshot returns the most recent snapshot.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// ApplyConfiguration replaces the plant configuration, clamped into domain.
func (s *Simulator) ApplyConfiguration(config plant.Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = config.Clamp()
}

// Configuration returns the current plant configuration.
func (s *Simulator) Configuration() plant.Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetEpsilon updates the learner's exploration probability (clamped [0, 1]).
func (s *Simulator) SetEpsilon(epsilon float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learner.SetEpsilon(epsilon)
}

// SetDecisionCadence updates the decision cadence (clamped [2, 30] seconds).
func (s *Simulator) SetDecisionCadence(sec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learner.SetDecisionCadence(sec)
}

// SetLearnerEnabled toggles automatic application of learner suggestions.
func (s *Simulator) SetLearnerEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learnerEnabled = enabled
}

// State returns the current lifecycle state.
func (s *Simulator) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Yield returns the cumulative produced volume.
func (s *Simulator) Yield() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.yield
}

// Clock returns the elapsed simulated time in seconds.
func (s *Simulator) Clock() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clockSec
}

// Learner exposes the learner for status reads.
func (s *Simulator) Learner() *bandit.Learner {
	return s.learner
}

// GetConfig returns the simulator's static configuration.
func (s *Simulator) GetConfig() *Config {
	return s.config
}

// periodicTask represents a task that runs periodically with an optional
// initial delay.
type periodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func()
}

// run executes the periodic task in a loop, respecting the initial delay and
// context cancellation.
func (pt *periodicTask) run(ctx context.Context, logger *log.Logger) {
	if pt.initialDelay > 0 {
		select {
		case <-time.After(pt.initialDelay):
		case <-ctx.Done():
			logger.Printf("[%s] Stopped during initial delay", pt.name)
			return
		}
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] Stopped due to context cancellation", pt.name)
			return
		}
	}
}

// Run drives the simulator from the wall clock until the context is
// cancelled: the tick task advances the simulation, the flush task drains
// period metrics into the configured sinks. The web server, when configured,
// is started alongside and shut down on exit.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.webServer.Start(); err != nil {
		return err
	}

	flusher, err := NewMetricsFlusher(s, s.logger)
	if err != nil {
		return err
	}
	defer flusher.Close()

	tasks := []*periodicTask{
		{
			name:     "tick",
			interval: s.config.TickInterval,
			runFunc:  func() { s.TickAt(time.Now()) },
		},
		{
			name:         "metrics-flush",
			initialDelay: s.config.MetricsFlushInterval,
			interval:     s.config.MetricsFlushInterval,
			runFunc:      func() { flusher.Flush() },
		},
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(pt *periodicTask) {
			defer wg.Done()
			pt.run(ctx, s.logger)
		}(task)
	}

	<-ctx.Done()
	wg.Wait()

	// Final flush so a short run still leaves a complete history file.
	flusher.Flush()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.webServer.Stop(shutdownCtx); err != nil {
		s.logger.Printf("Web server shutdown error: %v", err)
	}

	return ctx.Err()
}
