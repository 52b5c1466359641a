package controller

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// ProductionSample is a single rate measurement taken during a tick.
type ProductionSample struct {
	rate     float64 // volume/min
	lux      int
	clockSec float64
}

// ProductionSamples is a thread-safe collection of production measurements
// awaiting integration into a period record.
type ProductionSamples struct {
	mu      sync.Mutex
	samples []ProductionSample
}

// Add appends a new production measurement.
func (p *ProductionSamples) Add(rate float64, lux int, clockSec float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, ProductionSample{rate: rate, lux: lux, clockSec: clockSec})
}

// IsEmpty returns true if no samples have been collected.
func (p *ProductionSamples) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples) == 0
}

// PeriodRecord aggregates the samples collected in one flush period.
type PeriodRecord struct {
	Timestamp   string  `csv:"timestamp"`
	SimStartSec float64 `csv:"sim_start_sec"`
	SimEndSec   float64 `csv:"sim_end_sec"`
	Samples     int     `csv:"samples"`
	Volume      float64 `csv:"volume"`   // volume produced during the period
	AvgRate     float64 `csv:"avg_rate"` // volume/min
	MaxRate     float64 `csv:"max_rate"` // volume/min
	AvgLux      float64 `csv:"avg_lux"`
}

// Integrate aggregates and clears the collected samples. The produced volume
// uses the simulated-time spacing between consecutive samples, so irregular
// tick deltas integrate correctly. Returns a zero-sample record when nothing
// was collected.
func (p *ProductionSamples) Integrate(now time.Time) PeriodRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := PeriodRecord{Timestamp: now.UTC().Format(time.RFC3339)}
	if len(p.samples) == 0 {
		return rec
	}

	rec.Samples = len(p.samples)
	rec.SimStartSec = p.samples[0].clockSec
	rec.SimEndSec = p.samples[len(p.samples)-1].clockSec

	var rateSum, luxSum float64
	prevClock := p.samples[0].clockSec
	for _, s := range p.samples {
		dt := s.clockSec - prevClock
		if dt > 0 {
			rec.Volume += s.rate * dt / 60
		}
		prevClock = s.clockSec

		rateSum += s.rate
		luxSum += float64(s.lux)
		if s.rate > rec.MaxRate {
			rec.MaxRate = s.rate
		}
	}
	rec.AvgRate = rateSum / float64(rec.Samples)
	rec.AvgLux = luxSum / float64(rec.Samples)

	p.samples = p.samples[:0]
	return rec
}

// MetricsFlusher drains period records into the configured sinks: a Postgres
// metrics table, a CSV history file, or both. With neither configured it
// still clears the sample buffer so memory stays bounded.
type MetricsFlusher struct {
	sim    *Simulator
	logger *log.Logger
	db     *sql.DB
}

// NewMetricsFlusher opens the metrics database when a connection string is
// configured.
func NewMetricsFlusher(sim *Simulator, logger *log.Logger) (*MetricsFlusher, error) {
	f := &MetricsFlusher{sim: sim, logger: logger}

	if conn := sim.GetConfig().PostgresConnString; conn != "" {
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, err
		}
		f.db = db
	}

	return f, nil
}

// Close releases the database connection.
func (f *MetricsFlusher) Close() {
	if f.db != nil {
		f.db.Close()
	}
}

// Flush integrates the pending samples into one period record and writes it
// to the configured sinks.
func (f *MetricsFlusher) Flush() {
	if f.sim.samples.IsEmpty() {
		return
	}

	config := f.sim.GetConfig()
	rec := f.sim.samples.Integrate(time.Now())
	yield := f.sim.Yield()

	if f.db != nil {
		if config.DryRun {
			f.logger.Printf("Metrics [DRY-RUN]: would save %.3f volume (avg rate %.2f, %d samples) for device_id=%d at %s",
				rec.Volume, rec.AvgRate, rec.Samples, config.DeviceID, rec.Timestamp)
		} else {
			_, err := f.db.Exec(
				`INSERT INTO metrics (timestamp, device_id, metric_name, production_volume, avg_rate, max_rate, avg_lux, total_yield)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				rec.Timestamp, config.DeviceID, "hydrogen_production",
				rec.Volume, rec.AvgRate, rec.MaxRate, rec.AvgLux, yield,
			)
			if err != nil {
				f.logger.Printf("Metrics: failed to insert period record: %v", err)
			} else {
				f.logger.Printf("Metrics: saved %.3f volume (avg rate %.2f, %d samples) for device_id=%d",
					rec.Volume, rec.AvgRate, rec.Samples, config.DeviceID)
			}
		}
	}

	if f.sim.history != nil {
		if err := f.sim.history.Append(rec); err != nil {
			f.logger.Printf("Metrics: failed to write history: %v", err)
		}
	}
}
