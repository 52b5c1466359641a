package controller

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devskill-org/hydrosim/bandit"
	"github.com/devskill-org/hydrosim/plant"
)

// Config represents the configuration for the plant simulator.
type Config struct {
	// Plant defaults applied at startup and after Reset
	DefaultTiltDeg        float64 `json:"default_tilt_deg"`        // Panel tilt in degrees [0, 60]
	DefaultElectrolytePct float64 `json:"default_electrolyte_pct"` // Electrolyte concentration [0, 2]

	// Learner settings
	Epsilon            float64 `json:"epsilon"`              // Exploration probability [0, 1]
	DecisionCadenceSec float64 `json:"decision_cadence_sec"` // Seconds between applied decisions [2, 30]
	LearnerEnabled     bool    `json:"learner_enabled"`      // Apply learner suggestions automatically

	// Tick driver
	TickInterval time.Duration `json:"tick_interval"` // Wall-clock interval between simulation ticks
	RandomSeed   int64         `json:"random_seed"`   // Seed for the noise/exploration source (0 = time-based)

	// Live sun mode: feed the real solar elevation at these coordinates
	// into the tilt model instead of the synthetic day curve
	UseLocalSun bool    `json:"use_local_sun"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`

	// Web server
	ServerPort int `json:"server_port"` // Port for status/control endpoints (0 = disabled)

	// Metrics persistence
	PostgresConnString   string        `json:"postgres_conn_string"`   // Empty disables the metrics sink
	DeviceID             int           `json:"device_id"`              // Device ID for the metrics table
	MetricsFlushInterval time.Duration `json:"metrics_flush_interval"` // How often period records are flushed
	DryRun               bool          `json:"dry_run"`                // Log metric inserts without executing them

	// History export
	HistoryPath string `json:"history_path"` // CSV file for period records (empty disables)
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		DefaultTiltDeg:        30.0,
		DefaultElectrolytePct: 1.0,
		Epsilon:               0.15,
		DecisionCadenceSec:    8.0,
		LearnerEnabled:        true,
		TickInterval:          100 * time.Millisecond,
		RandomSeed:            0,
		UseLocalSun:           false,
		Latitude:              56.9496, // Riga, Latvia
		Longitude:             24.1052, // Riga, Latvia
		ServerPort:            0,
		PostgresConnString:    "",
		DeviceID:              0,
		MetricsFlushInterval:  1 * time.Minute,
		DryRun:                false,
		HistoryPath:           "",
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config JSON: %w", err)
	}

	return nil
}

// Validate checks if the configuration values are valid. Parameter domains
// follow the clamping posture of the simulation itself, so only values the
// simulator cannot sensibly clamp are rejected here.
func (c *Config) Validate() error {
	if c.DefaultTiltDeg < 0 || c.DefaultTiltDeg > plant.MaxTiltDeg {
		return fmt.Errorf("default_tilt_deg must be between 0 and %v, got: %f", plant.MaxTiltDeg, c.DefaultTiltDeg)
	}

	if c.DefaultElectrolytePct < 0 || c.DefaultElectrolytePct > plant.MaxElectrolytePct {
		return fmt.Errorf("default_electrolyte_pct must be between 0 and %v, got: %f", plant.MaxElectrolytePct, c.DefaultElectrolytePct)
	}

	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("epsilon must be between 0 and 1, got: %f", c.Epsilon)
	}

	if c.DecisionCadenceSec < bandit.MinDecisionCadenceSec || c.DecisionCadenceSec > bandit.MaxDecisionCadenceSec {
		return fmt.Errorf("decision_cadence_sec must be between %v and %v, got: %f",
			bandit.MinDecisionCadenceSec, bandit.MaxDecisionCadenceSec, c.DecisionCadenceSec)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be greater than 0, got: %s", c.TickInterval)
	}

	if c.MetricsFlushInterval <= 0 {
		return fmt.Errorf("metrics_flush_interval must be greater than 0, got: %s", c.MetricsFlushInterval)
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port must be between 0 and 65535, got: %d", c.ServerPort)
	}

	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}

	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling to handle durations
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		TickInterval         string `json:"tick_interval"`
		MetricsFlushInterval string `json:"metrics_flush_interval"`
	}{
		Alias:                (*Alias)(c),
		TickInterval:         c.TickInterval.String(),
		MetricsFlushInterval: c.MetricsFlushInterval.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling to handle durations
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		TickInterval         string `json:"tick_interval"`
		MetricsFlushInterval string `json:"metrics_flush_interval"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if aux.TickInterval != "" {
		if c.TickInterval, err = time.ParseDuration(aux.TickInterval); err != nil {
			return fmt.Errorf("invalid tick_interval: %w", err)
		}
	}

	if aux.MetricsFlushInterval != "" {
		if c.MetricsFlushInterval, err = time.ParseDuration(aux.MetricsFlushInterval); err != nil {
			return fmt.Errorf("invalid metrics_flush_interval: %w", err)
		}
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
