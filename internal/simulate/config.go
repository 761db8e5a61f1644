package simulate

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Method names a stepping scheme.
type Method string

const (
	MethodEuler Method = "euler"
	MethodRK4   Method = "rk4"
)

// Config controls one simulation run.
type Config struct {
	// Start and End bound the simulated time interval.
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`

	// Step is the nominal step size. Steps are shortened to land on
	// event execution times and on End.
	Step float64 `yaml:"step" json:"step"`

	// Method selects the stepper. Default: rk4.
	Method Method `yaml:"method,omitempty" json:"method,omitempty"`

	// Seed seeds the event tie breaker.
	Seed uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// EventQuota bounds event executions per time point. Zero means the
	// engine default.
	EventQuota int `yaml:"event_quota,omitempty" json:"event_quota,omitempty"`

	// Fast reaction equilibration: pseudo-time step, convergence threshold
	// on the largest rate of change, and iteration cap.
	FastStep          float64 `yaml:"fast_step,omitempty" json:"fast_step,omitempty"`
	FastTolerance     float64 `yaml:"fast_tolerance,omitempty" json:"fast_tolerance,omitempty"`
	FastMaxIterations int     `yaml:"fast_max_iterations,omitempty" json:"fast_max_iterations,omitempty"`
}

// DefaultConfig returns a run over [0, 10] with step 0.1 using RK4.
func DefaultConfig() Config {
	return Config{
		Start:  0,
		End:    10,
		Step:   0.1,
		Method: MethodRK4,
	}
}

// withDefaults fills zero optional fields.
func (c Config) withDefaults() Config {
	if c.Method == "" {
		c.Method = MethodRK4
	}
	if c.FastStep == 0 {
		c.FastStep = 1e-3
	}
	if c.FastTolerance == 0 {
		c.FastTolerance = 1e-9
	}
	if c.FastMaxIterations == 0 {
		c.FastMaxIterations = 100000
	}
	return c
}

// ErrInvalidConfig is wrapped by every Config validation error.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Validate checks the interval, step and method.
func (c Config) Validate() error {
	switch {
	case math.IsNaN(c.Start) || math.IsInf(c.Start, 0):
		return fmt.Errorf("%w: start must be finite", ErrInvalidConfig)
	case math.IsNaN(c.End) || math.IsInf(c.End, 0):
		return fmt.Errorf("%w: end must be finite", ErrInvalidConfig)
	case c.End < c.Start:
		return fmt.Errorf("%w: end %g is before start %g", ErrInvalidConfig, c.End, c.Start)
	case !(c.Step > 0) || math.IsInf(c.Step, 0):
		return fmt.Errorf("%w: step must be positive, got %g", ErrInvalidConfig, c.Step)
	case c.EventQuota < 0:
		return fmt.Errorf("%w: event_quota must not be negative", ErrInvalidConfig)
	case c.FastStep < 0 || c.FastTolerance < 0 || c.FastMaxIterations < 0:
		return fmt.Errorf("%w: fast reaction settings must not be negative", ErrInvalidConfig)
	}
	switch c.Method {
	case "", MethodEuler, MethodRK4:
	default:
		return fmt.Errorf("%w: unknown method %q (want euler or rk4)", ErrInvalidConfig, c.Method)
	}
	return nil
}

// ParseConfig decodes a YAML config, rejecting unknown fields, and
// validates it. Absent fields keep the values of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}
