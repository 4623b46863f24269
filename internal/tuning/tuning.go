// Package tuning loads PID coefficients from a YAML file and supports
// live reload while the control loop is running.
package tuning

import (
	"fmt"
	"log"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Parameters are the controller coefficients plus the live-tuning flag.
// They are always replaced wholesale, never field by field.
type Parameters struct {
	Kp         float64 `yaml:"kp"`
	Ki         float64 `yaml:"ki"`
	Kd         float64 `yaml:"kd"`
	TuningMode bool    `yaml:"tuning_mode"`
}

// Load reads and parses the tuning file. There are no safe default
// coefficients, so callers must treat an error as fatal at startup.
func Load(path string) (Parameters, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("read tuning file: %w", err)
	}

	var p Parameters
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Parameters{}, fmt.Errorf("parse tuning file: %w", err)
	}

	for name, v := range map[string]float64{"kp": p.Kp, "ki": p.Ki, "kd": p.Kd} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Parameters{}, fmt.Errorf("tuning file: %s must be finite, got %v", name, v)
		}
	}

	return p, nil
}

// Store re-reads the tuning file during steady-state operation.
type Store struct {
	path string
}

// NewStore creates a Store for the given tuning file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// MaybeReload returns fresh parameters when current.TuningMode is set,
// and current unchanged otherwise. A malformed live edit must never
// destabilize a running loop: on any read or parse error the previous
// parameters are returned unchanged and a warning is logged.
func (s *Store) MaybeReload(current Parameters) Parameters {
	if !current.TuningMode {
		return current
	}

	p, err := Load(s.path)
	if err != nil {
		log.Printf("tuning reload failed, keeping previous parameters: %v", err)
		return current
	}
	return p
}
