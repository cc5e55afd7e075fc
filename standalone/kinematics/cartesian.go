package kinematics

import (
	"fmt"

	"gopherline/standalone"
)

// Cartesian implements plain Cartesian kinematics (XYZE 1:1 mapping).
type Cartesian struct {
	config *standalone.MachineConfig
}

// NewCartesian creates a new Cartesian kinematics instance.
func NewCartesian(config *standalone.MachineConfig) (*Cartesian, error) {
	for _, axis := range []string{"x", "y", "z"} {
		if _, ok := config.Axes[axis]; !ok {
			return nil, fmt.Errorf("%s axis not configured", axis)
		}
	}
	return &Cartesian{config: config}, nil
}

// CalcPosition converts XYZ coordinates to stepper positions
// For Cartesian, this is a 1:1 mapping
func (k *Cartesian) CalcPosition(pos standalone.Position) ([]float64, error) {
	// Return positions in order: X, Y, Z, E
	return []float64{pos.X, pos.Y, pos.Z, pos.E}, nil
}

// GetAxisNames returns the axis names for Cartesian kinematics
func (k *Cartesian) GetAxisNames() []string {
	return []string{"x", "y", "z", "e"}
}

// CheckLimits validates that a position is within configured soft limits.
// E has no soft limits.
func (k *Cartesian) CheckLimits(pos standalone.Position) error {
	checks := []struct {
		name string
		val  float64
	}{
		{"x", pos.X},
		{"y", pos.Y},
		{"z", pos.Z},
	}
	for _, c := range checks {
		axis, ok := k.config.Axes[c.name]
		if !ok {
			continue
		}
		if c.val < axis.MinPosition || c.val > axis.MaxPosition {
			return fmt.Errorf("%w: %s=%g outside [%g,%g]", standalone.ErrOutOfBounds, c.name, c.val, axis.MinPosition, axis.MaxPosition)
		}
	}
	return nil
}
