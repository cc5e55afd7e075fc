package config

import (
	"encoding/json"

	"gopherline/standalone"
	"gopherline/standalone/thermal"
)

// LoadConfig parses a JSON configuration string and returns a MachineConfig.
func LoadConfig(jsonData []byte) (*standalone.MachineConfig, error) {
	var cfg standalone.MachineConfig

	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills in missing configuration values with sensible defaults.
func applyDefaults(cfg *standalone.MachineConfig) {
	if cfg.Mode == "" {
		cfg.Mode = "standalone"
	}
	if cfg.Kinematics == "" {
		cfg.Kinematics = "cartesian"
	}
	if cfg.DefaultVelocity == 0 {
		cfg.DefaultVelocity = 50.0 // mm/s (3000 mm/min boot default)
	}
	if cfg.DefaultAccel == 0 {
		cfg.DefaultAccel = 500.0
	}
	if cfg.MaxAccelToDecel == 0 {
		cfg.MaxAccelToDecel = cfg.DefaultAccel
	}
	if cfg.SquareCornerVelocity == 0 {
		cfg.SquareCornerVelocity = 5.0 // mm/s, Klipper-typical default
	}
	if cfg.HomingSpeed == 0 {
		cfg.HomingSpeed = 25.0
	}
	if cfg.HomingRetract == 0 {
		cfg.HomingRetract = 5.0
	}
	if cfg.HomingTimeout == 0 {
		cfg.HomingTimeout = 20.0
	}
	if cfg.LookaheadCapacity == 0 {
		cfg.LookaheadCapacity = 16
	}

	for name, axis := range cfg.Axes {
		if axis.MaxVelocity == 0 {
			axis.MaxVelocity = 300.0
		}
		if axis.MaxAccel == 0 {
			axis.MaxAccel = 3000.0
		}
		if axis.HomingVel == 0 {
			axis.HomingVel = cfg.HomingSpeed
		}
		if axis.StepsPerMM == 0 {
			axis.StepsPerMM = 80.0
		}
		if axis.MinStepIntervalUS == 0 {
			axis.MinStepIntervalUS = 2
		}
		if axis.TMCAddress != nil {
			if axis.TMCRunCurrent == 0 {
				axis.TMCRunCurrent = 80
			}
			if axis.TMCHoldCurrent == 0 {
				axis.TMCHoldCurrent = 40
			}
			if axis.TMCMicrosteps == 0 {
				axis.TMCMicrosteps = 16
			}
		}
		cfg.Axes[name] = axis
	}

	for name, h := range cfg.Heaters {
		if h.MinTemp == 0 {
			h.MinTemp = 0.0
		}
		if h.MaxTemp == 0 {
			h.MaxTemp = 300.0
		}
		if h.MaxPower == 0 {
			h.MaxPower = 1.0
		}
		if h.IntegralMax == 0 {
			h.IntegralMax = 5000.0
		}
		if h.CycleTicks == 0 {
			h.CycleTicks = defaultPWMCycleTicks
		}
		if len(h.Table) == 0 {
			h.Table = DefaultThermistorTable()
		}
		cfg.Heaters[name] = h
	}

	for name, f := range cfg.Fans {
		if f.CycleTicks == 0 {
			f.CycleTicks = defaultPWMCycleTicks
		}
		cfg.Fans[name] = f
	}
}

// defaultPWMCycleTicks is a 10Hz soft-PWM cycle at the core package's
// default 12MHz timer frequency, matching a typical heater cycle time
// (100ms) without needing the config author to do the tick math.
const defaultPWMCycleTicks = 1200000

// DefaultThermistorTable returns a representative NTC 100K table, used
// when a heater config doesn't supply its own calibration. Code 1670
// maps to 100.0C.
func DefaultThermistorTable() []thermal.ThermistorPoint {
	return []thermal.ThermistorPoint{
		{Code: 5, TempX10: 3000},
		{Code: 100, TempX10: 2500},
		{Code: 500, TempX10: 2000},
		{Code: 900, TempX10: 1500},
		{Code: 1300, TempX10: 1200},
		{Code: 1670, TempX10: 1000},
		{Code: 2048, TempX10: 600},
		{Code: 2800, TempX10: 250},
		{Code: 3400, TempX10: 0},
		{Code: 3900, TempX10: -200},
		{Code: 4090, TempX10: -400},
	}
}

// DefaultCartesianConfig returns a default configuration for a Cartesian
// printer with a hotend and bed heater, one part-cooling fan, and X/Y/Z
// endstops, a runnable starting point for hardware bring-up.
func DefaultCartesianConfig() *standalone.MachineConfig {
	cfg := &standalone.MachineConfig{
		Mode:       "standalone",
		Kinematics: "cartesian",
		Axes: map[string]standalone.AxisConfig{
			"x": {StepPin: 0, DirPin: 1, EnablePin: 8, HasEnable: true,
				StepsPerMM: 80.0, MaxVelocity: 300.0, MaxAccel: 3000.0,
				HomingVel: 25.0, MinPosition: 0.0, MaxPosition: 220.0},
			"y": {StepPin: 2, DirPin: 3, EnablePin: 8, HasEnable: true,
				StepsPerMM: 80.0, MaxVelocity: 300.0, MaxAccel: 3000.0,
				HomingVel: 25.0, MinPosition: 0.0, MaxPosition: 220.0},
			"z": {StepPin: 4, DirPin: 5, EnablePin: 8, HasEnable: true,
				StepsPerMM: 400.0, MaxVelocity: 10.0, MaxAccel: 100.0,
				HomingVel: 5.0, MinPosition: 0.0, MaxPosition: 250.0},
			"e": {StepPin: 6, DirPin: 7, EnablePin: 8, HasEnable: true,
				StepsPerMM: 96.0, MaxVelocity: 50.0, MaxAccel: 5000.0,
				MinPosition: -1e6, MaxPosition: 1e6},
		},
		Endstops: map[string]standalone.EndstopConfig{
			"x": {Pin: 20, TriggerHigh: true, PullUp: true},
			"y": {Pin: 21, TriggerHigh: true, PullUp: true},
			"z": {Pin: 22, TriggerHigh: true, PullUp: true},
		},
		Heaters: map[string]standalone.HeaterConfig{
			"extruder": {SensorPin: 0, PWMPin: 10, Kp: 22.2, Ki: 1.08, Kd: 114,
				MinTemp: 0, MaxTemp: 300, MaxPower: 1.0},
			"bed": {SensorPin: 1, PWMPin: 11, Kp: 10.0, Ki: 0.1, Kd: 100,
				MinTemp: 0, MaxTemp: 150, MaxPower: 1.0},
		},
		Fans: map[string]standalone.FanConfig{
			"part_fan": {Pin: 12},
		},
		DefaultVelocity:      50.0,
		DefaultAccel:         500.0,
		SquareCornerVelocity: 5.0,
		HomingSpeed:          25.0,
		HomingRetract:        5.0,
		HomingTimeout:        20.0,
		LookaheadCapacity:    16,
	}
	applyDefaults(cfg)
	return cfg
}
