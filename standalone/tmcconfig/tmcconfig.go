//go:build tinygo

// Package tmcconfig applies UART-based TMC2209 smart-driver configuration
// (run/hold current, microstep resolution, StealthChop) to a configured
// axis. It is independent of the plain step/dir/enable path core.Stepper
// drives: an axis with a smart driver still steps through the ordinary
// GPIO backend, this package only tunes the driver's register state once
// at bring-up.
package tmcconfig

import (
	"fmt"
	"machine"

	"gopherline/standalone"

	"tinygo.org/x/drivers/tmc2209"
)

// enSpreadCycle is GCONF bit 2: 0 selects StealthChop, 1 selects
// SpreadCycle (TMC2209 datasheet §5.2).
const enSpreadCycle = 1 << 2

// ihold/irun fields of IHOLD_IRUN pack into 5-bit current settings; the
// 8-bit percent-to-setting scale from current.go is shifted down to fit.
const currentSettingShift = 3

// iholdDelay is the number of ~2^18 clock cycles after standstill before
// the current ramps down from irun to ihold; 4 is TMC's own reset default.
const iholdDelay = 4

// Configure applies axis's current/microstep/StealthChop settings over
// uart. An axis with a nil TMCAddress has no smart driver wired and
// Configure is a no-op.
func Configure(uart machine.UART, axis standalone.AxisConfig) error {
	if axis.TMCAddress == nil {
		return nil
	}
	addr := *axis.TMCAddress
	comm := tmc2209.NewUARTComm(uart, addr)
	drv := tmc2209.NewTMC2209(comm, addr)
	if err := drv.Setup(); err != nil {
		return err
	}

	irun := tmc2209.PercentToCurrentSetting(axis.TMCRunCurrent) >> currentSettingShift
	ihold := tmc2209.PercentToCurrentSetting(axis.TMCHoldCurrent) >> currentSettingShift
	iholdIrun := uint32(ihold) | uint32(irun)<<8 | uint32(iholdDelay)<<16
	if err := drv.WriteRegister(tmc2209.IHOLD_IRUN, iholdIrun); err != nil {
		return err
	}

	chopconf, err := drv.ReadRegister(tmc2209.CHOPCONF)
	if err != nil {
		return err
	}
	mres := tmc2209.SetMicrostepsPerStep(axis.TMCMicrosteps)
	chopconf = (chopconf &^ (uint32(0xF) << 24)) | uint32(mres)<<24
	if err := drv.WriteRegister(tmc2209.CHOPCONF, chopconf); err != nil {
		return err
	}

	gconf, err := drv.ReadRegister(tmc2209.GCONF)
	if err != nil {
		return err
	}
	if axis.TMCStealthChop {
		gconf &^= enSpreadCycle
	} else {
		gconf |= enSpreadCycle
	}
	return drv.WriteRegister(tmc2209.GCONF, gconf)
}

// ConfigureAll applies Configure to every axis in cfg carrying a TMC
// address, in a fixed X/Y/Z/E order so a bring-up failure always names
// the same axis first across runs.
func ConfigureAll(uart machine.UART, cfg *standalone.MachineConfig) error {
	for _, name := range [4]string{"x", "y", "z", "e"} {
		axis, ok := cfg.Axes[name]
		if !ok || axis.TMCAddress == nil {
			continue
		}
		if err := Configure(uart, axis); err != nil {
			return fmt.Errorf("tmc axis %s: %w", name, err)
		}
	}
	return nil
}
