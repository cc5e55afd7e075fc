//go:build tinygo

package planner

import (
	"machine"

	"gopherline/standalone/tmcconfig"
)

// tmcUART is the shared single-wire UART every configured axis's TMC2209
// is addressed on, daisy-chained the way printer mainboards wire it.
var tmcUART = machine.UART1

// configureSmartDrivers applies any configured TMC2209 current/microstep/
// StealthChop settings once, before the first move is ever queued.
func (p *Planner) configureSmartDrivers() error {
	return tmcconfig.ConfigureAll(*tmcUART, p.cfg)
}
