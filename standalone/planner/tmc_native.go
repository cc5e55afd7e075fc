//go:build !tinygo

package planner

// configureSmartDrivers is a no-op on the native test build: there is no
// machine.UART to address a TMC2209 over off-target, and the plain
// step/dir/enable path (core.Stepper) works identically with or without a
// smart driver behind it.
func (p *Planner) configureSmartDrivers() error {
	return nil
}
