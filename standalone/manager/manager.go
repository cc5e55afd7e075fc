// Package manager coordinates every standalone-mode component: config,
// kinematics, the motion planner, the thermal controller and the command
// dispatcher, behind a byte-in/line-out serial front end.
//
// It lives in its own package (rather than alongside the shared types in
// package standalone) because it imports every subsystem package, and
// those packages import standalone for the shared types; the coordinator
// has to sit above that layer, not inside it.
package manager

import (
	"errors"
	"fmt"

	"gopherline/core"
	"gopherline/standalone"
	"gopherline/standalone/config"
	"gopherline/standalone/gcode"
	"gopherline/standalone/kinematics"
	"gopherline/standalone/planner"
	"gopherline/standalone/thermal"
)

// idleFlushTicks is the number of consecutive Tick calls with no serial
// input after which pending lookahead moves are flushed anyway. Lookahead
// exists to smooth junctions between moves that arrive back to back; once
// the stream goes quiet there is nothing further to look ahead at.
const idleFlushTicks = 50

// Manager coordinates every standalone-mode component.
type Manager struct {
	config      *standalone.MachineConfig
	parser      *gcode.Parser
	interpreter *gcode.Interpreter
	planner     *planner.Planner
	kinematics  kinematics.Kinematics
	thermal     *thermal.Controller

	inputBuffer  []byte
	outputBuffer []byte

	idleTicks   int
	initialized bool
	running     bool
}

// New creates a manager from raw JSON config bytes.
func New(configData []byte) (*Manager, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a manager from an already-parsed config.
func NewWithConfig(cfg *standalone.MachineConfig) (*Manager, error) {
	return &Manager{
		config:       cfg,
		parser:       gcode.NewParser(),
		inputBuffer:  make([]byte, 0, 256),
		outputBuffer: make([]byte, 0, 256),
	}, nil
}

// Initialize wires up kinematics, the planner, the thermal controller and
// the dispatcher against the registered GPIO driver.
func (m *Manager) Initialize(gpioDriver core.GPIODriver) error {
	if m.initialized {
		return errors.New("already initialized")
	}

	var kin kinematics.Kinematics
	var err error
	switch m.config.Kinematics {
	case "cartesian":
		kin, err = kinematics.NewCartesian(m.config)
	default:
		return fmt.Errorf("%w: unsupported kinematics %q", standalone.ErrBadArgument, m.config.Kinematics)
	}
	if err != nil {
		return err
	}
	m.kinematics = kin

	m.planner = planner.NewPlanner(m.config, kin)
	if err := m.planner.InitSteppers(gpioDriver); err != nil {
		return err
	}

	th, err := thermal.NewController(m.config)
	if err != nil {
		return err
	}
	m.thermal = th

	m.interpreter = gcode.NewInterpreter(m.config, m.planner, m.thermal, m.thermal)

	// A fatal shutdown (timer far in the past, hard fault) must leave the
	// machine safe regardless of what command was mid-flight.
	core.RegisterShutdownHook(m.EmergencyStop)

	m.thermal.Start()
	m.initialized = true
	return nil
}

// ProcessLine parses and dispatches one complete line. Every outcome
// (success, parse error, execution error) becomes a queued response line
// per the wire protocol; the returned error only signals a manager-level
// problem (not yet initialized), never a G-code-level failure.
func (m *Manager) ProcessLine(line string) error {
	if !m.initialized {
		return errors.New("manager not initialized")
	}

	if len(line) > gcode.MaxLineLength {
		m.SendResponse("error: parse error\r\n")
		return nil
	}

	cmd, err := m.parser.ParseLine(line)
	if err != nil {
		m.SendResponse("error: parse error\r\n")
		return nil
	}

	result, err := m.interpreter.Execute(cmd)
	if err != nil {
		m.SendResponse("error: " + standalone.ResponseKind(err) + "\r\n")
		return nil
	}
	if result.Pending {
		return nil // ack deferred to Tick's Poll
	}
	if result.Ack != "" {
		m.SendResponse(result.Ack + "\r\n")
		return nil
	}
	m.SendResponse("ok\r\n")
	return nil
}

// ProcessByte feeds one byte of serial input. Lines are newline-terminated;
// a trailing carriage return (or stray trailing spaces) is stripped.
func (m *Manager) ProcessByte(b byte) error {
	m.idleTicks = 0
	if b != '\n' {
		m.inputBuffer = append(m.inputBuffer, b)
		return nil
	}

	line := string(m.inputBuffer)
	m.inputBuffer = m.inputBuffer[:0]
	for len(line) > 0 && (line[len(line)-1] == '\r' || line[len(line)-1] == ' ') {
		line = line[:len(line)-1]
	}
	return m.ProcessLine(line)
}

// Tick runs one iteration of background work: dispatching due timers,
// retiring executed motion segments, flushing lookahead once the serial
// stream goes idle, and advancing any outstanding M109/M190 wait. Call
// this every main-loop iteration regardless of whether input arrived.
func (m *Manager) Tick() {
	if !m.initialized || core.IsShutdown() {
		return
	}
	core.ProcessTimers()

	m.planner.Retire()

	m.idleTicks++
	if m.idleTicks >= idleFlushTicks {
		m.idleTicks = 0
		if err := m.planner.Flush(); err != nil {
			m.SendResponse("error: " + standalone.ResponseKind(err) + "\r\n")
		}
	}

	if !m.interpreter.Busy() {
		return
	}
	done, err := m.interpreter.Poll()
	if !done {
		return
	}
	if err != nil {
		m.SendResponse("error: " + standalone.ResponseKind(err) + "\r\n")
		return
	}
	m.SendResponse("ok\r\n")
}

// SendResponse queues a response to be sent to the host.
func (m *Manager) SendResponse(response string) {
	m.outputBuffer = append(m.outputBuffer, []byte(response)...)
}

// GetOutput returns any pending output and clears the buffer.
func (m *Manager) GetOutput() []byte {
	if len(m.outputBuffer) == 0 {
		return nil
	}
	output := make([]byte, len(m.outputBuffer))
	copy(output, m.outputBuffer)
	m.outputBuffer = m.outputBuffer[:0]
	return output
}

// Start begins standalone operation.
func (m *Manager) Start() error {
	if !m.initialized {
		return errors.New("manager not initialized")
	}
	m.running = true
	m.SendResponse("gopherline standalone ready\r\n")
	return nil
}

// Stop halts all motion but leaves heaters and configuration intact.
func (m *Manager) Stop() {
	m.running = false
	if m.planner != nil {
		m.planner.ClearQueue()
	}
}

// IsRunning reports whether the manager is running.
func (m *Manager) IsRunning() bool {
	return m.running
}

// GetState returns the current machine state.
func (m *Manager) GetState() *standalone.MachineState {
	if m.interpreter != nil {
		return m.interpreter.GetState()
	}
	return nil
}

// EmergencyStop halts all motion, disables every stepper driver, and
// forces every heater and fan off.
func (m *Manager) EmergencyStop() {
	m.running = false
	if m.planner != nil {
		m.planner.ClearQueue()
		m.planner.DisableSteppers()
	}
	if m.thermal != nil {
		m.thermal.DisableAll()
	}
}
