package gcode

import (
	"fmt"

	"gopherline/standalone"
)

// Planner is the motion-planner surface the dispatcher drives
// (implemented by standalone/planner.Planner).
type Planner interface {
	Move(target standalone.Position, feedrateMMs float64) error
	Home(x, y, z bool) error
	SetPosition(pos standalone.Position) error
	GetCurrentPosition() standalone.Position
	Homed() [4]bool
	ClearQueue()
	EnableSteppers()
	DisableSteppers()
}

// Heaters is the thermal surface the dispatcher drives.
type Heaters interface {
	SetTarget(name string, target float64) error
	Current(name string) (float64, bool)
	Target(name string) (float64, bool)
	AtTarget(name string, tolerance float64) (bool, error)
}

// Fans is the fan-control surface the dispatcher drives.
type Fans interface {
	Set(name string, speed float64) error
}

// tempTolerance is the band M109/M190 waits to settle within, in degrees C.
const tempTolerance = 1.0

// pendingWait models M109/M190's non-blocking temperature wait: the
// dispatcher returns immediately without acknowledging the line, and
// Poll is re-entered from the main loop until the condition resolves,
// so timers keep being serviced while the heater settles.
type pendingWait struct {
	heater string
}

// Interpreter is the command dispatcher.
type Interpreter struct {
	state   *standalone.MachineState
	config  *standalone.MachineConfig
	planner Planner
	heaters Heaters
	fans    Fans

	wait *pendingWait
}

// NewInterpreter creates a dispatcher bound to the given config and
// component surfaces.
func NewInterpreter(config *standalone.MachineConfig, planner Planner, heaters Heaters, fans Fans) *Interpreter {
	return &Interpreter{
		state: &standalone.MachineState{
			Position:     standalone.Position{},
			Homed:        [4]bool{},
			AbsoluteMode: true,
			FeedRate:     config.DefaultVelocity,
			ExtrudeMode:  false,
		},
		config:  config,
		planner: planner,
		heaters: heaters,
		fans:    fans,
	}
}

// GetState returns the current machine state.
func (interp *Interpreter) GetState() *standalone.MachineState {
	return interp.state
}

// Busy reports whether a non-blocking wait (M109/M190) is outstanding.
func (interp *Interpreter) Busy() bool {
	return interp.wait != nil
}

// Poll advances an outstanding M109/M190 wait. done is true once the wait
// resolves (or never existed); the caller should then emit the deferred
// ack line. Called once per main-loop tick regardless of serial input.
func (interp *Interpreter) Poll() (done bool, err error) {
	if interp.wait == nil {
		return true, nil
	}
	if interp.heaters == nil {
		interp.wait = nil
		return true, nil
	}
	at, err := interp.heaters.AtTarget(interp.wait.heater, tempTolerance)
	if err != nil {
		interp.wait = nil
		return true, err
	}
	if !at {
		return false, nil
	}
	interp.wait = nil
	return true, nil
}

// ExecResult describes how the dispatcher resolved one command line.
type ExecResult struct {
	Pending bool   // true if the command is still outstanding (M109/M190); no ack yet
	Ack     string // overrides the default "ok" ack line when non-empty (M114/M105)
}

// Execute dispatches one parsed command. A nil cmd (blank or comment-only
// line) resolves immediately with no error; the caller acks it like any
// accepted line.
func (interp *Interpreter) Execute(cmd *standalone.GCodeCommand) (ExecResult, error) {
	if cmd == nil {
		return ExecResult{}, nil
	}
	if cmd.Comment != "" && cmd.Type == 0 {
		return ExecResult{}, nil
	}

	switch cmd.Type {
	case 'G':
		return interp.executeG(cmd)
	case 'M':
		return interp.executeM(cmd)
	}

	return ExecResult{}, fmt.Errorf("%w: %c%d", standalone.ErrUnknownCommand, cmd.Type, cmd.Number)
}

func (interp *Interpreter) executeG(cmd *standalone.GCodeCommand) (ExecResult, error) {
	switch cmd.Number {
	case 0, 1:
		return ExecResult{}, interp.doMove(cmd)
	case 28:
		return ExecResult{}, interp.doHome(cmd)
	case 90:
		interp.state.AbsoluteMode = true
		return ExecResult{}, nil
	case 91:
		interp.state.AbsoluteMode = false
		return ExecResult{}, nil
	case 92:
		return ExecResult{}, interp.doSetPosition(cmd)
	}
	return ExecResult{}, fmt.Errorf("%w: G%d", standalone.ErrUnknownCommand, cmd.Number)
}

func (interp *Interpreter) executeM(cmd *standalone.GCodeCommand) (ExecResult, error) {
	switch cmd.Number {
	case 82:
		interp.state.ExtrudeMode = false
		return ExecResult{}, nil
	case 83:
		interp.state.ExtrudeMode = true
		return ExecResult{}, nil
	case 84:
		interp.planner.DisableSteppers()
		return ExecResult{}, nil
	case 104:
		return ExecResult{}, interp.setHeaterTarget("extruder", cmd)
	case 109:
		if err := interp.setHeaterTarget("extruder", cmd); err != nil {
			return ExecResult{}, err
		}
		interp.wait = &pendingWait{heater: "extruder"}
		return ExecResult{Pending: true}, nil
	case 140:
		return ExecResult{}, interp.setHeaterTarget("bed", cmd)
	case 190:
		if err := interp.setHeaterTarget("bed", cmd); err != nil {
			return ExecResult{}, err
		}
		interp.wait = &pendingWait{heater: "bed"}
		return ExecResult{Pending: true}, nil
	case 106:
		return ExecResult{}, interp.setFan("part_fan", cmd)
	case 107:
		if interp.fans == nil {
			return ExecResult{}, nil
		}
		return ExecResult{}, interp.fans.Set("part_fan", 0)
	case 114:
		return ExecResult{Ack: interp.formatPosition()}, nil
	case 105:
		return ExecResult{Ack: interp.formatTemperatures()}, nil
	}
	return ExecResult{}, fmt.Errorf("%w: M%d", standalone.ErrUnknownCommand, cmd.Number)
}

func (interp *Interpreter) setHeaterTarget(name string, cmd *standalone.GCodeCommand) error {
	if interp.heaters == nil {
		return nil
	}
	if !cmd.HasParameter('S') {
		return nil
	}
	return interp.heaters.SetTarget(name, cmd.GetParameter('S', 0))
}

func (interp *Interpreter) setFan(name string, cmd *standalone.GCodeCommand) error {
	if interp.fans == nil {
		return nil
	}
	speed := 1.0
	if cmd.HasParameter('S') {
		speed = cmd.GetParameter('S', 255) / 255.0
	}
	return interp.fans.Set(name, speed)
}

// doMove executes a linear move (G0/G1).
func (interp *Interpreter) doMove(cmd *standalone.GCodeCommand) error {
	current := interp.planner.GetCurrentPosition()
	target := current

	if cmd.HasParameter('F') {
		interp.state.FeedRate = cmd.GetParameter('F', 0) / 60.0 // mm/min -> mm/s
	}

	if interp.state.AbsoluteMode {
		if cmd.HasParameter('X') {
			target.X = cmd.GetParameter('X', current.X)
		}
		if cmd.HasParameter('Y') {
			target.Y = cmd.GetParameter('Y', current.Y)
		}
		if cmd.HasParameter('Z') {
			target.Z = cmd.GetParameter('Z', current.Z)
		}
	} else {
		if cmd.HasParameter('X') {
			target.X = current.X + cmd.GetParameter('X', 0)
		}
		if cmd.HasParameter('Y') {
			target.Y = current.Y + cmd.GetParameter('Y', 0)
		}
		if cmd.HasParameter('Z') {
			target.Z = current.Z + cmd.GetParameter('Z', 0)
		}
	}

	if cmd.HasParameter('E') {
		if interp.state.ExtrudeMode {
			target.E = current.E + cmd.GetParameter('E', 0)
		} else {
			target.E = cmd.GetParameter('E', current.E)
		}
	}

	if err := interp.planner.Move(target, interp.state.FeedRate); err != nil {
		return err
	}
	interp.state.Position = target
	return nil
}

// doHome executes G28.
func (interp *Interpreter) doHome(cmd *standalone.GCodeCommand) error {
	x := cmd.HasParameter('X')
	y := cmd.HasParameter('Y')
	z := cmd.HasParameter('Z')

	if err := interp.planner.Home(x, y, z); err != nil {
		return err
	}
	interp.state.Homed = interp.planner.Homed()
	interp.state.Position = interp.planner.GetCurrentPosition()
	return nil
}

// doSetPosition executes G92.
func (interp *Interpreter) doSetPosition(cmd *standalone.GCodeCommand) error {
	current := interp.planner.GetCurrentPosition()

	if cmd.HasParameter('X') {
		current.X = cmd.GetParameter('X', 0)
	}
	if cmd.HasParameter('Y') {
		current.Y = cmd.GetParameter('Y', 0)
	}
	if cmd.HasParameter('Z') {
		current.Z = cmd.GetParameter('Z', 0)
	}
	if cmd.HasParameter('E') {
		current.E = cmd.GetParameter('E', 0)
	}

	if err := interp.planner.SetPosition(current); err != nil {
		return err
	}
	interp.state.Position = current
	return nil
}

// formatPosition builds the M114 response line.
func (interp *Interpreter) formatPosition() string {
	pos := interp.planner.GetCurrentPosition()
	return fmt.Sprintf("X:%.2f Y:%.2f Z:%.2f E:%.2f", pos.X, pos.Y, pos.Z, pos.E)
}

// formatTemperatures builds the M105 response line.
func (interp *Interpreter) formatTemperatures() string {
	if interp.heaters == nil {
		return "T:0.00 /0.00 B:0.00 /0.00"
	}
	extCur, _ := interp.heaters.Current("extruder")
	extTgt, _ := interp.heaters.Target("extruder")
	bedCur, _ := interp.heaters.Current("bed")
	bedTgt, _ := interp.heaters.Target("bed")
	return fmt.Sprintf("T:%.2f /%.2f B:%.2f /%.2f", extCur, extTgt, bedCur, bedTgt)
}
