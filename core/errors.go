package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/ascent-guidance/model"
)

var (
	// ErrInvalidBody indicates degenerate body constants (mu or rotation period <= 0).
	ErrInvalidBody = errors.New("invalid celestial body constants")
	// ErrInvalidOrbit indicates orbital elements the planner cannot use.
	ErrInvalidOrbit = errors.New("invalid orbit for circularization")
	// ErrNoThrust indicates the vehicle reports no usable thrust or specific impulse.
	ErrNoThrust = errors.New("vehicle has no available thrust")
	// ErrNonRaisingBurn indicates the orbit is already circular or higher at apoapsis.
	ErrNonRaisingBurn = errors.New("circularization delta-v is not positive")
	// ErrBurnTimeout indicates the burn ran past its configured guard.
	ErrBurnTimeout = errors.New("circularization burn exceeded timeout")
)

// MissionError reports the sequencer phase in which a mission halted.
type MissionError struct {
	Phase model.MissionPhase
	Err   error
}

func (e *MissionError) Error() string {
	return fmt.Sprintf("mission halted in %s: %v", e.Phase, e.Err)
}

func (e *MissionError) Unwrap() error { return e.Err }
