package model

import "fmt"

// AscentPhase is the gravity-turn phase reached during powered ascent.
// Phases are ordered; a single ascent never moves to a lower phase.
type AscentPhase int

const (
	PhaseLiftoff AscentPhase = iota
	PhasePitch90
	PhasePitch45
	PhasePitch30
	PhasePitch20
)

func (p AscentPhase) String() string {
	switch p {
	case PhaseLiftoff:
		return "LIFTOFF"
	case PhasePitch90:
		return "PITCH_90"
	case PhasePitch45:
		return "PITCH_45"
	case PhasePitch30:
		return "PITCH_30"
	case PhasePitch20:
		return "PITCH_20"
	default:
		return fmt.Sprintf("AscentPhase(%d)", int(p))
	}
}

// MissionPhase is a state of the mission sequencer.
type MissionPhase int

const (
	MissionPending MissionPhase = iota
	MissionEngageAutopilot
	MissionLiftoffCountdown
	MissionThrottleUp
	MissionAscent
	MissionZeroThrottle
	MissionCoastWait
	MissionBurn
	MissionFinalizeAttitude
	MissionDone
	MissionAborted
)

var missionPhaseNames = map[MissionPhase]string{
	MissionPending:          "PENDING",
	MissionEngageAutopilot:  "ENGAGE_AUTOPILOT",
	MissionLiftoffCountdown: "LIFTOFF_COUNTDOWN",
	MissionThrottleUp:       "THROTTLE_UP",
	MissionAscent:           "ASCENT_LOOP",
	MissionZeroThrottle:     "ZERO_THROTTLE",
	MissionCoastWait:        "COAST_WAIT",
	MissionBurn:             "BURN",
	MissionFinalizeAttitude: "FINALIZE_ATTITUDE",
	MissionDone:             "DONE",
	MissionAborted:          "ABORTED",
}

func (p MissionPhase) String() string {
	if name, ok := missionPhaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("MissionPhase(%d)", int(p))
}

// Terminal reports whether no further transitions follow p.
func (p MissionPhase) Terminal() bool {
	return p == MissionDone || p == MissionAborted
}
