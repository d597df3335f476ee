package model

import "fmt"

// StagingEvent records a stage-advance issued during ascent.
type StagingEvent struct {
	Time     float64
	Stage    int // stage index at the moment the advance was issued
	Fuel     float64
	Altitude float64
	Kind     string
	// Verified is set when a follow-up sample showed a lower stage index.
	Verified bool
}

// ClassifyStaging returns a human-readable label for a separation at the
// given stage index. The label is informational only.
func ClassifyStaging(stage int) string {
	switch {
	case stage == 9:
		return "liftoff"
	case stage == 5 || stage == 6:
		return "fairing separation"
	default:
		return fmt.Sprintf("stage %d separation", stage)
	}
}

// ManeuverPlan describes the circularization burn. Node is owned by whoever
// executes the plan and must be released exactly once.
type ManeuverPlan struct {
	DeltaV        float64 // m/s, prograde
	BurnDuration  float64 // s
	BurnStartTime float64 // universal time, s
	NodeTime      float64 // universal time of apoapsis arrival

	Node NodeHandle
}

// NodeHandle is a maneuver node created at the actuation sink.
type NodeHandle interface {
	Remove() error
}

// MissionReport summarises a completed (or halted) mission.
type MissionReport struct {
	MissionID      string
	TargetAltitude float64
	FinalPhase     MissionPhase
	StagingEvents  []StagingEvent
	Plan           ManeuverPlan
	AscentExit     TelemetrySample
	FinalOrbit     OrbitSnapshot
	ElapsedSeconds float64
}
