package core

import (
	"context"

	"github.com/signalsfoundry/ascent-guidance/model"
)

// TelemetrySource supplies vehicle state. Each call reads the vehicle afresh;
// implementations must not serve cached values across ticks.
type TelemetrySource interface {
	// UT returns the current universal (simulation) time in seconds.
	UT(ctx context.Context) (float64, error)
	// Sample returns the per-tick view used by the ascent controller.
	Sample(ctx context.Context) (model.TelemetrySample, error)
	// Orbit returns the orbital elements used for planning and burn control.
	Orbit(ctx context.Context) (model.OrbitSnapshot, error)
}

// ActuationSink accepts vehicle commands. Commands are fire-and-forget: a nil
// error only means the command was delivered, and its effect is observed
// through the next telemetry sample.
type ActuationSink interface {
	EngageAutopilot(ctx context.Context) error
	DisengageAutopilot(ctx context.Context) error
	// SetAttitude sets the autopilot target in degrees.
	SetAttitude(ctx context.Context, pitch, heading float64) error
	// SetThrottle sets the throttle as a fraction in [0, 1].
	SetThrottle(ctx context.Context, throttle float64) error
	ActivateNextStage(ctx context.Context) error
	// AddNode creates a maneuver node at ut with a prograde delta-v.
	AddNode(ctx context.Context, ut, prograde float64) (model.NodeHandle, error)
}

// Vehicle is a connection that provides both telemetry and actuation.
type Vehicle interface {
	TelemetrySource
	ActuationSink
}

func clampThrottle(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
