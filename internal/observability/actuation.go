package observability

import (
	"context"
	"time"

	"github.com/signalsfoundry/ascent-guidance/core"
	"github.com/signalsfoundry/ascent-guidance/model"
)

// InstrumentActuation wraps v so every actuation command is timed and its
// transport errors counted. Telemetry reads pass through untouched. A nil
// collector returns v unchanged.
func InstrumentActuation(v core.Vehicle, c *MissionCollector) core.Vehicle {
	if c == nil {
		return v
	}
	return &instrumentedVehicle{Vehicle: v, metrics: c}
}

type instrumentedVehicle struct {
	core.Vehicle
	metrics *MissionCollector
}

func (v *instrumentedVehicle) observe(command string, start time.Time, err error) error {
	v.metrics.ObserveActuation(command, time.Since(start), err)
	return err
}

func (v *instrumentedVehicle) EngageAutopilot(ctx context.Context) error {
	start := time.Now()
	return v.observe("engage_autopilot", start, v.Vehicle.EngageAutopilot(ctx))
}

func (v *instrumentedVehicle) DisengageAutopilot(ctx context.Context) error {
	start := time.Now()
	return v.observe("disengage_autopilot", start, v.Vehicle.DisengageAutopilot(ctx))
}

func (v *instrumentedVehicle) SetAttitude(ctx context.Context, pitch, heading float64) error {
	start := time.Now()
	return v.observe("set_attitude", start, v.Vehicle.SetAttitude(ctx, pitch, heading))
}

func (v *instrumentedVehicle) SetThrottle(ctx context.Context, throttle float64) error {
	start := time.Now()
	return v.observe("set_throttle", start, v.Vehicle.SetThrottle(ctx, throttle))
}

func (v *instrumentedVehicle) ActivateNextStage(ctx context.Context) error {
	start := time.Now()
	return v.observe("activate_next_stage", start, v.Vehicle.ActivateNextStage(ctx))
}

func (v *instrumentedVehicle) AddNode(ctx context.Context, ut, prograde float64) (model.NodeHandle, error) {
	start := time.Now()
	node, err := v.Vehicle.AddNode(ctx, ut, prograde)
	return node, v.observe("add_node", start, err)
}
