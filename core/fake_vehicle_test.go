package core

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/ascent-guidance/model"
)

type attitudeCmd struct {
	pitch, heading float64
}

type fakeNode struct {
	ut, prograde float64
	removed      int
}

func (n *fakeNode) Remove() error {
	n.removed++
	return nil
}

// fakeVehicle replays scripted telemetry and records every command. Once a
// script is exhausted the last entry repeats. Sleeping advances UT.
type fakeVehicle struct {
	ut float64

	samples   []model.TelemetrySample
	sampleIdx int
	orbits    []model.OrbitSnapshot
	orbitIdx  int

	sampleErrAt int // 1-based read index that fails; 0 disables
	orbitErrAt  int

	calls     []string
	attitudes []attitudeCmd
	throttles []float64
	sleeps    []time.Duration
	nodes     []*fakeNode
}

var errTelemetryLost = errors.New("telemetry connection lost")

func (f *fakeVehicle) UT(context.Context) (float64, error) { return f.ut, nil }

func (f *fakeVehicle) Sample(context.Context) (model.TelemetrySample, error) {
	f.sampleIdx++
	if f.sampleErrAt > 0 && f.sampleIdx >= f.sampleErrAt {
		return model.TelemetrySample{}, errTelemetryLost
	}
	if len(f.samples) == 0 {
		return model.TelemetrySample{Time: f.ut}, nil
	}
	i := f.sampleIdx - 1
	if i >= len(f.samples) {
		i = len(f.samples) - 1
	}
	s := f.samples[i]
	if s.Time == 0 {
		s.Time = f.ut
	}
	return s, nil
}

func (f *fakeVehicle) Orbit(context.Context) (model.OrbitSnapshot, error) {
	f.orbitIdx++
	if f.orbitErrAt > 0 && f.orbitIdx >= f.orbitErrAt {
		return model.OrbitSnapshot{}, errTelemetryLost
	}
	if len(f.orbits) == 0 {
		return model.OrbitSnapshot{Time: f.ut}, nil
	}
	i := f.orbitIdx - 1
	if i >= len(f.orbits) {
		i = len(f.orbits) - 1
	}
	o := f.orbits[i]
	if o.Time == 0 {
		o.Time = f.ut
	}
	return o, nil
}

func (f *fakeVehicle) EngageAutopilot(context.Context) error {
	f.calls = append(f.calls, "engage")
	return nil
}

func (f *fakeVehicle) DisengageAutopilot(context.Context) error {
	f.calls = append(f.calls, "disengage")
	return nil
}

func (f *fakeVehicle) SetAttitude(_ context.Context, pitch, heading float64) error {
	f.calls = append(f.calls, "attitude")
	f.attitudes = append(f.attitudes, attitudeCmd{pitch: pitch, heading: heading})
	return nil
}

func (f *fakeVehicle) SetThrottle(_ context.Context, throttle float64) error {
	f.calls = append(f.calls, "throttle")
	f.throttles = append(f.throttles, throttle)
	return nil
}

func (f *fakeVehicle) ActivateNextStage(context.Context) error {
	f.calls = append(f.calls, "stage")
	return nil
}

func (f *fakeVehicle) AddNode(_ context.Context, ut, prograde float64) (model.NodeHandle, error) {
	f.calls = append(f.calls, "node")
	n := &fakeNode{ut: ut, prograde: prograde}
	f.nodes = append(f.nodes, n)
	return n, nil
}

func (f *fakeVehicle) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.sleeps = append(f.sleeps, d)
	f.ut += d.Seconds()
	return nil
}

func (f *fakeVehicle) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeVehicle) lastThrottle() float64 {
	if len(f.throttles) == 0 {
		return -1
	}
	return f.throttles[len(f.throttles)-1]
}

// recordingObserver keeps the events the core emits.
type recordingObserver struct {
	NopObserver
	phases  []model.MissionPhase
	ascent  []model.AscentPhase
	issued  []model.StagingEvent
	checked []model.StagingEvent
	plans   []model.ManeuverPlan
}

func (r *recordingObserver) MissionPhaseChanged(_ context.Context, phase model.MissionPhase, _ float64) {
	r.phases = append(r.phases, phase)
}

func (r *recordingObserver) AscentPhaseChanged(_ context.Context, phase model.AscentPhase, _ model.TelemetrySample) {
	r.ascent = append(r.ascent, phase)
}

func (r *recordingObserver) StagingIssued(_ context.Context, ev model.StagingEvent) {
	r.issued = append(r.issued, ev)
}

func (r *recordingObserver) StagingChecked(_ context.Context, ev model.StagingEvent) {
	r.checked = append(r.checked, ev)
}

func (r *recordingObserver) ManeuverPlanned(_ context.Context, plan model.ManeuverPlan) {
	r.plans = append(r.plans, plan)
}
