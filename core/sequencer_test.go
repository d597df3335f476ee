package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/model"
)

func scriptedMission() *fakeVehicle {
	vehicle := model.TelemetrySample{Mass: 5000, AvailableThrust: 60000, SpecificImpulse: 345}
	sample := func(alt, ap float64) model.TelemetrySample {
		s := vehicle
		s.Altitude = alt
		s.ApoapsisAltitude = ap
		s.CurrentStage = 1
		return s
	}
	return &fakeVehicle{
		ut: 1000,
		samples: []model.TelemetrySample{
			sample(5000, 1e5),
			sample(15000, 2e6),
			sample(40000, 2868800),
		},
		orbits: []model.OrbitSnapshot{
			{
				ApoapsisRadius:    3468800,
				ApoapsisAltitude:  2868800,
				PeriapsisAltitude: 50000,
				SemiMajorAxis:     2059400,
				Mu:                3.5316e12,
				TimeToApoapsis:    30,
			},
			{ApoapsisAltitude: 2868800, PeriapsisAltitude: 1e6},
			{ApoapsisAltitude: 2868800, PeriapsisAltitude: 2868800},
		},
	}
}

func newTestSequencer(v *fakeVehicle, body model.CelestialBody, obs Observer) *Sequencer {
	return NewSequencer(v, body, DefaultSequencerConfig(), WithSleeper(v), WithObserver(obs))
}

func TestSequencer_FullMission(t *testing.T) {
	v := scriptedMission()
	obs := &recordingObserver{}
	seq := newTestSequencer(v, model.Kerbin, obs)

	ctx := logging.ContextWithMissionID(context.Background(), "mission-1")
	report, err := seq.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantPhases := []model.MissionPhase{
		model.MissionEngageAutopilot,
		model.MissionLiftoffCountdown,
		model.MissionThrottleUp,
		model.MissionAscent,
		model.MissionZeroThrottle,
		model.MissionCoastWait,
		model.MissionBurn,
		model.MissionFinalizeAttitude,
		model.MissionDone,
	}
	if len(obs.phases) != len(wantPhases) {
		t.Fatalf("phases = %v, want %v", obs.phases, wantPhases)
	}
	for i := range wantPhases {
		if obs.phases[i] != wantPhases[i] {
			t.Fatalf("phases = %v, want %v", obs.phases, wantPhases)
		}
	}
	if seq.Phase() != model.MissionDone || report.FinalPhase != model.MissionDone {
		t.Fatalf("final phase %s / %s", seq.Phase(), report.FinalPhase)
	}

	if report.MissionID != "mission-1" {
		t.Fatalf("mission id %q", report.MissionID)
	}
	if math.Abs(report.TargetAltitude-2868750.725) > 1e-3 {
		t.Fatalf("target altitude %v", report.TargetAltitude)
	}
	if math.Abs(report.Plan.DeltaV-442.1428570542481) > 1e-9 {
		t.Fatalf("planned delta-v %v", report.Plan.DeltaV)
	}
	if report.Plan.Node != nil {
		t.Fatalf("report should not hold a live node")
	}
	if report.FinalOrbit.PeriapsisAltitude != 2868800 {
		t.Fatalf("final orbit %+v", report.FinalOrbit)
	}
	if report.ElapsedSeconds <= 0 {
		t.Fatalf("elapsed seconds %v", report.ElapsedSeconds)
	}

	if len(v.nodes) != 1 || v.nodes[0].removed != 1 {
		t.Fatalf("expected one node removed once, got %+v", v.nodes)
	}
	if n := v.count("stage"); n != 1 {
		t.Fatalf("expected only the ignition stage advance, got %d", n)
	}
	wantThrottle := []float64{1, 1, 0, 1, 0}
	if len(v.throttles) != len(wantThrottle) {
		t.Fatalf("throttles = %v, want %v", v.throttles, wantThrottle)
	}
	for i := range wantThrottle {
		if v.throttles[i] != wantThrottle[i] {
			t.Fatalf("throttles = %v, want %v", v.throttles, wantThrottle)
		}
	}
	first, last := v.attitudes[0], v.attitudes[len(v.attitudes)-1]
	if first != (attitudeCmd{pitch: 90, heading: 90}) || last != (attitudeCmd{pitch: -90, heading: 90}) {
		t.Fatalf("attitudes start %v end %v", first, last)
	}
	if v.sleeps[len(v.sleeps)-1] != 20*time.Second {
		t.Fatalf("expected final hold, last sleep %v", v.sleeps[len(v.sleeps)-1])
	}
	countdown := 0
	for _, d := range v.sleeps[:3] {
		if d == time.Second {
			countdown++
		}
	}
	if countdown != 3 {
		t.Fatalf("expected a 3 step countdown, sleeps = %v", v.sleeps[:3])
	}
}

func TestSequencer_InvalidBodyIssuesNoCommands(t *testing.T) {
	v := scriptedMission()
	obs := &recordingObserver{}
	seq := newTestSequencer(v, model.CelestialBody{Name: "broken", Radius: 1}, obs)

	report, err := seq.Run(context.Background())
	if !errors.Is(err, ErrInvalidBody) {
		t.Fatalf("expected ErrInvalidBody, got %v", err)
	}
	var mErr *MissionError
	if !errors.As(err, &mErr) || mErr.Phase != model.MissionPending {
		t.Fatalf("expected MissionError in PENDING, got %v", err)
	}
	if len(v.calls) != 0 {
		t.Fatalf("configuration error must not actuate, got %v", v.calls)
	}
	if report.FinalPhase != model.MissionAborted {
		t.Fatalf("report phase %s", report.FinalPhase)
	}
	if len(obs.phases) != 1 || obs.phases[0] != model.MissionAborted {
		t.Fatalf("observer should only see the abort, got %v", obs.phases)
	}
}

func TestSequencer_TelemetryLossDuringAscentCutsThrottle(t *testing.T) {
	v := scriptedMission()
	v.sampleErrAt = 2
	obs := &recordingObserver{}
	seq := newTestSequencer(v, model.Kerbin, obs)

	_, err := seq.Run(context.Background())
	var mErr *MissionError
	if !errors.As(err, &mErr) || mErr.Phase != model.MissionAscent {
		t.Fatalf("expected MissionError in ASCENT_LOOP, got %v", err)
	}
	if !errors.Is(err, errTelemetryLost) {
		t.Fatalf("cause should be preserved, got %v", err)
	}
	if v.lastThrottle() != 0 {
		t.Fatalf("safe abort should cut throttle, last = %v", v.lastThrottle())
	}
	if seq.Phase() != model.MissionAborted {
		t.Fatalf("phase %s, want ABORTED", seq.Phase())
	}
	if obs.phases[len(obs.phases)-1] != model.MissionAborted {
		t.Fatalf("observer should see the abort, got %v", obs.phases)
	}
}

func TestSequencer_SafeAbortDisabled(t *testing.T) {
	v := scriptedMission()
	v.sampleErrAt = 2
	cfg := DefaultSequencerConfig()
	cfg.SafeAbort = false
	seq := NewSequencer(v, model.Kerbin, cfg, WithSleeper(v))

	if _, err := seq.Run(context.Background()); err == nil {
		t.Fatalf("expected failure")
	}
	if v.lastThrottle() != 1 {
		t.Fatalf("throttle should be left as the last phase set it, got %v", v.lastThrottle())
	}
}

func TestSequencer_BurnFailureReleasesNode(t *testing.T) {
	v := scriptedMission()
	v.orbitErrAt = 3
	seq := newTestSequencer(v, model.Kerbin, nil)

	_, err := seq.Run(context.Background())
	var mErr *MissionError
	if !errors.As(err, &mErr) || mErr.Phase != model.MissionBurn {
		t.Fatalf("expected MissionError in BURN, got %v", err)
	}
	if len(v.nodes) != 1 || v.nodes[0].removed != 1 {
		t.Fatalf("node must be released on abort, got %+v", v.nodes)
	}
}

func TestSequencer_CancelledBeforeLaunch(t *testing.T) {
	v := scriptedMission()
	seq := newTestSequencer(v, model.Kerbin, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seq.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var mErr *MissionError
	if !errors.As(err, &mErr) || mErr.Phase != model.MissionLiftoffCountdown {
		t.Fatalf("expected halt during countdown, got %v", err)
	}
	if v.lastThrottle() != 0 {
		t.Fatalf("safe abort should still cut throttle on a cancelled context")
	}
}
