package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"

	"github.com/signalsfoundry/ascent-guidance/model"
)

func TestMissionCollectorTracksEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewMissionCollector(reg)
	if err != nil {
		t.Fatalf("NewMissionCollector: %v", err)
	}
	ctx := context.Background()

	c.MissionPhaseChanged(ctx, model.MissionAscent, 0)
	c.AscentPhaseChanged(ctx, model.PhasePitch30, model.TelemetrySample{})
	c.StagingIssued(ctx, model.StagingEvent{Stage: 4})
	c.StagingChecked(ctx, model.StagingEvent{Stage: 4, Verified: true})
	c.StagingIssued(ctx, model.StagingEvent{Stage: 3})
	c.StagingChecked(ctx, model.StagingEvent{Stage: 3, Verified: false})
	c.OrbitSampled(ctx, model.OrbitSnapshot{ApoapsisAltitude: 2.8e6, PeriapsisAltitude: 1e5})
	c.ManeuverPlanned(ctx, model.ManeuverPlan{DeltaV: 480, BurnDuration: 41})
	c.MissionPhaseChanged(ctx, model.MissionDone, 0)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"mission phase", testutil.ToFloat64(c.MissionPhase), float64(model.MissionDone)},
		{"ascent phase", testutil.ToFloat64(c.AscentPhase), float64(model.PhasePitch30)},
		{"staging events", testutil.ToFloat64(c.StagingEvents), 2},
		{"unverified staging", testutil.ToFloat64(c.StagingUnverified), 1},
		{"apoapsis", testutil.ToFloat64(c.ApoapsisAltitude), 2.8e6},
		{"periapsis", testutil.ToFloat64(c.PeriapsisAltitude), 1e5},
		{"delta-v", testutil.ToFloat64(c.PlannedDeltaV), 480},
		{"burn duration", testutil.ToFloat64(c.PlannedBurn), 41},
		{"missions done", testutil.ToFloat64(c.Missions.WithLabelValues("done")), 1},
		{"missions aborted", testutil.ToFloat64(c.Missions.WithLabelValues("aborted")), 0},
	}
	for _, chk := range checks {
		if chk.got != chk.want {
			t.Fatalf("%s = %v, want %v", chk.name, chk.got, chk.want)
		}
	}
}

func TestMissionCollectorNilSafe(t *testing.T) {
	var c *MissionCollector
	ctx := context.Background()
	c.MissionPhaseChanged(ctx, model.MissionDone, 0)
	c.TelemetrySampled(ctx, model.TelemetrySample{})
	c.StagingChecked(ctx, model.StagingEvent{})
	c.ObserveActuation("set_throttle", time.Millisecond, nil)
	if c.Gatherer() != nil {
		t.Fatalf("nil collector should have no gatherer")
	}
}

type stubVehicle struct {
	throttleErr error
	throttles   []float64
}

func (s *stubVehicle) UT(context.Context) (float64, error) { return 42, nil }
func (s *stubVehicle) Sample(context.Context) (model.TelemetrySample, error) {
	return model.TelemetrySample{Altitude: 1}, nil
}
func (s *stubVehicle) Orbit(context.Context) (model.OrbitSnapshot, error) {
	return model.OrbitSnapshot{}, nil
}
func (s *stubVehicle) EngageAutopilot(context.Context) error               { return nil }
func (s *stubVehicle) DisengageAutopilot(context.Context) error            { return nil }
func (s *stubVehicle) SetAttitude(context.Context, float64, float64) error { return nil }
func (s *stubVehicle) ActivateNextStage(context.Context) error             { return nil }
func (s *stubVehicle) AddNode(context.Context, float64, float64) (model.NodeHandle, error) {
	return nil, nil
}
func (s *stubVehicle) SetThrottle(_ context.Context, v float64) error {
	s.throttles = append(s.throttles, v)
	return s.throttleErr
}

func TestInstrumentActuation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewMissionCollector(reg)
	if err != nil {
		t.Fatalf("NewMissionCollector: %v", err)
	}
	inner := &stubVehicle{throttleErr: errors.New("link down")}
	v := InstrumentActuation(inner, c)
	ctx := context.Background()

	if err := v.SetThrottle(ctx, 0.5); err == nil {
		t.Fatalf("expected the transport error to pass through")
	}
	if err := v.SetAttitude(ctx, 45, 90); err != nil {
		t.Fatalf("SetAttitude: %v", err)
	}
	if ut, _ := v.UT(ctx); ut != 42 {
		t.Fatalf("telemetry should pass through, got UT %v", ut)
	}
	if len(inner.throttles) != 1 || inner.throttles[0] != 0.5 {
		t.Fatalf("command not forwarded: %v", inner.throttles)
	}

	if got := testutil.ToFloat64(c.ActuationErrors.WithLabelValues("set_throttle")); got != 1 {
		t.Fatalf("actuation errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ActuationErrors.WithLabelValues("set_attitude")); got != 0 {
		t.Fatalf("set_attitude errors = %v, want 0", got)
	}
	for _, cmd := range []string{"set_throttle", "set_attitude"} {
		if n := histogramSampleCount(t, reg, "guidance_actuation_duration_seconds", map[string]string{"command": cmd}); n != 1 {
			t.Fatalf("%s duration samples = %d, want 1", cmd, n)
		}
	}
}

func TestInstrumentActuationNilCollector(t *testing.T) {
	inner := &stubVehicle{}
	if v := InstrumentActuation(inner, nil); v != inner {
		t.Fatalf("nil collector should return the vehicle unchanged")
	}
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{
		Enabled:     true,
		ServiceName: "guidance-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(ctx, "mission/BURN")
	span.End()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "mission/BURN") {
		t.Fatalf("expected exported span, got %q", buf.String())
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon"}, nil)
	if err == nil {
		t.Fatalf("expected an error for an unknown exporter")
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}
