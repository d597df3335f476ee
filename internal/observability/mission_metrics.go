package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/ascent-guidance/core"
	"github.com/signalsfoundry/ascent-guidance/model"
)

// MissionCollector exposes guidance-loop metrics. It implements
// core.Observer so the sequencer drives it directly.
type MissionCollector struct {
	gatherer prometheus.Gatherer

	MissionPhase      prometheus.Gauge
	AscentPhase       prometheus.Gauge
	Altitude          prometheus.Gauge
	ApoapsisAltitude  prometheus.Gauge
	PeriapsisAltitude prometheus.Gauge
	CurrentStage      prometheus.Gauge
	StageFuel         prometheus.Gauge
	PlannedDeltaV     prometheus.Gauge
	PlannedBurn       prometheus.Gauge

	StagingEvents     prometheus.Counter
	StagingUnverified prometheus.Counter
	Missions          *prometheus.CounterVec

	ActuationDuration *prometheus.HistogramVec
	ActuationErrors   *prometheus.CounterVec
}

var _ core.Observer = (*MissionCollector)(nil)

// NewMissionCollector registers guidance metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewMissionCollector(reg prometheus.Registerer) (*MissionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &MissionCollector{gatherer: gatherer}
	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.MissionPhase, "guidance_mission_phase", "Current mission sequencer phase as its ordinal."},
		{&c.AscentPhase, "guidance_ascent_phase", "Highest ascent phase reached as its ordinal."},
		{&c.Altitude, "guidance_altitude_meters", "Mean altitude from the last telemetry sample."},
		{&c.ApoapsisAltitude, "guidance_apoapsis_altitude_meters", "Apoapsis altitude from the last telemetry or orbit sample."},
		{&c.PeriapsisAltitude, "guidance_periapsis_altitude_meters", "Periapsis altitude from the last telemetry or orbit sample."},
		{&c.CurrentStage, "guidance_current_stage", "Current propulsion stage index."},
		{&c.StageFuel, "guidance_stage_fuel_units", "Liquid fuel plus oxidizer remaining in the current stage."},
		{&c.PlannedDeltaV, "guidance_maneuver_delta_v_mps", "Delta-v of the planned circularization burn."},
		{&c.PlannedBurn, "guidance_maneuver_burn_duration_seconds", "Planned circularization burn duration."},
	}
	for _, g := range gauges {
		gauge, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name)
		if err != nil {
			return nil, err
		}
		*g.dst = gauge
	}

	var err error
	c.StagingEvents, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guidance_staging_events_total",
		Help: "Stage advances issued by the ascent controller.",
	}), "guidance_staging_events_total")
	if err != nil {
		return nil, err
	}
	c.StagingUnverified, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guidance_staging_unverified_total",
		Help: "Stage advances whose effect was not observed in the following telemetry sample.",
	}), "guidance_staging_unverified_total")
	if err != nil {
		return nil, err
	}
	c.Missions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guidance_missions_total",
		Help: "Missions that reached a terminal phase, labeled by result.",
	}, []string{"result"}), "guidance_missions_total")
	if err != nil {
		return nil, err
	}
	c.ActuationDuration, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guidance_actuation_duration_seconds",
		Help:    "Latency of actuation commands sent to the vehicle.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"command"}), "guidance_actuation_duration_seconds")
	if err != nil {
		return nil, err
	}
	c.ActuationErrors, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guidance_actuation_errors_total",
		Help: "Actuation commands rejected by the vehicle transport.",
	}, []string{"command"}), "guidance_actuation_errors_total")
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *MissionCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *MissionCollector) MissionPhaseChanged(_ context.Context, phase model.MissionPhase, _ float64) {
	if c == nil {
		return
	}
	c.MissionPhase.Set(float64(phase))
	switch phase {
	case model.MissionDone:
		c.Missions.WithLabelValues("done").Inc()
	case model.MissionAborted:
		c.Missions.WithLabelValues("aborted").Inc()
	}
}

func (c *MissionCollector) AscentPhaseChanged(_ context.Context, phase model.AscentPhase, _ model.TelemetrySample) {
	if c == nil {
		return
	}
	c.AscentPhase.Set(float64(phase))
}

func (c *MissionCollector) TelemetrySampled(_ context.Context, s model.TelemetrySample) {
	if c == nil {
		return
	}
	c.Altitude.Set(s.Altitude)
	c.ApoapsisAltitude.Set(s.ApoapsisAltitude)
	c.PeriapsisAltitude.Set(s.PeriapsisAltitude)
	c.CurrentStage.Set(float64(s.CurrentStage))
	c.StageFuel.Set(s.FuelInStage)
}

func (c *MissionCollector) OrbitSampled(_ context.Context, o model.OrbitSnapshot) {
	if c == nil {
		return
	}
	c.ApoapsisAltitude.Set(o.ApoapsisAltitude)
	c.PeriapsisAltitude.Set(o.PeriapsisAltitude)
}

func (c *MissionCollector) StagingIssued(context.Context, model.StagingEvent) {
	if c == nil {
		return
	}
	c.StagingEvents.Inc()
}

func (c *MissionCollector) StagingChecked(_ context.Context, ev model.StagingEvent) {
	if c == nil || ev.Verified {
		return
	}
	c.StagingUnverified.Inc()
}

func (c *MissionCollector) ManeuverPlanned(_ context.Context, plan model.ManeuverPlan) {
	if c == nil {
		return
	}
	c.PlannedDeltaV.Set(plan.DeltaV)
	c.PlannedBurn.Set(plan.BurnDuration)
}

// ObserveActuation records one actuation command.
func (c *MissionCollector) ObserveActuation(command string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.ActuationDuration.WithLabelValues(command).Observe(d.Seconds())
	if err != nil {
		c.ActuationErrors.WithLabelValues(command).Inc()
	}
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
