package core

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/model"
)

// DefaultStandardGravity converts specific impulse in seconds to exhaust
// velocity. The value matches the convention of the supported simulators.
const DefaultStandardGravity = 9.82

// GeostationaryAltitude returns the altitude at which the orbital period
// equals the body's rotation period: (mu*T^2/(4*pi^2))^(1/3) - R.
func GeostationaryAltitude(body model.CelestialBody) (float64, error) {
	if body.Mu <= 0 || body.RotationPeriod <= 0 || math.IsNaN(body.Mu) || math.IsNaN(body.RotationPeriod) {
		return 0, fmt.Errorf("%w: mu=%g rotation_period=%g", ErrInvalidBody, body.Mu, body.RotationPeriod)
	}
	if body.Radius < 0 {
		return 0, fmt.Errorf("%w: radius=%g", ErrInvalidBody, body.Radius)
	}
	t := body.RotationPeriod
	return math.Cbrt(body.Mu*t*t/(4*math.Pi*math.Pi)) - body.Radius, nil
}

// CircularizationTarget is the periapsis+apoapsis altitude sum at which the
// burn at targetAltitude is considered complete.
func CircularizationTarget(targetAltitude float64) float64 {
	return 2 * targetAltitude
}

// PlanInput is the orbital and vehicle state the circularization plan is
// computed from.
type PlanInput struct {
	Now            float64 // universal time, s
	TimeToApoapsis float64 // s
	ApoapsisRadius float64 // m from body centre
	SemiMajorAxis  float64 // m
	Mu             float64 // m^3/s^2

	Mass            float64 // kg
	Thrust          float64 // N
	SpecificImpulse float64 // s
	StandardGravity float64 // m/s^2; DefaultStandardGravity when zero
}

// PlanCircularization computes the prograde burn that circularizes the orbit
// at apoapsis. The burn duration assumes constant thrust and specific impulse
// for the whole burn, and the burn is centred on apoapsis arrival.
func PlanCircularization(in PlanInput) (model.ManeuverPlan, error) {
	if in.Mu <= 0 || in.ApoapsisRadius <= 0 || in.SemiMajorAxis <= 0 {
		return model.ManeuverPlan{}, fmt.Errorf("%w: r=%g a=%g mu=%g", ErrInvalidOrbit, in.ApoapsisRadius, in.SemiMajorAxis, in.Mu)
	}
	energyTerm := 2/in.ApoapsisRadius - 1/in.SemiMajorAxis
	if energyTerm <= 0 {
		return model.ManeuverPlan{}, fmt.Errorf("%w: apoapsis radius %g beyond 2a", ErrInvalidOrbit, in.ApoapsisRadius)
	}
	if in.Thrust <= 0 || in.SpecificImpulse <= 0 || in.Mass <= 0 {
		return model.ManeuverPlan{}, fmt.Errorf("%w: thrust=%g isp=%g mass=%g", ErrNoThrust, in.Thrust, in.SpecificImpulse, in.Mass)
	}
	g0 := in.StandardGravity
	if g0 <= 0 {
		g0 = DefaultStandardGravity
	}

	vCircular := math.Sqrt(in.Mu / in.ApoapsisRadius)
	vCurrent := math.Sqrt(in.Mu * energyTerm)
	deltaV := vCircular - vCurrent
	if deltaV <= 0 {
		return model.ManeuverPlan{}, fmt.Errorf("%w: delta-v %.3f m/s", ErrNonRaisingBurn, deltaV)
	}

	exhaust := in.SpecificImpulse * g0
	m1 := in.Mass / math.Exp(deltaV/exhaust)
	flowRate := in.Thrust / exhaust
	duration := (in.Mass - m1) / flowRate

	nodeTime := in.Now + in.TimeToApoapsis
	return model.ManeuverPlan{
		DeltaV:        deltaV,
		BurnDuration:  duration,
		BurnStartTime: nodeTime - duration/2,
		NodeTime:      nodeTime,
	}, nil
}

// OrbitPlanner computes the mission target and, once ascent ends, the
// circularization plan. It owns creation of the maneuver node; the burn
// executor owns its release.
type OrbitPlanner struct {
	telemetry TelemetrySource
	sink      ActuationSink
	body      model.CelestialBody
	g0        float64
	log       logging.Logger
	observer  Observer
}

// NewOrbitPlanner constructs a planner for the given body.
func NewOrbitPlanner(telemetry TelemetrySource, sink ActuationSink, body model.CelestialBody, standardGravity float64, log logging.Logger, observer Observer) *OrbitPlanner {
	if log == nil {
		log = logging.Noop()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &OrbitPlanner{
		telemetry: telemetry,
		sink:      sink,
		body:      body,
		g0:        standardGravity,
		log:       log,
		observer:  observer,
	}
}

// TargetApoapsis returns the geostationary altitude of the planner's body.
func (p *OrbitPlanner) TargetApoapsis() (float64, error) {
	return GeostationaryAltitude(p.body)
}

// Plan reads the current orbit and vehicle state, computes the
// circularization burn and creates the advisory maneuver node at apoapsis.
func (p *OrbitPlanner) Plan(ctx context.Context) (model.ManeuverPlan, error) {
	orbit, err := p.telemetry.Orbit(ctx)
	if err != nil {
		return model.ManeuverPlan{}, fmt.Errorf("read orbit: %w", err)
	}
	sample, err := p.telemetry.Sample(ctx)
	if err != nil {
		return model.ManeuverPlan{}, fmt.Errorf("read telemetry: %w", err)
	}

	mu := orbit.Mu
	if mu <= 0 {
		mu = p.body.Mu
	}
	plan, err := PlanCircularization(PlanInput{
		Now:             orbit.Time,
		TimeToApoapsis:  orbit.TimeToApoapsis,
		ApoapsisRadius:  orbit.ApoapsisRadius,
		SemiMajorAxis:   orbit.SemiMajorAxis,
		Mu:              mu,
		Mass:            sample.Mass,
		Thrust:          sample.AvailableThrust,
		SpecificImpulse: sample.SpecificImpulse,
		StandardGravity: p.g0,
	})
	if err != nil {
		return model.ManeuverPlan{}, err
	}

	node, err := p.sink.AddNode(ctx, plan.NodeTime, plan.DeltaV)
	if err != nil {
		return model.ManeuverPlan{}, fmt.Errorf("create maneuver node: %w", err)
	}
	plan.Node = node

	p.log.Info(ctx, "circularization planned",
		logging.Float64("delta_v", plan.DeltaV),
		logging.Float64("burn_duration", plan.BurnDuration),
		logging.Float64("burn_start_ut", plan.BurnStartTime),
		logging.Float64("time_to_apoapsis", orbit.TimeToApoapsis),
	)
	p.observer.ManeuverPlanned(ctx, plan)
	return plan, nil
}
