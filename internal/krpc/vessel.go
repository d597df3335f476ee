// Package krpc adapts a vessel flown in Kerbal Space Program, reached through a
// kRPC server, to the guidance core's vehicle interface.
package krpc

import (
	"context"
	"errors"
	"fmt"

	krpcgo "github.com/atburke/krpc-go"
	"github.com/atburke/krpc-go/spacecenter"

	"github.com/signalsfoundry/ascent-guidance/core"
	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/model"
)

// ErrTransport wraps every failed call to the kRPC server.
var ErrTransport = errors.New("krpc transport")

// Propellants returns the resources summed into a stage's fuel reading.
func Propellants() []string { return []string{"LiquidFuel", "Oxidizer"} }

// Vessel is the active vessel of a connected kRPC server. It is not safe for
// concurrent use; the guidance loop is its only caller.
type Vessel struct {
	client    *krpcgo.KRPCClient
	sc        *spacecenter.SpaceCenter
	vessel    *spacecenter.Vessel
	control   *spacecenter.Control
	autopilot *spacecenter.AutoPilot
	flight    *spacecenter.Flight
	body      model.CelestialBody
	log       logging.Logger
}

var _ core.Vehicle = (*Vessel)(nil)

// Dial connects to the kRPC server at host and binds the active vessel. The
// body constants are read once; they are fixed for a mission.
func Dial(ctx context.Context, host string, log logging.Logger) (*Vessel, error) {
	if log == nil {
		log = logging.Noop()
	}
	client := krpcgo.DefaultKRPCClient()
	if host != "" {
		client.Host = host
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", ErrTransport, host, err)
	}

	v, err := bind(client, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	v.log.Info(ctx, "connected to krpc server",
		logging.String("host", client.Host),
		logging.String("body", v.body.Name),
	)
	return v, nil
}

func bind(client *krpcgo.KRPCClient, log logging.Logger) (*Vessel, error) {
	sc := spacecenter.New(client)
	vessel, err := sc.ActiveVessel()
	if err != nil {
		return nil, transportErr("active vessel", err)
	}
	control, err := vessel.Control()
	if err != nil {
		return nil, transportErr("control", err)
	}
	autopilot, err := vessel.AutoPilot()
	if err != nil {
		return nil, transportErr("autopilot", err)
	}
	frame, err := vessel.SurfaceReferenceFrame()
	if err != nil {
		return nil, transportErr("surface reference frame", err)
	}
	flight, err := vessel.Flight(frame)
	if err != nil {
		return nil, transportErr("flight", err)
	}
	body, err := readBody(vessel)
	if err != nil {
		return nil, err
	}
	return &Vessel{
		client:    client,
		sc:        sc,
		vessel:    vessel,
		control:   control,
		autopilot: autopilot,
		flight:    flight,
		body:      body,
		log:       log.With(logging.String("component", "krpc")),
	}, nil
}

func readBody(vessel *spacecenter.Vessel) (model.CelestialBody, error) {
	orbit, err := vessel.Orbit()
	if err != nil {
		return model.CelestialBody{}, transportErr("orbit", err)
	}
	body, err := orbit.Body()
	if err != nil {
		return model.CelestialBody{}, transportErr("body", err)
	}
	name, err := body.Name()
	if err != nil {
		return model.CelestialBody{}, transportErr("body name", err)
	}
	mu, err := body.GravitationalParameter()
	if err != nil {
		return model.CelestialBody{}, transportErr("gravitational parameter", err)
	}
	radius, err := body.EquatorialRadius()
	if err != nil {
		return model.CelestialBody{}, transportErr("equatorial radius", err)
	}
	period, err := body.RotationalPeriod()
	if err != nil {
		return model.CelestialBody{}, transportErr("rotational period", err)
	}
	return bodyFrom(name, mu, radius, period), nil
}

// bodyFrom widens the server's single precision constants.
func bodyFrom(name string, mu, radius, period float32) model.CelestialBody {
	return model.CelestialBody{
		Name:           name,
		Mu:             float64(mu),
		Radius:         float64(radius),
		RotationPeriod: float64(period),
	}
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransport, op, err)
}

// Body returns the constants of the body the vessel orbits.
func (v *Vessel) Body() model.CelestialBody { return v.body }

// Close releases the server connection.
func (v *Vessel) Close() error {
	v.client.Close()
	return nil
}

// UT implements core.TelemetrySource.
func (v *Vessel) UT(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ut, err := v.sc.UT()
	if err != nil {
		return 0, transportErr("ut", err)
	}
	return ut, nil
}

// Sample implements core.TelemetrySource. Fuel is read from the resources
// that decouple with the next stage activation, which is where the burning
// stage's tanks sit.
func (v *Vessel) Sample(ctx context.Context) (model.TelemetrySample, error) {
	if err := ctx.Err(); err != nil {
		return model.TelemetrySample{}, err
	}
	var s model.TelemetrySample
	var err error

	if s.Time, err = v.sc.UT(); err != nil {
		return s, transportErr("ut", err)
	}
	if s.Altitude, err = v.flight.MeanAltitude(); err != nil {
		return s, transportErr("altitude", err)
	}
	orbit, err := v.vessel.Orbit()
	if err != nil {
		return s, transportErr("orbit", err)
	}
	if s.ApoapsisAltitude, err = orbit.ApoapsisAltitude(); err != nil {
		return s, transportErr("apoapsis altitude", err)
	}
	if s.PeriapsisAltitude, err = orbit.PeriapsisAltitude(); err != nil {
		return s, transportErr("periapsis altitude", err)
	}

	stage, err := v.control.CurrentStage()
	if err != nil {
		return s, transportErr("current stage", err)
	}
	s.CurrentStage = int(stage)
	if s.FuelInStage, err = v.stageFuel(stage); err != nil {
		return s, err
	}

	mass, err := v.vessel.Mass()
	if err != nil {
		return s, transportErr("mass", err)
	}
	thrust, err := v.vessel.AvailableThrust()
	if err != nil {
		return s, transportErr("available thrust", err)
	}
	isp, err := v.vessel.SpecificImpulse()
	if err != nil {
		return s, transportErr("specific impulse", err)
	}
	s.Mass, s.AvailableThrust, s.SpecificImpulse = float64(mass), float64(thrust), float64(isp)
	return s, nil
}

func (v *Vessel) stageFuel(stage int32) (float64, error) {
	resources, err := v.vessel.ResourcesInDecoupleStage(decoupleStage(stage), false)
	if err != nil {
		return 0, transportErr("stage resources", err)
	}
	total := 0.0
	for _, name := range Propellants() {
		amount, err := resources.Amount(name)
		if err != nil {
			return 0, transportErr("resource "+name, err)
		}
		total += float64(amount)
	}
	return total, nil
}

// decoupleStage is the decouple stage of the tanks feeding the engines
// lit at stage.
func decoupleStage(stage int32) int32 {
	return stage - 1
}

// Orbit implements core.TelemetrySource.
func (v *Vessel) Orbit(ctx context.Context) (model.OrbitSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.OrbitSnapshot{}, err
	}
	var o model.OrbitSnapshot
	var err error

	if o.Time, err = v.sc.UT(); err != nil {
		return o, transportErr("ut", err)
	}
	orbit, err := v.vessel.Orbit()
	if err != nil {
		return o, transportErr("orbit", err)
	}
	if o.ApoapsisRadius, err = orbit.Apoapsis(); err != nil {
		return o, transportErr("apoapsis", err)
	}
	if o.ApoapsisAltitude, err = orbit.ApoapsisAltitude(); err != nil {
		return o, transportErr("apoapsis altitude", err)
	}
	if o.PeriapsisAltitude, err = orbit.PeriapsisAltitude(); err != nil {
		return o, transportErr("periapsis altitude", err)
	}
	if o.SemiMajorAxis, err = orbit.SemiMajorAxis(); err != nil {
		return o, transportErr("semi-major axis", err)
	}
	if o.TimeToApoapsis, err = orbit.TimeToApoapsis(); err != nil {
		return o, transportErr("time to apoapsis", err)
	}
	o.Mu = v.body.Mu
	return o, nil
}

// EngageAutopilot implements core.ActuationSink.
func (v *Vessel) EngageAutopilot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.autopilot.Engage(); err != nil {
		return transportErr("engage autopilot", err)
	}
	return nil
}

// DisengageAutopilot implements core.ActuationSink.
func (v *Vessel) DisengageAutopilot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.autopilot.Disengage(); err != nil {
		return transportErr("disengage autopilot", err)
	}
	return nil
}

// SetAttitude implements core.ActuationSink.
func (v *Vessel) SetAttitude(ctx context.Context, pitch, heading float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.autopilot.TargetPitchAndHeading(float32(pitch), float32(heading)); err != nil {
		return transportErr("target pitch and heading", err)
	}
	return nil
}

// SetThrottle implements core.ActuationSink.
func (v *Vessel) SetThrottle(ctx context.Context, throttle float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.control.SetThrottle(float32(throttle)); err != nil {
		return transportErr("set throttle", err)
	}
	return nil
}

// ActivateNextStage implements core.ActuationSink. Vessels split off by the
// separation are not tracked.
func (v *Vessel) ActivateNextStage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := v.control.ActivateNextStage(); err != nil {
		return transportErr("activate next stage", err)
	}
	return nil
}

// AddNode implements core.ActuationSink.
func (v *Vessel) AddNode(ctx context.Context, ut, prograde float64) (model.NodeHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	node, err := v.control.AddNode(ut, float32(prograde), 0, 0)
	if err != nil {
		return nil, transportErr("add node", err)
	}
	return nodeHandle{node: node}, nil
}

type nodeHandle struct {
	node *spacecenter.Node
}

func (n nodeHandle) Remove() error {
	if err := n.node.Remove(); err != nil {
		return transportErr("remove node", err)
	}
	return nil
}
