// Package sim provides an in-process vehicle for running missions without a
// game server. The vehicle flies a planar, non-rotating two-body model with
// a stack of sequentially fired stages.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/signalsfoundry/ascent-guidance/core"
	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/model"
	"github.com/signalsfoundry/ascent-guidance/timectrl"
)

// ErrNodeRemoved is returned when a maneuver node is removed twice.
var ErrNodeRemoved = errors.New("maneuver node already removed")

// Stage describes one stage of the simulated stack. A stage's engine fires
// while the vehicle's current stage equals Index.
type Stage struct {
	Index           int
	DryMass         float64 // kg
	Propellant      float64 // resource units
	Thrust          float64 // N, vacuum
	SpecificImpulse float64 // s
}

// DefaultStages returns a three stage stack sized to lift the default payload
// from Kerbin to a geostationary apoapsis.
func DefaultStages() []Stage {
	return []Stage{
		{Index: 4, DryMass: 3000, Propellant: 3600, Thrust: 650000, SpecificImpulse: 290},
		{Index: 3, DryMass: 1500, Propellant: 1000, Thrust: 215000, SpecificImpulse: 320},
		{Index: 2, DryMass: 800, Propellant: 800, Thrust: 60000, SpecificImpulse: 345},
	}
}

// Config describes the simulated vehicle.
type Config struct {
	Body   model.CelestialBody
	Stages []Stage

	// PayloadMass is carried above every stage.
	// Default: 1000 kg
	PayloadMass float64

	// InitialStage is the stage index on the pad. Ignition advances it to the
	// first engine stage.
	// Default: one above the highest stage index
	InitialStage int

	// UnitMass is the mass of one propellant unit.
	// Default: 5 kg
	UnitMass float64

	// StandardGravity converts specific impulse to exhaust velocity.
	// Default: 9.82 m/s^2
	StandardGravity float64

	// Substep is the integrator step.
	// Default: 20ms
	Substep time.Duration

	// StartUT is the universal time on the pad, in seconds.
	StartUT float64

	// TimeWarp paces Sleep against the wall clock: simulated time runs
	// TimeWarp times faster than real time. Zero does not wait at all.
	TimeWarp float64
}

// DefaultConfig returns a Kerbin launch with the default stack.
func DefaultConfig() Config {
	return Config{Body: model.Kerbin, Stages: DefaultStages()}.ApplyDefaults()
}

// ApplyDefaults fills zero fields.
func (c Config) ApplyDefaults() Config {
	if c.Body.Mu == 0 {
		c.Body = model.Kerbin
	}
	if c.Stages == nil {
		c.Stages = DefaultStages()
	}
	if c.PayloadMass <= 0 {
		c.PayloadMass = 1000
	}
	if c.InitialStage == 0 {
		for _, s := range c.Stages {
			if s.Index >= c.InitialStage {
				c.InitialStage = s.Index + 1
			}
		}
	}
	if c.UnitMass <= 0 {
		c.UnitMass = 5
	}
	if c.StandardGravity <= 0 {
		c.StandardGravity = 9.82
	}
	if c.Substep <= 0 {
		c.Substep = 20 * time.Millisecond
	}
	if c.TimeWarp < 0 {
		c.TimeWarp = 0
	}
	return c
}

type attitude struct {
	pitch, heading float64
}

// Vehicle is a simulated launch vehicle. It implements core.Vehicle and
// timectrl.Sleeper: sleeping advances the simulation, so the guidance loop
// and the physics stay in lock-step.
type Vehicle struct {
	// mu guards all state below. Advance holds it while the clock drives
	// step on its own goroutine.
	mu sync.Mutex

	cfg   Config
	log   logging.Logger
	clock *timectrl.TimeController
	wall  timectrl.Sleeper
	epoch time.Time

	pos, vel r2.Vec

	stage     int
	stages    []Stage
	throttle  float64
	autopilot bool
	target    attitude
	held      attitude

	nodes  map[int]*node
	nextID int
}

var (
	_ core.Vehicle     = (*Vehicle)(nil)
	_ timectrl.Sleeper = (*Vehicle)(nil)
)

// NewVehicle places a fully fuelled vehicle on the pad.
func NewVehicle(cfg Config, log logging.Logger) *Vehicle {
	cfg = cfg.ApplyDefaults()
	if log == nil {
		log = logging.Noop()
	}
	epoch := time.Unix(0, 0).UTC().Add(time.Duration(cfg.StartUT * float64(time.Second)))
	v := &Vehicle{
		cfg:    cfg,
		log:    log.With(logging.String("component", "sim")),
		clock:  timectrl.NewTimeController(epoch, cfg.Substep, timectrl.Accelerated),
		wall:   timectrl.WallSleeper{},
		epoch:  epoch,
		pos:    r2.Vec{X: 0, Y: cfg.Body.Radius},
		stage:  cfg.InitialStage,
		stages: append([]Stage(nil), cfg.Stages...),
		target: attitude{pitch: 90, heading: 90},
		held:   attitude{pitch: 90, heading: 90},
		nodes:  make(map[int]*node),
	}
	v.clock.AddListener(func(_ time.Time, dt time.Duration) {
		v.step(dt.Seconds())
	})
	return v
}

// Body returns the body the vehicle flies around.
func (v *Vehicle) Body() model.CelestialBody { return v.cfg.Body }

func (v *Vehicle) ut() float64 {
	return v.cfg.StartUT + v.clock.Now().Sub(v.epoch).Seconds()
}

// UT implements core.TelemetrySource.
func (v *Vehicle) UT(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ut(), nil
}

// Sample implements core.TelemetrySource.
func (v *Vehicle) Sample(ctx context.Context) (model.TelemetrySample, error) {
	if err := ctx.Err(); err != nil {
		return model.TelemetrySample{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	el := elementsOf(v.pos, v.vel, v.cfg.Body.Mu)
	s := model.TelemetrySample{
		Time:              v.ut(),
		Altitude:          r2.Norm(v.pos) - v.cfg.Body.Radius,
		ApoapsisAltitude:  el.apoapsis - v.cfg.Body.Radius,
		PeriapsisAltitude: el.periapsis - v.cfg.Body.Radius,
		CurrentStage:      v.stage,
		Mass:              v.mass(),
	}
	if e := v.engine(); e != nil {
		s.FuelInStage = e.Propellant
		s.SpecificImpulse = e.SpecificImpulse
		if e.Propellant > 0 {
			s.AvailableThrust = e.Thrust
		}
	}
	return s, nil
}

// Orbit implements core.TelemetrySource.
func (v *Vehicle) Orbit(ctx context.Context) (model.OrbitSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.OrbitSnapshot{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	el := elementsOf(v.pos, v.vel, v.cfg.Body.Mu)
	return model.OrbitSnapshot{
		Time:              v.ut(),
		ApoapsisRadius:    el.apoapsis,
		ApoapsisAltitude:  el.apoapsis - v.cfg.Body.Radius,
		PeriapsisAltitude: el.periapsis - v.cfg.Body.Radius,
		SemiMajorAxis:     el.semiMajorAxis,
		Mu:                v.cfg.Body.Mu,
		TimeToApoapsis:    el.timeToApoapsis,
	}, nil
}

// EngageAutopilot makes the vehicle follow the commanded attitude.
func (v *Vehicle) EngageAutopilot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.autopilot = true
	return nil
}

// DisengageAutopilot freezes the vehicle at its current attitude.
func (v *Vehicle) DisengageAutopilot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.autopilot {
		v.held = v.target
	}
	v.autopilot = false
	return nil
}

// SetAttitude sets the autopilot target. It takes effect only while the
// autopilot is engaged.
func (v *Vehicle) SetAttitude(ctx context.Context, pitch, heading float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.target = attitude{pitch: pitch, heading: heading}
	return nil
}

// SetThrottle clamps throttle to [0, 1].
func (v *Vehicle) SetThrottle(ctx context.Context, throttle float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.throttle = math.Max(0, math.Min(1, throttle))
	return nil
}

// ActivateNextStage drops the current stage index by one, decoupling any
// stage above the new index. It fails once no stage is left to activate.
func (v *Vehicle) ActivateNextStage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stage <= 0 {
		return errors.New("activate stage: no stages left")
	}
	v.stage--
	v.log.Info(ctx, "stage activated",
		logging.Int("stage", v.stage),
		logging.Float64("ut", v.ut()),
		logging.Float64("altitude", r2.Norm(v.pos)-v.cfg.Body.Radius),
	)
	return nil
}

// AddNode records a maneuver node. The simulation does not fly nodes; the
// handle exists so the caller can release it.
func (v *Vehicle) AddNode(ctx context.Context, ut, prograde float64) (model.NodeHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	n := &node{vehicle: v, id: v.nextID, ut: ut, prograde: prograde}
	v.nodes[n.id] = n
	return n, nil
}

// Nodes returns the number of maneuver nodes still attached.
func (v *Vehicle) Nodes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.nodes)
}

// Sleep advances the simulation by d, then waits d/TimeWarp on the wall
// clock when a time warp is configured.
func (v *Vehicle) Sleep(ctx context.Context, d time.Duration) error {
	if err := v.Advance(ctx, d); err != nil {
		return err
	}
	if v.cfg.TimeWarp > 0 {
		return v.wall.Sleep(ctx, time.Duration(float64(d)/v.cfg.TimeWarp))
	}
	return nil
}

// Advance integrates the vehicle forward by d of simulated time, rounded up
// to whole substeps.
func (v *Vehicle) Advance(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	<-v.clock.Start(ctx, d)
	return ctx.Err()
}

type node struct {
	vehicle  *Vehicle
	id       int
	ut       float64
	prograde float64
}

func (n *node) Remove() error {
	v := n.vehicle
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.nodes[n.id]; !ok {
		return fmt.Errorf("node %d: %w", n.id, ErrNodeRemoved)
	}
	delete(v.nodes, n.id)
	return nil
}
