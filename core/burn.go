package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/model"
	"github.com/signalsfoundry/ascent-guidance/timectrl"
)

// BurnConfig holds the tunables of the circularization burn.
type BurnConfig struct {
	// Tick is the polling interval for both the coast wait and the burn.
	// Default: 100ms
	Tick time.Duration

	// Pitch and Heading give the fixed prograde-equivalent burn attitude.
	// A zero Heading reads as unset; due north is 360.
	// Defaults: 0 and 90 degrees.
	Pitch   float64
	Heading float64

	// Throttle is the burn throttle fraction.
	// Default: 1
	Throttle float64

	// TimeoutFactor bounds the burn at TimeoutFactor times the planned
	// duration of simulated time. Zero disables the guard.
	TimeoutFactor float64

	// CoastLogInterval rate-limits the coast progress line.
	// Default: 10s
	CoastLogInterval time.Duration
}

// DefaultBurnConfig returns the standard burn configuration.
func DefaultBurnConfig() BurnConfig {
	return BurnConfig{
		Tick:             100 * time.Millisecond,
		Pitch:            0,
		Heading:          90,
		Throttle:         1,
		CoastLogInterval: 10 * time.Second,
	}
}

// ApplyDefaults fills zero or invalid fields. Pitch is left as given since
// zero is the standard value.
func (c BurnConfig) ApplyDefaults() BurnConfig {
	def := DefaultBurnConfig()
	if c.Tick <= 0 {
		c.Tick = def.Tick
	}
	if c.Heading == 0 {
		c.Heading = def.Heading
	}
	if c.Throttle <= 0 {
		c.Throttle = def.Throttle
	}
	if c.TimeoutFactor < 0 {
		c.TimeoutFactor = 0
	}
	if c.CoastLogInterval <= 0 {
		c.CoastLogInterval = def.CoastLogInterval
	}
	return c
}

// BurnExecutor waits for the planned burn start, then burns prograde until
// the orbit reaches the circularization target. It does not re-plan.
type BurnExecutor struct {
	telemetry TelemetrySource
	sink      ActuationSink
	sleeper   timectrl.Sleeper
	cfg       BurnConfig
	log       logging.Logger
	observer  Observer
	clock     timectrl.MissionClock
	limiter   *rate.Limiter
}

// NewBurnExecutor constructs an executor. A nil sleeper sleeps on the wall
// clock and a nil observer drops events.
func NewBurnExecutor(telemetry TelemetrySource, sink ActuationSink, sleeper timectrl.Sleeper, cfg BurnConfig, log logging.Logger, observer Observer) *BurnExecutor {
	cfg = cfg.ApplyDefaults()
	if sleeper == nil {
		sleeper = timectrl.WallSleeper{}
	}
	if log == nil {
		log = logging.Noop()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &BurnExecutor{
		telemetry: telemetry,
		sink:      sink,
		sleeper:   sleeper,
		cfg:       cfg,
		log:       log.With(logging.String("component", "burn")),
		observer:  observer,
		limiter:   rate.NewLimiter(rate.Every(cfg.CoastLogInterval), 1),
	}
}

// SetClock sets the mission clock used to annotate log lines.
func (b *BurnExecutor) SetClock(clock timectrl.MissionClock) { b.clock = clock }

// Wait polls universal time until it reaches the plan's burn start. A start
// time already in the past returns immediately.
func (b *BurnExecutor) Wait(ctx context.Context, plan model.ManeuverPlan) error {
	for {
		now, err := b.telemetry.UT(ctx)
		if err != nil {
			return fmt.Errorf("read universal time: %w", err)
		}
		if now >= plan.BurnStartTime {
			return nil
		}
		if b.limiter.Allow() {
			b.log.Debug(ctx, "coasting to burn start",
				logging.String("met", b.clock.Format(now)),
				logging.Float64("seconds_to_burn", plan.BurnStartTime-now),
			)
		}
		if err := b.sleeper.Sleep(ctx, b.cfg.Tick); err != nil {
			return err
		}
	}
}

// Burn holds the burn attitude at full throttle until periapsis plus
// apoapsis altitude reaches target, then cuts the throttle and releases the
// plan's node. It returns the orbit observed on the terminating tick.
func (b *BurnExecutor) Burn(ctx context.Context, plan *model.ManeuverPlan, target float64) (model.OrbitSnapshot, error) {
	if err := b.sink.SetAttitude(ctx, b.cfg.Pitch, b.cfg.Heading); err != nil {
		return model.OrbitSnapshot{}, fmt.Errorf("set burn attitude: %w", err)
	}
	if err := b.sink.SetThrottle(ctx, clampThrottle(b.cfg.Throttle)); err != nil {
		return model.OrbitSnapshot{}, fmt.Errorf("set burn throttle: %w", err)
	}

	var (
		running  bool
		started  float64
		deadline float64
	)
	for {
		orbit, err := b.telemetry.Orbit(ctx)
		if err != nil {
			return model.OrbitSnapshot{}, fmt.Errorf("read orbit: %w", err)
		}
		b.observer.OrbitSampled(ctx, orbit)

		if !running {
			running = true
			started = orbit.Time
			b.log.Info(ctx, "circularization burn started",
				logging.String("met", b.clock.Format(orbit.Time)),
				logging.Float64("planned_duration", plan.BurnDuration),
			)
			if b.cfg.TimeoutFactor > 0 {
				deadline = started + b.cfg.TimeoutFactor*plan.BurnDuration
			}
		}

		if orbit.AltitudeSum() >= target {
			if err := b.sink.SetThrottle(ctx, 0); err != nil {
				return orbit, fmt.Errorf("cut burn throttle: %w", err)
			}
			b.log.Info(ctx, "circularization burn complete",
				logging.String("met", b.clock.Format(orbit.Time)),
				logging.Float64("apoapsis", orbit.ApoapsisAltitude),
				logging.Float64("periapsis", orbit.PeriapsisAltitude),
				logging.Float64("burn_seconds", orbit.Time-started),
			)
			b.ReleaseNode(ctx, plan)
			return orbit, nil
		}
		if deadline > 0 && orbit.Time > deadline {
			return orbit, fmt.Errorf("%w: %.1fs elapsed, planned %.1fs", ErrBurnTimeout, orbit.Time-started, plan.BurnDuration)
		}

		if err := b.sleeper.Sleep(ctx, b.cfg.Tick); err != nil {
			return orbit, err
		}
	}
}

// ReleaseNode removes the plan's maneuver node if it is still held. It is
// safe to call more than once; removal errors are logged.
func (b *BurnExecutor) ReleaseNode(ctx context.Context, plan *model.ManeuverPlan) {
	if plan == nil || plan.Node == nil {
		return
	}
	node := plan.Node
	plan.Node = nil
	if err := node.Remove(); err != nil {
		b.log.Warn(ctx, "failed to remove maneuver node", logging.Err(err))
	}
}

// Execute runs Wait then Burn, releasing the node on every exit path.
func (b *BurnExecutor) Execute(ctx context.Context, plan *model.ManeuverPlan, target float64) (model.OrbitSnapshot, error) {
	defer b.ReleaseNode(ctx, plan)
	if err := b.Wait(ctx, *plan); err != nil {
		return model.OrbitSnapshot{}, err
	}
	return b.Burn(ctx, plan, target)
}
