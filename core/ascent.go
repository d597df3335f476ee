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

// AscentConfig holds the tunables of the powered-ascent loop.
type AscentConfig struct {
	// Tick is the telemetry polling interval.
	// Default: 100ms
	Tick time.Duration

	// SettleDelay is the pause after a stage advance before ticking resumes.
	// Default: 1s
	SettleDelay time.Duration

	// Heading is the fixed ascent heading in degrees. Zero reads as unset;
	// due north is 360.
	// Default: 90
	Heading float64

	// FuelThreshold is the stage fuel (liquid fuel + oxidizer units) at or
	// below which the stage is considered depleted.
	// Default: 1
	FuelThreshold float64

	// MinAutoStage guards the core and command stages: stages at or below
	// this index are never advanced automatically.
	// Default: 2
	MinAutoStage int

	// VerifyStaging checks on the following tick that a stage advance
	// actually lowered the stage index. A failed check is reported, not retried.
	VerifyStaging bool

	// TelemetryLogInterval rate-limits the per-tick debug line.
	// Default: 1s
	TelemetryLogInterval time.Duration
}

// DefaultAscentConfig returns an AscentConfig with the standard profile.
func DefaultAscentConfig() AscentConfig {
	return AscentConfig{
		Tick:                 100 * time.Millisecond,
		SettleDelay:          time.Second,
		Heading:              90,
		FuelThreshold:        1,
		MinAutoStage:         2,
		VerifyStaging:        true,
		TelemetryLogInterval: time.Second,
	}
}

// ApplyDefaults fills zero or invalid durations and thresholds.
func (c AscentConfig) ApplyDefaults() AscentConfig {
	def := DefaultAscentConfig()
	if c.Tick <= 0 {
		c.Tick = def.Tick
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = def.SettleDelay
	}
	if c.Heading == 0 {
		c.Heading = def.Heading
	}
	if c.FuelThreshold <= 0 {
		c.FuelThreshold = def.FuelThreshold
	}
	if c.MinAutoStage <= 0 {
		c.MinAutoStage = def.MinAutoStage
	}
	if c.TelemetryLogInterval <= 0 {
		c.TelemetryLogInterval = def.TelemetryLogInterval
	}
	return c
}

// AttitudeCommand is the scheduled attitude for an altitude.
type AttitudeCommand struct {
	Phase   model.AscentPhase
	Pitch   float64
	Heading float64
	// FullThrottle asks for throttle 1.0 on this tick.
	FullThrottle bool
}

var pitchSchedule = []struct {
	above float64
	phase model.AscentPhase
	pitch float64
}{
	{above: 30000, phase: model.PhasePitch20, pitch: 20},
	{above: 20000, phase: model.PhasePitch30, pitch: 30},
	{above: 10000, phase: model.PhasePitch45, pitch: 45},
}

// PhaseFor maps an altitude to its ascent phase.
func PhaseFor(altitude float64) model.AscentPhase {
	for _, step := range pitchSchedule {
		if altitude > step.above {
			return step.phase
		}
	}
	if altitude > 0 {
		return model.PhasePitch90
	}
	return model.PhaseLiftoff
}

// ScheduleFor returns the attitude commanded at altitude. It depends on
// nothing but the altitude: vertical up to 10 km, then 45, 30 and 20 degrees
// above 10, 20 and 30 km. Above 10 km the throttle is also held at full.
func ScheduleFor(altitude, heading float64) AttitudeCommand {
	cmd := AttitudeCommand{Phase: PhaseFor(altitude), Pitch: 90, Heading: heading}
	for _, step := range pitchSchedule {
		if altitude > step.above {
			cmd.Pitch = step.pitch
			cmd.FullThrottle = true
			break
		}
	}
	return cmd
}

// ShouldStage reports whether a stage holding fuel units at index stage is
// depleted and may be advanced.
func ShouldStage(fuel float64, stage int, threshold float64, minAutoStage int) bool {
	return fuel <= threshold && stage > minAutoStage
}

// AscentDecision is the outcome of evaluating one telemetry sample.
type AscentDecision struct {
	// Exit is set once apoapsis has reached the target; nothing else applies.
	Exit     bool
	Stage    bool
	Attitude AttitudeCommand
}

// AscentOption customises an AscentController.
type AscentOption func(*AscentController)

// WithAscentObserver attaches an observer for ascent events.
func WithAscentObserver(o Observer) AscentOption {
	return func(c *AscentController) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithAscentClock sets the mission clock used to annotate log lines.
func WithAscentClock(clock timectrl.MissionClock) AscentOption {
	return func(c *AscentController) { c.clock = clock }
}

// AscentController drives the gravity turn and staging during powered ascent.
type AscentController struct {
	telemetry TelemetrySource
	sink      ActuationSink
	sleeper   timectrl.Sleeper
	cfg       AscentConfig
	log       logging.Logger
	observer  Observer
	clock     timectrl.MissionClock
	limiter   *rate.Limiter

	phase   model.AscentPhase
	pending *model.StagingEvent
	events  []model.StagingEvent
}

// NewAscentController constructs a controller. A nil sleeper sleeps on the
// wall clock.
func NewAscentController(telemetry TelemetrySource, sink ActuationSink, sleeper timectrl.Sleeper, cfg AscentConfig, log logging.Logger, opts ...AscentOption) *AscentController {
	cfg = cfg.ApplyDefaults()
	if sleeper == nil {
		sleeper = timectrl.WallSleeper{}
	}
	if log == nil {
		log = logging.Noop()
	}
	c := &AscentController{
		telemetry: telemetry,
		sink:      sink,
		sleeper:   sleeper,
		cfg:       cfg,
		log:       log.With(logging.String("component", "ascent")),
		observer:  NopObserver{},
		limiter:   rate.NewLimiter(rate.Every(cfg.TelemetryLogInterval), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the highest ascent phase reached so far.
func (c *AscentController) Phase() model.AscentPhase { return c.phase }

// StagingEvents returns the stage advances issued so far.
func (c *AscentController) StagingEvents() []model.StagingEvent {
	return append([]model.StagingEvent(nil), c.events...)
}

// Decide evaluates a sample against the target apoapsis without side effects.
func (c *AscentController) Decide(sample model.TelemetrySample, targetApoapsis float64) AscentDecision {
	if sample.ApoapsisAltitude >= targetApoapsis {
		return AscentDecision{Exit: true}
	}
	return AscentDecision{
		Stage:    ShouldStage(sample.FuelInStage, sample.CurrentStage, c.cfg.FuelThreshold, c.cfg.MinAutoStage),
		Attitude: ScheduleFor(sample.Altitude, c.cfg.Heading),
	}
}

// Run ticks until apoapsis reaches targetApoapsis, then cuts the throttle
// before returning the sample that ended the loop.
func (c *AscentController) Run(ctx context.Context, targetApoapsis float64) (model.TelemetrySample, error) {
	for {
		sample, err := c.telemetry.Sample(ctx)
		if err != nil {
			return model.TelemetrySample{}, fmt.Errorf("read telemetry: %w", err)
		}
		c.observer.TelemetrySampled(ctx, sample)
		c.checkStaging(ctx, sample)

		decision := c.Decide(sample, targetApoapsis)
		if decision.Exit {
			if err := c.sink.SetThrottle(ctx, 0); err != nil {
				return sample, fmt.Errorf("cut throttle: %w", err)
			}
			c.log.Info(ctx, "target apoapsis reached",
				logging.String("met", c.clock.Format(sample.Time)),
				logging.Float64("apoapsis", sample.ApoapsisAltitude),
				logging.Float64("target", targetApoapsis),
			)
			return sample, nil
		}

		staged, err := c.apply(ctx, sample, decision)
		if err != nil {
			return sample, err
		}
		if staged {
			// The settle delay has elapsed; steer from a fresh sample.
			continue
		}
		if err := c.sleeper.Sleep(ctx, c.cfg.Tick); err != nil {
			return sample, err
		}
	}
}

// Step applies the decision for a single sample. A sample that triggers
// staging issues no attitude command: the vehicle has changed by the time
// the settle delay ends, so steering waits for the next sample.
func (c *AscentController) Step(ctx context.Context, sample model.TelemetrySample) error {
	_, err := c.apply(ctx, sample, AscentDecision{
		Stage:    ShouldStage(sample.FuelInStage, sample.CurrentStage, c.cfg.FuelThreshold, c.cfg.MinAutoStage),
		Attitude: ScheduleFor(sample.Altitude, c.cfg.Heading),
	})
	return err
}

// apply reports whether it staged, in which case no attitude was commanded.
func (c *AscentController) apply(ctx context.Context, sample model.TelemetrySample, d AscentDecision) (bool, error) {
	if c.limiter.Allow() {
		c.log.Debug(ctx, "ascent telemetry",
			logging.String("met", c.clock.Format(sample.Time)),
			logging.Float64("altitude", sample.Altitude),
			logging.Float64("apoapsis", sample.ApoapsisAltitude),
			logging.Int("stage", sample.CurrentStage),
			logging.Float64("fuel", sample.FuelInStage),
		)
	}

	if d.Stage {
		return true, c.stage(ctx, sample)
	}

	cmd := d.Attitude
	if cmd.Phase > c.phase {
		c.phase = cmd.Phase
		c.log.Info(ctx, "ascent phase",
			logging.String("met", c.clock.Format(sample.Time)),
			logging.Phase(cmd.Phase),
			logging.Float64("altitude", sample.Altitude),
		)
		c.observer.AscentPhaseChanged(ctx, cmd.Phase, sample)
	}
	if cmd.FullThrottle {
		if err := c.sink.SetThrottle(ctx, 1); err != nil {
			return false, fmt.Errorf("set throttle: %w", err)
		}
	}
	if err := c.sink.SetAttitude(ctx, cmd.Pitch, cmd.Heading); err != nil {
		return false, fmt.Errorf("set attitude: %w", err)
	}
	return false, nil
}

// stage advances the depleted stage, re-engages attitude hold (some sinks
// drop it across separation) and waits for the vehicle to settle.
func (c *AscentController) stage(ctx context.Context, sample model.TelemetrySample) error {
	ev := model.StagingEvent{
		Time:     sample.Time,
		Stage:    sample.CurrentStage,
		Fuel:     sample.FuelInStage,
		Altitude: sample.Altitude,
		Kind:     model.ClassifyStaging(sample.CurrentStage),
	}
	c.log.Info(ctx, ev.Kind,
		logging.String("met", c.clock.Format(sample.Time)),
		logging.Int("stage", ev.Stage),
		logging.Float64("altitude", ev.Altitude),
	)

	if err := c.sink.ActivateNextStage(ctx); err != nil {
		return fmt.Errorf("activate next stage: %w", err)
	}
	if err := c.sink.EngageAutopilot(ctx); err != nil {
		return fmt.Errorf("re-engage autopilot after staging: %w", err)
	}

	c.events = append(c.events, ev)
	if c.cfg.VerifyStaging {
		pending := ev
		c.pending = &pending
	}
	c.observer.StagingIssued(ctx, ev)

	if err := c.sleeper.Sleep(ctx, c.cfg.SettleDelay); err != nil {
		return err
	}
	return nil
}

// checkStaging compares the first sample after a stage advance with the
// stage index the advance was issued at.
func (c *AscentController) checkStaging(ctx context.Context, sample model.TelemetrySample) {
	if c.pending == nil {
		return
	}
	ev := *c.pending
	c.pending = nil

	ev.Verified = sample.CurrentStage < ev.Stage
	if ev.Verified {
		c.events[len(c.events)-1].Verified = true
	} else {
		c.log.Warn(ctx, "stage advance not observed in telemetry",
			logging.String("met", c.clock.Format(sample.Time)),
			logging.Int("issued_at_stage", ev.Stage),
			logging.Int("current_stage", sample.CurrentStage),
		)
	}
	c.observer.StagingChecked(ctx, ev)
}
