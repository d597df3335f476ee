package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/model"
	"github.com/signalsfoundry/ascent-guidance/timectrl"
)

const tracerName = "github.com/signalsfoundry/ascent-guidance/core"

const (
	launchPitch   = 90.0
	finalPitch    = -90.0
	launchHeading = 90.0
)

// SequencerConfig configures a full mission.
type SequencerConfig struct {
	Ascent AscentConfig
	Burn   BurnConfig

	// Countdown is the number of countdown steps between ignition and
	// throttle-up, each CountdownStep long. Values <= 0 read as unset, so
	// the countdown cannot be skipped.
	// Defaults: 3 and 1s
	Countdown     int
	CountdownStep time.Duration

	// FinalHold is how long the vehicle holds the body-pointing attitude
	// before the mission completes. Values <= 0 read as unset.
	// Default: 20s
	FinalHold time.Duration

	// StandardGravity converts specific impulse to exhaust velocity.
	// Default: 9.82
	StandardGravity float64

	// SafeAbort issues a best-effort throttle cut when the mission halts
	// after any command has been sent.
	SafeAbort bool
}

// DefaultSequencerConfig returns the standard mission profile.
func DefaultSequencerConfig() SequencerConfig {
	return SequencerConfig{
		Ascent:          DefaultAscentConfig(),
		Burn:            DefaultBurnConfig(),
		Countdown:       3,
		CountdownStep:   time.Second,
		FinalHold:       20 * time.Second,
		StandardGravity: DefaultStandardGravity,
		SafeAbort:       true,
	}
}

// ApplyDefaults fills zero or invalid values.
func (c SequencerConfig) ApplyDefaults() SequencerConfig {
	def := DefaultSequencerConfig()
	c.Ascent = c.Ascent.ApplyDefaults()
	c.Burn = c.Burn.ApplyDefaults()
	if c.Countdown <= 0 {
		c.Countdown = def.Countdown
	}
	if c.CountdownStep <= 0 {
		c.CountdownStep = def.CountdownStep
	}
	if c.FinalHold <= 0 {
		c.FinalHold = def.FinalHold
	}
	if c.StandardGravity <= 0 {
		c.StandardGravity = def.StandardGravity
	}
	return c
}

// SequencerOption customises a Sequencer.
type SequencerOption func(*Sequencer)

// WithSleeper sets the sleeper used for every suspension point. Simulated
// vehicles pass themselves so that sleeping advances simulated time.
func WithSleeper(s timectrl.Sleeper) SequencerOption {
	return func(seq *Sequencer) {
		if s != nil {
			seq.sleeper = s
		}
	}
}

// WithLogger sets the base logger; the mission ID is added per run.
func WithLogger(l logging.Logger) SequencerOption {
	return func(seq *Sequencer) {
		if l != nil {
			seq.log = l
		}
	}
}

// WithObserver attaches an observer that receives every mission event.
func WithObserver(o Observer) SequencerOption {
	return func(seq *Sequencer) {
		if o != nil {
			seq.observer = o
		}
	}
}

// Sequencer runs the mission from the pad to a circular orbit at the body's
// geostationary altitude. Phases run strictly in order and none is retried.
type Sequencer struct {
	vehicle  Vehicle
	body     model.CelestialBody
	cfg      SequencerConfig
	sleeper  timectrl.Sleeper
	log      logging.Logger
	observer Observer
	tracer   trace.Tracer

	mu    sync.RWMutex
	phase model.MissionPhase
}

// NewSequencer constructs a sequencer for vehicle orbiting body.
func NewSequencer(vehicle Vehicle, body model.CelestialBody, cfg SequencerConfig, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		vehicle:  vehicle,
		body:     body,
		cfg:      cfg.ApplyDefaults(),
		sleeper:  timectrl.WallSleeper{},
		log:      logging.Noop(),
		observer: NopObserver{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the current mission phase. It is safe to call concurrently
// with Run.
func (s *Sequencer) Phase() model.MissionPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

type missionRun struct {
	log     logging.Logger
	clock   timectrl.MissionClock
	ascent  *AscentController
	planner *OrbitPlanner
	burner  *BurnExecutor
	target  float64
	report  *model.MissionReport
	lastUT  float64
}

// Run flies the mission. Degenerate body constants are rejected before any
// command reaches the vehicle. Any later failure halts the sequence and is
// returned as a *MissionError naming the phase it occurred in.
func (s *Sequencer) Run(ctx context.Context) (model.MissionReport, error) {
	ctx, log := logging.WithMissionLogger(ctx, s.log)
	ctx = logging.ContextWithLogger(ctx, log)
	report := model.MissionReport{MissionID: logging.MissionIDFromContext(ctx)}

	ctx, span := s.tracer.Start(ctx, "mission", trace.WithAttributes(
		attribute.String("mission_id", report.MissionID),
		attribute.String("body", s.body.Name),
	))
	defer span.End()

	target, err := GeostationaryAltitude(s.body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error(ctx, "invalid body configuration", logging.Err(err))
		report.FinalPhase = s.abortBeforeLaunch(ctx)
		return report, &MissionError{Phase: model.MissionPending, Err: err}
	}
	report.TargetAltitude = target
	log.Info(ctx, "target geostationary altitude",
		logging.String("body", s.body.Name),
		logging.String("altitude_m", fmt.Sprintf("%.2f", target)),
	)

	startUT, err := s.vehicle.UT(ctx)
	if err != nil {
		err = fmt.Errorf("read universal time: %w", err)
		log.Error(ctx, "mission halted before launch", logging.Err(err))
		report.FinalPhase = s.abortBeforeLaunch(ctx)
		return report, &MissionError{Phase: model.MissionPending, Err: err}
	}
	clock := timectrl.NewMissionClock(startUT)

	run := &missionRun{
		log:    log,
		clock:  clock,
		target: target,
		report: &report,
		ascent: NewAscentController(s.vehicle, s.vehicle, s.sleeper, s.cfg.Ascent, log,
			WithAscentObserver(s.observer), WithAscentClock(clock)),
		planner: NewOrbitPlanner(s.vehicle, s.vehicle, s.body, s.cfg.StandardGravity, log, s.observer),
		burner:  NewBurnExecutor(s.vehicle, s.vehicle, s.sleeper, s.cfg.Burn, log, s.observer),
	}
	run.burner.SetClock(clock)

	var plan model.ManeuverPlan
	defer run.burner.ReleaseNode(ctx, &plan)

	steps := []struct {
		phase model.MissionPhase
		fn    func(context.Context) error
	}{
		{model.MissionEngageAutopilot, s.engage},
		{model.MissionLiftoffCountdown, func(ctx context.Context) error { return s.countdown(ctx, run) }},
		{model.MissionThrottleUp, func(ctx context.Context) error { return s.vehicle.SetThrottle(ctx, 1) }},
		{model.MissionAscent, func(ctx context.Context) error {
			exit, err := run.ascent.Run(ctx, target)
			report.AscentExit = exit
			return err
		}},
		{model.MissionZeroThrottle, func(ctx context.Context) error {
			log.Info(ctx, "apoapsis at target, waiting for maneuver point",
				logging.String("met", clock.Format(report.AscentExit.Time)))
			return nil
		}},
		{model.MissionCoastWait, func(ctx context.Context) error {
			p, err := run.planner.Plan(ctx)
			if err != nil {
				return err
			}
			plan = p
			return run.burner.Wait(ctx, plan)
		}},
		{model.MissionBurn, func(ctx context.Context) error {
			orbit, err := run.burner.Burn(ctx, &plan, CircularizationTarget(target))
			report.FinalOrbit = orbit
			return err
		}},
		{model.MissionFinalizeAttitude, func(ctx context.Context) error { return s.finalize(ctx, run) }},
	}

	for _, step := range steps {
		if err := s.runPhase(ctx, run, step.phase, step.fn); err != nil {
			report.StagingEvents = run.ascent.StagingEvents()
			report.Plan = plan
			s.abort(ctx, run, step.phase, err)
			report.FinalPhase = model.MissionAborted
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return report, &MissionError{Phase: step.phase, Err: err}
		}
	}

	endUT, err := s.vehicle.UT(ctx)
	if err == nil {
		report.ElapsedSeconds = endUT - startUT
	}
	s.transition(ctx, run, model.MissionDone, endUT)
	log.Info(ctx, "geostationary insertion mission complete",
		logging.String("met", clock.Format(endUT)),
		logging.Int("staging_events", len(run.ascent.StagingEvents())),
	)
	report.StagingEvents = run.ascent.StagingEvents()
	report.Plan = plan
	report.FinalPhase = model.MissionDone
	return report, nil
}

func (s *Sequencer) runPhase(ctx context.Context, run *missionRun, phase model.MissionPhase, fn func(context.Context) error) error {
	ut, err := s.vehicle.UT(ctx)
	if err != nil {
		return fmt.Errorf("read universal time: %w", err)
	}
	run.lastUT = ut
	s.transition(ctx, run, phase, ut)

	ctx, span := s.tracer.Start(ctx, "mission/"+phase.String())
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Sequencer) transition(ctx context.Context, run *missionRun, phase model.MissionPhase, ut float64) {
	s.setPhase(phase)
	run.log.Info(ctx, "mission phase",
		logging.String("met", run.clock.Format(ut)),
		logging.Phase(phase),
	)
	s.observer.MissionPhaseChanged(ctx, phase, ut)
}

func (s *Sequencer) setPhase(phase model.MissionPhase) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

func (s *Sequencer) engage(ctx context.Context) error {
	if err := s.vehicle.EngageAutopilot(ctx); err != nil {
		return fmt.Errorf("engage autopilot: %w", err)
	}
	if err := s.vehicle.SetAttitude(ctx, launchPitch, launchHeading); err != nil {
		return fmt.Errorf("set launch attitude: %w", err)
	}
	return nil
}

// countdown ignites the first stage and counts down before throttle-up.
func (s *Sequencer) countdown(ctx context.Context, run *missionRun) error {
	run.log.Info(ctx, "engines starting")
	if err := s.vehicle.ActivateNextStage(ctx); err != nil {
		return fmt.Errorf("ignite first stage: %w", err)
	}
	for i := s.cfg.Countdown; i > 0; i-- {
		run.log.Info(ctx, fmt.Sprintf("%d...", i))
		if err := s.sleeper.Sleep(ctx, s.cfg.CountdownStep); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) finalize(ctx context.Context, run *missionRun) error {
	run.log.Info(ctx, "circular orbit achieved, pointing toward body",
		logging.Float64("apoapsis", run.report.FinalOrbit.ApoapsisAltitude),
		logging.Float64("periapsis", run.report.FinalOrbit.PeriapsisAltitude),
	)
	if err := s.vehicle.SetAttitude(ctx, finalPitch, launchHeading); err != nil {
		return fmt.Errorf("set final attitude: %w", err)
	}
	return s.sleeper.Sleep(ctx, s.cfg.FinalHold)
}

// abortBeforeLaunch marks a mission that never issued a command as aborted.
func (s *Sequencer) abortBeforeLaunch(ctx context.Context) model.MissionPhase {
	s.setPhase(model.MissionAborted)
	s.observer.MissionPhaseChanged(ctx, model.MissionAborted, 0)
	return model.MissionAborted
}

// abort records the halt and, when enabled, cuts the throttle on a context
// that survives cancellation of the mission context.
func (s *Sequencer) abort(ctx context.Context, run *missionRun, failed model.MissionPhase, cause error) {
	s.setPhase(model.MissionAborted)
	run.log.Error(ctx, "mission halted",
		logging.Phase(failed),
		logging.Err(cause),
	)
	s.observer.MissionPhaseChanged(ctx, model.MissionAborted, run.lastUT)

	if !s.cfg.SafeAbort {
		return
	}
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.vehicle.SetThrottle(cleanup, 0); err != nil {
		run.log.Warn(ctx, "safe abort throttle cut failed", logging.Err(err))
	}
}
