package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/ascent-guidance/core"
	"github.com/signalsfoundry/ascent-guidance/internal/config"
	"github.com/signalsfoundry/ascent-guidance/internal/krpc"
	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/internal/observability"
	"github.com/signalsfoundry/ascent-guidance/internal/sim"
	"github.com/signalsfoundry/ascent-guidance/internal/status"
	"github.com/signalsfoundry/ascent-guidance/kb"
	"github.com/signalsfoundry/ascent-guidance/model"
	"github.com/signalsfoundry/ascent-guidance/timectrl"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML, TOML or JSON config file")
	linger := flag.Duration("linger", 0, "Keep the status surface up this long after the mission ends")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := run(ctx, cfg, *linger, log); err != nil {
		log.Error(ctx, "mission failed", logging.Err(err))
		os.Exit(1)
	}
}

// vehicleConn is an open vehicle backend.
type vehicleConn struct {
	vehicle core.Vehicle
	sleeper timectrl.Sleeper
	body    model.CelestialBody
	close   func() error
}

func openVehicle(ctx context.Context, cfg config.Config, log logging.Logger) (vehicleConn, error) {
	switch cfg.Vehicle.Backend {
	case config.BackendKRPC:
		v, err := krpc.Dial(ctx, cfg.Vehicle.KRPCHost, log)
		if err != nil {
			return vehicleConn{}, err
		}
		if want := cfg.CelestialBody(); want.Name != v.Body().Name {
			log.Warn(ctx, "configured body ignored; flying the server's body",
				logging.String("configured", want.Name),
				logging.String("server", v.Body().Name),
			)
		}
		return vehicleConn{vehicle: v, sleeper: timectrl.WallSleeper{}, body: v.Body(), close: v.Close}, nil
	case config.BackendSim:
		simCfg := sim.DefaultConfig()
		simCfg.Body = cfg.CelestialBody()
		simCfg.StandardGravity = cfg.Guidance.StandardGravity
		simCfg.TimeWarp = cfg.Vehicle.TimeWarp
		v := sim.NewVehicle(simCfg, log)
		return vehicleConn{vehicle: v, sleeper: v, body: v.Body(), close: func() error { return nil }}, nil
	default:
		return vehicleConn{}, fmt.Errorf("unknown vehicle backend %q", cfg.Vehicle.Backend)
	}
}

// run flies one mission with the status surface up, then keeps the surface
// up for linger (or until ctx is done) so the final state can be read.
func run(ctx context.Context, cfg config.Config, linger time.Duration, log logging.Logger) (model.MissionReport, error) {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return model.MissionReport{}, fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	statusMetrics, err := observability.NewStatusCollector(reg)
	if err != nil {
		return model.MissionReport{}, fmt.Errorf("status metrics: %w", err)
	}
	missionMetrics, err := observability.NewMissionCollector(reg)
	if err != nil {
		return model.MissionReport{}, fmt.Errorf("mission metrics: %w", err)
	}

	store := kb.NewKnowledgeBase()
	srv := status.NewServer(status.Config{
		GRPCAddr:   cfg.Status.GRPCAddr,
		HTTPAddr:   cfg.Status.HTTPAddr,
		StreamRate: cfg.Status.StreamRate,
	}, store, statusMetrics, log)

	serveCtx, stopServing := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe(serveCtx) }()
	defer func() {
		stopServing()
		if err := <-served; err != nil {
			log.Warn(ctx, "status server exited", logging.Err(err))
		}
	}()

	conn, err := openVehicle(ctx, cfg, log)
	if err != nil {
		srv.SetMissionStatus(model.MissionAborted)
		return model.MissionReport{}, err
	}
	defer func() {
		if err := conn.close(); err != nil {
			log.Warn(ctx, "closing vehicle connection", logging.Err(err))
		}
	}()

	log.Info(ctx, "starting mission",
		logging.String("backend", cfg.Vehicle.Backend),
		logging.String("body", conn.body.Name),
	)
	seq := core.NewSequencer(
		observability.InstrumentActuation(conn.vehicle, missionMetrics),
		conn.body,
		cfg.SequencerConfig(),
		core.WithSleeper(conn.sleeper),
		core.WithLogger(log),
		core.WithObserver(core.Observers{store, missionMetrics}),
	)
	report, runErr := seq.Run(ctx)
	logReport(ctx, log, report)

	if linger > 0 && !errors.Is(runErr, context.Canceled) {
		log.Info(ctx, "holding status surface", logging.Duration("linger", linger))
		select {
		case <-ctx.Done():
		case <-time.After(linger):
		}
	}
	return report, runErr
}

func logReport(ctx context.Context, log logging.Logger, report model.MissionReport) {
	log.Info(ctx, "mission report",
		logging.String("mission_id", report.MissionID),
		logging.String("final_phase", report.FinalPhase.String()),
		logging.Float64("target_altitude", report.TargetAltitude),
		logging.Int("staging_events", len(report.StagingEvents)),
		logging.Float64("planned_delta_v", report.Plan.DeltaV),
		logging.Float64("apoapsis", report.FinalOrbit.ApoapsisAltitude),
		logging.Float64("periapsis", report.FinalOrbit.PeriapsisAltitude),
		logging.Float64("elapsed_seconds", report.ElapsedSeconds),
	)
}
