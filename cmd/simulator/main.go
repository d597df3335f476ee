package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/ascent-guidance/core"
	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/internal/sim"
	"github.com/signalsfoundry/ascent-guidance/kb"
	"github.com/signalsfoundry/ascent-guidance/model"
)

func main() {
	bodyName := flag.String("body", "kerbin", "launch body preset")
	warp := flag.Float64("warp", 0, "time warp against the wall clock (0 = as fast as possible)")
	every := flag.Duration("every", 10*time.Second, "simulated time between printed telemetry lines")
	flag.Parse()

	body, ok := model.BodyByName(*bodyName)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown body %q\n", *bodyName)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := fly(ctx, body, *warp, *every, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mission halted: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Mission complete in %.0fs: apoapsis %.0f m, periapsis %.0f m, %d stagings.\n",
		report.ElapsedSeconds,
		report.FinalOrbit.ApoapsisAltitude,
		report.FinalOrbit.PeriapsisAltitude,
		len(report.StagingEvents),
	)
}

// fly runs one simulated mission and prints a telemetry table to out.
func fly(ctx context.Context, body model.CelestialBody, warp float64, every time.Duration, out io.Writer) (model.MissionReport, error) {
	simCfg := sim.DefaultConfig()
	simCfg.Body = body
	simCfg.TimeWarp = warp
	vehicle := sim.NewVehicle(simCfg, nil)

	store := kb.NewKnowledgeBase()
	unsubscribe := store.Subscribe(printer(out, every))
	defer unsubscribe()

	seq := core.NewSequencer(vehicle, vehicle.Body(), core.DefaultSequencerConfig(),
		core.WithSleeper(vehicle),
		core.WithLogger(logging.Noop()),
		core.WithObserver(store),
	)

	fmt.Fprintf(out, "Launching from %s: warp=%v\n", body.Name, warp)
	return seq.Run(ctx)
}

// printer renders KB events as console lines, sampling telemetry every
// interval of simulated time.
func printer(out io.Writer, interval time.Duration) func(kb.Event) {
	next := 0.0
	return func(ev kb.Event) {
		switch ev.Type {
		case kb.EventMissionPhase:
			fmt.Fprintf(out, "[UT %8.1f] phase %s\n", ev.UT, ev.Phase)
		case kb.EventStagingIssued:
			fmt.Fprintf(out, "[UT %8.1f] staging: %s at %.0f m\n", ev.UT, ev.Staging.Kind, ev.Staging.Altitude)
		case kb.EventManeuverPlanned:
			fmt.Fprintf(out, "burn planned: dv=%.1f m/s duration=%.1fs start=%.1f\n",
				ev.Plan.DeltaV, ev.Plan.BurnDuration, ev.Plan.BurnStartTime)
		case kb.EventTelemetry:
			if ev.UT < next {
				return
			}
			next = ev.UT + interval.Seconds()
			s := ev.Sample
			fmt.Fprintf(out, "[UT %8.1f] alt=%9.0f ap=%10.0f pe=%10.0f stage=%d fuel=%7.1f\n",
				ev.UT, s.Altitude, s.ApoapsisAltitude, s.PeriapsisAltitude, s.CurrentStage, s.FuelInStage)
		}
	}
}
