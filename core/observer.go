package core

import (
	"context"

	"github.com/signalsfoundry/ascent-guidance/model"
)

// Observer receives guidance events. Implementations must return quickly;
// they run inline on the control loop.
type Observer interface {
	MissionPhaseChanged(ctx context.Context, phase model.MissionPhase, ut float64)
	AscentPhaseChanged(ctx context.Context, phase model.AscentPhase, sample model.TelemetrySample)
	TelemetrySampled(ctx context.Context, sample model.TelemetrySample)
	OrbitSampled(ctx context.Context, orbit model.OrbitSnapshot)
	StagingIssued(ctx context.Context, ev model.StagingEvent)
	StagingChecked(ctx context.Context, ev model.StagingEvent)
	ManeuverPlanned(ctx context.Context, plan model.ManeuverPlan)
}

// NopObserver ignores all events. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) MissionPhaseChanged(context.Context, model.MissionPhase, float64)             {}
func (NopObserver) AscentPhaseChanged(context.Context, model.AscentPhase, model.TelemetrySample) {}
func (NopObserver) TelemetrySampled(context.Context, model.TelemetrySample)                      {}
func (NopObserver) OrbitSampled(context.Context, model.OrbitSnapshot)                            {}
func (NopObserver) StagingIssued(context.Context, model.StagingEvent)                            {}
func (NopObserver) StagingChecked(context.Context, model.StagingEvent)                           {}
func (NopObserver) ManeuverPlanned(context.Context, model.ManeuverPlan)                          {}

// Observers fans events out to every non-nil member in order.
type Observers []Observer

func (o Observers) MissionPhaseChanged(ctx context.Context, phase model.MissionPhase, ut float64) {
	for _, obs := range o {
		if obs != nil {
			obs.MissionPhaseChanged(ctx, phase, ut)
		}
	}
}

func (o Observers) AscentPhaseChanged(ctx context.Context, phase model.AscentPhase, sample model.TelemetrySample) {
	for _, obs := range o {
		if obs != nil {
			obs.AscentPhaseChanged(ctx, phase, sample)
		}
	}
}

func (o Observers) TelemetrySampled(ctx context.Context, sample model.TelemetrySample) {
	for _, obs := range o {
		if obs != nil {
			obs.TelemetrySampled(ctx, sample)
		}
	}
}

func (o Observers) OrbitSampled(ctx context.Context, orbit model.OrbitSnapshot) {
	for _, obs := range o {
		if obs != nil {
			obs.OrbitSampled(ctx, orbit)
		}
	}
}

func (o Observers) StagingIssued(ctx context.Context, ev model.StagingEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.StagingIssued(ctx, ev)
		}
	}
}

func (o Observers) StagingChecked(ctx context.Context, ev model.StagingEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.StagingChecked(ctx, ev)
		}
	}
}

func (o Observers) ManeuverPlanned(ctx context.Context, plan model.ManeuverPlan) {
	for _, obs := range o {
		if obs != nil {
			obs.ManeuverPlanned(ctx, plan)
		}
	}
}
