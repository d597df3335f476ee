package status

import (
	"math"

	"github.com/signalsfoundry/ascent-guidance/kb"
	"github.com/signalsfoundry/ascent-guidance/model"
)

// MissionView is the JSON body of GET /mission.
type MissionView struct {
	MissionID   string        `json:"mission_id"`
	Phase       string        `json:"phase"`
	AscentPhase string        `json:"ascent_phase"`
	Health      string        `json:"health"`
	UT          float64       `json:"ut"`
	Telemetry   SampleView    `json:"telemetry"`
	Orbit       OrbitView     `json:"orbit"`
	Staging     []StagingView `json:"staging"`
	Plan        *PlanView     `json:"plan,omitempty"`
}

type SampleView struct {
	UT                float64 `json:"ut"`
	Altitude          float64 `json:"altitude"`
	ApoapsisAltitude  float64 `json:"apoapsis_altitude"`
	PeriapsisAltitude float64 `json:"periapsis_altitude"`
	Stage             int     `json:"stage"`
	Fuel              float64 `json:"fuel"`
	Mass              float64 `json:"mass"`
	Thrust            float64 `json:"thrust"`
}

type OrbitView struct {
	UT                float64 `json:"ut"`
	ApoapsisAltitude  float64 `json:"apoapsis_altitude"`
	PeriapsisAltitude float64 `json:"periapsis_altitude"`
	SemiMajorAxis     float64 `json:"semi_major_axis"`
	TimeToApoapsis    float64 `json:"time_to_apoapsis"`
}

type StagingView struct {
	UT       float64 `json:"ut"`
	Stage    int     `json:"stage"`
	Kind     string  `json:"kind"`
	Altitude float64 `json:"altitude"`
	Verified bool    `json:"verified"`
}

type PlanView struct {
	DeltaV        float64 `json:"delta_v"`
	BurnDuration  float64 `json:"burn_duration"`
	BurnStartTime float64 `json:"burn_start_ut"`
	NodeTime      float64 `json:"node_ut"`
}

// EventView is one message on the telemetry stream.
type EventView struct {
	Type        string       `json:"type"`
	MissionID   string       `json:"mission_id,omitempty"`
	UT          float64      `json:"ut"`
	Phase       string       `json:"phase,omitempty"`
	AscentPhase string       `json:"ascent_phase,omitempty"`
	Telemetry   *SampleView  `json:"telemetry,omitempty"`
	Orbit       *OrbitView   `json:"orbit,omitempty"`
	Staging     *StagingView `json:"staging,omitempty"`
	Plan        *PlanView    `json:"plan,omitempty"`
}

func missionView(s kb.MissionState, health string) MissionView {
	v := MissionView{
		MissionID:   s.MissionID,
		Phase:       s.Phase.String(),
		AscentPhase: s.AscentPhase.String(),
		Health:      health,
		UT:          s.UT,
		Telemetry:   sampleView(s.LastSample),
		Orbit:       orbitView(s.LastOrbit),
		Staging:     make([]StagingView, 0, len(s.StagingEvents)),
	}
	for _, ev := range s.StagingEvents {
		v.Staging = append(v.Staging, stagingView(ev))
	}
	if s.Plan != nil {
		p := planView(*s.Plan)
		v.Plan = &p
	}
	return v
}

func eventView(ev kb.Event) EventView {
	v := EventView{Type: ev.Type.String(), MissionID: ev.MissionID, UT: finite(ev.UT)}
	switch ev.Type {
	case kb.EventMissionPhase:
		v.Phase = ev.Phase.String()
	case kb.EventAscentPhase:
		v.AscentPhase = ev.AscentPhase.String()
		s := sampleView(ev.Sample)
		v.Telemetry = &s
	case kb.EventTelemetry:
		s := sampleView(ev.Sample)
		v.Telemetry = &s
	case kb.EventOrbit:
		o := orbitView(ev.Orbit)
		v.Orbit = &o
	case kb.EventStagingIssued, kb.EventStagingChecked:
		st := stagingView(ev.Staging)
		v.Staging = &st
	case kb.EventManeuverPlanned:
		p := planView(ev.Plan)
		v.Plan = &p
	}
	return v
}

func sampleView(s model.TelemetrySample) SampleView {
	return SampleView{
		UT:                finite(s.Time),
		Altitude:          finite(s.Altitude),
		ApoapsisAltitude:  finite(s.ApoapsisAltitude),
		PeriapsisAltitude: finite(s.PeriapsisAltitude),
		Stage:             s.CurrentStage,
		Fuel:              finite(s.FuelInStage),
		Mass:              finite(s.Mass),
		Thrust:            finite(s.AvailableThrust),
	}
}

func orbitView(o model.OrbitSnapshot) OrbitView {
	return OrbitView{
		UT:                finite(o.Time),
		ApoapsisAltitude:  finite(o.ApoapsisAltitude),
		PeriapsisAltitude: finite(o.PeriapsisAltitude),
		SemiMajorAxis:     finite(o.SemiMajorAxis),
		TimeToApoapsis:    finite(o.TimeToApoapsis),
	}
}

func stagingView(ev model.StagingEvent) StagingView {
	return StagingView{
		UT:       finite(ev.Time),
		Stage:    ev.Stage,
		Kind:     ev.Kind,
		Altitude: finite(ev.Altitude),
		Verified: ev.Verified,
	}
}

func planView(p model.ManeuverPlan) PlanView {
	return PlanView{
		DeltaV:        finite(p.DeltaV),
		BurnDuration:  finite(p.BurnDuration),
		BurnStartTime: finite(p.BurnStartTime),
		NodeTime:      finite(p.NodeTime),
	}
}

// finite maps values JSON cannot carry (an escape orbit's infinite apoapsis)
// to zero.
func finite(x float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return 0
	}
	return x
}
