package kb

import (
	"context"
	"sync"

	"github.com/signalsfoundry/ascent-guidance/core"
	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/model"
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventMissionPhase EventType = iota
	EventAscentPhase
	EventTelemetry
	EventOrbit
	EventStagingIssued
	EventStagingChecked
	EventManeuverPlanned
)

func (t EventType) String() string {
	switch t {
	case EventMissionPhase:
		return "mission_phase"
	case EventAscentPhase:
		return "ascent_phase"
	case EventTelemetry:
		return "telemetry"
	case EventOrbit:
		return "orbit"
	case EventStagingIssued:
		return "staging_issued"
	case EventStagingChecked:
		return "staging_checked"
	case EventManeuverPlanned:
		return "maneuver_planned"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when the mission state changes. Only the
// fields relevant to Type are set.
type Event struct {
	Type        EventType
	MissionID   string
	Phase       model.MissionPhase
	AscentPhase model.AscentPhase
	UT          float64
	Sample      model.TelemetrySample
	Orbit       model.OrbitSnapshot
	Staging     model.StagingEvent
	Plan        model.ManeuverPlan
}

// MissionState is a point-in-time copy of what the KB knows about the
// current mission.
type MissionState struct {
	MissionID     string
	Phase         model.MissionPhase
	AscentPhase   model.AscentPhase
	UT            float64
	LastSample    model.TelemetrySample
	LastOrbit     model.OrbitSnapshot
	StagingEvents []model.StagingEvent
	Plan          *model.ManeuverPlan
}

// KnowledgeBase is an in-memory, thread-safe record of the running mission.
// It implements core.Observer so the guidance loop feeds it directly.
type KnowledgeBase struct {
	mu sync.RWMutex

	state MissionState

	subs   map[int]func(Event)
	nextID int
}

var _ core.Observer = (*KnowledgeBase)(nil)

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{subs: make(map[int]func(Event))}
}

// Snapshot returns a copy of the current mission state.
func (kb *KnowledgeBase) Snapshot() MissionState {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	s := kb.state
	s.StagingEvents = append([]model.StagingEvent(nil), kb.state.StagingEvents...)
	if kb.state.Plan != nil {
		plan := *kb.state.Plan
		s.Plan = &plan
	}
	return s
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
// Callbacks run on the guidance loop and must not block.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// MissionPhaseChanged records a sequencer transition. A transition carrying a
// new mission ID starts a fresh record.
func (kb *KnowledgeBase) MissionPhaseChanged(ctx context.Context, phase model.MissionPhase, ut float64) {
	id := logging.MissionIDFromContext(ctx)
	kb.update(Event{Type: EventMissionPhase, MissionID: id, Phase: phase, UT: ut}, func(s *MissionState) {
		if id != "" && id != s.MissionID {
			*s = MissionState{MissionID: id}
		}
		s.Phase = phase
		s.UT = ut
	})
}

func (kb *KnowledgeBase) AscentPhaseChanged(ctx context.Context, phase model.AscentPhase, sample model.TelemetrySample) {
	kb.update(Event{Type: EventAscentPhase, AscentPhase: phase, Sample: sample, UT: sample.Time}, func(s *MissionState) {
		if phase > s.AscentPhase {
			s.AscentPhase = phase
		}
	})
}

func (kb *KnowledgeBase) TelemetrySampled(ctx context.Context, sample model.TelemetrySample) {
	kb.update(Event{Type: EventTelemetry, Sample: sample, UT: sample.Time}, func(s *MissionState) {
		s.LastSample = sample
		s.UT = sample.Time
	})
}

func (kb *KnowledgeBase) OrbitSampled(ctx context.Context, orbit model.OrbitSnapshot) {
	kb.update(Event{Type: EventOrbit, Orbit: orbit, UT: orbit.Time}, func(s *MissionState) {
		s.LastOrbit = orbit
		s.UT = orbit.Time
	})
}

func (kb *KnowledgeBase) StagingIssued(ctx context.Context, ev model.StagingEvent) {
	kb.update(Event{Type: EventStagingIssued, Staging: ev, UT: ev.Time}, func(s *MissionState) {
		s.StagingEvents = append(s.StagingEvents, ev)
	})
}

// StagingChecked marks the most recent staging event issued at the same
// stage index with the verification result.
func (kb *KnowledgeBase) StagingChecked(ctx context.Context, ev model.StagingEvent) {
	kb.update(Event{Type: EventStagingChecked, Staging: ev, UT: ev.Time}, func(s *MissionState) {
		for i := len(s.StagingEvents) - 1; i >= 0; i-- {
			if s.StagingEvents[i].Stage == ev.Stage {
				s.StagingEvents[i].Verified = ev.Verified
				break
			}
		}
	})
}

// ManeuverPlanned stores the plan without its node handle; the node stays
// with the burn executor.
func (kb *KnowledgeBase) ManeuverPlanned(ctx context.Context, plan model.ManeuverPlan) {
	plan.Node = nil
	kb.update(Event{Type: EventManeuverPlanned, Plan: plan}, func(s *MissionState) {
		p := plan
		s.Plan = &p
	})
}

func (kb *KnowledgeBase) update(ev Event, apply func(*MissionState)) {
	kb.mu.Lock()
	apply(&kb.state)
	if ev.MissionID == "" {
		ev.MissionID = kb.state.MissionID
	}
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(ev)
	}
}
