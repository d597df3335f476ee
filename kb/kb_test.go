package kb

import (
	"context"
	"sync"
	"testing"

	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/model"
)

type stubNode struct{}

func (stubNode) Remove() error { return nil }

func missionCtx(id string) context.Context {
	return logging.ContextWithMissionID(context.Background(), id)
}

func TestPhaseChangeStartsMissionRecord(t *testing.T) {
	store := NewKnowledgeBase()
	ctx := missionCtx("m1")

	store.MissionPhaseChanged(ctx, model.MissionEngageAutopilot, 10)
	store.TelemetrySampled(ctx, model.TelemetrySample{Time: 11, Altitude: 500})

	got := store.Snapshot()
	if got.MissionID != "m1" || got.Phase != model.MissionEngageAutopilot {
		t.Fatalf("snapshot = %+v", got)
	}
	if got.LastSample.Altitude != 500 || got.UT != 11 {
		t.Fatalf("last sample not recorded: %+v", got)
	}

	store.MissionPhaseChanged(missionCtx("m2"), model.MissionEngageAutopilot, 50)
	got = store.Snapshot()
	if got.MissionID != "m2" || got.LastSample.Altitude != 0 {
		t.Fatalf("new mission should reset the record, got %+v", got)
	}
}

func TestAscentPhaseRatchets(t *testing.T) {
	store := NewKnowledgeBase()
	ctx := context.Background()
	store.AscentPhaseChanged(ctx, model.PhasePitch30, model.TelemetrySample{})
	store.AscentPhaseChanged(ctx, model.PhasePitch45, model.TelemetrySample{})
	if got := store.Snapshot().AscentPhase; got != model.PhasePitch30 {
		t.Fatalf("ascent phase = %s, want PITCH_30", got)
	}
}

func TestStagingVerification(t *testing.T) {
	store := NewKnowledgeBase()
	ctx := context.Background()
	store.StagingIssued(ctx, model.StagingEvent{Stage: 5})
	store.StagingIssued(ctx, model.StagingEvent{Stage: 4})
	store.StagingChecked(ctx, model.StagingEvent{Stage: 4, Verified: true})

	events := store.Snapshot().StagingEvents
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Verified || !events[1].Verified {
		t.Fatalf("verification applied to the wrong event: %+v", events)
	}
}

func TestManeuverPlannedDropsNode(t *testing.T) {
	store := NewKnowledgeBase()
	store.ManeuverPlanned(context.Background(), model.ManeuverPlan{DeltaV: 440, Node: stubNode{}})

	plan := store.Snapshot().Plan
	if plan == nil || plan.DeltaV != 440 {
		t.Fatalf("plan = %+v", plan)
	}
	if plan.Node != nil {
		t.Fatalf("stored plan must not carry the node handle")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewKnowledgeBase()
	store.StagingIssued(context.Background(), model.StagingEvent{Stage: 3})
	snap := store.Snapshot()
	snap.StagingEvents[0].Stage = 99
	if store.Snapshot().StagingEvents[0].Stage != 3 {
		t.Fatalf("snapshot aliases KB state")
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	store := NewKnowledgeBase()
	ctx := missionCtx("m1")

	var got []Event
	unsubscribe := store.Subscribe(func(e Event) { got = append(got, e) })
	other := 0
	store.Subscribe(func(Event) { other++ })

	store.MissionPhaseChanged(ctx, model.MissionAscent, 5)
	store.OrbitSampled(ctx, model.OrbitSnapshot{Time: 6, ApoapsisAltitude: 1000})
	unsubscribe()
	store.OrbitSampled(ctx, model.OrbitSnapshot{Time: 7})

	if len(got) != 2 {
		t.Fatalf("expected 2 events before unsubscribe, got %d", len(got))
	}
	if got[0].Type != EventMissionPhase || got[0].Phase != model.MissionAscent {
		t.Fatalf("first event = %+v", got[0])
	}
	if got[1].Type != EventOrbit || got[1].MissionID != "m1" || got[1].Orbit.ApoapsisAltitude != 1000 {
		t.Fatalf("second event = %+v", got[1])
	}
	if other != 3 {
		t.Fatalf("remaining subscriber saw %d events, want 3", other)
	}
}

func TestEventTypeString(t *testing.T) {
	if EventStagingChecked.String() != "staging_checked" || EventType(42).String() != "unknown" {
		t.Fatalf("unexpected event type names")
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewKnowledgeBase()
	ctx := missionCtx("m1")

	var wg sync.WaitGroup
	// Concurrent readers/writers
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = store.Snapshot()
		}()
		go func() {
			defer wg.Done()
			store.TelemetrySampled(ctx, model.TelemetrySample{Time: float64(i)})
		}()
		go func() {
			defer wg.Done()
			unsub := store.Subscribe(func(Event) {})
			unsub()
		}()
	}
	wg.Wait()
}
