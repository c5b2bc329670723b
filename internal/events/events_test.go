package events

import (
	"encoding/json"
	"testing"
)

func TestPhaseEventLifecycle(t *testing.T) {
	e := &PhaseEvent{
		Base: Base{ID: "siege", Name: "The Siege", Icon: "⚔"},
		Phases: []Phase{
			{Name: "Encirclement"},
			{Name: "Bombardment"},
		},
	}

	if e.IsFinished() {
		t.Fatal("event with remaining phases must not be finished")
	}
	if got := e.ProgressDisplay(); got != "Phase 1/2: Encirclement" {
		t.Errorf("unexpected progress display %q", got)
	}

	completed := e.AdvancePhase()
	if completed == nil || completed.Name != "Encirclement" {
		t.Fatalf("expected Encirclement to complete, got %+v", completed)
	}

	e.AdvancePhase()
	if !e.IsFinished() {
		t.Error("event past its last phase must be finished")
	}
	if e.AdvancePhase() != nil {
		t.Error("advancing a finished event must return nil")
	}
	if e.CurrentPhaseObj() != nil {
		t.Error("finished event has no current phase")
	}
}

func TestPhaseEventWithZeroPhasesIsImmediatelyFinished(t *testing.T) {
	e := &PhaseEvent{Base: Base{ID: "empty"}}
	if !e.IsFinished() {
		t.Error("a phase event with zero phases is finished from the start")
	}
}

func TestProgressEvent(t *testing.T) {
	e := &ProgressEvent{
		Base:          Base{ID: "tribute"},
		Target:        10,
		ProgressLabel: "Gold collected",
	}

	e.UpdateProgress(4)
	if e.IsFinished() {
		t.Error("4/10 must not be finished")
	}
	if got := e.ProgressDisplay(); got != "Gold collected: 4/10" {
		t.Errorf("unexpected progress display %q", got)
	}

	e.UpdateProgress(7)
	if !e.IsFinished() {
		t.Error("11/10 must be finished")
	}
}

func TestTimedEventExpiry(t *testing.T) {
	e := &TimedEvent{Base: Base{ID: "ultimatum"}, DeadlineDay: 14, DeadlineSeason: 1, DeadlineYear: 2}

	if e.IsFinished() {
		t.Error("timed events never self-report finished")
	}

	cases := []struct {
		day, season, year int
		expired           bool
	}{
		{13, 1, 2, false}, // day before deadline
		{14, 1, 2, true},  // exactly the deadline
		{1, 2, 2, true},   // later season, earlier day
		{28, 0, 2, false}, // earlier season, later day
		{1, 0, 3, true},   // later year wins over everything
		{28, 3, 1, false}, // earlier year
	}
	for _, c := range cases {
		if got := e.IsExpired(c.day, c.season, c.year); got != c.expired {
			t.Errorf("IsExpired(%d,%d,%d) = %v, want %v", c.day, c.season, c.year, got, c.expired)
		}
	}
}

func TestConditionEventNeverSelfReports(t *testing.T) {
	e := &ConditionEvent{Base: Base{ID: "curse"}, EndCondition: `"cured" in tags`}
	if e.IsFinished() {
		t.Error("condition events never self-report finished")
	}
}

func TestRegistryAddRemoveGet(t *testing.T) {
	r := NewRegistry()
	r.Add(&ProgressEvent{Base: Base{ID: "a"}, Target: 1})
	r.Add(&ProgressEvent{Base: Base{ID: "b"}, Target: 1})

	if r.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", r.Len())
	}
	if r.Get("a") == nil {
		t.Error("expected to find event a")
	}
	if r.Get("missing") != nil {
		t.Error("missing id must return nil")
	}

	r.Remove("a")
	if r.Len() != 1 || r.Get("a") != nil {
		t.Error("remove must drop the event")
	}
	r.Remove("missing") // no-op
	if r.Len() != 1 {
		t.Error("removing a missing id must not change the registry")
	}
}

func TestRegistrySweep(t *testing.T) {
	r := NewRegistry()
	r.Add(&PhaseEvent{Base: Base{ID: "done_phase"}})                                  // zero phases, finished
	r.Add(&PhaseEvent{Base: Base{ID: "live_phase"}, Phases: []Phase{{Name: "p"}}})    // unfinished
	r.Add(&ProgressEvent{Base: Base{ID: "done_progress"}, Target: 2, Current: 2})     // finished
	r.Add(&TimedEvent{Base: Base{ID: "expired"}, DeadlineDay: 1, DeadlineYear: 1})    // past deadline
	r.Add(&TimedEvent{Base: Base{ID: "pending"}, DeadlineDay: 28, DeadlineYear: 99})  // future
	r.Add(&ConditionEvent{Base: Base{ID: "met"}, EndCondition: "finish_me"})          // condition true
	r.Add(&ConditionEvent{Base: Base{ID: "broken"}, EndCondition: "syntax error (("}) // evaluator says false

	removed := r.Sweep(7, 0, 1, func(expression string) bool {
		return expression == "finish_me"
	})

	if len(removed) != 4 {
		t.Fatalf("expected 4 removed events, got %d", len(removed))
	}
	for _, id := range []string{"done_phase", "done_progress", "expired", "met"} {
		if r.Get(id) != nil {
			t.Errorf("event %s should have been removed", id)
		}
	}
	for _, id := range []string{"live_phase", "pending", "broken"} {
		if r.Get(id) == nil {
			t.Errorf("event %s should still be active", id)
		}
	}
}

func TestRegistryActiveIDsOrder(t *testing.T) {
	r := NewRegistry()
	r.Add(&ProgressEvent{Base: Base{ID: "first"}, Target: 1})
	r.Add(&ProgressEvent{Base: Base{ID: "second"}, Target: 1})

	ids := r.ActiveIDs()
	if len(ids) != 2 || ids[0] != "first" || ids[1] != "second" {
		t.Errorf("expected insertion order, got %v", ids)
	}
}

func TestUnmarshalDiscriminates(t *testing.T) {
	original := &TimedEvent{Base: Base{ID: "deadline", Name: "Deadline"}, DeadlineDay: 3, DeadlineSeason: 2, DeadlineYear: 1}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	timed, ok := decoded.(*TimedEvent)
	if !ok {
		t.Fatalf("expected *TimedEvent, got %T", decoded)
	}
	if timed.DeadlineSeason != 2 {
		t.Errorf("deadline season lost in round trip: %d", timed.DeadlineSeason)
	}

	if _, err := Unmarshal([]byte(`{"type":"volcano"}`)); err == nil {
		t.Error("unknown type must error")
	}
}

func TestRegistryJSONRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Add(&PhaseEvent{Base: Base{ID: "p"}, Phases: []Phase{{Name: "one"}}, CurrentPhase: 1})
	r.Add(&ConditionEvent{Base: Base{ID: "c"}, EndCondition: "day > 3"})

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored := NewRegistry()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.Len() != 2 {
		t.Fatalf("expected 2 events after round trip, got %d", restored.Len())
	}
	if _, ok := restored.Get("p").(*PhaseEvent); !ok {
		t.Error("phase event lost its concrete type")
	}
	if _, ok := restored.Get("c").(*ConditionEvent); !ok {
		t.Error("condition event lost its concrete type")
	}
}
