package events

import "encoding/json"

// Registry is the flat, ordered list of currently active events. Order is
// insertion order; the weekly sweep and all lookups iterate it
// deterministically.
type Registry struct {
	events []Event
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends an event. A nil event is ignored.
func (r *Registry) Add(e Event) {
	if e == nil {
		return
	}
	r.events = append(r.events, e)
}

// Remove drops the event with the given id. Missing ids are a no-op.
func (r *Registry) Remove(id string) {
	kept := r.events[:0]
	for _, e := range r.events {
		if e.GetID() != id {
			kept = append(kept, e)
		}
	}
	r.events = kept
}

// Get returns the event with the given id, or nil.
func (r *Registry) Get(id string) Event {
	for _, e := range r.events {
		if e.GetID() == id {
			return e
		}
	}
	return nil
}

// All returns the active events in insertion order. The slice is a copy; the
// events themselves are shared.
func (r *Registry) All() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ActiveIDs returns the ids of all active events, used as the "events" field
// of condition-evaluation contexts.
func (r *Registry) ActiveIDs() []string {
	ids := make([]string, 0, len(r.events))
	for _, e := range r.events {
		ids = append(ids, e.GetID())
	}
	return ids
}

func (r *Registry) Len() int { return len(r.events) }

func (r *Registry) Clear() { r.events = nil }

// Sweep removes every event whose termination condition has been reached and
// returns the removed events. Phase and progress events self-report; timed
// events are compared against the supplied date; condition events are decided
// by evalCondition (which must swallow its own errors and report false, so a
// broken condition leaves the event active).
//
// The whole list is evaluated before anything is removed, so no event
// observes another's removal mid-sweep.
func (r *Registry) Sweep(day, season, year int, evalCondition func(expression string) bool) []Event {
	finished := make(map[string]bool)
	for _, e := range r.events {
		switch ev := e.(type) {
		case *TimedEvent:
			if ev.IsExpired(day, season, year) {
				finished[ev.ID] = true
			}
		case *ConditionEvent:
			if evalCondition != nil && evalCondition(ev.EndCondition) {
				finished[ev.ID] = true
			}
		default:
			if e.IsFinished() {
				finished[e.GetID()] = true
			}
		}
	}

	if len(finished) == 0 {
		return nil
	}

	var removed []Event
	kept := r.events[:0]
	for _, e := range r.events {
		if finished[e.GetID()] {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	r.events = kept
	return removed
}

// MarshalJSON serializes the registry as an ordered event array.
func (r *Registry) MarshalJSON() ([]byte, error) {
	if r.events == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.events)
}

// UnmarshalJSON restores the registry from an event array, skipping entries
// that fail to decode rather than rejecting the whole save.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.events = nil
	for _, msg := range raw {
		e, err := Unmarshal(msg)
		if err != nil {
			continue
		}
		r.events = append(r.events, e)
	}
	return nil
}
