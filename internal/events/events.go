// Package events holds the ephemeral typed events a playthrough accumulates
// and the registry that tracks which are still active.
//
// There are four variants with independent termination rules:
//
//	PhaseEvent     — advances through named phases, finished past the last one
//	ProgressEvent  — integer counter, finished when current >= target
//	TimedEvent     — calendar deadline, expiry checked externally against the date
//	ConditionEvent — boolean end condition, evaluated externally at sweep time
package events

import (
	"encoding/json"
	"fmt"
)

// Type discriminates the event variants in serialized form.
type Type string

const (
	TypePhase     Type = "phase"
	TypeProgress  Type = "progress"
	TypeTimed     Type = "timed"
	TypeCondition Type = "condition"
)

// Event is the interface shared by all four variants.
type Event interface {
	GetID() string
	GetName() string
	GetDescription() string
	GetIcon() string
	GetType() Type
	// GetOnDayEndCalls returns function calls executed after each action
	// while the event is active.
	GetOnDayEndCalls() []map[string]any
	// IsFinished self-reports termination. Timed and condition events always
	// return false here; their termination is decided by the weekly sweep.
	IsFinished() bool
	ProgressDisplay() string
}

// Base carries the fields common to every variant.
type Base struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Icon          string           `json:"icon"`
	OnDayEndCalls []map[string]any `json:"on_day_end_calls,omitempty"`
}

func (b *Base) GetID() string                      { return b.ID }
func (b *Base) GetName() string                    { return b.Name }
func (b *Base) GetDescription() string             { return b.Description }
func (b *Base) GetIcon() string                    { return b.Icon }
func (b *Base) GetOnDayEndCalls() []map[string]any { return b.OnDayEndCalls }

// Phase is a single named step of a PhaseEvent.
type Phase struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PhaseEvent progresses through its phases one advance_event call at a time.
type PhaseEvent struct {
	Base
	Phases       []Phase `json:"phases"`
	CurrentPhase int     `json:"current_phase"`
}

func (e *PhaseEvent) GetType() Type    { return TypePhase }
func (e *PhaseEvent) IsFinished() bool { return e.CurrentPhase >= len(e.Phases) }

// AdvancePhase moves to the next phase and returns the phase just completed,
// or nil when already finished.
func (e *PhaseEvent) AdvancePhase() *Phase {
	if e.IsFinished() {
		return nil
	}
	completed := e.Phases[e.CurrentPhase]
	e.CurrentPhase++
	return &completed
}

// CurrentPhaseObj returns the in-progress phase, or nil when finished.
func (e *PhaseEvent) CurrentPhaseObj() *Phase {
	if e.IsFinished() {
		return nil
	}
	return &e.Phases[e.CurrentPhase]
}

func (e *PhaseEvent) ProgressDisplay() string {
	if e.IsFinished() {
		return "Done"
	}
	return fmt.Sprintf("Phase %d/%d: %s", e.CurrentPhase+1, len(e.Phases), e.Phases[e.CurrentPhase].Name)
}

// ProgressEvent tracks numeric progress toward a target.
type ProgressEvent struct {
	Base
	Target        int    `json:"target"`
	Current       int    `json:"current"`
	ProgressLabel string `json:"progress_label"`
}

func (e *ProgressEvent) GetType() Type    { return TypeProgress }
func (e *ProgressEvent) IsFinished() bool { return e.Current >= e.Target }

func (e *ProgressEvent) UpdateProgress(delta int) { e.Current += delta }

func (e *ProgressEvent) ProgressDisplay() string {
	if e.IsFinished() {
		return "Done"
	}
	return fmt.Sprintf("%s: %d/%d", e.ProgressLabel, e.Current, e.Target)
}

// TimedEvent expires once the calendar reaches its deadline.
type TimedEvent struct {
	Base
	DeadlineDay    int `json:"deadline_day"`
	DeadlineSeason int `json:"deadline_season"`
	DeadlineYear   int `json:"deadline_year"`
}

func (e *TimedEvent) GetType() Type    { return TypeTimed }
func (e *TimedEvent) IsFinished() bool { return false } // decided by the sweep

// IsExpired compares the current date against the deadline using
// (year, season, day) lexicographic order.
func (e *TimedEvent) IsExpired(day, season, year int) bool {
	if year != e.DeadlineYear {
		return year > e.DeadlineYear
	}
	if season != e.DeadlineSeason {
		return season > e.DeadlineSeason
	}
	return day >= e.DeadlineDay
}

func (e *TimedEvent) SetDeadline(day, season, year int) {
	e.DeadlineDay = day
	e.DeadlineSeason = season
	e.DeadlineYear = year
}

func (e *TimedEvent) ProgressDisplay() string {
	return fmt.Sprintf("Deadline: day %d, season %d, year %d", e.DeadlineDay, e.DeadlineSeason, e.DeadlineYear)
}

// ConditionEvent ends when its end condition evaluates to true.
type ConditionEvent struct {
	Base
	EndCondition string `json:"end_condition"`
}

func (e *ConditionEvent) GetType() Type           { return TypeCondition }
func (e *ConditionEvent) IsFinished() bool        { return false } // decided by the sweep
func (e *ConditionEvent) ProgressDisplay() string { return "Active" }

// typed wraps a variant with its discriminator for serialization.
func (e *PhaseEvent) MarshalJSON() ([]byte, error) {
	type alias PhaseEvent
	return json.Marshal(struct {
		Type Type `json:"type"`
		*alias
	}{TypePhase, (*alias)(e)})
}

func (e *ProgressEvent) MarshalJSON() ([]byte, error) {
	type alias ProgressEvent
	return json.Marshal(struct {
		Type Type `json:"type"`
		*alias
	}{TypeProgress, (*alias)(e)})
}

func (e *TimedEvent) MarshalJSON() ([]byte, error) {
	type alias TimedEvent
	return json.Marshal(struct {
		Type Type `json:"type"`
		*alias
	}{TypeTimed, (*alias)(e)})
}

func (e *ConditionEvent) MarshalJSON() ([]byte, error) {
	type alias ConditionEvent
	return json.Marshal(struct {
		Type Type `json:"type"`
		*alias
	}{TypeCondition, (*alias)(e)})
}

// Unmarshal decodes a serialized event into its concrete variant using the
// "type" discriminator.
func Unmarshal(data []byte) (Event, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case TypePhase:
		var e PhaseEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case TypeProgress:
		var e ProgressEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case TypeTimed:
		var e TimedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case TypeCondition:
		var e ConditionEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}
}
