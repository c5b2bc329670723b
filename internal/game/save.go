package game

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// SaveData is the serialized session state: the full blackboard, the active
// events and the fired plot node ids. The week deck and the immediate queue
// are deliberately not persisted; a fresh week is generated on load.
type SaveData struct {
	WorldSlug   string          `json:"world_slug"`
	WorldName   string          `json:"world_name"`
	State       json.RawMessage `json:"state"`
	Events      json.RawMessage `json:"events"`
	FiredNodes  []string        `json:"fired_nodes"`
	LifeNumber  int             `json:"life_number"`
	ElapsedDays int             `json:"elapsed_days"`
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// WorldToSlug converts a world name to its auto-save key, e.g.
// "Medieval Kingdom" becomes "medieval_kingdom".
func WorldToSlug(worldName string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(worldName), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return "world"
	}
	return slug
}

// ExportSave serializes the session for the auto-save slot.
func (e *Engine) ExportSave() (*SaveData, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stateJSON, err := json.Marshal(e.state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	eventsJSON, err := json.Marshal(e.events)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}

	return &SaveData{
		WorldSlug:   WorldToSlug(e.state.WorldName),
		WorldName:   e.state.WorldName,
		State:       stateJSON,
		Events:      eventsJSON,
		FiredNodes:  e.dag.FiredIDs(),
		LifeNumber:  e.state.LifeNumber,
		ElapsedDays: e.state.ElapsedDays(),
	}, nil
}

// RestoreSave loads a serialized session into an engine whose world was
// already rebuilt from its schema: the blackboard and events are replaced
// and the plot graph's fired flags are re-marked. The deck starts empty.
func (e *Engine) RestoreSave(data *SaveData) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	restored := NewBlackboard()
	if err := json.Unmarshal(data.State, restored); err != nil {
		return fmt.Errorf("unmarshal state: %w", err)
	}
	e.state = restored

	e.events.Clear()
	if len(data.Events) > 0 {
		if err := json.Unmarshal(data.Events, e.events); err != nil {
			return fmt.Errorf("unmarshal events: %w", err)
		}
	}

	e.dag.RestoreFired(data.FiredNodes)
	e.deck.Clear()
	e.immediate = nil
	e.lastDrawn = nil
	return nil
}
