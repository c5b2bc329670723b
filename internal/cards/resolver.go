package cards

import (
	"log/slog"
	"strings"

	"github.com/nhkhanh/cardfall/internal/events"
)

// GameState is the slice of blackboard behavior the executor needs. The game
// package's Blackboard satisfies it.
type GameState interface {
	HasStat(id string) bool
	GetStat(id string) int
	SetStat(id string, value int)
	GetStats() map[string]int
	AddTag(tag string)
	RemoveTag(tag string)
	EnableNPC(id string)
	DisableNPC(id string)
	BumpNPCAppearance(id string)
	AdvanceDay() (weekEnd, seasonEnd bool)
}

// ExecuteResult is the outcome of resolving one card action.
type ExecuteResult struct {
	StatChanges map[string]int `json:"stat_changes"`
	NewStats    map[string]int `json:"new_stats"`
	TreeCards   []Card         `json:"tree_cards,omitempty"`
	Direction   string         `json:"direction"`
	IsInfo      bool           `json:"is_info"`
}

// ActionExecutor applies declarative function calls from card choices to the
// game state and the active event registry.
type ActionExecutor struct {
	state  GameState
	events *events.Registry
}

func NewActionExecutor(state GameState, registry *events.Registry) *ActionExecutor {
	return &ActionExecutor{state: state, events: registry}
}

// Execute runs a list of function calls and returns the net stat changes
// applied. Unknown function names are skipped with a log line so
// forward-compatible generator output does not crash older engine versions.
func (x *ActionExecutor) Execute(calls []FunctionCall) map[string]int {
	statChanges := make(map[string]int)
	for _, call := range calls {
		switch call.Name {
		case "update_stat":
			for id, delta := range x.updateStat(call.Params) {
				statChanges[id] = delta
			}
		case "add_tag":
			x.addTag(call.Params)
		case "remove_tag":
			x.removeTag(call.Params)
		case "add_event":
			x.addEvent(call.Params)
		case "remove_event":
			x.removeEvent(call.Params)
		case "advance_event":
			x.advanceEvent(call.Params)
		case "update_event_progress":
			x.updateEventProgress(call.Params)
		case "change_event_deadline":
			x.changeEventDeadline(call.Params)
		case "enable_npc":
			x.enableNPC(call.Params)
		case "disable_npc":
			x.disableNPC(call.Params)
		case "advance_time":
			x.advanceTime(call.Params)
		default:
			slog.Debug("skipping unknown function call", "name", call.Name)
		}
	}
	return statChanges
}

// ResolveCard applies a card action and reports what happened.
//
// Info cards execute nothing; their next_cards come back as tree cards so
// they surface immediately after dismissal. Choice cards execute the chosen
// side's calls and bump the speaking NPC's appearance counter. Day
// advancement is the engine's job, not handled here.
func (x *ActionExecutor) ResolveCard(card Card, direction string) ExecuteResult {
	if info, ok := card.(*InfoCard); ok {
		return ExecuteResult{
			StatChanges: map[string]int{},
			NewStats:    x.state.GetStats(),
			TreeCards:   info.NextCards,
			Direction:   direction,
			IsInfo:      true,
		}
	}

	choice := card.(*ChoiceCard)
	side := choice.Left
	tree := []Card(choice.TreeLeft)
	if direction == "right" {
		side = choice.Right
		tree = []Card(choice.TreeRight)
	}

	statChanges := x.Execute(side.Calls)
	x.state.BumpNPCAppearance(choice.Character)

	return ExecuteResult{
		StatChanges: statChanges,
		NewStats:    x.state.GetStats(),
		TreeCards:   tree,
		Direction:   direction,
	}
}

// updateStat applies deltas clamped to [0, 100] and returns the net change
// per stat. Two calling conventions are accepted:
//
//	{"stat_id": "treasury", "delta": 5}   explicit pair ("change" also works)
//	{"treasury": 5, "military": -3}       flat map of stat to delta
func (x *ActionExecutor) updateStat(params map[string]any) map[string]int {
	changes := make(map[string]int)

	apply := func(id string, raw any) {
		delta, ok := toInt(raw)
		if !ok || !x.state.HasStat(id) {
			return
		}
		old := x.state.GetStat(id)
		val := old + delta
		if val < 0 {
			val = 0
		} else if val > 100 {
			val = 100
		}
		x.state.SetStat(id, val)
		changes[id] = val - old
	}

	if id, ok := params["stat_id"].(string); ok {
		raw, has := params["delta"]
		if !has {
			raw, has = params["change"]
		}
		if has {
			apply(id, raw)
			return changes
		}
	}

	for id, raw := range params {
		apply(id, raw)
	}
	return changes
}

func (x *ActionExecutor) addTag(params map[string]any) {
	if tag, _ := params["tag_id"].(string); tag != "" {
		x.state.AddTag(tag)
	}
}

func (x *ActionExecutor) removeTag(params map[string]any) {
	if tag, _ := params["tag_id"].(string); tag != "" {
		x.state.RemoveTag(tag)
	}
}

func (x *ActionExecutor) addEvent(params map[string]any) {
	id, _ := params["event_id"].(string)
	if id == "" {
		return
	}

	base := events.Base{
		ID:          id,
		Name:        stringParam(params, "name", titleFromID(id)),
		Description: stringParam(params, "description", ""),
		Icon:        stringParam(params, "icon", "⚡"),
	}

	eventType, _ := params["type"].(string)
	if eventType == "" {
		eventType = "phase"
	}

	switch events.Type(eventType) {
	case events.TypePhase:
		var phases []events.Phase
		if raw, ok := params["phases"].([]any); ok {
			for _, p := range raw {
				if m, ok := p.(map[string]any); ok {
					phases = append(phases, events.Phase{
						Name:        stringParam(m, "name", ""),
						Description: stringParam(m, "description", ""),
					})
				}
			}
		}
		x.events.Add(&events.PhaseEvent{Base: base, Phases: phases})
	case events.TypeProgress:
		target, _ := toInt(params["target"])
		x.events.Add(&events.ProgressEvent{
			Base:          base,
			Target:        target,
			ProgressLabel: stringParam(params, "progress_label", ""),
		})
	case events.TypeTimed:
		day, season, year := deadlineParam(params["deadline"])
		e := &events.TimedEvent{Base: base}
		e.SetDeadline(day, season, year)
		x.events.Add(e)
	case events.TypeCondition:
		x.events.Add(&events.ConditionEvent{
			Base:         base,
			EndCondition: stringParam(params, "end_condition", ""),
		})
	default:
		slog.Debug("skipping add_event with unknown type", "type", eventType, "event_id", id)
	}
}

func (x *ActionExecutor) removeEvent(params map[string]any) {
	if id, _ := params["event_id"].(string); id != "" {
		x.events.Remove(id)
	}
}

func (x *ActionExecutor) advanceEvent(params map[string]any) {
	id, _ := params["event_id"].(string)
	if e, ok := x.events.Get(id).(*events.PhaseEvent); ok {
		e.AdvancePhase()
	}
}

func (x *ActionExecutor) updateEventProgress(params map[string]any) {
	id, _ := params["event_id"].(string)
	if e, ok := x.events.Get(id).(*events.ProgressEvent); ok {
		delta, _ := toInt(params["delta"])
		e.UpdateProgress(delta)
	}
}

func (x *ActionExecutor) changeEventDeadline(params map[string]any) {
	id, _ := params["event_id"].(string)
	if e, ok := x.events.Get(id).(*events.TimedEvent); ok {
		day, season, year := deadlineParam(params["deadline"])
		e.SetDeadline(day, season, year)
	}
}

func (x *ActionExecutor) enableNPC(params map[string]any) {
	if id, _ := params["npc_id"].(string); id != "" {
		x.state.EnableNPC(id)
	}
}

func (x *ActionExecutor) disableNPC(params map[string]any) {
	if id, _ := params["npc_id"].(string); id != "" {
		x.state.DisableNPC(id)
	}
}

func (x *ActionExecutor) advanceTime(params map[string]any) {
	days, _ := toInt(params["days"])
	for i := 0; i < days; i++ {
		x.state.AdvanceDay()
	}
}

// toInt coerces JSON-decoded numeric params, which arrive as float64.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func stringParam(params map[string]any, key, fallback string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// deadlineParam decodes a [day, season, year] triple, defaulting to [1, 1, 1].
func deadlineParam(raw any) (day, season, year int) {
	day, season, year = 1, 1, 1
	list, ok := raw.([]any)
	if !ok || len(list) != 3 {
		return
	}
	if d, ok := toInt(list[0]); ok {
		day = d
	}
	if s, ok := toInt(list[1]); ok {
		season = s
	}
	if y, ok := toInt(list[2]); ok {
		year = y
	}
	return
}

// titleFromID turns "royal_wedding" into "Royal Wedding".
func titleFromID(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
