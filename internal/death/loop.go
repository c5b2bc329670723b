// Package death detects stat-boundary deaths and handles resurrection.
// DeathLoop is stateless; both operations act on the blackboard they are
// given.
package death

import (
	"sort"
	"strings"
)

// karmaCap bounds how many tags one life can carry into the next.
const karmaCap = 10

// DeathInfo is a snapshot of the game state at the moment of death.
type DeathInfo struct {
	CauseStat    string         `json:"cause_stat"`  // stat that crossed a boundary
	CauseValue   int            `json:"cause_value"` // 0 = depleted, 100 = overloaded
	Turn         int            `json:"turn"`
	LifeNumber   int            `json:"life_number"`
	TagsAtDeath  []string       `json:"tags_at_death"`
	StatsAtDeath map[string]int `json:"stats_at_death"`
}

// Blackboard is the slice of game state the death loop reads and resets.
type Blackboard interface {
	OrderedStatIDs() []string
	GetStat(id string) int
	GetStats() map[string]int
	GetTags() []string
	CurrentTurn() int
	CurrentLife() int
	SetPreviousLifeTags(tags []string)
	AppendKarma(tags []string)
	IncrementLife()
	SetTags(tags []string)
	ResetStats(value int)
	ResetNPCAppearances()
}

type DeathLoop struct{}

func NewDeathLoop() *DeathLoop { return &DeathLoop{} }

// CheckDeath returns a DeathInfo when any stat sits at 0 or below (depleted)
// or 100 or above (overloaded), else nil. Stats are scanned in definition
// order with depletion checked before overload, so the reported cause is
// stable when several stats cross a boundary on the same action.
func (l *DeathLoop) CheckDeath(state Blackboard) *DeathInfo {
	for _, id := range state.OrderedStatIDs() {
		value := state.GetStat(id)
		switch {
		case value <= 0:
			return snapshot(state, id, 0)
		case value >= 100:
			return snapshot(state, id, 100)
		}
	}
	return nil
}

func snapshot(state Blackboard, causeStat string, causeValue int) *DeathInfo {
	return &DeathInfo{
		CauseStat:    causeStat,
		CauseValue:   causeValue,
		Turn:         state.CurrentTurn(),
		LifeNumber:   state.CurrentLife(),
		TagsAtDeath:  state.GetTags(),
		StatsAtDeath: state.GetStats(),
	}
}

// Resurrect resets the blackboard for a new life and returns the karma tags
// carried forward: non-temporary tags (no "_temp" prefix), sorted, capped at
// ten. Karma stays in the tag set so the new life starts with those
// modifiers, and is appended to the historical karma list. Stats reset to 50
// and NPC appearance counters zero out. The calendar is untouched; the
// engine skips to the next season as part of completing the resurrection.
func (l *DeathLoop) Resurrect(state Blackboard) []string {
	karma := make([]string, 0, karmaCap)
	for _, tag := range state.GetTags() {
		if strings.HasPrefix(tag, "_temp") {
			continue
		}
		karma = append(karma, tag)
	}
	sort.Strings(karma)
	if len(karma) > karmaCap {
		karma = karma[:karmaCap]
	}

	state.SetPreviousLifeTags(karma)
	state.AppendKarma(karma)
	state.IncrementLife()
	state.SetTags(karma)
	state.ResetStats(50)
	state.ResetNPCAppearances()

	return karma
}
