// Package game holds the runtime state and the engine that drives a play
// session: the blackboard, the calendar, structural card routing, death
// handling and plot progression.
package game

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nhkhanh/cardfall/internal/cards"
)

// Calendar constants. A week is 7 days, a season 4 weeks, a year 4 seasons.
const (
	DaysPerWeek    = 7
	WeeksPerSeason = 4
	DaysPerSeason  = DaysPerWeek * WeeksPerSeason // 28
	SeasonsPerYear = 4
	DaysPerYear    = DaysPerSeason * SeasonsPerYear // 112
)

// Season is one of the four runtime seasons with its lifecycle hooks.
type Season struct {
	Name             string               `json:"name"`
	Description      string               `json:"description"`
	Icon             string               `json:"icon"`
	OnSeasonEndCalls []cards.FunctionCall `json:"on_season_end_calls,omitempty"`
	OnWeekEndCalls   []cards.FunctionCall `json:"on_week_end_calls,omitempty"`
	OnDayEndCalls    []cards.FunctionCall `json:"on_day_end_calls,omitempty"`
}

// NPC is a non-player character available for card interactions.
type NPC struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Description     string   `json:"description"`
	Traits          []string `json:"traits,omitempty"`
	Enabled         bool     `json:"enabled"`
	AppearanceCount int      `json:"npc_appearance_count"`
}

// PlayerCharacter is the protagonist.
type PlayerCharacter struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Description string   `json:"description"`
	Traits      []string `json:"traits,omitempty"`
}

// StatDefinition describes one stat for display purposes.
type StatDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// TagDefinition describes one tag the generator may grant.
type TagDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Relationship links two entities ("player" or an NPC id).
type Relationship struct {
	A            string `json:"a"`
	B            string `json:"b"`
	Relationship string `json:"relationship"`
}

// Blackboard is the single source of truth during a play session. It is not
// safe for concurrent use on its own; the engine serializes access.
type Blackboard struct {
	// World
	WorldName    string `json:"world_name"`
	WorldContext string `json:"world_context"`
	Era          string `json:"era"`

	Player PlayerCharacter `json:"player"`

	// Stats, 0-100 each, keyed by stat id. StatDefs fixes scan order.
	Stats    map[string]int   `json:"stats"`
	StatDefs []StatDefinition `json:"stat_defs"`

	Tags    map[string]bool `json:"-"`
	TagDefs []TagDefinition `json:"tag_defs"`

	// Calendar
	Day              int `json:"day"`          // 1-28 within the season
	SeasonIndex      int `json:"season_index"` // 0-3
	Year             int `json:"year"`
	StartDay         int `json:"start_day"`
	StartSeasonIndex int `json:"start_season_index"`
	StartYear        int `json:"start_year"`
	Turn             int `json:"turn"` // actions this week, 0-6

	Seasons []Season `json:"seasons"`

	NPCs          []NPC          `json:"npcs"`
	Relationships []Relationship `json:"relationships"`

	// Plot node that passed its condition check, fires at week end.
	PendingPlotNode string `json:"pending_plot_node,omitempty"`

	// Death and resurrection
	Karma                []string `json:"karma"`
	LifeNumber           int      `json:"life_number"`
	ResurrectionMechanic string   `json:"resurrection_mechanic"`
	ResurrectionFlavor   string   `json:"resurrection_flavor"`
	PreviousLifeTags     []string `json:"previous_life_tags"`
	IsFirstDayAfterDeath bool     `json:"is_first_day_after_death"`

	// Pre-generated structural cards waiting to be shown.
	WelcomeCard       cards.Card            `json:"-"`
	RebornCard        cards.Card            `json:"-"`
	SeasonStartCard   cards.Card            `json:"-"`
	PendingDeathCards map[string]cards.Card `json:"-"`
}

// NewBlackboard returns a blackboard with life 1 and the calendar at its
// start position.
func NewBlackboard() *Blackboard {
	return &Blackboard{
		Stats:             make(map[string]int),
		Tags:              make(map[string]bool),
		Day:               1,
		SeasonIndex:       0,
		Year:              1,
		StartDay:          1,
		StartSeasonIndex:  0,
		StartYear:         1,
		LifeNumber:        1,
		PendingDeathCards: make(map[string]cards.Card),
	}
}

// ── Stats ───────────────────────────────────────────────────────────────

func (b *Blackboard) HasStat(id string) bool {
	_, ok := b.Stats[id]
	return ok
}

func (b *Blackboard) GetStat(id string) int { return b.Stats[id] }

func (b *Blackboard) SetStat(id string, value int) { b.Stats[id] = value }

func (b *Blackboard) GetStats() map[string]int {
	out := make(map[string]int, len(b.Stats))
	for k, v := range b.Stats {
		out[k] = v
	}
	return out
}

// OrderedStatIDs returns stat ids in definition order, the canonical
// iteration order for death checks and displays.
func (b *Blackboard) OrderedStatIDs() []string {
	ids := make([]string, 0, len(b.StatDefs))
	for _, sd := range b.StatDefs {
		ids = append(ids, sd.ID)
	}
	return ids
}

func (b *Blackboard) ResetStats(value int) {
	for id := range b.Stats {
		b.Stats[id] = value
	}
}

// GetStatIcon returns the display icon for a stat, or "?" if unknown.
func (b *Blackboard) GetStatIcon(id string) string {
	for _, sd := range b.StatDefs {
		if sd.ID == id {
			return sd.Icon
		}
	}
	return "?"
}

// GetStatName returns the display name for a stat, or the raw id if unknown.
func (b *Blackboard) GetStatName(id string) string {
	for _, sd := range b.StatDefs {
		if sd.ID == id {
			return sd.Name
		}
	}
	return id
}

// ── Tags ────────────────────────────────────────────────────────────────

func (b *Blackboard) AddTag(tag string) { b.Tags[tag] = true }

func (b *Blackboard) RemoveTag(tag string) { delete(b.Tags, tag) }

func (b *Blackboard) HasTag(tag string) bool { return b.Tags[tag] }

// GetTags returns the current tags sorted for deterministic output.
func (b *Blackboard) GetTags() []string {
	out := make([]string, 0, len(b.Tags))
	for tag := range b.Tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func (b *Blackboard) SetTags(tags []string) {
	b.Tags = make(map[string]bool, len(tags))
	for _, tag := range tags {
		b.Tags[tag] = true
	}
}

// ── NPCs ────────────────────────────────────────────────────────────────

func (b *Blackboard) findNPC(id string) *NPC {
	for i := range b.NPCs {
		if b.NPCs[i].ID == id {
			return &b.NPCs[i]
		}
	}
	return nil
}

func (b *Blackboard) EnableNPC(id string) {
	if npc := b.findNPC(id); npc != nil {
		npc.Enabled = true
	}
}

func (b *Blackboard) DisableNPC(id string) {
	if npc := b.findNPC(id); npc != nil {
		npc.Enabled = false
	}
}

func (b *Blackboard) BumpNPCAppearance(id string) {
	if npc := b.findNPC(id); npc != nil {
		npc.AppearanceCount++
	}
}

func (b *Blackboard) ResetNPCAppearances() {
	for i := range b.NPCs {
		b.NPCs[i].AppearanceCount = 0
	}
}

// EnabledNPCs returns the NPCs currently available for card interactions.
func (b *Blackboard) EnabledNPCs() []NPC {
	var out []NPC
	for _, n := range b.NPCs {
		if n.Enabled {
			out = append(out, n)
		}
	}
	return out
}

// KnownNPCIDs returns the set of valid character ids for card validation.
func (b *Blackboard) KnownNPCIDs() map[string]bool {
	out := make(map[string]bool, len(b.NPCs))
	for _, n := range b.NPCs {
		out[n.ID] = true
	}
	return out
}

// ── Death bookkeeping ───────────────────────────────────────────────────

func (b *Blackboard) CurrentTurn() int { return b.Turn }

func (b *Blackboard) CurrentLife() int { return b.LifeNumber }

func (b *Blackboard) SetPreviousLifeTags(tags []string) {
	b.PreviousLifeTags = append([]string{}, tags...)
}

func (b *Blackboard) AppendKarma(tags []string) { b.Karma = append(b.Karma, tags...) }

func (b *Blackboard) IncrementLife() { b.LifeNumber++ }

// ── Calendar ────────────────────────────────────────────────────────────

// CurrentSeason returns the active season, or nil when none are configured.
func (b *Blackboard) CurrentSeason() *Season {
	if b.SeasonIndex >= 0 && b.SeasonIndex < len(b.Seasons) {
		return &b.Seasons[b.SeasonIndex]
	}
	return nil
}

// WeekInSeason is the 1-based week within the current season.
func (b *Blackboard) WeekInSeason() int {
	return (b.Day-1)/DaysPerWeek + 1
}

// AdvanceDay moves the calendar forward one day and reports which boundaries
// were crossed. Crossing a season boundary rolls the season index and, on
// wrap, the year.
func (b *Blackboard) AdvanceDay() (weekEnd, seasonEnd bool) {
	b.Day++
	b.Turn++

	if b.Turn >= DaysPerWeek {
		weekEnd = true
		b.Turn = 0
	}
	if b.Day > DaysPerSeason {
		seasonEnd = true
		b.Day = 1
		b.SeasonIndex = (b.SeasonIndex + 1) % SeasonsPerYear
		if b.SeasonIndex == 0 {
			b.Year++
		}
	}
	return weekEnd, seasonEnd
}

// AdvanceToNextSeason skips the rest of the current season, landing on day 1
// of the next with the turn counter cleared.
func (b *Blackboard) AdvanceToNextSeason() {
	b.Day = 1
	b.Turn = 0
	b.SeasonIndex = (b.SeasonIndex + 1) % SeasonsPerYear
	if b.SeasonIndex == 0 {
		b.Year++
	}
}

// ElapsedDays is the total days since the game started, across all lives.
func (b *Blackboard) ElapsedDays() int {
	current := b.Year*DaysPerYear + b.SeasonIndex*DaysPerSeason + b.Day
	start := b.StartYear*DaysPerYear + b.StartSeasonIndex*DaysPerSeason + b.StartDay
	return current - start
}

// DateDisplay renders the current date, e.g. "Day 5, Spring, Year 2".
func (b *Blackboard) DateDisplay() string {
	seasonName := fmt.Sprintf("Season %d", b.SeasonIndex+1)
	if season := b.CurrentSeason(); season != nil {
		seasonName = season.Name
	}
	return fmt.Sprintf("Day %d, %s, Year %d", b.Day, seasonName, b.Year)
}

// ElapsedDisplay renders elapsed time compactly, e.g. "1y 2s 3d" or "5d".
func (b *Blackboard) ElapsedDisplay() string {
	elapsed := b.ElapsedDays()
	years := elapsed / DaysPerYear
	rem := elapsed % DaysPerYear
	seasons := rem / DaysPerSeason
	days := rem % DaysPerSeason

	var parts []string
	if years > 0 {
		parts = append(parts, fmt.Sprintf("%dy", years))
	}
	if seasons > 0 {
		parts = append(parts, fmt.Sprintf("%ds", seasons))
	}
	parts = append(parts, fmt.Sprintf("%dd", days))
	return strings.Join(parts, " ")
}

// ── Generation context ──────────────────────────────────────────────────

// Snapshot is the compressed state handed to the generator as context.
// Deliberately minimal; do not add large blobs here.
func (b *Blackboard) Snapshot() map[string]any {
	seasonName := ""
	if season := b.CurrentSeason(); season != nil {
		seasonName = season.Name
	}

	karma := b.Karma
	if len(karma) > 10 {
		karma = karma[:10]
	}

	npcs := make([]map[string]any, 0, len(b.NPCs))
	for _, n := range b.NPCs {
		npcs = append(npcs, map[string]any{
			"id":          n.ID,
			"name":        n.Name,
			"role":        n.Role,
			"enabled":     n.Enabled,
			"appearances": n.AppearanceCount,
		})
	}

	rels := make([]map[string]any, 0, len(b.Relationships))
	for _, r := range b.Relationships {
		rels = append(rels, map[string]any{
			"a": r.A, "b": r.B, "relationship": r.Relationship,
		})
	}

	return map[string]any{
		"world":         b.WorldName,
		"era":           b.Era,
		"day":           b.Day,
		"season":        seasonName,
		"year":          b.Year,
		"elapsed_days":  b.ElapsedDays(),
		"week":          b.WeekInSeason(),
		"life":          b.LifeNumber,
		"stats":         b.GetStats(),
		"tags":          b.GetTags(),
		"karma":         karma,
		"player":        map[string]any{"name": b.Player.Name, "role": b.Player.Role},
		"npcs":          npcs,
		"relationships": rels,
	}
}

// ── Serialization ───────────────────────────────────────────────────────

// blackboardJSON shadows the fields that need special handling: tags become
// a sorted array and the structural card slots carry their discriminators.
type blackboardJSON struct {
	Tags              []string                   `json:"tags"`
	WelcomeCard       json.RawMessage            `json:"welcome_card,omitempty"`
	RebornCard        json.RawMessage            `json:"reborn_card,omitempty"`
	SeasonStartCard   json.RawMessage            `json:"season_start_card,omitempty"`
	PendingDeathCards map[string]json.RawMessage `json:"pending_death_cards,omitempty"`
}

func marshalCardSlot(c cards.Card) (json.RawMessage, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (b *Blackboard) MarshalJSON() ([]byte, error) {
	type alias Blackboard
	shadow := blackboardJSON{Tags: b.GetTags()}

	var err error
	if shadow.WelcomeCard, err = marshalCardSlot(b.WelcomeCard); err != nil {
		return nil, err
	}
	if shadow.RebornCard, err = marshalCardSlot(b.RebornCard); err != nil {
		return nil, err
	}
	if shadow.SeasonStartCard, err = marshalCardSlot(b.SeasonStartCard); err != nil {
		return nil, err
	}
	if len(b.PendingDeathCards) > 0 {
		shadow.PendingDeathCards = make(map[string]json.RawMessage, len(b.PendingDeathCards))
		for key, c := range b.PendingDeathCards {
			raw, err := marshalCardSlot(c)
			if err != nil {
				return nil, err
			}
			shadow.PendingDeathCards[key] = raw
		}
	}

	return json.Marshal(struct {
		*alias
		blackboardJSON
	}{(*alias)(b), shadow})
}

func (b *Blackboard) UnmarshalJSON(data []byte) error {
	type alias Blackboard
	aux := struct {
		*alias
		blackboardJSON
	}{alias: (*alias)(b)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	b.SetTags(aux.blackboardJSON.Tags)
	b.PendingDeathCards = make(map[string]cards.Card)

	unmarshalSlot := func(raw json.RawMessage) cards.Card {
		if len(raw) == 0 {
			return nil
		}
		c, err := cards.UnmarshalCard(raw)
		if err != nil {
			return nil
		}
		return c
	}
	b.WelcomeCard = unmarshalSlot(aux.blackboardJSON.WelcomeCard)
	b.RebornCard = unmarshalSlot(aux.blackboardJSON.RebornCard)
	b.SeasonStartCard = unmarshalSlot(aux.blackboardJSON.SeasonStartCard)
	for key, raw := range aux.blackboardJSON.PendingDeathCards {
		if c := unmarshalSlot(raw); c != nil {
			b.PendingDeathCards[key] = c
		}
	}
	if b.Stats == nil {
		b.Stats = make(map[string]int)
	}
	return nil
}
