// Package agents wraps the LLM side of the game: the architect that builds a
// world schema and the writer that generates card batches against it.
package agents

import "github.com/nhkhanh/cardfall/internal/cards"

// StatDef describes one stat of the generated world.
type StatDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// EntityDef is the shared shape of player and NPC definitions.
type EntityDef struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Description string   `json:"description"`
	Traits      []string `json:"traits,omitempty"`
}

// PlayerCharacterDef is the player's identity, generated at world creation.
type PlayerCharacterDef struct {
	EntityDef
}

// NPCDef is one NPC. Disabled NPCs exist in context but cannot appear on
// cards until a plot node or function call enables them.
type NPCDef struct {
	EntityDef
	Enabled bool `json:"enabled"`
}

// RelationshipDef links two entities; "player" refers to the player character.
type RelationshipDef struct {
	A            string `json:"a"`
	B            string `json:"b"`
	Relationship string `json:"relationship"`
}

// TagDef is one tag the writer may grant.
type TagDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SeasonDef is one of the four seasons with its lifecycle hooks.
type SeasonDef struct {
	Name             string                  `json:"name"`
	Description      string                  `json:"description"`
	Icon             string                  `json:"icon"`
	OnSeasonEndCalls []cards.FunctionCallDef `json:"on_season_end_calls,omitempty"`
	OnWeekEndCalls   []cards.FunctionCallDef `json:"on_week_end_calls,omitempty"`
}

// PlotNodeDef is a description-only plot beat. The writer generates the
// actual card when the node fires.
type PlotNodeDef struct {
	ID              string                  `json:"id"`
	PlotDescription string                  `json:"plot_description"`
	Condition       string                  `json:"condition"`
	Calls           []cards.FunctionCallDef `json:"calls,omitempty"`
	NextNodes       []string                `json:"next_nodes,omitempty"`
	IsEnding        bool                    `json:"is_ending"`
	EndingText      string                  `json:"ending_text,omitempty"`
}

// WorldGenSchema is the architect's complete world generation output.
type WorldGenSchema struct {
	WorldName            string             `json:"world_name"`
	WorldDescription     string             `json:"world_description"`
	Era                  string             `json:"era"`
	StartingYear         int                `json:"starting_year"`
	ResurrectionMechanic string             `json:"resurrection_mechanic"`
	ResurrectionFlavor   string             `json:"resurrection_flavor"`
	PlayerCharacter      PlayerCharacterDef `json:"player_character"`
	Stats                []StatDef          `json:"stats"`
	NPCs                 []NPCDef           `json:"npcs"`
	Relationships        []RelationshipDef  `json:"relationships,omitempty"`
	Tags                 []TagDef           `json:"tags"`
	PlotNodes            []PlotNodeDef      `json:"plot_nodes"`
	Seasons              []SeasonDef        `json:"seasons"`
}

// WriterBatchOutput is the writer's unified output for any batch call:
// common cards plus job cards in a single list.
type WriterBatchOutput struct {
	Cards []cards.CardDef `json:"cards"`
}
