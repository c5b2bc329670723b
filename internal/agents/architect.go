package agents

import (
	"context"
	"encoding/json"
	"fmt"
)

const architectSystemPrompt = `You are The Architect, a world-builder for a card-based survival game.

Generate a COMPLETE world as a single JSON object with this exact shape:

{
  "world_name": "...",
  "world_description": "...",
  "era": "...",
  "starting_year": 1200,
  "resurrection_mechanic": "...",
  "resurrection_flavor": "...",
  "player_character": {"id": "player", "name": "...", "role": "...", "description": "...", "traits": ["..."]},
  "stats": [{"id": "snake_case", "name": "...", "description": "...", "icon": "emoji"}],
  "npcs": [{"id": "snake_case", "name": "...", "role": "...", "description": "...", "traits": ["..."], "enabled": true}],
  "relationships": [{"a": "player", "b": "npc_id", "relationship": "..."}],
  "tags": [{"id": "snake_case", "name": "...", "description": "..."}],
  "plot_nodes": [{"id": "snake_case", "plot_description": "...", "condition": "...", "calls": [], "next_nodes": [], "is_ending": false, "ending_text": ""}],
  "seasons": [{"name": "...", "description": "...", "icon": "emoji", "on_season_end_calls": [], "on_week_end_calls": []}]
}

RULES:
- All ids, tags, conditions and function params in ENGLISH snake_case. Display text in the target language.
- Stats range 0-100 and start at 50. Reaching 0 or 100 on any stat kills the player, so every stat needs both a depletion and an overload failure mode.
- Conditions are boolean expressions over stats['id'], 'tag' in tags, season, day, year and elapsed_days. Keep them simple.
- 1-2 disabled NPCs that plot nodes unlock via enable_npc.
- 8-15 plot_nodes forming a DAG via next_nodes, with 2-4 is_ending leaves whose ending_text wraps up the story.
- Exactly 4 seasons.
- Output ONLY the JSON object.`

// ArchitectAgent generates world schemas from a theme prompt.
type ArchitectAgent struct {
	client *OpenRouterClient
}

func NewArchitectAgent(client *OpenRouterClient) *ArchitectAgent {
	return &ArchitectAgent{client: client}
}

// GenerateWorld asks the model for a world schema. statCount bounds how many
// stats the world carries.
func (a *ArchitectAgent) GenerateWorld(ctx context.Context, theme string, statCount int) (*WorldGenSchema, error) {
	if theme == "" {
		theme = "Surprise me with something creative and unique"
	}
	if statCount < 2 {
		statCount = 4
	}
	userPrompt := fmt.Sprintf("Theme: %s\n\nGenerate the world with exactly %d stats. Respond in English.", theme, statCount)

	text, err := a.client.Complete(ctx, architectSystemPrompt, userPrompt, 8192)
	if err != nil {
		return nil, fmt.Errorf("architect call: %w", err)
	}

	var schema WorldGenSchema
	if err := json.Unmarshal([]byte(extractJSON(text)), &schema); err != nil {
		return nil, fmt.Errorf("parse world schema: %w", err)
	}
	if schema.WorldName == "" || len(schema.Stats) == 0 || len(schema.PlotNodes) == 0 {
		return nil, fmt.Errorf("architect produced an incomplete world")
	}
	return &schema, nil
}
