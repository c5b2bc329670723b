package agents

import (
	"context"
	"encoding/json"
	"fmt"
)

const writerSystemPrompt = `You are The Writer, a real-time card generator for a card-based survival game.

You generate cards in BATCHES as a single JSON object:

{"cards": [
  {"type": "choice", "id": "snake_case", "title": "...", "description": "...", "character": "npc_id",
   "left_text": "...", "left_calls": [{"name": "update_stat", "params": {"stat_id": "...", "delta": -5}}],
   "right_text": "...", "right_calls": [...]},
  {"type": "info", "id": "...", "title": "...", "description": "...", "character": "narrator"}
]}

A batch contains common cards plus one card per job in the request:
- "plot" jobs become a dramatic card for the given plot beat
- "event_start" and "event_phase" jobs narrate the named event
- structural info cards use the exact ids the request specifies
  (welcome_message, reborn_*, season_*, death_<stat>_<min|max>)

CARD RULES:
1. React to the current stats, tags and ongoing events.
2. Both choices must have real tradeoffs; no obviously correct side.
3. Only feature characters from the enabled NPC list; otherwise use "narrator".
4. Descriptions are 1-3 punchy sentences.
5. Effects are function calls (update_stat, add_tag, add_event, enable_npc, ...), never raw stat dicts.
6. Only use tag ids from available_tags, and sparingly.
7. Output ONLY the JSON object.`

// WriterAgent generates card batches against a running game's context.
type WriterAgent struct {
	client *OpenRouterClient
}

func NewWriterAgent(client *OpenRouterClient) *WriterAgent {
	return &WriterAgent{client: client}
}

// GenerateBatch sends the generation context and parses the returned cards.
// batchContext is the engine's generation context; it is serialized verbatim
// so the writer sees exactly what the engine sees.
func (w *WriterAgent) GenerateBatch(ctx context.Context, batchContext any) (*WriterBatchOutput, error) {
	ctxJSON, err := json.MarshalIndent(batchContext, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal batch context: %w", err)
	}
	userPrompt := fmt.Sprintf("Current game context:\n\n%s\n\nGenerate the batch. Respond in English.", ctxJSON)

	text, err := w.client.Complete(ctx, writerSystemPrompt, userPrompt, 8192)
	if err != nil {
		return nil, fmt.Errorf("writer call: %w", err)
	}

	var out WriterBatchOutput
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err != nil {
		return nil, fmt.Errorf("parse card batch: %w", err)
	}
	if len(out.Cards) == 0 {
		return nil, fmt.Errorf("writer produced no cards")
	}
	return &out, nil
}
