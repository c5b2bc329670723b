package game

import (
	_ "embed"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nhkhanh/cardfall/internal/agents"
	"github.com/nhkhanh/cardfall/internal/cards"
)

//go:embed demo_cards.yaml
var demoCardsYAML []byte

var (
	demoPoolOnce sync.Once
	demoPool     []cards.CardDef
)

// demoCardDefs parses the embedded card pool once and returns it. The pool
// is treated as read-only; callers copy before shuffling.
func demoCardDefs() []cards.CardDef {
	demoPoolOnce.Do(func() {
		var doc struct {
			Cards []cards.CardDef `yaml:"cards"`
		}
		if err := yaml.Unmarshal(demoCardsYAML, &doc); err != nil {
			slog.Error("demo card pool is malformed", "error", err)
			return
		}
		demoPool = doc.Cards
	})
	return demoPool
}

// DemoWorld returns the built-in demo world so the game is playable without
// any LLM calls. It exercises every plot mechanic: branching, gated NPCs,
// multiple endings.
func DemoWorld() *agents.WorldGenSchema {
	return &agents.WorldGenSchema{
		WorldName:            "Kingdom of Ardenvale",
		WorldDescription:     "A medieval kingdom on the edge of civil war. The old king is dead, the treasury is thin, and every advisor wants something from the new ruler.",
		Era:                  "Late medieval",
		StartingYear:         1347,
		ResurrectionMechanic: "The crown passes to the next heir of the royal line, who inherits the kingdom's reputation.",
		ResurrectionFlavor:   "The bells toll. A new head wears the crown, but the realm remembers.",
		PlayerCharacter: agents.PlayerCharacterDef{
			EntityDef: agents.EntityDef{
				ID:          "player",
				Name:        "The Ruler",
				Role:        "Monarch of Ardenvale",
				Description: "Newly crowned, untested, and watched by everyone.",
				Traits:      []string{"ambitious", "untested"},
			},
		},
		Stats: []agents.StatDef{
			{ID: "treasury", Name: "Treasury", Description: "The crown's gold reserves.", Icon: "💰"},
			{ID: "military", Name: "Military", Description: "Strength and loyalty of the army.", Icon: "⚔️"},
			{ID: "faith", Name: "Faith", Description: "Standing with the Church.", Icon: "⛪"},
			{ID: "people", Name: "People", Description: "The common folk's approval.", Icon: "👥"},
		},
		NPCs: []agents.NPCDef{
			{EntityDef: agents.EntityDef{ID: "chancellor", Name: "Chancellor Aldric", Role: "Keeper of the treasury", Description: "Shrewd with coin, generous with flattery.", Traits: []string{"cunning", "loyal"}}, Enabled: true},
			{EntityDef: agents.EntityDef{ID: "general", Name: "General Mira", Role: "Commander of the army", Description: "A veteran of the border wars who distrusts diplomacy.", Traits: []string{"blunt", "honorable"}}, Enabled: true},
			{EntityDef: agents.EntityDef{ID: "bishop", Name: "Bishop Corwin", Role: "Voice of the Church", Description: "Pious in public, political in private.", Traits: []string{"devout", "scheming"}}, Enabled: true},
			{EntityDef: agents.EntityDef{ID: "merchant", Name: "Guildmaster Fenn", Role: "Head of the merchant guild", Description: "Everything has a price, including him.", Traits: []string{"greedy", "pragmatic"}}, Enabled: true},
			{EntityDef: agents.EntityDef{ID: "spymaster", Name: "The Whisper", Role: "Master of spies", Description: "No one knows their face. Everyone knows their reach.", Traits: []string{"secretive", "ruthless"}}, Enabled: true},
			{EntityDef: agents.EntityDef{ID: "rebel_leader", Name: "Sera of the Red Masks", Role: "Leader of the rebellion", Description: "Once a farmhand, now the voice of the angry countryside.", Traits: []string{"charismatic", "vengeful"}}, Enabled: false},
			{EntityDef: agents.EntityDef{ID: "dragon_knight", Name: "Ser Kaelen", Role: "Exiled dragon knight", Description: "A legend from the old wars, returned for reasons of his own.", Traits: []string{"proud", "mysterious"}}, Enabled: false},
		},
		Relationships: []agents.RelationshipDef{
			{A: "player", B: "chancellor", Relationship: "trusted advisor"},
			{A: "player", B: "general", Relationship: "wary respect"},
			{A: "chancellor", B: "merchant", Relationship: "old business partners"},
			{A: "bishop", B: "spymaster", Relationship: "mutual suspicion"},
			{A: "general", B: "rebel_leader", Relationship: "former comrades"},
		},
		Tags: []agents.TagDef{
			{ID: "guild_favor", Name: "Guild Favor", Description: "The merchant guild owes you."},
			{ID: "investigated_raids", Name: "Investigated the Raids", Description: "You took the border reports seriously."},
			{ID: "ignored_raids", Name: "Ignored the Raids", Description: "You dismissed the border reports."},
			{ID: "spy_network", Name: "Spy Network", Description: "The Whisper's eyes are yours."},
			{ID: "rebels_suppressed", Name: "Rebels Suppressed", Description: "The Red Masks were driven underground."},
			{ID: "rebels_empowered", Name: "Rebels Empowered", Description: "The Red Masks grow bolder."},
			{ID: "conspiracy_known", Name: "Conspiracy Uncovered", Description: "You know who is pulling the strings."},
			{ID: "war_declared", Name: "At War", Description: "Ardenvale is at open war."},
			{ID: "traitor_confronted", Name: "Traitor Confronted", Description: "The conspiracy's head was dragged into the light."},
			{ID: "civil_war", Name: "Civil War", Description: "The realm is tearing itself apart."},
			{ID: "merciful_ruler", Name: "Merciful", Description: "You are known for clemency."},
			{ID: "iron_fist", Name: "Iron Fist", Description: "You are known for cruelty."},
		},
		PlotNodes: []agents.PlotNodeDef{
			{
				ID:              "border_raids",
				PlotDescription: "Raiders strike villages along the northern border. Survivors claim the raiders carried kingdom-forged steel.",
				Condition:       "elapsed_days >= 3",
			},
			{
				ID:              "discover_conspiracy",
				PlotDescription: "The investigation bears fruit: a noble house has been arming the raiders to destabilize the crown.",
				Condition:       "'investigated_raids' in tags and stats['military'] > 30",
				Calls:           []cards.FunctionCallDef{{Name: "add_tag", Params: map[string]any{"tag_id": "conspiracy_known"}}},
				NextNodes:       []string{"confront_traitor"},
			},
			{
				ID:              "border_war",
				PlotDescription: "Unchecked, the raids escalate into open war on the northern frontier.",
				Condition:       "'ignored_raids' in tags",
				Calls: []cards.FunctionCallDef{
					{Name: "add_tag", Params: map[string]any{"tag_id": "war_declared"}},
					{Name: "enable_npc", Params: map[string]any{"npc_id": "dragon_knight"}},
				},
				NextNodes: []string{"civil_war_node"},
			},
			{
				ID:              "confront_traitor",
				PlotDescription: "With proof in hand, you can drag the traitor before the court.",
				Condition:       "'conspiracy_known' in tags",
				Calls:           []cards.FunctionCallDef{{Name: "add_tag", Params: map[string]any{"tag_id": "traitor_confronted"}}},
				NextNodes:       []string{"ending_justice", "ending_mercy"},
			},
			{
				ID:              "civil_war_node",
				PlotDescription: "The war bleeds the countryside dry. Sera of the Red Masks raises the banners of rebellion.",
				Condition:       "'war_declared' in tags and stats['people'] < 40",
				Calls: []cards.FunctionCallDef{
					{Name: "add_tag", Params: map[string]any{"tag_id": "civil_war"}},
					{Name: "enable_npc", Params: map[string]any{"npc_id": "rebel_leader"}},
				},
				NextNodes: []string{"ending_conquest"},
			},
			{
				ID:              "ending_justice",
				PlotDescription: "The traitor faces the headsman. Order is restored through law.",
				Condition:       "'traitor_confronted' in tags and stats['faith'] > 40",
				IsEnding:        true,
				EndingText:      "The execution is public and lawful. The realm learns that in Ardenvale, justice reaches even the highest towers. Your reign is remembered as the rule of law restored.",
			},
			{
				ID:              "ending_mercy",
				PlotDescription: "The traitor is exiled, not executed. Mercy wins you the people's hearts.",
				Condition:       "'traitor_confronted' in tags and stats['people'] > 60",
				IsEnding:        true,
				EndingText:      "You spare the traitor's life and strip their titles. Songs are sung of the merciful ruler who ended a conspiracy without a drop of noble blood. Your reign is remembered with warmth.",
			},
			{
				ID:              "ending_conquest",
				PlotDescription: "The rebellion is crushed under iron and fire.",
				Condition:       "'civil_war' in tags and stats['military'] > 70",
				IsEnding:        true,
				EndingText:      "The Red Masks are broken at the gates of the capital. Ardenvale stands, but its fields are ash. Your reign is remembered in fear, and in the quiet that follows fear.",
			},
		},
		Seasons: []agents.SeasonDef{
			{
				Name: "Spring", Description: "Planting season. The realm is hopeful and hungry.", Icon: "🌱",
				OnSeasonEndCalls: []cards.FunctionCallDef{{Name: "update_stat", Params: map[string]any{"people": 3}}},
			},
			{
				Name: "Summer", Description: "Campaign season. Armies march and coffers drain.", Icon: "☀️",
				OnWeekEndCalls: []cards.FunctionCallDef{{Name: "update_stat", Params: map[string]any{"treasury": -2}}},
			},
			{
				Name: "Autumn", Description: "Harvest season. The granaries fill, or they don't.", Icon: "🍂",
				OnSeasonEndCalls: []cards.FunctionCallDef{{Name: "update_stat", Params: map[string]any{"treasury": 5}}},
			},
			{
				Name: "Winter", Description: "The lean months. Cold tests every loyalty.", Icon: "❄️",
				OnWeekEndCalls: []cards.FunctionCallDef{{Name: "update_stat", Params: map[string]any{"people": -2}}},
			},
		},
	}
}

// PrepareDemoWeek fills the week without calling the writer: structural
// cards come from templates, plot jobs become cards directly, and the deck
// is topped up from the embedded pool. Mirrors the order of a real writer
// batch so the rest of the engine cannot tell the difference.
func (e *Engine) PrepareDemoWeek() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Day == 1 {
		e.stockDemoDeathCards()

		if e.state.ElapsedDays() <= 1 && e.state.LifeNumber == 1 {
			e.immediate = append(e.immediate, demoWelcomeCard(e.state))
		} else if e.state.IsFirstDayAfterDeath {
			e.immediate = append(e.immediate, demoRebornCard(e.state))
			e.state.IsFirstDayAfterDeath = false
		}
		if card := demoSeasonCard(e.state); card != nil {
			e.immediate = append(e.immediate, card)
		}
	}

	for _, job := range e.jobs.Drain() {
		if job.JobType != "plot" {
			continue
		}
		e.deck.Insert(demoPlotCard(job))
	}

	pool := demoCardDefs()
	shuffled := make([]cards.CardDef, len(pool))
	copy(shuffled, pool)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if size := e.deck.Capacity(); len(shuffled) > size {
		shuffled = shuffled[:size]
	}
	e.addCardsFromDefs(shuffled)
}

// stockDemoDeathCards fills the pending death pool with a card for every
// stat boundary. Caller holds the lock.
func (e *Engine) stockDemoDeathCards() {
	for _, def := range e.state.StatDefs {
		minDesc := fmt.Sprintf("Your %s has run out entirely. The kingdom cannot survive a ruler with nothing left of it.", strings.ToLower(def.Name))
		maxDesc := fmt.Sprintf("Your %s has grown beyond all restraint, and it consumes everything else.", strings.ToLower(def.Name))
		e.state.PendingDeathCards["death_"+def.ID+"_min"] = &cards.InfoCard{
			ID:          "death_" + def.ID + "_min",
			Title:       "☠ Death",
			Description: minDesc,
			Character:   "narrator",
			Source:      cards.SourceStory,
			Priority:    cards.PriorityStory,
		}
		e.state.PendingDeathCards["death_"+def.ID+"_max"] = &cards.InfoCard{
			ID:          "death_" + def.ID + "_max",
			Title:       "☠ Death",
			Description: maxDesc,
			Character:   "narrator",
			Source:      cards.SourceStory,
			Priority:    cards.PriorityStory,
		}
	}
}

func demoWelcomeCard(b *Blackboard) cards.Card {
	return &cards.InfoCard{
		ID:          welcomeCardID,
		Title:       "👑 " + b.WorldName,
		Description: fmt.Sprintf("%s You are %s, %s. The court awaits your first decision.", b.WorldContext, b.Player.Name, b.Player.Role),
		Character:   "narrator",
		Source:      cards.SourceStory,
		Priority:    cards.PriorityStory,
	}
}

func demoRebornCard(b *Blackboard) cards.Card {
	return &cards.InfoCard{
		ID:          rebornCardPrefix + uuid.NewString()[:8],
		Title:       "🔄 A New Reign Begins",
		Description: fmt.Sprintf("%s This is life number %d. The realm remembers what came before.", b.ResurrectionFlavor, b.LifeNumber),
		Character:   "narrator",
		Source:      cards.SourceStory,
		Priority:    cards.PriorityStory,
	}
}

func demoSeasonCard(b *Blackboard) cards.Card {
	season := b.CurrentSeason()
	if season == nil {
		return nil
	}
	return &cards.InfoCard{
		ID:          seasonCardPrefix + strings.ToLower(season.Name),
		Title:       fmt.Sprintf("%s %s Begins", season.Icon, season.Name),
		Description: season.Description,
		Character:   "narrator",
		Source:      cards.SourceStory,
		Priority:    cards.PriorityStory,
	}
}

// demoPlotCard renders a fired plot node as a card without the writer. Both
// choices acknowledge the beat; the node's calls already ran when it fired.
func demoPlotCard(job *CardGenJob) cards.Card {
	desc, _ := job.Context["plot_description"].(string)
	if ending, _ := job.Context["is_ending"].(bool); ending {
		if text, _ := job.Context["ending_text"].(string); text != "" {
			desc = desc + "\n\n" + text
		}
	}
	return &cards.ChoiceCard{
		ID:          "plot_" + uuid.NewString()[:8],
		Title:       "📜 The Story Turns",
		Description: desc,
		Character:   "narrator",
		Source:      cards.SourcePlot,
		Priority:    cards.PriorityPlot,
		Left:        cards.Choice{Text: "Face it"},
		Right:       cards.Choice{Text: "So be it"},
	}
}
