// Package cards holds the card data model, the priority deck, the action
// executor that applies function calls to game state, and the validator that
// sanitizes generator output before it reaches the deck.
package cards

import (
	"encoding/json"
	"fmt"
)

// Priority levels. Higher priority is drawn first.
const (
	PriorityFilter = iota // suppressed, never drawn
	PriorityCommon        // normal generated cards
	PriorityEvent         // active-event cards
	PriorityPlot          // plot narrative cards
	PriorityTree          // branching follow-up cards
	PriorityStory         // death / reborn / welcome cards
)

// Card sources. Priority is derived from source one-to-one.
const (
	SourceCommon = "common"
	SourceEvent  = "event"
	SourcePlot   = "plot"
	SourceTree   = "tree"
	SourceStory  = "story"
)

// SourceToPriority maps a card source to its deck priority.
var SourceToPriority = map[string]int{
	SourceCommon: PriorityCommon,
	SourceEvent:  PriorityEvent,
	SourcePlot:   PriorityPlot,
	SourceTree:   PriorityTree,
	SourceStory:  PriorityStory,
}

// Card is the union of the two card kinds, discriminated by a "type" field
// in serialized form.
type Card interface {
	GetID() string
	GetTitle() string
	GetDescription() string
	GetCharacter() string
	GetSource() string
	GetPriority() int
	IsChoiceCard() bool
}

// FunctionCall is one declarative state mutation attached to a choice.
type FunctionCall struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Choice is one swipe option of a ChoiceCard.
type Choice struct {
	Text  string         `json:"text"`
	Calls []FunctionCall `json:"calls"`
}

// ChoiceCard is presented with a left and a right option. Each side may carry
// tree cards that are queued immediately after the card is resolved.
type ChoiceCard struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Character   string   `json:"character"`
	Source      string   `json:"source"`
	Priority    int      `json:"priority"`
	Left        Choice   `json:"left"`
	Right       Choice   `json:"right"`
	TreeLeft    CardList `json:"tree_left,omitempty"`
	TreeRight   CardList `json:"tree_right,omitempty"`
}

func (c *ChoiceCard) GetID() string          { return c.ID }
func (c *ChoiceCard) GetTitle() string       { return c.Title }
func (c *ChoiceCard) GetDescription() string { return c.Description }
func (c *ChoiceCard) GetCharacter() string   { return c.Character }
func (c *ChoiceCard) GetSource() string      { return c.Source }
func (c *ChoiceCard) GetPriority() int       { return c.Priority }
func (c *ChoiceCard) IsChoiceCard() bool     { return true }

// InfoCard is a read-only narrative card. Dismissing it with either swipe
// triggers no function calls. NextCards chains long messages across multiple
// cards shown back to back.
type InfoCard struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Character   string   `json:"character"`
	Source      string   `json:"source"`
	Priority    int      `json:"priority"`
	NextCards   CardList `json:"next_cards,omitempty"`
}

func (c *InfoCard) GetID() string          { return c.ID }
func (c *InfoCard) GetTitle() string       { return c.Title }
func (c *InfoCard) GetDescription() string { return c.Description }
func (c *InfoCard) GetCharacter() string   { return c.Character }
func (c *InfoCard) GetSource() string      { return c.Source }
func (c *InfoCard) GetPriority() int       { return c.Priority }
func (c *InfoCard) IsChoiceCard() bool     { return false }

func (c *ChoiceCard) MarshalJSON() ([]byte, error) {
	type alias ChoiceCard
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{"choice", (*alias)(c)})
}

func (c *InfoCard) MarshalJSON() ([]byte, error) {
	type alias InfoCard
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{"info", (*alias)(c)})
}

// UnmarshalCard decodes a serialized card into its concrete kind using the
// "type" discriminator.
func UnmarshalCard(data []byte) (Card, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case "choice":
		var c ChoiceCard
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return &c, nil
	case "info":
		var c InfoCard
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return &c, nil
	default:
		return nil, fmt.Errorf("unknown card type %q", head.Type)
	}
}

// CardList lets []Card fields round-trip through JSON with the type
// discriminator intact.
type CardList []Card

func (l *CardList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(CardList, 0, len(raw))
	for _, msg := range raw {
		c, err := UnmarshalCard(msg)
		if err != nil {
			return err
		}
		out = append(out, c)
	}
	*l = out
	return nil
}
