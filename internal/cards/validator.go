package cards

import (
	"math/rand"

	"github.com/google/uuid"
)

// maxTreeDepth caps nested tree/next chains so generator output cannot queue
// unbounded card cascades.
const maxTreeDepth = 2

// FunctionCallDef is the raw function call as produced by the generator.
type FunctionCallDef struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params" yaml:"params"`
}

// CardDef is the untrusted card definition produced by the writer (or loaded
// from the bundled demo pool). It covers both card kinds; Type selects which
// fields apply.
type CardDef struct {
	Type        string `json:"type" yaml:"type"` // "choice" or "info"
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Character   string `json:"character" yaml:"character"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`

	LeftText   string            `json:"left_text,omitempty" yaml:"left_text,omitempty"`
	LeftCalls  []FunctionCallDef `json:"left_calls,omitempty" yaml:"left_calls,omitempty"`
	RightText  string            `json:"right_text,omitempty" yaml:"right_text,omitempty"`
	RightCalls []FunctionCallDef `json:"right_calls,omitempty" yaml:"right_calls,omitempty"`
	TreeLeft   []CardDef         `json:"tree_left,omitempty" yaml:"tree_left,omitempty"`
	TreeRight  []CardDef         `json:"tree_right,omitempty" yaml:"tree_right,omitempty"`

	NextCards []CardDef `json:"next_cards,omitempty" yaml:"next_cards,omitempty"`
}

// ValidateCardDef sanitizes one definition into a playable card. Unknown
// characters fall back to the narrator, unknown sources to common, and a
// missing id gets a generated one. Choice sides are randomly swapped so the
// generator cannot bias outcomes toward a fixed swipe direction.
func ValidateCardDef(def CardDef, knownNPCs map[string]bool) Card {
	return validateCardDef(def, knownNPCs, 0)
}

func validateCardDef(def CardDef, knownNPCs map[string]bool, depth int) Card {
	cardID := def.ID
	if cardID == "" {
		cardID = uuid.NewString()[:8]
	}

	character := def.Character
	if character != "narrator" && !knownNPCs[character] {
		character = "narrator"
	}

	source := def.Source
	priority, ok := SourceToPriority[source]
	if !ok {
		source = SourceCommon
		priority = PriorityCommon
	}

	if def.Type == "info" {
		var next CardList
		if depth < maxTreeDepth {
			for _, nc := range def.NextCards {
				next = append(next, validateCardDef(nc, knownNPCs, depth+1))
			}
		}
		return &InfoCard{
			ID:          cardID,
			Title:       def.Title,
			Description: def.Description,
			Character:   character,
			Source:      source,
			Priority:    priority,
			NextCards:   next,
		}
	}

	left := Choice{Text: def.LeftText, Calls: ValidateCalls(def.LeftCalls)}
	right := Choice{Text: def.RightText, Calls: ValidateCalls(def.RightCalls)}

	var treeLeft, treeRight CardList
	if depth < maxTreeDepth {
		for _, nd := range def.TreeLeft {
			treeLeft = append(treeLeft, validateCardDef(nd, knownNPCs, depth+1))
		}
		for _, nd := range def.TreeRight {
			treeRight = append(treeRight, validateCardDef(nd, knownNPCs, depth+1))
		}
	}

	if rand.Intn(2) == 0 {
		left, right = right, left
		treeLeft, treeRight = treeRight, treeLeft
	}

	return &ChoiceCard{
		ID:          cardID,
		Title:       def.Title,
		Description: def.Description,
		Character:   character,
		Source:      source,
		Priority:    priority,
		Left:        left,
		Right:       right,
		TreeLeft:    treeLeft,
		TreeRight:   treeRight,
	}
}

// ValidateCalls coerces raw call definitions, dropping nameless entries and
// filling in empty param maps.
func ValidateCalls(defs []FunctionCallDef) []FunctionCall {
	calls := make([]FunctionCall, 0, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		params := d.Params
		if params == nil {
			params = map[string]any{}
		}
		calls = append(calls, FunctionCall{Name: d.Name, Params: params})
	}
	return calls
}
