package cards

import (
	"fmt"
	"sort"
)

// WeightedDeque stores cards sorted ascending by priority so the
// highest-priority card is always drawn from the tail. Insertion is O(n) via
// binary search; equal priorities keep first-in first-out draw order.
//
// When the deck exceeds capacity the oldest common card is evicted. Cards
// from other sources (plot, event, tree, story) are never evicted.
type WeightedDeque struct {
	cards    []Card
	capacity int
	consumed int
}

func NewWeightedDeque(capacity int) *WeightedDeque {
	return &WeightedDeque{
		cards:    make([]Card, 0, capacity),
		capacity: capacity,
	}
}

// Draw removes and returns the highest-priority card, or nil when empty.
// Every draw advances the consumption counter that drives NeedsGeneration.
func (d *WeightedDeque) Draw() Card {
	if len(d.cards) == 0 {
		return nil
	}
	card := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	d.consumed++
	return card
}

// Insert places a single card in priority order and evicts if over capacity.
func (d *WeightedDeque) Insert(card Card) {
	d.insert(card)
	d.evictIfNeeded()
}

// BulkInsert places multiple cards in priority order, then runs a single
// eviction pass. Returns the number of cards inserted before eviction.
func (d *WeightedDeque) BulkInsert(cards []Card) int {
	for _, c := range cards {
		d.insert(c)
	}
	d.evictIfNeeded()
	return len(cards)
}

// insert finds the leftmost slot whose priority is >= the card's, so a new
// card sits behind existing cards of the same priority in draw order.
func (d *WeightedDeque) insert(card Card) {
	idx := sort.Search(len(d.cards), func(i int) bool {
		return d.cards[i].GetPriority() >= card.GetPriority()
	})
	d.cards = append(d.cards, nil)
	copy(d.cards[idx+1:], d.cards[idx:])
	d.cards[idx] = card
}

func (d *WeightedDeque) evictIfNeeded() {
	for len(d.cards) > d.capacity {
		evicted := false
		for i, c := range d.cards {
			if c.GetSource() == SourceCommon {
				d.cards = append(d.cards[:i], d.cards[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// Clear empties the deck and resets the consumption counter.
func (d *WeightedDeque) Clear() {
	d.cards = d.cards[:0]
	d.consumed = 0
}

func (d *WeightedDeque) Count() int { return len(d.cards) }

func (d *WeightedDeque) Capacity() int { return d.capacity }

func (d *WeightedDeque) IsEmpty() bool { return len(d.cards) == 0 }

// NeedsGeneration reports whether enough cards have been consumed since the
// last refill to warrant generating a new batch.
func (d *WeightedDeque) NeedsGeneration() bool {
	threshold := d.capacity / 2
	if threshold < 1 {
		threshold = 1
	}
	return d.consumed >= threshold
}

func (d *WeightedDeque) ResetConsumption() { d.consumed = 0 }

func (d *WeightedDeque) Consumed() int { return d.consumed }

// Status renders the fill level as "n/capacity".
func (d *WeightedDeque) Status() string {
	return fmt.Sprintf("%d/%d", len(d.cards), d.capacity)
}

// PeekAll returns a copy of the deck, highest priority first.
func (d *WeightedDeque) PeekAll() []Card {
	out := make([]Card, len(d.cards))
	for i, c := range d.cards {
		out[len(d.cards)-1-i] = c
	}
	return out
}
