package game

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nhkhanh/cardfall/internal/agents"
	"github.com/nhkhanh/cardfall/internal/cards"
	"github.com/nhkhanh/cardfall/internal/cond"
	"github.com/nhkhanh/cardfall/internal/death"
	"github.com/nhkhanh/cardfall/internal/events"
	"github.com/nhkhanh/cardfall/internal/story"
)

// WeekDeckSize is how many cards fill one week's deck, one per action.
const WeekDeckSize = DaysPerWeek

// Structural card id markers used to route writer output.
const (
	welcomeCardID    = "welcome_message"
	rebornCardPrefix = "reborn_"
	seasonCardPrefix = "season_"
	deathCardPrefix  = "death_"
)

// Engine is the central coordinator for one play session. It owns the
// blackboard, the week deck, the immediate queue for structural cards, the
// plot DAG, the death loop, the event registry and the writer job queue.
// All public methods are safe for concurrent use.
type Engine struct {
	mu sync.RWMutex

	state     *Blackboard
	deck      *cards.WeightedDeque
	immediate []cards.Card
	dag       *story.MacroDAG
	deathLoop *death.DeathLoop
	jobs      *JobQueue
	events    *events.Registry
	eval      *cond.Evaluator

	lastDrawn            cards.Card
	isGenerating         bool
	awaitingResurrection bool
}

func NewEngine() *Engine {
	return NewEngineWithDeckSize(WeekDeckSize)
}

// NewEngineWithDeckSize builds an engine with a custom week deck capacity.
func NewEngineWithDeckSize(deckSize int) *Engine {
	if deckSize < 1 {
		deckSize = WeekDeckSize
	}
	return &Engine{
		state:     NewBlackboard(),
		deck:      cards.NewWeightedDeque(deckSize),
		dag:       story.NewMacroDAG(),
		deathLoop: death.NewDeathLoop(),
		jobs:      NewJobQueue(),
		events:    events.NewRegistry(),
		eval:      cond.NewEvaluator(),
	}
}

// ── World building ──────────────────────────────────────────────────────

// BuildFromSchema initialises the engine from a generated world schema.
// statCount limits how many stats are taken from the schema. A schema with
// no stats or no plot nodes cannot produce a playable world and is rejected.
func (e *Engine) BuildFromSchema(world *agents.WorldGenSchema, statCount int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(world.Stats) == 0 {
		return fmt.Errorf("world schema has no stats")
	}
	if len(world.PlotNodes) == 0 {
		return fmt.Errorf("world schema has no plot nodes")
	}
	if statCount <= 0 || statCount > len(world.Stats) {
		statCount = len(world.Stats)
	}

	b := NewBlackboard()
	b.WorldName = world.WorldName
	b.WorldContext = world.WorldDescription
	b.Era = world.Era
	b.Year = world.StartingYear
	b.StartYear = world.StartingYear
	b.ResurrectionMechanic = world.ResurrectionMechanic
	b.ResurrectionFlavor = world.ResurrectionFlavor
	b.Player = PlayerCharacter{
		ID:          "player",
		Name:        world.PlayerCharacter.Name,
		Role:        world.PlayerCharacter.Role,
		Description: world.PlayerCharacter.Description,
		Traits:      world.PlayerCharacter.Traits,
	}

	for _, s := range world.Stats[:statCount] {
		b.StatDefs = append(b.StatDefs, StatDefinition(s))
		b.Stats[s.ID] = 50
	}
	for _, t := range world.Tags {
		b.TagDefs = append(b.TagDefs, TagDefinition(t))
	}
	for _, s := range world.Seasons {
		b.Seasons = append(b.Seasons, Season{
			Name:             s.Name,
			Description:      s.Description,
			Icon:             s.Icon,
			OnSeasonEndCalls: cards.ValidateCalls(s.OnSeasonEndCalls),
			OnWeekEndCalls:   cards.ValidateCalls(s.OnWeekEndCalls),
		})
	}
	for _, n := range world.NPCs {
		b.NPCs = append(b.NPCs, NPC{
			ID:          n.ID,
			Name:        n.Name,
			Role:        n.Role,
			Description: n.Description,
			Traits:      n.Traits,
			Enabled:     n.Enabled,
		})
	}
	for _, r := range world.Relationships {
		b.Relationships = append(b.Relationships, Relationship(r))
	}
	e.state = b

	return e.buildDAG(world.PlotNodes)
}

// buildDAG constructs the plot graph: nodes first, then edges, so forward
// references in next_nodes always resolve. Reachability warnings are logged
// but do not fail the build. Caller holds the lock.
func (e *Engine) buildDAG(defs []agents.PlotNodeDef) error {
	dag := story.NewMacroDAG()
	for _, pd := range defs {
		node := &story.PlotNode{
			ID:              pd.ID,
			PlotDescription: pd.PlotDescription,
			Condition:       pd.Condition,
			Calls:           cards.ValidateCalls(pd.Calls),
			IsEnding:        pd.IsEnding,
			EndingText:      pd.EndingText,
		}
		if err := dag.AddNode(node); err != nil {
			return err
		}
	}
	for _, pd := range defs {
		for _, next := range pd.NextNodes {
			dag.AddEdge(pd.ID, next)
		}
	}
	for _, warning := range dag.ValidateReachability() {
		slog.Warn("plot graph issue", "warning", warning)
	}
	e.dag = dag
	return nil
}

// ── Card drawing ────────────────────────────────────────────────────────

// DrawCard returns the next card to show. The immediate queue takes priority
// so structural cards (welcome, reborn, season, death) always appear before
// deck cards. Returns nil when both are empty.
func (e *Engine) DrawCard() cards.Card {
	e.mu.Lock()
	defer e.mu.Unlock()

	var card cards.Card
	if len(e.immediate) > 0 {
		card = e.immediate[0]
		e.immediate = e.immediate[1:]
	} else {
		card = e.deck.Draw()
	}
	e.lastDrawn = card
	return card
}

// LastDrawn returns the most recently drawn, unresolved card.
func (e *Engine) LastDrawn() cards.Card {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastDrawn
}

// ── Card resolution ─────────────────────────────────────────────────────

// ResolveCard applies a card's action, advances the calendar and fires
// lifecycle hooks. Tree cards go into the deck at tree priority so they are
// drawn right after the current card, and the day does not advance until the
// branch is exhausted. Info card dismissals never consume a day.
func (e *Engine) ResolveCard(card cards.Card, direction string) cards.ExecuteResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastDrawn != nil && e.lastDrawn.GetID() == card.GetID() {
		e.lastDrawn = nil
	}

	executor := cards.NewActionExecutor(e.state, e.events)
	result := executor.ResolveCard(card, direction)

	if len(result.TreeCards) > 0 {
		for _, tc := range result.TreeCards {
			promoteToTree(tc)
			e.deck.Insert(tc)
		}
		return result
	}

	if result.IsInfo {
		return result
	}

	weekEnd, seasonEnd := e.state.AdvanceDay()

	for _, ev := range e.events.All() {
		if calls := callsFromMaps(ev.GetOnDayEndCalls()); len(calls) > 0 {
			executor.Execute(calls)
		}
	}

	e.checkPlotConditions()

	if weekEnd {
		e.onWeekEnd()
	}
	if seasonEnd {
		e.onSeasonEnd()
	}
	return result
}

// ResolveByID resolves the last drawn card, guarding against stale or forged
// ids from the transport layer.
func (e *Engine) ResolveByID(cardID, direction string) (cards.ExecuteResult, error) {
	e.mu.RLock()
	last := e.lastDrawn
	e.mu.RUnlock()

	if last == nil || last.GetID() != cardID {
		return cards.ExecuteResult{}, fmt.Errorf("card %s is not the active card", cardID)
	}
	return e.ResolveCard(last, direction), nil
}

// promoteToTree forces a card into the tree priority band.
func promoteToTree(c cards.Card) {
	switch card := c.(type) {
	case *cards.ChoiceCard:
		card.Source = cards.SourceTree
		card.Priority = cards.PriorityTree
	case *cards.InfoCard:
		card.Source = cards.SourceTree
		card.Priority = cards.PriorityTree
	}
}

// callsFromMaps converts loosely typed event hook calls into executor calls.
func callsFromMaps(raw []map[string]any) []cards.FunctionCall {
	calls := make([]cards.FunctionCall, 0, len(raw))
	for _, m := range raw {
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		params, _ := m["params"].(map[string]any)
		if params == nil {
			params = map[string]any{}
		}
		calls = append(calls, cards.FunctionCall{Name: name, Params: params})
	}
	return calls
}

// ── Week and season lifecycle ───────────────────────────────────────────

// IsWeekOver reports whether all of the week's cards have been consumed.
func (e *Engine) IsWeekOver() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deck.IsEmpty() && len(e.immediate) == 0
}

// onWeekEnd runs the season's week hooks, fires the pending plot node and
// sweeps finished events. Caller holds the lock.
func (e *Engine) onWeekEnd() {
	if season := e.state.CurrentSeason(); season != nil && len(season.OnWeekEndCalls) > 0 {
		cards.NewActionExecutor(e.state, e.events).Execute(season.OnWeekEndCalls)
	}
	e.firePendingPlot()
	e.sweepEvents()
}

// onSeasonEnd runs the hooks of the season that just ended. AdvanceDay has
// already rolled the index forward, so look one season back.
func (e *Engine) onSeasonEnd() {
	if len(e.state.Seasons) == 0 {
		return
	}
	prevIdx := (e.state.SeasonIndex - 1 + len(e.state.Seasons)) % len(e.state.Seasons)
	prev := e.state.Seasons[prevIdx]
	if len(prev.OnSeasonEndCalls) > 0 {
		cards.NewActionExecutor(e.state, e.events).Execute(prev.OnSeasonEndCalls)
	}
}

// ── Death ───────────────────────────────────────────────────────────────

// CheckDeath reports whether any stat has hit a boundary. Call after
// ResolveCard so stat changes are applied.
func (e *Engine) CheckDeath() *death.DeathInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deathLoop.CheckDeath(e.state)
}

// HandleDeath queues the death card and flags the session as awaiting
// resurrection. The card comes from the pre-generated pool when the writer
// produced one for this boundary; otherwise a plain fallback is built.
// Resurrection completes only after the player dismisses the card.
func (e *Engine) HandleDeath(info *death.DeathInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()

	boundary := "min"
	if info.CauseValue >= 100 {
		boundary = "max"
	}
	key := fmt.Sprintf("death_%s_%s", info.CauseStat, boundary)

	card, ok := e.state.PendingDeathCards[key]
	if ok {
		delete(e.state.PendingDeathCards, key)
	} else {
		statName := e.state.GetStatName(info.CauseStat)
		desc := fmt.Sprintf("Your %s has fallen to nothing. The world fades to black...", statName)
		if boundary == "max" {
			desc = fmt.Sprintf("Your %s has spiraled beyond control. Everything collapses...", statName)
		}
		card = &cards.InfoCard{
			ID:          "death_" + uuid.NewString()[:8],
			Title:       "☠ Death",
			Description: desc,
			Character:   "narrator",
			Source:      cards.SourceStory,
			Priority:    cards.PriorityStory,
		}
	}

	e.immediate = append(e.immediate, card)
	e.awaitingResurrection = true
}

// AwaitingResurrection reports whether a death card is pending dismissal.
func (e *Engine) AwaitingResurrection() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.awaitingResurrection
}

// CompleteResurrection finalises a new life after the death card is
// dismissed: karma carries over, transient state resets and the calendar
// skips to day 1 of the next season.
func (e *Engine) CompleteResurrection() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.awaitingResurrection = false
	karma := e.resurrect()
	e.state.AdvanceToNextSeason()
	e.state.IsFirstDayAfterDeath = true
	return karma
}

// resurrect resets per-life state while preserving karma and fired endings.
// Caller holds the lock.
func (e *Engine) resurrect() []string {
	karma := e.deathLoop.Resurrect(e.state)
	e.events.Clear()
	e.deck.Clear()
	e.immediate = nil
	e.state.PendingDeathCards = make(map[string]cards.Card)
	e.dag.PartialReset(nil)
	return karma
}

// ── Plot ────────────────────────────────────────────────────────────────

// conditionContext is the evaluation context for plot conditions and event
// end conditions. Caller holds the lock.
func (e *Engine) conditionContext() map[string]any {
	return map[string]any{
		"stats":        e.state.GetStats(),
		"tags":         e.state.GetTags(),
		"events":       e.events.ActiveIDs(),
		"season":       e.state.SeasonIndex,
		"day":          e.state.Day,
		"year":         e.state.Year,
		"elapsed_days": e.state.ElapsedDays(),
	}
}

// checkPlotConditions records the first activatable node after each action.
// Firing is deferred to week end so the plot card opens the next week.
// Caller holds the lock.
func (e *Engine) checkPlotConditions() {
	nodes := e.dag.GetActivatableNodes(e.conditionContext())
	if len(nodes) > 0 {
		e.state.PendingPlotNode = nodes[0].ID
	}
}

// firePendingPlot fires the stored plot node, runs its calls and enqueues a
// writer job for its narrative card. Caller holds the lock.
func (e *Engine) firePendingPlot() {
	nodeID := e.state.PendingPlotNode
	if nodeID == "" {
		return
	}
	e.state.PendingPlotNode = ""

	node := e.dag.FireNode(nodeID)
	if node == nil {
		return
	}

	if len(node.Calls) > 0 {
		cards.NewActionExecutor(e.state, e.events).Execute(node.Calls)
	}

	e.jobs.Enqueue(&CardGenJob{
		JobType: "plot",
		Context: map[string]any{
			"node_id":          node.ID,
			"plot_description": node.PlotDescription,
			"is_ending":        node.IsEnding,
			"ending_text":      node.EndingText,
		},
	})
}

// CheckEnding returns a fired ending node if one exists, else nil.
func (e *Engine) CheckEnding() *story.PlotNode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dag.CheckEnding()
}

// VisualGraph exports the full plot graph for the UI.
func (e *Engine) VisualGraph() story.VisualGraph {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dag.GetVisualGraph()
}

// ── Events ──────────────────────────────────────────────────────────────

// sweepEvents removes finished events. Caller holds the lock.
func (e *Engine) sweepEvents() {
	ctx := e.conditionContext()
	removed := e.events.Sweep(e.state.Day, e.state.SeasonIndex, e.state.Year, func(expression string) bool {
		return e.eval.Eval(expression, ctx)
	})
	for _, ev := range removed {
		slog.Debug("event finished", "event_id", ev.GetID(), "type", ev.GetType())
	}
}

// EventDisplay is one active event serialized for the UI.
type EventDisplay struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Progress    string `json:"progress"`
}

// GetAllEventsForDisplay returns the active events in display form.
func (e *Engine) GetAllEventsForDisplay() []EventDisplay {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]EventDisplay, 0, e.events.Len())
	for _, ev := range e.events.All() {
		out = append(out, EventDisplay{
			Type:        string(ev.GetType()),
			Name:        ev.GetName(),
			Icon:        ev.GetIcon(),
			Description: ev.GetDescription(),
			Progress:    ev.ProgressDisplay(),
		})
	}
	return out
}

// ── Generation ──────────────────────────────────────────────────────────

// GenerationContext is everything the writer needs for one batch.
type GenerationContext struct {
	IsSeasonStart        bool                `json:"is_season_start"`
	IsFirstDayAfterDeath bool                `json:"is_first_day_after_death"`
	Snapshot             map[string]any      `json:"snapshot"`
	DAGContext           story.WriterContext `json:"dag_context"`
	OngoingEvents        []EventDisplay      `json:"ongoing_events"`
	AvailableTags        []TagDefinition     `json:"available_tags"`
	Season               SeasonContext       `json:"season"`
	Jobs                 []*CardGenJob       `json:"jobs,omitempty"`
	CommonCount          int                 `json:"common_count"`
}

// SeasonContext is the season block of the generation context.
type SeasonContext struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Week        int    `json:"week"`
}

// GetGenerationContext builds the writer's batch context. IsSeasonStart is
// true on day 1 of any season so the writer also produces structural cards.
// Pending jobs are drained into the context.
func (e *Engine) GetGenerationContext() GenerationContext {
	e.mu.Lock()
	defer e.mu.Unlock()

	seasonCtx := SeasonContext{Week: e.state.WeekInSeason()}
	if season := e.state.CurrentSeason(); season != nil {
		seasonCtx.Name = season.Name
		seasonCtx.Description = season.Description
	}

	jobs := e.jobs.Drain()
	common := e.deck.Capacity() - len(jobs)
	if common < 1 {
		common = 1
	}

	displays := make([]EventDisplay, 0, e.events.Len())
	for _, ev := range e.events.All() {
		displays = append(displays, EventDisplay{
			Type:        string(ev.GetType()),
			Name:        ev.GetName(),
			Icon:        ev.GetIcon(),
			Description: ev.GetDescription(),
			Progress:    ev.ProgressDisplay(),
		})
	}

	return GenerationContext{
		IsSeasonStart:        e.state.Day == 1,
		IsFirstDayAfterDeath: e.state.IsFirstDayAfterDeath,
		Snapshot:             e.state.Snapshot(),
		DAGContext:           e.dag.GetWriterContext(),
		OngoingEvents:        displays,
		AvailableTags:        append([]TagDefinition{}, e.state.TagDefs...),
		Season:               seasonCtx,
		Jobs:                 jobs,
		CommonCount:          common,
	}
}

// RequeueJobs returns drained generation jobs to the queue so a fallback
// fill can still render them after a failed writer batch.
func (e *Engine) RequeueJobs(jobs []*CardGenJob) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs.Requeue(jobs)
}

// CommonCount reports how many common cards the next batch should carry:
// the deck capacity minus pending jobs, at least one.
func (e *Engine) CommonCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	common := e.deck.Capacity() - e.jobs.Count()
	if common < 1 {
		common = 1
	}
	return common
}

// NeedsGeneration reports whether enough cards were consumed to refill.
func (e *Engine) NeedsGeneration() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deck.NeedsGeneration()
}

// BeginGeneration marks a writer batch as in flight. Returns false when one
// is already running so only a single batch is ever outstanding.
func (e *Engine) BeginGeneration() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isGenerating {
		return false
	}
	e.isGenerating = true
	return true
}

// FinishGeneration clears the in-flight flag and the consumption counter.
func (e *Engine) FinishGeneration() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.isGenerating = false
	e.deck.ResetConsumption()
}

// AddCardsFromDefs validates writer card definitions and inserts them into
// the week deck. Returns the number inserted.
func (e *Engine) AddCardsFromDefs(defs []cards.CardDef) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addCardsFromDefs(defs)
}

func (e *Engine) addCardsFromDefs(defs []cards.CardDef) int {
	known := e.state.KnownNPCIDs()
	batch := make([]cards.Card, 0, len(defs))
	for _, def := range defs {
		batch = append(batch, cards.ValidateCardDef(def, known))
	}
	return e.deck.BulkInsert(batch)
}

// ProcessBatchOutput routes writer output. At season start, info cards with
// structural ids are stored (welcome, reborn, season) or pooled (death
// cards) instead of entering the deck, then the stored cards are pushed to
// the front of the immediate queue so the order on screen is welcome,
// reborn, season transition, week cards.
func (e *Engine) ProcessBatchOutput(batch *agents.WriterBatchOutput, isSeasonStart bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	known := e.state.KnownNPCIDs()
	var deckDefs []cards.CardDef

	for _, def := range batch.Cards {
		if def.Type == "info" && isSeasonStart {
			switch {
			case def.ID == welcomeCardID:
				e.state.WelcomeCard = cards.ValidateCardDef(def, known)
				continue
			case strings.HasPrefix(def.ID, rebornCardPrefix):
				e.state.RebornCard = cards.ValidateCardDef(def, known)
				continue
			case strings.HasPrefix(def.ID, seasonCardPrefix):
				e.state.SeasonStartCard = cards.ValidateCardDef(def, known)
				continue
			case strings.HasPrefix(def.ID, deathCardPrefix):
				e.state.PendingDeathCards[def.ID] = cards.ValidateCardDef(def, known)
				continue
			}
		}
		deckDefs = append(deckDefs, def)
	}

	e.addCardsFromDefs(deckDefs)

	if isSeasonStart {
		if e.state.SeasonStartCard != nil {
			e.pushImmediateFront(e.state.SeasonStartCard)
			e.state.SeasonStartCard = nil
		}
		if e.state.RebornCard != nil {
			e.pushImmediateFront(e.state.RebornCard)
			e.state.RebornCard = nil
		}
		if e.state.WelcomeCard != nil {
			e.pushImmediateFront(e.state.WelcomeCard)
			e.state.WelcomeCard = nil
		}
		e.state.IsFirstDayAfterDeath = false
	}
}

func (e *Engine) pushImmediateFront(card cards.Card) {
	e.immediate = append([]cards.Card{card}, e.immediate...)
}

// ── Accessors ───────────────────────────────────────────────────────────

// State returns the blackboard. Callers must treat it as read-only; all
// mutation goes through engine methods.
func (e *Engine) State() *Blackboard {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// DeckStatus renders the deck fill level, e.g. "5/7".
func (e *Engine) DeckStatus() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deck.Status()
}

// ImmediateCount reports how many structural cards are queued.
func (e *Engine) ImmediateCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.immediate)
}
