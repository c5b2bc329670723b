package game

import (
	"testing"

	"github.com/nhkhanh/cardfall/internal/agents"
	"github.com/nhkhanh/cardfall/internal/cards"
)

func testSchema() *agents.WorldGenSchema {
	return &agents.WorldGenSchema{
		WorldName:        "Test Realm",
		WorldDescription: "A realm for testing.",
		Era:              "Test Age",
		StartingYear:     1,
		PlayerCharacter: agents.PlayerCharacterDef{
			EntityDef: agents.EntityDef{ID: "player", Name: "Tester", Role: "Ruler"},
		},
		Stats: []agents.StatDef{
			{ID: "gold", Name: "Gold", Icon: "g"},
			{ID: "army", Name: "Army", Icon: "a"},
		},
		NPCs: []agents.NPCDef{
			{EntityDef: agents.EntityDef{ID: "advisor", Name: "Advisor"}, Enabled: true},
		},
		Tags: []agents.TagDef{{ID: "brave", Name: "Brave"}},
		PlotNodes: []agents.PlotNodeDef{
			{ID: "intro", PlotDescription: "The story begins.", Condition: "elapsed_days >= 1"},
			{ID: "the_end", PlotDescription: "It ends.", Condition: "'finished' in tags", IsEnding: true, EndingText: "Done."},
		},
		Seasons: []agents.SeasonDef{
			{Name: "Spring"}, {Name: "Summer"}, {Name: "Autumn"}, {Name: "Winter"},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	if err := e.BuildFromSchema(testSchema(), 0); err != nil {
		t.Fatalf("BuildFromSchema() error: %v", err)
	}
	return e
}

func choiceCard(id string, leftCalls []cards.FunctionCall) *cards.ChoiceCard {
	return &cards.ChoiceCard{
		ID:       id,
		Title:    "Test Card",
		Source:   cards.SourceCommon,
		Priority: cards.PriorityCommon,
		Left:     cards.Choice{Text: "Yes", Calls: leftCalls},
		Right:    cards.Choice{Text: "No"},
	}
}

func TestBuildFromSchemaValidation(t *testing.T) {
	e := NewEngine()

	empty := testSchema()
	empty.Stats = nil
	if err := e.BuildFromSchema(empty, 0); err == nil {
		t.Error("schema without stats should be rejected")
	}

	noPlot := testSchema()
	noPlot.PlotNodes = nil
	if err := e.BuildFromSchema(noPlot, 0); err == nil {
		t.Error("schema without plot nodes should be rejected")
	}

	if err := e.BuildFromSchema(testSchema(), 1); err != nil {
		t.Fatalf("BuildFromSchema() error: %v", err)
	}
	if len(e.State().StatDefs) != 1 {
		t.Errorf("stat count = %d, want 1 (clamped)", len(e.State().StatDefs))
	}
	if e.State().Stats["gold"] != 50 {
		t.Errorf("starting stat = %d, want 50", e.State().Stats["gold"])
	}
}

func TestDrawPrefersImmediateQueue(t *testing.T) {
	e := newTestEngine(t)

	e.ProcessBatchOutput(&agents.WriterBatchOutput{Cards: []cards.CardDef{
		{Type: "info", ID: "welcome_message", Title: "Welcome", Character: "narrator"},
		{Type: "choice", ID: "common_1", Title: "Common", Character: "advisor", LeftText: "A", RightText: "B"},
	}}, true)

	first := e.DrawCard()
	if first == nil || first.GetID() != "welcome_message" {
		t.Fatalf("first draw = %v, want welcome card", first)
	}
	second := e.DrawCard()
	if second == nil || second.GetID() != "common_1" {
		t.Fatalf("second draw = %v, want deck card", second)
	}
	if e.DrawCard() != nil {
		t.Error("empty engine should draw nil")
	}
}

func TestResolveChoiceAdvancesDay(t *testing.T) {
	e := newTestEngine(t)

	card := choiceCard("c1", []cards.FunctionCall{
		{Name: "update_stat", Params: map[string]any{"stat_id": "gold", "delta": float64(-10)}},
	})
	result := e.ResolveCard(card, "left")

	if result.StatChanges["gold"] != -10 {
		t.Errorf("stat change = %v", result.StatChanges)
	}
	if e.State().Stats["gold"] != 40 {
		t.Errorf("gold = %d, want 40", e.State().Stats["gold"])
	}
	if e.State().Day != 2 {
		t.Errorf("day = %d, want 2 after one choice", e.State().Day)
	}
}

func TestResolveInfoDoesNotAdvanceDay(t *testing.T) {
	e := newTestEngine(t)

	info := &cards.InfoCard{ID: "i1", Title: "FYI", Source: cards.SourceStory, Priority: cards.PriorityStory}
	result := e.ResolveCard(info, "right")

	if !result.IsInfo {
		t.Error("result should be flagged info")
	}
	if e.State().Day != 1 {
		t.Errorf("day = %d, info dismissal must not consume a day", e.State().Day)
	}
}

func TestTreeCardsDeferDayAdvance(t *testing.T) {
	e := newTestEngine(t)

	followup := choiceCard("followup", nil)
	card := choiceCard("branch", nil)
	card.TreeLeft = cards.CardList{followup}

	result := e.ResolveCard(card, "left")
	if len(result.TreeCards) != 1 {
		t.Fatalf("tree cards = %d, want 1", len(result.TreeCards))
	}
	if e.State().Day != 1 {
		t.Errorf("day = %d, branch must not consume a day", e.State().Day)
	}

	next := e.DrawCard()
	if next == nil || next.GetID() != "followup" {
		t.Fatalf("next draw = %v, want the tree card", next)
	}
	if next.GetPriority() != cards.PriorityTree {
		t.Errorf("tree card priority = %d, want %d", next.GetPriority(), cards.PriorityTree)
	}

	// Resolving the leaf finally advances the day.
	e.ResolveCard(next, "right")
	if e.State().Day != 2 {
		t.Errorf("day = %d, want 2 after branch leaf", e.State().Day)
	}
}

func TestPlotFiresAtWeekEnd(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < DaysPerWeek; i++ {
		e.ResolveCard(choiceCard("c", nil), "right")
	}

	graph := e.VisualGraph()
	if got := graph.Nodes["intro"].Status; got != "fired" {
		t.Errorf("intro status = %q, want fired after week end", got)
	}

	genCtx := e.GetGenerationContext()
	if len(genCtx.Jobs) != 1 || genCtx.Jobs[0].JobType != "plot" {
		t.Fatalf("jobs = %+v, want one plot job", genCtx.Jobs)
	}
	if genCtx.Jobs[0].Context["node_id"] != "intro" {
		t.Errorf("job node = %v", genCtx.Jobs[0].Context["node_id"])
	}
	if genCtx.CommonCount != WeekDeckSize-1 {
		t.Errorf("common count = %d, want %d", genCtx.CommonCount, WeekDeckSize-1)
	}
}

func TestDeathAndResurrection(t *testing.T) {
	e := newTestEngine(t)

	e.ResolveCard(choiceCard("tags", []cards.FunctionCall{
		{Name: "add_tag", Params: map[string]any{"tag_id": "brave"}},
		{Name: "add_tag", Params: map[string]any{"tag_id": "_temp_flag"}},
	}), "left")

	e.ResolveCard(choiceCard("fatal", []cards.FunctionCall{
		{Name: "update_stat", Params: map[string]any{"stat_id": "gold", "delta": float64(-100)}},
	}), "left")

	info := e.CheckDeath()
	if info == nil {
		t.Fatal("expected death at gold 0")
	}
	if info.CauseStat != "gold" || info.CauseValue != 0 {
		t.Errorf("death info = %+v", info)
	}

	e.HandleDeath(info)
	if !e.AwaitingResurrection() {
		t.Error("should await resurrection after death")
	}

	deathCard := e.DrawCard()
	if deathCard == nil || deathCard.GetTitle() != "☠ Death" {
		t.Fatalf("death card = %v", deathCard)
	}

	seasonBefore := e.State().SeasonIndex
	karma := e.CompleteResurrection()

	if len(karma) != 1 || karma[0] != "brave" {
		t.Errorf("karma = %v, want [brave] with _temp filtered", karma)
	}
	st := e.State()
	if st.LifeNumber != 2 {
		t.Errorf("life = %d, want 2", st.LifeNumber)
	}
	if st.Stats["gold"] != 50 || st.Stats["army"] != 50 {
		t.Errorf("stats = %v, want reset to 50", st.Stats)
	}
	if st.Day != 1 || st.SeasonIndex != seasonBefore+1 {
		t.Errorf("calendar = day %d season %d, want day 1 of the next season", st.Day, st.SeasonIndex)
	}
	if !st.IsFirstDayAfterDeath {
		t.Error("first-day-after-death flag should be set")
	}
	if e.AwaitingResurrection() {
		t.Error("resurrection flag should clear")
	}
}

func TestEndingDetection(t *testing.T) {
	e := newTestEngine(t)

	// Tag the world so the ending condition holds, then play out a week so
	// the pending node fires.
	e.ResolveCard(choiceCard("finish", []cards.FunctionCall{
		{Name: "add_tag", Params: map[string]any{"tag_id": "finished"}},
	}), "left")
	for i := 0; i < DaysPerWeek-1; i++ {
		e.ResolveCard(choiceCard("c", nil), "right")
	}
	// intro fired first; the ending fires at the following week end.
	for i := 0; i < DaysPerWeek; i++ {
		e.ResolveCard(choiceCard("c", nil), "right")
	}

	ending := e.CheckEnding()
	if ending == nil {
		t.Fatal("expected a fired ending")
	}
	if ending.ID != "the_end" || ending.EndingText != "Done." {
		t.Errorf("ending = %+v", ending)
	}
}

func TestProcessBatchOutputRouting(t *testing.T) {
	e := newTestEngine(t)
	e.State().IsFirstDayAfterDeath = true

	batch := &agents.WriterBatchOutput{Cards: []cards.CardDef{
		{Type: "choice", ID: "common_1", Title: "Common", Character: "advisor", LeftText: "A", RightText: "B"},
		{Type: "info", ID: "season_spring", Title: "Spring", Character: "narrator"},
		{Type: "info", ID: "reborn_1", Title: "Reborn", Character: "narrator"},
		{Type: "info", ID: "welcome_message", Title: "Welcome", Character: "narrator"},
		{Type: "info", ID: "death_gold_min", Title: "Death", Character: "narrator"},
	}}
	e.ProcessBatchOutput(batch, true)

	// Structural order on screen: welcome, reborn, season, then the deck.
	wantOrder := []string{"welcome_message", "reborn_1", "season_spring", "common_1"}
	for _, want := range wantOrder {
		card := e.DrawCard()
		if card == nil || card.GetID() != want {
			t.Fatalf("draw = %v, want %s", card, want)
		}
	}

	if _, ok := e.State().PendingDeathCards["death_gold_min"]; !ok {
		t.Error("death card should be pooled, not dealt")
	}
	if e.State().IsFirstDayAfterDeath {
		t.Error("reborn flag should clear after the season-start batch")
	}
}

func TestProcessBatchOutputMidWeek(t *testing.T) {
	e := newTestEngine(t)

	batch := &agents.WriterBatchOutput{Cards: []cards.CardDef{
		{Type: "info", ID: "welcome_message", Title: "Welcome", Character: "narrator"},
	}}
	e.ProcessBatchOutput(batch, false)

	// Mid-week batches get no structural routing; the card lands in the deck.
	if e.ImmediateCount() != 0 {
		t.Errorf("immediate count = %d, want 0", e.ImmediateCount())
	}
	if card := e.DrawCard(); card == nil || card.GetID() != "welcome_message" {
		t.Errorf("draw = %v, want the card from the deck", card)
	}
}

func TestResolveByIDStaleGuard(t *testing.T) {
	e := newTestEngine(t)
	e.AddCardsFromDefs([]cards.CardDef{
		{Type: "choice", ID: "c1", Title: "T", Character: "advisor", LeftText: "A", RightText: "B"},
	})

	if _, err := e.ResolveByID("c1", "left"); err == nil {
		t.Error("resolving before drawing should fail")
	}

	card := e.DrawCard()
	if _, err := e.ResolveByID("forged_id", "left"); err == nil {
		t.Error("forged card id should fail")
	}
	if _, err := e.ResolveByID(card.GetID(), "left"); err != nil {
		t.Errorf("ResolveByID() error: %v", err)
	}
	if _, err := e.ResolveByID(card.GetID(), "left"); err == nil {
		t.Error("double resolve should fail")
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	e.ResolveCard(choiceCard("c1", []cards.FunctionCall{
		{Name: "update_stat", Params: map[string]any{"stat_id": "gold", "delta": float64(7)}},
		{Name: "add_tag", Params: map[string]any{"tag_id": "brave"}},
	}), "left")
	for i := 0; i < DaysPerWeek-1; i++ {
		e.ResolveCard(choiceCard("c", nil), "right")
	}

	save, err := e.ExportSave()
	if err != nil {
		t.Fatalf("ExportSave() error: %v", err)
	}
	if save.WorldSlug != "test_realm" {
		t.Errorf("slug = %q", save.WorldSlug)
	}

	restored := NewEngine()
	if err := restored.BuildFromSchema(testSchema(), 0); err != nil {
		t.Fatalf("BuildFromSchema() error: %v", err)
	}
	if err := restored.RestoreSave(save); err != nil {
		t.Fatalf("RestoreSave() error: %v", err)
	}

	st := restored.State()
	if st.Stats["gold"] != 57 {
		t.Errorf("gold = %d, want 57", st.Stats["gold"])
	}
	if !st.HasTag("brave") {
		t.Error("tag lost through save")
	}
	if st.Day != e.State().Day {
		t.Errorf("day = %d, want %d", st.Day, e.State().Day)
	}

	if got := restored.VisualGraph().Nodes["intro"].Status; got != "fired" {
		t.Errorf("intro status after restore = %q, want fired", got)
	}

	// The deck is never persisted; a fresh week is generated on load.
	if !restored.IsWeekOver() {
		t.Error("restored engine should start with an empty deck")
	}
}

func TestRestoreSaveRollsBackPlotProgress(t *testing.T) {
	e := newTestEngine(t)

	save, err := e.ExportSave()
	if err != nil {
		t.Fatalf("ExportSave() error: %v", err)
	}
	if len(save.FiredNodes) != 0 {
		t.Fatalf("fresh save should have no fired nodes, got %v", save.FiredNodes)
	}

	// Play a full week so the intro node fires past the save point.
	for i := 0; i < DaysPerWeek; i++ {
		e.ResolveCard(choiceCard("c", nil), "right")
	}
	if got := e.VisualGraph().Nodes["intro"].Status; got != "fired" {
		t.Fatalf("intro status = %q, want fired before restore", got)
	}

	if err := e.RestoreSave(save); err != nil {
		t.Fatalf("RestoreSave() error: %v", err)
	}
	if got := e.VisualGraph().Nodes["intro"].Status; got == "fired" {
		t.Error("intro still fired after restoring a save made before it fired")
	}
	if got := e.State().ElapsedDays(); got != 0 {
		t.Errorf("elapsed days after restore = %d, want 0", got)
	}
}

func TestRequeuedJobsSurviveFallbackFill(t *testing.T) {
	e := newTestEngine(t)

	// A full week fires the intro node and enqueues its plot job.
	for i := 0; i < DaysPerWeek; i++ {
		e.ResolveCard(choiceCard("c", nil), "right")
	}

	genCtx := e.GetGenerationContext()
	if len(genCtx.Jobs) != 1 {
		t.Fatalf("jobs = %+v, want one plot job", genCtx.Jobs)
	}

	// The writer batch failed; the drained jobs go back before the
	// offline pool takes over.
	e.RequeueJobs(genCtx.Jobs)
	e.PrepareDemoWeek()

	plots := 0
	for _, card := range e.deck.PeekAll() {
		if card.GetSource() == cards.SourcePlot {
			plots++
		}
	}
	if plots != 1 {
		t.Errorf("plot cards in fallback deck = %d, want 1", plots)
	}
}

func TestPrepareDemoWeek(t *testing.T) {
	e := NewEngine()
	if err := e.BuildFromSchema(DemoWorld(), 0); err != nil {
		t.Fatalf("BuildFromSchema(DemoWorld) error: %v", err)
	}

	e.PrepareDemoWeek()

	// Day 1 of life 1: welcome plus season transition.
	if e.ImmediateCount() != 2 {
		t.Fatalf("immediate count = %d, want 2", e.ImmediateCount())
	}
	first := e.DrawCard()
	if first == nil || first.GetID() != "welcome_message" {
		t.Fatalf("first card = %v, want welcome", first)
	}
	second := e.DrawCard()
	if second == nil || second.GetID() != "season_spring" {
		t.Fatalf("second card = %v, want season card", second)
	}

	if got := e.DeckStatus(); got != "7/7" {
		t.Errorf("deck status = %q, want full week", got)
	}

	// Every stat has both boundary death cards pooled.
	wantDeaths := len(e.State().StatDefs) * 2
	if got := len(e.State().PendingDeathCards); got != wantDeaths {
		t.Errorf("pending death cards = %d, want %d", got, wantDeaths)
	}
}

func TestPrepareDemoWeekAfterDeath(t *testing.T) {
	e := NewEngine()
	if err := e.BuildFromSchema(DemoWorld(), 0); err != nil {
		t.Fatalf("BuildFromSchema(DemoWorld) error: %v", err)
	}
	e.PrepareDemoWeek()
	for e.DrawCard() != nil {
	}

	e.ResolveCard(choiceCard("fatal", []cards.FunctionCall{
		{Name: "update_stat", Params: map[string]any{"stat_id": "treasury", "delta": float64(-100)}},
	}), "left")
	info := e.CheckDeath()
	if info == nil {
		t.Fatal("expected death")
	}
	e.HandleDeath(info)

	// The pooled demo death card is used, not the fallback.
	deathCard := e.DrawCard()
	if deathCard == nil || deathCard.GetID() != "death_treasury_min" {
		t.Fatalf("death card = %v, want pooled death_treasury_min", deathCard)
	}

	e.CompleteResurrection()
	e.PrepareDemoWeek()

	first := e.DrawCard()
	if first == nil || first.GetID()[:7] != "reborn_" {
		t.Fatalf("first card = %v, want reborn card", first)
	}
	if e.State().IsFirstDayAfterDeath {
		t.Error("reborn flag should clear once the card is queued")
	}
}
