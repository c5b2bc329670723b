package cond

import "testing"

func testContext() map[string]any {
	return map[string]any{
		"stats":        map[string]int{"treasury": 60, "military": 20},
		"tags":         []string{"allied", "cursed"},
		"events":       []string{"harvest_festival"},
		"season":       1,
		"day":          5,
		"year":         2,
		"elapsed_days": 33,
	}
}

func TestEvalComparison(t *testing.T) {
	e := NewEvaluator()

	if !e.Eval(`stats["treasury"] > 50`, testContext()) {
		t.Error("expected treasury comparison to be true")
	}

	if e.Eval(`stats["military"] > 50`, testContext()) {
		t.Error("expected military comparison to be false")
	}
}

func TestEvalMembership(t *testing.T) {
	e := NewEvaluator()

	if !e.Eval(`"allied" in tags`, testContext()) {
		t.Error("expected tag membership to be true")
	}

	if !e.Eval(`"harvest_festival" in events && day >= 5`, testContext()) {
		t.Error("expected combined expression to be true")
	}
}

func TestEvalEmptyAndLiteralTrue(t *testing.T) {
	e := NewEvaluator()

	for _, expression := range []string{"", "  ", "true", "True"} {
		if !e.Eval(expression, testContext()) {
			t.Errorf("expected %q to evaluate to true", expression)
		}
	}
}

func TestEvalMalformedIsFalse(t *testing.T) {
	e := NewEvaluator()

	if e.Eval(`stats[`, testContext()) {
		t.Error("malformed expression must evaluate to false")
	}

	// Unknown identifier is a runtime error, also swallowed.
	if e.Eval(`mystery > 3`, testContext()) {
		t.Error("runtime error must evaluate to false")
	}
}

func TestEvalNonBooleanIsFalse(t *testing.T) {
	e := NewEvaluator()

	if e.Eval(`day + 1`, testContext()) {
		t.Error("non-boolean result must evaluate to false")
	}
}

func TestEvalCachesPrograms(t *testing.T) {
	e := NewEvaluator()

	expression := `elapsed_days > 10`
	if !e.Eval(expression, testContext()) {
		t.Fatal("expected expression to be true")
	}
	if _, ok := e.programs[expression]; !ok {
		t.Error("expected compiled program to be cached")
	}
}
