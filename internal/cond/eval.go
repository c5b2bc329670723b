// Package cond evaluates the small boolean rule language embedded in
// generator-authored content (plot node preconditions, event end conditions).
//
// Expressions are expr-lang programs evaluated against a fixed read-only
// context. Evaluation is deliberately forgiving: a malformed or non-boolean
// expression is reported as false and logged, never propagated, because a
// bad expression must not crash the game loop.
package cond

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator compiles and caches expression programs.
type Evaluator struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

func NewEvaluator() *Evaluator {
	return &Evaluator{programs: make(map[string]*vm.Program)}
}

// Eval evaluates an expression against ctx. Empty expressions and the bare
// literals "true"/"True" short-circuit to true without compiling. Compile
// and runtime errors, as well as non-boolean results, yield false.
func (e *Evaluator) Eval(expression string, ctx map[string]any) bool {
	expression = strings.TrimSpace(expression)
	if expression == "" || expression == "true" || expression == "True" {
		return true
	}

	program, err := e.compile(expression)
	if err != nil {
		slog.Debug("condition failed to compile", "expression", expression, "error", err)
		return false
	}

	out, err := vm.Run(program, ctx)
	if err != nil {
		slog.Debug("condition failed to evaluate", "expression", expression, "error", err)
		return false
	}

	result, ok := out.(bool)
	if !ok {
		slog.Debug("condition did not produce a boolean", "expression", expression)
		return false
	}
	return result
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.programs[expression]; ok {
		return p, nil
	}
	p, err := expr.Compile(expression)
	if err != nil {
		return nil, err
	}
	e.programs[expression] = p
	return p, nil
}
