// Package story holds the macro plot DAG. Nodes are description-only beats;
// the writer turns an activatable node into an actual card. Firing a node
// unlocks its successors.
package story

import (
	"fmt"
	"sync"

	"github.com/nhkhanh/cardfall/internal/cards"
	"github.com/nhkhanh/cardfall/internal/cond"
)

// PlotNode is one beat of the macro plot. Calls run when the node fires.
type PlotNode struct {
	ID              string               `json:"id"`
	PlotDescription string               `json:"plot_description"`
	Condition       string               `json:"condition"`
	Calls           []cards.FunctionCall `json:"calls,omitempty"`
	IsEnding        bool                 `json:"is_ending"`
	EndingText      string               `json:"ending_text,omitempty"`
	IsFired         bool                 `json:"is_fired"`
}

// NodeSummary is the pruned node view handed to the writer and the UI.
type NodeSummary struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Condition   string `json:"condition,omitempty"`
	IsEnding    bool   `json:"is_ending,omitempty"`
}

// WriterContext is the pruned DAG the writer sees: what already happened,
// what can happen next, and what lies one step beyond.
type WriterContext struct {
	Fired       []NodeSummary `json:"fired"`
	Activatable []NodeSummary `json:"activatable"`
	Upcoming    []NodeSummary `json:"upcoming"`
}

// MacroDAG is the plot graph. All iteration follows node declaration order,
// so identical inputs always produce identical activation sequences.
type MacroDAG struct {
	mu    sync.RWMutex
	nodes map[string]*PlotNode
	order []string
	preds map[string][]string
	succs map[string][]string
	eval  *cond.Evaluator
}

func NewMacroDAG() *MacroDAG {
	return &MacroDAG{
		nodes: make(map[string]*PlotNode),
		preds: make(map[string][]string),
		succs: make(map[string][]string),
		eval:  cond.NewEvaluator(),
	}
}

// AddNode registers a plot node. Duplicate ids are rejected.
func (d *MacroDAG) AddNode(node *PlotNode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.nodes[node.ID]; exists {
		return fmt.Errorf("duplicate plot node %q", node.ID)
	}
	d.nodes[node.ID] = node
	d.order = append(d.order, node.ID)
	return nil
}

// AddEdge links two nodes. Edges referencing unknown nodes are dropped.
func (d *MacroDAG) AddEdge(fromID, toID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.nodes[fromID]; !ok {
		return
	}
	if _, ok := d.nodes[toID]; !ok {
		return
	}
	d.succs[fromID] = append(d.succs[fromID], toID)
	d.preds[toID] = append(d.preds[toID], fromID)
}

// predecessorsFired reports whether every predecessor of the node has fired.
// Root nodes trivially qualify. Caller holds the lock.
func (d *MacroDAG) predecessorsFired(id string) bool {
	for _, p := range d.preds[id] {
		if !d.nodes[p].IsFired {
			return false
		}
	}
	return true
}

// GetActivatableNodes returns unfired nodes whose predecessors have all fired
// and whose conditions hold against ctx, in declaration order.
func (d *MacroDAG) GetActivatableNodes(ctx map[string]any) []*PlotNode {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*PlotNode
	for _, id := range d.order {
		node := d.nodes[id]
		if node.IsFired || !d.predecessorsFired(id) {
			continue
		}
		if d.eval.Eval(node.Condition, ctx) {
			result = append(result, node)
		}
	}
	return result
}

// FireNode marks a node as fired and returns it. Unknown and already-fired
// nodes return nil, so a node's calls can never run twice.
func (d *MacroDAG) FireNode(id string) *PlotNode {
	d.mu.Lock()
	defer d.mu.Unlock()

	node, ok := d.nodes[id]
	if !ok || node.IsFired {
		return nil
	}
	node.IsFired = true
	return node
}

// CheckEnding returns the first fired ending node in declaration order, or nil.
func (d *MacroDAG) CheckEnding() *PlotNode {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.order {
		node := d.nodes[id]
		if node.IsEnding && node.IsFired {
			return node
		}
	}
	return nil
}

// PartialReset clears fired flags for a new life. Nodes named in keepFired
// survive, and fired endings always stay fired so a reached ending cannot be
// replayed.
func (d *MacroDAG) PartialReset(keepFired map[string]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range d.order {
		node := d.nodes[id]
		if keepFired[id] || node.IsEnding {
			continue
		}
		node.IsFired = false
	}
}

// ValidateReachability reports nodes that can never activate because every
// predecessor is an ending, so firing one would end the game first.
func (d *MacroDAG) ValidateReachability() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var warnings []string
	for _, id := range d.order {
		preds := d.preds[id]
		if len(preds) == 0 {
			continue
		}
		allEndings := true
		for _, p := range preds {
			if !d.nodes[p].IsEnding {
				allEndings = false
				break
			}
		}
		if allEndings {
			warnings = append(warnings, fmt.Sprintf("plot node %q is only reachable through endings", id))
		}
	}
	return warnings
}

// GetWriterContext builds the pruned view the writer prompt embeds. Fired
// descriptions are truncated; activatable nodes carry full detail; upcoming
// nodes are the locked children one edge past the activatable frontier.
func (d *MacroDAG) GetWriterContext() WriterContext {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx := WriterContext{}
	activatable := make(map[string]bool)

	for _, id := range d.order {
		node := d.nodes[id]
		if node.IsFired {
			ctx.Fired = append(ctx.Fired, NodeSummary{
				ID:          id,
				Description: truncate(node.PlotDescription, 80),
			})
			continue
		}
		if d.predecessorsFired(id) {
			activatable[id] = true
			ctx.Activatable = append(ctx.Activatable, NodeSummary{
				ID:          id,
				Description: node.PlotDescription,
				Condition:   node.Condition,
				IsEnding:    node.IsEnding,
			})
		}
	}

	seen := make(map[string]bool)
	for _, id := range d.order {
		if !activatable[id] {
			continue
		}
		for _, childID := range d.succs[id] {
			child := d.nodes[childID]
			if child.IsFired || activatable[childID] || seen[childID] {
				continue
			}
			seen[childID] = true
			ctx.Upcoming = append(ctx.Upcoming, NodeSummary{
				ID:        childID,
				Condition: child.Condition,
			})
		}
	}
	return ctx
}

// VisualNode is the full node view for DAG visualization.
type VisualNode struct {
	Description  string   `json:"description"`
	Status       string   `json:"status"` // fired | activatable | locked
	IsEnding     bool     `json:"is_ending"`
	EndingText   string   `json:"ending_text,omitempty"`
	Condition    string   `json:"condition"`
	Predecessors []string `json:"predecessors"`
	Successors   []string `json:"successors"`
}

// VisualGraph is the whole DAG for UI visualization.
type VisualGraph struct {
	Nodes map[string]VisualNode `json:"nodes"`
	Edges [][2]string           `json:"edges"`
}

func (d *MacroDAG) GetVisualGraph() VisualGraph {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g := VisualGraph{Nodes: make(map[string]VisualNode, len(d.order))}
	for _, id := range d.order {
		node := d.nodes[id]
		status := "locked"
		if node.IsFired {
			status = "fired"
		} else if d.predecessorsFired(id) {
			status = "activatable"
		}
		g.Nodes[id] = VisualNode{
			Description:  node.PlotDescription,
			Status:       status,
			IsEnding:     node.IsEnding,
			EndingText:   node.EndingText,
			Condition:    node.Condition,
			Predecessors: append([]string{}, d.preds[id]...),
			Successors:   append([]string{}, d.succs[id]...),
		}
		for _, succ := range d.succs[id] {
			g.Edges = append(g.Edges, [2]string{id, succ})
		}
	}
	return g
}

// FiredIDs returns the ids of fired nodes in declaration order, the only DAG
// state a save needs.
func (d *MacroDAG) FiredIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for _, id := range d.order {
		if d.nodes[id].IsFired {
			out = append(out, id)
		}
	}
	return out
}

// RestoreFired replaces the graph's fired set with the one from a save:
// every node is unfired first, so progress made after the save point is
// rolled back too. Ids no longer in the graph are skipped so an older save
// still loads against a revised plot.
func (d *MacroDAG) RestoreFired(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range d.order {
		d.nodes[id].IsFired = false
	}
	for _, id := range ids {
		if node, ok := d.nodes[id]; ok {
			node.IsFired = true
		}
	}
}

func (d *MacroDAG) NodeCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
