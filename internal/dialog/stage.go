// Package dialog implements the Dialog FSM + Dialogue State Tracker
// (spec §4.8): a labelled directed graph over a configured stage set, plus
// slot extraction/confirmation through a single apply_change function.
// Absent from the teacher entirely (a pure conversational loop); grounded
// on the priority-ordered transition pattern in
// lookatitude-beluga-ai/orchestration, expressed in the teacher's small
// hand-rolled-struct idiom rather than a generic graph engine.
package dialog

import (
	"fmt"
	"sort"

	"github.com/lokutor-ai/vaak-pipeline/internal/perrors"
)

// Trigger decides whether a transition should fire, given the current
// extracted signals for this turn.
type Trigger func(signals Signals) bool

// Signals summarizes one turn's inputs to the FSM: matched intent, slots
// touched this turn, and whether the current goal just completed.
type Signals struct {
	Intent        string
	SlotsTouched  []string
	GoalCompleted bool
	ToolResult    bool
}

// Transition is one labelled edge, evaluated in declared priority order.
type Transition struct {
	To       string
	Priority int
	When     Trigger
}

// Stage is one node in the dialog graph (spec: "e.g., Opening, Discovery,
// Objection, Closing, Terminal"). Each declares its allowed next stages and
// optional entry/exit actions.
type Stage struct {
	Name        string
	Guidance    string // injected into the LLM system prompt
	Transitions []Transition
	OnEnter     func()
	OnExit      func()
}

// Graph is the labelled directed graph over the configured stage set.
type Graph struct {
	stages  map[string]*Stage
	current string
}

// NewGraph builds a Graph. Rejecting an empty stage set at startup is the
// caller's responsibility (spec §8 boundary: "Configuration with an empty
// stage graph is rejected at startup") — NewGraph itself returns an error
// for that case so callers can surface perrors.KindFatal.
func NewGraph(stages []Stage, start string) (*Graph, error) {
	if len(stages) == 0 {
		return nil, perrors.ErrEmptyStageGraph
	}
	m := make(map[string]*Stage, len(stages))
	for i := range stages {
		s := stages[i]
		m[s.Name] = &s
	}
	if _, ok := m[start]; !ok {
		return nil, fmt.Errorf("dialog: start stage %q not found in graph", start)
	}
	return &Graph{stages: m, current: start}, nil
}

// Current returns the FSM's current stage.
func (g *Graph) Current() *Stage { return g.stages[g.current] }

// Evaluate runs the current stage's transitions in declared priority order
// and selects at most one outgoing edge (spec §4.8). If one fires, OnExit
// of the old stage and OnEnter of the new stage run, in that order.
func (g *Graph) Evaluate(signals Signals) (transitioned bool, newStage string) {
	cur := g.stages[g.current]
	if cur == nil {
		return false, g.current
	}
	sorted := make([]Transition, len(cur.Transitions))
	copy(sorted, cur.Transitions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	for _, t := range sorted {
		if t.When == nil || !t.When(signals) {
			continue
		}
		if _, ok := g.stages[t.To]; !ok {
			continue
		}
		if cur.OnExit != nil {
			cur.OnExit()
		}
		g.current = t.To
		if next := g.stages[t.To]; next != nil && next.OnEnter != nil {
			next.OnEnter()
		}
		return true, t.To
	}
	return false, g.current
}
