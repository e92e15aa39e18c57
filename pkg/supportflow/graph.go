package supportflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// End is the terminal stage marker. A transition returning End finishes
// the submission.
const End = "__end__"

// StageKind identifies how a stage behaves within the graph.
type StageKind string

// Stage kinds.
const (
	KindClassifier    StageKind = "classifier"
	KindToolLoop      StageKind = "tool_loop"
	KindTerminalPause StageKind = "terminal_pause"
)

// Stage is a unit of orchestration logic. Stages receive the current
// thread state and return a delta; they never mutate the state they are
// given. Stages may be re-run after a crash before commit, so they must
// be side-effect free until the engine commits their delta.
type Stage interface {
	// Name returns the unique stage name used in transitions.
	Name() string

	// Kind reports the stage's behavioral class.
	Kind() StageKind

	// Interruptible reports whether reaching this stage pauses the
	// thread until an explicit resume signal.
	Interruptible() bool

	// Run executes the stage against a snapshot of the thread state.
	Run(ctx context.Context, state ThreadState) (Delta, error)
}

// TransitionFunc selects the next stage from the merged state after a
// stage completes. It returns a stage name or End.
type TransitionFunc func(state ThreadState) string

// TransitionTo returns a transition that always routes to the given
// stage (or End).
func TransitionTo(name string) TransitionFunc {
	return func(ThreadState) string { return name }
}

// Graph is a mutable builder for stage graphs. Build on one goroutine,
// then Compile() into an immutable CompiledGraph safe for concurrent
// submissions.
type Graph struct {
	mu          sync.RWMutex
	stages      map[string]Stage
	transitions map[string]TransitionFunc
	entry       string
}

// NewGraph creates an empty graph builder.
func NewGraph() *Graph {
	return &Graph{
		stages:      make(map[string]Stage),
		transitions: make(map[string]TransitionFunc),
	}
}

// AddStage registers a stage and its transition. Returns the graph for
// chaining.
//
// Panics if the stage is nil, its name is empty, reserved, contains
// whitespace, or is already registered, or if transition is nil.
// Misconfigured graphs are programmer errors, caught at build time.
func (g *Graph) AddStage(s Stage, transition TransitionFunc) *Graph {
	if s == nil {
		panic("supportflow: stage cannot be nil")
	}
	name := s.Name()
	if name == "" {
		panic("supportflow: stage name cannot be empty")
	}
	if strings.EqualFold(name, "end") || strings.EqualFold(name, End) {
		panic("supportflow: stage name cannot be reserved word End")
	}
	if strings.ContainsAny(name, " \t\n\r") {
		panic("supportflow: stage name cannot contain whitespace")
	}
	if transition == nil {
		panic("supportflow: transition cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.stages[name]; exists {
		panic(fmt.Sprintf("supportflow: duplicate stage name: %s", name))
	}

	g.stages[name] = s
	g.transitions[name] = transition
	return g
}

// SetEntry designates the entry stage. Must be called before Compile().
func (g *Graph) SetEntry(name string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entry = name
	return g
}

// Compile validates the graph and returns an immutable CompiledGraph.
//
// Validation: an entry stage is set and exists. Transition targets are
// runtime values and are checked during execution.
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.entry == "" {
		return nil, ErrNoEntryStage
	}
	if _, ok := g.stages[g.entry]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entry)
	}

	stages := make(map[string]Stage, len(g.stages))
	transitions := make(map[string]TransitionFunc, len(g.transitions))
	for name, s := range g.stages {
		stages[name] = s
		transitions[name] = g.transitions[name]
	}

	return &CompiledGraph{
		stages:      stages,
		transitions: transitions,
		entry:       g.entry,
	}, nil
}

// CompiledGraph is an immutable, executable stage graph. It is safe for
// concurrent use across submissions.
type CompiledGraph struct {
	stages      map[string]Stage
	transitions map[string]TransitionFunc
	entry       string
}

// Entry returns the entry stage name.
func (cg *CompiledGraph) Entry() string {
	return cg.entry
}

// StageNames returns all registered stage names in no particular order.
func (cg *CompiledGraph) StageNames() []string {
	names := make([]string, 0, len(cg.stages))
	for name := range cg.stages {
		names = append(names, name)
	}
	return names
}

// HasStage checks whether a stage exists in the graph.
func (cg *CompiledGraph) HasStage(name string) bool {
	_, ok := cg.stages[name]
	return ok
}

// stage returns the stage for the given name.
func (cg *CompiledGraph) stage(name string) (Stage, bool) {
	s, ok := cg.stages[name]
	return s, ok
}

// next evaluates the transition for a completed stage against the
// merged state.
func (cg *CompiledGraph) next(from string, state ThreadState) (string, error) {
	transition, ok := cg.transitions[from]
	if !ok {
		return "", &TransitionError{FromStage: from, Err: ErrStageNotFound}
	}

	target := transition(state)
	if target == "" {
		return "", &TransitionError{FromStage: from, Returned: target, Err: ErrInvalidTransition}
	}
	if target != End {
		if _, ok := cg.stages[target]; !ok {
			return "", &TransitionError{FromStage: from, Returned: target, Err: ErrInvalidTransition}
		}
	}
	return target, nil
}
