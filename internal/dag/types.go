package dag

import (
	"sync"
	"sync/atomic"

	"github.com/vk/releasegrid/internal/config"
	"github.com/vk/releasegrid/internal/pipeline"
)

// Graph is a collection of stage nodes and their dependency links.
type Graph struct {
	// Nodes stores all nodes in the graph, keyed by their unique ID.
	Nodes map[string]*Node
}

// State represents the execution state of a node in the graph.
type State int32

const (
	// Pending indicates the node is waiting for its dependencies.
	Pending State = iota
	// Running indicates a worker is currently executing the node.
	Running
	// Succeeded indicates the node ran and completed successfully.
	Succeeded
	// Skipped indicates the node never ran: either it reported a benign
	// no-op, an upstream gate closed, or an upstream stage failed.
	Skipped
	// Failed indicates the node ran and failed.
	Failed
)

// String returns the lowercase state name for logs.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Node is a single vertex in the execution graph, representing one stage.
type Node struct {
	// ID is the unique identifier, e.g. "stage.build.local".
	ID string
	// Name is the instance name from the pipeline definition.
	Name string
	// StageConfig is the stage's declaration.
	StageConfig *config.Stage
	// Deps holds the nodes this node depends on (predecessors).
	Deps map[string]*Node
	// Dependents holds the nodes that depend on this node (successors).
	Dependents map[string]*Node

	// Error stores any error from the node's execution, or the reason it
	// was skipped.
	Error error
	// Outcome is the handler-reported outcome, valid once state is
	// Succeeded or Skipped.
	Outcome pipeline.Outcome

	// depCount is an atomic counter of unmet dependencies.
	depCount atomic.Int32
	// state is the node's current execution state, managed atomically.
	state atomic.Int32
	// finishOnce guarantees exactly one terminal transition (and exactly
	// one WaitGroup decrement) per node, whichever path gets there first.
	finishOnce sync.Once
}

// SetInitialCounters seeds the dependency counter before execution starts.
func (n *Node) SetInitialCounters() {
	n.depCount.Store(int32(len(n.Deps)))
}

// DecrementDepCount atomically decrements the dependency counter and
// returns the new value.
func (n *Node) DecrementDepCount() int32 {
	return n.depCount.Add(-1)
}

// State atomically retrieves the node's execution state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// start attempts the Pending -> Running transition. It fails when the node
// was already skipped through another path.
func (n *Node) start() bool {
	return n.state.CompareAndSwap(int32(Pending), int32(Running))
}

// finish performs the node's terminal transition exactly once, releasing
// its WaitGroup slot. It reports whether this call was the one that did it.
func (n *Node) finish(s State, err error, wg *sync.WaitGroup) bool {
	var first bool
	n.finishOnce.Do(func() {
		n.state.Store(int32(s))
		n.Error = err
		wg.Done()
		first = true
	})
	return first
}
