package dag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vk/releasegrid/internal/ctxlog"
	"github.com/vk/releasegrid/internal/pipeline"
	"github.com/vk/releasegrid/internal/registry"
)

// Executor runs a stage graph with a pool of concurrent workers. A stage
// becomes runnable when all of its dependencies have terminated
// successfully; failures and closed gates prevent dependents from ever
// starting, without cancelling work already in flight on other branches.
type Executor struct {
	Graph      *Graph
	numWorkers int
	registry   *registry.Registry
	runtime    *pipeline.Runtime
	wg         sync.WaitGroup

	failMu       sync.Mutex
	firstFailure error
}

// New creates an executor for the given graph.
func New(graph *Graph, numWorkers int, r *registry.Registry, rt *pipeline.Runtime) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Executor{
		Graph:      graph,
		numWorkers: numWorkers,
		registry:   r,
		runtime:    rt,
	}
}

// Run executes the entire graph and returns an error if any stage failed.
// Skipped stages (closed gates, benign no-ops, victims of upstream
// failures) are not themselves errors.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *Node, len(e.Graph.Nodes))

	logger.Debug("Initializing executor, finding root nodes...")
	rootNodeCount := 0
	for _, node := range e.Graph.Nodes {
		if node.depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", node.ID)
			readyChan <- node
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(e.Graph.Nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, readyChan, i)
	}

	logger.Info("Waiting for all stages to terminate...")
	e.wg.Wait()
	close(readyChan)
	logger.Info("All stages terminated.")

	return e.collectFailures(ctx)
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *Node, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for node := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", node.ID)

		// A node queued by one parent may already have been skipped
		// through another parent's failure.
		if !node.start() {
			workerLogger.Debug("Node already terminated, not executing.", "state", node.State())
			continue
		}

		if ctx.Err() != nil {
			node.finish(Skipped, fmt.Errorf("skipped: %w", ctx.Err()), &e.wg)
			e.skipDependents(ctx, node, fmt.Errorf("skipped: %w", ctx.Err()))
			continue
		}

		workerLogger.Debug("Worker picked up stage for execution.")
		outcome, err := e.runStageNode(ctx, node)

		if err != nil {
			workerLogger.Error("Stage execution failed.", "error", err)
			e.recordFailure(err)
			node.finish(Failed, err, &e.wg)
			e.skipDependents(ctx, node, fmt.Errorf("skipped due to upstream failure of '%s'", node.ID))
			continue
		}

		node.Outcome = outcome
		switch outcome {
		case pipeline.Halted:
			workerLogger.Info("⏸️ Gate closed, downstream stages will not run.")
			node.finish(Succeeded, nil, &e.wg)
			e.skipDependents(ctx, node, fmt.Errorf("skipped: gate '%s' closed", node.ID))
			continue
		case pipeline.Skipped:
			workerLogger.Info("Stage had nothing to do.")
			node.finish(Skipped, nil, &e.wg)
		default:
			workerLogger.Debug("Stage execution succeeded.")
			node.finish(Succeeded, nil, &e.wg)
		}

		e.unlockDependents(ctx, node, readyChan)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// unlockDependents releases dependents whose last dependency just
// terminated in a way that lets them run.
func (e *Executor) unlockDependents(ctx context.Context, node *Node, readyChan chan *Node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range node.Dependents {
		if dependent.DecrementDepCount() == 0 {
			logger.Debug("Unlocking dependent stage.", "dependentID", dependent.ID)
			readyChan <- dependent
		}
	}
}

// skipDependents recursively records all downstream nodes as skipped. This
// is prevention of new work, not cancellation: stages already running on
// other branches are unaffected.
func (e *Executor) skipDependents(ctx context.Context, node *Node, reason error) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range node.Dependents {
		if dependent.finish(Skipped, reason, &e.wg) {
			logger.Warn("Skipping dependent stage.", "nodeID", dependent.ID, "dependency", node.ID)
			e.skipDependents(ctx, dependent, reason)
		}
	}
}

// recordFailure remembers the first stage error observed, in execution
// order, as the run's root cause.
func (e *Executor) recordFailure(err error) {
	e.failMu.Lock()
	if e.firstFailure == nil {
		e.firstFailure = err
	}
	e.failMu.Unlock()
}

// collectFailures aggregates failed nodes into a single error, with the
// first real failure as the root cause.
func (e *Executor) collectFailures(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	var failedNodes []string
	for _, node := range e.Graph.Nodes {
		switch node.State() {
		case Failed:
			logger.Error("Stage failed execution.", "nodeID", node.ID, "error", node.Error)
			failedNodes = append(failedNodes, node.ID)
		case Skipped:
			if node.Error != nil {
				logger.Warn("Stage did not run.", "nodeID", node.ID, "reason", node.Error)
			}
		}
	}

	if len(failedNodes) > 0 {
		sort.Strings(failedNodes)
		rootCause := e.firstFailure
		if rootCause == nil {
			rootCause = e.Graph.Nodes[failedNodes[0]].Error
		}
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedNodes, ", "), rootCause)
	}
	return nil
}
