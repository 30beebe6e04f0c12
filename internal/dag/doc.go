// Package dag builds and executes the stage dependency graph.
//
// A pipeline run is a directed acyclic graph of stages. Build constructs
// the graph from the loaded pipeline model and validates it (unknown
// references, self-references, cycles). Executor runs it with a worker
// pool: a stage is dispatched once its dependency counter reaches zero,
// and terminal transitions (succeeded, skipped, failed) happen exactly
// once per node.
//
// Failure handling is prevention, not cancellation: when a stage fails or
// a gate closes, every transitive dependent is recorded as skipped and
// never dispatched, while unrelated branches keep running to completion.
package dag
