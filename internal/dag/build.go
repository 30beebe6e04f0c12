package dag

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/releasegrid/internal/config"
	"github.com/vk/releasegrid/internal/ctxlog"
	"github.com/vk/releasegrid/internal/registry"
)

// Build constructs a complete, validated dependency graph from a pipeline
// model.
func Build(ctx context.Context, model *config.Model, r *registry.Registry) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")
	graph := &Graph{Nodes: make(map[string]*Node)}

	// First pass: create all stage nodes.
	for _, stage := range model.Stages {
		id := nodeID(stage.Type, stage.Name)
		if _, exists := graph.Nodes[id]; exists {
			logger.Warn("Duplicate stage definition found, it will be overwritten.", "id", id)
		}
		graph.Nodes[id] = &Node{
			ID:          id,
			Name:        stage.Name,
			StageConfig: stage,
			Deps:        make(map[string]*Node),
			Dependents:  make(map[string]*Node),
		}
	}
	logger.Debug("Build: Node creation complete.", "node_count", len(graph.Nodes))

	// Second pass: link explicit dependencies.
	for _, node := range graph.Nodes {
		for _, ref := range node.StageConfig.DependsOn {
			dep, err := resolveRef(graph, ref)
			if err != nil {
				return nil, fmt.Errorf("stage '%s': %w", node.ID, err)
			}
			if dep == node {
				return nil, fmt.Errorf("stage '%s' depends on itself", node.ID)
			}
			node.Deps[dep.ID] = dep
			dep.Dependents[node.ID] = node
		}
	}
	logger.Debug("Build: Node linking complete.")

	// Third pass: initialize counters.
	for _, node := range graph.Nodes {
		node.SetInitialCounters()
	}

	if err := graph.detectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Cycle detection passed.")

	logger.Debug("Build: Graph construction successful.")
	return graph, nil
}

func nodeID(stageType, name string) string {
	return fmt.Sprintf("stage.%s.%s", stageType, name)
}

// resolveRef accepts both "type.name" and the canonical "stage.type.name".
func resolveRef(graph *Graph, ref string) (*Node, error) {
	id := ref
	if !strings.HasPrefix(ref, "stage.") {
		id = "stage." + ref
	}
	node, ok := graph.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("depends_on references unknown stage '%s'", ref)
	}
	return node, nil
}

// detectCycles checks the graph for any cycles using a classic depth-first
// search with permanent and temporary marks.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("cycle detected involving stage '%s'", n.ID)
		}

		temporary[n.ID] = true
		for _, dependent := range n.Dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, n := range g.Nodes {
		if !permanent[n.ID] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}
