// Package plan invokes the external planning tool and persists its manifest
// into the artifact store, where every later stage reads it.
package plan

import (
	"context"
	"fmt"

	"github.com/vk/releasegrid/internal/command"
	"github.com/vk/releasegrid/internal/ctxlog"
	"github.com/vk/releasegrid/internal/manifest"
	"github.com/vk/releasegrid/internal/pipeline"
	"github.com/vk/releasegrid/internal/registry"
	"github.com/vk/releasegrid/internal/store"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	// Tool is the planner executable, e.g. "dist".
	Tool string `hcl:"tool"`
	// Args are passed to the planner verbatim.
	Args []string `hcl:"args,optional"`
	// ManifestKey overrides the store key for the planner output.
	ManifestKey string `hcl:"manifest_key,optional"`
}

// OnRunPlan is the handler for the 'plan' stage.
func OnRunPlan(ctx context.Context, rt *pipeline.Runtime, input *Input) (pipeline.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	args := append([]string(nil), input.Args...)
	if rt.Run.Publishing {
		args = append(args, "--tag", rt.Run.Tag)
	}

	result, err := command.Run(ctx, input.Tool, args)
	if err != nil {
		return pipeline.Completed, fmt.Errorf("planner failed: %w", err)
	}

	m, err := manifest.Parse([]byte(result.Stdout))
	if err != nil {
		return pipeline.Completed, err
	}

	key := input.ManifestKey
	if key == "" {
		key = manifest.WellKnownKey
	}
	if err := store.PutBytes(ctx, rt.Store, key, []byte(result.Stdout)); err != nil {
		return pipeline.Completed, fmt.Errorf("persisting manifest: %w", err)
	}

	logger.Info("Plan complete.",
		"releases", len(m.Releases),
		"matrix_jobs", len(m.CI.ArtifactsMatrix),
		"prerelease", m.Prerelease(),
	)
	return pipeline.Completed, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("plan", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunPlan,
	})
}
