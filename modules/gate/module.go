// Package gate implements the publish gate: a pure condition stage that
// halts all downstream publish targets on pull-request preview runs, and on
// publishing runs whose manifest forbids prerelease publication.
package gate

import (
	"context"
	"errors"

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
	// Condition is an HCL expression over the run metadata, typically
	// `run.is_publishing`.
	Condition bool `hcl:"condition"`
	// ManifestKey overrides the store key of the planner manifest.
	ManifestKey string `hcl:"manifest_key,optional"`
}

// OnRunGate is the handler for the 'gate' stage. A closed gate is a
// designed no-op, not an error: the handler reports Halted and the engine
// records every dependent as skipped.
func OnRunGate(ctx context.Context, rt *pipeline.Runtime, input *Input) (pipeline.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	if !input.Condition {
		logger.Info("Gate closed: not a publishing run.")
		return pipeline.Halted, nil
	}

	key := input.ManifestKey
	if key == "" {
		key = manifest.WellKnownKey
	}
	m, err := manifest.Load(ctx, rt.Store, key)
	if err != nil {
		// A publishing run without a planner manifest never gets this far
		// in a healthy pipeline; a gate wired without a plan stage treats
		// the missing manifest as "no policy to enforce".
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("No planner manifest found, gate open on condition alone.", "key", key)
			return pipeline.Completed, nil
		}
		return pipeline.Completed, err
	}

	if m.HasPrerelease() && !m.PublishPrereleases {
		logger.Info("Gate closed: prerelease versions present and prerelease publishing is disabled.")
		return pipeline.Halted, nil
	}

	logger.Info("Gate open.")
	return pipeline.Completed, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("gate", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunGate,
	})
}
