// Package globalbuild runs the build tool once over all previously
// produced artifacts to create platform-agnostic ones, such as checksum
// files spanning every platform binary.
package globalbuild

import (
	"context"
	"fmt"
	"path/filepath"

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
	// Tool is the build executable.
	Tool string `hcl:"tool"`
	// Args select the global-artifacts build mode,
	// e.g. ["build", "--artifacts=global", "--output-format=json"].
	Args []string `hcl:"args,optional"`
}

// OnRunGlobalBuild is the handler for the 'globalbuild' stage.
func OnRunGlobalBuild(ctx context.Context, rt *pipeline.Runtime, input *Input) (pipeline.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	staging, err := rt.StageDir("globalbuild")
	if err != nil {
		return pipeline.Completed, err
	}

	downloaded, err := store.DownloadAll(ctx, rt.Store, staging)
	if err != nil {
		return pipeline.Completed, fmt.Errorf("staging artifacts: %w", err)
	}
	logger.Debug("Staged artifacts for global build.", "count", len(downloaded), "dir", staging)

	result, err := command.Run(ctx, input.Tool, input.Args, command.WithDir(staging))
	if err != nil {
		return pipeline.Completed, fmt.Errorf("global build failed: %w", err)
	}

	buildResult, err := manifest.ParseBuildResult([]byte(result.Stdout))
	if err != nil {
		return pipeline.Completed, err
	}

	uploaded := 0
	for _, path := range buildResult.Paths() {
		if !filepath.IsAbs(path) {
			path = filepath.Join(staging, path)
		}
		key := filepath.ToSlash(filepath.Base(path))
		// Tools may list staged inputs alongside what they produced; only
		// entries new to the store are uploaded.
		exists, err := rt.Store.Has(ctx, key)
		if err != nil {
			return pipeline.Completed, err
		}
		if exists {
			continue
		}
		if err := store.PutFile(ctx, rt.Store, key, path); err != nil {
			return pipeline.Completed, fmt.Errorf("uploading global artifact %q: %w", path, err)
		}
		uploaded++
	}

	logger.Info("Global build finished.", "new_artifacts", uploaded)
	return pipeline.Completed, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("globalbuild", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunGlobalBuild,
	})
}
