// Package build runs the per-platform build matrix: one concurrent executor
// per matrix entry, each working in a private directory and uploading
// flat-keyed artifacts the matrix must keep unique by name, plus a job
// manifest under the job's own namespace. Sibling jobs are never cancelled
// by one job's failure, so partial artifacts remain inspectable after a
// failed run.
package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

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
	// Tool is the build executable invoked with each job's dist_args.
	Tool string `hcl:"tool"`
	// ManifestKey overrides the store key the plan stage wrote to.
	ManifestKey string `hcl:"manifest_key,optional"`
}

// OnRunBuild is the handler for the 'build' stage.
func OnRunBuild(ctx context.Context, rt *pipeline.Runtime, input *Input) (pipeline.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	key := input.ManifestKey
	if key == "" {
		key = manifest.WellKnownKey
	}
	m, err := manifest.Load(ctx, rt.Store, key)
	if err != nil {
		return pipeline.Completed, err
	}

	if len(m.CI.ArtifactsMatrix) == 0 || len(m.Releases) == 0 {
		logger.Info("Nothing to build for this run.", "releases", len(m.Releases), "matrix_jobs", len(m.CI.ArtifactsMatrix))
		return pipeline.Skipped, nil
	}

	logger.Info("🔨 Fanning out build jobs.", "jobs", len(m.CI.ArtifactsMatrix))

	cl := newClaims()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, job := range m.CI.ArtifactsMatrix {
		wg.Add(1)
		go func(job manifest.BuildJob) {
			defer wg.Done()
			if err := runJob(ctx, rt, input, job, cl); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("job %s: %w", job.Namespace(), err))
				mu.Unlock()
			}
		}(job)
	}
	wg.Wait()

	if len(errs) > 0 {
		// Completed artifacts of sibling jobs stay in the store; there is
		// no rollback.
		return pipeline.Completed, errors.Join(errs...)
	}
	logger.Info("All build jobs finished.")
	return pipeline.Completed, nil
}

// runJob executes one matrix entry: install its dependencies, run the
// build tool in a private working directory, and upload the reported
// artifacts plus a per-job manifest.
func runJob(ctx context.Context, rt *pipeline.Runtime, input *Input, job manifest.BuildJob, cl *claims) error {
	logger := ctxlog.FromContext(ctx).With("job", job.Namespace())
	logger.Info("▶️ Starting build job", "runner", job.Runner)

	// Concurrent executors share nothing but the store: each job gets its
	// own working directory for installs, the build, and relative output
	// paths.
	workDir, err := rt.StageDir("build/" + job.Namespace())
	if err != nil {
		return err
	}

	if job.PackagesInstall != "" {
		if _, err := command.Shell(ctx, job.PackagesInstall, command.WithDir(workDir)); err != nil {
			return fmt.Errorf("installing packages: %w", err)
		}
	}
	if job.InstallDist != "" {
		if _, err := command.Shell(ctx, job.InstallDist, command.WithDir(workDir)); err != nil {
			return fmt.Errorf("installing build tool: %w", err)
		}
	}

	args := append([]string(nil), job.DistArgs...)
	if rt.Run.Publishing {
		args = append(args, "--tag", rt.Run.Tag)
	}
	result, err := command.Run(ctx, input.Tool, args, command.WithDir(workDir))
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	buildResult, err := manifest.ParseBuildResult([]byte(result.Stdout))
	if err != nil {
		return err
	}

	// Artifact keys are flat; the planner is expected to give artifacts
	// platform-unique names. Claiming every key before the first upload
	// turns a misplanned matrix into one clear error instead of a
	// spurious immutability violation halfway through.
	paths := buildResult.Paths()
	for _, path := range paths {
		if err := cl.claim(filepath.ToSlash(filepath.Base(path)), job.Namespace()); err != nil {
			return err
		}
	}

	for _, path := range paths {
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		key := filepath.ToSlash(filepath.Base(path))
		if err := store.PutFile(ctx, rt.Store, key, path); err != nil {
			return fmt.Errorf("uploading artifact %q: %w", path, err)
		}
		logger.Debug("Uploaded artifact.", "key", key)
	}

	// The per-job manifest lands under the job's own namespace so
	// concurrent jobs never collide in the shared store.
	if err := store.PutBytes(ctx, rt.Store, job.JobManifestKey(), []byte(result.Stdout)); err != nil {
		return fmt.Errorf("uploading job manifest: %w", err)
	}

	logger.Info("✅ Build job finished", "artifacts", len(buildResult.Paths()))
	return nil
}

// claims tracks which job owns each artifact key within one stage run, so
// a matrix whose jobs produce colliding artifact names fails with a
// diagnosis instead of tripping over store immutability.
type claims struct {
	mu    sync.Mutex
	owner map[string]string
}

func newClaims() *claims {
	return &claims{owner: make(map[string]string)}
}

func (c *claims) claim(key, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.owner[key]; ok && prev != namespace {
		return fmt.Errorf("artifact %q produced by both %s and %s; artifact names must be unique across the matrix", key, prev, namespace)
	}
	c.owner[key] = namespace
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("build", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunBuild,
	})
}
