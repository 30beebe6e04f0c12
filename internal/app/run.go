package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vk/releasegrid/internal/ctxlog"
	"github.com/vk/releasegrid/internal/dag"
	"github.com/vk/releasegrid/internal/pipeline"
	"github.com/vk/releasegrid/internal/store"
	"github.com/vk/releasegrid/internal/trigger"
)

// Run evaluates the trigger and, when accepted, executes the pipeline graph.
// A rejected event is a clean non-start, not an error.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if appConfig.HealthcheckPort > 0 {
		a.startHealthcheckServer(appConfig.HealthcheckPort)
	}

	run, err := trigger.Evaluate(trigger.Event{Kind: appConfig.Event, Ref: appConfig.Ref})
	if err != nil {
		if errors.Is(err, trigger.ErrRejected) {
			a.logger.Info("Event does not start a pipeline, nothing to do.", "event", appConfig.Event, "ref", appConfig.Ref)
			return nil
		}
		return err
	}
	a.logger.Info("Trigger accepted.",
		"event", run.Event,
		"tag", run.Tag,
		"is_publishing", run.Publishing,
	)

	artifactStore, err := newStore(appConfig)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "releasegrid-*")
	if err != nil {
		return fmt.Errorf("failed to create staging area: %w", err)
	}
	defer os.RemoveAll(workDir)
	runtime := pipeline.NewRuntime(run, artifactStore, workDir)

	a.logger.Debug("Building dependency graph from pipeline model...")
	graph, err := dag.Build(ctx, a.pipeline, a.registry)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	a.logger.Debug("Dependency graph built.", "node_count", len(graph.Nodes))
	a.logger.Info("Stage handlers registered:", "types", a.registry.Types())

	if len(graph.Nodes) == 0 {
		a.logger.Warn("No stages found in pipeline, execution not required.")
		return nil
	}

	a.logger.Info("🚀 Starting concurrent execution...")
	exec := dag.New(graph, appConfig.WorkerCount, a.registry, runtime)
	if err := exec.Run(ctx); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Execution finished.")

	a.logger.Debug("App.Run method finished.")
	return nil
}

// newStore builds the artifact store backend selected by the configuration.
// S3 credentials come from the environment rather than flags so they never
// show up in process listings.
func newStore(appConfig *Config) (store.Store, error) {
	switch appConfig.StoreKind {
	case "fs":
		return store.NewFS(appConfig.StorePath)
	case "s3":
		bucket, prefix, _ := strings.Cut(appConfig.StorePath, "/")
		return store.NewS3(store.S3Config{
			Endpoint:  os.Getenv("RELEASEGRID_S3_ENDPOINT"),
			AccessKey: os.Getenv("RELEASEGRID_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("RELEASEGRID_S3_SECRET_KEY"),
			Bucket:    bucket,
			Prefix:    prefix,
			Secure:    os.Getenv("RELEASEGRID_S3_INSECURE") == "",
		})
	default:
		return store.NewMemory(), nil
	}
}
