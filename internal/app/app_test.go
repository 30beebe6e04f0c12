package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/releasegrid/internal/hcl"
	"github.com/vk/releasegrid/internal/trigger"
)

func writePipeline(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func testConfig(t *testing.T, pipelinePath string, event trigger.EventKind, ref string) *Config {
	t.Helper()
	cfg, err := NewConfig(Config{
		PipelinePath: pipelinePath,
		Event:        event,
		Ref:          ref,
		StoreKind:    "memory",
		LogFormat:    "text",
		LogLevel:     "error",
		WorkerCount:  2,
	})
	require.NoError(t, err)
	return cfg
}

func TestAppRunsOpenGatePipeline(t *testing.T) {
	path := writePipeline(t, `
stage "gate" "publish" {
  arguments {
    condition = run.is_publishing
  }
}
`)
	cfg := testConfig(t, path, trigger.TagPush, "app-1.0.0")
	a := NewApp(io.Discard, cfg, hcl.NewLoader())

	require.NoError(t, a.Run(context.Background(), cfg))
}

func TestAppClosedGateSkipsDownstreamStages(t *testing.T) {
	// The release stage points at an unreachable host; the run only
	// succeeds because the closed gate keeps it from ever starting.
	path := writePipeline(t, `
stage "gate" "publish" {
  arguments {
    condition = run.is_publishing
  }
}

stage "release" "github" {
  depends_on = ["gate.publish"]

  arguments {
    api_base = "http://127.0.0.1:1"
    owner    = "o"
    repo     = "r"
  }
}
`)
	cfg := testConfig(t, path, trigger.PullRequest, "refs/pull/7/head")
	a := NewApp(io.Discard, cfg, hcl.NewLoader())

	require.NoError(t, a.Run(context.Background(), cfg))
}

func TestAppRejectedEventIsCleanNonStart(t *testing.T) {
	path := writePipeline(t, `
stage "gate" "publish" {
  arguments {
    condition = run.is_publishing
  }
}
`)
	cfg := testConfig(t, path, trigger.TagPush, "nightly")
	a := NewApp(io.Discard, cfg, hcl.NewLoader())

	require.NoError(t, a.Run(context.Background(), cfg))
}

func TestAppUnknownStageTypePanicsAtStartup(t *testing.T) {
	path := writePipeline(t, `stage "teleport" "x" {}`)
	cfg := testConfig(t, path, trigger.TagPush, "app-1.0.0")

	assert.Panics(t, func() {
		NewApp(io.Discard, cfg, hcl.NewLoader())
	})
}

func TestNewConfigValidation(t *testing.T) {
	_, err := NewConfig(Config{Event: trigger.TagPush})
	assert.Error(t, err)

	_, err = NewConfig(Config{PipelinePath: "p.hcl", Event: "cron"})
	assert.Error(t, err)

	_, err = NewConfig(Config{PipelinePath: "p.hcl", Event: trigger.TagPush, StoreKind: "s3"})
	assert.Error(t, err)

	cfg, err := NewConfig(Config{PipelinePath: "p.hcl", Event: trigger.PullRequest})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreKind)
}
