package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/releasegrid/internal/trigger"
)

func TestParsePopulatesConfig(t *testing.T) {
	var out bytes.Buffer
	cfg, shouldExit, err := Parse([]string{
		"--event", "tag-push",
		"--ref", "app-1.2.3",
		"--store", "fs",
		"--store-path", "/tmp/artifacts",
		"--workers", "8",
		"--log-level", "debug",
		"pipelines/release.hcl",
	}, &out)
	require.NoError(t, err)
	require.False(t, shouldExit)

	assert.Equal(t, "pipelines/release.hcl", cfg.PipelinePath)
	assert.Equal(t, trigger.TagPush, cfg.Event)
	assert.Equal(t, "app-1.2.3", cfg.Ref)
	assert.Equal(t, "fs", cfg.StoreKind)
	assert.Equal(t, "/tmp/artifacts", cfg.StorePath)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParsePipelineFlagVariants(t *testing.T) {
	var out bytes.Buffer

	cfg, _, err := Parse([]string{"--pipeline", "a.hcl", "--store", "memory"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "a.hcl", cfg.PipelinePath)

	cfg, _, err = Parse([]string{"-p", "b.hcl", "--store", "memory"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "b.hcl", cfg.PipelinePath)
}

func TestParseNoPathPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	cfg, shouldExit, err := Parse(nil, &out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseHelp(t *testing.T) {
	var out bytes.Buffer
	_, shouldExit, err := Parse([]string{"--help"}, &out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
}

func TestParseInvalidValues(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"log-format", []string{"--log-format", "xml", "a.hcl"}},
		{"log-level", []string{"--log-level", "verbose", "a.hcl"}},
		{"event", []string{"--event", "cron", "a.hcl"}},
		{"store", []string{"--store", "ftp", "a.hcl"}},
		{"fs-store-without-path", []string{"--store", "fs", "--store-path", "", "a.hcl"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			_, _, err := Parse(tc.args, &out)
			require.Error(t, err)
			exitErr, ok := err.(*ExitError)
			require.True(t, ok)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}
