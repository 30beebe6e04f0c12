package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/releasegrid/internal/manifest"
	"github.com/vk/releasegrid/internal/pipeline"
	"github.com/vk/releasegrid/internal/store"
	"github.com/vk/releasegrid/internal/trigger"
)

func publishingRuntime(t *testing.T) *pipeline.Runtime {
	t.Helper()
	run := &trigger.RunContext{Event: trigger.TagPush, Tag: "app-1.0.0", App: "app", Version: "1.0.0", Publishing: true}
	return pipeline.NewRuntime(run, store.NewMemory(), t.TempDir())
}

func seedManifest(t *testing.T, rt *pipeline.Runtime, doc string) {
	t.Helper()
	require.NoError(t, store.PutBytes(context.Background(), rt.Store, manifest.WellKnownKey, []byte(doc)))
}

func TestGateClosedOnFalseCondition(t *testing.T) {
	rt := publishingRuntime(t)

	outcome, err := OnRunGate(context.Background(), rt, &Input{Condition: false})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Halted, outcome)
}

func TestGateOpenForStableRelease(t *testing.T) {
	rt := publishingRuntime(t)
	seedManifest(t, rt, `{"releases":[{"app_name":"app","app_version":"1.0.0"}]}`)

	outcome, err := OnRunGate(context.Background(), rt, &Input{Condition: true})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Completed, outcome)
}

func TestGateClosedForPrereleaseByDefault(t *testing.T) {
	rt := publishingRuntime(t)
	seedManifest(t, rt, `{"releases":[{"app_name":"app","app_version":"1.0.0-rc.1"}]}`)

	outcome, err := OnRunGate(context.Background(), rt, &Input{Condition: true})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Halted, outcome)
}

func TestGateOpenForPrereleaseWhenAllowed(t *testing.T) {
	rt := publishingRuntime(t)
	seedManifest(t, rt, `{"releases":[{"app_name":"app","app_version":"1.0.0-rc.1"}],"publish_prereleases":true}`)

	outcome, err := OnRunGate(context.Background(), rt, &Input{Condition: true})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Completed, outcome)
}

func TestGateOpenWithoutManifest(t *testing.T) {
	rt := publishingRuntime(t)

	outcome, err := OnRunGate(context.Background(), rt, &Input{Condition: true})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Completed, outcome)
}
