package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTag(t *testing.T) {
	testCases := []struct {
		ref     string
		name    string
		version string
		ok      bool
	}{
		{"app-1.2.3", "app", "1.2.3", true},
		{"libsql-server-0.1.0", "libsql-server", "0.1.0", true},
		{"libsql-server-0.1.0-rc.1", "libsql-server", "0.1.0-rc.1", true},
		{"tool-2.0.0+build.5", "tool", "2.0.0+build.5", true},
		{"v1.2.3", "", "", false},
		{"1.2.3", "", "", false},
		{"app-1.2", "", "", false},
		{"app-latest", "", "", false},
		{"-1.2.3", "", "", false},
		{"app-", "", "", false},
		{"", "", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.ref, func(t *testing.T) {
			name, version, ok := SplitTag(tc.ref)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.name, name)
			assert.Equal(t, tc.version, version)
		})
	}
}

func TestEvaluateTagPush(t *testing.T) {
	run, err := Evaluate(Event{Kind: TagPush, Ref: "libsql-server-0.1.0-rc.1"})
	require.NoError(t, err)

	assert.Equal(t, TagPush, run.Event)
	assert.Equal(t, "libsql-server-0.1.0-rc.1", run.Tag)
	assert.Equal(t, "libsql-server", run.App)
	assert.Equal(t, "0.1.0-rc.1", run.Version)
	assert.True(t, run.Publishing)
}

func TestEvaluateRejectsNonVersionTag(t *testing.T) {
	run, err := Evaluate(Event{Kind: TagPush, Ref: "nightly"})
	require.Nil(t, run)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestEvaluatePullRequest(t *testing.T) {
	run, err := Evaluate(Event{Kind: PullRequest, Ref: "refs/pull/42/head"})
	require.NoError(t, err)

	assert.Equal(t, PullRequest, run.Event)
	assert.False(t, run.Publishing)
	assert.Empty(t, run.Tag)
	assert.Empty(t, run.App)
	assert.Empty(t, run.Version)
}

func TestEvaluateRejectsUnknownEventKind(t *testing.T) {
	_, err := Evaluate(Event{Kind: "workflow-dispatch"})
	assert.ErrorIs(t, err, ErrRejected)
}
