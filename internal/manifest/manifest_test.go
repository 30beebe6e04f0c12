package manifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/releasegrid/internal/store"
)

const plannerOutput = `{
	"releases": [{"app_name": "libsql-server", "app_version": "0.1.0"}],
	"ci": {
		"artifacts_matrix": [
			{
				"runner": "ubuntu-22.04",
				"dist_args": ["build", "--artifacts=local", "--target=x86_64-unknown-linux-gnu"],
				"install_dist": "curl -sSfL https://example.com/install.sh | sh",
				"packages_install": "apt-get install -y musl-tools",
				"targets": ["x86_64-unknown-linux-gnu"]
			}
		]
	},
	"announcement_is_prerelease": false,
	"publish_prereleases": false,
	"some_future_field": {"ignored": true}
}`

func TestParseToleratesUnknownFields(t *testing.T) {
	m, err := Parse([]byte(plannerOutput))
	require.NoError(t, err)

	require.Len(t, m.Releases, 1)
	assert.Equal(t, "libsql-server", m.Releases[0].AppName)
	assert.Equal(t, "0.1.0", m.Releases[0].AppVersion)
	require.Len(t, m.CI.ArtifactsMatrix, 1)
	assert.Equal(t, "ubuntu-22.04", m.CI.ArtifactsMatrix[0].Runner)
}

func TestParseRejectsNonJSON(t *testing.T) {
	_, err := Parse([]byte("error: planner exploded"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, store.PutBytes(ctx, s, WellKnownKey, []byte(plannerOutput)))

	m, err := Load(ctx, s, WellKnownKey)
	require.NoError(t, err)
	assert.Len(t, m.Releases, 1)

	_, err = Load(ctx, s, "missing.json")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHasPrerelease(t *testing.T) {
	testCases := []struct {
		version string
		want    bool
	}{
		{"1.2.3", false},
		{"0.1.0-rc.1", true},
		{"2.0.0+build.5", false},
		{"not-a-version", true}, // textual fallback
		{"nightly", false},
	}

	for _, tc := range testCases {
		t.Run(tc.version, func(t *testing.T) {
			m := &Manifest{Releases: []Release{{AppName: "app", AppVersion: tc.version}}}
			assert.Equal(t, tc.want, m.HasPrerelease())
		})
	}
}

func TestPrerelease(t *testing.T) {
	m := &Manifest{Releases: []Release{{AppName: "app", AppVersion: "1.0.0"}}}
	assert.False(t, m.Prerelease())

	m.AnnouncementIsPrerelease = true
	assert.True(t, m.Prerelease())

	m = &Manifest{Releases: []Release{{AppName: "app", AppVersion: "1.0.0-beta.2"}}}
	assert.True(t, m.Prerelease())
}

func TestBuildJobNamespace(t *testing.T) {
	job := BuildJob{Runner: "ubuntu-22.04", Targets: []string{"x86_64-unknown-linux-gnu"}}
	assert.Equal(t, "x86_64-unknown-linux-gnu", job.Namespace())

	job = BuildJob{Runner: "macos-14", Targets: []string{"aarch64-apple-darwin", "x86_64-apple-darwin"}}
	assert.Equal(t, "aarch64-apple-darwin-x86_64-apple-darwin", job.Namespace())

	// No targets: the runner name is sanitized into a key-safe namespace.
	job = BuildJob{Runner: "windows/2022 (arm)"}
	assert.Equal(t, "windows-2022--arm-", job.Namespace())
}

func TestJobManifestKey(t *testing.T) {
	job := BuildJob{Targets: []string{"x86_64-unknown-linux-gnu"}}
	key := job.JobManifestKey()
	assert.Equal(t, "x86_64-unknown-linux-gnu-dist-manifest.json", key)
	assert.True(t, IsJobManifest(key))
	assert.False(t, IsJobManifest(WellKnownKey))
	assert.False(t, IsJobManifest("app-x86_64.tar.gz"))
}

func TestBuildResultPaths(t *testing.T) {
	doc := `{"artifacts": [{"path": "dist/app.tar.gz"}, {"path": null}, {"path": ""}]}`
	r, err := ParseBuildResult([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/app.tar.gz"}, r.Paths())
}
