// Package manifest defines the structured documents exchanged with the
// external planning and build tools, and the helpers stages use to read
// them back out of the artifact store.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/vk/releasegrid/internal/store"
)

// WellKnownKey is the artifact store key under which the planner's output is
// persisted so later stages can read it without re-invoking the planner.
const WellKnownKey = "dist-manifest.json"

// jobManifestSuffix marks the intermediate per-job manifests written by the
// local build stage. The release publisher filters these out by name before
// publishing; the store entries themselves are never deleted.
const jobManifestSuffix = "-dist-manifest.json"

// IsJobManifest reports whether a store key names a per-job intermediate
// manifest. The top-level "dist-manifest.json" is not one.
func IsJobManifest(key string) bool {
	return strings.HasSuffix(key, jobManifestSuffix)
}

// Release is one planned application release.
type Release struct {
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
}

// BuildJob is one entry of the build matrix produced by the planner. It is
// consumed exactly once by a build executor and never mutated.
type BuildJob struct {
	Runner          string   `json:"runner"`
	DistArgs        []string `json:"dist_args"`
	InstallDist     string   `json:"install_dist"`
	PackagesInstall string   `json:"packages_install"`
	Targets         []string `json:"targets"`
}

// Namespace returns the disjoint store key prefix owned by this job. Jobs
// writing the same store concurrently never share a namespace.
func (j BuildJob) Namespace() string {
	if len(j.Targets) > 0 {
		return strings.Join(j.Targets, "-")
	}
	return sanitize(j.Runner)
}

// JobManifestKey returns the store key for this job's intermediate manifest.
func (j BuildJob) JobManifestKey() string {
	return j.Namespace() + jobManifestSuffix
}

// CI groups the planner output that drives continuous-integration stages.
type CI struct {
	ArtifactsMatrix []BuildJob `json:"artifacts_matrix"`
}

// Manifest is the planner's structured output. It is owned by the
// coordinator for the run's lifetime and read-only to all stages.
type Manifest struct {
	Releases                 []Release `json:"releases"`
	CI                       CI        `json:"ci"`
	AnnouncementIsPrerelease bool      `json:"announcement_is_prerelease"`
	PublishPrereleases       bool      `json:"publish_prereleases"`
}

// Parse decodes a planner document. Unknown fields are tolerated; a document
// that is not a JSON object at all is a fatal planner failure.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: unparsable planner output: %w", err)
	}
	return &m, nil
}

// Load reads and parses the manifest previously persisted under key.
func Load(ctx context.Context, s store.Store, key string) (*Manifest, error) {
	data, err := store.GetBytes(ctx, s, key)
	if err != nil {
		return nil, fmt.Errorf("manifest: reading %q: %w", key, err)
	}
	return Parse(data)
}

// HasPrerelease reports whether any planned release version carries a
// prerelease suffix.
func (m *Manifest) HasPrerelease() bool {
	for _, rel := range m.Releases {
		v, err := semver.NewVersion(rel.AppVersion)
		if err != nil {
			// Unparsable versions fall back to a textual check.
			if strings.Contains(rel.AppVersion, "-") {
				return true
			}
			continue
		}
		if v.Prerelease() != "" {
			return true
		}
	}
	return false
}

// Prerelease reports whether the published release object should be marked
// as a prerelease.
func (m *Manifest) Prerelease() bool {
	return m.AnnouncementIsPrerelease || m.HasPrerelease()
}

// BuildArtifact is one artifact entry reported by the build tool. Tools emit
// null paths for artifacts they planned but did not produce.
type BuildArtifact struct {
	Path *string `json:"path"`
}

// BuildResult is the build tool's structured output.
type BuildResult struct {
	Artifacts []BuildArtifact `json:"artifacts"`
}

// ParseBuildResult decodes a build tool document.
func ParseBuildResult(data []byte) (*BuildResult, error) {
	var r BuildResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("manifest: unparsable build output: %w", err)
	}
	return &r, nil
}

// Paths returns the produced artifact paths with null entries filtered out.
func (r *BuildResult) Paths() []string {
	var paths []string
	for _, a := range r.Artifacts {
		if a.Path != nil && *a.Path != "" {
			paths = append(paths, *a.Path)
		}
	}
	return paths
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
