// Package release publishes the run's artifacts to a source-hosting
// release API with upsert-by-tag semantics: re-running a pipeline for the
// same tag updates the existing release instead of duplicating it, and
// never overwrites hand-authored title or body text.
package release

import (
	"context"
	"fmt"
	"os"
	"sort"

	"resty.dev/v3"

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
	// APIBase is the release host's API root, e.g. "https://api.github.com".
	APIBase string `hcl:"api_base"`
	Owner   string `hcl:"owner"`
	Repo    string `hcl:"repo"`
	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `hcl:"token_env,optional"`
	// ManifestKey overrides the store key of the planner manifest.
	ManifestKey string `hcl:"manifest_key,optional"`
	// UpdateOnlyIfUnreleased refuses to touch an existing release that has
	// already been published (is no longer a draft).
	UpdateOnlyIfUnreleased bool `hcl:"update_only_if_unreleased,optional"`
}

// OnRunRelease is the handler for the 'release' stage.
func OnRunRelease(ctx context.Context, rt *pipeline.Runtime, input *Input) (pipeline.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	key := input.ManifestKey
	if key == "" {
		key = manifest.WellKnownKey
	}
	m, err := manifest.Load(ctx, rt.Store, key)
	if err != nil {
		return pipeline.Completed, err
	}

	staging, err := rt.StageDir("release")
	if err != nil {
		return pipeline.Completed, err
	}
	downloaded, err := store.DownloadAll(ctx, rt.Store, staging)
	if err != nil {
		return pipeline.Completed, fmt.Errorf("staging artifacts: %w", err)
	}

	// Named filtering step: per-job intermediate manifests are not release
	// assets. This trims the local staging copy only; the store itself is
	// append-only and untouched.
	assets := make(map[string]string)
	for storeKey, localPath := range downloaded {
		if manifest.IsJobManifest(storeKey) {
			continue
		}
		assets[storeKey] = localPath
	}

	client := newClient(input.APIBase, rt.Env(input.TokenEnv), input.Owner, input.Repo)
	defer client.close()

	rel, found, err := client.findByTag(ctx, rt.Run.Tag)
	if err != nil {
		return pipeline.Completed, err
	}

	prerelease := m.Prerelease()
	if found {
		if input.UpdateOnlyIfUnreleased && !rel.Draft {
			return pipeline.Completed, fmt.Errorf("release for tag %q is already published", rt.Run.Tag)
		}
		// Updating only the prerelease flag preserves any hand-authored
		// title and body on the existing release.
		if err := client.update(ctx, rel.ID, prerelease); err != nil {
			return pipeline.Completed, err
		}
		logger.Info("Updated existing release.", "tag", rt.Run.Tag, "prerelease", prerelease)
	} else {
		rel, err = client.create(ctx, rt.Run.Tag, prerelease)
		if err != nil {
			return pipeline.Completed, err
		}
		logger.Info("Created release.", "tag", rt.Run.Tag, "prerelease", prerelease)
	}

	if err := client.syncAssets(ctx, rel.ID, assets); err != nil {
		return pipeline.Completed, err
	}

	logger.Info("🚢 Release published.", "tag", rt.Run.Tag, "assets", len(assets))
	return pipeline.Completed, nil
}

// releaseObject is the subset of the host's release resource we touch.
type releaseObject struct {
	ID         int64  `json:"id"`
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

type assetObject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type client struct {
	http  *resty.Client
	owner string
	repo  string
}

func newClient(apiBase, token, owner, repo string) *client {
	httpClient := resty.New().
		SetBaseURL(apiBase).
		SetHeader("Accept", "application/vnd.github+json")
	if token != "" {
		httpClient.SetAuthToken(token)
	}
	return &client{http: httpClient, owner: owner, repo: repo}
}

func (c *client) close() {
	c.http.Close()
}

func (c *client) findByTag(ctx context.Context, tag string) (*releaseObject, bool, error) {
	var rel releaseObject
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&rel).
		Get(fmt.Sprintf("/repos/%s/%s/releases/tags/%s", c.owner, c.repo, tag))
	if err != nil {
		return nil, false, fmt.Errorf("release lookup: %w", err)
	}
	if res.StatusCode() == 404 {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, fmt.Errorf("release lookup: %s: %s", res.Status(), res.String())
	}
	return &rel, true, nil
}

func (c *client) create(ctx context.Context, tag string, prerelease bool) (*releaseObject, error) {
	var rel releaseObject
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"tag_name":   tag,
			"name":       tag,
			"prerelease": prerelease,
		}).
		SetResult(&rel).
		Post(fmt.Sprintf("/repos/%s/%s/releases", c.owner, c.repo))
	if err != nil {
		return nil, fmt.Errorf("creating release: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("creating release: %s: %s", res.Status(), res.String())
	}
	return &rel, nil
}

func (c *client) update(ctx context.Context, id int64, prerelease bool) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"prerelease": prerelease}).
		Patch(fmt.Sprintf("/repos/%s/%s/releases/%d", c.owner, c.repo, id))
	if err != nil {
		return fmt.Errorf("updating release: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("updating release: %s: %s", res.Status(), res.String())
	}
	return nil
}

// syncAssets replaces any existing asset that shares a name with a local
// artifact, then uploads the local set, so a re-run's asset list reflects
// the re-run.
func (c *client) syncAssets(ctx context.Context, id int64, assets map[string]string) error {
	var existing []assetObject
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&existing).
		Get(fmt.Sprintf("/repos/%s/%s/releases/%d/assets", c.owner, c.repo, id))
	if err != nil {
		return fmt.Errorf("listing assets: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("listing assets: %s: %s", res.Status(), res.String())
	}

	byName := make(map[string]int64, len(existing))
	for _, a := range existing {
		byName[a.Name] = a.ID
	}

	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if assetID, ok := byName[name]; ok {
			res, err := c.http.R().
				SetContext(ctx).
				Delete(fmt.Sprintf("/repos/%s/%s/releases/assets/%d", c.owner, c.repo, assetID))
			if err != nil {
				return fmt.Errorf("deleting stale asset %q: %w", name, err)
			}
			if res.IsError() {
				return fmt.Errorf("deleting stale asset %q: %s", name, res.Status())
			}
		}

		data, err := os.ReadFile(assets[name])
		if err != nil {
			return fmt.Errorf("reading artifact %q: %w", name, err)
		}
		res, err := c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/octet-stream").
			SetQueryParam("name", name).
			SetBody(data).
			Post(fmt.Sprintf("/repos/%s/%s/releases/%d/assets", c.owner, c.repo, id))
		if err != nil {
			return fmt.Errorf("uploading asset %q: %w", name, err)
		}
		if res.IsError() {
			return fmt.Errorf("uploading asset %q: %s: %s", name, res.Status(), res.String())
		}
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("release", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunRelease,
	})
}
