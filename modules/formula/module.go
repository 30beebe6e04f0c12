// Package formula pushes generated package-manager formula files into a
// separate tap repository, one commit per released application.
package formula

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

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
	// RepoURL is the clone URL of the tap repository.
	RepoURL string `hcl:"repo_url"`
	// Branch is the branch to commit to. Defaults to "main".
	Branch string `hcl:"branch,optional"`
	// TokenEnv names the environment variable holding the push token.
	TokenEnv string `hcl:"token_env,optional"`
	// AuthorName and AuthorEmail form the commit signature.
	AuthorName  string `hcl:"author_name,optional"`
	AuthorEmail string `hcl:"author_email,optional"`
	// ManifestKey overrides the store key of the planner manifest.
	ManifestKey string `hcl:"manifest_key,optional"`
}

// OnRunFormula is the handler for the 'formula' stage. A run whose
// artifacts include no formula files reports Skipped rather than failing,
// since not every project ships one.
func OnRunFormula(ctx context.Context, rt *pipeline.Runtime, input *Input) (pipeline.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	key := input.ManifestKey
	if key == "" {
		key = manifest.WellKnownKey
	}
	m, err := manifest.Load(ctx, rt.Store, key)
	if err != nil {
		return pipeline.Completed, err
	}
	if len(m.Releases) == 0 {
		logger.Info("No releases in manifest, nothing to update.")
		return pipeline.Skipped, nil
	}

	cloneDir, err := rt.StageDir("formula")
	if err != nil {
		return pipeline.Completed, err
	}

	branch := input.Branch
	if branch == "" {
		branch = "main"
	}
	auth := basicAuth(rt.Env(input.TokenEnv))
	repo, err := git.PlainCloneContext(ctx, cloneDir, false, &git.CloneOptions{
		URL:           input.RepoURL,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	if err != nil {
		return pipeline.Completed, fmt.Errorf("cloning tap repository: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return pipeline.Completed, err
	}

	committed := 0
	for _, rel := range m.Releases {
		formulaKey := rel.AppName + ".rb"
		data, err := store.GetBytes(ctx, rt.Store, formulaKey)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logger.Warn("No formula artifact for release, skipping.", "app", rel.AppName, "key", formulaKey)
				continue
			}
			return pipeline.Completed, err
		}

		if err := os.WriteFile(filepath.Join(cloneDir, formulaKey), data, 0o644); err != nil {
			return pipeline.Completed, fmt.Errorf("writing formula %q: %w", formulaKey, err)
		}
		if _, err := worktree.Add(formulaKey); err != nil {
			return pipeline.Completed, fmt.Errorf("staging formula %q: %w", formulaKey, err)
		}

		status, err := worktree.Status()
		if err != nil {
			return pipeline.Completed, err
		}
		if status.IsClean() {
			// Re-run for an already updated tap.
			logger.Info("Formula unchanged, no commit.", "app", rel.AppName)
			continue
		}

		message := fmt.Sprintf("%s %s", rel.AppName, rel.AppVersion)
		if _, err := worktree.Commit(message, &git.CommitOptions{
			Author: signature(input),
		}); err != nil {
			return pipeline.Completed, fmt.Errorf("committing formula %q: %w", formulaKey, err)
		}
		logger.Info("Committed formula update.", "app", rel.AppName, "version", rel.AppVersion)
		committed++
	}

	if committed == 0 {
		logger.Info("No formula changes to push.")
		return pipeline.Skipped, nil
	}

	if err := repo.PushContext(ctx, &git.PushOptions{Auth: auth}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			logger.Info("Tap repository already up to date.")
			return pipeline.Completed, nil
		}
		return pipeline.Completed, fmt.Errorf("pushing tap repository: %w", err)
	}

	logger.Info("🍺 Formula update pushed.", "commits", committed)
	return pipeline.Completed, nil
}

func basicAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	// Hosting providers accept the token as the password with any username.
	return &http.BasicAuth{Username: "token", Password: token}
}

func signature(input *Input) *object.Signature {
	name := input.AuthorName
	if name == "" {
		name = "releasegrid"
	}
	email := input.AuthorEmail
	if email == "" {
		email = "releasegrid@localhost"
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("formula", &registry.RegisteredStage{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunFormula,
	})
}
