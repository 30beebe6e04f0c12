// Package trigger decides whether an incoming event should start a pipeline
// run, and computes the run metadata that every later stage consumes.
package trigger

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// EventKind identifies the kind of event delivered to the coordinator.
type EventKind string

const (
	// TagPush is a push of a git tag.
	TagPush EventKind = "tag-push"
	// PullRequest is a pull request open/update event.
	PullRequest EventKind = "pull-request"
)

// Event is the raw descriptor handed to the evaluator.
type Event struct {
	Kind EventKind
	Ref  string
}

// RunContext is the immutable per-run metadata computed from an accepted
// event. It is created once and never mutated afterwards.
type RunContext struct {
	// Event records which kind of event started the run.
	Event EventKind
	// Tag is the full tag name for publishing runs, e.g. "libsql-server-1.2.3".
	// Empty for pull-request runs.
	Tag string
	// App and Version are the two halves of the tag, split at the version
	// boundary. Both empty for pull-request runs.
	App     string
	Version string
	// Publishing is true only for tag pushes matching the version-tag pattern.
	Publishing bool
}

// ErrRejected is returned when an event matches no recognized pattern. The
// caller must not start a pipeline in that case.
var ErrRejected = errors.New("trigger: event does not start a pipeline")

// Evaluate produces a RunContext for the given event, or ErrRejected.
// It performs no I/O.
func Evaluate(ev Event) (*RunContext, error) {
	switch ev.Kind {
	case PullRequest:
		return &RunContext{Event: PullRequest}, nil
	case TagPush:
		app, version, ok := SplitTag(ev.Ref)
		if !ok {
			return nil, fmt.Errorf("%w: tag %q does not match <name>-<semver>", ErrRejected, ev.Ref)
		}
		return &RunContext{
			Event:      TagPush,
			Tag:        ev.Ref,
			App:        app,
			Version:    version,
			Publishing: true,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrRejected, ev.Kind)
	}
}

// SplitTag splits a version tag of the form "<name>-<semver>" into its name
// and version halves. The version half must be a strict semantic version
// (major.minor.patch with optional prerelease and build suffixes). The split
// point is the first '-' whose suffix parses as such a version, so
// "libsql-server-0.1.0-rc.1" yields ("libsql-server", "0.1.0-rc.1").
func SplitTag(ref string) (name, version string, ok bool) {
	for i := 0; i < len(ref); i++ {
		if ref[i] != '-' || i == 0 || i == len(ref)-1 {
			continue
		}
		candidate := ref[i+1:]
		if _, err := semver.StrictNewVersion(candidate); err == nil {
			return ref[:i], candidate, true
		}
	}
	return "", "", false
}
