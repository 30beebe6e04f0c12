// Package pipeline defines the contract between the execution engine and
// stage implementations: the per-run Runtime handed to every handler and
// the tri-state Outcome a handler reports back.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/releasegrid/internal/store"
	"github.com/vk/releasegrid/internal/trigger"
)

// Outcome is the result a stage handler reports. It is deliberately
// tri-state so downstream dependency resolution can distinguish "didn't
// need to run" from "ran and passed".
type Outcome int

const (
	// Completed means the stage ran and produced its effects.
	Completed Outcome = iota
	// Skipped means the stage had nothing to do (e.g. an empty build
	// matrix). Dependent stages still run.
	Skipped
	// Halted means a gate stage evaluated false. Dependent stages are
	// recorded as skipped and the run still terminates successfully.
	Halted
)

// String returns the lowercase outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Halted:
		return "halted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Runtime is the only channel between the engine and stage handlers. It is
// created once per run and shared read-only by all stages; the Store is the
// sole shared mutable resource.
type Runtime struct {
	// Run is the immutable run metadata from the trigger evaluator.
	Run *trigger.RunContext
	// Store is the run's artifact store.
	Store store.Store
	// WorkDir is the root of the run's local staging area.
	WorkDir string
	// Getenv resolves secrets named by stage arguments. Defaults to
	// os.Getenv; tests substitute their own lookup.
	Getenv func(string) string
}

// NewRuntime assembles a Runtime with defaults filled in.
func NewRuntime(run *trigger.RunContext, s store.Store, workDir string) *Runtime {
	return &Runtime{
		Run:     run,
		Store:   s,
		WorkDir: workDir,
		Getenv:  os.Getenv,
	}
}

// StageDir creates and returns a staging directory private to one stage (or
// one build job). Disjoint directories keep concurrent executors from
// observing each other's partial writes.
func (rt *Runtime) StageDir(name string) (string, error) {
	dir := filepath.Join(rt.WorkDir, filepath.FromSlash(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pipeline: creating staging dir %q: %w", name, err)
	}
	return dir, nil
}

// Env resolves the environment variable named by name, or "" when name is
// empty.
func (rt *Runtime) Env(name string) string {
	if name == "" {
		return ""
	}
	if rt.Getenv == nil {
		return os.Getenv(name)
	}
	return rt.Getenv(name)
}
