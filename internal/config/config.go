// Package config defines the format-agnostic pipeline model consumed by the
// dag package, plus the Loader interface a format-specific loader (such as
// the HCL one) implements. Keeping the model free of parser types means the
// engine never touches HCL outside the loader and the per-stage argument
// decode step.
package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
)

// Stage is one declared pipeline stage.
type Stage struct {
	// Type selects the compiled-in stage implementation ("plan", "build",
	// "gate", ...).
	Type string
	// Name is the human-readable instance name from the definition file.
	Name string
	// Arguments is the raw arguments body, decoded against the handler's
	// input struct when the stage runs.
	Arguments hcl.Body
	// DependsOn lists stage references ("type.name") this stage waits for.
	DependsOn []string
}

// Model is the loaded pipeline definition.
type Model struct {
	Stages []*Stage
}

// Loader is the interface for a format-specific pipeline loader.
type Loader interface {
	// Load reads one or more definition files (or directories of them) and
	// translates them into the agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
