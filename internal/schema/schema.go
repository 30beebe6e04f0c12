// Package schema holds the HCL-facing structures a pipeline definition file
// is decoded into, before translation into the format-agnostic model.
package schema

import "github.com/hashicorp/hcl/v2"

// StageArgs represents the content of the 'arguments' block within a stage.
// The body is kept opaque here; it is decoded against the registered
// handler's input struct at execution time.
type StageArgs struct {
	Body hcl.Body `hcl:",remain"`
}

// Stage represents a `stage` block from a pipeline file. The first label
// selects the compiled-in stage implementation, the second names this
// instance of it.
type Stage struct {
	Type      string     `hcl:"stage_type,label"`
	Name      string     `hcl:"instance_name,label"`
	Arguments *StageArgs `hcl:"arguments,block"`
	DependsOn []string   `hcl:"depends_on,optional"`
}

// PipelineConfig represents the top-level structure of a pipeline file.
type PipelineConfig struct {
	Stages []*Stage `hcl:"stage,block"`
	Body   hcl.Body `hcl:",remain"`
}
