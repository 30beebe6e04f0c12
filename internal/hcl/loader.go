// Package hcl implements the HCL pipeline-definition loader.
package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/releasegrid/internal/config"
	"github.com/vk/releasegrid/internal/ctxlog"
	"github.com/vk/releasegrid/internal/fsutil"
	"github.com/vk/releasegrid/internal/schema"
)

// Loader parses .hcl pipeline files into the agnostic config model.
type Loader struct{}

// NewLoader returns a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load implements config.Loader. Each path may be a single .hcl file or a
// directory searched recursively.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("hcl: inspecting path %q: %w", path, err)
		}
		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, fmt.Errorf("hcl: walking %q: %w", path, err)
			}
			files = append(files, found...)
		} else {
			files = append(files, path)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("hcl: no .hcl files found in %v", paths)
	}
	logger.Debug("Found pipeline definition files.", "files", files)

	parser := hclparse.NewParser()
	model := &config.Model{}

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("hcl: parsing %s: %w", file, diags)
		}

		var pipelineConfig schema.PipelineConfig
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &pipelineConfig); diags.HasErrors() {
			return nil, fmt.Errorf("hcl: decoding %s: %w", file, diags)
		}

		for _, s := range pipelineConfig.Stages {
			model.Stages = append(model.Stages, l.translateStage(s))
		}
		logger.Debug("Loaded pipeline definition file.", "file", file, "stages", len(pipelineConfig.Stages))
	}

	logger.Debug("Pipeline definition translated into unified model.", "stage_count", len(model.Stages))
	return model, nil
}

// translateStage converts the HCL-specific stage schema into the agnostic model.
func (l *Loader) translateStage(s *schema.Stage) *config.Stage {
	stage := &config.Stage{
		Type:      s.Type,
		Name:      s.Name,
		DependsOn: s.DependsOn,
	}
	if s.Arguments != nil {
		stage.Arguments = s.Arguments.Body
	}
	return stage
}
