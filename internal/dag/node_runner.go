package dag

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/releasegrid/internal/ctxlog"
	"github.com/vk/releasegrid/internal/pipeline"
)

// runStageNode decodes a stage's arguments and dispatches to its handler.
func (e *Executor) runStageNode(ctx context.Context, node *Node) (pipeline.Outcome, error) {
	logger := ctxlog.FromContext(ctx).With("stage", node.ID)
	logger.Info("▶️ Starting stage")

	handler, ok := e.registry.Lookup(node.StageConfig.Type)
	if !ok {
		return pipeline.Completed, fmt.Errorf("unknown stage type '%s'", node.StageConfig.Type)
	}

	var inputStruct any
	if handler.NewInput != nil {
		inputStruct = handler.NewInput()
	}
	if inputStruct != nil && node.StageConfig.Arguments != nil {
		logger.Debug("Decoding stage arguments.")
		evalCtx := e.buildEvalContext()
		if diags := gohcl.DecodeBody(node.StageConfig.Arguments, evalCtx, inputStruct); diags.HasErrors() {
			return pipeline.Completed, fmt.Errorf("decoding arguments for %s: %w", node.ID, diags)
		}
	}

	logger.Debug("Calling stage handler.")
	handlerFunc := reflect.ValueOf(handler.Fn)
	callArgs := []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(e.runtime)}
	if inputStruct == nil {
		inputType := handlerFunc.Type().In(2)
		callArgs = append(callArgs, reflect.Zero(inputType))
	} else {
		callArgs = append(callArgs, reflect.ValueOf(inputStruct))
	}

	results := handlerFunc.Call(callArgs)
	outcome, ok := results[0].Interface().(pipeline.Outcome)
	if !ok {
		return pipeline.Completed, fmt.Errorf("handler for stage %s returned non-Outcome type: %T", node.ID, results[0].Interface())
	}
	if errResult := results[1].Interface(); errResult != nil {
		return outcome, errResult.(error)
	}

	logger.Info("✅ Finished stage", "outcome", outcome.String())
	return outcome, nil
}

// buildEvalContext exposes the run's metadata to argument expressions as
// the `run` object, e.g. `condition = run.is_publishing`.
func (e *Executor) buildEvalContext() *hcl.EvalContext {
	run := e.runtime.Run
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"run": cty.ObjectVal(map[string]cty.Value{
				"event":         cty.StringVal(string(run.Event)),
				"tag":           cty.StringVal(run.Tag),
				"app":           cty.StringVal(run.App),
				"version":       cty.StringVal(run.Version),
				"is_publishing": cty.BoolVal(run.Publishing),
			}),
		},
	}
}
