// Package registry maps declared stage types to their compiled-in Go
// handlers for a single application instance.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vk/releasegrid/internal/config"
)

// Module is the interface that all stage modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredStage holds the compiled Go parts of a stage implementation.
type RegisteredStage struct {
	// NewInput allocates the struct the stage's arguments body is decoded
	// into. It may return nil for stages without arguments.
	NewInput func() any
	// Fn is the handler with signature
	// func(ctx context.Context, rt *pipeline.Runtime, input *T) (pipeline.Outcome, error).
	Fn any
}

// Registry holds all registered stage handlers.
type Registry struct {
	StageRegistry map[string]*RegisteredStage
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{StageRegistry: make(map[string]*RegisteredStage)}
}

// RegisterStage registers a Go handler for a stage type.
func (r *Registry) RegisterStage(stageType string, handler *RegisteredStage) {
	if _, exists := r.StageRegistry[stageType]; exists {
		panic(fmt.Sprintf("stage handler for type '%s' already registered", stageType))
	}
	slog.Debug("Registering stage handler.", "type", stageType)
	r.StageRegistry[stageType] = handler
}

// Lookup returns the handler for a stage type.
func (r *Registry) Lookup(stageType string) (*RegisteredStage, bool) {
	handler, ok := r.StageRegistry[stageType]
	return handler, ok
}

// Types lists the registered stage types in lexical order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.StageRegistry))
	for t := range r.StageRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Validate checks that every stage declared in the model has a registered
// handler. A mismatch between definition and code is a startup error, not
// a runtime one.
func (r *Registry) Validate(model *config.Model) error {
	var missing []string
	for _, stage := range model.Stages {
		if _, ok := r.StageRegistry[stage.Type]; !ok {
			missing = append(missing, fmt.Sprintf("stage '%s.%s': unknown stage type '%s'", stage.Type, stage.Name, stage.Type))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(missing, "\n- "))
	}
	return nil
}
