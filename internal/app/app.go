package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/vk/releasegrid/internal/config"
	"github.com/vk/releasegrid/internal/ctxlog"
	"github.com/vk/releasegrid/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	pipeline *config.Model
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	loadEnvFile(logger, appConfig.EnvFile)

	// Load the pipeline definition into the format-agnostic model first.
	model, err := loader.Load(ctx, appConfig.PipelinePath)
	if err != nil {
		// A failure to load the definition is a fatal startup error.
		panic(fmt.Errorf("failed to load pipeline definition: %w", err))
	}
	logger.Debug("Pipeline definition loaded into unified model.", "stages", len(model.Stages))

	// Create and populate the registry with Go handlers.
	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	// Validate the definition against the registered handlers.
	if err := reg.Validate(model); err != nil {
		// A mismatch between definition and code is a startup error, so we panic.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		pipeline: model,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// loadEnvFile merges a dotenv file into the process environment. A missing
// default file is fine; a missing explicitly named file is a startup error.
func loadEnvFile(logger *slog.Logger, path string) {
	if path == "" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			panic(fmt.Errorf("failed to load .env: %w", err))
		}
		return
	}
	if err := godotenv.Load(path); err != nil {
		panic(fmt.Errorf("failed to load env file %q: %w", path, err))
	}
	logger.Debug("Environment file loaded.", "path", path)
}
