package app

import (
	"errors"
	"fmt"

	"github.com/vk/releasegrid/internal/trigger"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// PipelinePath is a single .hcl file or a directory of .hcl files.
	PipelinePath string
	// Event and Ref describe the incoming event evaluated by the trigger.
	Event trigger.EventKind
	Ref   string

	// StoreKind selects the artifact store backend: "fs", "memory" or "s3".
	StoreKind string
	// StorePath is the fs root directory, or "bucket/prefix" for s3.
	StorePath string

	// EnvFile is an optional dotenv file loaded before the run.
	EnvFile string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	switch cfg.Event {
	case trigger.TagPush, trigger.PullRequest:
	default:
		return nil, fmt.Errorf("unknown event kind %q", cfg.Event)
	}
	switch cfg.StoreKind {
	case "fs", "memory", "s3":
	case "":
		cfg.StoreKind = "memory"
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.StoreKind)
	}
	if cfg.StoreKind != "memory" && cfg.StorePath == "" {
		return nil, fmt.Errorf("store kind %q requires a store path", cfg.StoreKind)
	}

	return &cfg, nil
}
