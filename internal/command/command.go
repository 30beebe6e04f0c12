// Package command runs the external planning and build tools that the
// pipeline orchestrates, capturing their output and exit status.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/vk/releasegrid/internal/ctxlog"
)

// Result holds the captured output and exit status of one invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Options configures an invocation.
type Options struct {
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env is appended to the inherited process environment.
	Env map[string]string
	// StdoutWriter and StderrWriter, when set, receive a live copy of the
	// tool's output in addition to the captured Result.
	StdoutWriter io.Writer
	StderrWriter io.Writer
}

// Option mutates Options.
type Option func(*Options)

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(o *Options) { o.Dir = dir }
}

// WithEnv appends one environment variable.
func WithEnv(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// WithStderrWriter mirrors the tool's stderr to w as it is produced.
func WithStderrWriter(w io.Writer) Option {
	return func(o *Options) { o.StderrWriter = w }
}

// Run executes program with args and waits for it to finish. A non-zero
// exit produces a non-nil error carrying the tail of stderr; the Result is
// returned in either case so callers can inspect partial output.
func Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Invoking external command.", "program", program, "args", args, "dir", options.Dir)

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = options.Dir
	cmd.Env = os.Environ()
	for key, value := range options.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if options.StdoutWriter != nil {
		cmd.Stdout = io.MultiWriter(&stdout, options.StdoutWriter)
	}
	if options.StderrWriter != nil {
		cmd.Stderr = io.MultiWriter(&stderr, options.StderrWriter)
	}

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
		return result, nil
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, fmt.Errorf("command: %s exited with code %d: %s",
			program, result.ExitCode, stderrTail(result.Stderr))
	default:
		result.ExitCode = -1
		return result, fmt.Errorf("command: starting %s: %w", program, err)
	}
}

// Shell runs script through the POSIX shell, for configured one-liner
// install commands.
func Shell(ctx context.Context, script string, opts ...Option) (*Result, error) {
	return Run(ctx, "sh", []string{"-c", script}, opts...)
}

// stderrTail keeps error messages bounded when tools dump long diagnostics.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	const max = 512
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
