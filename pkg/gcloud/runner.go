// Package gcloud runs the Google Cloud CLI and classifies its failures.
package gcloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultBinary is looked up in PATH when no binary is configured.
const DefaultBinary = "gcloud"

// Runner executes one gcloud invocation and returns its stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// CLI runs the real gcloud binary.
type CLI struct {
	Binary  string
	Project string
}

// NewCLI returns a CLI bound to project. An empty binary means gcloud from
// PATH.
func NewCLI(binary, project string) *CLI {
	if binary == "" {
		binary = DefaultBinary
	}
	return &CLI{Binary: binary, Project: project}
}

// Run implements Runner. Prompts are disabled and the project is appended
// to every call.
func (c *CLI) Run(ctx context.Context, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(c.Binary); err != nil {
		return nil, fmt.Errorf("%s binary not found in PATH: %w", c.Binary, err)
	}

	full := append([]string{}, args...)
	if c.Project != "" {
		full = append(full, "--project="+c.Project)
	}
	full = append(full, "--quiet")

	slog.Debug("running gcloud", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, c.Binary, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cmdErr := &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		return nil, cmdErr
	}

	return stdout.Bytes(), nil
}

// CommandError is returned when gcloud exits unsuccessfully.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("gcloud %s failed: %v\nstderr: %s", strings.Join(e.Args, " "), e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

var (
	notFoundMarkers      = []string{"not_found", "was not found", "not found", "does not exist"}
	alreadyExistsMarkers = []string{"already_exists", "already exists"}
	transientMarkers     = []string{"resource_exhausted", "unavailable", "rate limit", "deadline_exceeded", "code=429", "code=503", "internal error"}
)

func stderrHas(err error, markers []string) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	stderr := strings.ToLower(cmdErr.Stderr)
	for _, m := range markers {
		if strings.Contains(stderr, m) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether gcloud failed because the resource does not
// exist.
func IsNotFound(err error) bool {
	return stderrHas(err, notFoundMarkers)
}

// IsAlreadyExists reports whether gcloud failed because the resource exists.
func IsAlreadyExists(err error) bool {
	return stderrHas(err, alreadyExistsMarkers)
}

// IsTransient reports whether the failure is worth retrying.
func IsTransient(err error) bool {
	return stderrHas(err, transientMarkers)
}
