package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

const (
	_ = iota
	exitUsage
	exitLoggingFailed
	exitDotenvError
	exitLoadStacksFailed
	exitConfigurationError
	exitStepsFailed
	exitMetricsFailed
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return exitUsage
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	stop()

	code := exitCode(err)
	if code == exitUsage {
		fmt.Fprintln(os.Stderr, err)
	} else if code != 0 {
		slog.Error("stackctl failed", "error", err)
	}
	os.Exit(code)
}
