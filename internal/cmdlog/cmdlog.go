// Package cmdlog wraps CLI commands with counters, a duration histogram and
// one closing log line.
package cmdlog

import (
	"context"
	"errors"
	"time"

	"workoutnet/internal/logging"
	"workoutnet/internal/metrics"
)

// Outcomes recorded per command.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeInterrupted = "interrupted"
)

// Run executes f as command cmd. A cancelled context is logged as an
// interruption rather than a failure, but the error is still returned.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	elapsed := time.Since(start)
	outcome := Outcome(err)
	metrics.ObserveCommand(cmd, outcome, elapsed)

	fields := map[string]any{"elapsed_s": elapsed.Seconds()}
	switch outcome {
	case OutcomeOK:
		logging.Info(cmd+"_ok", fields)
	case OutcomeInterrupted:
		fields["error"] = err.Error()
		logging.Warn(cmd+"_interrupted", fields)
	default:
		metrics.IncCommandError(cmd)
		fields["error"] = err.Error()
		logging.Error(cmd+"_error", fields)
	}
	return err
}

// Outcome classifies a command result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeInterrupted
	}
	return OutcomeError
}
