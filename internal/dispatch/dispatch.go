// Package dispatch hands per-ligand docking jobs to the external docking tool.
// A Dispatcher runs one job to completion; a Queue feeds jobs to it in catalog
// order. Replacing the sequential consumer does not change what collect and
// rank see: they only consume domain.Outcome values.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"ligscreen/internal/domain"
)

// Dispatcher runs a single docking job and blocks until it finishes.
type Dispatcher interface {
	Dispatch(ctx context.Context, job domain.DockingJob) (Invocation, error)
}

// Invocation records what was run and what it printed.
type Invocation struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// InvocationError is a per-ligand docking failure: the process could not be
// started or exited non-zero. It never aborts the run.
type InvocationError struct {
	Ligand   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *InvocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("docking %s: %v", e.Ligand, e.Err)
	}
	return fmt.Sprintf("docking %s: exit status %d", e.Ligand, e.ExitCode)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, job domain.DockingJob) (Invocation, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, job domain.DockingJob) (Invocation, error) {
	return f(ctx, job)
}
