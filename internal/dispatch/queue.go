package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"ligscreen/internal/domain"
	"ligscreen/internal/logging"
)

// maxStderr bounds how much captured stderr an Outcome carries.
const maxStderr = 4096

// Queue is a FIFO of ligands waiting to be docked.
type Queue struct {
	items []domain.Ligand
}

// NewQueue enqueues ligands in catalog order.
func NewQueue(ligands []domain.Ligand) *Queue {
	return &Queue{items: append([]domain.Ligand(nil), ligands...)}
}

// Len returns the number of ligands still queued.
func (q *Queue) Len() int { return len(q.items) }

// Pop removes and returns the next ligand.
func (q *Queue) Pop() (domain.Ligand, bool) {
	if len(q.items) == 0 {
		return domain.Ligand{}, false
	}
	lig := q.items[0]
	q.items = q.items[1:]
	return lig, true
}

// Sequential drains a Queue one job at a time: the next job is materialized only
// after the previous process has exited.
type Sequential struct {
	BaseDir    string
	InputFile  string
	Dispatcher Dispatcher
	Log        *slog.Logger
}

// Run docks every queued ligand and reports each result to fn. Per-ligand
// failures are reported as StatusFailed outcomes; Run only returns an error when
// ctx is cancelled, in which case the remaining ligands are not started.
func (s Sequential) Run(ctx context.Context, q *Queue, fn func(domain.Outcome)) error {
	log := s.Log
	if log == nil {
		log = logging.New("dispatch")
	}
	for {
		if err := ctx.Err(); err != nil {
			log.Warn("screening interrupted", "remaining", q.Len(), "err", err)
			return err
		}
		lig, ok := q.Pop()
		if !ok {
			return nil
		}
		out := s.dispatchOne(ctx, lig, log.With("ligand", lig.Name))
		if fn != nil {
			fn(out)
		}
	}
}

func (s Sequential) dispatchOne(ctx context.Context, lig domain.Ligand, log *slog.Logger) domain.Outcome {
	out := domain.Outcome{Ligand: lig}
	job, err := PrepareJob(s.BaseDir, s.InputFile, lig)
	if err != nil {
		log.Error("cannot prepare docking job", "err", err)
		out.Status = domain.StatusFailed
		out.ExitCode = -1
		out.Err = err
		out.Error = err.Error()
		return out
	}
	inv, err := s.Dispatcher.Dispatch(ctx, job)
	out.ExitCode = inv.ExitCode
	if err != nil {
		out.Status = domain.StatusFailed
		out.Err = err
		out.Error = err.Error()
		var ie *InvocationError
		if errors.As(err, &ie) {
			out.Stderr = tail(ie.Stderr, maxStderr)
		}
		log.Warn("docking failed", "exit_code", inv.ExitCode, "stderr", out.Stderr, "err", err)
		return out
	}
	out.Status = domain.StatusDocked
	log.Info("docking completed", "duration", inv.Duration)
	return out
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return "..." + s[cut:]
}
