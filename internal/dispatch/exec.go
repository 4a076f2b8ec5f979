package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ligscreen/internal/config"
	"ligscreen/internal/domain"
	"ligscreen/internal/logging"
)

// Runner starts a process in dir and waits for it. A non-zero exit is reported
// through exitCode with a nil error; err is set only when the process could not run.
type Runner interface {
	Run(ctx context.Context, dir, name string, args []string) (stdout, stderr []byte, exitCode int, err error)
}

// ExecRunner runs processes with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args []string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
		}
		return stdout.Bytes(), stderr.Bytes(), -1, err
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

// ExecDispatcher invokes the docking script once per job with a fixed argument
// template: hit-screening mode, fixed sampling and inference settings, the
// device and the ligand name as output label.
type ExecDispatcher struct {
	target string
	tool   toolArgs
	runner Runner
	log    *slog.Logger
}

type toolArgs struct {
	python      string
	relaxPython string
	script      string
	device      string
	samples     int
	steps       int
	extra       []string
}

// NewExecDispatcher builds a dispatcher from cfg. A nil runner means ExecRunner.
func NewExecDispatcher(cfg config.Config, runner Runner, log *slog.Logger) *ExecDispatcher {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logging.New("dispatch")
	}
	relax := cfg.Tool.RelaxPython
	if relax == "" {
		relax = cfg.Tool.Python
	}
	return &ExecDispatcher{
		target: absPath(cfg.Target),
		tool: toolArgs{
			python:      resolveExecutable(cfg.Tool.Python),
			relaxPython: resolveExecutable(relax),
			script:      absPath(cfg.Tool.Script),
			device:      cfg.Tool.Device,
			samples:     cfg.Tool.SamplesPerComplex,
			steps:       cfg.Tool.InferenceSteps,
			extra:       append([]string(nil), cfg.Tool.ExtraArgs...),
		},
		runner: runner,
		log:    log,
	}
}

// Args returns the process arguments for job, excluding the interpreter.
func (d *ExecDispatcher) Args(job domain.DockingJob) []string {
	args := []string{
		d.tool.script,
		d.target,
		absPath(job.InputFile),
		"--hts",
		"--savings_per_complex", strconv.Itoa(d.tool.samples),
		"--inference_steps", strconv.Itoa(d.tool.steps),
		"--header", job.Ligand.Name,
		"--device", d.tool.device,
		"--python", d.tool.python,
		"--relax_python", d.tool.relaxPython,
	}
	return append(args, d.tool.extra...)
}

// Dispatch runs the docking script for job inside the ligand's output directory.
func (d *ExecDispatcher) Dispatch(ctx context.Context, job domain.DockingJob) (Invocation, error) {
	args := d.Args(job)
	inv := Invocation{Args: append([]string{d.tool.python}, args...)}
	l := d.log.With("ligand", job.Ligand.Name)
	l.Debug("running command", "command", strings.Join(inv.Args, " "), "dir", job.OutputDir)

	start := time.Now()
	stdout, stderr, code, err := d.runner.Run(ctx, job.OutputDir, d.tool.python, args)
	inv.Duration = time.Since(start)
	inv.Stdout = string(stdout)
	inv.Stderr = string(stderr)
	inv.ExitCode = code
	if err != nil || code != 0 {
		return inv, &InvocationError{Ligand: job.Ligand.Name, ExitCode: code, Stderr: inv.Stderr, Err: err}
	}
	l.Debug("command output", "stdout", inv.Stdout)
	return inv, nil
}

func resolveExecutable(name string) string {
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return absPath(name)
	}
	if p, err := exec.LookPath(name); err == nil {
		return absPath(p)
	}
	return name
}

// absPath keeps paths valid once the process runs inside the ligand directory.
func absPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
