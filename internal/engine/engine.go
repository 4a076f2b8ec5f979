package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"ligscreen/internal/catalog"
	"ligscreen/internal/collect"
	"ligscreen/internal/config"
	"ligscreen/internal/dispatch"
	"ligscreen/internal/domain"
	"ligscreen/internal/events"
	"ligscreen/internal/logging"
	"ligscreen/internal/rank"
	"ligscreen/internal/report"
)

var ErrInvalidTopK = errors.New("top-k must be a positive integer")

// Progress receives per-stage progress. Implementations must tolerate Step
// being called without Start.
type Progress interface {
	Start(stage string, total int)
	Step(ligand string)
	Done()
}

type nopProgress struct{}

func (nopProgress) Start(string, int) {}
func (nopProgress) Step(string)       {}
func (nopProgress) Done()             {}

type Engine struct {
	Config     config.Config
	Dispatcher dispatch.Dispatcher
	Events     events.Writer
	Progress   Progress
	Log        *slog.Logger
	Now        func() time.Time
	NewRunID   func() string
}

func New(cfg config.Config, d dispatch.Dispatcher) Engine {
	return Engine{
		Config:     cfg,
		Dispatcher: d,
		Events:     events.NewWriter(cfg.EventsPath(), time.Now),
		Progress:   nopProgress{},
		Log:        logging.New("engine"),
		Now:        time.Now,
		NewRunID:   func() string { return uuid.New().String() },
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) runID() string {
	if e.NewRunID != nil {
		return e.NewRunID()
	}
	return uuid.New().String()
}

func (e Engine) progress() Progress {
	if e.Progress != nil {
		return e.Progress
	}
	return nopProgress{}
}

func (e Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logging.New("engine")
}

func (e Engine) event(evtType, runID, ligand string, payload events.EventPayload) {
	if err := e.Events.Append(evtType, runID, ligand, payload); err != nil {
		e.logger().Warn("cannot append run event", "type", evtType, "err", err)
	}
}

// ScreenOptions are parameters for a run.
type ScreenOptions struct {
	// TopK overrides config.scoring.top_k when positive.
	TopK int
}

func (e Engine) topK(opts ScreenOptions) (int, error) {
	k := opts.TopK
	if k == 0 {
		k = e.Config.Scoring.TopK
	}
	if k <= 0 {
		return 0, fmt.Errorf("%w (got %d)", ErrInvalidTopK, k)
	}
	return k, nil
}

// Ligands loads the configured catalog. Names that would collide with run
// outputs in the output directory reject the catalog.
func (e Engine) Ligands() ([]domain.Ligand, error) {
	ligands, err := catalog.Load(e.Config.Catalog)
	if err != nil {
		return nil, err
	}
	for i, l := range ligands {
		if e.Config.IsArtifactName(l.Name) {
			return nil, &catalog.MalformedError{Row: i + 1, Field: "name", Reason: fmt.Sprintf("%q collides with a run output file", l.Name)}
		}
	}
	return ligands, nil
}

// Screen docks every catalog ligand, collects the results and writes the
// combined and top-K tables. Docking failures and missing result files are
// reported in the summary and never abort the run.
func (e Engine) Screen(ctx context.Context, opts ScreenOptions) (domain.RunSummary, error) {
	k, err := e.topK(opts)
	if err != nil {
		return domain.RunSummary{}, err
	}
	if e.Dispatcher == nil {
		return domain.RunSummary{}, errors.New("dispatcher not configured")
	}
	ligands, err := e.Ligands()
	if err != nil {
		return domain.RunSummary{}, err
	}
	if err := os.MkdirAll(e.Config.OutputDir, 0o755); err != nil {
		return domain.RunSummary{}, fmt.Errorf("create output dir: %w", err)
	}
	summary := e.begin(k, len(ligands), "screen")
	log := e.logger().With("run_id", summary.RunID)
	log.Info("screening ligands", "ligands", len(ligands), "target", e.Config.Target)

	p := e.progress()
	p.Start("Docking ligands", len(ligands))
	seq := dispatch.Sequential{
		BaseDir:    e.Config.OutputDir,
		InputFile:  e.Config.Files.Input,
		Dispatcher: e.Dispatcher,
		Log:        logging.New("dispatch").With("run_id", summary.RunID),
	}
	err = seq.Run(ctx, dispatch.NewQueue(ligands), func(o domain.Outcome) {
		summary.Dispatched = append(summary.Dispatched, o)
		if o.Status == domain.StatusFailed {
			e.event(events.LigandFailed, summary.RunID, o.Ligand.Name, events.EventPayload{"exit_code": o.ExitCode, "error": o.Error})
		} else {
			e.event(events.LigandDocked, summary.RunID, o.Ligand.Name, nil)
		}
		p.Step(o.Ligand.Name)
	})
	p.Done()
	if err != nil {
		e.abort(&summary, "dispatch", err)
		return summary, err
	}
	return e.finish(&summary, ligands, k)
}

// Rerank rebuilds the combined and top-K tables from result files already on
// disk without docking anything. Running it twice over the same files yields
// identical outputs.
func (e Engine) Rerank(ctx context.Context, opts ScreenOptions) (domain.RunSummary, error) {
	k, err := e.topK(opts)
	if err != nil {
		return domain.RunSummary{}, err
	}
	ligands, err := e.Ligands()
	if err != nil {
		return domain.RunSummary{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.RunSummary{}, err
	}
	if _, err := os.Stat(e.Config.OutputDir); err != nil {
		return domain.RunSummary{}, fmt.Errorf("output dir: %w", err)
	}
	summary := e.begin(k, len(ligands), "rank")
	return e.finish(&summary, ligands, k)
}

func (e Engine) begin(k, ligands int, mode string) domain.RunSummary {
	summary := domain.RunSummary{RunID: e.runID(), Started: e.now(), TopK: k}
	e.event(events.RunStart, summary.RunID, "", events.EventPayload{
		"mode":    mode,
		"ligands": ligands,
		"top_k":   k,
		"target":  e.Config.Target,
		"catalog": e.Config.Catalog,
	})
	return summary
}

func (e Engine) abort(summary *domain.RunSummary, stage string, err error) {
	summary.Finished = e.now()
	e.logger().Error("run aborted", "run_id", summary.RunID, "stage", stage, "err", err)
	e.event(events.RunAbort, summary.RunID, "", events.EventPayload{"stage": stage, "error": err.Error()})
}

// finish runs collect, rank and write. The combined table is written before
// ranking so it survives a ranking failure.
func (e Engine) finish(summary *domain.RunSummary, ligands []domain.Ligand, k int) (domain.RunSummary, error) {
	log := e.logger().With("run_id", summary.RunID)
	p := e.progress()
	p.Start("Extracting results", len(ligands))
	c := collect.Collector{
		BaseDir:    e.Config.OutputDir,
		ResultFile: e.Config.Files.Result,
		Log:        logging.New("collect").With("run_id", summary.RunID),
		OnResult: func(o domain.Outcome) {
			if o.Status == domain.StatusCollected {
				e.event(events.LigandCollected, summary.RunID, o.Ligand.Name, events.EventPayload{"rows": o.Rows, "path": o.ResultPath})
			} else {
				e.event(events.LigandMissing, summary.RunID, o.Ligand.Name, events.EventPayload{"status": o.Status, "error": o.Error})
			}
			p.Step(o.Ligand.Name)
		},
	}
	combined, outcomes, err := c.Collect(ligands)
	p.Done()
	summary.Collected = outcomes
	if errors.Is(err, collect.ErrEmptyResultSet) {
		summary.Empty = true
		summary.Finished = e.now()
		log.Warn("no results files found; nothing to rank")
		e.event(events.RunEmpty, summary.RunID, "", nil)
		return *summary, nil
	}
	if err != nil {
		e.abort(summary, "collect", err)
		return *summary, err
	}

	combinedPath := e.Config.CombinedPath()
	if err := report.WriteTable(combinedPath, combined); err != nil {
		e.abort(summary, "write-combined", err)
		return *summary, fmt.Errorf("write combined results: %w", err)
	}
	summary.CombinedPath = combinedPath
	log.Info("combined docking results saved", "path", combinedPath, "rows", combined.Len())

	scored, err := rank.New(e.Config.Scoring).Rank(combined)
	if err != nil {
		e.abort(summary, "rank", err)
		return *summary, err
	}
	top, err := rank.Top(scored, k)
	if err != nil {
		e.abort(summary, "rank", err)
		return *summary, err
	}
	topPath := e.Config.TopPath(k)
	if err := report.WriteScored(topPath, top); err != nil {
		e.abort(summary, "write-top", err)
		return *summary, fmt.Errorf("write top ligands: %w", err)
	}
	summary.Top = top
	summary.TopPath = topPath
	summary.Finished = e.now()
	log.Info("top ligands saved", "k", k, "path", topPath)
	e.event(events.RunFinish, summary.RunID, "", events.EventPayload{
		"combined_path": combinedPath,
		"top_path":      topPath,
		"rows":          combined.Len(),
		"partial":       summary.Partial(),
	})
	return *summary, nil
}
