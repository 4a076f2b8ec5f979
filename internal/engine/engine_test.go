package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ligscreen/internal/catalog"
	"ligscreen/internal/config"
	"ligscreen/internal/dispatch"
	"ligscreen/internal/domain"
	"ligscreen/internal/engine"
	"ligscreen/internal/events"
	"ligscreen/internal/logging"
	"ligscreen/internal/rank"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Calls  *[]string
}

// newTestEnv writes the catalog and wires a dispatcher that plays the docking
// tool: it writes results[name] to the ligand's result file, or fails when the
// ligand has no entry.
func newTestEnv(t *testing.T, catalogCSV string, results map[string]string) testEnv {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "ligands.csv")
	if err := os.WriteFile(catalogPath, []byte(catalogCSV), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cfg := config.Default()
	cfg.Target = filepath.Join(dir, "protein.pdb")
	cfg.Catalog = catalogPath
	cfg.OutputDir = filepath.Join(dir, "out")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	var calls []string
	d := dispatch.DispatcherFunc(func(ctx context.Context, job domain.DockingJob) (dispatch.Invocation, error) {
		calls = append(calls, job.Ligand.Name)
		content, ok := results[job.Ligand.Name]
		if !ok {
			return dispatch.Invocation{ExitCode: 1}, &dispatch.InvocationError{Ligand: job.Ligand.Name, ExitCode: 1, Stderr: "boom"}
		}
		if err := os.WriteFile(filepath.Join(job.OutputDir, cfg.Files.Result), []byte(content), 0o644); err != nil {
			return dispatch.Invocation{}, err
		}
		return dispatch.Invocation{}, nil
	})
	eng := engine.New(cfg, d)
	eng.Log = logging.Discard()
	eng.Events = events.NewWriter(cfg.EventsPath(), func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng.NewRunID = func() string { return "run-1" }
	return testEnv{Engine: eng, Ctx: context.Background(), Calls: &calls}
}

const twoLigands = "ligand\nCCO drugA\nCCN drugB\n"

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestScreenTwoLigandScenario(t *testing.T) {
	env := newTestEnv(t, twoLigands, map[string]string{
		"drugA": "affinity,lddt\n2.0,0.9\n",
		"drugB": "affinity,lddt\n5.0,0.5\n",
	})
	summary, err := env.Engine.Screen(env.Ctx, engine.ScreenOptions{TopK: 1})
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if len(summary.Top) != 1 || summary.Top[0].Name != "drugA" || summary.Top[0].CombinedScore != 1.0 {
		t.Fatalf("unexpected top %+v", summary.Top)
	}
	if summary.TopPath != filepath.Join(env.Engine.Config.OutputDir, "top_1_ligands.csv") {
		t.Fatalf("top path = %s", summary.TopPath)
	}
	if got := readFile(t, summary.CombinedPath); got != "affinity,lddt,name\n2.0,0.9,drugA\n5.0,0.5,drugB\n" {
		t.Fatalf("combined file:\n%s", got)
	}
	if got := readFile(t, summary.TopPath); got != "affinity,lddt,name,norm_affinity,norm_lddt,combined_score\n2.0,0.9,drugA,1,1,1\n" {
		t.Fatalf("top file:\n%s", got)
	}
	input := readFile(t, filepath.Join(env.Engine.Config.OutputDir, "drugB", "ligand.csv"))
	if input != "ligand\nCCN\n" {
		t.Fatalf("input file = %q", input)
	}
	if summary.Partial() {
		t.Fatal("expected a complete run")
	}
	if !strings.Contains(readFile(t, env.Engine.Config.EventsPath()), `"type":"run.finish"`) {
		t.Fatal("expected run.finish event")
	}
}

func TestScreenToleratesFailedLigand(t *testing.T) {
	env := newTestEnv(t, twoLigands, map[string]string{
		"drugB": "affinity,lddt\n5.0,0.5\n",
	})
	summary, err := env.Engine.Screen(env.Ctx, engine.ScreenOptions{TopK: 5})
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if got := strings.Join(*env.Calls, ","); got != "drugA,drugB" {
		t.Fatalf("dispatch order = %s", got)
	}
	if summary.Dispatched[0].Status != domain.StatusFailed || summary.Collected[0].Status != domain.StatusMissing {
		t.Fatalf("unexpected outcomes %+v %+v", summary.Dispatched, summary.Collected)
	}
	if len(summary.Top) != 1 || summary.Top[0].Name != "drugB" {
		t.Fatalf("unexpected top %+v", summary.Top)
	}
	if !summary.Partial() {
		t.Fatal("expected partial run")
	}
}

func TestScreenTopKBeyondResults(t *testing.T) {
	env := newTestEnv(t, twoLigands, map[string]string{
		"drugA": "affinity,lddt\n2.0,0.9\n",
		"drugB": "affinity,lddt\n5.0,0.5\n",
	})
	summary, err := env.Engine.Screen(env.Ctx, engine.ScreenOptions{TopK: 3})
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(readFile(t, summary.TopPath)), "\n")
	if len(lines) != 3 || len(summary.Top) != 2 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if filepath.Base(summary.TopPath) != "top_3_ligands.csv" {
		t.Fatalf("top path = %s", summary.TopPath)
	}
}

func TestScreenEmptyResults(t *testing.T) {
	env := newTestEnv(t, twoLigands, nil)
	summary, err := env.Engine.Screen(env.Ctx, engine.ScreenOptions{TopK: 1})
	if err != nil {
		t.Fatalf("empty run should not fail: %v", err)
	}
	if !summary.Empty || summary.CombinedPath != "" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if _, err := os.Stat(env.Engine.Config.CombinedPath()); !os.IsNotExist(err) {
		t.Fatalf("combined file should not exist: %v", err)
	}
}

func TestScreenMalformedCatalogAbortsBeforeDispatch(t *testing.T) {
	env := newTestEnv(t, "ligand\nCCO drugA\nCCN\n", nil)
	_, err := env.Engine.Screen(env.Ctx, engine.ScreenOptions{TopK: 1})
	if !errors.Is(err, catalog.ErrMalformedCatalog) {
		t.Fatalf("expected malformed catalog, got %v", err)
	}
	if len(*env.Calls) != 0 {
		t.Fatalf("nothing should be dispatched, got %v", *env.Calls)
	}
}

func TestScreenRejectsNamesCollidingWithOutputs(t *testing.T) {
	env := newTestEnv(t, "ligand\nCCO drugA\nCCN screening_events.jsonl\n", map[string]string{
		"drugA": "affinity,lddt\n2.0,0.9\n",
	})
	_, err := env.Engine.Screen(env.Ctx, engine.ScreenOptions{TopK: 1})
	var me *catalog.MalformedError
	if !errors.As(err, &me) || me.Row != 2 || me.Field != "name" {
		t.Fatalf("expected malformed name on row 2, got %v", err)
	}
	if len(*env.Calls) != 0 {
		t.Fatalf("nothing should be dispatched, got %v", *env.Calls)
	}
}

func TestScreenMissingColumnKeepsCombinedFile(t *testing.T) {
	env := newTestEnv(t, twoLigands, map[string]string{
		"drugA": "affinity\n2.0\n",
		"drugB": "affinity\n5.0\n",
	})
	_, err := env.Engine.Screen(env.Ctx, engine.ScreenOptions{TopK: 1})
	var mc *rank.MissingColumnError
	if !errors.As(err, &mc) || mc.Column != "lddt" {
		t.Fatalf("expected missing lddt, got %v", err)
	}
	if _, err := os.Stat(env.Engine.Config.CombinedPath()); err != nil {
		t.Fatalf("combined file should be durable: %v", err)
	}
	if _, err := os.Stat(env.Engine.Config.TopPath(1)); !os.IsNotExist(err) {
		t.Fatalf("top file should not exist: %v", err)
	}
}

func TestRerankIsIdempotent(t *testing.T) {
	env := newTestEnv(t, "ligand\nCCO drugA\nCCN drugB\nCCC drugC\n", map[string]string{
		"drugA": "affinity,lddt,pose\n-7.25,0.81,1\n-6.5,0.77,2\n",
		"drugB": "affinity,lddt,pose\n-8.1,0.66,1\n",
		"drugC": "affinity,lddt,pose\n-5.0,0.9,1\n",
	})
	first, err := env.Engine.Screen(env.Ctx, engine.ScreenOptions{TopK: 2})
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	combined := readFile(t, first.CombinedPath)
	top := readFile(t, first.TopPath)
	for i := 0; i < 2; i++ {
		again, err := env.Engine.Rerank(env.Ctx, engine.ScreenOptions{TopK: 2})
		if err != nil {
			t.Fatalf("rerank: %v", err)
		}
		if readFile(t, again.CombinedPath) != combined || readFile(t, again.TopPath) != top {
			t.Fatalf("rerank %d changed outputs", i)
		}
	}
	if len(*env.Calls) != 3 {
		t.Fatalf("rerank must not dispatch, calls=%v", *env.Calls)
	}
}

func TestTopKRequired(t *testing.T) {
	env := newTestEnv(t, twoLigands, nil)
	if _, err := env.Engine.Screen(env.Ctx, engine.ScreenOptions{}); !errors.Is(err, engine.ErrInvalidTopK) {
		t.Fatalf("expected ErrInvalidTopK, got %v", err)
	}
	if _, err := env.Engine.Rerank(env.Ctx, engine.ScreenOptions{TopK: -1}); !errors.Is(err, engine.ErrInvalidTopK) {
		t.Fatalf("expected ErrInvalidTopK, got %v", err)
	}
}
