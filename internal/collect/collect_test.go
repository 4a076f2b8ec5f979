package collect

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ligscreen/internal/domain"
	"ligscreen/internal/logging"
)

const resultFile = "complete_affinity_prediction.csv"

func writeResult(t *testing.T, base, ligand, content string) {
	t.Helper()
	dir := filepath.Join(base, ligand)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, resultFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newCollector(base string) Collector {
	return Collector{BaseDir: base, ResultFile: resultFile, Log: logging.Discard()}
}

func TestCollectStampsNameAndKeepsCatalogOrder(t *testing.T) {
	base := t.TempDir()
	writeResult(t, base, "drugB", "name,affinity,lddt\nidx0,5.0,0.5\n")
	writeResult(t, base, "drugA", "affinity,lddt\n2.0,0.9\n2.5,0.8\n")
	ligands := []domain.Ligand{{Name: "drugA", Descriptor: "CCO"}, {Name: "drugB", Descriptor: "CCN"}}

	table, outcomes, err := newCollector(base).Collect(ligands)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := domain.Table{
		Columns: []string{"affinity", "lddt", "name"},
		Rows: [][]string{
			{"2.0", "0.9", "drugA"},
			{"2.5", "0.8", "drugA"},
			{"5.0", "0.5", "drugB"},
		},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
	if outcomes[0].Rows != 2 || outcomes[1].Status != domain.StatusCollected {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
}

func TestCollectSkipsMissingFile(t *testing.T) {
	base := t.TempDir()
	writeResult(t, base, "drugB", "affinity,lddt\n5.0,0.5\n")
	ligands := []domain.Ligand{{Name: "drugA"}, {Name: "drugB"}}

	table, outcomes, err := newCollector(base).Collect(ligands)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if table.Len() != 1 || table.Record(0)["name"] != "drugB" {
		t.Fatalf("unexpected table %+v", table)
	}
	if outcomes[0].Status != domain.StatusMissing || !errors.Is(outcomes[0].Err, ErrMissingResultFile) {
		t.Fatalf("expected missing outcome, got %+v", outcomes[0])
	}
}

func TestCollectUnreadableFileIsPerLigand(t *testing.T) {
	base := t.TempDir()
	writeResult(t, base, "drugA", "affinity,lddt\n1.0\n")
	writeResult(t, base, "drugB", "affinity,lddt\n5.0,0.5\n")

	table, outcomes, err := newCollector(base).Collect([]domain.Ligand{{Name: "drugA"}, {Name: "drugB"}})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if outcomes[0].Status != domain.StatusInvalid || table.Len() != 1 {
		t.Fatalf("unexpected result %+v %+v", outcomes, table)
	}
}

func TestCollectEmpty(t *testing.T) {
	_, outcomes, err := newCollector(t.TempDir()).Collect([]domain.Ligand{{Name: "drugA"}})
	if !errors.Is(err, ErrEmptyResultSet) {
		t.Fatalf("expected ErrEmptyResultSet, got %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(outcomes))
	}
}

func TestCollectGroupsAtMostCatalogSize(t *testing.T) {
	base := t.TempDir()
	names := []string{"l1", "l2", "l3", "l4", "l5"}
	var ligands []domain.Ligand
	present := map[string]bool{}
	for i, n := range names {
		ligands = append(ligands, domain.Ligand{Name: n, Descriptor: "C"})
		if i%2 == 0 {
			writeResult(t, base, n, "affinity,lddt\n1,0.5\n")
			present[n] = true
		}
	}
	table, _, err := newCollector(base).Collect(ligands)
	if err != nil {
		t.Fatal(err)
	}
	groups := map[string]bool{}
	for _, rec := range table.Records() {
		groups[rec["name"]] = true
	}
	if diff := cmp.Diff(present, groups); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendUnionsColumns(t *testing.T) {
	a := domain.Table{Columns: []string{"affinity", "name"}, Rows: [][]string{{"1", "a"}}}
	b := domain.Table{Columns: []string{"lddt", "affinity", "name"}, Rows: [][]string{{"0.4", "2", "b"}}}
	got := Append(a, b)
	want := domain.Table{
		Columns: []string{"affinity", "name", "lddt"},
		Rows:    [][]string{{"1", "a", ""}, {"2", "b", "0.4"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("append mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTableEmpty(t *testing.T) {
	if _, err := ParseTable(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}
