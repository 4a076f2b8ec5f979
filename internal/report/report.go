// Package report writes screening results to disk and renders them for the terminal.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"ligscreen/internal/domain"
)

// Derived columns appended to the top-K file.
const (
	ColumnNormAffinity  = "norm_affinity"
	ColumnNormLDDT      = "norm_lddt"
	ColumnCombinedScore = "combined_score"
)

// WriteTable writes t as CSV at path, replacing any existing file.
func WriteTable(path string, t domain.Table) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeAtomic(path, buf.Bytes())
}

// WriteScored writes ranked rows with their passthrough columns followed by the
// normalized metrics and the combined score.
func WriteScored(path string, scored []domain.ScoredLigand) error {
	return WriteTable(path, ScoredTable(scored))
}

// ScoredTable flattens ranked rows back into a table.
func ScoredTable(scored []domain.ScoredLigand) domain.Table {
	var base []string
	if len(scored) > 0 {
		base = scored[0].Columns
	}
	t := domain.Table{Columns: append([]string(nil), base...)}
	derived := []string{ColumnNormAffinity, ColumnNormLDDT, ColumnCombinedScore}
	pos := make([]int, len(derived))
	for i, c := range derived {
		pos[i] = t.Index(c)
		if pos[i] < 0 {
			t.Columns = append(t.Columns, c)
			pos[i] = len(t.Columns) - 1
		}
	}
	for _, s := range scored {
		row := make([]string, len(t.Columns))
		copy(row, s.Row)
		row[pos[0]] = FormatFloat(s.NormAffinity)
		row[pos[1]] = FormatFloat(s.NormLDDT)
		row[pos[2]] = FormatFloat(s.CombinedScore)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// FormatFloat uses the shortest representation that round-trips, so reruns over
// the same inputs produce identical bytes.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeAtomic writes via a temp file and rename so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// RenderTop prints the ranked ligands as a table.
func RenderTop(w io.Writer, scored []domain.ScoredLigand) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "Name", "Affinity", "lDDT", "Norm Affinity", "Norm lDDT", "Combined"})
	for i, s := range scored {
		tw.AppendRow(table.Row{i + 1, s.Name, s.Affinity, s.LDDT,
			fmt.Sprintf("%.4f", s.NormAffinity), fmt.Sprintf("%.4f", s.NormLDDT), fmt.Sprintf("%.4f", s.CombinedScore)})
	}
	tw.Render()
}

// RenderOutcomes prints one line per ligand and stage.
func RenderOutcomes(w io.Writer, stage string, outcomes []domain.Outcome) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(stage)
	tw.AppendHeader(table.Row{"Ligand", "Status", "Exit", "Rows", "Detail"})
	for _, o := range outcomes {
		detail := o.Error
		if detail == "" {
			detail = o.ResultPath
		}
		tw.AppendRow(table.Row{o.Ligand.Name, o.Status, o.ExitCode, o.Rows, detail})
	}
	tw.Render()
}
