// Package collect gathers the per-ligand result files left by the docking tool
// into one combined table.
package collect

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"ligscreen/internal/domain"
	"ligscreen/internal/logging"
)

// NameColumn is stamped on every collected row.
const NameColumn = "name"

var (
	ErrMissingResultFile = errors.New("result file not found")
	ErrEmptyResultSet    = errors.New("no results files found")
)

// Collector reads <BaseDir>/<ligand>/<ResultFile> for every ligand.
type Collector struct {
	BaseDir    string
	ResultFile string
	Log        *slog.Logger
	// OnResult, if set, is called after each ligand is processed.
	OnResult func(domain.Outcome)
}

func (c Collector) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return logging.New("collect")
}

// ResultPath returns where the docking tool is expected to leave results for name.
func (c Collector) ResultPath(name string) string {
	return filepath.Join(c.BaseDir, name, c.ResultFile)
}

// Collect merges the result files of ligands in catalog order. Missing or
// unreadable files are reported in the outcomes and skipped. When no rows were
// collected the returned error is ErrEmptyResultSet.
func (c Collector) Collect(ligands []domain.Ligand) (domain.Table, []domain.Outcome, error) {
	log := c.logger()
	var combined domain.Table
	outcomes := make([]domain.Outcome, 0, len(ligands))
	for _, lig := range ligands {
		path := c.ResultPath(lig.Name)
		out := domain.Outcome{Ligand: lig, ResultPath: path}
		t, err := ReadTable(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Warn("results file not found", "ligand", lig.Name, "path", path)
			out.Status = domain.StatusMissing
			out.Err = fmt.Errorf("%s: %w", lig.Name, ErrMissingResultFile)
			out.Error = out.Err.Error()
		case err != nil:
			log.Warn("results file unreadable", "ligand", lig.Name, "path", path, "err", err)
			out.Status = domain.StatusInvalid
			out.Err = err
			out.Error = err.Error()
		default:
			t = StampName(t, lig.Name)
			combined = Append(combined, t)
			out.Status = domain.StatusCollected
			out.Rows = t.Len()
			log.Info("results file found", "ligand", lig.Name, "path", path, "rows", t.Len())
		}
		outcomes = append(outcomes, out)
		if c.OnResult != nil {
			c.OnResult(out)
		}
	}
	if combined.Len() == 0 {
		log.Warn("no results files found", "ligands", len(ligands))
		return combined, outcomes, ErrEmptyResultSet
	}
	return combined, outcomes, nil
}

// ReadTable parses a CSV file with a header row.
func ReadTable(path string) (domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Table{}, err
	}
	defer f.Close()
	return ParseTable(f)
}

// ParseTable parses CSV with a header row. Every row must have as many fields as the header.
func ParseTable(r io.Reader) (domain.Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Table{}, fmt.Errorf("empty results table")
		}
		return domain.Table{}, fmt.Errorf("read results header: %w", err)
	}
	t := domain.Table{Columns: header}
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Table{}, fmt.Errorf("read results: %w", err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// StampName sets the name column of every row, adding the column when absent.
func StampName(t domain.Table, name string) domain.Table {
	idx := t.Index(NameColumn)
	out := domain.Table{Columns: append([]string(nil), t.Columns...)}
	if idx < 0 {
		out.Columns = append(out.Columns, NameColumn)
		idx = len(out.Columns) - 1
	}
	for _, row := range t.Rows {
		r := make([]string, len(out.Columns))
		copy(r, row)
		r[idx] = name
		out.Rows = append(out.Rows, r)
	}
	return out
}

// Append concatenates next onto acc. Columns are unioned in first-seen order and
// cells absent from a source table are left empty.
func Append(acc, next domain.Table) domain.Table {
	out := domain.Table{Columns: append([]string(nil), acc.Columns...), Rows: acc.Rows}
	for _, c := range next.Columns {
		if out.Index(c) < 0 {
			out.Columns = append(out.Columns, c)
		}
	}
	width := len(out.Columns)
	if width != len(acc.Columns) {
		rows := make([][]string, len(acc.Rows))
		for i, row := range acc.Rows {
			r := make([]string, width)
			copy(r, row)
			rows[i] = r
		}
		out.Rows = rows
	}
	pos := make([]int, len(next.Columns))
	for i, c := range next.Columns {
		pos[i] = out.Index(c)
	}
	for _, row := range next.Rows {
		r := make([]string, width)
		for i, v := range row {
			if i < len(pos) {
				r[pos[i]] = v
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}
