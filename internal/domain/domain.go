package domain

import "time"

// Ligand is one parsed catalog entry.
type Ligand struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
}

// DockingJob is the per-ligand unit of work handed to a dispatcher.
type DockingJob struct {
	Ligand    Ligand `json:"ligand"`
	OutputDir string `json:"output_dir"`
	InputFile string `json:"input_file"`
}

// Table is a tabular result set with string cells. Rows are aligned to Columns.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Index returns the position of column, or -1.
func (t Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Record returns row i as a column->value map.
func (t Table) Record(i int) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for j, c := range t.Columns {
		if j < len(t.Rows[i]) {
			out[c] = t.Rows[i][j]
		}
	}
	return out
}

// Records returns every row as a column->value map.
func (t Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for i := range t.Rows {
		out = append(out, t.Record(i))
	}
	return out
}

type ScoredLigand struct {
	Name          string   `json:"name"`
	Affinity      float64  `json:"affinity"`
	LDDT          float64  `json:"lddt"`
	NormAffinity  float64  `json:"norm_affinity"`
	NormLDDT      float64  `json:"norm_lddt"`
	CombinedScore float64  `json:"combined_score"`
	Columns       []string `json:"-"`
	Row           []string `json:"-"`
}

// Outcome statuses.
const (
	StatusDocked    = "docked"
	StatusFailed    = "failed"
	StatusCollected = "collected"
	StatusMissing   = "missing"
	StatusInvalid   = "invalid"
)

// Outcome is the per-ligand report shared by the dispatcher, the collector and the writer.
type Outcome struct {
	Ligand     Ligand `json:"ligand"`
	Status     string `json:"status" enum:"docked,failed,collected,missing,invalid"`
	ExitCode   int    `json:"exit_code"`
	Stderr     string `json:"stderr,omitempty"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
	ResultPath string `json:"result_path,omitempty"`
	Rows       int    `json:"rows"`
}

type RunSummary struct {
	RunID        string         `json:"run_id"`
	Started      time.Time      `json:"started" format:"date-time"`
	Finished     time.Time      `json:"finished" format:"date-time"`
	Dispatched   []Outcome      `json:"dispatched,omitempty"`
	Collected    []Outcome      `json:"collected"`
	CombinedPath string         `json:"combined_path,omitempty"`
	TopPath      string         `json:"top_path,omitempty"`
	TopK         int            `json:"top_k"`
	Top          []ScoredLigand `json:"top,omitempty"`
	Empty        bool           `json:"empty"`
}

// Partial reports whether any ligand failed to dock or produced no usable result file.
func (s RunSummary) Partial() bool {
	for _, o := range s.Dispatched {
		if o.Status == StatusFailed {
			return true
		}
	}
	for _, o := range s.Collected {
		if o.Status == StatusMissing || o.Status == StatusInvalid {
			return true
		}
	}
	return false
}
