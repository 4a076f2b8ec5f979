// Package rank scores collected docking results and selects the best ligands.
//
// Affinity and lDDT are min–max scaled over the current run. Affinity is
// inverted after scaling because a lower predicted affinity value is better,
// so every normalized column reads higher-is-better before weighting.
package rank

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"ligscreen/internal/config"
	"ligscreen/internal/domain"
)

// Required columns, in the order they are checked.
const (
	ColumnName     = "name"
	ColumnAffinity = "affinity"
	ColumnLDDT     = "lddt"
)

var ErrMissingColumn = errors.New("missing column")

type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("the column %q is missing from the results", e.Column)
}

func (e *MissingColumnError) Is(target error) bool { return target == ErrMissingColumn }

// InvalidValueError reports a cell that is not a finite number. Row is 1-based.
type InvalidValueError struct {
	Column string
	Row    int
	Value  string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("row %d: %s value %q is not a finite number", e.Row, e.Column, e.Value)
}

// Ranker computes combined scores. The zero value is not usable; build it with New.
type Ranker struct {
	AffinityWeight float64
	LDDTWeight     float64
	// DegenerateFill is assigned to every row when a column has zero range.
	DegenerateFill float64
}

// New returns a Ranker configured from the scoring section.
func New(s config.Scoring) Ranker {
	return Ranker{
		AffinityWeight: s.AffinityWeight,
		LDDTWeight:     s.LDDTWeight,
		DegenerateFill: s.DegenerateFill,
	}
}

// Rank scores every row of t and returns them sorted by descending combined
// score. Ties keep table order.
func (r Ranker) Rank(t domain.Table) ([]domain.ScoredLigand, error) {
	idx := make(map[string]int, 3)
	for _, col := range []string{ColumnName, ColumnAffinity, ColumnLDDT} {
		i := t.Index(col)
		if i < 0 {
			return nil, &MissingColumnError{Column: col}
		}
		idx[col] = i
	}
	affinity, err := column(t, ColumnAffinity, idx[ColumnAffinity])
	if err != nil {
		return nil, err
	}
	lddt, err := column(t, ColumnLDDT, idx[ColumnLDDT])
	if err != nil {
		return nil, err
	}
	normAffinity := InvertedMinMax(affinity, r.DegenerateFill)
	normLDDT := MinMax(lddt, r.DegenerateFill)

	scored := make([]domain.ScoredLigand, t.Len())
	for i, row := range t.Rows {
		scored[i] = domain.ScoredLigand{
			Name:          row[idx[ColumnName]],
			Affinity:      affinity[i],
			LDDT:          lddt[i],
			NormAffinity:  normAffinity[i],
			NormLDDT:      normLDDT[i],
			CombinedScore: r.AffinityWeight*normAffinity[i] + r.LDDTWeight*normLDDT[i],
			Columns:       t.Columns,
			Row:           row,
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].CombinedScore > scored[j].CombinedScore
	})
	return scored, nil
}

// Top returns the first k entries of a ranked slice, or all of them when k
// exceeds its length. k must be positive.
func Top(scored []domain.ScoredLigand, k int) ([]domain.ScoredLigand, error) {
	if k <= 0 {
		return nil, fmt.Errorf("top-k must be a positive integer, got %d", k)
	}
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// MinMax rescales values onto [0,1]. A zero-range input maps every value to fill.
func MinMax(values []float64, fill float64) []float64 {
	return minMax(values, fill, false)
}

// InvertedMinMax is 1 - MinMax for columns where lower is better. A zero-range
// input still maps every value to fill, not 1 - fill.
func InvertedMinMax(values []float64, fill float64) []float64 {
	return minMax(values, fill, true)
}

func minMax(values []float64, fill float64, invert bool) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	for i, v := range values {
		if span == 0 {
			out[i] = fill
			continue
		}
		out[i] = (v - lo) / span
		if invert {
			out[i] = 1 - out[i]
		}
	}
	return out
}

func column(t domain.Table, name string, idx int) ([]float64, error) {
	out := make([]float64, t.Len())
	for i, row := range t.Rows {
		raw := ""
		if idx < len(row) {
			raw = strings.TrimSpace(row[idx])
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &InvalidValueError{Column: name, Row: i + 1, Value: raw}
		}
		out[i] = v
	}
	return out, nil
}
