package rank

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ligscreen/internal/config"
	"ligscreen/internal/domain"
)

func defaultRanker() Ranker {
	return New(config.Default().Scoring)
}

func table(rows ...[]string) domain.Table {
	return domain.Table{Columns: []string{"affinity", "lddt", "name"}, Rows: rows}
}

func names(scored []domain.ScoredLigand) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Name
	}
	return out
}

func TestRankTwoLigandScenario(t *testing.T) {
	scored, err := defaultRanker().Rank(table(
		[]string{"2.0", "0.9", "drugA"},
		[]string{"5.0", "0.5", "drugB"},
	))
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	top, err := Top(scored, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Name != "drugA" {
		t.Fatalf("expected drugA on top, got %v", names(top))
	}
	if top[0].CombinedScore != 1.0 || top[0].NormAffinity != 1.0 || top[0].NormLDDT != 1.0 {
		t.Fatalf("unexpected scores %+v", top[0])
	}
	if scored[1].CombinedScore != 0 {
		t.Fatalf("expected drugB combined 0, got %v", scored[1].CombinedScore)
	}
}

func TestRankMissingColumn(t *testing.T) {
	for _, col := range []string{"name", "affinity", "lddt"} {
		cols := []string{}
		for _, c := range []string{"name", "affinity", "lddt"} {
			if c != col {
				cols = append(cols, c)
			}
		}
		_, err := defaultRanker().Rank(domain.Table{Columns: cols, Rows: [][]string{{"x", "1"}}})
		var mc *MissingColumnError
		if !errors.As(err, &mc) || mc.Column != col {
			t.Fatalf("expected missing %s, got %v", col, err)
		}
		if !errors.Is(err, ErrMissingColumn) {
			t.Fatalf("expected ErrMissingColumn match for %s", col)
		}
	}
}

func TestRankInvalidValue(t *testing.T) {
	_, err := defaultRanker().Rank(table(
		[]string{"2.0", "0.9", "drugA"},
		[]string{"", "0.5", "drugB"},
	))
	var iv *InvalidValueError
	if !errors.As(err, &iv) || iv.Column != "affinity" || iv.Row != 2 {
		t.Fatalf("expected invalid affinity on row 2, got %v", err)
	}
}

func TestRankDegenerateColumn(t *testing.T) {
	scored, err := defaultRanker().Rank(table(
		[]string{"3.0", "0.9", "a"},
		[]string{"3.0", "0.5", "b"},
	))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range scored {
		if s.NormAffinity != 0.5 {
			t.Fatalf("expected midpoint fill for constant affinity, got %v", s.NormAffinity)
		}
	}
	if scored[0].Name != "a" || scored[0].CombinedScore != 0.75 {
		t.Fatalf("unexpected top %+v", scored[0])
	}
	single, err := defaultRanker().Rank(table([]string{"1", "1", "only"}))
	if err != nil || single[0].CombinedScore != 0.5 {
		t.Fatalf("single row: %+v %v", single, err)
	}
}

func TestRankDegenerateFillIsNotInverted(t *testing.T) {
	r := Ranker{AffinityWeight: 0.5, LDDTWeight: 0.5, DegenerateFill: 0.8}
	scored, err := r.Rank(table(
		[]string{"3", "0.7", "a"},
		[]string{"3", "0.7", "b"},
	))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range scored {
		if s.NormAffinity != 0.8 || s.NormLDDT != 0.8 {
			t.Fatalf("expected fill 0.8 in both columns, got %+v", s)
		}
	}
	if got := InvertedMinMax([]float64{1, 3}, 0.8); got[0] != 1 || got[1] != 0 {
		t.Fatalf("inverted scaling = %v", got)
	}
}

func TestRankTiesKeepTableOrder(t *testing.T) {
	scored, err := defaultRanker().Rank(table(
		[]string{"1", "0", "first"},
		[]string{"2", "0.5", "second"},
		[]string{"3", "1", "third"},
		[]string{"1", "0", "fourth"},
	))
	if err != nil {
		t.Fatal(err)
	}
	// first/fourth and second/third all score 0.5.
	want := []string{"first", "second", "third", "fourth"}
	if diff := cmp.Diff(want, names(scored)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestTop(t *testing.T) {
	scored := []domain.ScoredLigand{{Name: "a"}, {Name: "b"}}
	got, err := Top(scored, 3)
	if err != nil || len(got) != 2 {
		t.Fatalf("k beyond length: %v %v", got, err)
	}
	if _, err := Top(scored, 0); err == nil {
		t.Fatal("expected error for k=0")
	}
}

func TestMinMaxProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(30)
		values := make([]float64, n)
		for i := range values {
			values[i] = rng.NormFloat64() * 10
		}
		values[0], values[1] = -100, 100
		norm := MinMax(values, 0.5)
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range norm {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if math.Abs(lo) > 1e-12 || math.Abs(hi-1) > 1e-12 {
			t.Fatalf("trial %d: range [%v, %v]", trial, lo, hi)
		}
	}
}

func TestCombinedScoreBoundsAndTopPrefix(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 30; trial++ {
		n := 2 + rng.Intn(20)
		var rows [][]string
		for i := 0; i < n; i++ {
			rows = append(rows, []string{
				strconv.FormatFloat(rng.Float64()*12-6, 'g', -1, 64),
				strconv.FormatFloat(rng.Float64(), 'g', -1, 64),
				"lig" + strconv.Itoa(i),
			})
		}
		scored, err := defaultRanker().Rank(table(rows...))
		if err != nil {
			t.Fatal(err)
		}
		for i, s := range scored {
			if s.CombinedScore < 0 || s.CombinedScore > 1 {
				t.Fatalf("score out of range: %+v", s)
			}
			if i > 0 && scored[i-1].CombinedScore < s.CombinedScore {
				t.Fatalf("not sorted descending at %d", i)
			}
		}
		k := 1 + rng.Intn(n+3)
		top, err := Top(scored, k)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(names(scored)[:len(top)], names(top)); diff != "" {
			t.Fatalf("top-k is not a prefix:\n%s", diff)
		}
	}
}
