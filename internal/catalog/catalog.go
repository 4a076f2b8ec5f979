// Package catalog parses the ligand list fed to a screening run.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"ligscreen/internal/domain"
)

// Column is the only catalog column read; its values are "<descriptor> <name>".
const Column = "ligand"

var ErrMalformedCatalog = errors.New("malformed catalog")

// MalformedError names the row and field that made the catalog unusable.
// Row is 1-based over data rows; 0 means the header.
type MalformedError struct {
	Row    int
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("malformed catalog: %s", e.Reason)
	}
	return fmt.Sprintf("malformed catalog: row %d: %s %s", e.Row, e.Field, e.Reason)
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformedCatalog }

// Load reads and validates the catalog at path.
func Load(path string) ([]domain.Ligand, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a CSV catalog and returns ligands in file order. The whole catalog
// is rejected if any row cannot be split into a descriptor and a unique name.
func Parse(r io.Reader) ([]domain.Ligand, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MalformedError{Reason: "catalog is empty"}
		}
		return nil, fmt.Errorf("read catalog header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == Column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, &MalformedError{Field: Column, Reason: fmt.Sprintf("missing %q column", Column)}
	}

	var out []domain.Ligand
	seen := make(map[string]int)
	row := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		row++
		value := ""
		if col < len(rec) {
			value = rec[col]
		}
		lig, err := Split(value)
		if err != nil {
			var me *MalformedError
			if errors.As(err, &me) {
				me.Row = row
			}
			return nil, err
		}
		if first, dup := seen[lig.Name]; dup {
			return nil, &MalformedError{Row: row, Field: "name", Reason: fmt.Sprintf("%q duplicates row %d", lig.Name, first)}
		}
		seen[lig.Name] = row
		out = append(out, lig)
	}
	return out, nil
}

// Split turns "<descriptor> <name>" into a Ligand. Only the first whitespace run
// separates the two parts; the name keeps any inner whitespace.
func Split(value string) (domain.Ligand, error) {
	value = strings.TrimSpace(value)
	idx := strings.IndexFunc(value, unicode.IsSpace)
	if value == "" {
		return domain.Ligand{}, &MalformedError{Field: "descriptor", Reason: "is empty"}
	}
	if idx < 0 {
		return domain.Ligand{}, &MalformedError{Field: "name", Reason: "is missing"}
	}
	lig := domain.Ligand{
		Descriptor: value[:idx],
		Name:       strings.TrimSpace(value[idx:]),
	}
	if strings.ContainsAny(lig.Name, `/\`) || lig.Name == "." || lig.Name == ".." {
		return domain.Ligand{}, &MalformedError{Field: "name", Reason: fmt.Sprintf("%q is not usable as a directory name", lig.Name)}
	}
	// The name is passed to the docking tool as a flag value.
	if strings.HasPrefix(lig.Name, "-") {
		return domain.Ligand{}, &MalformedError{Field: "name", Reason: fmt.Sprintf("%q must not start with '-'", lig.Name)}
	}
	return lig, nil
}
