package dispatch

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"ligscreen/internal/catalog"
	"ligscreen/internal/domain"
)

// PrepareJob creates the ligand's output directory under baseDir (if missing) and
// writes a fresh single-row input catalog holding only the descriptor.
func PrepareJob(baseDir, inputName string, lig domain.Ligand) (domain.DockingJob, error) {
	dir := filepath.Join(baseDir, lig.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.DockingJob{}, fmt.Errorf("create output dir for %s: %w", lig.Name, err)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{catalog.Column})
	_ = w.Write([]string{lig.Descriptor})
	w.Flush()
	if err := w.Error(); err != nil {
		return domain.DockingJob{}, fmt.Errorf("encode input for %s: %w", lig.Name, err)
	}
	input := filepath.Join(dir, inputName)
	if err := os.WriteFile(input, buf.Bytes(), 0o644); err != nil {
		return domain.DockingJob{}, fmt.Errorf("write input for %s: %w", lig.Name, err)
	}
	return domain.DockingJob{Ligand: lig, OutputDir: dir, InputFile: input}, nil
}
