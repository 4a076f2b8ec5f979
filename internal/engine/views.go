package engine

import (
	"context"

	"ligscreen/internal/collect"
	"ligscreen/internal/domain"
	"ligscreen/internal/logging"
	"ligscreen/internal/rank"
)

// Results collects the on-disk result files without writing anything.
func (e Engine) Results(ctx context.Context) (domain.Table, []domain.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.Table{}, nil, err
	}
	ligands, err := e.Ligands()
	if err != nil {
		return domain.Table{}, nil, err
	}
	c := collect.Collector{
		BaseDir:    e.Config.OutputDir,
		ResultFile: e.Config.Files.Result,
		Log:        logging.New("collect"),
	}
	return c.Collect(ligands)
}

// Ranked returns the top k ligands computed from the on-disk result files.
func (e Engine) Ranked(ctx context.Context, k int) ([]domain.ScoredLigand, error) {
	k, err := e.topK(ScreenOptions{TopK: k})
	if err != nil {
		return nil, err
	}
	combined, _, err := e.Results(ctx)
	if err != nil {
		return nil, err
	}
	scored, err := rank.New(e.Config.Scoring).Rank(combined)
	if err != nil {
		return nil, err
	}
	return rank.Top(scored, k)
}
