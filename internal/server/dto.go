package server

import (
	"ligscreen/internal/domain"
)

// Response payloads

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

type LigandResponse struct {
	Name       string `json:"name" example:"drugA"`
	Descriptor string `json:"descriptor" example:"CCO"`
}

type LigandListResponse struct {
	Count   int              `json:"count"`
	Ligands []LigandResponse `json:"ligands"`
}

type LigandStatusResponse struct {
	Name       string `json:"name"`
	Status     string `json:"status" enum:"collected,missing,invalid"`
	Rows       int    `json:"rows"`
	ResultPath string `json:"result_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ResultsResponse struct {
	Columns []string               `json:"columns"`
	Rows    []map[string]string    `json:"rows"`
	Ligands []LigandStatusResponse `json:"ligands"`
}

type ScoredLigandResponse struct {
	Rank          int               `json:"rank" example:"1"`
	Name          string            `json:"name" example:"drugA"`
	Affinity      float64           `json:"affinity"`
	LDDT          float64           `json:"lddt"`
	NormAffinity  float64           `json:"norm_affinity" minimum:"0" maximum:"1"`
	NormLDDT      float64           `json:"norm_lddt" minimum:"0" maximum:"1"`
	CombinedScore float64           `json:"combined_score" minimum:"0" maximum:"1"`
	Columns       map[string]string `json:"columns,omitempty"`
}

type TopResponse struct {
	K       int                    `json:"k"`
	Count   int                    `json:"count"`
	Ligands []ScoredLigandResponse `json:"ligands"`
}

func ligandResponse(l domain.Ligand) LigandResponse {
	return LigandResponse{Name: l.Name, Descriptor: l.Descriptor}
}

func ligandStatusResponse(o domain.Outcome) LigandStatusResponse {
	return LigandStatusResponse{
		Name:       o.Ligand.Name,
		Status:     o.Status,
		Rows:       o.Rows,
		ResultPath: o.ResultPath,
		Error:      o.Error,
	}
}

func scoredLigandResponse(rank int, s domain.ScoredLigand) ScoredLigandResponse {
	cols := make(map[string]string, len(s.Columns))
	for i, c := range s.Columns {
		if i < len(s.Row) {
			cols[c] = s.Row[i]
		}
	}
	return ScoredLigandResponse{
		Rank:          rank,
		Name:          s.Name,
		Affinity:      s.Affinity,
		LDDT:          s.LDDT,
		NormAffinity:  s.NormAffinity,
		NormLDDT:      s.NormLDDT,
		CombinedScore: s.CombinedScore,
		Columns:       cols,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
