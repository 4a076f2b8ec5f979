package events

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event types written during a run.
const (
	RunStart        = "run.start"
	LigandDocked    = "ligand.docked"
	LigandFailed    = "ligand.failed"
	LigandCollected = "ligand.collected"
	LigandMissing   = "ligand.missing"
	RunEmpty        = "run.empty"
	RunFinish       = "run.finish"
	RunAbort        = "run.abort"
)

// Writer appends events as JSON lines to Path. An empty Path disables it.
type Writer struct {
	Path string
	Now  func() time.Time

	mu *sync.Mutex
}

type EventPayload map[string]any

type Event struct {
	TS      string       `json:"ts"`
	Type    string       `json:"type"`
	RunID   string       `json:"run_id"`
	Ligand  string       `json:"ligand,omitempty"`
	Payload EventPayload `json:"payload"`
}

// NewWriter returns a Writer for path.
func NewWriter(path string, now func() time.Time) Writer {
	return Writer{Path: path, Now: now, mu: &sync.Mutex{}}
}

func (w Writer) Append(evtType, runID, ligand string, payload EventPayload) error {
	if w.Path == "" {
		return nil
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(Event{
		TS:      w.Now().UTC().Format(time.RFC3339),
		Type:    evtType,
		RunID:   runID,
		Ligand:  ligand,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if w.mu != nil {
		w.mu.Lock()
		defer w.mu.Unlock()
	}
	f, err := os.OpenFile(w.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append event: %w", err)
	}
	return f.Close()
}
