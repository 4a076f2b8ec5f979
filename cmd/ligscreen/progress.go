package main

import (
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"golang.org/x/term"
)

func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// progressBar renders one go-pretty tracker per engine stage.
type progressBar struct {
	out     io.Writer
	pw      progress.Writer
	tracker *progress.Tracker
	stage   string
}

func newProgressBar(out io.Writer) *progressBar {
	return &progressBar{out: out}
}

func (p *progressBar) Start(stage string, total int) {
	pw := progress.NewWriter()
	pw.SetOutputWriter(p.out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true
	p.pw = pw
	p.stage = stage
	p.tracker = &progress.Tracker{Message: stage, Total: int64(total), Units: progress.UnitsDefault}
	pw.AppendTracker(p.tracker)
	go pw.Render()
}

func (p *progressBar) Step(ligand string) {
	if p.tracker == nil {
		return
	}
	p.tracker.UpdateMessage(p.stage + " (" + ligand + ")")
	p.tracker.Increment(1)
}

func (p *progressBar) Done() {
	if p.pw == nil {
		return
	}
	p.tracker.UpdateMessage(p.stage)
	p.tracker.MarkAsDone()
	// Give the renderer one tick to draw the final state.
	time.Sleep(150 * time.Millisecond)
	p.pw.Stop()
	for p.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
	p.pw, p.tracker = nil, nil
}
