package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"github.com/showrunner/controller/internal/render"
	"github.com/showrunner/controller/internal/telemetry"
)

// statusLine prints one console line per second summarizing engine state
// and the latest device telemetry, the daemon's analogue of the teacher's
// "\r%d frames ..." counter line. On a non-interactive stderr (piped to a
// log file) it instead prints a full rodaine/table render, since the
// carriage-return trick only helps a live terminal.
type statusLine struct {
	engine *render.Engine
	tw     *telemetry.Writer
}

func newStatusLine(engine *render.Engine, tw *telemetry.Writer) *statusLine {
	return &statusLine{engine: engine, tw: tw}
}

func (s *statusLine) run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	interactive := isTerminal(os.Stderr)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if interactive {
				s.printInline()
			} else {
				s.printTable()
			}
		}
	}
}

func (s *statusLine) printInline() {
	snap := s.tw.Latest()
	state := s.engine.State()
	line := fmt.Sprintf("\r%s  cmd=%s pix=%s fb=%s mode=%s",
		stateColor(state)(state.String()),
		snap.Values["cmd"], snap.Values["pix"], snap.Values["fb"], snap.Values["mode"])
	fmt.Fprint(os.Stderr, line)
}

func (s *statusLine) printTable() {
	snap := s.tw.Latest()
	tbl := table.New("state", "cmd", "pix", "flush", "err", "t0", "t1", "v", "i", "fb", "mode", "fault")
	tbl.WithWriter(os.Stderr)
	tbl.AddRow(
		s.engine.State().String(),
		snap.Values["cmd"], snap.Values["pix"], snap.Values["flush"], snap.Values["err"],
		snap.Values["t0"], snap.Values["t1"], snap.Values["v"], snap.Values["i"],
		snap.Values["fb"], snap.Values["mode"], snap.Values["fault"],
	)
	tbl.Print()
}

func stateColor(st render.State) func(string, ...interface{}) string {
	switch st {
	case render.Rendering:
		return color.GreenString
	case render.PausedByTakeover:
		return color.YellowString
	default:
		return color.New().SprintfFunc()
	}
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
