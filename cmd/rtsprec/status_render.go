package main

import (
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"

	"github.com/eliteGoblin/rtsprec/internal/config"
	"github.com/eliteGoblin/rtsprec/internal/usecase"
)

// newTable returns a key/value table styled for the output device.
func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		t.SetStyle(table.StyleRounded)
	} else {
		t.SetStyle(table.StyleLight)
	}
	return t
}

func renderStatus(w io.Writer, st *usecase.InstanceStatus, cfg *config.Config) {
	t := newTable(w, "rtsprec status")

	if st.Running {
		inst := st.Instance
		t.AppendRow(table.Row{"State", "RUNNING"})
		t.AppendRow(table.Row{"PID", inst.PID})
		t.AppendRow(table.Row{"Found via", foundVia(string(inst.Source))})
		if !inst.StartedAt.IsZero() {
			t.AppendRow(table.Row{"Started", humanize.Time(inst.StartedAt)})
		}
		t.AppendRow(table.Row{"Command", strings.Join(inst.Cmdline, " ")})
	} else {
		t.AppendRow(table.Row{"State", "NOT RUNNING"})
	}

	t.AppendSeparator()
	t.AppendRow(table.Row{"Stream", cfg.RedactedURL()})
	t.AppendRow(table.Row{"Output", cfg.OutputDir})
	if st.LatestSegment != nil {
		seg := st.LatestSegment
		t.AppendRow(table.Row{"Latest segment", seg.Name})
		t.AppendRow(table.Row{"Written", humanize.Time(seg.ModTime) + ", " + humanize.Bytes(uint64(seg.Size))})
	} else if st.SegmentDir != "" {
		t.AppendRow(table.Row{"Latest segment", "none today"})
	}
	t.AppendRow(table.Row{"PID record", st.PIDRecord})

	t.Render()
}

func foundVia(source string) string {
	switch source {
	case "pid_record":
		return "PID record"
	case "process_scan":
		return "process table scan"
	default:
		return source
	}
}
