package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/rtsprec/internal/capture"
	"github.com/eliteGoblin/rtsprec/internal/infra"
)

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	t := newTable(os.Stdout, "rtsprec check")
	failed := false
	row := func(name string, err error, detail string) {
		result := "ok"
		if err != nil {
			result = "FAIL"
			detail = err.Error()
			failed = true
		}
		t.AppendRow(table.Row{name, result, detail})
	}

	row("configuration", cfg.Validate(), cfg.RedactedURL())

	if warning := cfg.EngineWarning(); warning != "" {
		t.AppendRow(table.Row{"engine binary", "WARN", warning})
	} else {
		t.AppendRow(table.Row{"engine binary", "ok", cfg.FFmpegBinary})
	}

	row("output directory", infra.NewFileSystemManager().EnsureDir(cfg.OutputDir), cfg.OutputDir)

	layout := capture.NewLayout(cfg.OutputDir, cfg.OutputFormat)
	builder := capture.NewCommandBuilder(capture.Options{
		Binary:          cfg.FFmpegBinary,
		StreamURL:       cfg.RedactedURL(),
		Transport:       cfg.RTSPTransport,
		HWAcceleration:  cfg.HWAcceleration,
		DisableAudio:    cfg.DisableAudio,
		SegmentDuration: cfg.SegmentDuration,
	}, layout)
	t.AppendSeparator()
	t.AppendRow(table.Row{"engine command", "", strings.Join(builder.Build(), " ")})
	t.AppendRow(table.Row{"restart policy", "", fmt.Sprintf("%s, retry delay %s", cfg.RestartPolicy, cfg.RetryDelay.Duration)})
	t.AppendRow(table.Row{"pid record", "", runtimePaths(cfg).PIDFile})

	t.Render()

	if failed {
		return fmt.Errorf("configuration check failed")
	}
	return nil
}
