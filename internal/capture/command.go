package capture

import (
	"os"
	"runtime"
	"strconv"
)

// Options are the engine settings that shape an invocation.
type Options struct {
	Binary          string
	StreamURL       string
	Transport       string // tcp, udp, ...; empty leaves the engine default
	HWAcceleration  string // "", "none", "auto" or an explicit hwaccel name
	DisableAudio    bool
	SegmentDuration int // Seconds
}

// CommandBuilder turns Options and a Layout into an engine argv.
type CommandBuilder struct {
	opts   Options
	layout *Layout

	// Probing hooks, replaced in tests.
	goos       string
	deviceFile func(path string) bool
}

// NewCommandBuilder creates a builder for ffmpeg's segment muxer.
func NewCommandBuilder(opts Options, layout *Layout) *CommandBuilder {
	return &CommandBuilder{
		opts:   opts,
		layout: layout,
		goos:   runtime.GOOS,
		deviceFile: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// Build returns the full argv, engine path first.
func (b *CommandBuilder) Build() []string {
	argv := []string{
		b.opts.Binary,
		"-y",
		"-hide_banner",
		"-loglevel", "warning",
	}

	if b.opts.Transport != "" {
		argv = append(argv, "-rtsp_transport", b.opts.Transport)
	}

	if hw := b.ResolveHWAccel(); hw != "" {
		argv = append(argv, "-hwaccel", hw)
	}

	argv = append(argv, "-i", b.opts.StreamURL, "-c:v", "copy")
	if b.opts.DisableAudio {
		argv = append(argv, "-an")
	} else {
		argv = append(argv, "-c:a", "copy")
	}

	argv = append(argv,
		"-f", "segment",
		"-segment_time", strconv.Itoa(b.opts.SegmentDuration),
		"-segment_format", b.layout.Extension,
		"-strftime", "1",
		"-reset_timestamps", "1",
		b.layout.OutputTemplate(),
	)
	return argv
}

// ResolveHWAccel maps the configured mode to an ffmpeg -hwaccel value, or "" for none.
// "auto" picks videotoolbox on macOS, then cuda, then vaapi when their devices exist.
func (b *CommandBuilder) ResolveHWAccel() string {
	switch b.opts.HWAcceleration {
	case "", "none", "off":
		return ""
	case "auto":
		switch {
		case b.goos == "darwin":
			return "videotoolbox"
		case b.deviceFile("/dev/nvidia0"):
			return "cuda"
		case b.deviceFile("/dev/dri/renderD128"):
			return "vaapi"
		default:
			return ""
		}
	default:
		return b.opts.HWAcceleration
	}
}
