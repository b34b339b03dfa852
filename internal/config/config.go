// Package config loads recorder settings from defaults, an optional TOML file,
// a .env file and the process environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every recorder setting. TOML keys mirror the environment
// variable names in snake_case.
type Config struct {
	FFmpegBinary    string   `toml:"ffmpeg_binary"`
	RTSPURL         string   `toml:"rtsp_url"`
	OutputDir       string   `toml:"output_dir"`
	SegmentDuration int      `toml:"segment_duration"`
	OutputFormat    string   `toml:"output_format"`
	HWAcceleration  string   `toml:"hw_acceleration"`
	RTSPTransport   string   `toml:"rtsp_transport"`
	DisableAudio    bool     `toml:"disable_audio"`
	LogLevel        string   `toml:"log_level"`
	LogDir          string   `toml:"log_dir"`
	LogMaxSizeMB    int      `toml:"log_max_size_mb"`
	LogBackupCount  int      `toml:"log_backup_count"`
	EngineLog       bool     `toml:"engine_log"`
	RetryDelay      Duration `toml:"retry_delay"`
	RestartPolicy   string   `toml:"restart_policy"`
	MaxRetryDelay   Duration `toml:"max_retry_delay"`
	ShutdownGrace   Duration `toml:"shutdown_grace"`
	StopTimeout     Duration `toml:"stop_timeout"`
	PIDFile         string   `toml:"pid_file"`
}

// Duration accepts Go duration strings ("5s") or bare integer seconds.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML strings.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		FFmpegBinary:    "/usr/local/bin/ffmpeg",
		OutputDir:       "recordings",
		SegmentDuration: 900,
		OutputFormat:    "mp4",
		RTSPTransport:   "tcp",
		LogLevel:        "info",
		LogDir:          "logs",
		LogMaxSizeMB:    10,
		LogBackupCount:  5,
		RetryDelay:      Duration{5 * time.Second},
		RestartPolicy:   "fixed",
		MaxRetryDelay:   Duration{60 * time.Second},
		ShutdownGrace:   Duration{5 * time.Second},
		StopTimeout:     Duration{15 * time.Second},
	}
}

// Options controls where Load looks for settings.
type Options struct {
	ConfigPath string // Optional TOML file; RTSPREC_CONFIG is used when empty
	DotEnvPath string // Defaults to ".env" in the working directory
	Environ    func(string) (string, bool)
}

// Load builds a Config from defaults, the TOML file, the .env file and the environment.
// Relative paths are resolved against the working directory so a detached
// supervisor sees the same locations as the launcher that spawned it.
func Load(opts Options) (*Config, error) {
	lookup := opts.Environ
	if lookup == nil {
		lookup = os.LookupEnv
	}

	dotEnvPath := opts.DotEnvPath
	if dotEnvPath == "" {
		dotEnvPath = ".env"
	}
	dotEnv, err := readDotEnv(dotEnvPath)
	if err != nil {
		return nil, err
	}
	// Process environment wins over .env, matching setdefault semantics.
	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotEnv[key]
		return v, ok
	}

	cfg := Default()

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath, _ = get("RTSPREC_CONFIG")
	}
	if strings.TrimSpace(configPath) != "" {
		if err := cfg.loadFile(configPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(get); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(get func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	str("FFMPEG_BINARY", &c.FFmpegBinary)
	str("RTSP_URL", &c.RTSPURL)
	str("OUTPUT_DIR", &c.OutputDir)
	str("OUTPUT_FORMAT", &c.OutputFormat)
	str("HW_ACCELERATION", &c.HWAcceleration)
	str("RTSP_TRANSPORT", &c.RTSPTransport)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_DIR", &c.LogDir)
	str("RESTART_POLICY", &c.RestartPolicy)
	str("PID_FILE", &c.PIDFile)

	var errs []error
	integer := func(key string, dst *int) {
		v, ok := get(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	integer("SEGMENT_DURATION", &c.SegmentDuration)
	integer("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	integer("LOG_BACKUP_COUNT", &c.LogBackupCount)

	boolean := func(key string, dst *bool) {
		v, ok := get(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	boolean("DISABLE_AUDIO", &c.DisableAudio)
	boolean("ENGINE_LOG", &c.EngineLog)

	duration := func(key string, dst *Duration) {
		v, ok := get(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		dst.Duration = d
	}
	duration("RETRY_DELAY", &c.RetryDelay)
	duration("MAX_RETRY_DELAY", &c.MaxRetryDelay)
	duration("SHUTDOWN_GRACE", &c.ShutdownGrace)
	duration("STOP_TIMEOUT", &c.StopTimeout)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func (c *Config) normalize() {
	c.OutputFormat = strings.TrimPrefix(strings.TrimSpace(c.OutputFormat), ".")
	c.HWAcceleration = strings.ToLower(strings.TrimSpace(c.HWAcceleration))
	c.RTSPTransport = strings.ToLower(strings.TrimSpace(c.RTSPTransport))
	c.RestartPolicy = strings.ToLower(strings.TrimSpace(c.RestartPolicy))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.OutputDir = absPath(c.OutputDir)
	c.LogDir = absPath(c.LogDir)
	if c.PIDFile != "" {
		c.PIDFile = absPath(c.PIDFile)
	}
}

// SegmentInterval returns the segment duration as a time.Duration.
func (c *Config) SegmentInterval() time.Duration {
	return time.Duration(c.SegmentDuration) * time.Second
}

// EngineLogPath returns where persisted engine stderr goes, or "" when disabled.
func (c *Config) EngineLogPath() string {
	if !c.EngineLog {
		return ""
	}
	return filepath.Join(c.LogDir, "ffmpeg.log")
}

// SupervisorLogPath returns the rotating supervisor log location.
func (c *Config) SupervisorLogPath() string {
	return filepath.Join(c.LogDir, "rtsp_recorder.log")
}

// LauncherLogPath returns the append-only launcher audit log location.
func (c *Config) LauncherLogPath() string {
	return filepath.Join(c.LogDir, "launcher.log")
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func absPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// readDotEnv parses KEY=VALUE lines. Blank lines and # comments are skipped,
// surrounding single or double quotes are stripped. A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	values := make(map[string]string)
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(key), "export "))
		val = strings.TrimSpace(val)
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				val = val[1 : len(val)-1]
			}
		}
		values[key] = val
	}
	return values, nil
}
