package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

var validTransports = map[string]bool{
	"":              true, // Engine default
	"tcp":           true,
	"udp":           true,
	"udp_multicast": true,
	"http":          true,
}

var validPolicies = map[string]bool{
	"fixed":   true,
	"backoff": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate ensures the configuration can drive a recording session.
// A missing engine binary is not an error here; see EngineWarning.
func (c *Config) Validate() error {
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateRestart(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStream() error {
	raw := strings.TrimSpace(c.RTSPURL)
	if raw == "" {
		return fmt.Errorf("%w: RTSP_URL must be set", ErrInvalid)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: RTSP_URL: %v", ErrInvalid, err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return fmt.Errorf("%w: RTSP_URL must start with rtsp:// or rtsps://", ErrInvalid)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: RTSP_URL has no host", ErrInvalid)
	}
	if !validTransports[c.RTSPTransport] {
		return fmt.Errorf("%w: RTSP_TRANSPORT %q is not one of tcp, udp, udp_multicast, http", ErrInvalid, c.RTSPTransport)
	}
	return nil
}

func (c *Config) validateOutput() error {
	if c.SegmentDuration <= 0 {
		return fmt.Errorf("%w: SEGMENT_DURATION must be positive", ErrInvalid)
	}
	if c.OutputFormat == "" {
		return fmt.Errorf("%w: OUTPUT_FORMAT must be set", ErrInvalid)
	}
	if strings.ContainsAny(c.OutputFormat, "/%") {
		return fmt.Errorf("%w: OUTPUT_FORMAT %q is not a file extension", ErrInvalid, c.OutputFormat)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: OUTPUT_DIR must be set", ErrInvalid)
	}
	return nil
}

func (c *Config) validateRestart() error {
	if !validPolicies[c.RestartPolicy] {
		return fmt.Errorf("%w: RESTART_POLICY %q is not one of fixed, backoff", ErrInvalid, c.RestartPolicy)
	}
	if c.RetryDelay.Duration <= 0 {
		return fmt.Errorf("%w: RETRY_DELAY must be positive", ErrInvalid)
	}
	if c.RestartPolicy == "backoff" && c.MaxRetryDelay.Duration < c.RetryDelay.Duration {
		return fmt.Errorf("%w: MAX_RETRY_DELAY must be at least RETRY_DELAY", ErrInvalid)
	}
	if c.ShutdownGrace.Duration <= 0 {
		return fmt.Errorf("%w: SHUTDOWN_GRACE must be positive", ErrInvalid)
	}
	if c.StopTimeout.Duration <= 0 {
		return fmt.Errorf("%w: STOP_TIMEOUT must be positive", ErrInvalid)
	}
	// The supervisor may spend a grace period on SIGTERM and another on SIGKILL.
	if c.StopTimeout.Duration <= 2*c.ShutdownGrace.Duration {
		return fmt.Errorf("%w: STOP_TIMEOUT (%s) must exceed twice SHUTDOWN_GRACE (%s)",
			ErrInvalid, c.StopTimeout.Duration, c.ShutdownGrace.Duration)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("%w: LOG_LEVEL %q is not one of debug, info, warn, error", ErrInvalid, c.LogLevel)
	}
	if c.LogMaxSizeMB <= 0 {
		return fmt.Errorf("%w: LOG_MAX_SIZE_MB must be positive", ErrInvalid)
	}
	if c.LogBackupCount < 0 {
		return fmt.Errorf("%w: LOG_BACKUP_COUNT must not be negative", ErrInvalid)
	}
	return nil
}

// EngineWarning describes a problem with the engine binary, or "" when it looks runnable.
// Kept separate from Validate: a late-mounted binary must not stop the supervisor.
func (c *Config) EngineWarning() string {
	info, err := os.Stat(c.FFmpegBinary)
	if err != nil {
		return fmt.Sprintf("engine binary not found at %s", c.FFmpegBinary)
	}
	if info.IsDir() {
		return fmt.Sprintf("engine binary %s is a directory", c.FFmpegBinary)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Sprintf("engine binary %s is not executable", c.FFmpegBinary)
	}
	return ""
}

// RedactedURL returns the stream URL with any password masked, for logs and status output.
func (c *Config) RedactedURL() string {
	u, err := url.Parse(c.RTSPURL)
	if err != nil || u.User == nil {
		return c.RTSPURL
	}
	return u.Redacted()
}
