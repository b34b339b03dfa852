package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/rtsprec/internal/capture"
	"github.com/eliteGoblin/rtsprec/internal/daemon"
	"github.com/eliteGoblin/rtsprec/internal/domain"
	"github.com/eliteGoblin/rtsprec/internal/infra"
	"github.com/eliteGoblin/rtsprec/internal/policy"
	"github.com/eliteGoblin/rtsprec/internal/usecase"
)

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		if isConfigError(err) {
			fmt.Fprintf(os.Stderr, "fatal configuration error: %v\n", err)
		}
		return err
	}

	logger, err := infra.NewLogger(infra.LogOptions{
		Level:      cfg.LogLevel,
		FilePath:   cfg.SupervisorLogPath(),
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogBackupCount,
		Console:    os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	paths := runtimePaths(cfg)
	lock := infra.NewFileLock(paths.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		logger.Error("cannot acquire instance lock", zap.String("path", lock.Path()), zap.Error(err))
		return err
	}
	if !locked {
		logger.Error("another recorder is already running", zap.String("lock", lock.Path()))
		return fmt.Errorf("another recorder holds %s", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	if warning := cfg.EngineWarning(); warning != "" {
		logger.Warn(warning + "; will keep retrying")
	}

	layout := capture.NewLayout(cfg.OutputDir, cfg.OutputFormat)
	builder := capture.NewCommandBuilder(capture.Options{
		Binary:          cfg.FFmpegBinary,
		StreamURL:       cfg.RTSPURL,
		Transport:       cfg.RTSPTransport,
		HWAcceleration:  cfg.HWAcceleration,
		DisableAudio:    cfg.DisableAudio,
		SegmentDuration: cfg.SegmentDuration,
	}, layout)
	if hw := builder.ResolveHWAccel(); hw != "" {
		logger.Info("hardware acceleration enabled", zap.String("hwaccel", hw))
	}

	engine, err := infra.NewExecEngine(infra.EngineOptions{
		LogPath:    cfg.EngineLogPath(),
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogBackupCount,
	}, logger)
	if err != nil {
		return fmt.Errorf("create capture engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	restartPolicy, err := policy.NewRegistry().Build(cfg.RestartPolicy, policy.Settings{
		RetryDelay:    cfg.RetryDelay.Duration,
		MaxRetryDelay: cfg.MaxRetryDelay.Duration,
	})
	if err != nil {
		return err
	}

	fs := infra.NewFileSystemManager()
	cleaner := usecase.NewSegmentCleaner(fs, layout, logger)

	watcher, err := daemon.NewSegmentWatcher(layout.MatchesSegment, logger)
	if err != nil {
		logger.Warn("segment watcher unavailable", zap.Error(err))
		watcher = nil
	} else {
		defer func() { _ = watcher.Close() }()
	}

	supervisor := daemon.NewSupervisor(daemon.SupervisorConfig{
		ShutdownGrace: cfg.ShutdownGrace.Duration,
		StableAfter:   cfg.SegmentInterval(),
		RolloverCheck: time.Minute,
		StreamLabel:   cfg.RedactedURL(),
	}, engine, builder, layout, fs, cleaner, restartPolicy, watcher, logger)

	coordinator, ctx := daemon.NewShutdownCoordinator(context.Background(), logger)
	coordinator.Listen()
	defer coordinator.Stop()

	logger.Info("recorder starting",
		zap.Int("pid", os.Getpid()),
		zap.String("version", Version),
		zap.String("mode", paths.Mode.String()),
		zap.Int("segment_seconds", cfg.SegmentDuration))

	runErr := supervisor.Run(ctx)
	if coordinator.Requested() {
		logger.Info("recorder stopped", zap.String("reason", coordinator.Reason()))
	}
	releasePIDRecord(infra.NewPIDFile(paths.PIDFile), logger)
	return runErr
}

// releasePIDRecord clears the PID record when it still names this process,
// so a directly signalled recorder does not leave a stale record behind.
func releasePIDRecord(store domain.PIDStore, logger *zap.Logger) {
	pid, err := store.Read()
	if err != nil || pid != os.Getpid() {
		return
	}
	if err := store.Clear(); err != nil {
		logger.Warn("failed to clear pid record", zap.Error(err))
	}
}
