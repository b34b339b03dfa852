package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/rtsprec/internal/capture"
	"github.com/eliteGoblin/rtsprec/internal/config"
	"github.com/eliteGoblin/rtsprec/internal/daemon"
	"github.com/eliteGoblin/rtsprec/internal/infra"
	"github.com/eliteGoblin/rtsprec/internal/usecase"
)

// launcher bundles what the lifecycle commands share.
type launcher struct {
	cfg       *config.Config
	lifecycle *usecase.Lifecycle
	logger    *zap.Logger
	audit     *zap.Logger
}

func (l *launcher) close() {
	_ = l.logger.Sync()
	_ = l.audit.Sync()
}

// newLauncher wires the lifecycle commands. Only start needs a valid stream
// configuration; stop and status must work with whatever is set.
func newLauncher(validate bool) (*launcher, error) {
	cfg, err := loadConfig(validate)
	if err != nil {
		return nil, err
	}

	logger, err := infra.NewLogger(infra.LogOptions{Level: cfg.LogLevel, Console: os.Stderr})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	audit, err := infra.NewAuditLogger(cfg.LauncherLogPath())
	if err != nil {
		return nil, fmt.Errorf("open launcher log: %w", err)
	}

	exe, err := daemon.SelfExecutable()
	if err != nil {
		return nil, err
	}
	paths := runtimePaths(cfg)

	opts := usecase.DefaultLifecycleOptions()
	opts.Identity = daemon.SupervisorIdentity(exe)
	opts.RecordArgv = daemon.RecordCommand(exe, absConfigPath())
	opts.StopTimeout = cfg.StopTimeout.Duration

	lifecycle := usecase.NewLifecycle(
		infra.NewProcessManager(),
		infra.NewPIDFile(paths.PIDFile),
		daemon.NewSpawner(),
		infra.NewFileSystemManager(),
		capture.NewLayout(cfg.OutputDir, cfg.OutputFormat),
		opts,
		logger,
		audit,
	)

	return &launcher{cfg: cfg, lifecycle: lifecycle, logger: logger, audit: audit}, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	l, err := newLauncher(true)
	if err != nil {
		return err
	}
	defer l.close()

	if warning := l.cfg.EngineWarning(); warning != "" {
		fmt.Printf("Warning: %s (the recorder will keep retrying)\n", warning)
	}

	inst, err := l.lifecycle.Start(commandContext(cmd))
	if errors.Is(err, usecase.ErrAlreadyRunning) {
		fmt.Printf("rtsprec is already running (pid %d)\n", inst.PID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	fmt.Printf("rtsprec started (pid %d)\n", inst.PID)
	fmt.Printf("Recording %s into %s\n", l.cfg.RedactedURL(), l.cfg.OutputDir)
	fmt.Printf("Log: %s\n", l.cfg.SupervisorLogPath())
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	l, err := newLauncher(false)
	if err != nil {
		return err
	}
	defer l.close()

	err = l.lifecycle.Stop(commandContext(cmd))
	if errors.Is(err, usecase.ErrNotRunning) {
		fmt.Println("rtsprec is not running")
		return nil
	}
	if err != nil {
		return fmt.Errorf("stop failed: %w", err)
	}

	fmt.Println("rtsprec stopped")
	return nil
}

func runRestart(cmd *cobra.Command, args []string) error {
	l, err := newLauncher(true)
	if err != nil {
		return err
	}
	defer l.close()

	inst, err := l.lifecycle.Restart(commandContext(cmd))
	if err != nil {
		return err
	}

	fmt.Printf("rtsprec restarted (pid %d)\n", inst.PID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	l, err := newLauncher(false)
	if err != nil {
		return err
	}
	defer l.close()

	status, err := l.lifecycle.Status()
	if err != nil {
		return err
	}

	renderStatus(os.Stdout, status, l.cfg)
	return nil
}

// commandContext is the fallback when cobra runs without a context.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
