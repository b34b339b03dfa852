// Package daemon implements the capture supervisor and its process plumbing.
package daemon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/rtsprec/internal/capture"
	"github.com/eliteGoblin/rtsprec/internal/domain"
	"github.com/eliteGoblin/rtsprec/internal/policy"
	"github.com/eliteGoblin/rtsprec/internal/usecase"
)

// CommandSource builds the capture engine argv for a new session.
type CommandSource interface {
	Build() []string
}

// SupervisorConfig holds supervisor timing.
type SupervisorConfig struct {
	ShutdownGrace time.Duration // Wait after SIGTERM, and again after SIGKILL
	StableAfter   time.Duration // A session this long resets the failure count
	RolloverCheck time.Duration // How often dated directories are refreshed
	StreamLabel   string        // Stream URL with credentials removed, for logs
}

// DefaultSupervisorConfig returns default supervisor configuration.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		ShutdownGrace: 5 * time.Second,
		StableAfter:   15 * time.Minute,
		RolloverCheck: time.Minute,
	}
}

// Stats counts what the supervisor did over its lifetime.
type Stats struct {
	Sessions        int64
	Failures        int64
	SegmentsOpened  int64
	SegmentsRemoved int64
}

// Supervisor runs the capture engine in a restart loop.
// It spawns, waits, classifies, cleans up and sleeps, one session at a time.
type Supervisor struct {
	config    SupervisorConfig
	engine    domain.CaptureEngine
	command   CommandSource
	layout    *capture.Layout
	fsManager domain.FileSystemManager
	cleaner   *usecase.SegmentCleaner
	policy    policy.RestartPolicy
	watcher   *SegmentWatcher
	logger    *zap.Logger

	state   atomic.Value // domain.SessionState
	restart domain.RestartState

	sessions        atomic.Int64
	failures        atomic.Int64
	segmentsOpened  atomic.Int64
	segmentsRemoved atomic.Int64

	now   func() time.Time
	newID func() string
}

// NewSupervisor creates a capture supervisor. watcher may be nil.
func NewSupervisor(
	config SupervisorConfig,
	engine domain.CaptureEngine,
	command CommandSource,
	layout *capture.Layout,
	fs domain.FileSystemManager,
	cleaner *usecase.SegmentCleaner,
	restartPolicy policy.RestartPolicy,
	watcher *SegmentWatcher,
	logger *zap.Logger,
) *Supervisor {
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultSupervisorConfig().ShutdownGrace
	}
	if config.RolloverCheck <= 0 {
		config.RolloverCheck = DefaultSupervisorConfig().RolloverCheck
	}
	s := &Supervisor{
		config:    config,
		engine:    engine,
		command:   command,
		layout:    layout,
		fsManager: fs,
		cleaner:   cleaner,
		policy:    restartPolicy,
		watcher:   watcher,
		logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	s.state.Store(domain.StateStarting)
	return s
}

// State returns the supervisor's current position in the loop.
func (s *Supervisor) State() domain.SessionState {
	return s.state.Load().(domain.SessionState)
}

// Stats returns lifetime counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		Sessions:        s.sessions.Load(),
		Failures:        s.failures.Load(),
		SegmentsOpened:  s.segmentsOpened.Load(),
		SegmentsRemoved: s.segmentsRemoved.Load(),
	}
}

func (s *Supervisor) setState(state domain.SessionState) {
	s.state.Store(state)
}

// Run loops until ctx is canceled. Cancellation is the shutdown request:
// the running engine is stopped, its partial segment is kept and Run
// returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("capture supervisor started",
		zap.String("stream", s.config.StreamLabel),
		zap.String("output", s.layout.OutputTemplate()),
		zap.String("policy", s.policy.Name()))

	defer func() {
		s.setState(domain.StateTerminated)
		stats := s.Stats()
		s.logger.Info("capture supervisor stopped",
			zap.Int64("sessions", stats.Sessions),
			zap.Int64("failures", stats.Failures),
			zap.Int64("segments_opened", stats.SegmentsOpened),
			zap.Int64("segments_removed", stats.SegmentsRemoved))
	}()

	for {
		if ctx.Err() != nil {
			s.setState(domain.StateShuttingDown)
			s.restart.Reset()
			return nil
		}

		s.setState(domain.StateStarting)
		session, outcome := s.runSession(ctx)
		session.Outcome = outcome
		s.afterSession(session)

		decision := s.policy.Decide(outcome, s.restart)
		if decision.Action == policy.ActionStop {
			s.restart.Reset()
			return nil
		}

		s.logger.Info("restarting capture engine",
			zap.String("reason", decision.Reason),
			zap.Duration("delay", decision.Delay),
			zap.Int("consecutive_failures", s.restart.ConsecutiveFailures))

		if !s.sleep(ctx, decision.Delay) {
			s.setState(domain.StateShuttingDown)
			s.restart.Reset()
			return nil
		}
	}
}

// runSession runs one engine process to completion.
func (s *Supervisor) runSession(ctx context.Context) (*domain.Session, domain.Outcome) {
	start := s.now()
	session := &domain.Session{
		ID:        s.newID(),
		StartedAt: start,
		Dir:       s.layout.DatedDir(start),
	}
	dirs := s.sessionDirs(start)

	if err := s.ensureDirs(dirs); err != nil {
		s.logger.Error("cannot create output directory",
			zap.String("dir", session.Dir),
			zap.Error(err))
		session.EndedAt = s.now()
		return session, domain.OutcomeSpawnFailure
	}

	before := s.cleaner.Snapshot(dirs)
	session.Command = s.command.Build()

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if s.watcher != nil {
		s.watcher.Drain()
		s.watcher.Watch(dirs)
		events, watchErrs = s.watcher.Events(), s.watcher.Errors()
	}

	proc, err := s.engine.Start(ctx, session.Command)
	if err != nil {
		session.EndedAt = s.now()
		if ctx.Err() != nil {
			return session, domain.OutcomeShutdownRequested
		}
		s.logger.Error("capture engine could not be started",
			zap.String("session", session.ID),
			zap.String("binary", session.Command[0]),
			zap.Error(err))
		return session, domain.OutcomeSpawnFailure
	}

	session.PID = proc.PID()
	s.sessions.Add(1)
	s.setState(domain.StateRunning)
	s.logger.Info("recording session started",
		zap.String("session", session.ID),
		zap.Int("pid", session.PID),
		zap.String("dir", session.Dir))

	rollover := time.NewTicker(s.config.RolloverCheck)
	defer rollover.Stop()

	for {
		select {
		case status := <-proc.Done():
			session.EndedAt = s.now()
			session.Exit = status
			outcome := s.classify(ctx, status)
			if outcome == domain.OutcomeFailureExit {
				s.setState(domain.StateExitedFailure)
				s.cleanup(session, before, proc.StderrTail())
			} else if outcome == domain.OutcomeCleanExit {
				s.setState(domain.StateExitedClean)
			}
			return session, outcome

		case <-ctx.Done():
			s.setState(domain.StateShuttingDown)
			s.stopEngine(session, proc)
			session.EndedAt = s.now()
			return session, domain.OutcomeShutdownRequested

		case <-rollover.C:
			dirs = s.sessionDirs(s.now())
			if err := s.ensureDirs(dirs); err != nil {
				s.logger.Warn("cannot create next dated directory", zap.Error(err))
			}
			if s.watcher != nil {
				s.watcher.Watch(dirs)
			}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if path, created := s.watcher.SegmentCreated(ev); created && !before.Contains(path) {
				s.segmentsOpened.Add(1)
				s.logger.Info("segment opened",
					zap.String("session", session.ID),
					zap.String("path", path))
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			s.logger.Debug("segment watcher error", zap.Error(err))
		}
	}
}

// classify maps an exit to an outcome. An exit observed after a shutdown
// request counts as the shutdown, whoever caused it.
func (s *Supervisor) classify(ctx context.Context, status domain.ExitStatus) domain.Outcome {
	switch {
	case ctx.Err() != nil:
		return domain.OutcomeShutdownRequested
	case status.Success():
		return domain.OutcomeCleanExit
	default:
		return domain.OutcomeFailureExit
	}
}

// cleanup removes the failed session's segments. The engine has been
// reaped by the time it runs.
func (s *Supervisor) cleanup(session *domain.Session, before usecase.Snapshot, stderrTail string) {
	s.logger.Error("capture engine failed",
		zap.String("session", session.ID),
		zap.Int("pid", session.PID),
		zap.Int("exit_code", session.Exit.Code),
		zap.String("signal", session.Exit.Signal),
		zap.Duration("ran", session.Duration()),
		zap.NamedError("wait_error", session.Exit.Err),
		zap.String("stderr", capture.RedactCredentials(stderrTail)))

	result := s.cleaner.Clean(session, before)
	s.segmentsRemoved.Add(int64(len(result.Removed)))
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		s.logger.Info("partial segment cleanup finished",
			zap.String("session", session.ID),
			zap.Int("removed", len(result.Removed)),
			zap.Int("skipped", len(result.SkippedPaths)),
			zap.Int("errors", len(result.Errors)))
	}
}

// afterSession updates restart bookkeeping for a finished session.
func (s *Supervisor) afterSession(session *domain.Session) {
	if !session.Outcome.IsFailure() {
		s.logger.Info("recording session ended by shutdown",
			zap.String("session", session.ID),
			zap.Duration("ran", session.Duration()),
			zap.Bool("timed_out", session.ShutdownTimedOut))
		return
	}

	if session.Outcome == domain.OutcomeSpawnFailure {
		s.setState(domain.StateExitedFailure)
	}
	if s.config.StableAfter > 0 && session.Duration() >= s.config.StableAfter {
		s.restart.Reset()
	}
	s.restart.RecordFailure(session.EndedAt)
	s.failures.Add(1)

	if session.Outcome == domain.OutcomeCleanExit {
		s.logger.Warn("capture engine exited cleanly without a shutdown request",
			zap.String("session", session.ID),
			zap.Duration("ran", session.Duration()),
			zap.NamedError("wait_error", session.Exit.Err))
	}
}

// stopEngine asks the engine to stop, escalating to SIGKILL after the grace
// period. It gives up after a second grace period rather than hang.
func (s *Supervisor) stopEngine(session *domain.Session, proc domain.CaptureProcess) {
	grace := s.config.ShutdownGrace
	s.logger.Info("stopping capture engine",
		zap.String("session", session.ID),
		zap.Int("pid", session.PID),
		zap.Duration("grace", grace))

	if err := proc.Terminate(); err != nil {
		s.logger.Warn("failed to send SIGTERM to capture engine", zap.Error(err))
	}
	if status, ok := waitDone(proc, grace); ok {
		session.Exit = status
		return
	}

	s.logger.Warn("capture engine ignored SIGTERM, sending SIGKILL",
		zap.Int("pid", session.PID))
	if err := proc.Kill(); err != nil {
		s.logger.Warn("failed to send SIGKILL to capture engine", zap.Error(err))
	}
	if status, ok := waitDone(proc, grace); ok {
		session.Exit = status
		return
	}

	session.ShutdownTimedOut = true
	s.logger.Error("capture engine did not exit after SIGKILL, manual intervention required",
		zap.Int("pid", session.PID))
}

func waitDone(proc domain.CaptureProcess, timeout time.Duration) (domain.ExitStatus, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case status := <-proc.Done():
		return status, true
	case <-timer.C:
		return domain.ExitStatus{}, false
	}
}

// sessionDirs returns today's and tomorrow's dated directories, so a session
// running past midnight has somewhere to write.
func (s *Supervisor) sessionDirs(t time.Time) []string {
	return []string{s.layout.DatedDir(t), s.layout.DatedDir(capture.NextDay(t))}
}

func (s *Supervisor) ensureDirs(dirs []string) error {
	for _, dir := range dirs {
		if err := s.fsManager.EnsureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// sleep waits d, returning false if ctx is canceled first.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
