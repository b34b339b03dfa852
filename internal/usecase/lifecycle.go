package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/rtsprec/internal/capture"
	"github.com/eliteGoblin/rtsprec/internal/domain"
)

var (
	// ErrNotRunning means no live recorder instance could be found.
	ErrNotRunning = errors.New("recorder not running")

	// ErrAlreadyRunning means start found a live instance and did nothing.
	ErrAlreadyRunning = errors.New("recorder already running")
)

// LifecycleOptions configures the launcher.
type LifecycleOptions struct {
	Identity     domain.ProcessIdentity
	RecordArgv   []string      // Command that runs the supervisor in the foreground
	StopTimeout  time.Duration // Wait after SIGTERM before SIGKILL
	KillTimeout  time.Duration // Wait after SIGKILL before giving up
	PollInterval time.Duration
	SettleTime   time.Duration // How long a fresh supervisor must survive to count as started
}

// DefaultLifecycleOptions returns launcher timings for production use.
func DefaultLifecycleOptions() LifecycleOptions {
	return LifecycleOptions{
		StopTimeout:  15 * time.Second,
		KillTimeout:  5 * time.Second,
		PollInterval: 200 * time.Millisecond,
		SettleTime:   time.Second,
	}
}

// InstanceStatus is what the status command reports.
type InstanceStatus struct {
	Running       bool
	Instance      *domain.Instance
	Uptime        time.Duration
	PIDRecord     string
	SegmentDir    string
	LatestSegment *domain.Segment
}

// Lifecycle implements start, stop, restart and status for the supervisor.
// It only talks to the supervisor through signals, the process table and
// the PID record.
type Lifecycle struct {
	processManager domain.ProcessManager
	pidStore       domain.PIDStore
	spawner        domain.Spawner
	fsManager      domain.FileSystemManager
	layout         *capture.Layout
	opts           LifecycleOptions
	logger         *zap.Logger
	audit          *zap.Logger
	now            func() time.Time
}

// NewLifecycle creates a launcher. audit receives one line per command.
func NewLifecycle(
	pm domain.ProcessManager,
	pids domain.PIDStore,
	spawner domain.Spawner,
	fs domain.FileSystemManager,
	layout *capture.Layout,
	opts LifecycleOptions,
	logger *zap.Logger,
	audit *zap.Logger,
) *Lifecycle {
	defaults := DefaultLifecycleOptions()
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaults.StopTimeout
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = defaults.KillTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.SettleTime < 0 {
		opts.SettleTime = 0
	}
	return &Lifecycle{
		processManager: pm,
		pidStore:       pids,
		spawner:        spawner,
		fsManager:      fs,
		layout:         layout,
		opts:           opts,
		logger:         logger,
		audit:          audit,
		now:            time.Now,
	}
}

// Resolve finds the running supervisor. The PID record is trusted only when
// the process is alive and its command line matches the supervisor identity;
// otherwise the process table is scanned.
func (l *Lifecycle) Resolve() (*domain.Instance, error) {
	pid, err := l.pidStore.Read()
	switch {
	case err == nil:
		if inst := l.verify(pid, domain.SourcePIDRecord); inst != nil {
			return inst, nil
		}
		l.logger.Debug("pid record is stale", zap.Int("pid", pid))
	case errors.Is(err, domain.ErrNoPIDRecord):
		l.logger.Debug("no pid record", zap.String("path", l.pidStore.Path()))
	default:
		l.logger.Warn("unreadable pid record",
			zap.String("path", l.pidStore.Path()),
			zap.Error(err))
	}

	pids, err := l.processManager.FindByIdentity(l.opts.Identity)
	if err != nil {
		return nil, fmt.Errorf("scan process table: %w", err)
	}
	sort.Ints(pids)
	for _, candidate := range pids {
		if inst := l.verify(candidate, domain.SourceProcessScan); inst != nil {
			return inst, nil
		}
	}
	return nil, ErrNotRunning
}

func (l *Lifecycle) verify(pid int, source domain.InstanceSource) *domain.Instance {
	if pid <= 0 || pid == l.processManager.GetCurrentPID() {
		return nil
	}
	if !l.processManager.IsRunning(pid) {
		return nil
	}

	argv, err := l.processManager.Cmdline(pid)
	if err != nil {
		l.logger.Debug("cannot read command line", zap.Int("pid", pid), zap.Error(err))
		return nil
	}
	if !l.opts.Identity.Matches(argv) {
		l.logger.Warn("pid belongs to an unrelated process, ignoring",
			zap.Int("pid", pid),
			zap.Strings("cmdline", argv))
		return nil
	}

	inst := &domain.Instance{PID: pid, Source: source, Cmdline: argv}
	if startedAt, err := l.processManager.StartedAt(pid); err == nil {
		inst.StartedAt = startedAt
	}
	return inst
}

// Start spawns the supervisor detached and records its PID. When an
// instance is already running it is returned with ErrAlreadyRunning.
func (l *Lifecycle) Start(ctx context.Context) (*domain.Instance, error) {
	inst, err := l.Resolve()
	if err == nil {
		l.audit.Info("start: already running",
			zap.Int("pid", inst.PID),
			zap.String("source", string(inst.Source)))
		return inst, ErrAlreadyRunning
	}
	if !errors.Is(err, ErrNotRunning) {
		l.audit.Error("start: failed", zap.Error(err))
		return nil, err
	}

	pid, err := l.spawner.Spawn(l.opts.RecordArgv)
	if err != nil {
		l.audit.Error("start: spawn failed", zap.Error(err))
		return nil, fmt.Errorf("spawn recorder: %w", err)
	}

	if err := l.pidStore.Write(pid); err != nil {
		_ = l.processManager.SignalGroup(pid, syscall.SIGTERM)
		l.audit.Error("start: cannot write pid record", zap.Int("pid", pid), zap.Error(err))
		return nil, fmt.Errorf("write pid record: %w", err)
	}

	if err := sleepCtx(ctx, l.opts.SettleTime); err != nil {
		return nil, err
	}
	if !l.processManager.IsRunning(pid) {
		_ = l.pidStore.Clear()
		l.audit.Error("start: recorder exited during startup", zap.Int("pid", pid))
		return nil, fmt.Errorf("recorder (pid %d) exited during startup", pid)
	}

	l.audit.Info("start: recorder started",
		zap.Int("pid", pid),
		zap.String("pid_record", l.pidStore.Path()))
	return &domain.Instance{
		PID:       pid,
		Source:    domain.SourcePIDRecord,
		Cmdline:   l.opts.RecordArgv,
		StartedAt: l.now(),
	}, nil
}

// Stop gracefully stops the running supervisor, escalating to SIGKILL after
// StopTimeout. Stopping when nothing runs returns ErrNotRunning and clears
// any stale PID record.
func (l *Lifecycle) Stop(ctx context.Context) error {
	inst, err := l.Resolve()
	if errors.Is(err, ErrNotRunning) {
		l.clearRecord()
		l.audit.Info("stop: not running")
		return ErrNotRunning
	}
	if err != nil {
		l.audit.Error("stop: failed", zap.Error(err))
		return err
	}

	pid := inst.PID
	// Engines live in their own process groups; remember them in case
	// the supervisor has to be killed before it can stop them.
	engines, _ := l.processManager.Children(pid)

	l.logger.Info("stopping recorder", zap.Int("pid", pid), zap.String("source", string(inst.Source)))
	if err := l.processManager.SignalGroup(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		l.audit.Error("stop: cannot signal recorder", zap.Int("pid", pid), zap.Error(err))
		return fmt.Errorf("signal recorder %d: %w", pid, err)
	}

	exited, err := l.waitExit(ctx, pid, l.opts.StopTimeout)
	if err != nil {
		return err
	}
	if !exited {
		l.audit.Warn("stop: recorder ignored SIGTERM, sending SIGKILL",
			zap.Int("pid", pid),
			zap.Duration("timeout", l.opts.StopTimeout))
		if err := l.processManager.SignalGroup(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			l.audit.Error("stop: cannot kill recorder", zap.Int("pid", pid), zap.Error(err))
			return fmt.Errorf("kill recorder %d: %w", pid, err)
		}
		for _, engine := range engines {
			if err := l.processManager.SignalGroup(engine, syscall.SIGKILL); err == nil {
				l.logger.Warn("killed orphaned capture engine", zap.Int("pid", engine))
			}
		}

		exited, err = l.waitExit(ctx, pid, l.opts.KillTimeout)
		if err != nil {
			return err
		}
		if !exited {
			l.audit.Error("stop: recorder still running after SIGKILL", zap.Int("pid", pid))
			return fmt.Errorf("recorder %d still running after SIGKILL", pid)
		}
	}

	l.clearRecord()
	l.audit.Info("stop: recorder stopped", zap.Int("pid", pid))
	return nil
}

// Restart stops any running supervisor, then starts a new one.
func (l *Lifecycle) Restart(ctx context.Context) (*domain.Instance, error) {
	if err := l.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return nil, fmt.Errorf("restart: %w", err)
	}
	l.audit.Info("restart: starting recorder")
	return l.Start(ctx)
}

// Status reports the running instance and today's latest segment.
func (l *Lifecycle) Status() (*InstanceStatus, error) {
	status := &InstanceStatus{PIDRecord: l.pidStore.Path()}

	inst, err := l.Resolve()
	switch {
	case err == nil:
		status.Running = true
		status.Instance = inst
		if !inst.StartedAt.IsZero() {
			status.Uptime = l.now().Sub(inst.StartedAt)
		}
		l.audit.Info("status: running", zap.Int("pid", inst.PID), zap.String("source", string(inst.Source)))
	case errors.Is(err, ErrNotRunning):
		l.audit.Info("status: not running")
	default:
		l.audit.Error("status: failed", zap.Error(err))
		return nil, err
	}

	if l.layout != nil && l.fsManager != nil {
		status.SegmentDir = l.layout.DatedDir(l.now())
		latest, err := l.latestSegment(status.SegmentDir)
		if err != nil {
			l.logger.Warn("cannot list segments", zap.String("dir", status.SegmentDir), zap.Error(err))
		}
		status.LatestSegment = latest
	}
	return status, nil
}

func (l *Lifecycle) latestSegment(dir string) (*domain.Segment, error) {
	segments, err := l.fsManager.ListSegments(dir, l.layout.MatchesSegment)
	if err != nil || len(segments) == 0 {
		return nil, err
	}
	latest := segments[0]
	for _, seg := range segments[1:] {
		if seg.Name > latest.Name {
			latest = seg
		}
	}
	return &latest, nil
}

func (l *Lifecycle) waitExit(ctx context.Context, pid int, timeout time.Duration) (bool, error) {
	deadline := l.now().Add(timeout)
	for {
		if !l.processManager.IsRunning(pid) {
			return true, nil
		}
		if !l.now().Before(deadline) {
			return false, nil
		}
		if err := sleepCtx(ctx, l.opts.PollInterval); err != nil {
			return false, err
		}
	}
}

func (l *Lifecycle) clearRecord() {
	if err := l.pidStore.Clear(); err != nil {
		l.logger.Warn("failed to clear pid record",
			zap.String("path", l.pidStore.Path()),
			zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
