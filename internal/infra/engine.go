package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/eliteGoblin/rtsprec/internal/capture"
	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// EngineOptions controls how capture processes are started.
type EngineOptions struct {
	LogPath    string // Persist stderr here when set
	MaxSizeMB  int
	MaxBackups int
	TailLines  int           // Stderr lines kept for failure reports
	WaitDelay  time.Duration // Bound on draining stderr after exit
}

// ExecEngine implements domain.CaptureEngine by exec'ing the engine binary
// in its own process group.
type ExecEngine struct {
	opts      EngineOptions
	logWriter io.WriteCloser
	logger    *zap.Logger
}

// NewExecEngine creates an exec-based capture engine.
func NewExecEngine(opts EngineOptions, logger *zap.Logger) (*ExecEngine, error) {
	if opts.TailLines <= 0 {
		opts.TailLines = 40
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = 2 * time.Second
	}

	e := &ExecEngine{opts: opts, logger: logger}
	if opts.LogPath != "" {
		w, err := NewRotatingWriter(opts.LogPath, opts.MaxSizeMB, opts.MaxBackups)
		if err != nil {
			return nil, err
		}
		e.logWriter = w
	}
	return e, nil
}

// Start launches argv. The returned process reports its exit on Done.
func (e *ExecEngine) Start(ctx context.Context, argv []string) (domain.CaptureProcess, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty engine command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Not CommandContext: the supervisor owns termination.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = engineProcAttr()
	cmd.WaitDelay = e.opts.WaitDelay

	tail := NewTailBuffer(e.opts.TailLines)
	var sink io.Writer = tail
	if e.logWriter != nil {
		sink = io.MultiWriter(tail, e.logWriter)
	}
	stderr := NewLineFilter(sink, capture.RedactCredentials)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", argv[0], err)
	}

	p := &execProcess{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		done:   make(chan domain.ExitStatus, 1),
		tail:   tail,
		stderr: stderr,
	}
	go p.wait()

	e.logger.Debug("engine process started", zap.Int("pid", p.pid))
	return p, nil
}

// Close releases the persisted engine log.
func (e *ExecEngine) Close() error {
	if e.logWriter != nil {
		return e.logWriter.Close()
	}
	return nil
}

type execProcess struct {
	cmd    *exec.Cmd
	pid    int
	done   chan domain.ExitStatus
	tail   *TailBuffer
	stderr *LineFilter

	mu     sync.Mutex
	exited bool
}

func (p *execProcess) PID() int {
	return p.pid
}

func (p *execProcess) Done() <-chan domain.ExitStatus {
	return p.done
}

func (p *execProcess) StderrTail() string {
	return p.tail.String()
}

func (p *execProcess) Terminate() error {
	return p.signal(unix.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.signal(unix.SIGKILL)
}

// signal targets the engine's process group. Signalling a reaped engine is a no-op.
func (p *execProcess) signal(sig syscall.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return nil
	}
	err := unix.Kill(-p.pid, sig)
	if errors.Is(err, unix.ESRCH) {
		err = unix.Kill(p.pid, sig)
	}
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	_ = p.stderr.Flush()

	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()

	p.done <- exitStatusOf(p.cmd, err)
	close(p.done)
}

func exitStatusOf(cmd *exec.Cmd, waitErr error) domain.ExitStatus {
	state := cmd.ProcessState
	if state == nil {
		return domain.ExitStatus{Code: -1, Err: waitErr}
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return domain.ExitStatus{Code: -1, Signal: unix.SignalName(ws.Signal())}
	}

	status := domain.ExitStatus{Code: state.ExitCode()}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		// Exit code is known but stderr could not be drained in time.
		status.Err = waitErr
	}
	return status
}

// Ensure ExecEngine implements domain.CaptureEngine.
var _ domain.CaptureEngine = (*ExecEngine)(nil)
