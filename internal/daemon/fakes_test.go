package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eliteGoblin/rtsprec/internal/capture"
	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// sessionScript tells the fake engine how one session behaves.
type sessionScript struct {
	startErr     error
	segments     int           // Segments written into today's directory
	segmentDelay time.Duration // Delay before writing them
	exitAfter    time.Duration // Zero runs until signalled
	exit         domain.ExitStatus
	ignoreTerm   bool
	stuck        bool   // Ignores SIGKILL too
	stderr       string // Defaults to a connection error
}

// fakeProcess implements domain.CaptureProcess.
type fakeProcess struct {
	pid        int
	done       chan domain.ExitStatus
	once       sync.Once
	ignoreTerm bool
	stuck      bool
	stderr     string
	terminated atomic.Int32
	killed     atomic.Int32
	written    []string
	mu         sync.Mutex
}

func (p *fakeProcess) finish(status domain.ExitStatus) {
	p.once.Do(func() {
		p.done <- status
		close(p.done)
	})
}

func (p *fakeProcess) PID() int                       { return p.pid }
func (p *fakeProcess) Done() <-chan domain.ExitStatus { return p.done }
func (p *fakeProcess) StderrTail() string             { return p.stderr }

func (p *fakeProcess) Terminate() error {
	p.terminated.Add(1)
	if !p.ignoreTerm {
		go p.finish(domain.ExitStatus{Code: -1, Signal: "SIGTERM"})
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.killed.Add(1)
	if !p.stuck {
		p.finish(domain.ExitStatus{Code: -1, Signal: "SIGKILL"})
	}
	return nil
}

func (p *fakeProcess) files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

// fakeEngine implements domain.CaptureEngine by following scripts in order.
// The last script repeats.
type fakeEngine struct {
	mu      sync.Mutex
	layout  *capture.Layout
	scripts []sessionScript
	calls   int
	procs   []*fakeProcess
	seq     int
}

func newFakeEngine(layout *capture.Layout, scripts ...sessionScript) *fakeEngine {
	return &fakeEngine{layout: layout, scripts: scripts}
}

func (e *fakeEngine) Start(ctx context.Context, argv []string) (domain.CaptureProcess, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	script := e.scripts[len(e.scripts)-1]
	if e.calls < len(e.scripts) {
		script = e.scripts[e.calls]
	}
	e.calls++
	if script.startErr != nil {
		return nil, script.startErr
	}

	p := &fakeProcess{
		pid:        10000 + e.calls,
		done:       make(chan domain.ExitStatus, 1),
		ignoreTerm: script.ignoreTerm || script.stuck,
		stuck:      script.stuck,
		stderr:     script.stderr,
	}
	if p.stderr == "" {
		p.stderr = "rtsp://cam: Connection refused"
	}
	e.procs = append(e.procs, p)

	write := func() {
		for i := 0; i < script.segments; i++ {
			e.mu.Lock()
			e.seq++
			name := segmentName(e.layout, time.Now().Add(time.Duration(e.seq)*time.Second))
			e.mu.Unlock()
			path := filepath.Join(e.layout.DatedDir(time.Now()), name)
			if err := os.WriteFile(path, []byte("partial"), 0o644); err == nil {
				p.mu.Lock()
				p.written = append(p.written, path)
				p.mu.Unlock()
			}
		}
	}
	go func() {
		if script.segmentDelay > 0 {
			time.Sleep(script.segmentDelay)
		}
		write()
		if script.exitAfter > 0 {
			time.Sleep(script.exitAfter)
			p.finish(script.exit)
		}
	}()
	return p, nil
}

func (e *fakeEngine) started() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.procs)
}

func (e *fakeEngine) attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fakeEngine) proc(i int) *fakeProcess {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.procs[i]
}

// segmentName is the file name ffmpeg derives from the layout's strftime pattern.
func segmentName(layout *capture.Layout, t time.Time) string {
	return capture.SegmentPrefix + t.Format("150405") + "." + layout.Extension
}

type staticCommand []string

func (c staticCommand) Build() []string { return c }

var errNoBinary = errors.New("fork/exec /usr/local/bin/ffmpeg: no such file or directory")

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
