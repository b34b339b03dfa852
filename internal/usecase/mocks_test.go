package usecase

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// fakeProc is one entry in the mock process table.
type fakeProc struct {
	argv       []string
	startedAt  time.Time
	ignoreTerm bool
	children   []int
}

type sentSignal struct {
	pid int
	sig syscall.Signal
}

// mockProcessManager implements domain.ProcessManager over an in-memory process table.
type mockProcessManager struct {
	mu      sync.Mutex
	procs   map[int]*fakeProc
	signals []sentSignal
	scanErr error
	self    int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		procs: make(map[int]*fakeProc),
		self:  os.Getpid(),
	}
}

func (m *mockProcessManager) add(pid int, p *fakeProc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = time.Now()
	}
	m.procs[pid] = p
}

func (m *mockProcessManager) signalsTo(pid int) []syscall.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []syscall.Signal
	for _, s := range m.signals {
		if s.pid == pid {
			out = append(out, s.sig)
		}
	}
	return out
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.procs[pid]
	return ok
}

func (m *mockProcessManager) Cmdline(pid int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[pid]
	if !ok {
		return nil, fmt.Errorf("process %d not found", pid)
	}
	return p.argv, nil
}

func (m *mockProcessManager) StartedAt(pid int) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[pid]
	if !ok {
		return time.Time{}, fmt.Errorf("process %d not found", pid)
	}
	return p.startedAt, nil
}

func (m *mockProcessManager) Children(pid int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.procs[pid]; ok {
		return p.children, nil
	}
	return nil, nil
}

func (m *mockProcessManager) FindByIdentity(identity domain.ProcessIdentity) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	var pids []int
	for pid, p := range m.procs {
		if pid != m.self && identity.Matches(p.argv) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (m *mockProcessManager) SignalGroup(pid int, sig syscall.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sentSignal{pid: pid, sig: sig})
	p, ok := m.procs[pid]
	if !ok {
		return syscall.ESRCH
	}
	if sig == syscall.SIGKILL || !p.ignoreTerm {
		delete(m.procs, pid)
	}
	return nil
}

func (m *mockProcessManager) GetCurrentPID() int {
	return m.self
}

// mockPIDStore implements domain.PIDStore in memory.
type mockPIDStore struct {
	pid     int
	readErr error
}

func (m *mockPIDStore) Read() (int, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	if m.pid == 0 {
		return 0, domain.ErrNoPIDRecord
	}
	return m.pid, nil
}

func (m *mockPIDStore) Write(pid int) error {
	m.pid = pid
	m.readErr = nil
	return nil
}

func (m *mockPIDStore) Clear() error {
	m.pid = 0
	m.readErr = nil
	return nil
}

func (m *mockPIDStore) Path() string {
	return "/tmp/mock/rtsprec.pid"
}

// mockSpawner adds spawned processes to the mock process table.
type mockSpawner struct {
	pm      *mockProcessManager
	nextPID int
	dies    bool
	err     error
	spawned [][]string
}

func (m *mockSpawner) Spawn(argv []string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.nextPID++
	m.spawned = append(m.spawned, argv)
	if !m.dies {
		m.pm.add(m.nextPID, &fakeProc{argv: argv})
	}
	return m.nextPID, nil
}

// mockFileSystemManager implements domain.FileSystemManager over an in-memory tree.
type mockFileSystemManager struct {
	files     map[string][]domain.Segment // dir -> files
	listErr   map[string]error
	removeErr map[string]error
	removed   []string
}

func newMockFileSystemManager() *mockFileSystemManager {
	return &mockFileSystemManager{
		files:     make(map[string][]domain.Segment),
		listErr:   make(map[string]error),
		removeErr: make(map[string]error),
	}
}

func (m *mockFileSystemManager) put(dir, name string, mtime time.Time) string {
	path := dir + "/" + name
	m.files[dir] = append(m.files[dir], domain.Segment{Path: path, Name: name, ModTime: mtime, Size: 1024})
	return path
}

func (m *mockFileSystemManager) exists(path string) bool {
	for _, segs := range m.files {
		for _, s := range segs {
			if s.Path == path {
				return true
			}
		}
	}
	return false
}

func (m *mockFileSystemManager) EnsureDir(path string) error {
	return nil
}

func (m *mockFileSystemManager) ListSegments(dir string, match func(string) bool) ([]domain.Segment, error) {
	if err := m.listErr[dir]; err != nil {
		return nil, err
	}
	var out []domain.Segment
	for _, s := range m.files[dir] {
		if match(s.Name) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockFileSystemManager) Remove(path string) error {
	if err := m.removeErr[path]; err != nil {
		return err
	}
	for dir, segs := range m.files {
		for i, s := range segs {
			if s.Path == path {
				m.files[dir] = append(segs[:i], segs[i+1:]...)
				m.removed = append(m.removed, path)
				return nil
			}
		}
	}
	return &os.PathError{Op: "remove", Path: path, Err: os.ErrNotExist}
}
