package controller

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"
	"time"
)

// Sim is an in-memory controller twin. It backs tests and sim deployments
// (development without a robot cell), enforcing the same mastership and
// mode discipline a physical controller would. With SetKind(KindPhysical)
// it additionally exposes a virtual remote file system so the transfer
// path can be exercised end to end.
type Sim struct {
	mu       sync.Mutex
	kind     string
	master   bool
	grants   GrantSet
	mode     Mode
	running  bool
	programs map[Task]string
	modules  map[Task]string
	targets  map[Task]Target

	targetErr error
	modeErr   error
	loadErr   error

	loadCalls  int
	startCalls int
	stopCalls  int

	fs *simFS
}

// NewSim constructs a simulated controller in manual mode holding every
// grant, with zero targets for both arms.
func NewSim() *Sim {
	return &Sim{
		kind:     KindSimulated,
		grants:   NewGrantSet(GrantLoadProgram, GrantAdminSystem, GrantExecute),
		mode:     ModeManual,
		programs: map[Task]string{},
		modules:  map[Task]string{},
		targets: map[Task]Target{
			TaskLeft:  {},
			TaskRight: {},
		},
		fs: newSimFS(),
	}
}

// SetKind switches the reported controller kind.
func (s *Sim) SetKind(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = kind
}

// SetGrants replaces the session grant set.
func (s *Sim) SetGrants(set GrantSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = set
}

// SetTarget sets the tool target reported for a task.
func (s *Sim) SetTarget(task Task, t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[task] = t
}

// FailTargets makes every Target call return err.
func (s *Sim) FailTargets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetErr = err
}

// FailModeSwitch makes every SetMode call return err.
func (s *Sim) FailModeSwitch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modeErr = err
}

// FailLoads makes every load call return err.
func (s *Sim) FailLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

func (s *Sim) Kind() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

func (s *Sim) RequestMastership(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.master {
		return ErrMastershipHeld
	}
	s.master = true
	return nil
}

func (s *Sim) ReleaseMastership(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.master = false
	return nil
}

func (s *Sim) Grants(ctx context.Context) (GrantSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(GrantSet, len(s.grants))
	for g, ok := range s.grants {
		out[g] = ok
	}
	return out, nil
}

func (s *Sim) LoadProgram(ctx context.Context, task Task, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLoad(p); err != nil {
		return err
	}
	s.programs[task] = p
	s.loadCalls++
	return nil
}

func (s *Sim) DeleteProgram(ctx context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.master {
		return ErrNoMastership
	}
	delete(s.programs, task)
	return nil
}

func (s *Sim) LoadModule(ctx context.Context, task Task, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLoad(p); err != nil {
		return err
	}
	s.modules[task] = p
	s.loadCalls++
	return nil
}

func (s *Sim) checkLoad(p string) error {
	if !s.master {
		return ErrNoMastership
	}
	if s.loadErr != nil {
		return s.loadErr
	}
	if p == "" {
		return fmt.Errorf("empty load path")
	}
	return nil
}

func (s *Sim) SetMode(ctx context.Context, mode Mode, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.modeErr != nil {
		return s.modeErr
	}
	s.mode = mode
	return nil
}

func (s *Sim) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.master {
		return ErrNoMastership
	}
	if s.mode != ModeAuto {
		return fmt.Errorf("controller not in automatic mode")
	}
	s.running = true
	s.startCalls++
	return nil
}

func (s *Sim) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.stopCalls++
	return nil
}

func (s *Sim) Target(ctx context.Context, task Task) (Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.targetErr != nil {
		return Target{}, s.targetErr
	}
	t, ok := s.targets[task]
	if !ok {
		return Target{}, fmt.Errorf("no target for task %s", task)
	}
	return t, nil
}

func (s *Sim) FileSystem() RemoteFS {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != KindPhysical {
		return nil
	}
	return s.fs
}

// Inspection helpers for tests and the status endpoint.

// MastershipHeld reports whether the lease is currently taken.
func (s *Sim) MastershipHeld() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master
}

// Program returns the loaded program path for a task.
func (s *Sim) Program(task Task) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.programs[task]
	return p, ok
}

// Module returns the loaded module path for a task.
func (s *Sim) Module(task Task) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.modules[task]
	return p, ok
}

// Running reports whether execution has been started.
func (s *Sim) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CurrentMode returns the operating mode.
func (s *Sim) CurrentMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// LoadCalls counts program and module loads that reached the controller.
func (s *Sim) LoadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCalls
}

// StartCalls counts Start calls that reached the controller.
func (s *Sim) StartCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls
}

// StopCalls counts Stop calls.
func (s *Sim) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// RemoteFile returns the bytes stored at a virtual remote path.
func (s *Sim) RemoteFile(p string) ([]byte, bool) {
	return s.fs.file(p)
}

// RemoteList lists virtual remote files under dir.
func (s *Sim) RemoteList(dir string) []string {
	return s.fs.list(dir)
}

// RemoteDirExists reports whether a virtual remote dir was created.
func (s *Sim) RemoteDirExists(dir string) bool {
	return s.fs.dirExists(dir)
}

// simFS is the virtual controller-side file system.
type simFS struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string][]byte
}

func newSimFS() *simFS {
	return &simFS{dirs: map[string]bool{}, files: map[string][]byte{}}
}

func (f *simFS) EnsureDir(ctx context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[dir] = true
	return nil
}

func (f *simFS) Remove(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, p)
	return nil
}

func (f *simFS) Put(ctx context.Context, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read staged file: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirs[path.Dir(remotePath)] {
		return fmt.Errorf("remote dir %s does not exist", path.Dir(remotePath))
	}
	f.files[remotePath] = data
	return nil
}

func (f *simFS) file(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	return data, ok
}

func (f *simFS) list(dir string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.files {
		if path.Dir(p) == dir {
			out = append(out, p)
		}
	}
	return out
}

func (f *simFS) dirExists(dir string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[dir]
}
