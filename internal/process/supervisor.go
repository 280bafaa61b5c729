package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/lumen/internal/bridge"
	"github.com/dshills/lumen/internal/sched"
)

// Logger is the logging interface the supervisor uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// Supervisor starts child processes and tracks them until they exit.
//
// It implements sched.Spawner. Every process gets a UUID, all three
// standard streams are piped, and Shutdown terminates whatever is still
// running. Supervisor is safe for concurrent use.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[string]*Process

	closed atomic.Bool

	// maxProcesses limits the number of concurrent processes (0 = unlimited)
	maxProcesses int

	logger Logger
}

var _ sched.Spawner = (*Supervisor)(nil)

// SupervisorOption configures a Supervisor instance.
type SupervisorOption func(*Supervisor)

// WithMaxProcesses sets the maximum number of concurrent processes.
// A value of 0 (default) means unlimited.
func WithMaxProcesses(limit int) SupervisorOption {
	return func(s *Supervisor) {
		s.maxProcesses = limit
	}
}

// WithLogger sets the supervisor's logger.
func WithLogger(l Logger) SupervisorOption {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSupervisor creates a new process supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		processes: make(map[string]*Process),
		logger:    nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn starts cmd. Failures wrap bridge.ErrSpawn.
func (s *Supervisor) Spawn(ctx context.Context, cmd sched.Command) (sched.Process, error) {
	if len(cmd.Argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", bridge.ErrSpawn)
	}
	c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	if cmd.Env != nil {
		c.Env = cmd.Env
	}

	p, err := s.Start(cmd.Argv[0], c)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", bridge.ErrSpawn, cmd.Argv[0], err)
	}
	return p, nil
}

// Start starts a new managed process with a fresh UUID.
func (s *Supervisor) Start(name string, cmd *exec.Cmd) (*Process, error) {
	id := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrSupervisorShutdown
	}
	if s.maxProcesses > 0 && len(s.processes) >= s.maxProcesses {
		return nil, fmt.Errorf("%w: %d", ErrProcessLimit, s.maxProcesses)
	}
	if cmd.Stdin != nil || cmd.Stdout != nil || cmd.Stderr != nil {
		return nil, errors.New("command standard I/O must not be preconfigured")
	}

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	proc := newProcess(id, name, cmd)

	// Track created pipes for cleanup on error.
	var created []interface{ Close() error }
	cleanup := func() {
		for _, c := range created {
			_ = c.Close()
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	created = append(created, stdin)
	proc.stdin = stdin

	// Output uses plain OS pipes: cmd.Wait then returns when the child
	// exits even if a descendant still holds the write ends.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	created = append(created, stdout, stdoutW)
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	created = append(created, stderr, stderrW)
	cmd.Stdout, cmd.Stderr = stdoutW, stderrW

	if err := proc.start(stdout, stderr); err != nil {
		cleanup()
		return nil, err
	}
	// The child has its own copies of the write ends.
	_ = stdoutW.Close()
	_ = stderrW.Close()

	s.processes[id] = proc
	s.logger.Debug("started %s %q (pid %d)", id, name, proc.PID())
	go s.monitor(proc)
	return proc, nil
}

// monitor removes proc from tracking once it exits.
func (s *Supervisor) monitor(proc *Process) {
	<-proc.Done()
	s.logger.Debug("%s %q exited with %d (%s)", proc.id, proc.name, proc.ExitCode(), proc.State())

	s.mu.Lock()
	delete(s.processes, proc.id)
	s.mu.Unlock()
}

// List returns all running managed processes.
func (s *Supervisor) List() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		result = append(result, p)
	}
	return result
}

// Count returns the number of running managed processes.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processes)
}

// Shutdown sends SIGTERM to every process and waits up to timeout for them
// to exit. Processes still running after the timeout are killed. Shutdown
// blocks until every process exited.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	if s.closed.Swap(true) {
		return
	}

	procs := s.List()
	if len(procs) == 0 {
		return
	}

	for _, p := range procs {
		if p.IsRunning() {
			_ = p.Terminate()
		}
	}

	done := make(chan struct{})
	go func() {
		for _, p := range procs {
			<-p.Done()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		for _, p := range procs {
			if p.IsRunning() {
				s.logger.Warn("killing %s %q after %v", p.id, p.name, timeout)
				_ = p.Kill()
			}
		}
		<-done
	}

	s.waitForCleanup()
}

// waitForCleanup waits for monitors to remove every process.
func (s *Supervisor) waitForCleanup() {
	for s.Count() > 0 {
		time.Sleep(time.Millisecond)
	}
}

// Sentinel errors.
var (
	// ErrSupervisorShutdown is returned when the supervisor is shutting down.
	ErrSupervisorShutdown = errors.New("supervisor is shutting down")

	// ErrProcessLimit is returned when the process limit is reached.
	ErrProcessLimit = errors.New("process limit reached")
)
