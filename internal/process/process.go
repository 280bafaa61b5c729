package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dshills/lumen/internal/sched"
)

// State represents the state of a process.
type State int

const (
	// StateCreated indicates the process has been created but not started.
	StateCreated State = iota
	// StateRunning indicates the process is currently running.
	StateRunning
	// StateExited indicates the process has exited normally or with an error.
	StateExited
	// StateKilled indicates the process was killed by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Process is a managed child process with piped standard I/O.
//
// Output is drained by background goroutines into per-stream queues, so
// the child never blocks on a full pipe and readers can poll without
// blocking. Exit is taken from the wait status, not from the end of the
// output streams: descendants that inherit the pipes may hold them open
// long after the child exited. It is safe for concurrent use.
type Process struct {
	id   string
	name string
	cmd  *exec.Cmd

	stdin  io.WriteCloser
	stdout *queue
	stderr *queue

	// done is closed once the process exited and the output it wrote
	// before exiting is queued.
	done chan struct{}

	state    atomic.Int32
	exitCode atomic.Int32

	stdinOnce sync.Once
}

var _ sched.Process = (*Process)(nil)

func newProcess(id, name string, cmd *exec.Cmd) *Process {
	p := &Process{
		id:     id,
		name:   name,
		cmd:    cmd,
		stdout: newQueue(),
		stderr: newQueue(),
		done:   make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1) // -1 indicates not exited
	return p
}

// ID returns the unique identifier of the process.
func (p *Process) ID() string { return p.id }

// State returns the current process state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// ExitCode returns the process exit code, or -1 if it has not exited.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRunning returns true if the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// PID returns the process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Signal sends a signal to the process. Processes started by a Supervisor
// lead their own process group, and the signal goes to the whole group so
// that children of a shell wrapper exit too.
func (p *Process) Signal(sig os.Signal) error {
	if !p.IsRunning() {
		return fmt.Errorf("process not running: %w", ErrProcessNotStarted)
	}
	if s, ok := sig.(syscall.Signal); ok && p.cmd.SysProcAttr != nil && p.cmd.SysProcAttr.Setpgid {
		return syscall.Kill(-p.cmd.Process.Pid, s)
	}
	return p.cmd.Process.Signal(sig)
}

// Kill sends SIGKILL to the process. Killing an exited process is a no-op.
func (p *Process) Kill() error {
	if !p.IsRunning() {
		return nil
	}
	return p.Signal(syscall.SIGKILL)
}

// Terminate sends SIGTERM to the process.
func (p *Process) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

// Write writes to the process's standard input.
func (p *Process) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// CloseStdin closes the process's standard input. Further calls are no-ops.
func (p *Process) CloseStdin() error {
	var err error
	p.stdinOnce.Do(func() { err = p.stdin.Close() })
	return err
}

// Read reads queued output without blocking.
func (p *Process) Read(s sched.Stream, b []byte) (int, error) {
	return p.queue(s).read(b, false)
}

// ReadWait reads output, blocking until some is available or the stream
// ends.
func (p *Process) ReadWait(s sched.Stream, b []byte) (int, error) {
	return p.queue(s).read(b, true)
}

func (p *Process) queue(s sched.Stream) *queue {
	if s == sched.Stderr {
		return p.stderr
	}
	return p.stdout
}

// Exited reports whether the process exited, without blocking.
func (p *Process) Exited() (int, bool) {
	select {
	case <-p.done:
		return p.ExitCode(), true
	default:
		return 0, false
	}
}

// Wait blocks until the process exits and returns its exit code.
func (p *Process) Wait() int {
	<-p.done
	return p.ExitCode()
}

// exitDrainGrace bounds how long exit waits for the output pumps once the
// child is gone. Everything the child wrote is already in the pipes by
// then, so only streams held open by its descendants hit the limit.
const exitDrainGrace = 100 * time.Millisecond

// start starts the process, its output pumps and the exit watcher. The
// pumps own stdout and stderr and close them at end of file.
func (p *Process) start(stdout, stderr io.ReadCloser) error {
	if p.State() != StateCreated {
		return ErrProcessAlreadyStarted
	}
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}
	p.state.Store(int32(StateRunning))

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() { defer pumps.Done(); p.stdout.pump(stdout) }()
	go func() { defer pumps.Done(); p.stderr.pump(stderr) }()

	drained := make(chan struct{})
	go func() { pumps.Wait(); close(drained) }()
	go p.waitLoop(drained)
	return nil
}

// waitLoop waits for the child to exit, then for its output to be queued.
func (p *Process) waitLoop(drained <-chan struct{}) {
	err := p.cmd.Wait()

	timer := time.NewTimer(exitDrainGrace)
	select {
	case <-drained:
	case <-timer.C:
	}
	timer.Stop()

	exitCode := 0
	state := StateExited
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				state = StateKilled
				exitCode = 128 + int(status.Signal())
			}
		} else {
			exitCode = -1
		}
	}

	p.exitCode.Store(int32(exitCode))
	p.state.Store(int32(state))
	close(p.done)
}

// queue buffers one output stream in production order.
type queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  bytes.Buffer
	eof  bool
	err  error
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) pump(r io.ReadCloser) {
	defer r.Close()
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		q.mu.Lock()
		q.buf.Write(chunk[:n])
		if err != nil {
			q.eof = true
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				q.err = err
			}
		}
		q.cond.Broadcast()
		q.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (q *queue) read(b []byte, block bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for block && q.buf.Len() == 0 && !q.eof {
		q.cond.Wait()
	}
	if q.buf.Len() > 0 {
		return q.buf.Read(b)
	}
	if q.eof {
		if q.err != nil {
			return 0, q.err
		}
		return 0, io.EOF
	}
	return 0, nil
}

// Sentinel errors for the process package.
var (
	// ErrProcessNotStarted is returned when operations require a started process.
	ErrProcessNotStarted = errors.New("process not started")

	// ErrProcessAlreadyStarted is returned when trying to start an already running process.
	ErrProcessAlreadyStarted = errors.New("process already started")
)
