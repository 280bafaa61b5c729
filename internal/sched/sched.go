// Package sched implements the process and timer scheduler.
//
// The scheduler is strictly single-threaded and cooperative. It owns no
// goroutines: the host's event loop calls Tick from its idle handler, and
// every callback runs to completion on that thread. Process output is
// polled, never pushed, so scripted callbacks always observe a process's
// output in the order it was produced and its exit only after all output
// was delivered.
package sched

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dshills/lumen/internal/bridge"
)

// Stream selects a process output stream.
type Stream uint8

const (
	Stdout Stream = iota
	Stderr
)

// String returns the stream name.
func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Process is a running child process as seen by the scheduler.
type Process interface {
	// ID returns a unique identifier for the process.
	ID() string

	// PID returns the OS process id.
	PID() int

	// Read reads buffered output without blocking. It returns 0, nil when
	// no output is available yet and io.EOF once the stream is closed and
	// fully consumed.
	Read(s Stream, p []byte) (int, error)

	// ReadWait is like Read but blocks until output arrives or the stream
	// ends.
	ReadWait(s Stream, p []byte) (int, error)

	// Write writes to the process's standard input.
	Write(p []byte) (int, error)

	// CloseStdin closes the process's standard input.
	CloseStdin() error

	// Kill sends a termination signal. Exit is observed later by Exited.
	Kill() error

	// Exited reports, without blocking, whether the process exited and the
	// output it wrote before exiting has been buffered. Descendants holding
	// the streams open do not delay it.
	Exited() (code int, exited bool)

	// Wait blocks until Exited would report true.
	Wait() int
}

// Command describes a process to start.
type Command struct {
	Argv []string
	Dir  string
	Env  []string
}

// Spawner starts processes.
type Spawner interface {
	Spawn(ctx context.Context, cmd Command) (Process, error)
}

// Spec describes a process job. Nil callbacks disable monitoring of the
// corresponding stream; unmonitored output stays buffered for Job.Read.
type Spec struct {
	Command

	OnStdout func(chunk string) error
	OnStderr func(chunk string) error
	OnExit   func(code int) error

	// Release is called once when the job is discarded, after the last
	// callback invocation.
	Release func()
}

// Logger is the logging interface the scheduler uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// DefaultReadChunk is the default size of one output read.
const DefaultReadChunk = 64 * 1024

// Options configure a Scheduler.
type Options struct {
	// ReadChunk bounds the size of each chunk delivered to an output
	// callback. Defaults to DefaultReadChunk.
	ReadChunk int

	// Report receives errors returned by callbacks.
	Report func(error)

	// Repaint is called at the end of a tick that did any work.
	Repaint func()

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger Logger
}

// Scheduler tracks process jobs and timers.
type Scheduler struct {
	spawner Spawner
	opts    Options
	buf     []byte

	jobs   []*Job
	timers []*timer
}

// New creates a scheduler that starts processes with spawner.
func New(spawner Spawner, opts Options) *Scheduler {
	if opts.ReadChunk <= 0 {
		opts.ReadChunk = DefaultReadChunk
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &Scheduler{
		spawner: spawner,
		opts:    opts,
		buf:     make([]byte, opts.ReadChunk),
	}
}

// Status is a job's lifecycle state.
type Status uint8

const (
	Running Status = iota
	Terminated
)

// String returns the status name.
func (s Status) String() string {
	if s == Terminated {
		return "terminated"
	}
	return "running"
}

// Job is a tracked process.
type Job struct {
	s      *Scheduler
	proc   Process
	spec   Spec
	status Status
	code   int
	done   bool // callbacks released
}

// Spawn starts a job. Spawn failures wrap bridge.ErrSpawn.
func (s *Scheduler) Spawn(ctx context.Context, spec Spec) (*Job, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", bridge.ErrArgument)
	}
	proc, err := s.spawner.Spawn(ctx, spec.Command)
	if err != nil {
		if !errors.Is(err, bridge.ErrSpawn) {
			err = fmt.Errorf("%w: %s: %v", bridge.ErrSpawn, spec.Argv[0], err)
		}
		return nil, err
	}

	j := &Job{s: s, proc: proc, spec: spec}
	s.jobs = append(s.jobs, j)
	s.opts.Logger.Debug("spawned %s (pid %d) %v", proc.ID(), proc.PID(), spec.Argv)
	return j, nil
}

// Jobs returns the number of tracked jobs.
func (s *Scheduler) Jobs() int { return len(s.jobs) }

// Timers returns the number of pending timers.
func (s *Scheduler) Timers() int { return len(s.timers) }

// Pending reports whether any job or timer is tracked.
func (s *Scheduler) Pending() bool { return len(s.jobs) > 0 || len(s.timers) > 0 }

// Tick performs one idle tick: it services every job and every due timer,
// then requests a repaint if anything happened. It reports whether any work
// was done.
func (s *Scheduler) Tick() bool {
	worked := false

	for _, j := range append([]*Job(nil), s.jobs...) {
		if j.service() {
			worked = true
		}
	}

	now := s.opts.Now()
	for _, t := range append([]*timer(nil), s.timers...) {
		if t.removed || now.Sub(t.last) < t.interval {
			continue
		}
		worked = true
		repeat, err := t.fn()
		if err != nil {
			s.report(fmt.Errorf("timeout: %w", err))
		}
		if repeat && err == nil {
			t.last = now
			continue
		}
		s.removeTimer(t)
	}

	if worked && s.opts.Repaint != nil {
		s.opts.Repaint()
	}
	return worked
}

// Wait blocks until j exits, delivers its remaining output and exit
// callbacks, and returns the exit code. No other job or timer is serviced
// while waiting.
func (s *Scheduler) Wait(j *Job) int {
	if j.status == Terminated {
		return j.code
	}
	j.proc.Wait()
	j.service()
	return j.code
}

// Shutdown kills every job and waits for it to exit, then discards all
// jobs and timers without invoking further callbacks.
func (s *Scheduler) Shutdown() {
	for _, j := range s.jobs {
		if _, exited := j.proc.Exited(); !exited {
			if err := j.proc.Kill(); err != nil {
				s.opts.Logger.Warn("kill %s: %v", j.proc.ID(), err)
			}
		}
		j.code = j.proc.Wait()
		j.status = Terminated
		j.release()
	}
	s.jobs = nil

	for _, t := range s.timers {
		t.dispose()
	}
	s.timers = nil
}

func (s *Scheduler) report(err error) {
	if s.opts.Report != nil {
		s.opts.Report(err)
		return
	}
	s.opts.Logger.Warn("%v", err)
}

func (s *Scheduler) removeJob(j *Job) {
	for i, x := range s.jobs {
		if x == j {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return
		}
	}
}

// service drains j's monitored output and, once the process exited and
// every byte was delivered, fires the exit callback and discards the job.
func (j *Job) service() bool {
	if j.done {
		return false
	}
	worked := j.drain(Stdout, j.spec.OnStdout)
	if j.drain(Stderr, j.spec.OnStderr) {
		worked = true
	}

	code, exited := j.proc.Exited()
	if !exited || j.done {
		return worked
	}

	// Output produced between the drain above and the exit check.
	j.drain(Stdout, j.spec.OnStdout)
	j.drain(Stderr, j.spec.OnStderr)

	j.status = Terminated
	j.code = code
	if j.spec.OnExit != nil {
		if err := j.spec.OnExit(code); err != nil {
			j.s.report(fmt.Errorf("process exit: %w", err))
		}
	}
	j.s.opts.Logger.Debug("process %s exited with %d", j.proc.ID(), code)
	j.release()
	j.s.removeJob(j)
	return true
}

func (j *Job) drain(stream Stream, fn func(string) error) bool {
	if fn == nil {
		return false
	}
	worked := false
	for {
		n, err := j.proc.Read(stream, j.s.buf)
		if n > 0 {
			worked = true
			if cbErr := fn(string(j.s.buf[:n])); cbErr != nil {
				j.s.report(fmt.Errorf("process %s: %w", stream, cbErr))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				j.s.report(fmt.Errorf("%w: %s: %v", bridge.ErrRead, stream, err))
			}
			return worked
		}
		if n == 0 {
			return worked
		}
	}
}

func (j *Job) release() {
	if j.done {
		return
	}
	j.done = true
	if j.spec.Release != nil {
		j.spec.Release()
	}
}

// Status returns the job's state.
func (j *Job) Status() Status {
	if j.status == Running {
		if _, exited := j.proc.Exited(); exited {
			return Terminated
		}
	}
	return j.status
}

// ExitCode returns the exit code once the job terminated.
func (j *Job) ExitCode() (int, bool) {
	if j.status == Terminated {
		return j.code, true
	}
	if code, exited := j.proc.Exited(); exited {
		return code, true
	}
	return 0, false
}

// PID returns the OS process id.
func (j *Job) PID() int { return j.proc.PID() }

// ID returns the process identifier.
func (j *Job) ID() string { return j.proc.ID() }

// Write sends data to the process's standard input.
func (j *Job) Write(data string) error {
	_, err := j.proc.Write([]byte(data))
	return err
}

// CloseStdin closes the process's standard input.
func (j *Job) CloseStdin() error { return j.proc.CloseStdin() }

// Kill sends a termination signal. The exit callback fires on a later tick.
func (j *Job) Kill() error { return j.proc.Kill() }

// Read blocks until output from an unmonitored stream is available and
// returns up to one read chunk of it. It returns io.EOF at end of stream.
func (j *Job) Read(stream Stream) (string, error) {
	monitored := j.spec.OnStdout != nil
	if stream == Stderr {
		monitored = j.spec.OnStderr != nil
	}
	if monitored {
		return "", fmt.Errorf("%w: %s is monitored by a callback", bridge.ErrArgument, stream)
	}
	n, err := j.proc.ReadWait(stream, j.s.buf)
	if n > 0 {
		return string(j.s.buf[:n]), nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: %v", bridge.ErrRead, err)
	}
	return "", err
}
