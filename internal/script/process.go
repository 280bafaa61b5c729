package script

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/lumen/internal/sched"
)

const procType = "lumen.proc"

// proc is the Go value behind a proc userdata.
type proc struct {
	job *sched.Job
	// pending holds stdout read past the end of the last line returned by
	// proc:read("l").
	pending string
	eof     bool
}

// installProcesses adds os.spawn, the proc metatable and timeout.
func (h *Host) installProcesses() {
	L := h.L
	mt := L.NewTypeMetatable(procType)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"status":     h.procStatus,
		"wait":       h.procWait,
		"read":       h.procRead,
		"write":      h.procWrite,
		"close":      h.procClose,
		"kill":       h.procKill,
		"pid":        h.procPID,
		"exit_code":  h.procExitCode,
		"read_error": h.procReadError,
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		p := checkProc(L)
		L.Push(lua.LString("process (" + p.job.Status().String() + ")"))
		return 1
	}))

	osMod, ok := L.GetGlobal("os").(*lua.LTable)
	if !ok {
		osMod = L.NewTable()
		L.SetGlobal("os", osMod)
	}
	osMod.RawSetString("spawn", L.NewFunction(h.spawn))
	L.SetGlobal("timeout", L.NewFunction(h.timeout))
}

// os.spawn(cmd [, cwd] [, env] [, stdout_cb [, stderr_cb [, exit_cb]]])
//
// cmd is a shell command string or an argv table. Streams without a
// callback are buffered for proc:read.
func (h *Host) spawn(L *lua.LState) int {
	var argv []string
	switch c := L.Get(1).(type) {
	case lua.LString:
		argv = []string{"/bin/sh", "-c", string(c)}
	case *lua.LTable:
		argv = stringList(c)
	default:
		L.ArgError(1, "command string or argv table expected")
		return 0
	}
	spec := sched.Spec{Command: sched.Command{Argv: argv}}

	n := 2
	if s, ok := L.Get(n).(lua.LString); ok {
		spec.Dir = string(s)
		n++
	}
	if t, ok := L.Get(n).(*lua.LTable); ok {
		spec.Env = environ(t)
		n++
	}
	var cbs [3]*lua.LFunction
	for i := range cbs {
		switch v := L.Get(n + i).(type) {
		case *lua.LFunction:
			cbs[i] = v
		case *lua.LNilType:
		default:
			L.ArgError(n+i, "function or nil expected")
			return 0
		}
	}

	if cbs[0] != nil {
		spec.OnStdout = h.chunkCallback(cbs[0])
	}
	if cbs[1] != nil {
		spec.OnStderr = h.chunkCallback(cbs[1])
	}
	if exit := cbs[2]; exit != nil {
		spec.OnExit = func(code int) error {
			_, err := h.state.Call(exit, lua.LNumber(code))
			return err
		}
	}
	job, err := h.sched.Spawn(context.Background(), spec)
	if err != nil {
		// Spawn failures are returned, not raised.
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	h.logger.Debug("os.spawn %v pid %d", argv, job.PID())

	ud := L.NewUserData()
	ud.Value = &proc{job: job}
	L.SetMetatable(ud, L.GetTypeMetatable(procType))
	L.Push(ud)
	return 1
}

func (h *Host) chunkCallback(fn *lua.LFunction) func(string) error {
	return func(chunk string) error {
		_, err := h.state.Call(fn, lua.LString(chunk))
		return err
	}
}

func checkProc(L *lua.LState) *proc {
	ud := L.CheckUserData(1)
	p, ok := ud.Value.(*proc)
	if !ok {
		L.ArgError(1, "process expected")
	}
	return p
}

// proc:status() returns "running" or "terminated".
func (h *Host) procStatus(L *lua.LState) int {
	L.Push(lua.LString(checkProc(L).job.Status().String()))
	return 1
}

// proc:wait() blocks until the process exits and returns its exit code.
// No other process or timer is serviced meanwhile.
func (h *Host) procWait(L *lua.LState) int {
	p := checkProc(L)
	L.Push(lua.LNumber(h.sched.Wait(p.job)))
	return 1
}

// proc:exit_code() returns the exit code, or nil while running.
func (h *Host) procExitCode(L *lua.LState) int {
	code, ok := checkProc(L).job.ExitCode()
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(code))
	return 1
}

// proc:pid()
func (h *Host) procPID(L *lua.LState) int {
	L.Push(lua.LNumber(checkProc(L).job.PID()))
	return 1
}

// proc:read([format]) reads unmonitored stdout. format is "l" (a line
// without its newline, the default), "L" (with it), "a" (everything until
// end of stream) or a byte count. It returns nil at end of stream.
func (h *Host) procRead(L *lua.LState) int {
	p := checkProc(L)
	format, count := "l", 0
	switch v := L.Get(2).(type) {
	case lua.LString:
		format = strings.TrimPrefix(string(v), "*")
		if format == "" {
			L.ArgError(2, "invalid format")
		}
		format = format[:1]
	case lua.LNumber:
		format, count = "n", int(v)
	case *lua.LNilType:
	default:
		L.ArgError(2, "format expected")
	}
	switch format {
	case "l", "L", "n", "a":
	default:
		L.ArgError(2, "invalid format "+format)
	}

	var need func() (string, bool)
	switch format {
	case "l", "L":
		need = func() (string, bool) {
			i := strings.IndexByte(p.pending, '\n')
			if i < 0 {
				return "", false
			}
			line := p.pending[:i+1]
			p.pending = p.pending[i+1:]
			if format == "l" {
				line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			}
			return line, true
		}
	case "n":
		need = func() (string, bool) {
			if len(p.pending) < count {
				return "", false
			}
			out := p.pending[:count]
			p.pending = p.pending[count:]
			return out, true
		}
	case "a":
		need = func() (string, bool) { return "", false }
	}

	for {
		if s, ok := need(); ok {
			L.Push(lua.LString(s))
			return 1
		}
		if p.eof {
			break
		}
		chunk, err := p.job.Read(sched.Stdout)
		p.pending += chunk
		if errors.Is(err, io.EOF) {
			p.eof = true
			continue
		}
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
	}

	if p.pending == "" && format != "a" {
		L.Push(lua.LNil)
		return 1
	}
	rest := p.pending
	p.pending = ""
	L.Push(lua.LString(rest))
	return 1
}

// proc:read_error() reads one chunk of unmonitored stderr, or nil at end
// of stream.
func (h *Host) procReadError(L *lua.LState) int {
	p := checkProc(L)
	chunk, err := p.job.Read(sched.Stderr)
	switch {
	case errors.Is(err, io.EOF):
		L.Push(lua.LNil)
		return 1
	case err != nil:
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(chunk))
	return 1
}

// proc:write(...) writes its string arguments to standard input.
func (h *Host) procWrite(L *lua.LState) int {
	p := checkProc(L)
	for i := 2; i <= L.GetTop(); i++ {
		if err := p.job.Write(L.CheckString(i)); err != nil {
			return raise(L, err)
		}
	}
	return 0
}

// proc:close() closes standard input.
func (h *Host) procClose(L *lua.LState) int {
	if err := checkProc(L).job.CloseStdin(); err != nil {
		return raise(L, err)
	}
	return 0
}

// proc:kill() terminates the process. The exit callback fires on a later
// tick.
func (h *Host) procKill(L *lua.LState) int {
	if err := checkProc(L).job.Kill(); err != nil {
		return raise(L, err)
	}
	return 0
}

// timeout(seconds, f, ...) calls f(...) every interval for as long as it
// returns a true value.
func (h *Host) timeout(L *lua.LState) int {
	secs := float64(L.CheckNumber(1))
	fn := L.CheckFunction(2)
	var args []lua.LValue
	for i := 3; i <= L.GetTop(); i++ {
		args = append(args, L.Get(i))
	}

	interval := time.Duration(secs * float64(time.Second))
	_, err := h.sched.Timeout(interval, func() (bool, error) {
		ret, err := h.state.Call(fn, args...)
		if err != nil {
			return false, err
		}
		return len(ret) > 0 && lua.LVAsBool(ret[0]), nil
	}, func() {
		fn, args = nil, nil
	})
	if err != nil {
		return raise(L, err)
	}
	return 0
}
