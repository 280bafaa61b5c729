// Package process starts and supervises the child processes scripts spawn.
//
// A Process wraps an exec.Cmd with all three standard streams piped.
// Background goroutines drain stdout and stderr into ordered queues, which
// lets the single-threaded scheduler poll output without blocking and keeps
// the child from stalling on a full pipe when a stream is not monitored.
//
//	sup := process.NewSupervisor(process.WithMaxProcesses(32))
//	defer sup.Shutdown(5 * time.Second)
//
//	p, err := sup.Spawn(ctx, sched.Command{Argv: []string{"make", "test"}})
//	if err != nil {
//	    return err
//	}
//	code := p.Wait()
//
// The Supervisor implements sched.Spawner. Both Supervisor and Process are
// safe for concurrent use.
package process
