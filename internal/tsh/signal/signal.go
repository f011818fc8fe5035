// Package signal implements the tsh signal layer (on_child, on_interrupt,
// on_stop) and the foreground waiter that suspends the shell until the
// current foreground job has left FG.
//
// The reference shell this is modeled on runs on a single OS thread and
// installs true asynchronous signal handlers; the handlers may preempt the
// main thread at any instruction boundary not inside a masked critical
// section. Go's signal facilities do not expose that model: os/signal
// delivers signals by enqueueing them on a channel that ordinary goroutines
// drain, so "on_child", "on_interrupt" and "on_stop" below are goroutines, not
// asynchronous handlers, and can never preempt another goroutine mid
// instruction. The async-signal-safety rules from the reference design (no
// allocation, save/restore errno, write with raw syscalls only) are therefore
// moot for correctness, but this package still funnels its own diagnostic
// output through direct syscall.Write calls in the hot reap loop to preserve
// the reference shell's operational texture and to keep that loop cheap.
//
// What Go does require an equivalent for is the mutual exclusion the
// reference shell gets from signal masking: every mutation this package makes
// to the job table takes the same lock the main read/eval loop takes (the
// job.Table methods lock internally). procfs.Mirror takes no lock; each of
// its record writes is an atomic temp-file rename. The foreground wake word
// is synchronized with a
// sync.Cond so a waiter can never miss a wakeup that happens between its
// check and its suspend. Controller.forkMu (exposed via Lock/Unlock) is the
// direct stand-in for "block SIGCHLD from before fork until after add_job":
// onChild holds it for its whole reap loop, and the evaluator holds it from
// before starting a child until that child's job table and proc mirror
// entries are installed, so a fast-exiting child can never be reaped and
// silently dropped before it is registered.
package signal

import (
	"errors"
	"fmt"
	"os"
	gosignal "os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/coreyhill/tsh/internal/log"
	"github.com/coreyhill/tsh/internal/tsh/job"
	"github.com/coreyhill/tsh/internal/tsh/procfs"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "signal")

// Controller owns the fg_pid wake word and drives job table / proc mirror
// transitions in response to SIGCHLD, SIGINT and SIGTSTP.
type Controller struct {
	jobs *job.Table
	proc *procfs.Mirror

	verbose bool

	mu    sync.Mutex
	cond  *sync.Cond
	fgPid int32

	// forkMu is the Go stand-in for the reference shell's "block SIGCHLD from
	// before fork until after add_job" discipline: a goroutine cannot mask a
	// signal for itself the way the reference shell masks SIGCHLD around a
	// fork, so instead onChild's entire reap loop and the evaluator's
	// fork+register critical section share this lock. A child that exits a
	// moment after Start() returns can then never be reaped before its job
	// table and proc mirror entries exist.
	forkMu sync.Mutex

	ch   chan os.Signal
	done chan struct{}
}

// New creates a Controller. Start must be called once to begin processing
// signals.
func New(jobs *job.Table, proc *procfs.Mirror, verbose bool) *Controller {
	c := &Controller{
		jobs:    jobs,
		proc:    proc,
		verbose: verbose,
		ch:      make(chan os.Signal, 64),
		done:    make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start installs the signal handlers and begins processing signals in a
// background goroutine. Start must be called exactly once, before any job is
// forked.
func (c *Controller) Start() {
	gosignal.Notify(c.ch, unix.SIGCHLD, unix.SIGINT, unix.SIGTSTP)
	go c.run()
}

// Stop uninstalls the signal handlers and halts the processing goroutine.
func (c *Controller) Stop() {
	gosignal.Stop(c.ch)
	close(c.done)
}

func (c *Controller) run() {
	for {
		select {
		case <-c.done:
			return
		case sig := <-c.ch:
			switch sig {
			case unix.SIGCHLD:
				c.onChild()
			case unix.SIGINT:
				c.onInterrupt()
			case unix.SIGTSTP:
				c.onStop()
			}
		}
	}
}

// Continue sends SIGCONT to the entire process group identified by pgid. It
// is used by the fg/bg builtins to resume a stopped job; callers must update
// the job table and proc mirror state before calling Continue, so an
// external observer of the proc mirror never sees a stale stat for a
// resumed process.
func (c *Controller) Continue(pgid int) error {
	return unix.Kill(-pgid, unix.SIGCONT)
}

// Lock acquires the fork/reap serialization lock. The evaluator holds it
// across cmd.Start(), Jobs.Add() and Proc.Create() so onChild cannot observe
// and reap a child before its job table and proc mirror entries exist.
func (c *Controller) Lock() {
	c.forkMu.Lock()
}

// Unlock releases the fork/reap serialization lock acquired by Lock.
func (c *Controller) Unlock() {
	c.forkMu.Unlock()
}

// onChild reaps every child ready to be collected in non-blocking,
// including-stopped mode, updating the job table and proc mirror for each.
// It holds forkMu for its entire duration so it can never run interleaved
// with the evaluator's fork+register critical section in eval.go.
func (c *Controller) onChild() {
	c.forkMu.Lock()
	defer c.forkMu.Unlock()

	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG|unix.WUNTRACED, nil)
		if pid <= 0 || err != nil {
			return
		}

		j, ok := c.jobs.LookupByPid(pid)
		if !ok {
			continue
		}

		switch {
		case status.Stopped():
			c.debugf("pid %d stopped", pid)
			if err := c.jobs.SetState(pid, job.ST); err != nil {
				logger.Errorf("mark job stopped; pid: %d, error: %v", pid, err)
			}
			if err := c.proc.EditState(pid, procfs.StatStopped); err != nil && !errors.Is(err, procfs.ErrMissing) {
				logger.Errorf("mirror stop state; pid: %d, error: %v", pid, err)
			}
			c.setFGPid(pid)

		case status.Exited(), status.Signaled():
			c.debugf("pid %d reaped", pid)
			if err := c.proc.Remove(pid); err != nil {
				logger.Errorf("remove proc record; pid: %d, error: %v", pid, err)
			}
			if err := c.jobs.Remove(pid); err != nil {
				logger.Errorf("remove job; pid: %d, error: %v", pid, err)
			}
			if j.State == job.FG {
				c.setFGPid(pid)
			}
		}
	}
}

// onInterrupt forwards SIGINT to the foreground job's entire process group
// and removes it from the job table and proc mirror.
func (c *Controller) onInterrupt() {
	pid := c.jobs.FGPid()
	if pid == 0 {
		return
	}

	c.debugf("interrupting pgid %d", pid)
	if err := c.proc.Remove(pid); err != nil {
		logger.Errorf("remove proc record on interrupt; pid: %d, error: %v", pid, err)
	}
	if err := c.jobs.Remove(pid); err != nil {
		logger.Errorf("remove job on interrupt; pid: %d, error: %v", pid, err)
	}
	c.setFGPid(pid)

	if err := unix.Kill(-pid, unix.SIGINT); err != nil {
		logger.Errorf("kill pgid %d: %v", pid, err)
	}
}

// onStop marks the foreground job stopped and forwards SIGTSTP to its entire
// process group. The definitive transition to ST (and fg_pid wake) happens
// when onChild subsequently reaps the WUNTRACED status; this handler's state
// update is an optimistic, idempotent head start so external observers of the
// proc mirror see T promptly.
func (c *Controller) onStop() {
	pid := c.jobs.FGPid()
	if pid == 0 {
		return
	}

	c.debugf("stopping pgid %d", pid)
	if err := c.jobs.SetState(pid, job.ST); err != nil {
		logger.Errorf("mark job stopped on ctrl-z; pid: %d, error: %v", pid, err)
	}
	if err := c.proc.EditState(pid, procfs.StatStopped); err != nil && !errors.Is(err, procfs.ErrMissing) {
		logger.Errorf("mirror stop state on ctrl-z; pid: %d, error: %v", pid, err)
	}

	if err := unix.Kill(-pid, unix.SIGTSTP); err != nil {
		logger.Errorf("kill pgid %d: %v", pid, err)
	}
}

// setFGPid records that pid has ended its FG tenure and wakes every waiter.
func (c *Controller) setFGPid(pid int) {
	c.mu.Lock()
	atomic.StoreInt32(&c.fgPid, int32(pid))
	c.cond.Broadcast()
	c.mu.Unlock()
}

// WaitFG blocks until the job identified by pid has ended its FG tenure
// (exited, was killed, or was stopped), then resets the wake word to 0.
func (c *Controller) WaitFG(pid int) {
	c.mu.Lock()
	for atomic.LoadInt32(&c.fgPid) != int32(pid) {
		c.cond.Wait()
	}
	atomic.StoreInt32(&c.fgPid, 0)
	c.mu.Unlock()
}

// debugf writes a preformatted diagnostic line directly via a raw write
// syscall, bypassing the buffered, allocating *log.Logger, matching the
// reference shell's reap-loop diagnostic discipline. It is a no-op unless
// verbose mode is enabled.
func (c *Controller) debugf(format string, args ...interface{}) {
	if !c.verbose {
		return
	}
	msg := "[signal] " + fmt.Sprintf(format, args...) + "\n"
	_, _ = syscall.Write(2, []byte(msg))
}
