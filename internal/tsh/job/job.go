// Package job provides the tsh job table: a bounded, concurrency-safe set of
// tracked child processes and the state transitions driven by the shell's
// signal layer and fg/bg builtins.
package job

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coreyhill/tsh/internal/log"
	"github.com/coreyhill/tsh/internal/tsh"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "job")

// ErrFull indicates the job table has no empty slot available.
var ErrFull = errors.New("job table full")

// ErrNotFound indicates no job matches the lookup criteria.
var ErrNotFound = errors.New("job not found")

// State represents the possible states of a Job.
type State string

const (
	// Undef indicates the slot is empty.
	Undef State = "UNDEF"
	// FG indicates the job is running in the foreground.
	FG State = "FG"
	// BG indicates the job is running in the background.
	BG State = "BG"
	// ST indicates the job has been stopped.
	ST State = "ST"
)

// Job is a single tracked child process.
type Job struct {
	Pid     int
	Jid     int
	State   State
	Cmdline string
}

// empty reports whether j represents an unused slot.
func (j Job) empty() bool { return j.Pid == 0 || j.State == Undef }

// NewTable creates an empty Table. The first Job added is assigned jid 1.
func NewTable() *Table {
	return &Table{next: 1}
}

// Table is a fixed-capacity (tsh.MaxJobs) set of Jobs, safe for concurrent use
// by the main read/eval loop and the signal-handling goroutine. The Table's
// mutex is this implementation's stand-in for the reference shell's "mask all
// signals before mutating the job table" discipline: every exported method
// takes the lock for its full duration, so a mutation begun by the signal
// goroutine and one begun by the main loop can never interleave.
type Table struct {
	mutex sync.Mutex
	slots [tsh.MaxJobs]Job
	next  int
}

// Add inserts a new Job into the first empty slot, assigning it the next jid.
// Add returns ErrFull if the table has no empty slot.
func (t *Table) Add(pid int, state State, cmdline string) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if pid <= 0 {
		return 0, fmt.Errorf("add job: invalid pid %d", pid)
	}

	for i := range t.slots {
		if !t.slots[i].empty() {
			continue
		}

		jid := t.next
		t.next++
		if t.next > tsh.MaxJobs {
			t.next = 1
		}

		t.slots[i] = Job{Pid: pid, Jid: jid, State: state, Cmdline: cmdline}
		logger.Infof("added job; jid: %d, pid: %d, state: %s", jid, pid, state)
		return jid, nil
	}

	return 0, ErrFull
}

// Remove clears the slot holding pid, if any, and recomputes next so that it
// equals max(jid)+1 over the remaining slots.
func (t *Table) Remove(pid int) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	idx := t.indexByPid(pid)
	if idx < 0 {
		return fmt.Errorf("remove job %d: %w", pid, ErrNotFound)
	}

	t.slots[idx] = Job{}
	t.recomputeNext()
	return nil
}

// recomputeNext resets next to one past the largest jid currently present, or
// 1 if the table is empty. Callers must hold mutex.
func (t *Table) recomputeNext() {
	max := 0
	for _, s := range t.slots {
		if !s.empty() && s.Jid > max {
			max = s.Jid
		}
	}
	t.next = max + 1
	if t.next > tsh.MaxJobs {
		t.next = 1
	}
}

// LookupByPid returns the Job tracking pid, if any.
func (t *Table) LookupByPid(pid int) (Job, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	idx := t.indexByPid(pid)
	if idx < 0 {
		return Job{}, false
	}
	return t.slots[idx], true
}

// LookupByJid returns the Job with the given jid, if any.
func (t *Table) LookupByJid(jid int) (Job, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	idx := t.indexByJid(jid)
	if idx < 0 {
		return Job{}, false
	}
	return t.slots[idx], true
}

// FGPid returns the pid of the unique foreground job, or 0 if none.
func (t *Table) FGPid() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, s := range t.slots {
		if s.State == FG {
			return s.Pid
		}
	}
	return 0
}

// AnyNonEmpty reports whether any slot is tracking a job. Used by logout to
// refuse exit while jobs remain.
func (t *Table) AnyNonEmpty() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, s := range t.slots {
		if !s.empty() {
			return true
		}
	}
	return false
}

// SetState transitions the job tracking pid to state. It returns ErrNotFound
// if no such job exists.
func (t *Table) SetState(pid int, state State) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	idx := t.indexByPid(pid)
	if idx < 0 {
		return fmt.Errorf("set state %d: %w", pid, ErrNotFound)
	}
	t.slots[idx].State = state
	return nil
}

// List returns a human-readable listing of every tracked Job, ordered by slot
// index, in the form "[jid] (pid) <State> <cmdline>".
func (t *Table) List() []string {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var lines []string
	for _, s := range t.slots {
		if s.empty() {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%d] (%d) %s %s", s.Jid, s.Pid, describe(s.State), s.Cmdline))
	}
	return lines
}

// Pids returns the pid of every tracked Job, in no particular order. Used by
// quit to tear down every remaining proc mirror record on exit.
func (t *Table) Pids() []int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var pids []int
	for _, s := range t.slots {
		if !s.empty() {
			pids = append(pids, s.Pid)
		}
	}
	return pids
}

// describe renders a State the way the `jobs` builtin prints it.
func describe(s State) string {
	switch s {
	case FG:
		return "Foreground"
	case BG:
		return "Running"
	case ST:
		return "Stopped"
	default:
		return "Undefined"
	}
}

// indexByPid returns the slot index tracking pid, or -1. Callers must hold
// mutex.
func (t *Table) indexByPid(pid int) int {
	for i, s := range t.slots {
		if !s.empty() && s.Pid == pid {
			return i
		}
	}
	return -1
}

// indexByJid returns the slot index with the given jid, or -1. Callers must
// hold mutex.
func (t *Table) indexByJid(jid int) int {
	for i, s := range t.slots {
		if !s.empty() && s.Jid == jid {
			return i
		}
	}
	return -1
}
