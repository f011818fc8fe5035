package shell

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coreyhill/tsh/internal/tsh/job"
	"github.com/coreyhill/tsh/internal/tsh/procfs"
	"github.com/coreyhill/tsh/internal/validator"
)

// builtins maps a builtin's name to its implementation. "!N" is handled
// separately in Evaluate, since it is a recall rather than a fixed name.
var builtins = map[string]func(*Context, []string) outcome{
	"quit":    func(c *Context, _ []string) outcome { return c.quit() },
	"logout":  (*Context).logout,
	"jobs":    (*Context).builtinJobs,
	"history": (*Context).builtinHistory,
	"bg":      (*Context).builtinBg,
	"fg":      (*Context).builtinFg,
	"adduser": (*Context).builtinAddUser,
}

// quit removes the shell's own proc record and every tracked job's record,
// persists the history ring and exits successfully.
func (c *Context) quit() outcome {
	c.removeAllTrackedProcRecords()

	if err := c.Proc.Remove(c.Sid); err != nil {
		logger.Errorf("remove self proc record: %v", err)
	}

	if c.Username != "" {
		if err := c.History.Persist(c.historyPath()); err != nil {
			logger.Errorf("persist history: %v", err)
		}
	}

	return outcome{quit: true, code: 0}
}

// removeAllTrackedProcRecords removes the proc record for every job still in
// the table. It does not remove the jobs from the table itself, since the
// process is about to exit.
func (c *Context) removeAllTrackedProcRecords() {
	for _, pid := range c.Jobs.Pids() {
		if err := c.Proc.Remove(pid); err != nil {
			logger.Errorf("remove job proc record %d: %v", pid, err)
		}
	}
}

// logout refuses to exit while any job remains, per the spec's "There are
// suspended jobs." message; otherwise it behaves exactly as quit.
func (c *Context) logout(_ []string) outcome {
	if c.Jobs.AnyNonEmpty() {
		c.Printf("There are suspended jobs.\n")
		return outcome{}
	}
	return c.quit()
}

// builtinJobs prints the job table listing.
func (c *Context) builtinJobs(_ []string) outcome {
	for _, l := range c.Jobs.List() {
		c.Printf("%s\n", l)
	}
	return outcome{}
}

// builtinHistory prints the history ring, oldest first, 1-based.
func (c *Context) builtinHistory(_ []string) outcome {
	for _, l := range c.History.Lines() {
		c.Printf("%s\n", l)
	}
	return outcome{}
}

// jobRef is a parsed fg/bg argument: either "%<jid>" or a bare number.
type jobRef struct {
	byJid bool
	num   int
}

// parseJobRef parses a fg/bg argument. A leading '%' selects a job by jid;
// otherwise the argument is a bare number, which resolve tries as a pid first
// and then as a jid.
func parseJobRef(arg string) (jobRef, bool) {
	byJid := strings.HasPrefix(arg, "%")
	numText := strings.TrimPrefix(arg, "%")
	n, err := strconv.Atoi(numText)
	if err != nil {
		return jobRef{}, false
	}
	return jobRef{byJid: byJid, num: n}, true
}

// resolve looks up the Job a jobRef refers to. A bare number that matches no
// job's pid is looked up as a jid.
func (c *Context) resolve(ref jobRef) (job.Job, bool) {
	if ref.byJid {
		return c.Jobs.LookupByJid(ref.num)
	}
	if j, ok := c.Jobs.LookupByPid(ref.num); ok {
		return j, true
	}
	return c.Jobs.LookupByJid(ref.num)
}

// builtinBg moves a stopped job to the background, sending it SIGCONT.
func (c *Context) builtinBg(argv []string) outcome {
	if len(argv) < 2 {
		c.Printf("bg command requires PID or %%jobid argument\n")
		return outcome{}
	}
	ref, ok := parseJobRef(argv[1])
	if !ok {
		c.Printf("bg: argument must be a PID or %%jobid\n")
		return outcome{}
	}
	j, found := c.resolve(ref)
	if !found {
		c.Printf("Job (%d) does not exist.\n", ref.num)
		return outcome{}
	}

	switch j.State {
	case job.FG:
		c.Printf("Job (%d) must be stopped before moving to background.\n", ref.num)
		return outcome{}
	case job.BG:
		c.Printf("Job (%d) is already in background.\n", ref.num)
		return outcome{}
	}

	if err := c.Proc.EditState(j.Pid, procfs.StatRunningBG); err != nil && !errors.Is(err, procfs.ErrMissing) {
		logger.Errorf("mirror bg state %d: %v", j.Pid, err)
	}
	if err := c.Jobs.SetState(j.Pid, job.BG); err != nil {
		logger.Errorf("set bg state %d: %v", j.Pid, err)
	}
	if err := c.Signals.Continue(j.Pid); err != nil {
		logger.Errorf("continue pgid %d: %v", j.Pid, err)
	}
	return outcome{}
}

// builtinFg moves a job to the foreground, resuming it if stopped, and waits
// for it to leave FG before returning.
func (c *Context) builtinFg(argv []string) outcome {
	if len(argv) < 2 {
		c.Printf("fg command requires PID or %%jobid argument\n")
		return outcome{}
	}
	ref, ok := parseJobRef(argv[1])
	if !ok {
		c.Printf("fg: argument must be a PID or %%jobid\n")
		return outcome{}
	}
	j, found := c.resolve(ref)
	if !found {
		c.Printf("Job (%d) does not exist.\n", ref.num)
		return outcome{}
	}

	if j.State == job.FG {
		c.Printf("Job (%d) is already in foreground.\n", ref.num)
		return outcome{}
	}

	wasStopped := j.State == job.ST

	if err := c.Proc.EditState(j.Pid, procfs.StatRunningFG); err != nil && !errors.Is(err, procfs.ErrMissing) {
		logger.Errorf("mirror fg state %d: %v", j.Pid, err)
	}
	if err := c.Jobs.SetState(j.Pid, job.FG); err != nil {
		logger.Errorf("set fg state %d: %v", j.Pid, err)
	}

	if wasStopped {
		if err := c.Signals.Continue(j.Pid); err != nil {
			logger.Errorf("continue pgid %d: %v", j.Pid, err)
		}
	}

	c.Signals.WaitFG(j.Pid)
	return outcome{}
}

// builtinAddUser creates a new user account. It is guarded to the root user
// and refuses empty names/passwords or a name that already exists.
func (c *Context) builtinAddUser(argv []string) outcome {
	if c.Username != "root" {
		c.Printf("root privileges required to run adduser.\n")
		return outcome{}
	}
	if len(argv) < 3 {
		c.Printf("usage: adduser <name> <password>\n")
		return outcome{}
	}

	name, pw := argv[1], argv[2]

	v := validator.New()
	v.Assert(name != "", "username empty")
	v.Assert(pw != "", "password empty")
	if err := v.Err(); err != nil {
		c.Printf("Error: %s\n", err)
		return outcome{}
	}

	exists, err := c.Users.Exists(name)
	if err != nil {
		c.Printf("Error: %s\n", err)
		return outcome{}
	}
	if exists {
		c.Printf("User %s already exists.\n", name)
		return outcome{}
	}

	home := filepath.Join(c.cfg.Root, homeDir, name)
	if _, err := os.Stat(home); err == nil {
		c.Printf("Error: stale home directory for %s; remove it before re-adding this user.\n", name)
		return outcome{}
	}
	if err := os.MkdirAll(home, 0700); err != nil {
		c.Printf("Error: %s\n", err)
		return outcome{}
	}

	if err := c.Users.AddUser(name, pw, home); err != nil {
		c.Printf("Error: %s\n", err)
		return outcome{}
	}

	return outcome{}
}
