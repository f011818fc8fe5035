package shell

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"github.com/coreyhill/tsh/internal/tsh/job"
	"github.com/coreyhill/tsh/internal/tsh/procfs"
	"github.com/coreyhill/tsh/internal/tsh/tokenize"
)

// outcome is the result of evaluating one command line. A non-nil err is a
// reset-state or fatal condition to log; quit signals the session loop
// should stop after this evaluation.
type outcome struct {
	quit bool
	code int
	err  error
}

// Evaluate parses and runs a single command line. recordHistory is false for
// lines recalled via "!N", which must not themselves be re-persisted.
func (c *Context) Evaluate(raw string, recordHistory bool) outcome {
	line := tokenize.Tokenize(raw)
	if len(line.Argv) == 0 {
		return outcome{}
	}

	if name := line.Argv[0]; len(name) > 1 && name[0] == '!' {
		return c.recall(name)
	}

	if recordHistory {
		c.History.Add(raw)
	}

	if fn, ok := builtins[line.Argv[0]]; ok {
		return fn(c, line.Argv)
	}

	return c.fork(line, raw)
}

// recall re-evaluates the Nth history ring entry. The recalled command is
// itself evaluated with recordHistory=false, per the spec's explicit carve
// out that "!N" invocations must not be re-persisted.
func (c *Context) recall(token string) outcome {
	n, err := strconv.Atoi(strings.TrimPrefix(token, "!"))
	if err != nil {
		c.Printf("%s: event not found\n", token)
		return outcome{}
	}

	cmdline, err := c.History.At(n)
	if err != nil {
		c.Printf("%s: event not found\n", token)
		return outcome{}
	}

	return c.Evaluate(cmdline, false)
}

// fork launches an external command, either in the foreground (and waits for
// it to leave FG) or in the background (printing its pid and returning
// immediately).
//
// The reference shell forks, then has the child write its own proc record,
// set its own pgid and unblock the child signal before execing, all inside
// the child's address space. Go's os/exec performs fork+exec as a single
// library call and does not give the caller a window to run code in the
// child between fork and exec, so the "child writes its own record" step is
// performed by the parent immediately after Start returns instead; the
// pgid-setting is still genuinely done by the child via SysProcAttr, which
// the kernel applies as part of the clone/exec sequence.
func (c *Context) fork(line tokenize.Line, raw string) outcome {
	cmd := exec.Command(line.Argv[0], line.Argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Signals.Lock is held from before Start() until the job table and proc
	// mirror both carry this child's record, so the reap loop in onChild can
	// never observe the pid before it is installed — the Go equivalent of
	// masking SIGCHLD from before fork until after add_job. A child that
	// exits within microseconds of Start() returning would otherwise race
	// onChild's Wait4, be reaped and dropped (LookupByPid finding nothing),
	// and leave a phantom FG job with no SIGCHLD left to wake WaitFG.
	c.Signals.Lock()

	if err := cmd.Start(); err != nil {
		c.Signals.Unlock()
		logger.Errorf("start %s: %v", line.Argv[0], errors.Wrap(err, "exec"))
		c.Printf("%s: Command not found.\n", line.Argv[0])
		return outcome{}
	}

	pid := cmd.Process.Pid
	state := job.BG
	if !line.Background {
		state = job.FG
	}

	if _, err := c.Jobs.Add(pid, state, raw); err != nil {
		c.Signals.Unlock()
		c.Printf("Error: %s\n", err)
		if killErr := cmd.Process.Kill(); killErr != nil {
			logger.Errorf("kill unregistered job %d: %v", pid, killErr)
		}
		return outcome{}
	}

	stat := procfs.StatRunningBG
	if !line.Background {
		stat = procfs.StatRunningFG
	}
	if err := c.Proc.Create(procfs.Record{
		Name:     filepath.Base(line.Argv[0]),
		Pid:      pid,
		PPid:     c.Sid,
		PGid:     pid,
		Sid:      c.Sid,
		Stat:     stat,
		Username: c.Username,
	}); err != nil {
		logger.Errorf("create proc record for %d: %v", pid, err)
	}

	// The job table and proc mirror now both carry this pid; onChild may
	// safely observe and reap it from this point on.
	c.Signals.Unlock()

	if line.Background {
		c.Printf("%d %s\n", pid, raw)
		return outcome{}
	}

	c.Signals.WaitFG(pid)
	return outcome{}
}
