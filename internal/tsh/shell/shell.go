// Package shell wires the job table, proc mirror, signal layer, evaluator
// and builtin dispatcher together into the session shell loop (prompt, read,
// evaluate) and owns the process-wide state the rest of the core operates
// on.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreyhill/tsh/internal/log"
	"github.com/coreyhill/tsh/internal/tsh"
	"github.com/coreyhill/tsh/internal/tsh/auth"
	"github.com/coreyhill/tsh/internal/tsh/history"
	"github.com/coreyhill/tsh/internal/tsh/job"
	"github.com/coreyhill/tsh/internal/tsh/procfs"
	"github.com/coreyhill/tsh/internal/tsh/signal"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "shell")

const (
	// credentialStoreFile is the colon-separated user database, relative to
	// Config.Root.
	credentialStoreFile = "etc/passwd.tsh"
	// procMirrorDir is the simulated /proc tree root, relative to Config.Root.
	procMirrorDir = "proc"
	// homeDir is the directory holding every user's home, relative to
	// Config.Root.
	homeDir = "home"
	// historyFileName is the name of a user's history file within their home.
	historyFileName = ".tsh_history"
)

// Config configures a Context.
type Config struct {
	// Root is the base directory under which proc/, home/ and etc/ live. An
	// empty Root defaults to the current working directory.
	Root string
	// Verbose enables diagnostic logging.
	Verbose bool
	// NoPrompt suppresses the "tsh> " prompt, for scripted drivers.
	NoPrompt bool
	// In and Out are the shell's line source and output sink. They default
	// to os.Stdin and os.Stdout.
	In  io.Reader
	Out io.Writer
}

// Context is the single owning value for every process-wide singleton the
// spec calls for: the logged-in user, their home, the session id, the job
// table, the history ring and the signal layer's wake word. It is created
// once at startup, before signal handlers are installed, and referenced
// (never replaced) for the life of the process.
type Context struct {
	cfg Config

	Username string
	Home     string
	Sid      int

	Jobs    *job.Table
	Proc    *procfs.Mirror
	Signals *signal.Controller
	History *history.Ring
	Users   *auth.Store

	in  *bufio.Scanner
	out io.Writer
}

// New builds a Context rooted at cfg.Root, opening (but not yet hydrating)
// the credential store and proc mirror. Login and history hydration happen
// in Login.
func New(cfg Config) (*Context, error) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	mirror, err := procfs.NewMirror(filepath.Join(cfg.Root, procMirrorDir))
	if err != nil {
		return nil, fmt.Errorf("shell setup: %w", err)
	}

	c := &Context{
		cfg:     cfg,
		Sid:     os.Getpid(),
		Jobs:    job.NewTable(),
		Proc:    mirror,
		History: history.NewRing(),
		Users:   auth.NewStore(filepath.Join(cfg.Root, credentialStoreFile)),
		in:      bufio.NewScanner(cfg.In),
		out:     cfg.Out,
	}
	c.Signals = signal.New(c.Jobs, c.Proc, cfg.Verbose)
	return c, nil
}

// Login authenticates username/password against the credential store, and on
// success records the session's identity, hydrates history and creates the
// shell's own proc record. Login must be called exactly once, before Run.
func (c *Context) Login(username, password string) error {
	home, ok, err := c.Users.Authenticate(username, password)
	if err != nil {
		return fmt.Errorf("Error: %s", err)
	}
	if !ok {
		return fmt.Errorf("Login incorrect.")
	}

	c.Username = username
	c.Home = home

	if err := c.Proc.PurgeOrphans(map[int]struct{}{}); err != nil {
		logger.Errorf("purge orphan proc records: %v", err)
	}

	if err := c.Proc.Create(procfs.Record{
		Name:     "tsh",
		Pid:      c.Sid,
		PPid:     os.Getppid(),
		PGid:     c.Sid,
		Sid:      c.Sid,
		Stat:     procfs.StatSessionLeader,
		Username: username,
	}); err != nil {
		logger.Errorf("create self proc record: %v", err)
	}

	ring, err := history.Hydrate(c.historyPath())
	if err != nil {
		logger.Errorf("hydrate history: %v", err)
	} else {
		c.History = ring
	}

	return nil
}

// LoginFromFirstLine reads the session's credential line ("username
// password") from the same scanner Run subsequently reads commands from, so
// no input is ever double-buffered across the two reads, then authenticates
// via Login.
func (c *Context) LoginFromFirstLine() error {
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return fmt.Errorf("read credentials: %w", err)
		}
		return fmt.Errorf("Login incorrect.")
	}

	fields := strings.Fields(c.in.Text())
	if len(fields) != 2 {
		return fmt.Errorf("expected \"username password\"")
	}

	return c.Login(fields[0], fields[1])
}

// historyPath returns this user's history file path.
func (c *Context) historyPath() string {
	return filepath.Join(c.cfg.Root, homeDir, c.Username, historyFileName)
}

// Printf writes to the shell's configured output.
func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// Run installs signal handling and drives the prompt/read/evaluate loop until
// EOF or a builtin requests exit. Run returns the process exit code.
func (c *Context) Run() int {
	c.Signals.Start()
	defer c.Signals.Stop()

	first := true
	for {
		if !c.cfg.NoPrompt && !first {
			c.Printf("%s", tsh.Prompt)
		}
		first = false

		if !c.in.Scan() {
			if err := c.in.Err(); err != nil {
				logger.Errorf("read command line: %v", err)
				return 1
			}
			return c.shutdown()
		}

		if exit, code, handled := c.evalTop(c.in.Text()); handled && exit {
			return code
		}
	}
}

// evalTop evaluates a single top-level (user-typed, history-eligible) line.
func (c *Context) evalTop(line string) (exit bool, code int, handled bool) {
	outcome := c.Evaluate(line, true)
	if outcome.quit {
		if outcome.err != nil {
			logger.Errorf("shutdown: %v", outcome.err)
		}
		return true, outcome.code, true
	}
	return false, 0, true
}

// shutdown performs the same cleanup as the quit builtin, for the EOF path.
func (c *Context) shutdown() int {
	outcome := c.quit()
	if outcome.err != nil {
		logger.Errorf("shutdown: %v", outcome.err)
	}
	return outcome.code
}
