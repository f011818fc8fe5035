// Package procfs provides the tsh "proc mirror": a persisted, byte-addressable
// status record per tracked pid, laid out as a directory tree that mimics
// /proc/<pid>/status. It is the external sink the job table and signal layer
// keep in sync with in-memory state; it owns no in-memory state of its own.
package procfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/coreyhill/tsh/internal/log"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "procfs")

// Stat codes, following the /proc status convention used by this shell.
const (
	// StatSessionLeader marks the shell's own record.
	StatSessionLeader = "Ss"
	// StatRunningBG marks a job running in the background.
	StatRunningBG = "R"
	// StatRunningFG marks a job running in the foreground.
	StatRunningFG = "R+"
	// StatStopped marks a stopped job.
	StatStopped = "T"
)

// ErrMissing indicates the record being operated on does not exist. Callers
// editing a record concurrently deleted by another path must treat this as a
// recoverable condition, not a crash.
var ErrMissing = errors.New("proc record missing")

const (
	statusFile = "status"
	dirMode    = 0755
	fileMode   = 0644
)

// Record mirrors a single process's status.
type Record struct {
	Name     string
	Pid      int
	PPid     int
	PGid     int
	Sid      int
	Stat     string
	Username string
}

// NewMirror creates a Mirror rooted at root, creating the directory if it
// does not already exist.
func NewMirror(root string) (*Mirror, error) {
	if err := os.MkdirAll(root, dirMode); err != nil {
		return nil, fmt.Errorf("create proc mirror root %s: %w", root, err)
	}
	return &Mirror{root: filepath.Clean(root)}, nil
}

// Mirror is a persistent key/value sink keyed by pid.
type Mirror struct {
	root string
}

// Create writes a brand-new status record for r.Pid.
func (m *Mirror) Create(r Record) error {
	if err := os.MkdirAll(m.dir(r.Pid), dirMode); err != nil {
		return fmt.Errorf("create proc dir for %d: %w", r.Pid, err)
	}
	return m.Write(r)
}

// Write persists r, replacing any existing record for r.Pid. Write is atomic:
// it stages the new content under a uuid-named temp file in the same
// directory and renames it over the status file, so a concurrent reader never
// observes a half-written record.
func (m *Mirror) Write(r Record) error {
	dir := m.dir(r.Pid)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("write proc record %d: %w", r.Pid, err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf("%s.tmp", uuid.NewString()))
	if err := os.WriteFile(tmp, encode(r), fileMode); err != nil {
		return fmt.Errorf("stage proc record %d: %w", r.Pid, err)
	}
	if err := os.Rename(tmp, m.statusPath(r.Pid)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit proc record %d: %w", r.Pid, err)
	}
	return nil
}

// Read retrieves the status record for pid.
func (m *Mirror) Read(pid int) (Record, error) {
	b, err := os.ReadFile(m.statusPath(pid))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, fmt.Errorf("read proc record %d: %w", pid, ErrMissing)
	}
	if err != nil {
		return Record{}, fmt.Errorf("read proc record %d: %w", pid, err)
	}
	return decode(b), nil
}

// EditState performs a read-modify-write of pid's stat field. If the record
// has been concurrently removed, EditState reports ErrMissing rather than
// failing loudly; the caller (the signal layer or a builtin) is expected to
// treat a missing record as "nothing left to edit".
func (m *Mirror) EditState(pid int, stat string) error {
	r, err := m.Read(pid)
	if errors.Is(err, ErrMissing) {
		return err
	}
	if err != nil {
		return err
	}
	r.Stat = stat
	return m.Write(r)
}

// Remove deletes the record (and directory) for pid.
func (m *Mirror) Remove(pid int) error {
	if err := os.RemoveAll(m.dir(pid)); err != nil {
		return fmt.Errorf("remove proc record %d: %w", pid, err)
	}
	return nil
}

// RemoveAll deletes every numeric-keyed record under the mirror root,
// including orphans the shell itself never owned (e.g. its own
// crash-recovery leftovers). The quit builtin does not call it; quit removes
// its own and each tracked child's record individually.
func (m *Mirror) RemoveAll() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("list proc mirror %s: %w", m.root, err)
	}
	for _, e := range entries {
		if _, ok := pidFromName(e.Name()); !ok {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, e.Name())); err != nil {
			logger.Errorf("remove orphan proc dir %s: %v", e.Name(), err)
		}
	}
	return nil
}

// PurgeOrphans enumerates the mirror's keyspace and removes every numeric-
// keyed entry not present in keep. It is run once at shell startup to
// discover and reap proc-mirror entries left behind by an earlier run that
// crashed without cleaning up after itself.
func (m *Mirror) PurgeOrphans(keep map[int]struct{}) error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("list proc mirror %s: %w", m.root, err)
	}

	for _, e := range entries {
		pid, ok := pidFromName(e.Name())
		if !ok {
			continue
		}
		if _, kept := keep[pid]; kept {
			continue
		}
		logger.Infof("purging orphan proc record; pid: %d", pid)
		if err := os.RemoveAll(filepath.Join(m.root, e.Name())); err != nil {
			logger.Errorf("purge orphan proc dir %d: %v", pid, err)
		}
	}
	return nil
}

func (m *Mirror) dir(pid int) string {
	return filepath.Join(m.root, strconv.Itoa(pid))
}

func (m *Mirror) statusPath(pid int) string {
	return filepath.Join(m.dir(pid), statusFile)
}

func pidFromName(name string) (int, bool) {
	pid, err := strconv.Atoi(name)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func encode(r Record) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Name:\t%s\n", r.Name)
	fmt.Fprintf(&b, "Pid:\t%d\n", r.Pid)
	fmt.Fprintf(&b, "PPid:\t%d\n", r.PPid)
	fmt.Fprintf(&b, "PGid:\t%d\n", r.PGid)
	fmt.Fprintf(&b, "Sid:\t%d\n", r.Sid)
	fmt.Fprintf(&b, "STAT:\t%s\n", r.Stat)
	fmt.Fprintf(&b, "Username:\t%s\n", r.Username)
	return []byte(b.String())
}

func decode(b []byte) Record {
	var r Record
	for _, line := range strings.Split(string(b), "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "Name":
			r.Name = val
		case "Pid":
			r.Pid, _ = strconv.Atoi(val)
		case "PPid":
			r.PPid, _ = strconv.Atoi(val)
		case "PGid":
			r.PGid, _ = strconv.Atoi(val)
		case "Sid":
			r.Sid, _ = strconv.Atoi(val)
		case "STAT":
			r.Stat = val
		case "Username":
			r.Username = val
		}
	}
	return r
}
