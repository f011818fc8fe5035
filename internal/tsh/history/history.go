// Package history implements the tsh command history ring and its
// persistence to a per-user history file.
package history

import (
	"bufio"
	"fmt"
	"os"

	ierrors "github.com/coreyhill/tsh/internal/errors"
	"github.com/coreyhill/tsh/internal/tsh"
)

// ErrOutOfRange indicates a !N reference fell outside the ring's bounds.
var ErrOutOfRange = fmt.Errorf("history entry out of range")

// Ring is an in-memory, oldest-first history of the last tsh.HistorySize
// command lines. Ring is not safe for concurrent use; it is only ever touched
// from the main read/eval loop.
type Ring struct {
	entries []string
}

// NewRing creates an empty Ring.
func NewRing() *Ring {
	return &Ring{}
}

// Add appends cmdline to the ring, evicting the oldest entry once the ring
// holds tsh.HistorySize entries.
func (r *Ring) Add(cmdline string) {
	r.entries = append(r.entries, cmdline)
	if len(r.entries) > tsh.HistorySize {
		r.entries = r.entries[len(r.entries)-tsh.HistorySize:]
	}
}

// Len returns the number of entries currently held.
func (r *Ring) Len() int { return len(r.entries) }

// At retrieves the 1-based nth entry, oldest first. ErrOutOfRange is returned
// if n is outside [1, Len()].
func (r *Ring) At(n int) (string, error) {
	if n < 1 || n > len(r.entries) {
		return "", fmt.Errorf("history entry %d: %w", n, ErrOutOfRange)
	}
	return r.entries[n-1], nil
}

// Lines returns every entry, 1-based, oldest first, formatted for the
// `history` builtin.
func (r *Ring) Lines() []string {
	lines := make([]string, len(r.entries))
	for i, e := range r.entries {
		lines[i] = fmt.Sprintf("%d\t%s", i+1, e)
	}
	return lines
}

// Hydrate loads path (if it exists) and reconstructs the ring from the file's
// last lines, keeping at most tsh.HistorySize most-recent lines in their
// original insertion order. A missing file is not an error; the
// ring is simply left empty.
func Hydrate(path string) (*Ring, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewRing(), nil
	}
	if err != nil {
		return nil, ierrors.Wrap(fmt.Errorf("open history file %s: %w", path, err))
	}
	defer f.Close()

	var all []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		all = append(all, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, ierrors.Wrap(fmt.Errorf("read history file %s: %w", path, err))
	}

	// A history file is allowed to accumulate up to tsh.HistoryFileLines
	// between sessions before the shell truncates it; the ring itself only
	// ever keeps the most recent tsh.HistorySize of those.
	if len(all) > tsh.HistoryFileLines {
		all = all[len(all)-tsh.HistoryFileLines:]
	}
	if len(all) > tsh.HistorySize {
		all = all[len(all)-tsh.HistorySize:]
	}

	return &Ring{entries: all}, nil
}

// Persist truncates path's backing file to the ring's current contents, one
// command per line, oldest first. Persist is called by quit/logout; the file
// is never allowed to grow past tsh.HistorySize lines across a shutdown,
// even though it may have accumulated up to tsh.HistoryFileLines between
// sessions.
func (r *Ring) Persist(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return ierrors.Wrap(fmt.Errorf("open history file %s: %w", path, err))
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range r.entries {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return ierrors.Wrap(fmt.Errorf("write history file %s: %w", path, err))
		}
	}
	return ierrors.Wrap(w.Flush())
}
