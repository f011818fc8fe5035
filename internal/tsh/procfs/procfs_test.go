package procfs

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestCreateAndRead(t *testing.T) {
	m, err := NewMirror(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := Record{Name: "sleep", Pid: 123, PPid: 1, PGid: 123, Sid: 1, Stat: StatRunningFG, Username: "alice"}
	if err := m.Create(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.Read(123)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != r {
		t.Fatalf("expected %+v, got %+v", r, got)
	}
}

func TestReadMissing(t *testing.T) {
	m, err := NewMirror(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Read(999); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
}

func TestEditState(t *testing.T) {
	m, err := NewMirror(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := Record{Name: "sleep", Pid: 123, Stat: StatRunningFG}
	if err := m.Create(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.EditState(123, StatStopped); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.Read(123)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Stat != StatStopped {
		t.Fatalf("expected stat %s, got %s", StatStopped, got.Stat)
	}
}

func TestEditStateMissingIsRecoverable(t *testing.T) {
	m, err := NewMirror(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.EditState(999, StatStopped); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	m, err := NewMirror(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Create(Record{Pid: 42}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Remove(42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Read(42); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing after remove, got %v", err)
	}
}

func TestPurgeOrphans(t *testing.T) {
	m, err := NewMirror(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.Create(Record{Pid: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Create(Record{Pid: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.PurgeOrphans(map[int]struct{}{1: {}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.Read(1); err != nil {
		t.Fatalf("expected pid 1 to survive purge: %v", err)
	}
	if _, err := m.Read(2); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected pid 2 to be purged, got %v", err)
	}
}

func TestWriteIsAtomicNoStrayTempFiles(t *testing.T) {
	root := t.TempDir()
	m, err := NewMirror(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.Create(Record{Pid: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Write(Record{Pid: 7, Stat: StatStopped}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(root, "7", "*.tmp"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no leftover temp files, found %v", matches)
	}
}
