package history

import (
	"path/filepath"
	"testing"

	"github.com/coreyhill/tsh/internal/tsh"
)

func TestAddEvictsOldest(t *testing.T) {
	r := NewRing()
	for i := 0; i < tsh.HistorySize+3; i++ {
		r.Add(string(rune('a' + i)))
	}
	if r.Len() != tsh.HistorySize {
		t.Fatalf("expected ring capped at %d, got %d", tsh.HistorySize, r.Len())
	}

	first, err := r.At(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := string(rune('a' + 3)); first != want {
		t.Fatalf("expected oldest surviving entry %q, got %q", want, first)
	}
}

func TestAtOutOfRange(t *testing.T) {
	r := NewRing()
	r.Add("echo hi")

	if _, err := r.At(0); err == nil {
		t.Fatalf("expected error for n=0")
	}
	if _, err := r.At(2); err == nil {
		t.Fatalf("expected error for n beyond length")
	}
}

func TestLines(t *testing.T) {
	r := NewRing()
	r.Add("echo one")
	r.Add("echo two")

	lines := r.Lines()
	want := []string{"1\techo one", "2\techo two"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestHydrateMissingFileIsEmpty(t *testing.T) {
	r, err := Hydrate(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty ring, got %d entries", r.Len())
	}
}

func TestPersistAndHydrateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".tsh_history")

	r := NewRing()
	r.Add("echo one")
	r.Add("echo two")
	if err := r.Persist(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := Hydrate(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", loaded.Len())
	}
	got, err := loaded.At(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "echo one" {
		t.Fatalf("expected %q, got %q", "echo one", got)
	}
}

func TestHydrateKeepsMostRecentWithinCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".tsh_history")

	r := NewRing()
	for i := 0; i < tsh.HistoryFileLines; i++ {
		r.entries = append(r.entries, string(rune('a'+i)))
	}
	if err := r.Persist(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := Hydrate(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Len() != tsh.HistorySize {
		t.Fatalf("expected hydrate to cap at %d, got %d", tsh.HistorySize, loaded.Len())
	}

	first, err := loaded.At(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := string(rune('a' + tsh.HistoryFileLines - tsh.HistorySize)); first != want {
		t.Fatalf("expected oldest kept entry %q, got %q", want, first)
	}
}
