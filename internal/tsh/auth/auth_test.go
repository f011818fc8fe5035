package auth

import (
	"path/filepath"
	"testing"
)

func TestAuthenticate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd.tsh")
	s := NewStore(path)

	if err := s.AddUser("alice", "swordfish", "/home/alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := map[string]struct {
		username string
		password string
		wantOk   bool
		wantHome string
	}{
		"correct credentials": {
			username: "alice",
			password: "swordfish",
			wantOk:   true,
			wantHome: "/home/alice",
		},
		"wrong password": {
			username: "alice",
			password: "wrong",
			wantOk:   false,
		},
		"unknown user": {
			username: "bob",
			password: "swordfish",
			wantOk:   false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			home, ok, err := s.Authenticate(test.username, test.password)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != test.wantOk {
				t.Fatalf("expected ok=%v, got %v", test.wantOk, ok)
			}
			if ok && home != test.wantHome {
				t.Fatalf("expected home %q, got %q", test.wantHome, home)
			}
		})
	}
}

func TestAuthenticateMissingStore(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"))
	_, ok, err := s.Authenticate("alice", "swordfish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no match against a missing store")
	}
}

func TestExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd.tsh")
	s := NewStore(path)

	if err := s.AddUser("alice", "swordfish", "/home/alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := s.Exists("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected alice to exist")
	}

	ok, err = s.Exists("bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected bob not to exist")
	}
}

func TestAddUserAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd.tsh")
	s := NewStore(path)

	if err := s.AddUser("alice", "pw1", "/home/alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddUser("bob", "pw2", "/home/bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, u := range []string{"alice", "bob"} {
		ok, err := s.Exists(u)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatalf("expected %s to exist after AddUser", u)
		}
	}
}
