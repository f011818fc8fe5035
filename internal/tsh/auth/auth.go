// Package auth provides the tsh credential store: a colon-separated text
// file of username:password:home-dir triples, the external collaborator
// consulted at login and appended to by the adduser builtin.
package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	ierrors "github.com/coreyhill/tsh/internal/errors"
)

// Credential is a single line of the credential store.
type Credential struct {
	Username string
	Password string
	Home     string
}

// Store wraps a colon-separated credential file.
type Store struct {
	path string
}

// NewStore opens the credential store at path. The file is not required to
// exist yet; it is created lazily by the first AddUser call.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Authenticate reports whether username/password matches an entry in the
// store, returning the matching entry's home directory on success.
func (s *Store) Authenticate(username, password string) (home string, ok bool, err error) {
	creds, err := s.load()
	if err != nil {
		return "", false, err
	}
	for _, c := range creds {
		if c.Username == username && c.Password == password {
			return c.Home, true, nil
		}
	}
	return "", false, nil
}

// Exists reports whether username already has a credential entry.
func (s *Store) Exists(username string) (bool, error) {
	creds, err := s.load()
	if err != nil {
		return false, err
	}
	for _, c := range creds {
		if c.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// AddUser appends a new username:password:home line to the store. The
// format is fixed as "name:password:home\n"; callers must have already
// validated that name is non-empty, password is non-empty, and the user does
// not already exist.
func (s *Store) AddUser(username, password, home string) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return ierrors.Wrap(fmt.Errorf("open credential store %s: %w", s.path, err))
	}
	defer f.Close()

	line := fmt.Sprintf("%s:%s:%s\n", username, password, home)
	n, err := f.WriteString(line)
	if err != nil {
		return ierrors.Wrap(fmt.Errorf("write credential store %s: %w", s.path, err))
	}
	if n != len(line) {
		return ierrors.Wrap(fmt.Errorf("short write to credential store %s", s.path))
	}
	return nil
}

// load reads every credential line currently in the store. A missing file is
// treated as an empty store, not an error.
func (s *Store) load() ([]Credential, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ierrors.Wrap(fmt.Errorf("open credential store %s: %w", s.path, err))
	}
	defer f.Close()

	var creds []Credential
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		creds = append(creds, Credential{Username: parts[0], Password: parts[1], Home: parts[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, ierrors.Wrap(fmt.Errorf("read credential store %s: %w", s.path, err))
	}
	return creds, nil
}
