package user

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stlalpha/rgl/internal/logging"
)

// JSONStore keeps users in a single JSON file. Every gateway login runs
// its own process, so each operation re-reads the file under an flock on
// a sibling lock file and writes it back atomically.
type JSONStore struct {
	mu       sync.Mutex
	path     string
	lockPath string
}

// NewJSONStore opens (creating if missing) the users file at path.
func NewJSONStore(path string) (*JSONStore, error) {
	if path == "" {
		return nil, fmt.Errorf("json user store needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	s := &JSONStore{path: path, lockPath: path + ".lock"}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logging.Info("%s not found, starting with an empty user directory.", path)
		err := s.withLock(unix.LOCK_EX, func() error {
			return s.save(map[string]*Record{})
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// withLock runs fn while holding an flock of the given kind.
func (s *JSONStore) withLock(how int, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file %s: %w", s.lockPath, err)
	}
	defer lf.Close()

	for {
		err = unix.Flock(int(lf.Fd()), how)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", s.lockPath, err)
	}
	defer unix.Flock(int(lf.Fd()), unix.LOCK_UN)

	return fn()
}

// load reads the users file into a map keyed by lowercase username.
func (s *JSONStore) load() (map[string]*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Record{}, nil
		}
		return nil, fmt.Errorf("failed to read users file %s: %w", s.path, err)
	}

	var list []*Record
	if len(data) > 0 {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to unmarshal users array: %w", err)
		}
	}

	users := make(map[string]*Record, len(list))
	for _, rec := range list {
		if rec == nil {
			continue
		}
		key := strings.ToLower(rec.Username)
		if _, exists := users[key]; exists {
			logging.Warn("Duplicate username found in %s: %s. Skipping subsequent entry.", s.path, rec.Username)
			continue
		}
		users[key] = rec
	}
	return users, nil
}

// save writes users sorted by ID through a temp file and rename.
func (s *JSONStore) save(users map[string]*Record) error {
	list := make([]*Record, 0, len(users))
	for _, rec := range users {
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal users slice: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".users-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp users file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp users file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp users file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp users file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write users file %s: %w", s.path, err)
	}
	return nil
}

// Lookup returns a copy of the record for username, ignoring case.
func (s *JSONStore) Lookup(username string) (*Record, error) {
	var found *Record
	err := s.withLock(unix.LOCK_SH, func() error {
		users, err := s.load()
		if err != nil {
			return err
		}
		rec, ok := users[strings.ToLower(username)]
		if !ok {
			return ErrUserNotFound
		}
		found = clone(rec)
		return nil
	})
	return found, err
}

// Insert adds a new user. The username must not already exist in any case.
func (s *JSONStore) Insert(username, passwordHash, contact string) (*Record, error) {
	var created *Record
	err := s.withLock(unix.LOCK_EX, func() error {
		users, err := s.load()
		if err != nil {
			return err
		}
		key := strings.ToLower(username)
		if _, exists := users[key]; exists {
			return ErrUserExists
		}
		maxID := 0
		for _, rec := range users {
			if rec.ID > maxID {
				maxID = rec.ID
			}
		}
		now := time.Now()
		rec := &Record{
			ID:           maxID + 1,
			Username:     username,
			PasswordHash: passwordHash,
			Contact:      contact,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		users[key] = rec
		if err := s.save(users); err != nil {
			return err
		}
		created = clone(rec)
		return nil
	})
	if err == nil {
		logging.Info("User %s registered (ID %d).", created.Username, created.ID)
	}
	return created, err
}

// update applies fn to the stored record for username and saves.
func (s *JSONStore) update(username string, fn func(*Record)) error {
	return s.withLock(unix.LOCK_EX, func() error {
		users, err := s.load()
		if err != nil {
			return err
		}
		rec, ok := users[strings.ToLower(username)]
		if !ok {
			return ErrUserNotFound
		}
		fn(rec)
		rec.UpdatedAt = time.Now()
		return s.save(users)
	})
}

func (s *JSONStore) UpdatePassword(username, passwordHash string) error {
	return s.update(username, func(r *Record) { r.PasswordHash = passwordHash })
}

func (s *JSONStore) UpdateContact(username, contact string) error {
	return s.update(username, func(r *Record) { r.Contact = contact })
}

func (s *JSONStore) SetNoLogin(username string, noLogin bool) error {
	return s.update(username, func(r *Record) { r.NoLogin = noLogin })
}

// List returns copies of all records sorted by ID.
func (s *JSONStore) List() ([]*Record, error) {
	var list []*Record
	err := s.withLock(unix.LOCK_SH, func() error {
		users, err := s.load()
		if err != nil {
			return err
		}
		for _, rec := range users {
			list = append(list, clone(rec))
		}
		return nil
	})
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, err
}

// Close is a no-op; the store holds no open handles between calls.
func (s *JSONStore) Close() error { return nil }
