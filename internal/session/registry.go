package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/stlalpha/rgl/internal/logging"
)

// ErrNotFound is returned by Get for an unknown session id.
var ErrNotFound = errors.New("live session not found")

// Live describes a game that is being played and recorded right now.
type Live struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Game      string    `json:"game"`
	GameName  string    `json:"game_name"`
	Recording string    `json:"recording"`
	Started   time.Time `json:"started"`
	PID       int       `json:"pid"`
}

// Idle is the time since the recording last grew.
func (l Live) Idle(now time.Time) time.Duration {
	info, err := os.Stat(l.Recording)
	if err != nil {
		return 0
	}
	return now.Sub(info.ModTime()).Truncate(time.Second)
}

// Registry tracks live sessions across gateway processes with one JSON
// marker file per session in a shared directory.
type Registry struct {
	dir string
}

// NewRegistry returns a registry rooted at dir, creating it if needed.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create live session directory %s: %w", dir, err)
	}
	return &Registry{dir: dir}, nil
}

func (r *Registry) markerPath(id string) string {
	return filepath.Join(r.dir, id+".json")
}

// Register publishes l, assigning an ID and PID when unset, and returns
// the stored value.
func (r *Registry) Register(l Live) (Live, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.PID == 0 {
		l.PID = os.Getpid()
	}
	if l.Started.IsZero() {
		l.Started = time.Now()
	}

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return l, fmt.Errorf("failed to marshal live session: %w", err)
	}
	tmp, err := os.CreateTemp(r.dir, ".live-*")
	if err != nil {
		return l, fmt.Errorf("failed to create live session marker: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return l, fmt.Errorf("failed to write live session marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return l, fmt.Errorf("failed to close live session marker: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.markerPath(l.ID)); err != nil {
		os.Remove(tmp.Name())
		return l, fmt.Errorf("failed to publish live session marker: %w", err)
	}
	logging.Debug("Registered live session %s for %s (%s)", l.ID, l.User, l.Game)
	return l, nil
}

// Unregister removes the marker for id. A missing marker is not an error.
func (r *Registry) Unregister(id string) error {
	err := os.Remove(r.markerPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove live session marker %s: %w", id, err)
	}
	return nil
}

// Get returns the live session with the given id.
func (r *Registry) Get(id string) (Live, error) {
	data, err := os.ReadFile(r.markerPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Live{}, ErrNotFound
		}
		return Live{}, fmt.Errorf("failed to read live session marker %s: %w", id, err)
	}
	var l Live
	if err := json.Unmarshal(data, &l); err != nil {
		return Live{}, fmt.Errorf("failed to parse live session marker %s: %w", id, err)
	}
	return l, nil
}

// Exists reports whether the marker for id is still present.
func (r *Registry) Exists(id string) bool {
	_, err := os.Stat(r.markerPath(id))
	return err == nil
}

// all reads every marker; unreadable markers are logged and skipped.
func (r *Registry) all() ([]Live, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list live sessions in %s: %w", r.dir, err)
	}
	var result []Live
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		l, err := r.Get(strings.TrimSuffix(name, ".json"))
		if err != nil {
			logging.Warn("Skipping live session marker %s: %v", name, err)
			continue
		}
		result = append(result, l)
	}
	return result, nil
}

// ListActive returns live sessions whose owning process is still
// running, oldest first.
func (r *Registry) ListActive() ([]Live, error) {
	all, err := r.all()
	if err != nil {
		return nil, err
	}
	result := make([]Live, 0, len(all))
	for _, l := range all {
		if ProcessAlive(l.PID) {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Started.Equal(result[j].Started) {
			return result[i].ID < result[j].ID
		}
		return result[i].Started.Before(result[j].Started)
	})
	return result, nil
}

// Recordings returns the recording paths of every marker, alive or not.
func (r *Registry) Recordings() (map[string]bool, error) {
	all, err := r.all()
	if err != nil {
		return nil, err
	}
	paths := make(map[string]bool, len(all))
	for _, l := range all {
		paths[filepath.Clean(l.Recording)] = true
	}
	return paths, nil
}

// Sweep removes markers left behind by processes that died without
// unregistering and returns how many were removed.
func (r *Registry) Sweep() (int, error) {
	all, err := r.all()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, l := range all {
		if ProcessAlive(l.PID) {
			continue
		}
		if err := r.Unregister(l.ID); err != nil {
			return removed, err
		}
		logging.Info("Removed stale live session %s (user %s, pid %d)", l.ID, l.User, l.PID)
		removed++
	}
	return removed, nil
}

// ProcessAlive reports whether pid names a running process. EPERM means
// the process exists but belongs to someone else.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
