// Package maintenance holds the housekeeping jobs run by rglmaint:
// compressing finished recordings, pruning old ones and sweeping
// live-session markers left by dead gateways.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"github.com/stlalpha/rgl/internal/config"
	"github.com/stlalpha/rgl/internal/scheduler"
	"github.com/stlalpha/rgl/internal/session"
	"github.com/stlalpha/rgl/internal/ttyrec"
)

// DefaultMinAge keeps the newest recordings away from the compressor.
// A recording is created a moment before its live marker is published.
const DefaultMinAge = time.Minute

const (
	rawPattern = "**/*" + ttyrec.Ext
	allPattern = "**/*.{ttyrec,ttyrec.zst}"
)

// Tasks are the maintenance operations over one gateway's directories.
type Tasks struct {
	RecordingsDir string
	Registry      *session.Registry
	Retention     time.Duration
	MinAge        time.Duration
	Now           func() time.Time
}

func (t *Tasks) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// recordings lists files under RecordingsDir matching pattern, as full
// paths. A missing directory has no recordings.
func (t *Tasks) recordings(pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(t.RecordingsDir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list recordings in %s: %w", t.RecordingsDir, err)
	}
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(t.RecordingsDir, filepath.FromSlash(m))
	}
	return paths, nil
}

// Compress replaces every finished .ttyrec with a .ttyrec.zst archive.
// Recordings with a live marker, or modified within MinAge, are skipped.
func (t *Tasks) Compress(ctx context.Context) (string, error) {
	paths, err := t.recordings(rawPattern)
	if err != nil {
		return "", err
	}
	live, err := t.Registry.Recordings()
	if err != nil {
		return "", err
	}
	minAge := t.MinAge
	if minAge <= 0 {
		minAge = DefaultMinAge
	}
	cutoff := t.now().Add(-minAge)

	compressed, skipped := 0, 0
	for _, src := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Sprintf("compressed %d recordings before stopping", compressed), err
		}
		if live[filepath.Clean(src)] {
			skipped++
			continue
		}
		info, err := os.Stat(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("failed to stat %s: %w", src, err)
		}
		if info.ModTime().After(cutoff) {
			skipped++
			continue
		}

		dst := src + ".zst"
		// an archive next to its source is left over from an interrupted run
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to remove stale archive %s: %w", dst, err)
		}
		if err := ttyrec.Compress(src, dst); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("failed to remove %s after compressing: %w", src, err)
		}
		log.Debug().Str("recording", src).Int64("bytes", info.Size()).Msg("compressed recording")
		compressed++
	}
	return fmt.Sprintf("compressed %d recordings, skipped %d", compressed, skipped), nil
}

// Prune deletes recordings, compressed or not, older than Retention.
// A non-positive Retention keeps everything.
func (t *Tasks) Prune(ctx context.Context) (string, error) {
	if t.Retention <= 0 {
		return "retention disabled", nil
	}
	paths, err := t.recordings(allPattern)
	if err != nil {
		return "", err
	}
	live, err := t.Registry.Recordings()
	if err != nil {
		return "", err
	}
	cutoff := t.now().Add(-t.Retention)

	removed := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Sprintf("pruned %d recordings before stopping", removed), err
		}
		if live[filepath.Clean(path)] {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to remove %s: %w", path, err)
		}
		log.Debug().Str("recording", path).Time("modified", info.ModTime()).Msg("pruned recording")
		removed++
	}
	return fmt.Sprintf("pruned %d recordings", removed), nil
}

// Sweep removes live markers whose gateway process has exited.
func (t *Tasks) Sweep(context.Context) (string, error) {
	n, err := t.Registry.Sweep()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("removed %d stale live markers", n), nil
}

// Jobs returns the scheduler jobs for cfg. A job with an empty schedule
// is disabled.
func (t *Tasks) Jobs(cfg config.MaintenanceConfig) []scheduler.Job {
	return []scheduler.Job{
		{ID: "compress", Name: "Compress finished recordings", Schedule: cfg.CompressSchedule,
			Enabled: cfg.CompressSchedule != "", Timeout: time.Hour, Run: t.Compress},
		{ID: "prune", Name: "Prune old recordings", Schedule: cfg.PruneSchedule,
			Enabled: cfg.PruneSchedule != "", Timeout: time.Hour, Run: t.Prune},
		{ID: "sweep", Name: "Sweep stale live sessions", Schedule: cfg.SweepSchedule,
			Enabled: cfg.SweepSchedule != "", Timeout: time.Minute, Run: t.Sweep},
	}
}
