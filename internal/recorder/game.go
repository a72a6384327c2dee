package recorder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog/log"

	"github.com/stlalpha/rgl/internal/config"
	"github.com/stlalpha/rgl/internal/files"
	"github.com/stlalpha/rgl/internal/session"
)

// recordingStamp names recordings so they sort chronologically.
const recordingStamp = "2006-01-02.15:04:05.000000"

// Launcher runs configured games for logged in users, recording each run
// under RecordingsDir/<user>/<game>/ and publishing it as a live session
// while it runs.
type Launcher struct {
	Games         map[string]config.GameConfig
	RecordingsDir string
	Registry      *session.Registry
	Terminal      *os.File  // controlling terminal: child stdin/stderr
	Live          io.Writer // live mirror, normally the same terminal
	MaxFrame      int
}

// Play runs game id for username, whose private directory is userDir.
func (l *Launcher) Play(ctx context.Context, username, userDir, id string) (Result, error) {
	game, ok := l.Games[id]
	if !ok {
		return Result{}, fmt.Errorf("recorder: unknown game %q", id)
	}
	if err := files.EnsureDir(userDir); err != nil {
		return Result{}, err
	}

	recDir := filepath.Join(l.RecordingsDir, username, id)
	if err := files.EnsureDir(recDir); err != nil {
		return Result{}, err
	}
	recPath := filepath.Join(recDir, time.Now().UTC().Format(recordingStamp)+".ttyrec")
	recFile, err := os.OpenFile(recPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		return Result{}, fmt.Errorf("recorder: create recording %s: %w", recPath, err)
	}
	defer recFile.Close()

	subs := map[string]string{
		"{user}":    username,
		"{userdir}": userDir,
		"{game}":    id,
	}
	args := make([]string, len(game.Args))
	for i, arg := range game.Args {
		args[i] = substitute(arg, subs)
	}
	dir := game.WorkingDirectory
	if dir == "" {
		dir = userDir
	} else {
		dir = substitute(dir, subs)
	}

	name := game.Name
	if name == "" {
		name = id
	}
	var live session.Live
	if l.Registry != nil {
		live, err = l.Registry.Register(session.Live{User: username, Game: id, GameName: name, Recording: recPath})
		if err != nil {
			return Result{}, err
		}
		defer func() {
			if err := l.Registry.Unregister(live.ID); err != nil {
				log.Warn().Err(err).Str("session", live.ID).Msg("failed to remove live session marker")
			}
		}()
	}

	log.Info().Str("user", username).Str("game", id).Str("recording", recPath).Msg("starting game")
	res, err := Run(ctx, Options{
		Command:   game.Command,
		Args:      args,
		Dir:       dir,
		Env:       gameEnv(os.Environ(), game.EnvironmentVars, subs, userDir, l.Terminal),
		Recording: recFile,
		Live:      l.Live,
		Stdin:     l.Terminal,
		Stderr:    l.Terminal,
		MaxFrame:  l.MaxFrame,
	})
	if err != nil {
		return res, err
	}
	if err := recFile.Close(); err != nil {
		return res, fmt.Errorf("recorder: close recording %s: %w", recPath, err)
	}
	log.Info().Str("user", username).Str("game", id).
		Int("frames", res.Frames).Int64("bytes", res.Bytes).Dur("duration", res.Duration).
		Msg("game finished")
	return res, nil
}

func substitute(s string, subs map[string]string) string {
	for k, v := range subs {
		s = strings.ReplaceAll(s, k, v)
	}
	return s
}

// gameEnv builds the child environment: the inherited environment plus
// the game's configured variables, HOME pointed at the user's directory,
// and LINES/COLUMNS taken from the controlling terminal when there is one.
func gameEnv(base []string, extra map[string]string, subs map[string]string, userDir string, tty *os.File) []string {
	override := map[string]string{"HOME": userDir}
	for k, v := range extra {
		override[k] = substitute(v, subs)
	}
	if tty != nil {
		if size, err := pty.GetsizeFull(tty); err == nil && size.Rows > 0 && size.Cols > 0 {
			override["LINES"] = fmt.Sprintf("%d", size.Rows)
			override["COLUMNS"] = fmt.Sprintf("%d", size.Cols)
		}
	}

	env := make([]string, 0, len(base)+len(override))
	for _, e := range base {
		key, _, _ := strings.Cut(e, "=")
		if key == "LINES" || key == "COLUMNS" {
			continue
		}
		if _, replaced := override[key]; replaced {
			continue
		}
		env = append(env, e)
	}
	keys := make([]string, 0, len(override))
	for k := range override {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+override[k])
	}
	return env
}
