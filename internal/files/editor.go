package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Editor runs an external editor on exactly one file. The child gets a
// minimal environment and the file's directory as its working directory.
type Editor struct {
	Command string
	Arg0    string   // argv[0], e.g. rnano for a restricted nano
	Stdin   *os.File // nil means /dev/null
	Stdout  *os.File
	Stderr  *os.File
}

// keptEnv lists the variables the editor inherits.
var keptEnv = []string{"TERM", "LANG", "PATH"}

// Edit blocks until the editor exits. A non-zero exit status is logged
// and otherwise ignored; failing to start or wait for it is an error.
func (e *Editor) Edit(ctx context.Context, path, home string) error {
	cmd := exec.CommandContext(ctx, e.Command, path)
	if e.Arg0 != "" {
		cmd.Args[0] = e.Arg0
	}
	cmd.Dir = filepath.Dir(path)
	cmd.Env = editorEnv(os.Environ(), home)
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exitErr):
		log.Warn().Str("editor", e.Command).Str("path", path).Int("status", exitErr.ExitCode()).Msg("editor exited with non-zero status")
		return nil
	default:
		return fmt.Errorf("failed to run editor %s: %w", e.Command, err)
	}
}

func editorEnv(base []string, home string) []string {
	var env []string
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "LC_") {
			env = append(env, kv)
			continue
		}
		for _, k := range keptEnv {
			if key == k {
				env = append(env, kv)
				break
			}
		}
	}
	if home != "" {
		env = append(env, "HOME="+home)
	}
	return env
}
