// Package files holds the small filesystem helpers menu actions need:
// policy-controlled copies into a user's directory and parent creation.
package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// OverwritePolicy decides what CopyFile does when the destination exists.
type OverwritePolicy int

const (
	OverwriteExisting OverwritePolicy = iota
	IgnoreExisting
)

// ParsePolicy maps the document spelling to a policy.
func ParsePolicy(s string) (OverwritePolicy, error) {
	switch s {
	case "overwrite_existing":
		return OverwriteExisting, nil
	case "ignore_existing":
		return IgnoreExisting, nil
	default:
		return 0, fmt.Errorf("unknown overwrite policy %q", s)
	}
}

func (p OverwritePolicy) String() string {
	if p == IgnoreExisting {
		return "ignore_existing"
	}
	return "overwrite_existing"
}

const (
	dirMode  = 0750
	fileMode = 0640
)

// EnsureParent creates the directory that will contain path.
func EnsureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// CopyFile copies src to dst, creating dst's parent directories. With
// IgnoreExisting an existing dst, symlinks included, is left alone and
// copied is false; the check and the create are one O_EXCL open.
func CopyFile(src, dst string, policy OverwritePolicy) (copied bool, err error) {
	if err := EnsureParent(dst); err != nil {
		return false, err
	}

	var in, out *os.File
	if policy == IgnoreExisting {
		out, err = os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to create %s: %w", dst, err)
		}
		if in, err = os.Open(src); err != nil {
			out.Close()
			os.Remove(dst)
			return false, fmt.Errorf("failed to open source %s: %w", src, err)
		}
	} else {
		if in, err = os.Open(src); err != nil {
			return false, fmt.Errorf("failed to open source %s: %w", src, err)
		}
		if out, err = os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode); err != nil {
			in.Close()
			return false, fmt.Errorf("failed to create %s: %w", dst, err)
		}
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return false, fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return true, nil
}
