//go:build linux || darwin || freebsd || netbsd || openbsd

package terminalio

import "golang.org/x/sys/unix"

// disableEcho turns off ECHO but keeps ECHONL so the user still sees the
// line break after typing a password. Canonical line editing stays on,
// which keeps backspace working. The returned func restores the previous
// settings.
func disableEcho(fd int) (func() error, error) {
	old, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return nil, err
	}
	noEcho := *old
	noEcho.Lflag &^= unix.ECHO
	noEcho.Lflag |= unix.ECHONL
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &noEcho); err != nil {
		return nil, err
	}
	return func() error {
		return unix.IoctlSetTermios(fd, ioctlSetTermios, old)
	}, nil
}
