package session

import (
	"path/filepath"

	"github.com/stlalpha/rgl/internal/user"
)

// Session is the authenticated identity for one gateway process. It is
// created empty and passed by reference to every menu action; there is no
// package-level current user.
type Session struct {
	User *user.Record
}

// Authenticated reports whether a user has logged in or registered.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil
}

// Username returns the logged in username, or "" when anonymous.
func (s *Session) Username() string {
	if !s.Authenticated() {
		return ""
	}
	return s.User.Username
}

// UserDir returns the user's private directory under root. It is only
// meaningful when Authenticated is true.
func (s *Session) UserDir(root string) string {
	return filepath.Join(root, s.Username())
}
