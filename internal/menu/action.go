package menu

import (
	"fmt"
	"path/filepath"

	"github.com/stlalpha/rgl/internal/files"
	"github.com/stlalpha/rgl/internal/session"
)

// MenuRef is an index into a compiled Set. It is only meaningful for the
// Set that produced it.
type MenuRef int

// Action is one declarative step of a menu entry. The set of actions is
// closed: only the types in this file implement it.
type Action interface {
	isAction()
}

type (
	GoTo           struct{ Target MenuRef }
	Return         struct{}
	Quit           struct{}
	Register       struct{}
	Login          struct{}
	ChangePassword struct{}
	ChangeContact  struct{}
	FlashMessage   struct{ Text string }
	RunGame        struct{ Game string }
	EditFile       struct{ Path PathSpec }
	CopyFile       struct {
		Src, Dst PathSpec
		Policy   files.OverwritePolicy
	}
	Watch struct{}
)

func (GoTo) isAction()           {}
func (Return) isAction()         {}
func (Quit) isAction()           {}
func (Register) isAction()       {}
func (Login) isAction()          {}
func (ChangePassword) isAction() {}
func (ChangeContact) isAction()  {}
func (FlashMessage) isAction()   {}
func (RunGame) isAction()        {}
func (EditFile) isAction()       {}
func (CopyFile) isAction()       {}
func (Watch) isAction()          {}

// PathKind says how a PathSpec is resolved.
type PathKind int

const (
	PathNormal  PathKind = iota // used verbatim
	PathUserDir                 // relative to the user's private directory
)

// PathSpec is a path as written in a menu.
type PathSpec struct {
	Kind PathKind
	Path string
}

// NeedsSession reports whether resolving p requires a logged in user.
func (p PathSpec) NeedsSession() bool { return p.Kind == PathUserDir }

// Resolve turns p into a filesystem path. UserDir paths live under
// userdataRoot/<username>.
func (p PathSpec) Resolve(sess *session.Session, userdataRoot string) (string, error) {
	if p.Kind == PathNormal {
		return p.Path, nil
	}
	if !sess.Authenticated() {
		return "", fmt.Errorf("%w: user directory path %q", ErrNoSession, p.Path)
	}
	return filepath.Join(sess.UserDir(userdataRoot), p.Path), nil
}

// OutcomeKind tells the engine how to continue after an action.
type OutcomeKind int

const (
	Continue       OutcomeKind = iota // run the next action in the entry
	AbortRemaining                    // skip the rest of the entry
	Navigate                          // apply Op, then run the next action
)

// NavOp is a navigation change requested by an action.
type NavOp int

const (
	NavPush NavOp = iota
	NavPop
	NavQuit
	NavAuthenticated // enter the post-login menu with empty history
)

// Outcome is the result of executing one action.
type Outcome struct {
	Kind   OutcomeKind
	Op     NavOp
	Target MenuRef // for NavPush
}

var (
	outcomeContinue = Outcome{Kind: Continue}
	outcomeAbort    = Outcome{Kind: AbortRemaining}
)

func navigate(op NavOp, target MenuRef) Outcome {
	return Outcome{Kind: Navigate, Op: op, Target: target}
}
