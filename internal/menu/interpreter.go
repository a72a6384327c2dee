package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stlalpha/rgl/internal/files"
	"github.com/stlalpha/rgl/internal/recorder"
	"github.com/stlalpha/rgl/internal/session"
	"github.com/stlalpha/rgl/internal/terminalio"
	"github.com/stlalpha/rgl/internal/user"
)

// Messages flashed by the interpreter.
const (
	msgBadUsername     = "username must be ASCII alphanumeric and no longer than 15 characters"
	msgUserExists      = "user already exists"
	msgPasswordInequal = "the passwords don't match"
	msgNoContact       = "you won't be able to ask for a password reset with no contact information on record!"
	msgDeleteContact   = "deleting contact information - you won't be able to ask for a password reset!"
	msgLoginError      = "login error"
	msgNoGames         = "no games in progress"
)

// Prompts shown by the interpreter.
const (
	promptUsername        = "username > "
	promptNewPassword     = "new password > "
	promptConfirmPassword = "confirm new password > "
	promptPassword        = "password > "
	promptContact         = "contact information (email, IRC, discord) > "
	promptWatch           = "watch which game? > "
)

// DefaultFlashDelay is how long a flashed message stays up.
const DefaultFlashDelay = 2 * time.Second

// GameRunner launches a recorded game for a logged in user.
type GameRunner interface {
	Play(ctx context.Context, username, userDir, game string) (recorder.Result, error)
}

// Editor opens one file in an external editor and blocks until it exits.
type Editor interface {
	Edit(ctx context.Context, path, home string) error
}

// Spectator lists live games and tails one of them.
type Spectator interface {
	List() ([]session.Live, error)
	Tail(ctx context.Context, live session.Live) error
}

// Interpreter executes single actions against a session. It never touches
// navigation state; GoTo, Return, Quit and successful logins are reported
// back as Navigate outcomes.
type Interpreter struct {
	Users        user.Directory
	Prompt       terminalio.Prompter
	Out          io.Writer
	UserdataRoot string
	FlashDelay   time.Duration
	Sleep        func(time.Duration) // time.Sleep when nil
	Games        GameRunner
	Editor       Editor
	Spectator    Spectator
	Now          func() time.Time
}

// Execute runs act. Validation and authentication failures are handled
// here: they flash a message and return AbortRemaining with a nil error.
// Any returned error is fatal.
func (in *Interpreter) Execute(ctx context.Context, act Action, sess *session.Session) (Outcome, error) {
	switch a := act.(type) {
	case GoTo:
		return navigate(NavPush, a.Target), nil
	case Return:
		return navigate(NavPop, 0), nil
	case Quit:
		return navigate(NavQuit, 0), nil
	case Register:
		return in.register(sess)
	case Login:
		return in.login(sess)
	case ChangePassword:
		return in.changePassword(sess)
	case ChangeContact:
		return in.changeContact(sess)
	case FlashMessage:
		return outcomeContinue, in.flash(a.Text)
	case RunGame:
		return in.runGame(ctx, a, sess)
	case EditFile:
		return in.editFile(ctx, a, sess)
	case CopyFile:
		return in.copyFile(a, sess)
	case Watch:
		return in.watch(ctx)
	default:
		return Outcome{}, fmt.Errorf("menu: unhandled action %T", act)
	}
}

func (in *Interpreter) flash(text string) error {
	if err := terminalio.Printf(in.Out, "%s\n", text); err != nil {
		return err
	}
	if err := terminalio.Flush(in.Out); err != nil {
		return err
	}
	delay := in.FlashDelay
	if delay > 0 {
		sleep := in.Sleep
		if sleep == nil {
			sleep = time.Sleep
		}
		sleep(delay)
	}
	return nil
}

// abort flashes msg and skips the rest of the entry.
func (in *Interpreter) abort(msg string) (Outcome, error) {
	if err := in.flash(msg); err != nil {
		return Outcome{}, err
	}
	return outcomeAbort, nil
}

// newPassword prompts twice. ok is false when the entries differ, in which
// case the mismatch has already been flashed.
func (in *Interpreter) newPassword() (pw string, ok bool, err error) {
	pw, err = in.Prompt.Password(promptNewPassword)
	if err != nil {
		return "", false, err
	}
	confirm, err := in.Prompt.Password(promptConfirmPassword)
	if err != nil {
		return "", false, err
	}
	if pw != confirm {
		return "", false, in.flash(msgPasswordInequal)
	}
	return pw, true, nil
}

func (in *Interpreter) requireAnonymous(sess *session.Session) error {
	if sess.Authenticated() {
		return fmt.Errorf("%w: already logged in as %s", ErrAlreadyLogged, sess.Username())
	}
	return nil
}

func (in *Interpreter) requireSession(sess *session.Session) error {
	if !sess.Authenticated() {
		return ErrNoSession
	}
	return nil
}

func (in *Interpreter) register(sess *session.Session) (Outcome, error) {
	if err := in.requireAnonymous(sess); err != nil {
		return Outcome{}, err
	}
	name, err := in.Prompt.Line(promptUsername)
	if err != nil {
		return Outcome{}, err
	}
	if name == "" {
		return outcomeAbort, nil
	}
	if err := user.ValidateUsername(name); err != nil {
		return in.abort(msgBadUsername)
	}
	switch _, err := in.Users.Lookup(name); {
	case err == nil:
		return in.abort(msgUserExists)
	case !errors.Is(err, user.ErrUserNotFound):
		return Outcome{}, fmt.Errorf("failed to look up user %s: %w", name, err)
	}

	pw, ok, err := in.newPassword()
	if err != nil || !ok {
		return outcomeAbort, err
	}
	contact, err := in.Prompt.Line(promptContact)
	if err != nil {
		return Outcome{}, err
	}
	if contact == "" {
		if err := in.flash(msgNoContact); err != nil {
			return Outcome{}, err
		}
	}

	hash, err := user.HashPassword(pw)
	if err != nil {
		return Outcome{}, err
	}
	rec, err := in.Users.Insert(name, hash, contact)
	if errors.Is(err, user.ErrUserExists) {
		// registered from another terminal since the lookup
		return in.abort(msgUserExists)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create user %s: %w", name, err)
	}
	log.Info().Str("user", rec.Username).Msg("registered new user")
	return in.authenticate(sess, rec)
}

func (in *Interpreter) login(sess *session.Session) (Outcome, error) {
	if err := in.requireAnonymous(sess); err != nil {
		return Outcome{}, err
	}
	name, err := in.Prompt.Line(promptUsername)
	if err != nil {
		return Outcome{}, err
	}
	if name == "" {
		return outcomeAbort, nil
	}
	rec, err := in.Users.Lookup(name)
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		return Outcome{}, fmt.Errorf("failed to look up user %s: %w", name, err)
	}
	pw, err := in.Prompt.Password(promptPassword)
	if err != nil {
		return Outcome{}, err
	}
	if !user.Verify(rec, pw) {
		log.Warn().Str("user", name).Msg("failed login")
		return in.abort(msgLoginError)
	}
	log.Info().Str("user", rec.Username).Msg("user logged in")
	return in.authenticate(sess, rec)
}

func (in *Interpreter) authenticate(sess *session.Session, rec *user.Record) (Outcome, error) {
	sess.User = rec
	if err := files.EnsureDir(sess.UserDir(in.UserdataRoot)); err != nil {
		return Outcome{}, err
	}
	return navigate(NavAuthenticated, 0), nil
}

func (in *Interpreter) changePassword(sess *session.Session) (Outcome, error) {
	if err := in.requireSession(sess); err != nil {
		return Outcome{}, err
	}
	pw, ok, err := in.newPassword()
	if err != nil || !ok {
		return outcomeAbort, err
	}
	hash, err := user.HashPassword(pw)
	if err != nil {
		return Outcome{}, err
	}
	if err := in.Users.UpdatePassword(sess.Username(), hash); err != nil {
		return Outcome{}, fmt.Errorf("failed to update password for %s: %w", sess.Username(), err)
	}
	sess.User.PasswordHash = hash
	log.Info().Str("user", sess.Username()).Msg("password changed")
	return outcomeContinue, nil
}

func (in *Interpreter) changeContact(sess *session.Session) (Outcome, error) {
	if err := in.requireSession(sess); err != nil {
		return Outcome{}, err
	}
	contact, err := in.Prompt.Line(promptContact)
	if err != nil {
		return Outcome{}, err
	}
	if contact == "" {
		if err := in.flash(msgDeleteContact); err != nil {
			return Outcome{}, err
		}
	}
	if err := in.Users.UpdateContact(sess.Username(), contact); err != nil {
		return Outcome{}, fmt.Errorf("failed to update contact for %s: %w", sess.Username(), err)
	}
	sess.User.Contact = contact
	return outcomeContinue, nil
}

func (in *Interpreter) runGame(ctx context.Context, a RunGame, sess *session.Session) (Outcome, error) {
	if err := in.requireSession(sess); err != nil {
		return Outcome{}, err
	}
	if in.Games == nil {
		return Outcome{}, errors.New("menu: no game launcher configured")
	}
	in.handOff()
	if _, err := in.Games.Play(ctx, sess.Username(), sess.UserDir(in.UserdataRoot), a.Game); err != nil {
		return Outcome{}, err
	}
	return outcomeContinue, nil
}

// typeahead is implemented by prompters that buffer input ahead of the
// reads they serve.
type typeahead interface {
	Discard() int
}

// handOff drops buffered type-ahead before the tty is given to a child
// or a tailer that reads the descriptor directly.
func (in *Interpreter) handOff() {
	if ta, ok := in.Prompt.(typeahead); ok {
		if n := ta.Discard(); n > 0 {
			log.Debug().Int("bytes", n).Msg("dropped type-ahead")
		}
	}
}

func (in *Interpreter) editFile(ctx context.Context, a EditFile, sess *session.Session) (Outcome, error) {
	path, err := a.Path.Resolve(sess, in.UserdataRoot)
	if err != nil {
		return Outcome{}, err
	}
	if err := files.EnsureParent(path); err != nil {
		return Outcome{}, err
	}
	if in.Editor == nil {
		return Outcome{}, errors.New("menu: no editor configured")
	}
	home := ""
	if sess.Authenticated() {
		home = sess.UserDir(in.UserdataRoot)
	}
	in.handOff()
	if err := in.Editor.Edit(ctx, path, home); err != nil {
		return Outcome{}, err
	}
	return outcomeContinue, nil
}

func (in *Interpreter) copyFile(a CopyFile, sess *session.Session) (Outcome, error) {
	src, err := a.Src.Resolve(sess, in.UserdataRoot)
	if err != nil {
		return Outcome{}, err
	}
	dst, err := a.Dst.Resolve(sess, in.UserdataRoot)
	if err != nil {
		return Outcome{}, err
	}
	copied, err := files.CopyFile(src, dst, a.Policy)
	if err != nil {
		return Outcome{}, err
	}
	if copied {
		log.Debug().Str("src", src).Str("dst", dst).Msg("copied file")
	}
	return outcomeContinue, nil
}

func (in *Interpreter) watch(ctx context.Context) (Outcome, error) {
	if in.Spectator == nil {
		return in.abort(msgNoGames)
	}
	games, err := in.Spectator.List()
	if err != nil {
		return Outcome{}, err
	}
	if len(games) == 0 {
		return in.abort(msgNoGames)
	}
	if len(games) > 9 {
		games = games[:9]
	}
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}
	t := now()
	for i, g := range games {
		err := terminalio.Printf(in.Out, "  %d) %-15s %-20s %s  idle %s\n",
			i+1, g.User, g.GameName, g.Started.Local().Format("2006-01-02 15:04"), g.Idle(t).Truncate(time.Second))
		if err != nil {
			return Outcome{}, err
		}
	}
	key, err := in.Prompt.Key("\n" + promptWatch)
	if err != nil {
		return Outcome{}, err
	}
	idx := int(key - '1')
	if key < '1' || key > '9' || idx >= len(games) {
		return outcomeAbort, nil
	}
	in.handOff()
	if err := in.Spectator.Tail(ctx, games[idx]); err != nil {
		return Outcome{}, err
	}
	return outcomeContinue, nil
}
