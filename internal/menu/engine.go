package menu

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/stlalpha/rgl/internal/session"
	"github.com/stlalpha/rgl/internal/terminalio"
)

const choicePrompt = "\n > "

// Navigation is the engine's position in the menu graph. History never
// contains Current.
type Navigation struct {
	Current MenuRef
	History []MenuRef
}

// Engine runs the read-key, dispatch loop over a compiled Set.
type Engine struct {
	Interp *Interpreter
	Prompt terminalio.Prompter
	Out    io.Writer
	Banner string

	set     *Set
	pending atomic.Pointer[Set]
	nav     Navigation
	title   lipgloss.Style
}

// NewEngine returns an engine positioned on the set's start menu.
func NewEngine(set *Set, interp *Interpreter, prompt terminalio.Prompter, out io.Writer, banner string) *Engine {
	r := lipgloss.NewRenderer(out)
	return &Engine{
		Interp: interp,
		Prompt: prompt,
		Out:    out,
		Banner: banner,
		set:    set,
		nav:    Navigation{Current: set.Start},
		title:  r.NewStyle().Bold(true),
	}
}

// Swap installs a newly compiled set. It takes effect before the next
// menu is drawn, never in the middle of an entry's actions. Safe to call
// from another goroutine.
func (e *Engine) Swap(set *Set) { e.pending.Store(set) }

// Navigation returns a copy of the current position.
func (e *Engine) Navigation() Navigation {
	return Navigation{Current: e.nav.Current, History: append([]MenuRef(nil), e.nav.History...)}
}

// Current returns the active menu.
func (e *Engine) Current() *Menu { return e.set.Menu(e.nav.Current) }

// Run loops until a Quit action. The returned error is always fatal.
func (e *Engine) Run(ctx context.Context, sess *session.Session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.applyPending(sess)
		if err := e.render(sess); err != nil {
			return err
		}
		key, err := e.Prompt.Key(choicePrompt)
		if err != nil {
			return err
		}
		entry := e.Current().Find(key)
		if entry == nil {
			if err := terminalio.WriteProcessedBytes(e.Out, []byte(terminalio.Bell)); err != nil {
				return err
			}
			continue
		}
		if err := terminalio.WriteProcessedBytes(e.Out, []byte("\n")); err != nil {
			return err
		}
		quit, err := e.dispatch(ctx, entry, sess)
		if err != nil {
			return err
		}
		if quit {
			return terminalio.WriteProcessedBytes(e.Out, []byte(terminalio.ResetScreen))
		}
	}
}

// dispatch runs an entry's actions in order and applies navigation.
func (e *Engine) dispatch(ctx context.Context, entry *Entry, sess *session.Session) (quit bool, err error) {
	for _, act := range entry.Actions {
		out, err := e.Interp.Execute(ctx, act, sess)
		if err != nil {
			return false, err
		}
		switch out.Kind {
		case Continue:
		case AbortRemaining:
			return false, nil
		case Navigate:
			if out.Op == NavQuit {
				return true, nil
			}
			if err := e.apply(out); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

func (e *Engine) apply(out Outcome) error {
	switch out.Op {
	case NavPush:
		if out.Target == e.nav.Current {
			return nil
		}
		for i, ref := range e.nav.History {
			if ref == out.Target {
				// going to an ancestor unwinds to it
				e.nav.History = e.nav.History[:i]
				e.nav.Current = out.Target
				return nil
			}
		}
		e.nav.History = append(e.nav.History, e.nav.Current)
		e.nav.Current = out.Target
	case NavPop:
		n := len(e.nav.History)
		if n == 0 {
			return fmt.Errorf("%w: in menu %q", ErrEmptyHistory, e.Current().ID)
		}
		e.nav.Current = e.nav.History[n-1]
		e.nav.History = e.nav.History[:n-1]
	case NavAuthenticated:
		e.nav.Current = e.set.PostLogin
		e.nav.History = nil
	}
	return nil
}

// applyPending switches to a set installed by Swap, keeping the position
// when every menu on the stack still exists.
func (e *Engine) applyPending(sess *session.Session) {
	next := e.pending.Swap(nil)
	if next == nil {
		return
	}
	prev := e.set
	e.set = next

	remap := func(ref MenuRef) (MenuRef, bool) {
		return next.Lookup(prev.Menu(ref).ID)
	}
	nav := Navigation{}
	cur, ok := remap(e.nav.Current)
	for _, ref := range e.nav.History {
		if !ok {
			break
		}
		var r MenuRef
		r, ok = remap(ref)
		nav.History = append(nav.History, r)
	}
	if ok {
		nav.Current = cur
		if next.Admits(nav, sess.Authenticated()) {
			e.nav = nav
			log.Info().Int("menus", next.Len()).Msg("menus reloaded")
			return
		}
		log.Warn().Str("menu", prev.Menu(e.nav.Current).ID).Int("depth", len(nav.History)).
			Msg("menus reloaded, position is not valid in the new menus; navigation reset")
	} else {
		log.Warn().Int("menus", next.Len()).Msg("menus reloaded, current menu is gone; navigation reset")
	}
	if sess.Authenticated() {
		e.nav = Navigation{Current: next.PostLogin}
	} else {
		e.nav = Navigation{Current: next.Start}
	}
}

func (e *Engine) render(sess *session.Session) error {
	var b strings.Builder
	b.WriteString(terminalio.ResetScreen)
	b.WriteString("\n" + e.Banner + "\n ##\n")
	if sess.Authenticated() {
		fmt.Fprintf(&b, " ## logged in as: %s\n", sess.Username())
	} else {
		b.WriteString(" ## not logged in\n")
	}
	m := e.Current()
	fmt.Fprintf(&b, "\n %s:\n", e.title.Render(m.Title))
	for _, entry := range m.Entries {
		fmt.Fprintf(&b, "  %c) %s\n", entry.Key, entry.Name)
	}
	return terminalio.WriteProcessedBytes(e.Out, []byte(b.String()))
}
