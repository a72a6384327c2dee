package menu

import (
	"errors"
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/stlalpha/rgl/internal/config"
	"github.com/stlalpha/rgl/internal/files"
)

// Errors reported by Compile and by the engine.
var (
	ErrInvalidMenu   = errors.New("invalid menu configuration")
	ErrEmptyHistory  = errors.New("return with empty menu history")
	ErrNoSession     = errors.New("action requires a logged in user")
	ErrAlreadyLogged = errors.New("action requires no logged in user")
)

// Menu is a compiled menu. Menus are immutable once compiled.
type Menu struct {
	ID      string
	Title   string
	Entries []Entry
}

// Entry is one selectable line in a menu.
type Entry struct {
	Key     rune
	Name    string
	Actions []Action
}

// Find returns the entry bound to key, or nil.
func (m *Menu) Find(key rune) *Entry {
	for i := range m.Entries {
		if m.Entries[i].Key == key {
			return &m.Entries[i]
		}
	}
	return nil
}

// Set is a compiled, validated menu graph. Every GoTo refers to a menu in
// the same Set and every Return is reachable only with history to pop.
type Set struct {
	menus     []Menu
	byID      map[string]MenuRef
	Start     MenuRef
	PostLogin MenuRef
	// Unreachable lists menus no path from the start menu can enter.
	Unreachable []string
	states      []flowState
}

// Menu returns the menu for ref.
func (s *Set) Menu(ref MenuRef) *Menu { return &s.menus[ref] }

// Lookup finds a menu by id.
func (s *Set) Lookup(id string) (MenuRef, bool) {
	ref, ok := s.byID[id]
	return ref, ok
}

// Len is the number of menus.
func (s *Set) Len() int { return len(s.menus) }

// Options name the entry points and the games RunGame may reference.
type Options struct {
	StartMenu     string
	PostLoginMenu string
	Games         map[string]config.GameConfig
}

// Compile resolves menu ids into MenuRefs and rejects any document that
// could fail at dispatch time: dangling GoTo targets, unknown games,
// duplicate ids or keys, a Return that may run with empty history, and
// identity actions used where the login state rules them out. All
// problems are reported together; each wraps ErrInvalidMenu.
func Compile(doc config.MenuDocument, opts Options) (*Set, error) {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidMenu}, args...)...))
	}

	set := &Set{byID: make(map[string]MenuRef, len(doc.Menus))}
	for _, md := range doc.Menus {
		if md.ID == "" {
			fail("menu with title %q has no id", md.Title)
			continue
		}
		if _, dup := set.byID[md.ID]; dup {
			fail("duplicate menu id %q", md.ID)
			continue
		}
		set.byID[md.ID] = MenuRef(len(set.menus))
		set.menus = append(set.menus, Menu{ID: md.ID, Title: md.Title})
	}

	var ok bool
	if set.Start, ok = set.byID[opts.StartMenu]; !ok {
		fail("start menu %q does not exist", opts.StartMenu)
	}
	if set.PostLogin, ok = set.byID[opts.PostLoginMenu]; !ok {
		fail("post-login menu %q does not exist", opts.PostLoginMenu)
	}

	for _, md := range doc.Menus {
		ref, ok := set.byID[md.ID]
		if !ok || len(set.menus[ref].Entries) > 0 {
			continue // already reported, or a duplicate id
		}
		menu := &set.menus[ref]
		seen := make(map[rune]bool)
		for _, ed := range md.Entries {
			key, size := utf8.DecodeRuneInString(ed.Key)
			if size == 0 || size != len(ed.Key) || key == utf8.RuneError {
				fail("menu %q: entry %q key must be a single character, got %q", md.ID, ed.Name, ed.Key)
				continue
			}
			if seen[key] {
				fail("menu %q: duplicate key %q", md.ID, ed.Key)
				continue
			}
			seen[key] = true
			if len(ed.Actions) == 0 {
				fail("menu %q key %q: entry has no actions", md.ID, ed.Key)
				continue
			}
			entry := Entry{Key: key, Name: ed.Name}
			for i, ad := range ed.Actions {
				act, err := compileAction(set, ad, opts.Games)
				if err != nil {
					fail("menu %q key %q action %d: %v", md.ID, ed.Key, i+1, err)
					continue
				}
				entry.Actions = append(entry.Actions, act)
			}
			menu.Entries = append(menu.Entries, entry)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := set.checkFlow(); err != nil {
		return nil, err
	}
	return set, nil
}

func compilePath(p *config.PathDoc) (PathSpec, error) {
	if p == nil {
		return PathSpec{}, errors.New("missing path")
	}
	if p.UserDir != "" {
		if !filepath.IsLocal(p.UserDir) {
			return PathSpec{}, fmt.Errorf("user directory path %q escapes the user directory", p.UserDir)
		}
		return PathSpec{Kind: PathUserDir, Path: p.UserDir}, nil
	}
	return PathSpec{Kind: PathNormal, Path: p.Normal}, nil
}

func compileAction(set *Set, ad config.ActionDoc, games map[string]config.GameConfig) (Action, error) {
	switch ad.Kind {
	case config.ActGoTo:
		ref, ok := set.byID[ad.Target]
		if !ok {
			return nil, fmt.Errorf("goto target %q does not exist", ad.Target)
		}
		return GoTo{Target: ref}, nil
	case config.ActReturn:
		return Return{}, nil
	case config.ActQuit:
		return Quit{}, nil
	case config.ActRegister:
		return Register{}, nil
	case config.ActLogin:
		return Login{}, nil
	case config.ActChangePassword:
		return ChangePassword{}, nil
	case config.ActChangeContact:
		return ChangeContact{}, nil
	case config.ActWatch:
		return Watch{}, nil
	case config.ActFlashMessage:
		return FlashMessage{Text: ad.Text}, nil
	case config.ActRunGame:
		if _, ok := games[ad.Target]; !ok {
			return nil, fmt.Errorf("run_game refers to unknown game %q", ad.Target)
		}
		return RunGame{Game: ad.Target}, nil
	case config.ActEditFile:
		p, err := compilePath(ad.Path)
		if err != nil {
			return nil, err
		}
		return EditFile{Path: p}, nil
	case config.ActCopyFile:
		if ad.Copy == nil {
			return nil, errors.New("copy_file without arguments")
		}
		src, err := compilePath(&ad.Copy.Src)
		if err != nil {
			return nil, fmt.Errorf("src: %w", err)
		}
		dst, err := compilePath(&ad.Copy.Dst)
		if err != nil {
			return nil, fmt.Errorf("dst: %w", err)
		}
		policy, err := files.ParsePolicy(ad.Copy.Policy)
		if err != nil {
			return nil, err
		}
		return CopyFile{Src: src, Dst: dst, Policy: policy}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", ad.Kind)
	}
}

// flowState is what is statically known about the engine when a menu is
// active: the least history depth it can be entered with, and whether it
// can be active while anonymous and/or while logged in.
type flowState struct {
	depth  int // -1 until reached
	anon   bool
	authed bool
}

// merge folds an arrival into s and reports whether s changed.
func (s *flowState) merge(depth int, anon, authed bool) bool {
	changed := false
	if s.depth < 0 || depth < s.depth {
		s.depth = depth
		changed = true
	}
	if anon && !s.anon {
		s.anon = true
		changed = true
	}
	if authed && !s.authed {
		s.authed = true
		changed = true
	}
	return changed
}

// checkFlow propagates flowState along GoTo edges to a fixed point, then
// checks every reachable action against the state it can run in. History
// is cleared on login, so the menus on the stack always share the login
// state of the active one.
func (s *Set) checkFlow() error {
	states := make([]flowState, len(s.menus))
	for i := range states {
		states[i].depth = -1
	}
	states[s.Start].merge(0, true, false)
	states[s.PostLogin].merge(0, false, true)

	work := []MenuRef{s.Start, s.PostLogin}
	queued := make([]bool, len(s.menus))
	queued[s.Start], queued[s.PostLogin] = true, true
	enqueue := func(ref MenuRef) {
		if !queued[ref] {
			queued[ref] = true
			work = append(work, ref)
		}
	}

	for len(work) > 0 {
		ref := work[0]
		work = work[1:]
		queued[ref] = false
		st := states[ref]
		for _, e := range s.menus[ref].Entries {
			cur := st
			for _, act := range e.Actions {
				stop := false
				switch a := act.(type) {
				case GoTo:
					if states[a.Target].merge(cur.depth+1, cur.anon, cur.authed) {
						enqueue(a.Target)
					}
					cur = flowState{depth: states[a.Target].depth, anon: cur.anon, authed: cur.authed}
				case Return:
					if cur.depth > 0 {
						cur.depth--
					}
				case Login, Register:
					if states[s.PostLogin].merge(0, false, true) {
						enqueue(s.PostLogin)
					}
					cur = flowState{depth: 0, authed: true}
				case Quit:
					stop = true
				}
				if stop {
					break
				}
			}
		}
	}

	s.states = states

	var errs []error
	for ref, st := range states {
		m := &s.menus[ref]
		if st.depth < 0 {
			s.Unreachable = append(s.Unreachable, m.ID)
			continue
		}
		for _, e := range m.Entries {
			cur := st
			for i, act := range e.Actions {
				where := fmt.Sprintf("menu %q key %q action %d", m.ID, string(e.Key), i+1)
				if err := checkAction(act, cur, where); err != nil {
					errs = append(errs, err)
				}
				switch a := act.(type) {
				case GoTo:
					cur.depth = states[a.Target].depth
				case Return:
					if cur.depth > 0 {
						cur.depth--
					}
				case Login, Register:
					cur = flowState{depth: 0, authed: true}
				}
				if _, quit := act.(Quit); quit {
					break
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Admits reports whether nav is a position the engine could reach in s
// with the given login state: every menu on the stack is reachable in that
// state and sits at least as deep as the shallowest way to enter it, so
// every Return it can run has history to pop.
func (s *Set) Admits(nav Navigation, authed bool) bool {
	stack := append(append([]MenuRef(nil), nav.History...), nav.Current)
	for i, ref := range stack {
		if int(ref) < 0 || int(ref) >= len(s.states) {
			return false
		}
		st := s.states[ref]
		if st.depth < 0 || i < st.depth {
			return false
		}
		if authed && !st.authed || !authed && !st.anon {
			return false
		}
	}
	return true
}

func checkAction(act Action, st flowState, where string) error {
	needsSession := false
	switch a := act.(type) {
	case Return:
		if st.depth < 1 {
			return fmt.Errorf("%w: %s: return can run with empty history", ErrInvalidMenu, where)
		}
	case Login, Register:
		if st.authed {
			return fmt.Errorf("%w: %s: login/register reachable while logged in", ErrInvalidMenu, where)
		}
	case ChangePassword, ChangeContact, RunGame:
		needsSession = true
	case EditFile:
		needsSession = a.Path.NeedsSession()
	case CopyFile:
		needsSession = a.Src.NeedsSession() || a.Dst.NeedsSession()
	}
	if needsSession && st.anon {
		return fmt.Errorf("%w: %s: action needs a logged in user but the menu is reachable anonymously", ErrInvalidMenu, where)
	}
	return nil
}
