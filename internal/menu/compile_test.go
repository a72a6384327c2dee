package menu

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stlalpha/rgl/internal/config"
)

var testGames = map[string]config.GameConfig{
	"nethack": {Name: "NetHack", Command: "nethack"},
}

func testOptions() Options {
	return Options{StartMenu: "anon", PostLoginMenu: "user", Games: testGames}
}

func act(kind string) config.ActionDoc { return config.ActionDoc{Kind: kind} }

func gotoDoc(target string) config.ActionDoc {
	return config.ActionDoc{Kind: config.ActGoTo, Target: target}
}

func entry(key, name string, actions ...config.ActionDoc) config.EntryDoc {
	return config.EntryDoc{Key: key, Name: name, Actions: actions}
}

// baseDoc is a minimal valid graph: anon -> (login) -> user -> sub.
func baseDoc() config.MenuDocument {
	return config.MenuDocument{Menus: []config.MenuDoc{
		{ID: "anon", Title: "Anon", Entries: []config.EntryDoc{
			entry("l", "login", act(config.ActLogin)),
			entry("q", "quit", act(config.ActQuit)),
		}},
		{ID: "user", Title: "User", Entries: []config.EntryDoc{
			entry("s", "sub", gotoDoc("sub")),
			entry("q", "quit", act(config.ActQuit)),
		}},
		{ID: "sub", Title: "Sub", Entries: []config.EntryDoc{
			entry("p", "play", config.ActionDoc{Kind: config.ActRunGame, Target: "nethack"}),
			entry("q", "back", act(config.ActReturn)),
		}},
	}}
}

func TestCompile_DefaultMenus(t *testing.T) {
	set, err := Compile(config.DefaultMenus(), Options{
		StartMenu:     "mainmenu_anon",
		PostLoginMenu: "mainmenu_user",
		Games:         config.DefaultServerConfig().Games,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())
	assert.Empty(t, set.Unreachable)

	ref, ok := set.Lookup("nethack_reset")
	require.True(t, ok)
	m := set.Menu(ref)
	require.NotNil(t, m.Find('R'))
	assert.Nil(t, m.Find('r'), "keys are case-sensitive")
}

// The sample configuration shipped in configs/ must load and compile to
// the same layout as the built-in menus.
func TestCompile_SampleConfiguration(t *testing.T) {
	cfg, err := config.LoadServerConfig(filepath.Join("..", "..", "configs", "rgl.jsonc"))
	require.NoError(t, err)
	doc, err := config.LoadMenus(filepath.Join("..", "..", "configs", "menus.yaml"))
	require.NoError(t, err)

	set, err := Compile(doc, Options{StartMenu: cfg.StartMenu, PostLoginMenu: cfg.PostLoginMenu, Games: cfg.Games})
	require.NoError(t, err)
	assert.Empty(t, set.Unreachable)

	builtin, err := Compile(config.DefaultMenus(), Options{StartMenu: cfg.StartMenu, PostLoginMenu: cfg.PostLoginMenu, Games: cfg.Games})
	require.NoError(t, err)
	require.Equal(t, builtin.Len(), set.Len())
	for i := 0; i < set.Len(); i++ {
		got, want := set.Menu(MenuRef(i)), builtin.Menu(MenuRef(i))
		assert.Equal(t, want.ID, got.ID)
		require.Len(t, got.Entries, len(want.Entries), want.ID)
		for j := range want.Entries {
			assert.Equal(t, want.Entries[j].Key, got.Entries[j].Key, want.ID)
			assert.Len(t, got.Entries[j].Actions, len(want.Entries[j].Actions), want.ID)
		}
	}
}

func TestCompile_ResolvesGoToTargets(t *testing.T) {
	set, err := Compile(baseDoc(), testOptions())
	require.NoError(t, err)

	user := set.Menu(set.PostLogin)
	gt, ok := user.Find('s').Actions[0].(GoTo)
	require.True(t, ok)
	assert.Equal(t, "sub", set.Menu(gt.Target).ID)
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc *config.MenuDocument, opts *Options)
	}{
		{"dangling goto", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[1].Entries[0].Actions[0].Target = "nowhere"
		}},
		{"duplicate key", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[0].Entries[1].Key = "l"
		}},
		{"duplicate menu id", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus = append(doc.Menus, config.MenuDoc{ID: "sub", Title: "again"})
		}},
		{"multi-character key", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[0].Entries[0].Key = "lo"
		}},
		{"empty actions", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[0].Entries[0].Actions = nil
		}},
		{"unknown game", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[2].Entries[0].Actions[0].Target = "angband"
		}},
		{"missing start menu", func(_ *config.MenuDocument, opts *Options) {
			opts.StartMenu = "missing"
		}},
		{"missing post-login menu", func(_ *config.MenuDocument, opts *Options) {
			opts.PostLoginMenu = "missing"
		}},
		{"return from start menu", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[0].Entries[1].Actions[0] = act(config.ActReturn)
		}},
		{"return from post-login menu", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[1].Entries[1].Actions[0] = act(config.ActReturn)
		}},
		{"second return after one push", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[2].Entries[1].Actions = append(doc.Menus[2].Entries[1].Actions, act(config.ActReturn))
		}},
		{"game reachable anonymously", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[0].Entries = append(doc.Menus[0].Entries, entry("s", "sub", gotoDoc("sub")))
		}},
		{"change password while anonymous", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[0].Entries = append(doc.Menus[0].Entries, entry("c", "pw", act(config.ActChangePassword)))
		}},
		{"login while logged in", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[1].Entries = append(doc.Menus[1].Entries, entry("l", "login", act(config.ActLogin)))
		}},
		{"userdir copy while anonymous", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[0].Entries = append(doc.Menus[0].Entries, entry("c", "copy", config.ActionDoc{
				Kind: config.ActCopyFile,
				Copy: &config.CopyDoc{Src: config.PathDoc{Normal: "/etc/rc"}, Dst: config.PathDoc{UserDir: "rc"}, Policy: "ignore_existing"},
			}))
		}},
		{"userdir path escaping", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[2].Entries = append(doc.Menus[2].Entries, entry("e", "edit", config.ActionDoc{
				Kind: config.ActEditFile, Path: &config.PathDoc{UserDir: "../bob/rc"},
			}))
		}},
		{"bad copy policy", func(doc *config.MenuDocument, _ *Options) {
			doc.Menus[2].Entries = append(doc.Menus[2].Entries, entry("c", "copy", config.ActionDoc{
				Kind: config.ActCopyFile,
				Copy: &config.CopyDoc{Src: config.PathDoc{Normal: "/etc/rc"}, Dst: config.PathDoc{UserDir: "rc"}, Policy: "sometimes"},
			}))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := baseDoc()
			opts := testOptions()
			tt.mutate(&doc, &opts)
			_, err := Compile(doc, opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidMenu)
		})
	}
}

func TestCompile_ReturnAfterGoToInSameEntry(t *testing.T) {
	doc := baseDoc()
	// push into sub and straight back out: legal even from a root menu
	doc.Menus[1].Entries = append(doc.Menus[1].Entries, entry("b", "bounce", gotoDoc("sub"), act(config.ActReturn)))
	_, err := Compile(doc, testOptions())
	assert.NoError(t, err)
}

func TestCompile_ActionsAfterQuitAreNotChecked(t *testing.T) {
	doc := baseDoc()
	doc.Menus[0].Entries[1].Actions = append(doc.Menus[0].Entries[1].Actions, act(config.ActReturn))
	_, err := Compile(doc, testOptions())
	assert.NoError(t, err)
}

func TestCompile_LoginSwitchesToAuthenticatedState(t *testing.T) {
	doc := baseDoc()
	// after login the entry continues in the post-login menu with a session
	doc.Menus[0].Entries[0].Actions = append(doc.Menus[0].Entries[0].Actions, act(config.ActChangeContact))
	_, err := Compile(doc, testOptions())
	assert.NoError(t, err)
}

func TestCompile_ReportsUnreachableMenus(t *testing.T) {
	doc := baseDoc()
	doc.Menus = append(doc.Menus, config.MenuDoc{ID: "orphan", Title: "Orphan", Entries: []config.EntryDoc{
		entry("q", "back", act(config.ActReturn)),
	}})
	set, err := Compile(doc, testOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, set.Unreachable)
}

func TestCompile_CollectsAllErrors(t *testing.T) {
	doc := baseDoc()
	doc.Menus[1].Entries[0].Actions[0].Target = "nowhere"
	doc.Menus[2].Entries[0].Actions[0].Target = "angband"
	_, err := Compile(doc, testOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nowhere")
	assert.Contains(t, err.Error(), "angband")
}
