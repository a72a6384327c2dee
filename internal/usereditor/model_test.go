package usereditor

import (
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stlalpha/rgl/internal/user"
)

func newTestModel(t *testing.T, names ...string) (Model, user.Directory) {
	t.Helper()
	dir, err := user.NewJSONStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	for _, name := range names {
		_, err := dir.Insert(name, "hash", name+"@example.com")
		require.NoError(t, err)
	}
	m, err := New(dir)
	require.NoError(t, err)
	return m, dir
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typed(s string) []tea.KeyMsg {
	var keys []tea.KeyMsg
	for _, r := range s {
		keys = append(keys, runes(string(r)))
	}
	return keys
}

func TestNew_ListsUsersInIDOrder(t *testing.T) {
	m, _ := newTestModel(t, "carol", "alice", "bob")
	require.Len(t, m.users, 3)
	assert.Equal(t, "carol", m.users[0].Username)
	assert.Equal(t, "bob", m.users[2].Username)
}

func TestToggleNoLogin_Persists(t *testing.T) {
	m, dir := newTestModel(t, "alice", "bob")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, runes("n"))

	rec, err := dir.Lookup("bob")
	require.NoError(t, err)
	assert.True(t, rec.NoLogin)
	assert.True(t, m.users[1].NoLogin)
	assert.Contains(t, m.message, "disabled")

	m = press(t, m, runes("n"))
	rec, err = dir.Lookup("bob")
	require.NoError(t, err)
	assert.False(t, rec.NoLogin)
	assert.Contains(t, m.message, "enabled")
}

func TestClearContact_RequiresConfirm(t *testing.T) {
	m, dir := newTestModel(t, "alice")

	m = press(t, m, runes("c"))
	assert.Equal(t, modeClearConfirm, m.mode)
	assert.Contains(t, m.View(), "Clear the contact of alice?")

	m = press(t, m, runes("n"))
	assert.Equal(t, modeList, m.mode)
	rec, err := dir.Lookup("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", rec.Contact)

	m = press(t, m, runes("c"), runes("y"))
	assert.Equal(t, modeList, m.mode)
	rec, err = dir.Lookup("alice")
	require.NoError(t, err)
	assert.Empty(t, rec.Contact)
	assert.Empty(t, m.users[0].Contact)
}

func TestClearContact_EnterDefaultsToNo(t *testing.T) {
	m, dir := newTestModel(t, "alice")
	m = press(t, m, runes("c"), tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, modeList, m.mode)
	rec, err := dir.Lookup("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", rec.Contact)
}

func TestClearContact_NothingToClear(t *testing.T) {
	m, dir := newTestModel(t, "alice")
	require.NoError(t, dir.UpdateContact("alice", ""))
	m = press(t, m, runes("r"), runes("c"))
	assert.Equal(t, modeList, m.mode)
	assert.Contains(t, m.message, "no contact")
}

func TestSearch_IsIncremental(t *testing.T) {
	m, _ := newTestModel(t, "alice", "bob", "bobby", "carol")
	m = press(t, m, runes("/"))
	require.Equal(t, modeSearch, m.mode)

	m = press(t, m, typed("bo")...)
	assert.Equal(t, 1, m.cursor)
	m = press(t, m, typed("bb")...)
	assert.Equal(t, 2, m.cursor)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, modeList, m.mode)
	assert.Equal(t, 2, m.cursor)
	assert.Equal(t, "Found: bobby", m.message)
}

func TestSearch_MatchesSubstringIgnoringCase(t *testing.T) {
	m, _ := newTestModel(t, "alice", "BigCarol")
	m = press(t, m, append([]tea.KeyMsg{runes("/")}, typed("car")...)...)
	assert.Equal(t, 1, m.cursor)
}

func TestSearch_EscapeRestoresCursor(t *testing.T) {
	m, _ := newTestModel(t, "alice", "bob", "carol")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, runes("/"), runes("c"))
	require.Equal(t, 2, m.cursor)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEscape})
	assert.Equal(t, modeList, m.mode)
	assert.Equal(t, 1, m.cursor)
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{runes("q"), {Type: tea.KeyEscape}} {
		m, _ := newTestModel(t, "alice")
		_, cmd := m.Update(key)
		require.NotNil(t, cmd, key.String())
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}

func TestScrollFollowsCursor(t *testing.T) {
	names := []string{}
	for _, c := range "abcdefghijklmnopqrstuvwxyz" {
		names = append(names, "user"+string(c))
	}
	m, _ := newTestModel(t, names...)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnd})
	assert.Equal(t, len(names)-1, m.cursor)
	assert.Equal(t, len(names)-m.listRows(), m.scrollOffset)
	assert.Contains(t, m.View(), "userz")
	assert.NotContains(t, m.View(), "usera ")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyHome})
	assert.Equal(t, 0, m.scrollOffset)
}

func TestToggleSort(t *testing.T) {
	m, _ := newTestModel(t, "carol", "alice", "bob")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyF3})
	assert.Equal(t, "alice", m.users[0].Username)
	assert.Equal(t, "carol", m.users[2].Username)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyF3})
	assert.Equal(t, "carol", m.users[0].Username)
}
