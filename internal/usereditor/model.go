package usereditor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/stlalpha/rgl/internal/user"
)

const (
	minWidth  = 80
	minHeight = 24
	// title, column header, two borders, message line, help bar
	chromeRows = 6
)

// editorMode represents the current interaction state.
type editorMode int

const (
	modeList         editorMode = iota // Main list browser
	modeSearch                         // Incremental search by username
	modeClearConfirm                   // Confirm clearing a contact
)

// Model is the BubbleTea model for the account browser. Every change is
// written to the directory as soon as it is made.
type Model struct {
	dir   user.Directory
	users []*user.Record

	cursor       int
	scrollOffset int
	listAlpha    bool

	searchInput  textinput.Model
	searchOrigin int // cursor before the search started

	confirmYes bool

	width   int
	height  int
	mode    editorMode
	message string
}

// New loads every account from dir.
func New(dir user.Directory) (Model, error) {
	si := textinput.New()
	si.Placeholder = "Search username..."
	si.CharLimit = user.MaxUsernameLength
	si.Width = 20

	m := Model{
		dir:         dir,
		searchInput: si,
		width:       minWidth,
		height:      minHeight,
		mode:        modeList,
	}
	if err := m.reload(); err != nil {
		return Model{}, fmt.Errorf("loading users: %w", err)
	}
	return m, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.SetWindowTitle("rgl user editor")
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(msg.Width, minWidth)
		m.height = max(msg.Height, minHeight)
		m.clampScroll()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeList:
			return m.updateList(msg)
		case modeSearch:
			return m.updateSearch(msg)
		case modeClearConfirm:
			return m.updateConfirm(msg)
		}
	}
	return m, nil
}

// --- List Mode ---

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	total := len(m.users)
	visible := m.listRows()

	switch msg.Type {
	case tea.KeyEscape, tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
	case tea.KeyDown:
		if m.cursor < total-1 {
			m.cursor++
		}
	case tea.KeyHome:
		m.cursor = 0
	case tea.KeyEnd:
		m.cursor = max(total-1, 0)
	case tea.KeyPgUp:
		m.cursor = max(m.cursor-visible, 0)
	case tea.KeyPgDown:
		m.cursor = max(min(m.cursor+visible, total-1), 0)
	case tea.KeyF3:
		m.toggleSort()
	default:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "/":
			m.mode = modeSearch
			m.searchOrigin = m.cursor
			m.searchInput.SetValue("")
			m.message = ""
			cmd := m.searchInput.Focus()
			return m, cmd
		case "n":
			m.toggleNoLogin()
		case "c":
			if u := m.selected(); u != nil {
				if u.Contact == "" {
					m.message = fmt.Sprintf("%s has no contact to clear", u.Username)
				} else {
					m.mode = modeClearConfirm
					m.confirmYes = false
				}
			}
		case "r":
			if err := m.reload(); err != nil {
				m.message = fmt.Sprintf("RELOAD ERROR: %v", err)
			} else {
				m.message = fmt.Sprintf("Reloaded %d users", len(m.users))
			}
		}
	}
	m.clampScroll()
	return m, nil
}

// --- Search Mode ---

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.mode = modeList
		m.searchInput.Blur()
		if u := m.selected(); u != nil && m.searchInput.Value() != "" {
			m.message = fmt.Sprintf("Found: %s", u.Username)
		}
		return m, nil

	case tea.KeyEscape:
		m.mode = modeList
		m.searchInput.Blur()
		m.cursor = m.searchOrigin
		m.clampScroll()
		return m, nil

	default:
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		if idx := m.find(m.searchInput.Value()); idx >= 0 {
			m.cursor = idx
			m.message = ""
		} else {
			m.message = "No match"
		}
		m.clampScroll()
		return m, cmd
	}
}

// find returns the first user whose name starts with query, else the
// first whose name contains it, else -1. Matching ignores case.
func (m Model) find(query string) int {
	query = strings.ToLower(query)
	if query == "" {
		return m.searchOrigin
	}
	contains := -1
	for i, u := range m.users {
		name := strings.ToLower(u.Username)
		if strings.HasPrefix(name, query) {
			return i
		}
		if contains < 0 && strings.Contains(name, query) {
			contains = i
		}
	}
	return contains
}

// --- Confirm Dialog ---

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyLeft, tea.KeyRight, tea.KeyTab:
		m.confirmYes = !m.confirmYes
	case tea.KeyEnter:
		if m.confirmYes {
			m.clearContact()
		}
		m.mode = modeList
	case tea.KeyEscape:
		m.mode = modeList
	default:
		switch msg.String() {
		case "y", "Y":
			m.clearContact()
			m.mode = modeList
		case "n", "N":
			m.mode = modeList
		}
	}
	return m, nil
}

// --- Helper Methods ---

func (m Model) selected() *user.Record {
	if m.cursor < 0 || m.cursor >= len(m.users) {
		return nil
	}
	return m.users[m.cursor]
}

func (m *Model) toggleNoLogin() {
	u := m.selected()
	if u == nil {
		return
	}
	if err := m.dir.SetNoLogin(u.Username, !u.NoLogin); err != nil {
		m.message = fmt.Sprintf("SAVE ERROR: %v", err)
		return
	}
	u.NoLogin = !u.NoLogin
	if u.NoLogin {
		m.message = fmt.Sprintf("Login disabled for %s", u.Username)
	} else {
		m.message = fmt.Sprintf("Login enabled for %s", u.Username)
	}
}

func (m *Model) clearContact() {
	u := m.selected()
	if u == nil {
		return
	}
	if err := m.dir.UpdateContact(u.Username, ""); err != nil {
		m.message = fmt.Sprintf("SAVE ERROR: %v", err)
		return
	}
	u.Contact = ""
	m.message = fmt.Sprintf("Contact cleared for %s", u.Username)
}

// reload replaces the list from the directory, keeping the cursor on the
// same user when it still exists.
func (m *Model) reload() error {
	list, err := m.dir.List()
	if err != nil {
		return err
	}
	var current string
	if u := m.selected(); u != nil {
		current = u.Username
	}
	m.users = list
	sortUsers(m.users, m.listAlpha)
	m.cursor = 0
	for i, u := range m.users {
		if u.Username == current {
			m.cursor = i
			break
		}
	}
	m.clampScroll()
	return nil
}

func (m *Model) toggleSort() {
	m.listAlpha = !m.listAlpha
	if m.listAlpha {
		m.message = "Sorted by username"
	} else {
		m.message = "Sorted by registration order"
	}
	sortUsers(m.users, m.listAlpha)
	m.cursor = 0
	m.scrollOffset = 0
}

// listRows is how many users fit on screen.
func (m Model) listRows() int {
	return max(m.height-chromeRows, 1)
}

// clampScroll keeps the cursor inside the visible window.
func (m *Model) clampScroll() {
	visible := m.listRows()
	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	}
	if m.cursor >= m.scrollOffset+visible {
		m.scrollOffset = m.cursor - visible + 1
	}
	maxOffset := max(len(m.users)-visible, 0)
	if m.scrollOffset > maxOffset {
		m.scrollOffset = maxOffset
	}
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

// sortUsers sorts by username (alpha) or by ID.
func sortUsers(users []*user.Record, alpha bool) {
	if alpha {
		sort.SliceStable(users, func(i, j int) bool {
			return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
		})
		return
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}
