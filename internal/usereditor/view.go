package usereditor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.mode == modeClearConfirm {
		if u := m.selected(); u != nil {
			return m.viewConfirmDialog("Clear Contact", fmt.Sprintf("Clear the contact of %s?", u.Username))
		}
	}
	return m.viewListScreen()
}

// viewListScreen renders the account list with a title bar, a column
// header, one row per visible user and the help bar.
func (m Model) viewListScreen() string {
	var b strings.Builder
	boxW := m.width - 2

	b.WriteString(titleBarStyle.Render(centerText(fmt.Sprintf("-- rgl user editor: %d accounts --", len(m.users)), m.width)))
	b.WriteByte('\n')

	b.WriteString(listBorderStyle.Render("╒" + strings.Repeat("═", boxW) + "╕"))
	b.WriteByte('\n')
	b.WriteString(listBorderStyle.Render("│") + columnTitleStyle.Render(padRight(columnTitle(), boxW)) + listBorderStyle.Render("│"))
	b.WriteByte('\n')

	visible := m.listRows()
	for row := 0; row < visible; row++ {
		idx := m.scrollOffset + row
		var content string
		if idx >= len(m.users) {
			content = listItemStyle.Render(strings.Repeat(" ", boxW))
		} else {
			content = m.renderUserRow(idx, boxW)
		}
		b.WriteString(listBorderStyle.Render("│") + content + listBorderStyle.Render("│"))
		b.WriteByte('\n')
	}

	b.WriteString(listBorderStyle.Render("╘" + strings.Repeat("═", boxW) + "╛"))
	b.WriteByte('\n')

	switch {
	case m.mode == modeSearch:
		b.WriteString(flashMessageStyle.Render(" Search: ") + m.searchInput.View())
		if m.message != "" {
			b.WriteString("  " + flashMessageStyle.Render(m.message))
		}
	case m.message != "":
		b.WriteString(flashMessageStyle.Render(" " + m.message))
	}
	b.WriteByte('\n')

	help := "Up/Dn/PgUp/PgDn Move  N NoLogin  C Clear Contact  / Search  F3 Sort  R Reload  Q Quit"
	if m.mode == modeSearch {
		help = "Type to search  Enter Accept  Esc Cancel"
	}
	b.WriteString(helpBarStyle.Render(centerText(help, m.width)))
	return b.String()
}

func columnTitle() string {
	return fmt.Sprintf("  %4s  %-15s  %-7s  %-10s  %s", "#", "Username", "Login", "Created", "Contact")
}

// renderUserRow renders one list row; the cursor row is highlighted and
// accounts with login disabled are dimmed.
func (m Model) renderUserRow(idx, boxW int) string {
	u := m.users[idx]
	login := "yes"
	if u.NoLogin {
		login = "NOLOGIN"
	}
	created := "-"
	if !u.CreatedAt.IsZero() {
		created = u.CreatedAt.Format("2006-01-02")
	}
	content := padRight(fmt.Sprintf("  %4d  %-15s  %-7s  %-10s  %s", u.ID, u.Username, login, created, u.Contact), boxW)

	switch {
	case idx == m.cursor:
		return highlightStyle.Render(content)
	case u.NoLogin:
		return disabledItemStyle.Render(content)
	default:
		return listItemStyle.Render(content)
	}
}

// viewConfirmDialog renders a Yes/No box centered on a ░ background.
func (m Model) viewConfirmDialog(title, question string) string {
	dialogW := max(lipgloss.Width(question)+8, 40)
	inner := dialogW - 2

	var yesBtn, noBtn string
	if m.confirmYes {
		yesBtn = buttonActiveStyle.Render(" Yes ")
		noBtn = buttonInactiveStyle.Render(" No ")
	} else {
		yesBtn = buttonInactiveStyle.Render(" Yes ")
		noBtn = buttonActiveStyle.Render(" No ")
	}
	buttons := yesBtn + dialogTextStyle.Render("  ") + noBtn
	btnPad := (inner - lipgloss.Width(buttons)) / 2

	side := dialogBorderStyle.Render("║")
	empty := side + dialogTextStyle.Render(strings.Repeat(" ", inner)) + side
	lines := []string{
		dialogBorderStyle.Render("╔" + strings.Repeat("═", inner) + "╗"),
		side + dialogTitleStyle.Render(centerText(title, inner)) + side,
		empty,
		side + dialogTextStyle.Render(centerText(question, inner)) + side,
		empty,
		side + dialogTextStyle.Render(strings.Repeat(" ", btnPad)) + buttons +
			dialogTextStyle.Render(strings.Repeat(" ", max(inner-btnPad-lipgloss.Width(buttons), 0))) + side,
		dialogBorderStyle.Render("╚" + strings.Repeat("═", inner) + "╝"),
	}

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		strings.Join(lines, "\n"),
		lipgloss.WithWhitespaceChars("░"),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(cgaColors[7])))
}

// centerText centers s within width, truncating when it does not fit.
func centerText(s string, width int) string {
	r := []rune(s)
	if len(r) >= width {
		return string(r[:width])
	}
	pad := (width - len(r)) / 2
	return strings.Repeat(" ", pad) + s + strings.Repeat(" ", width-pad-len(r))
}

// padRight pads or truncates s to exactly width runes.
func padRight(s string, width int) string {
	r := []rune(s)
	if len(r) >= width {
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-len(r))
}
