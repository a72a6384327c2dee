package usereditor

import (
	"github.com/charmbracelet/lipgloss"
)

// CGA palette mapped to ANSI 256-color indices, in attribute order.
var cgaColors = [16]string{
	"0",  // Black
	"4",  // Blue
	"2",  // Green
	"6",  // Cyan
	"1",  // Red
	"5",  // Magenta
	"3",  // Brown
	"7",  // Light Gray
	"8",  // Dark Gray
	"12", // Light Blue
	"10", // Light Green
	"14", // Light Cyan
	"9",  // Light Red
	"13", // Light Magenta
	"11", // Yellow
	"15", // White
}

// cgaColor builds a style from a background and foreground palette index.
func cgaColor(bg, fg int) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(cgaColors[fg&0x0F])).
		Background(lipgloss.Color(cgaColors[bg&0x07]))
}

var titleBarStyle = cgaColor(0, 15).Bold(true).Background(lipgloss.Color("8"))

var listBorderStyle = cgaColor(1, 9)

var columnTitleStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color(cgaColors[15])).
	Background(lipgloss.Color(cgaColors[9]))

var listItemStyle = cgaColor(1, 15)

// nologin rows are dimmed
var disabledItemStyle = cgaColor(1, 8)

var highlightStyle = cgaColor(0, 14)

var dialogBorderStyle = cgaColor(5, 15)

var dialogTitleStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color(cgaColors[15])).
	Background(lipgloss.Color(cgaColors[13])).
	Bold(true)

var dialogTextStyle = cgaColor(5, 14)

var buttonActiveStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color(cgaColors[15])).
	Background(lipgloss.Color(cgaColors[0])).
	Bold(true)

var buttonInactiveStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color(cgaColors[15])).
	Background(lipgloss.Color(cgaColors[5]))

var helpBarStyle = cgaColor(0, 15).Bold(true).Background(lipgloss.Color("8"))

var flashMessageStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color(cgaColors[14]))
