package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wemcdonald/sqlgate/internal/tui/theme"
)

// View renders the current screen.
func (m Model) View() string {
	var body string
	switch m.screen {
	case ScreenPickDB:
		body = m.viewPick()
	case ScreenMain:
		body = m.viewMain()
	case ScreenLogin, ScreenRegister:
		body = m.viewForm()
	case ScreenMenu:
		body = m.viewMenu()
	case ScreenPrompt:
		body = m.viewPrompt()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewHeader(),
		"",
		body,
		"",
		m.viewStatus(),
	)
}

func (m Model) viewHeader() string {
	title := theme.StyleTitle.Render("sqlgate")
	var parts []string
	if m.path != "" && m.screen != ScreenPickDB {
		parts = append(parts, filepath.Base(m.path))
	}
	if m.sess != nil {
		parts = append(parts, fmt.Sprintf("%s (%s)", m.sess.Username, m.sess.Role))
	}
	if len(parts) == 0 {
		return title
	}
	return title + "  " + theme.StyleMuted.Render(strings.Join(parts, " · "))
}

func (m Model) viewPick() string {
	var items []string
	for i, db := range m.databases {
		label := fmt.Sprintf("%d. %s", i+1, filepath.Base(db))
		if i == m.cursor {
			items = append(items, theme.StyleSelected.Render("> "+label))
		} else {
			items = append(items, "  "+label)
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		theme.StyleTitle.Render("Available databases"),
		"",
		strings.Join(items, "\n"),
		"",
		theme.StyleMuted.Render("↑/↓ select · enter open · q quit"),
	)
}

func (m Model) viewMain() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		"1. Log in",
		"2. Register",
		"3. Quit",
		"",
		theme.StyleMuted.Render("Choose an action"),
	)
}

func (m Model) viewForm() string {
	title := "Log in"
	if m.screen == ScreenRegister {
		title = "Register"
	}

	fields := make([]string, len(m.form))
	for i := range m.form {
		fields[i] = m.form[i].View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		theme.StyleTitle.Render(title),
		"",
		theme.StyleBorder.Render(strings.Join(fields, "\n")),
		"",
		theme.StyleMuted.Render("tab next field · enter submit · esc back"),
	)
}

func (m Model) viewMenu() string {
	title := "Admin menu"
	if m.sess != nil && m.sess.Role.IsRestricted() {
		title = "User menu"
	}

	var items []string
	for i, it := range m.menu() {
		label := fmt.Sprintf("%d. %s", i+1, it.label)
		if i == m.cursor {
			items = append(items, theme.StyleSelected.Render("> "+label))
		} else {
			items = append(items, "  "+label)
		}
	}

	rows := []string{
		theme.StyleTitle.Render(title),
		"",
		strings.Join(items, "\n"),
	}
	if m.output != "" {
		rows = append(rows, "", m.output)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) viewPrompt() string {
	rows := []string{theme.StyleBorder.Render(m.prompt.View())}
	if m.output != "" {
		rows = append(rows, "", m.output)
	}
	rows = append(rows, "", theme.StyleMuted.Render("enter run · ctrl+y copy result as CSV · esc back"))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) viewStatus() string {
	if m.status == "" {
		return ""
	}
	style := theme.StyleSuccess
	if m.statusErr {
		style = theme.StyleError
	}
	bar := theme.StyleStatusBar
	if m.width > 0 {
		bar = bar.Width(m.width)
	}
	return bar.Render(style.Render(m.status))
}
