package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/theme"
)

// Model is the help overlay view. Besides the key bindings it shows the
// configured refresh cadence so users know when to expect new mail.
type Model struct {
	keys    *keys.KeyMap
	help    help.Model
	cadence []string
	width   int
	height  int
}

// New creates a new help view model.
func New(k *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	h.ShowAll = true
	return Model{
		keys:   k,
		help:   h,
		width:  width,
		height: height,
	}
}

// SetCadence records the check and sync intervals shown under the keys.
func (m *Model) SetCadence(minSec, maxSec, syncSec int) {
	m.cadence = []string{
		fmt.Sprintf("Checks run every %d-%ds (random).", minSec, maxSec),
		fmt.Sprintf("Full sync runs every %ds.", syncSec),
	}
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
	}
	if len(m.cadence) > 0 {
		parts = append(parts, "", theme.HelpStyle.Render(strings.Join(m.cadence, "\n")))
	}

	return theme.DetailPanelStyle.
		Width(max(1, m.width-4)).
		Height(max(1, m.height-4)).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
