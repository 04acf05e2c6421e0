// Package ui holds layout helpers shared by the terminal views.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/theme"
)

// Layout manages the terminal frame: a header, an account tab row, the
// content area and a status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	TabsHeight      int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		TabsHeight:      1,
		StatusBarHeight: 1,
	}
}

// ContentHeight returns the rows left for the content area.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.TabsHeight - l.StatusBarHeight
	if h < 1 {
		return 1
	}
	return h
}

// RenderHeader renders the title on the left and status on the right,
// padded to the full width with the header background.
func (l Layout) RenderHeader(title, status string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.HeaderStyle.Render(status)
	gap := l.Width - lipgloss.Width(left) - lipgloss.Width(right)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, pad(theme.HeaderStyle, gap), right)
}

// RenderTabs renders one tab per account, highlighting the active one.
func (l Layout) RenderTabs(names []string, active int) string {
	tabs := make([]string, len(names))
	for i, n := range names {
		if i == active {
			tabs[i] = theme.ActiveTabStyle.Render(n)
		} else {
			tabs[i] = theme.TabStyle.Render(n)
		}
	}
	return lipgloss.NewStyle().MaxWidth(l.Width).Render(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
}

// RenderStatusBar renders the bottom bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)
	gap := l.Width - lipgloss.Width(rendered)
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, pad(theme.StatusBarStyle, gap))
}

// Compose stacks the frame parts, clamping content to ContentHeight.
func (l Layout) Compose(header, tabs, content, statusBar string) string {
	body := lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, tabs, body, statusBar)
}

// pad renders n cells of filler in style's background.
func pad(style lipgloss.Style, n int) string {
	if n <= 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Width(n).
		Background(style.GetBackground()).
		Render("")
}
