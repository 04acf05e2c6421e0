package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the title bar.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// DetailPanelStyle wraps the message content view.
var DetailPanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ListItemStyle is the base style for rows in the mail list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the focused row.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// UnreadStyle marks messages that were unread when listed.
var UnreadStyle = lipgloss.NewStyle().Bold(true)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ErrorStyle renders the retained error line.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed).
	Bold(true)

// TabStyle and ActiveTabStyle render the account tabs.
var (
	TabStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Padding(0, 1)

	ActiveTabStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true).
			Underline(true).
			Padding(0, 1)
)

// Apply configures the palette from display settings: the theme picks
// the light or dark side of the adaptive colors and the primary color
// replaces the header and selection accent.
func Apply(d model.DisplayConfig) {
	lipgloss.SetHasDarkBackground(d.Theme == "dark")

	if d.PrimaryColor == "" {
		return
	}
	accent := lipgloss.Color(d.PrimaryColor)
	HeaderStyle = HeaderStyle.Background(accent)
	SelectedItemStyle = SelectedItemStyle.Foreground(accent).BorderForeground(accent)
	ActiveTabStyle = ActiveTabStyle.Foreground(accent)
}

// ProviderLabelStyle returns a color-coded style for a provider label.
func ProviderLabelStyle(p model.Provider) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch p {
	case model.ProviderGraph:
		return base.Foreground(ColorBlue)
	case model.ProviderGmail:
		return base.Foreground(ColorRed)
	case model.ProviderIMAP:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// JobStateStyle returns a color-coded style for a check job state name.
func JobStateStyle(state string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch state {
	case "running":
		return base.Foreground(ColorYellow)
	case "waiting":
		return base.Foreground(ColorGreen)
	case "stopped":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}
