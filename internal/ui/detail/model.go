// Package detail renders a fetched message in a scrollable viewport.
package detail

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Model is the message detail view component.
type Model struct {
	mail     *model.MailContent
	err      error
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new detail view model.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg {
			return BackMsg{}
		}
	}

	// Scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	placeholder := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.loading:
		return placeholder.Render("Loading message...")
	case m.err != nil:
		return placeholder.Foreground(theme.ColorRed).Render("Could not load message: " + m.err.Error())
	case m.mail == nil:
		return placeholder.Render("No message selected")
	}
	return m.viewport.View()
}

// renderContent builds the full message string for the viewport.
func (m Model) renderContent() string {
	if m.mail == nil {
		return ""
	}

	mail := m.mail
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	subject := mail.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	sections = append(sections, titleStyle.Render(subject), "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	sections = append(sections, fmt.Sprintf("%s  %s",
		metaStyle.Render("From:"), valStyle.Render(formatAddress(mail.From))))
	if len(mail.To) > 0 {
		to := make([]string, len(mail.To))
		for i, a := range mail.To {
			to[i] = formatAddress(a)
		}
		sections = append(sections, fmt.Sprintf("%s    %s",
			metaStyle.Render("To:"), valStyle.Render(strings.Join(to, ", "))))
	}
	if !mail.ReceivedAt.IsZero() {
		sections = append(sections, fmt.Sprintf("%s  %s",
			metaStyle.Render("Date:"), valStyle.Render(mail.ReceivedAt.Local().Format("2006-01-02 15:04"))))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(1, min(m.width-4, 80))))
	sections = append(sections, "", separator, "")

	sections = append(sections, Body(mail))

	if len(mail.Attachments) > 0 {
		sections = append(sections, "", separator, "")
		sections = append(sections, lipgloss.NewStyle().Bold(true).Render(
			fmt.Sprintf("Attachments (%d)", len(mail.Attachments))))
		for _, a := range mail.Attachments {
			sections = append(sections, fmt.Sprintf("  %s  %s",
				a.Filename, metaStyle.Render(fmt.Sprintf("%s, %d bytes", a.MIMEType, a.Size))))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

var (
	blockTags = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/tr|/h[1-6]|/li)\b[^>]*>`)
	anyTag    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// Body returns the message text, falling back to the HTML body with the
// markup removed.
func Body(mail *model.MailContent) string {
	if strings.TrimSpace(mail.TextBody) != "" {
		return mail.TextBody
	}
	if mail.HTMLBody == "" {
		return lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true).Render("No content")
	}
	text := blockTags.ReplaceAllString(mail.HTMLBody, "\n")
	text = anyTag.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func formatAddress(a model.Address) string {
	if a.Name != "" && a.Address != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Address)
	}
	return a.String()
}

// SetMail updates the message being displayed and re-renders the content.
func (m *Model) SetMail(mail *model.MailContent, err error) {
	m.mail = mail
	m.err = err
	m.loading = false
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.mail != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
