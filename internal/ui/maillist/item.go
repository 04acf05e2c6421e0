package maillist

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/theme"
)

// MailItem wraps a model.MailSummary so it can be used in a bubbles/list.
type MailItem struct {
	Mail model.MailSummary
}

// FilterValue returns the subject; search filtering is done before items
// reach the list.
func (i MailItem) FilterValue() string { return i.Mail.Subject }

// Title returns the subject line.
func (i MailItem) Title() string { return i.Mail.Subject }

// Description returns the sender.
func (i MailItem) Description() string { return i.Mail.From.String() }

// ItemDelegate implements list.ItemDelegate for rendering mail rows.
type ItemDelegate struct {
	// now is overridden in tests.
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single mail row: an unread marker, the sender, the
// subject and the relative receive time.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MailItem)
	if !ok {
		return
	}
	fmt.Fprint(w, d.renderRow(mi.Mail, index == m.Index()))
}

func (d ItemDelegate) renderRow(mail model.MailSummary, selected bool) string {
	marker := " "
	if !mail.IsRead {
		marker = "●"
	}

	from := lipgloss.NewStyle().
		Width(24).
		MaxWidth(24).
		Render(mail.From.String())

	subject := mail.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	if !mail.IsRead {
		subject = theme.UnreadStyle.Render(subject)
	}

	now := time.Now
	if d.now != nil {
		now = d.now
	}
	when := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(RelativeTime(now(), mail.ReceivedAt))

	line := fmt.Sprintf("%s %s %s  %s", marker, from, subject, when)
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// RelativeTime returns a human-friendly relative time string.
func RelativeTime(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}
