// Package maillist renders one account's mailbox listing with an
// incremental search filter.
package maillist

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/model"
	mailsync "github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/theme"
)

// SelectedMailMsg is sent when the user opens a message.
type SelectedMailMsg struct {
	Mail model.MailSummary
}

// Model is the mail list view component.
type Model struct {
	list        list.Model
	keys        *keys.KeyMap
	mails       []model.MailSummary
	query       string
	searchMode  bool
	searchInput textinput.Model
	width       int
	height      int
}

// New creates an empty mail list.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-1)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	si := textinput.New()
	si.Placeholder = "search subject or sender..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		keys:        k,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// SetMails replaces the listing, keeping the current search applied.
func (m *Model) SetMails(mails []model.MailSummary) {
	m.mails = mails
	m.refilter()
}

func (m *Model) refilter() {
	visible := mailsync.FilterMails(m.mails, m.query)
	items := make([]list.Item, len(visible))
	for i, mail := range visible {
		items[i] = MailItem{Mail: mail}
	}
	m.list.SetItems(items)
	if idx := m.list.Index(); idx >= len(items) && len(items) > 0 {
		m.list.Select(len(items) - 1)
	}
}

// Selected returns the highlighted message.
func (m Model) Selected() (model.MailSummary, bool) {
	item, ok := m.list.SelectedItem().(MailItem)
	if !ok {
		return model.MailSummary{}, false
	}
	return item.Mail, true
}

// Visible returns the number of rows after filtering.
func (m Model) Visible() int {
	return len(m.list.Items())
}

// Query returns the active search query.
func (m Model) Query() string {
	return m.query
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// Update handles messages for the mail list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys filters as the user types; enter keeps the query and
// esc clears it.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.searchInput.Blur()
		return m, nil

	case "esc":
		m.searchMode = false
		m.searchInput.Blur()
		m.searchInput.Reset()
		m.query = ""
		m.refilter()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	if q := m.searchInput.Value(); q != m.query {
		m.query = q
		m.refilter()
	}
	return m, cmd
}

func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Open):
		mail, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedMailMsg{Mail: mail}
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.SetValue(m.query)
		cmd := m.searchInput.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Back):
		if m.query != "" {
			m.query = ""
			m.searchInput.Reset()
			m.refilter()
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.list.CursorDown()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.list.CursorUp()
		return m, nil
	}

	// Paging keys.
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the search bar (when active or non-empty) above the list.
func (m Model) View() string {
	var searchBar string
	if m.searchMode || m.query != "" {
		searchBar = lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
	}

	body := m.list.View()
	if len(m.list.Items()) == 0 {
		body = m.renderEmptyState()
	}

	if searchBar == "" {
		return body
	}
	return lipgloss.JoinVertical(lipgloss.Left, searchBar, body)
}

// renderEmptyState shows guidance text when no messages are listed.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height-1).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.query != "" {
		return style.Render("No matching messages.")
	}
	return style.Render("No messages.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-1)
	m.searchInput.Width = width - 4
}
