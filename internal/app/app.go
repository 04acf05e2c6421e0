// Package app is the root terminal program: one tab per account, a mail
// list, a message view and a help overlay, all fed by the sync scheduler.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/model"
	mailsync "github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/theme"
	"github.com/nhle/mailsync/internal/ui"
	"github.com/nhle/mailsync/internal/ui/detail"
	helpview "github.com/nhle/mailsync/internal/ui/help"
	"github.com/nhle/mailsync/internal/ui/maillist"
	"github.com/nhle/mailsync/internal/ui/synclog"
)

// Actions is the part of the scheduler the UI drives.
type Actions interface {
	Start(accountID string, cb mailsync.Callbacks)
	Refresh(accountID string) error
	Delete(accountID, messageID string) error
	Open(accountID, messageID string, done func(*model.MailContent, error)) error
	Status(accountID string) mailsync.Status
}

// History reads the persisted sync metadata. *store.SQLiteStore
// satisfies it.
type History interface {
	LastSync(ctx context.Context, accountID string) (time.Time, error)
	LastError(ctx context.Context, accountID string) (string, error)
	RecentRuns(ctx context.Context, accountID string, limit int) ([]model.SyncRun, error)
}

// HistoryMsg carries an account's sync history loaded from the store.
type HistoryMsg struct {
	AccountID string
	Runs      []model.SyncRun
	LastSync  time.Time
	LastError string
	Err       error
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
	ViewLog
)

// statusTickMsg refreshes job states once a second.
type statusTickMsg struct{}

// accountState is what the UI knows about one account. It only changes
// through bridge messages.
type accountState struct {
	loading bool
	err     error
	mails    []model.MailSummary
	status   mailsync.Status
	lastSync time.Time
}

// Model is the root Bubble Tea model that manages view routing, layout
// and the per-account state.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	help         help.Model
	spinner      spinner.Model

	accounts []model.Account
	active   int
	states   map[string]*accountState
	opening  string

	actions Actions
	history History
	bridge  *Bridge

	mailList maillist.Model
	detail   detail.Model
	helpView helpview.Model
	logView  synclog.Model
	ready    bool
}

// New creates the root model for the enabled accounts. history may be
// nil, in which case no sync metadata is shown.
func New(cfg *model.AppConfig, actions Actions, history History, bridge *Bridge) Model {
	k := keys.DefaultKeyMap()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorYellow)

	var accounts []model.Account
	states := make(map[string]*accountState)
	for _, a := range cfg.Accounts {
		if !a.Enabled {
			continue
		}
		accounts = append(accounts, a)
		states[a.ID] = &accountState{}
	}

	hv := helpview.New(k, 80, 24)
	hv.SetCadence(cfg.Sync.MinIntervalSec, cfg.Sync.MaxIntervalSec, cfg.Sync.IntervalSec)

	return Model{
		currentView: ViewList,
		keys:        k,
		help:        help.New(),
		spinner:     sp,
		accounts:    accounts,
		states:      states,
		actions:     actions,
		history:     history,
		bridge:      bridge,
		mailList:    maillist.New(k, 80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    hv,
		logView:     synclog.New(80, 24),
	}
}

// Init starts the jobs of every account and the UI tickers.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.startJobs(), m.spinner.Tick, statusTick()}
	for _, a := range m.accounts {
		cmds = append(cmds, m.loadHistory(a.ID))
	}
	return tea.Batch(cmds...)
}

// loadHistory reads the account's sync metadata off the update loop.
func (m Model) loadHistory(accountID string) tea.Cmd {
	h := m.history
	if h == nil {
		return nil
	}
	return func() tea.Msg {
		ctx := context.Background()
		msg := HistoryMsg{AccountID: accountID}
		if msg.LastSync, msg.Err = h.LastSync(ctx, accountID); msg.Err != nil {
			return msg
		}
		if msg.LastError, msg.Err = h.LastError(ctx, accountID); msg.Err != nil {
			return msg
		}
		msg.Runs, msg.Err = h.RecentRuns(ctx, accountID, synclog.RunLimit)
		return msg
	}
}

func (m Model) startJobs() tea.Cmd {
	actions, bridge, accounts := m.actions, m.bridge, m.accounts
	return func() tea.Msg {
		for _, a := range accounts {
			actions.Start(a.ID, bridge.Callbacks(a.ID))
		}
		return nil
	}
}

func statusTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		h := m.layout.ContentHeight()
		m.mailList.SetSize(msg.Width, h)
		m.detail.SetSize(msg.Width, h)
		m.helpView.SetSize(msg.Width, h)
		m.logView.SetSize(msg.Width, h)
		m.help.Width = msg.Width
		return m, nil

	case LoadingMsg:
		st, ok := m.states[msg.AccountID]
		if !ok {
			return m, nil
		}
		st.loading = msg.Loading
		if !msg.Loading {
			// a task finished; its run is now in the store
			return m, m.loadHistory(msg.AccountID)
		}
		return m, nil

	case HistoryMsg:
		st, ok := m.states[msg.AccountID]
		if !ok {
			return m, nil
		}
		if msg.Err == nil {
			st.lastSync = msg.LastSync
		}
		if msg.AccountID == m.activeID() {
			m.logView.SetHistory(msg.AccountID, msg.Runs, msg.LastSync, msg.LastError, msg.Err)
		}
		return m, nil

	case ErrorMsg:
		if st, ok := m.states[msg.AccountID]; ok {
			st.err = msg.Err
		}
		return m, nil

	case ResultMsg:
		st, ok := m.states[msg.AccountID]
		if !ok {
			return m, nil
		}
		st.mails = msg.Mails
		if msg.AccountID == m.activeID() {
			m.mailList.SetMails(msg.Mails)
		}
		return m, nil

	case ContentMsg:
		if m.currentView == ViewDetail && msg.AccountID == m.activeID() && msg.MessageID == m.opening {
			m.detail.SetMail(msg.Content, msg.Err)
		}
		return m, nil

	case maillist.SelectedMailMsg:
		cmd := m.open(msg.Mail)
		return m, cmd

	case detail.BackMsg:
		m.currentView = ViewList
		m.opening = ""
		return m, nil

	case statusTickMsg:
		for id, st := range m.states {
			st.status = m.actions.Status(id)
		}
		return m, statusTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		if m.currentView == ViewList && m.mailList.Searching() {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case m.currentView == ViewHelp && key.Matches(msg, m.keys.Back):
			m.currentView = m.previousView
			return m, nil

		case m.currentView == ViewLog && (key.Matches(msg, m.keys.Back) || key.Matches(msg, m.keys.Log)):
			m.currentView = ViewList
			return m, nil

		case m.currentView == ViewList && key.Matches(msg, m.keys.Log):
			id := m.activeID()
			if id == "" || m.history == nil {
				return m, nil
			}
			m.currentView = ViewLog
			if m.logView.Account() != id {
				m.logView.SetLoading(id)
			}
			return m, m.loadHistory(id)

		case m.currentView != ViewList:
			// handled by the active view

		case key.Matches(msg, m.keys.Quit):
			return m, m.quit()

		case key.Matches(msg, m.keys.NextAccount):
			cmd := m.switchAccount(1)
			return m, cmd

		case key.Matches(msg, m.keys.PrevAccount):
			cmd := m.switchAccount(-1)
			return m, cmd

		case key.Matches(msg, m.keys.Retry):
			if id := m.activeID(); id != "" {
				m.setError(id, m.actions.Refresh(id))
			}
			return m, nil

		case key.Matches(msg, m.keys.Delete):
			if mail, ok := m.mailList.Selected(); ok {
				id := m.activeID()
				m.setError(id, m.actions.Delete(id, mail.ID))
			}
			return m, nil
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.mailList, cmd = m.mailList.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewLog:
		m.logView, cmd = m.logView.Update(msg)
	}

	return m, cmd
}

func (m *Model) open(mail model.MailSummary) tea.Cmd {
	id := m.activeID()
	if id == "" {
		return nil
	}
	m.previousView = m.currentView
	m.currentView = ViewDetail
	m.opening = mail.ID
	m.detail.SetLoading(true)

	err := m.actions.Open(id, mail.ID, m.bridge.contentCallback(id, mail.ID))
	if err != nil {
		m.detail.SetMail(nil, err)
	}
	return nil
}

func (m *Model) switchAccount(delta int) tea.Cmd {
	if len(m.accounts) == 0 {
		return nil
	}
	m.active = (m.active + delta + len(m.accounts)) % len(m.accounts)
	m.mailList.SetMails(m.states[m.activeID()].mails)
	return m.loadHistory(m.activeID())
}

func (m *Model) setError(accountID string, err error) {
	if err == nil {
		return
	}
	if st, ok := m.states[accountID]; ok {
		st.err = err
	}
}

// quit leaves stopping the jobs to the caller of Run: a queued task may be
// blocked delivering a message to this loop.
func (m Model) quit() tea.Cmd {
	return tea.Quit
}

func (m Model) activeID() string {
	if len(m.accounts) == 0 {
		return ""
	}
	return m.accounts[m.active].ID
}

func (m Model) activeState() *accountState {
	if st, ok := m.states[m.activeID()]; ok {
		return st
	}
	return &accountState{}
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.title(), m.syncStatus())
	tabs := m.layout.RenderTabs(m.tabNames(), m.active)
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.Compose(header, tabs, m.renderContent(), statusBar)
}

func (m Model) renderContent() string {
	if len(m.accounts) == 0 {
		return lipgloss.NewStyle().
			Width(m.layout.Width).
			Height(m.layout.ContentHeight()).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No accounts configured.\n\nRun 'mailsync account add' to add one.")
	}

	switch m.currentView {
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewLog:
		return m.logView.View()
	default:
		return m.mailList.View()
	}
}

func (m Model) title() string {
	unread := 0
	for _, mail := range m.activeState().mails {
		if !mail.IsRead {
			unread++
		}
	}
	if unread > 0 {
		return fmt.Sprintf("mailsync [%d unread]", unread)
	}
	return "mailsync"
}

func (m Model) tabNames() []string {
	names := make([]string, len(m.accounts))
	for i, a := range m.accounts {
		name := a.ID
		if st := m.states[a.ID]; st != nil && st.err != nil {
			name += " ⚠"
		}
		names[i] = name
	}
	return names
}

// syncStatus describes the active account's check job and last sync.
func (m Model) syncStatus() string {
	st := m.activeState()
	if st.loading {
		return m.spinner.View() + " syncing"
	}

	state := st.status.Check.String()
	status := theme.JobStateStyle(state).Render(state)
	if st.status.Check == mailsync.JobWaiting && !st.status.NextCheck.IsZero() {
		wait := time.Until(st.status.NextCheck).Round(time.Second)
		status += fmt.Sprintf(" · next in %s", max(wait, 0))
	}
	if !st.lastSync.IsZero() {
		status += " · synced " + maillist.RelativeTime(time.Now(), st.lastSync)
	}
	return status
}

// keyHints returns the retained error, when there is one, or the short
// key help for the status bar.
func (m Model) keyHints() string {
	if m.currentView == ViewList {
		if err := m.activeState().err; err != nil {
			return theme.ErrorStyle.Render("⚠ "+err.Error()) +
				fmt.Sprintf("  %s %s", m.keys.Retry.Help().Key, "retry")
		}
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewDetail:
		return "esc back | j/k scroll"
	case ViewLog:
		return "L/esc back | j/k scroll"
	default:
		return m.help.ShortHelpView(m.keys.ShortHelp())
	}
}
