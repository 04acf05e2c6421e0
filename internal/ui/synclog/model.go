// Package synclog shows an account's recent sync runs as a table.
package synclog

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/theme"
	"github.com/nhle/mailsync/internal/ui/maillist"
)

// RunLimit is how many runs the view asks for.
const RunLimit = 50

// Model is the sync history view component.
type Model struct {
	table    table.Model
	account  string
	runs     []model.SyncRun
	lastSync time.Time
	lastErr  string
	err      error
	loading  bool
	width    int
	height   int
	now      func() time.Time
}

// New creates an empty sync history view.
func New(width, height int) Model {
	t := table.New(
		table.WithColumns(columns(width)),
		table.WithFocused(true),
		table.WithHeight(tableHeight(height)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Foreground(theme.ColorGray).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(theme.ColorBorder)
	styles.Selected = styles.Selected.Foreground(theme.ColorBlue)
	t.SetStyles(styles)

	return Model{
		table:  t,
		width:  width,
		height: height,
		now:    time.Now,
	}
}

func columns(width int) []table.Column {
	result := width - 16 - 8 - 8 - 6 - 10
	if result < 12 {
		result = 12
	}
	return []table.Column{
		{Title: "Started", Width: 16},
		{Title: "Job", Width: 8},
		{Title: "Took", Width: 8},
		{Title: "Mails", Width: 6},
		{Title: "Result", Width: result},
	}
}

// two summary lines, a blank line and the header border
func tableHeight(height int) int {
	return max(height-4, 3)
}

// SetLoading shows a placeholder until SetHistory is called for account.
func (m *Model) SetLoading(account string) {
	m.account = account
	m.loading = true
}

// SetHistory replaces the displayed runs for account.
func (m *Model) SetHistory(account string, runs []model.SyncRun, lastSync time.Time, lastErr string, err error) {
	m.account = account
	m.runs = runs
	m.lastSync = lastSync
	m.lastErr = lastErr
	m.err = err
	m.loading = false
	m.table.SetRows(rows(runs))
	m.table.SetCursor(0)
}

// Account returns the account whose history is shown.
func (m Model) Account() string {
	return m.account
}

func rows(runs []model.SyncRun) []table.Row {
	out := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		took, result := "", "running"
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
			result = "ok"
			if r.Error != "" {
				result = r.Error
			}
		}
		out = append(out, table.Row{
			r.StartedAt.Local().Format("Jan 02 15:04:05"),
			r.Job,
			took,
			strconv.Itoa(r.MailCount),
			result,
		})
	}
	return out
}

// Update scrolls the table.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the summary lines above the run table.
func (m Model) View() string {
	muted := lipgloss.NewStyle().Foreground(theme.ColorGray)

	if m.loading {
		return muted.Render("Loading sync history...")
	}
	if m.err != nil {
		return theme.ErrorStyle.Render("Could not load sync history: " + m.err.Error())
	}

	synced := "never"
	if !m.lastSync.IsZero() {
		synced = maillist.RelativeTime(m.now(), m.lastSync)
	}
	summary := fmt.Sprintf("%s · last sync %s", m.account, synced)
	lastErr := muted.Render("Last run succeeded")
	if m.lastErr != "" {
		lastErr = theme.ErrorStyle.Render("Last error: " + m.lastErr)
	}

	if len(m.runs) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			summary, lastErr, "", muted.Render("No sync runs recorded yet."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, summary, lastErr, "", m.table.View())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.table.SetColumns(columns(width))
	m.table.SetWidth(width)
	m.table.SetHeight(tableHeight(height))
}
