package maillist

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/model"
)

var mails = []model.MailSummary{
	{ID: "m1", Subject: "Quarterly report", From: model.Address{Name: "Alice", Address: "alice@example.com"}},
	{ID: "m2", Subject: "Lunch", From: model.Address{Name: "Bob", Address: "bob@example.com"}},
	{ID: "m3", Subject: "Report follow-up", From: model.Address{Address: "carol@example.org"}},
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newList() Model {
	m := New(keys.DefaultKeyMap(), 80, 20)
	m.SetMails(mails)
	return m
}

func TestSearchFiltersAsYouType(t *testing.T) {
	m := newList()
	m, _ = m.Update(runes("/"))
	if !m.Searching() {
		t.Fatal("/ did not enter search mode")
	}
	for _, r := range "report" {
		m, _ = m.Update(runes(string(r)))
	}
	if m.Query() != "report" {
		t.Fatalf("query = %q", m.Query())
	}
	if n := m.Visible(); n != 2 {
		t.Errorf("visible = %d, want 2", n)
	}

	// enter keeps the filter
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.Searching() || m.Visible() != 2 {
		t.Errorf("after enter: searching=%v visible=%d", m.Searching(), m.Visible())
	}

	// a new listing stays filtered
	m.SetMails(append(mails, model.MailSummary{ID: "m4", Subject: "Lunch again"}))
	if n := m.Visible(); n != 2 {
		t.Errorf("visible after new listing = %d, want 2", n)
	}

	// esc in the list clears it
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.Query() != "" || m.Visible() != 4 {
		t.Errorf("after esc: query=%q visible=%d", m.Query(), m.Visible())
	}
}

func TestSelectionClampsWhenListShrinks(t *testing.T) {
	m := newList()
	m, _ = m.Update(runes("j"))
	m, _ = m.Update(runes("j"))
	if got, _ := m.Selected(); got.ID != "m3" {
		t.Fatalf("selected = %q, want m3", got.ID)
	}

	m.SetMails(mails[:1])
	got, ok := m.Selected()
	if !ok || got.ID != "m1" {
		t.Errorf("selected after shrink = %q, %v", got.ID, ok)
	}
}

func TestOpenEmitsSelection(t *testing.T) {
	m := newList()
	m, _ = m.Update(runes("j"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("no command")
	}
	msg, ok := cmd().(SelectedMailMsg)
	if !ok || msg.Mail.ID != "m2" {
		t.Errorf("got %#v, want selection of m2", cmd())
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{2 * 24 * time.Hour, "2d ago"},
		{30 * 24 * time.Hour, "Apr 20"},
	}
	for _, tt := range tests {
		if got := RelativeTime(now, now.Add(-tt.ago)); got != tt.want {
			t.Errorf("RelativeTime(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
	if got := RelativeTime(now, time.Time{}); got != "" {
		t.Errorf("zero time = %q", got)
	}
}
