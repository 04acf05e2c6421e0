package app

import (
	"context"
	"errors"
	"strings"
	gosync "sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"

	"github.com/nhle/mailsync/internal/model"
	mailsync "github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/ui/maillist"
)

type fakeActions struct {
	mu         gosync.Mutex
	started    []string
	refreshed  []string
	deleted    []string
	opened     []string
	done       func(*model.MailContent, error)
	refreshErr error
}

func (f *fakeActions) Start(id string, _ mailsync.Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
}

func (f *fakeActions) Refresh(id string) error {
	f.refreshed = append(f.refreshed, id)
	return f.refreshErr
}

func (f *fakeActions) Delete(id, msgID string) error {
	f.deleted = append(f.deleted, id+"/"+msgID)
	return nil
}

func (f *fakeActions) Open(id, msgID string, done func(*model.MailContent, error)) error {
	f.opened = append(f.opened, id+"/"+msgID)
	f.done = done
	return nil
}

func (f *fakeActions) Status(id string) mailsync.Status {
	return mailsync.Status{AccountID: id, Check: mailsync.JobWaiting}
}

type fakeHistory struct {
	lastSync time.Time
	lastErr  string
	runs     []model.SyncRun
	calls    []string
}

func (f *fakeHistory) LastSync(_ context.Context, id string) (time.Time, error) {
	f.calls = append(f.calls, id)
	return f.lastSync, nil
}

func (f *fakeHistory) LastError(context.Context, string) (string, error) {
	return f.lastErr, nil
}

func (f *fakeHistory) RecentRuns(context.Context, string, int) ([]model.SyncRun, error) {
	return f.runs, nil
}

var testMails = []model.MailSummary{
	{ID: "m1", Subject: "Quarterly report", From: model.Address{Name: "Alice", Address: "alice@example.com"}},
	{ID: "m2", Subject: "Lunch", From: model.Address{Name: "Bob", Address: "bob@example.com"}, IsRead: true},
}

func newModel(t *testing.T) (Model, *fakeActions) {
	t.Helper()
	m, fa, _ := newModelWithHistory(t)
	return m, fa
}

func newModelWithHistory(t *testing.T) (Model, *fakeActions, *fakeHistory) {
	t.Helper()
	cfg := model.DefaultAppConfig()
	cfg.Accounts = []model.Account{
		{ID: "a1", Enabled: true},
		{ID: "a2", Enabled: true},
		{ID: "off", Enabled: false},
	}
	fa := &fakeActions{}
	fh := &fakeHistory{}
	m := New(cfg, fa, fh, NewBridge())
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, fa, fh
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestStartJobsSkipsDisabledAccounts(t *testing.T) {
	m, fa := newModel(t)
	m.startJobs()()
	if diff := cmp.Diff([]string{"a1", "a2"}, fa.started); diff != "" {
		t.Errorf("started mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteSelectedMail(t *testing.T) {
	m, fa := newModel(t)
	m, _ = update(m, ResultMsg{AccountID: "a1", Mails: testMails})
	m, _ = update(m, runes("j"))
	m, _ = update(m, runes("d"))

	if diff := cmp.Diff([]string{"a1/m2"}, fa.deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
}

func TestResultForInactiveAccountIsKept(t *testing.T) {
	m, _ := newModel(t)
	m, _ = update(m, ResultMsg{AccountID: "a2", Mails: testMails[:1]})
	if n := m.mailList.Visible(); n != 0 {
		t.Fatalf("active list shows %d mails from another account", n)
	}

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.activeID() != "a2" {
		t.Fatalf("active = %q, want a2", m.activeID())
	}
	if n := m.mailList.Visible(); n != 1 {
		t.Errorf("after switching, list shows %d mails, want 1", n)
	}

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.activeID() != "a1" {
		t.Errorf("tab did not wrap past the disabled account: %q", m.activeID())
	}
}

func TestErrorIsShownUntilCleared(t *testing.T) {
	m, fa := newModel(t)
	m, _ = update(m, ErrorMsg{AccountID: "a1", Err: errors.New("mailbox unreachable")})

	if v := m.View(); !strings.Contains(v, "mailbox unreachable") {
		t.Errorf("view does not show the error:\n%s", v)
	}

	m, _ = update(m, runes("r"))
	if diff := cmp.Diff([]string{"a1"}, fa.refreshed); diff != "" {
		t.Errorf("refreshed mismatch (-want +got):\n%s", diff)
	}

	m, _ = update(m, ErrorMsg{AccountID: "a1"})
	if v := m.View(); strings.Contains(v, "mailbox unreachable") {
		t.Errorf("error still shown after clearing:\n%s", v)
	}
}

func TestRefreshFailureIsShown(t *testing.T) {
	m, fa := newModel(t)
	fa.refreshErr = mailsync.ErrUnknownAccount

	m, _ = update(m, runes("r"))
	if v := m.View(); !strings.Contains(v, mailsync.ErrUnknownAccount.Error()) {
		t.Errorf("view does not show the refresh error:\n%s", v)
	}
}

func TestOpenShowsContent(t *testing.T) {
	m, fa := newModel(t)
	var sent []tea.Msg
	m.bridge.Attach(func(msg tea.Msg) { sent = append(sent, msg) })

	m, _ = update(m, ResultMsg{AccountID: "a1", Mails: testMails})
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter produced no command")
	}
	selected, ok := cmd().(maillist.SelectedMailMsg)
	if !ok {
		t.Fatalf("enter produced %T", cmd())
	}
	m, _ = update(m, selected)

	if m.currentView != ViewDetail {
		t.Fatalf("view = %v, want detail", m.currentView)
	}
	if diff := cmp.Diff([]string{"a1/m1"}, fa.opened); diff != "" {
		t.Errorf("opened mismatch (-want +got):\n%s", diff)
	}

	fa.done(&model.MailContent{MailSummary: testMails[0], TextBody: "numbers are up"}, nil)
	if len(sent) != 1 {
		t.Fatalf("bridge sent %d messages, want 1", len(sent))
	}
	m, _ = update(m, sent[0])
	if v := m.View(); !strings.Contains(v, "numbers are up") {
		t.Errorf("view does not show the body:\n%s", v)
	}

	m, cmd = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	m, _ = update(m, cmd())
	if m.currentView != ViewList {
		t.Errorf("esc left view = %v", m.currentView)
	}
}

func TestHelpToggle(t *testing.T) {
	m, _ := newModel(t)
	m, _ = update(m, runes("?"))
	if m.currentView != ViewHelp {
		t.Fatalf("view = %v, want help", m.currentView)
	}
	if v := m.View(); !strings.Contains(v, "Keyboard Shortcuts") {
		t.Errorf("help view missing title:\n%s", v)
	}
	m, _ = update(m, runes("?"))
	if m.currentView != ViewList {
		t.Errorf("view = %v, want list", m.currentView)
	}
}

func TestBridgeCallbacks(t *testing.T) {
	b := NewBridge()
	cb := b.Callbacks("a1")
	cb.SetLoading(true) // dropped: nothing attached

	var got []tea.Msg
	b.Attach(func(msg tea.Msg) { got = append(got, msg) })
	boom := errors.New("boom")
	cb.SetLoading(true)
	cb.SetError(boom)
	cb.SetResult("a1", testMails)

	want := []tea.Msg{
		LoadingMsg{AccountID: "a1", Loading: true},
		ErrorMsg{AccountID: "a1", Err: boom},
		ResultMsg{AccountID: "a1", Mails: testMails},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b error) bool { return a == b })); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestFinishedTaskRefreshesLastSync(t *testing.T) {
	m, _, fh := newModelWithHistory(t)
	fh.lastSync = time.Now().Add(-5 * time.Minute)

	m, cmd := update(m, LoadingMsg{AccountID: "a1", Loading: false})
	if cmd == nil {
		t.Fatal("finished task did not reload history")
	}
	m, _ = update(m, cmd())

	if diff := cmp.Diff([]string{"a1"}, fh.calls); diff != "" {
		t.Errorf("history calls (-want +got):\n%s", diff)
	}
	if v := m.View(); !strings.Contains(v, "synced 5m ago") {
		t.Errorf("header does not show the last sync:\n%s", v)
	}
}

func TestSyncLogView(t *testing.T) {
	m, _, fh := newModelWithHistory(t)
	start := time.Now().Add(-time.Minute)
	done := start.Add(time.Second)
	fh.lastSync = done
	fh.lastErr = "bad gateway"
	fh.runs = []model.SyncRun{
		{AccountID: "a1", Job: model.JobCheck, StartedAt: start, FinishedAt: &done, Error: "bad gateway"},
	}

	m, cmd := update(m, runes("L"))
	if m.currentView != ViewLog {
		t.Fatalf("view = %v, want sync log", m.currentView)
	}
	if v := m.View(); !strings.Contains(v, "Loading sync history") {
		t.Errorf("log view missing placeholder:\n%s", v)
	}
	m, _ = update(m, cmd())

	v := m.View()
	for _, want := range []string{"Last error: bad gateway", "check", "Result"} {
		if !strings.Contains(v, want) {
			t.Errorf("log view missing %q:\n%s", want, v)
		}
	}

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.currentView != ViewList {
		t.Errorf("esc left view = %v", m.currentView)
	}
}

func TestNoHistoryDisablesSyncLog(t *testing.T) {
	cfg := model.DefaultAppConfig()
	cfg.Accounts = []model.Account{{ID: "a1", Enabled: true}}
	m := New(cfg, &fakeActions{}, nil, NewBridge())
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, cmd := update(m, runes("L"))
	if m.currentView != ViewList || cmd != nil {
		t.Errorf("view = %v, cmd = %v; want list and no command", m.currentView, cmd)
	}
	if _, cmd := update(m, LoadingMsg{AccountID: "a1"}); cmd != nil {
		t.Error("finished task scheduled a history load without a store")
	}
}
