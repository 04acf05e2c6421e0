package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/mailsync/internal/cache"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/tests/testutil"
)

func TestNamespaceRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	got, err := s.Load(ctx, "email_cache")
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if got != nil {
		t.Errorf("Load of unwritten namespace = %q, want nil", got)
	}

	if err := s.Save(ctx, "email_cache", []byte(`{"a":[]}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "email_cache", []byte(`{"b":[]}`)); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, err = s.Load(ctx, "email_cache")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != `{"b":[]}` {
		t.Errorf("Load = %q, want the second payload", got)
	}
}

func TestStoreBacksMailCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMailCache(testutil.NewTestStore(t))

	mails := []model.MailSummary{{ID: "m1", Subject: "hi"}}
	if err := c.Set(ctx, "acct", mails); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(ctx, "acct")
	if !ok || len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("Get = %v, %v", got, ok)
	}
}

func TestLastSync(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	at, err := s.LastSync(ctx, "acct")
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if !at.IsZero() {
		t.Errorf("LastSync for unknown account = %v, want zero", at)
	}

	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := s.SetLastSync(ctx, "acct", want); err != nil {
		t.Fatalf("SetLastSync: %v", err)
	}
	at, err = s.LastSync(ctx, "acct")
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if !at.Equal(want) {
		t.Errorf("LastSync = %v, want %v", at, want)
	}
}

func TestSyncRuns(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	first, err := s.StartRun(ctx, "acct", model.JobCheck)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if first.ID == "" {
		t.Fatal("StartRun returned empty id")
	}
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	first.FinishedAt = &t1
	first.Error = "graph: status 500: boom"
	if err := s.FinishRun(ctx, first); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	msg, err := s.LastError(ctx, "acct")
	if err != nil {
		t.Fatalf("LastError: %v", err)
	}
	if msg != first.Error {
		t.Errorf("LastError = %q, want %q", msg, first.Error)
	}

	second, err := s.StartRun(ctx, "acct", model.JobSync)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	t2 := t1.Add(time.Minute)
	second.FinishedAt = &t2
	second.MailCount = 12
	if err := s.FinishRun(ctx, second); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	msg, err = s.LastError(ctx, "acct")
	if err != nil {
		t.Fatalf("LastError: %v", err)
	}
	if msg != "" {
		t.Errorf("LastError after success = %q, want empty", msg)
	}

	runs, err := s.RecentRuns(ctx, "acct", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	for _, r := range runs {
		if r.FinishedAt == nil {
			t.Errorf("run %s has no finish time", r.ID)
		}
	}

	if err := s.DeleteAccount(ctx, "acct"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	runs, err = s.RecentRuns(ctx, "acct", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("got %d runs after DeleteAccount, want 0", len(runs))
	}
}

func TestFinishUnknownRun(t *testing.T) {
	s := testutil.NewTestStore(t)
	err := s.FinishRun(context.Background(), model.SyncRun{ID: "missing"})
	if err == nil {
		t.Error("FinishRun on unknown id returned nil")
	}
}
