package sync

import (
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/queue"
)

// countingQueue forwards to a real Queue and counts submissions.
type countingQueue struct {
	q *queue.Queue
	n atomic.Int32
}

func (c *countingQueue) Enqueue(task queue.Task) {
	c.n.Add(1)
	c.q.Enqueue(task)
}

func newScheduler(t *testing.T, cfg SchedulerConfig) (*Scheduler, *countingQueue, *engineFixture) {
	t.Helper()
	q := queue.New()
	t.Cleanup(q.Close)
	cq := &countingQueue{q: q}
	f := newEngine(t, validToken)
	s := NewScheduler(cq, f.engine, cfg, zerolog.Nop())
	t.Cleanup(s.StopAll)
	return s, cq, f
}

func TestCheckJobEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("runs for five seconds")
	}

	for _, mode := range []string{model.RescheduleOnSubmit, model.RescheduleOnComplete} {
		mode := mode
		t.Run(mode, func(t *testing.T) {
			t.Parallel()
			s, cq, _ := newScheduler(t, SchedulerConfig{
				MinInterval:  time.Second,
				MaxInterval:  time.Second,
				SyncInterval: time.Hour,
				Reschedule:   mode,
			})

			var results atomic.Int32
			s.Start("acct", Callbacks{
				SetResult: func(string, []model.MailSummary) { results.Add(1) },
			})
			time.Sleep(5 * time.Second)
			s.Stop("acct")

			n := int(cq.n.Load())
			if n < 3 || n > 6 {
				t.Errorf("check job submitted %d tasks in 5s, want 3-6", n)
			}
			if got := int(results.Load()); got < n-1 {
				t.Errorf("%d results for %d submissions", got, n)
			}
		})
	}
}

func TestCheckJobStates(t *testing.T) {
	s, cq, _ := newScheduler(t, SchedulerConfig{SyncInterval: time.Hour})
	s.interval = func(_, _ time.Duration) time.Duration { return 20 * time.Millisecond }

	s.Start("acct", Callbacks{})
	s.Start("acct", Callbacks{}) // no-op

	deadline := time.Now().Add(2 * time.Second)
	for cq.n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	st := s.Status("acct")
	if st.Submissions < 3 {
		t.Fatalf("submissions = %d, want at least 3", st.Submissions)
	}
	if st.Check == JobStopped || st.Check == JobIdle {
		t.Errorf("running job state = %v", st.Check)
	}

	s.Stop("acct")
	after := cq.n.Load()
	time.Sleep(60 * time.Millisecond)
	if cq.n.Load() != after {
		t.Error("check job submitted after Stop")
	}
	if got := s.Status("acct").Check; got != JobStopped {
		t.Errorf("state after Stop = %v, want stopped", got)
	}
	if s.Running("acct") {
		t.Error("Running after Stop")
	}
}

func TestSyncJobTicksIndependently(t *testing.T) {
	s, cq, f := newScheduler(t, SchedulerConfig{
		MinInterval:  time.Hour,
		MaxInterval:  time.Hour,
		SyncInterval: 20 * time.Millisecond,
	})

	var mu gosync.Mutex
	results := 0
	s.Start("acct", Callbacks{SetResult: func(string, []model.MailSummary) {
		mu.Lock()
		results++
		mu.Unlock()
	}})

	time.Sleep(150 * time.Millisecond)
	s.Stop("acct")

	// One immediate check plus several sync ticks.
	if n := cq.n.Load(); n < 4 {
		t.Errorf("submissions = %d, want at least 4", n)
	}
	// Sync ticks bypass the cache.
	if f.client.fetchCount() < 3 {
		t.Errorf("remote fetched %d times, want at least 3", f.client.fetchCount())
	}
}

func TestManualActionsRequireStartedAccount(t *testing.T) {
	s, _, _ := newScheduler(t, SchedulerConfig{SyncInterval: time.Hour})

	if err := s.Refresh("acct"); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("Refresh error = %v", err)
	}
	if err := s.Delete("acct", "m1"); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("Delete error = %v", err)
	}
}

func TestRefreshAndDeleteGoThroughQueue(t *testing.T) {
	s, _, f := newScheduler(t, SchedulerConfig{MinInterval: time.Hour, MaxInterval: time.Hour, SyncInterval: time.Hour})

	results := make(chan []model.MailSummary, 8)
	s.Start("acct", Callbacks{SetResult: func(_ string, m []model.MailSummary) { results <- m }})
	<-results // initial check

	if err := s.Refresh("acct"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	<-results
	if err := s.Delete("acct", "m2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got := <-results
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("after delete = %v, want only m1", got)
	}
	if f.client.fetchCount() != 2 {
		t.Errorf("remote fetched %d times, want 2", f.client.fetchCount())
	}
}

func TestRandomInterval(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := RandomInterval(2*time.Second, 4*time.Second)
		if d < 2*time.Second || d > 4*time.Second || d%time.Second != 0 {
			t.Fatalf("RandomInterval = %v, want whole seconds in [2s, 4s]", d)
		}
	}
	if d := RandomInterval(time.Second, time.Second); d != time.Second {
		t.Errorf("degenerate interval = %v, want 1s", d)
	}
	if d := RandomInterval(5*time.Second, time.Second); d != 5*time.Second {
		t.Errorf("inverted bounds = %v, want min", d)
	}
}

func TestFilterMails(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"m1", "m2"}},
		{"REPORT", []string{"m1"}},
		{"bob", []string{"m2"}},
		{"example.com", []string{"m1", "m2"}},
		{"nothing", []string{}},
	}
	for _, tt := range tests {
		got := []string{}
		for _, m := range FilterMails(testMails, tt.query) {
			got = append(got, m.ID)
		}
		if len(got) != len(tt.want) {
			t.Errorf("FilterMails(%q) = %v, want %v", tt.query, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("FilterMails(%q) = %v, want %v", tt.query, got, tt.want)
				break
			}
		}
	}
}
