package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/queue"
)

// JobState is the state of an account's check job.
type JobState int

const (
	// JobIdle: the job exists but its next cycle has not started.
	JobIdle JobState = iota
	// JobRunning: a cycle is submitting its task (and, when rescheduling
	// on completion, waiting for it).
	JobRunning
	// JobWaiting: the timer for the next cycle is armed.
	JobWaiting
	// JobStopped: the job has ended.
	JobStopped
)

func (s JobState) String() string {
	switch s {
	case JobIdle:
		return "idle"
	case JobRunning:
		return "running"
	case JobWaiting:
		return "waiting"
	case JobStopped:
		return "stopped"
	}
	return fmt.Sprintf("JobState(%d)", int(s))
}

// Enqueuer accepts tasks for serialized execution. *queue.Queue
// satisfies it.
type Enqueuer interface {
	Enqueue(task queue.Task)
}

// SchedulerConfig controls job timing.
type SchedulerConfig struct {
	MinInterval  time.Duration
	MaxInterval  time.Duration
	SyncInterval time.Duration
	// Reschedule is model.RescheduleOnSubmit (default) or
	// model.RescheduleOnComplete.
	Reschedule string
}

// SchedulerConfigFrom converts the sync settings.
func SchedulerConfigFrom(c model.SyncConfig) SchedulerConfig {
	return SchedulerConfig{
		MinInterval:  c.MinInterval(),
		MaxInterval:  c.MaxInterval(),
		SyncInterval: c.Interval(),
		Reschedule:   c.Reschedule,
	}
}

// Status describes an account's jobs.
type Status struct {
	AccountID   string
	Check       JobState
	NextCheck   time.Time
	Submissions int
	LastError   error
}

// Scheduler runs the recurring jobs of every started account. All jobs
// submit to the same queue.
type Scheduler struct {
	q      Enqueuer
	engine *Engine
	cfg    SchedulerConfig
	log    zerolog.Logger

	// interval draws the check job delay.
	interval func(min, max time.Duration) time.Duration

	mu   gosync.Mutex
	jobs map[string]*accountJobs
}

// NewScheduler creates a Scheduler with no running jobs.
func NewScheduler(q Enqueuer, engine *Engine, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.Reschedule == "" {
		cfg.Reschedule = model.RescheduleOnSubmit
	}
	return &Scheduler{
		q:        q,
		engine:   engine,
		cfg:      cfg,
		log:      log,
		interval: RandomInterval,
		jobs:     make(map[string]*accountJobs),
	}
}

type accountJobs struct {
	cb    Callbacks
	check *checkJob
	sync  *syncJob
}

// Start launches the check and background sync jobs for an account. The
// first check is submitted immediately. Starting a running account is a
// no-op.
func (s *Scheduler) Start(accountID string, cb Callbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[accountID]; ok {
		return
	}

	log := s.log.With().Str("account", accountID).Logger()
	check := &checkJob{
		q:          s.q,
		task:       func() queue.Task { return s.engine.FetchTask(accountID, cb) },
		delay:      func() time.Duration { return s.interval(s.cfg.MinInterval, s.cfg.MaxInterval) },
		onComplete: s.cfg.Reschedule == model.RescheduleOnComplete,
		log:        log,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	sj := &syncJob{
		q:        s.q,
		task:     func() queue.Task { return s.engine.SyncTask(accountID, cb) },
		interval: s.cfg.SyncInterval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.jobs[accountID] = &accountJobs{cb: cb, check: check, sync: sj}

	go check.run()
	go sj.run()

	log.Info().
		Dur("min_interval", s.cfg.MinInterval).
		Dur("max_interval", s.cfg.MaxInterval).
		Dur("sync_interval", s.cfg.SyncInterval).
		Str("reschedule", s.cfg.Reschedule).
		Msg("sync jobs started")
}

// Stop ends the account's jobs and waits for their goroutines to exit.
// Tasks already queued or running are not affected.
func (s *Scheduler) Stop(accountID string) {
	s.mu.Lock()
	jobs, ok := s.jobs[accountID]
	delete(s.jobs, accountID)
	s.mu.Unlock()

	if !ok {
		return
	}
	jobs.check.halt()
	jobs.sync.halt()
	s.log.Info().Str("account", accountID).Msg("sync jobs stopped")
}

// StopAll stops every account's jobs.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Stop(id)
	}
}

// Running reports whether the account has active jobs.
func (s *Scheduler) Running(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[accountID]
	return ok
}

// Status returns the state of the account's check job.
func (s *Scheduler) Status(accountID string) Status {
	st := Status{AccountID: accountID, Check: JobStopped}
	if s.engine != nil {
		st.LastError = s.engine.LastError(accountID)
	}

	s.mu.Lock()
	jobs, ok := s.jobs[accountID]
	s.mu.Unlock()
	if !ok {
		return st
	}

	st.Check, st.NextCheck, st.Submissions = jobs.check.snapshot()
	return st
}

// Refresh submits a manual retry for the account using the callbacks it
// was started with.
func (s *Scheduler) Refresh(accountID string) error {
	cb, err := s.callbacks(accountID)
	if err != nil {
		return err
	}
	s.q.Enqueue(s.engine.RefreshTask(accountID, cb))
	return nil
}

// Delete submits a message deletion for the account.
func (s *Scheduler) Delete(accountID, messageID string) error {
	cb, err := s.callbacks(accountID)
	if err != nil {
		return err
	}
	s.q.Enqueue(s.engine.DeleteTask(accountID, messageID, cb))
	return nil
}

// Open submits a content fetch; done is called from the queue.
func (s *Scheduler) Open(accountID, messageID string, done func(*model.MailContent, error)) error {
	if _, err := s.callbacks(accountID); err != nil {
		return err
	}
	s.q.Enqueue(s.engine.OpenTask(accountID, messageID, done))
	return nil
}

func (s *Scheduler) callbacks(accountID string) (Callbacks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, ok := s.jobs[accountID]
	if !ok {
		return Callbacks{}, fmt.Errorf("%w: %s is not started", ErrUnknownAccount, accountID)
	}
	return jobs.cb, nil
}

// checkJob is the jittered self-rescheduling job. It owns one timer; each
// expiry submits a task and re-arms the timer with a fresh random delay.
type checkJob struct {
	q          Enqueuer
	task       func() queue.Task
	delay      func() time.Duration
	onComplete bool
	log        zerolog.Logger

	stop chan struct{}
	done chan struct{}
	once gosync.Once

	mu          gosync.Mutex
	state       JobState
	next        time.Time
	submissions int
}

func (j *checkJob) run() {
	defer close(j.done)
	defer j.setState(JobStopped, time.Time{})

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-timer.C:
		}

		j.setState(JobRunning, time.Time{})
		finished := j.submit()
		if j.onComplete {
			select {
			case <-finished:
			case <-j.stop:
				return
			}
		}

		d := j.delay()
		j.setState(JobWaiting, time.Now().Add(d))
		j.log.Debug().Dur("delay", d).Msg("next mail check scheduled")
		timer.Reset(d)
	}
}

// submit enqueues one cycle's task. The returned channel closes when the
// task has run.
func (j *checkJob) submit() <-chan struct{} {
	finished := make(chan struct{})
	task := j.task()
	j.q.Enqueue(func(ctx context.Context) error {
		defer close(finished)
		return task(ctx)
	})

	j.mu.Lock()
	j.submissions++
	n := j.submissions
	j.mu.Unlock()
	j.log.Debug().Int("submission", n).Msg("mail check submitted")
	return finished
}

func (j *checkJob) setState(s JobState, next time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
	j.next = next
}

func (j *checkJob) snapshot() (JobState, time.Time, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state, j.next, j.submissions
}

func (j *checkJob) halt() {
	j.once.Do(func() { close(j.stop) })
	<-j.done
}

// syncJob submits a fetch on a fixed ticker, whether or not the previous
// tick's task has run yet.
type syncJob struct {
	q        Enqueuer
	task     func() queue.Task
	interval time.Duration
	log      zerolog.Logger

	stop chan struct{}
	done chan struct{}
	once gosync.Once
}

func (j *syncJob) run() {
	defer close(j.done)
	if j.interval <= 0 {
		<-j.stop
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			j.log.Debug().Msg("background sync submitted")
			j.q.Enqueue(j.task())
		}
	}
}

func (j *syncJob) halt() {
	j.once.Do(func() { close(j.stop) })
	<-j.done
}
