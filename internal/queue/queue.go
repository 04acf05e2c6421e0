// Package queue provides the process-wide serialization point for mail
// operations. Every network call and cache mutation runs as a Task on a
// single Queue so that scheduled checks, background syncs and user
// actions never interleave.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is a deferred operation executed by the Queue.
type Task func(ctx context.Context) error

// DefaultTaskTimeout bounds a single task when no timeout is configured.
const DefaultTaskTimeout = 2 * time.Minute

// item is a pending task plus an optional channel for its outcome.
type item struct {
	task   Task
	result chan error
}

// Queue executes tasks one at a time in submission order.
//
// The pending list and the processing flag are owned by a single
// dispatcher goroutine; Enqueue only hands tasks to it over a channel.
type Queue struct {
	in      chan item
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once

	log     zerolog.Logger
	timeout time.Duration
	base    context.Context
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for task failures.
func WithLogger(log zerolog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithTaskTimeout bounds every task's context. Zero or negative disables
// the bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) { q.timeout = d }
}

// WithContext sets the parent context for task contexts. Values on it,
// such as the logger, are visible to tasks. Cancelling it does not stop
// the Queue.
func WithContext(ctx context.Context) Option {
	return func(q *Queue) { q.base = context.WithoutCancel(ctx) }
}

// New creates a Queue and starts its dispatcher.
func New(opts ...Option) *Queue {
	q := &Queue{
		in:      make(chan item),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     zerolog.Nop(),
		timeout: DefaultTaskTimeout,
		base:    context.Background(),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.dispatch()
	return q
}

// Enqueue appends task to the queue. If nothing is running, the task
// starts immediately. A task's error is logged and never returned here.
func (q *Queue) Enqueue(task Task) {
	if task == nil {
		return
	}
	select {
	case q.in <- item{task: task}:
	case <-q.stop:
		q.log.Warn().Msg("queue closed; dropping task")
	}
}

// Do enqueues task and waits for it to finish, returning its error. The
// task keeps its place in the FIFO order; if ctx ends first Do returns
// ctx.Err() and the task still runs when its turn comes.
func (q *Queue) Do(ctx context.Context, task Task) error {
	result := make(chan error, 1)
	select {
	case q.in <- item{task: task, result: result}:
	case <-q.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the dispatcher. Pending tasks are dropped and their Do
// callers get ErrClosed; a running task is allowed to finish and Close
// waits for it.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.stop) })
	<-q.stopped
}

// dispatch owns the pending FIFO. It starts the head task whenever
// nothing is running.
func (q *Queue) dispatch() {
	defer close(q.stopped)

	var (
		pending    []item
		processing bool
		done       = make(chan struct{})
	)

	for {
		if !processing && len(pending) > 0 {
			next := pending[0]
			pending[0] = item{}
			pending = pending[1:]
			processing = true
			go func() {
				q.execute(next)
				done <- struct{}{}
			}()
		}

		select {
		case it := <-q.in:
			pending = append(pending, it)
		case <-done:
			processing = false
		case <-q.stop:
			if len(pending) > 0 {
				q.log.Warn().Int("dropped", len(pending)).Msg("queue closed with pending tasks")
			}
			for _, it := range pending {
				if it.result != nil {
					it.result <- ErrClosed
				}
			}
			if processing {
				<-done
			}
			return
		}
	}
}

// execute runs one task, converting a panic into an error.
func (q *Queue) execute(it item) {
	ctx := q.base
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				q.log.Error().Str("stack", string(debug.Stack())).Msgf("task panic: %v", r)
				err = fmt.Errorf("task panic: %v", r)
			}
		}()
		return it.task(ctx)
	}()

	if err != nil {
		q.log.Error().Err(err).Msg("error processing task")
	}
	if it.result != nil {
		it.result <- err
	}
}
