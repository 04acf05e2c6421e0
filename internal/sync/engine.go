// Package sync drives background mail synchronization. The Engine builds
// queue tasks for fetching, deleting and opening mail; the Scheduler
// submits them on jittered and fixed timers.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/nhle/mailsync/internal/cache"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/queue"
	"github.com/nhle/mailsync/internal/remote"
	"github.com/nhle/mailsync/internal/retry"
)

// TokenSource returns a usable token for an account, or nil when the user
// has to sign in.
type TokenSource interface {
	Token(ctx context.Context, accountID string) (*oauth2.Token, error)
}

// History records sync runs. *store.SQLiteStore satisfies it.
type History interface {
	SetLastSync(ctx context.Context, accountID string, at time.Time) error
	StartRun(ctx context.Context, accountID, job string) (model.SyncRun, error)
	FinishRun(ctx context.Context, run model.SyncRun) error
}

// Callbacks report a task's progress to its caller. Nil funcs are skipped.
// Within one task they are called sequentially, never concurrently.
type Callbacks struct {
	SetLoading func(loading bool)
	SetError   func(err error)
	SetResult  func(accountID string, mails []model.MailSummary)
}

func (c Callbacks) loading(v bool) {
	if c.SetLoading != nil {
		c.SetLoading(v)
	}
}

func (c Callbacks) reportError(err error) {
	if c.SetError != nil {
		c.SetError(err)
	}
}

func (c Callbacks) report(accountID string, mails []model.MailSummary) {
	if c.SetResult != nil {
		c.SetResult(accountID, mails)
	}
}

// Deps are the Engine's collaborators. History and Bodies are optional.
type Deps struct {
	Tokens  TokenSource
	Mail    *cache.MailCache
	Bodies  *cache.TTLCache
	History History
	Policy  retry.Policy
	Log     zerolog.Logger
}

// Engine builds the tasks that touch the network and the caches. Its
// tasks must run on the queue; the caches they use do no locking.
type Engine struct {
	tokens  TokenSource
	mail    *cache.MailCache
	bodies  *cache.TTLCache
	history History
	policy  retry.Policy
	log     zerolog.Logger
	now     func() time.Time

	mu       gosync.Mutex
	clients  map[string]remote.Client
	lastErr  map[string]error
	lastList map[string][]model.MailSummary
}

// NewEngine creates an Engine with no registered accounts.
func NewEngine(d Deps) *Engine {
	return &Engine{
		tokens:   d.Tokens,
		mail:     d.Mail,
		bodies:   d.Bodies,
		history:  d.History,
		policy:   d.Policy,
		log:      d.Log,
		now:      time.Now,
		clients:  make(map[string]remote.Client),
		lastErr:  make(map[string]error),
		lastList: make(map[string][]model.MailSummary),
	}
}

// SetClient registers the remote client for an account. A nil client
// unregisters it.
func (e *Engine) SetClient(accountID string, c remote.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c == nil {
		delete(e.clients, accountID)
		return
	}
	e.clients[accountID] = c
}

func (e *Engine) client(accountID string) (remote.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.clients[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	return c, nil
}

// LastError returns the error of the account's most recent failed task, or
// nil if its latest task succeeded.
func (e *Engine) LastError(accountID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr[accountID]
}

// Mails returns the most recent list delivered for the account.
func (e *Engine) Mails(accountID string) []model.MailSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastList[accountID]
}

func (e *Engine) setOutcome(accountID string, mails []model.MailSummary, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr[accountID] = err
	if err == nil && mails != nil {
		e.lastList[accountID] = mails
	}
}

// Forget drops everything the engine holds for an account, including its
// cached mail list.
func (e *Engine) Forget(ctx context.Context, accountID string) error {
	e.mu.Lock()
	delete(e.clients, accountID)
	delete(e.lastErr, accountID)
	delete(e.lastList, accountID)
	e.mu.Unlock()

	if e.mail == nil {
		return nil
	}
	return e.mail.Invalidate(ctx, accountID)
}

// ForgetTask returns Forget as a queue task, so the cache write does not
// race with running jobs.
func (e *Engine) ForgetTask(accountID string) queue.Task {
	return func(ctx context.Context) error {
		return e.Forget(ctx, accountID)
	}
}

// FetchTask returns the check-job task: the mail cache is consulted first
// and the remote is only called on a miss.
func (e *Engine) FetchTask(accountID string, cb Callbacks) queue.Task {
	return e.fetchTask(accountID, model.JobCheck, true, false, cb)
}

// SyncTask returns the background-sync task, which always fetches from
// the remote and writes the result through to the cache.
func (e *Engine) SyncTask(accountID string, cb Callbacks) queue.Task {
	return e.fetchTask(accountID, model.JobSync, false, false, cb)
}

// ManualTask returns a one-off fetch that bypasses the cache and fails
// with ErrSignInRequired when no token is available.
func (e *Engine) ManualTask(accountID string, cb Callbacks) queue.Task {
	return e.fetchTask(accountID, model.JobManual, false, true, cb)
}

// RefreshTask returns the manual retry task. It invalidates the cached
// list before fetching.
func (e *Engine) RefreshTask(accountID string, cb Callbacks) queue.Task {
	fetch := e.fetchTask(accountID, model.JobRefresh, false, true, cb)
	return func(ctx context.Context) error {
		if e.mail != nil {
			if err := e.mail.Invalidate(ctx, accountID); err != nil {
				e.log.Warn().Err(err).Str("account", accountID).Msg("invalidating mail cache failed")
			}
		}
		return fetch(ctx)
	}
}

func (e *Engine) fetchTask(accountID, job string, readCache, requireToken bool, cb Callbacks) queue.Task {
	return func(ctx context.Context) error {
		log := e.log.With().Str("account", accountID).Str("job", job).Logger()
		ctx = log.WithContext(ctx)

		tok, err := e.token(ctx, accountID, requireToken)
		if err == nil && tok == nil {
			// No credential: the cycle is a no-op and the retained error stays.
			return nil
		}

		cb.loading(true)
		cb.reportError(nil)
		defer cb.loading(false)

		run := e.startRun(ctx, accountID, job)
		var mails []model.MailSummary
		if err == nil {
			mails, err = e.fetch(ctx, accountID, tok, readCache)
		}
		e.finishRun(ctx, run, len(mails), err)

		if err != nil {
			log.Error().Err(err).Msg("fetching mail failed")
			e.setOutcome(accountID, nil, err)
			cb.reportError(err)
			return err
		}
		e.setOutcome(accountID, mails, nil)

		log.Info().Int("count", len(mails)).Msg("mail checked")
		cb.report(accountID, mails)
		return nil
	}
}

// fetch returns the account's mail list, never nil on success.
func (e *Engine) fetch(ctx context.Context, accountID string, tok *oauth2.Token, readCache bool) ([]model.MailSummary, error) {
	log := zerolog.Ctx(ctx)

	client, err := e.client(accountID)
	if err != nil {
		return nil, err
	}

	if readCache && e.mail != nil {
		if cached, ok := e.mail.Get(ctx, accountID); ok {
			log.Debug().Int("count", len(cached)).Msg("mail cache hit")
			e.markSynced(ctx, accountID)
			return cached, nil
		}
	}

	mails, err := retry.Do(ctx, e.policy, func(ctx context.Context) ([]model.MailSummary, error) {
		return client.FetchMail(ctx, tok, accountID)
	})
	if err != nil {
		return nil, err
	}
	if mails == nil {
		mails = []model.MailSummary{}
	}

	if e.mail != nil {
		if err := e.mail.Set(ctx, accountID, mails); err != nil {
			log.Warn().Err(err).Msg("writing mail cache failed")
		}
	}
	e.markSynced(ctx, accountID)
	return mails, nil
}

func (e *Engine) token(ctx context.Context, accountID string, required bool) (*oauth2.Token, error) {
	tok, err := e.tokens.Token(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}
	if tok == nil {
		zerolog.Ctx(ctx).Info().Msg("no token available; sign-in required")
		if required {
			return nil, ErrSignInRequired
		}
	}
	return tok, nil
}

func (e *Engine) markSynced(ctx context.Context, accountID string) {
	if e.history == nil {
		return
	}
	if err := e.history.SetLastSync(ctx, accountID, e.now()); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("recording last sync failed")
	}
}

func (e *Engine) startRun(ctx context.Context, accountID, job string) *model.SyncRun {
	if e.history == nil {
		return nil
	}
	run, err := e.history.StartRun(ctx, accountID, job)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("recording sync run failed")
		return nil
	}
	return &run
}

func (e *Engine) finishRun(ctx context.Context, run *model.SyncRun, count int, err error) {
	if run == nil {
		return
	}
	run.MailCount = count
	if err != nil {
		run.Error = err.Error()
	}
	if ferr := e.history.FinishRun(ctx, *run); ferr != nil {
		zerolog.Ctx(ctx).Warn().Err(ferr).Msg("recording sync run failed")
	}
}

// DeleteTask returns a task that deletes a message, invalidates the
// account's cached list and reports the last known list without it.
func (e *Engine) DeleteTask(accountID, messageID string, cb Callbacks) queue.Task {
	return func(ctx context.Context) error {
		log := e.log.With().Str("account", accountID).Str("job", model.JobDelete).Str("message", messageID).Logger()
		ctx = log.WithContext(ctx)

		cb.loading(true)
		cb.reportError(nil)
		defer cb.loading(false)

		run := e.startRun(ctx, accountID, model.JobDelete)
		err := e.delete(ctx, accountID, messageID)
		e.finishRun(ctx, run, 0, err)
		if err != nil {
			log.Error().Err(err).Msg("deleting mail failed")
			e.setOutcome(accountID, nil, err)
			cb.reportError(err)
			return err
		}

		remaining := withoutMessage(e.Mails(accountID), messageID)
		e.setOutcome(accountID, remaining, nil)
		log.Info().Msg("mail deleted")
		cb.report(accountID, remaining)
		return nil
	}
}

func (e *Engine) delete(ctx context.Context, accountID, messageID string) error {
	tok, err := e.token(ctx, accountID, true)
	if err != nil {
		return err
	}
	client, err := e.client(accountID)
	if err != nil {
		return err
	}

	err = retry.Run(ctx, e.policy, func(ctx context.Context) error {
		return client.DeleteMail(ctx, tok, messageID)
	})
	if err != nil {
		return err
	}

	if e.mail != nil {
		if err := e.mail.Invalidate(ctx, accountID); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("invalidating mail cache failed")
		}
	}
	if e.bodies != nil {
		if err := e.bodies.Delete(ctx, contentKey(accountID, messageID)); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("removing cached content failed")
		}
	}
	return nil
}

// OpenTask returns a task that loads a message's content, serving it from
// the TTL cache while fresh.
func (e *Engine) OpenTask(accountID, messageID string, done func(*model.MailContent, error)) queue.Task {
	return func(ctx context.Context) error {
		log := e.log.With().Str("account", accountID).Str("job", model.JobOpen).Str("message", messageID).Logger()
		ctx = log.WithContext(ctx)

		content, err := e.open(ctx, accountID, messageID)
		if err != nil {
			log.Error().Err(err).Msg("loading mail content failed")
		}
		if done != nil {
			done(content, err)
		}
		return err
	}
}

func (e *Engine) open(ctx context.Context, accountID, messageID string) (*model.MailContent, error) {
	key := contentKey(accountID, messageID)
	if e.bodies != nil {
		var cached model.MailContent
		if e.bodies.GetInto(ctx, key, &cached) {
			return &cached, nil
		}
	}

	tok, err := e.token(ctx, accountID, true)
	if err != nil {
		return nil, err
	}
	client, err := e.client(accountID)
	if err != nil {
		return nil, err
	}

	content, err := retry.Do(ctx, e.policy, func(ctx context.Context) (*model.MailContent, error) {
		return client.FetchContent(ctx, tok, messageID)
	})
	if err != nil {
		return nil, err
	}

	if e.bodies != nil {
		if err := e.bodies.Set(ctx, key, content); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("caching mail content failed")
		}
	}
	return content, nil
}

func contentKey(accountID, messageID string) string {
	return accountID + "/" + messageID
}

func withoutMessage(mails []model.MailSummary, messageID string) []model.MailSummary {
	out := make([]model.MailSummary, 0, len(mails))
	for _, m := range mails {
		if m.ID != messageID {
			out = append(out, m)
		}
	}
	return out
}
