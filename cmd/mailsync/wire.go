package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/auth"
	"github.com/nhle/mailsync/internal/cache"
	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/queue"
	"github.com/nhle/mailsync/internal/remote"
	"github.com/nhle/mailsync/internal/remote/gmail"
	"github.com/nhle/mailsync/internal/remote/graph"
	"github.com/nhle/mailsync/internal/remote/imap"
	"github.com/nhle/mailsync/internal/retry"
	"github.com/nhle/mailsync/internal/store"
	mailsync "github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/theme"
)

// options are the global command-line settings.
type options struct {
	configPath string
	dbPath     string
	logLevel   string
}

// services is the wired application.
type services struct {
	cfg        *model.AppConfig
	cfgPath    string
	log        zerolog.Logger
	logFile    *os.File
	store      *store.SQLiteStore
	creds      *credential.Store
	httpClient *http.Client
	tokens     *auth.Provider
	queue      *queue.Queue
	mail       *cache.MailCache
	bodies     *cache.TTLCache
	engine     *mailsync.Engine
	scheduler  *mailsync.Scheduler
}

// setup loads the config and builds every component. The returned ctx
// carries the logger.
func setup(ctx context.Context, opts options) (context.Context, *services, error) {
	s := &services{cfgPath: opts.configPath}
	if s.cfgPath == "" {
		s.cfgPath = model.DefaultConfigPath()
	}
	dir := filepath.Dir(s.cfgPath)

	// The config's own warnings go to stderr until the log file is known.
	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg, err := model.LoadConfig(boot.WithContext(ctx), s.cfgPath)
	if err != nil {
		return ctx, nil, err
	}
	s.cfg = cfg
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	if err := s.openLog(dir); err != nil {
		return ctx, nil, err
	}
	ctx = s.log.WithContext(ctx)

	theme.Apply(cfg.Display)

	dbPath := opts.dbPath
	if dbPath == "" {
		dbPath = filepath.Join(dir, "mailsync.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		s.Close()
		return ctx, nil, fmt.Errorf("creating data directory: %w", err)
	}
	if s.store, err = store.NewSQLiteStore(dbPath); err != nil {
		s.Close()
		return ctx, nil, err
	}

	if s.creds, err = credential.Open(dir); err != nil {
		s.Close()
		return ctx, nil, err
	}
	s.httpClient = remote.NewHTTPClient(cfg.Network.Proxy(), 30*time.Second)
	s.tokens = auth.NewProvider(s.creds, s.log.With().Str("component", "auth").Logger())
	s.tokens.SetHTTPClient(s.httpClient)

	s.queue = queue.New(
		queue.WithLogger(s.log.With().Str("component", "queue").Logger()),
		queue.WithTaskTimeout(cfg.Sync.TaskTimeout()),
		queue.WithContext(ctx),
	)
	s.mail = cache.NewMailCache(s.store)
	s.bodies = cache.NewTTLCache(s.store, cache.WithTTL(cfg.Cache.TTL()))
	s.engine = mailsync.NewEngine(mailsync.Deps{
		Tokens:  s.tokens,
		Mail:    s.mail,
		Bodies:  s.bodies,
		History: s.store,
		Policy: retry.Policy{
			MaxRetries: cfg.Sync.MaxRetries,
			BaseDelay:  cfg.Sync.RetryDelay(),
		},
		Log: s.log.With().Str("component", "engine").Logger(),
	})
	for _, a := range cfg.Accounts {
		s.register(a)
	}
	s.scheduler = mailsync.NewScheduler(
		s.queue,
		s.engine,
		mailsync.SchedulerConfigFrom(cfg.Sync),
		s.log.With().Str("component", "scheduler").Logger(),
	)

	return ctx, s, nil
}

func (s *services) openLog(dir string) error {
	level, err := zerolog.ParseLevel(s.cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", s.cfg.Log.Level, err)
	}

	path := s.cfg.Log.File
	if path == "" {
		path = filepath.Join(dir, "mailsync.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	s.logFile = f
	s.log = zerolog.New(f).Level(level).With().Timestamp().Logger()
	return nil
}

// register wires an account's remote client and OAuth refresh config.
func (s *services) register(a model.Account) {
	s.tokens.Register(a.ID, auth.ConfigFor(a))
	s.engine.SetClient(a.ID, newRemote(a, s.httpClient))
}

// newRemote picks the client implementation for the account's provider.
// IMAP dials the server directly; the proxy only applies to HTTP APIs.
func newRemote(a model.Account, hc *http.Client) remote.Client {
	switch a.Provider {
	case model.ProviderGmail:
		return gmail.New(a.MarkRead).WithHTTPClient(hc)
	case model.ProviderIMAP:
		return imap.NewClient(a.Host, a.Port, a.Username, a.TLS, a.MarkRead)
	default:
		return graph.NewClient(graph.WithMarkRead(a.MarkRead), graph.WithHTTPClient(hc))
	}
}

// Close stops the jobs and releases resources in dependency order.
func (s *services) Close() {
	if s.scheduler != nil {
		s.scheduler.StopAll()
	}
	if s.queue != nil {
		s.queue.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing store")
		}
	}
	if s.logFile != nil {
		s.logFile.Close()
	}
}
