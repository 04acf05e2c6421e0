package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/pflag"
	"golang.org/x/oauth2"

	"github.com/nhle/mailsync/internal/model"
	mailsync "github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/ui/accountform"
)

// runSync fetches every enabled account once, or with no flags runs the
// scheduled jobs headless until interrupted.
func runSync(ctx context.Context, opts options, args []string) error {
	flags := pflag.NewFlagSet("sync", pflag.ContinueOnError)
	once := flags.Bool("once", false, "fetch each enabled account once and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx, s, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if !*once {
		return syncForever(ctx, s)
	}

	var errs []error
	for _, a := range s.cfg.Accounts {
		if !a.Enabled {
			continue
		}
		var count int
		cb := mailsync.Callbacks{
			SetResult: func(_ string, mails []model.MailSummary) { count = len(mails) },
		}
		if err := s.queue.Do(ctx, s.engine.ManualTask(a.ID, cb)); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", a.ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", a.ID, err))
			continue
		}
		fmt.Printf("%s: %d messages\n", a.ID, count)
	}
	return errors.Join(errs...)
}

// syncForever runs the check and sync jobs, logging their outcomes.
func syncForever(ctx context.Context, s *services) error {
	for _, a := range s.cfg.Accounts {
		if !a.Enabled {
			continue
		}
		log := s.log.With().Str("account", a.ID).Logger()
		s.scheduler.Start(a.ID, mailsync.Callbacks{
			SetError: func(err error) {
				if err != nil {
					log.Warn().Err(err).Msg("sync failed")
				}
			},
			SetResult: func(_ string, mails []model.MailSummary) {
				log.Info().Int("count", len(mails)).Msg("mailbox synced")
			},
		})
	}
	fmt.Fprintln(os.Stderr, "syncing; press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

// runAccountAdd asks for a new account, stores its credential in the
// keyring and appends it to the config file.
func runAccountAdd(ctx context.Context, opts options) error {
	ctx, s, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	form := accountform.New(s.cfg.Accounts)
	if err := form.Run(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, "aborted")
			return nil
		}
		return err
	}

	acct := form.Account()
	if acct.Provider == model.ProviderIMAP {
		err = s.creds.SetPassword(acct.ID, form.Secret())
	} else {
		// An empty access token forces a refresh on first use.
		err = s.creds.SetToken(acct.ID, &oauth2.Token{
			RefreshToken: form.Secret(),
			Expiry:       time.Unix(1, 0),
		})
	}
	if err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	s.cfg.Accounts = append(s.cfg.Accounts, acct)
	s.cfg.Normalize()
	if err := model.SaveConfig(s.cfgPath, s.cfg); err != nil {
		return err
	}
	s.log.Info().Str("account", acct.ID).Str("provider", string(acct.Provider)).Msg("account added")
	fmt.Printf("added %s (%s)\n", acct.ID, acct.Provider)
	return nil
}

// runAccountRemove deletes the account's credential, cached mail and sync
// history, then drops it from the config file.
func runAccountRemove(ctx context.Context, opts options, id string) error {
	ctx, s, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, ok := s.cfg.Account(id); !ok {
		return fmt.Errorf("%w: %s", mailsync.ErrUnknownAccount, id)
	}

	if err := s.tokens.SignOut(id); err != nil {
		return err
	}
	if err := s.queue.Do(ctx, s.engine.ForgetTask(id)); err != nil {
		return fmt.Errorf("clearing cached mail: %w", err)
	}
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}

	s.cfg.Accounts = slices.DeleteFunc(s.cfg.Accounts, func(a model.Account) bool { return a.ID == id })
	if err := model.SaveConfig(s.cfgPath, s.cfg); err != nil {
		return err
	}
	s.log.Info().Str("account", id).Msg("account removed")
	fmt.Printf("removed %s\n", id)
	return nil
}
