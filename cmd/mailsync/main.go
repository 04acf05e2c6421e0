// Command mailsync is a terminal mail client that keeps several accounts
// synchronized in the background.
//
// Usage:
//
//	mailsync [flags]                   run the interactive mailbox
//	mailsync [flags] sync --once       fetch every enabled account once
//	mailsync [flags] account add       add an account interactively
//	mailsync [flags] account remove ID remove an account and its data
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mailsync/internal/app"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mailsync:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	flags := pflag.NewFlagSet("mailsync", pflag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/mailsync/config.yaml)")
	flags.StringVar(&opts.dbPath, "db", "", "database file (default next to the config file)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level from the config")
	flags.SetInterspersed(false)
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest := flags.Args()
	if len(rest) == 0 {
		return runUI(ctx, opts)
	}

	switch rest[0] {
	case "sync":
		return runSync(ctx, opts, rest[1:])
	case "account":
		if len(rest) < 2 {
			return errors.New("usage: mailsync account add | remove ID")
		}
		switch rest[1] {
		case "add":
			return runAccountAdd(ctx, opts)
		case "remove", "rm":
			if len(rest) != 3 {
				return errors.New("usage: mailsync account remove ID")
			}
			return runAccountRemove(ctx, opts, rest[2])
		}
		return fmt.Errorf("unknown account command %q", rest[1])
	}
	return fmt.Errorf("unknown command %q", rest[0])
}

// runUI runs the mailbox until the user quits or a signal arrives.
func runUI(ctx context.Context, opts options) error {
	ctx, s, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	bridge := app.NewBridge()
	p := tea.NewProgram(
		app.New(s.cfg, s.scheduler, s.store, bridge),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	bridge.Attach(p.Send)

	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("signal received; shutting down")
			p.Quit()
		case <-done:
		}
		return nil
	})

	err = g.Wait()
	s.log.Info().Err(err).Msg("mailbox closed")
	return err
}
