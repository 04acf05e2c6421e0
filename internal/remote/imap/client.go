// Package imap implements remote.Client over IMAP. The "token" handed to
// it carries the account's app password in AccessToken.
package imap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/remote"
)

// fetchLimit is the number of most recent INBOX messages listed.
const fetchLimit = 50

// trashFolders are tried in order when deleting; the first that accepts
// the MOVE wins.
var trashFolders = []string{"Trash", "[Gmail]/Trash", "Deleted Items", "INBOX.Trash"}

// Client wraps go-imap v2 for one IMAP account.
type Client struct {
	host     string
	port     string
	username string
	tls      bool
	markRead bool
}

var _ remote.Client = (*Client)(nil)

// NewClient creates a new IMAP client configuration.
func NewClient(host, port, username string, tls, markRead bool) *Client {
	return &Client{
		host:     host,
		port:     port,
		username: username,
		tls:      tls,
		markRead: markRead,
	}
}

// connect establishes a connection, authenticates and selects INBOX.
// The caller is responsible for logging out.
func (c *Client) connect(ctx context.Context, tok *oauth2.Token) (*imapclient.Client, error) {
	addr := net.JoinHostPort(c.host, c.port)

	var (
		client *imapclient.Client
		err    error
	)
	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, &remote.Error{Kind: remote.KindRemote, Op: "connect", Err: fmt.Errorf("connecting to IMAP %s: %w", addr, err)}
	}

	// Commands below block on the network; bound them by ctx.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if err := client.Login(c.username, tok.AccessToken).Wait(); err != nil {
		_ = client.Logout().Wait()
		if k := classify("login", err); remote.IsRateLimited(k) {
			return nil, k
		}
		return nil, &remote.Error{
			Kind: remote.KindAuth,
			Op:   "login",
			Err:  fmt.Errorf("authentication failed for %s: %w", c.username, err),
		}
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, classify("select INBOX", err)
	}

	return client, nil
}

// FetchMail lists the most recent INBOX messages.
func (c *Client) FetchMail(ctx context.Context, tok *oauth2.Token, accountID string) ([]model.MailSummary, error) {
	client, err := c.connect(ctx, tok)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, classify("search", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return []model.MailSummary{}, nil
	}
	if len(uids) > fetchLimit {
		uids = uids[len(uids)-fetchLimit:]
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	})
	defer fetchCmd.Close()

	var (
		mails  []model.MailSummary
		unseen []imap.UID
	)
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		s := summaryFromBuffer(buf)
		if !s.IsRead {
			unseen = append(unseen, buf.UID)
		}
		mails = append(mails, s)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, classify("fetch envelopes", err)
	}

	if c.markRead && len(unseen) > 0 {
		err := client.Store(imap.UIDSetNum(unseen...), &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagSeen},
		}, nil).Close()
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("account", accountID).Msg("marking messages seen failed")
		}
	}

	// Newest first, like the other providers.
	for i, j := 0, len(mails)-1; i < j; i, j = i+1, j-1 {
		mails[i], mails[j] = mails[j], mails[i]
	}
	return mails, nil
}

// DeleteMail moves the message to a trash folder, falling back to
// flagging it deleted and expunging. Deleting an absent UID succeeds.
func (c *Client) DeleteMail(ctx context.Context, tok *oauth2.Token, messageID string) error {
	uid, err := parseUID(messageID)
	if err != nil {
		return err
	}

	client, err := c.connect(ctx, tok)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	uidSet := imap.UIDSetNum(uid)
	for _, folder := range trashFolders {
		if _, err := client.Move(uidSet, folder).Wait(); err == nil {
			return nil
		}
	}

	if err := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil).Close(); err != nil {
		return classify("flag deleted", err)
	}
	if err := client.Expunge().Close(); err != nil {
		return classify("expunge", err)
	}
	return nil
}

// FetchContent fetches and parses the full message.
func (c *Client) FetchContent(ctx context.Context, tok *oauth2.Token, messageID string) (*model.MailContent, error) {
	uid, err := parseUID(messageID)
	if err != nil {
		return nil, err
	}

	client, err := c.connect(ctx, tok)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, &remote.Error{Kind: remote.KindNotFound, Op: "fetch message", Err: fmt.Errorf("message UID %d not found", uid)}
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, classify("collect message", err)
	}

	content := &model.MailContent{MailSummary: summaryFromBuffer(buf)}
	if raw := buf.FindBodySection(bodySection); raw != nil {
		content.TextBody, content.HTMLBody, content.Attachments = remote.ParseMIME(raw)
	}

	if err := fetchCmd.Close(); err != nil {
		return content, classify("fetch message", err)
	}
	return content, nil
}

func parseUID(messageID string) (imap.UID, error) {
	n, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil || n == 0 {
		return 0, &remote.Error{Kind: remote.KindNotFound, Op: "parse message id", Err: fmt.Errorf("invalid IMAP UID %q", messageID)}
	}
	return imap.UID(n), nil
}

// summaryFromBuffer extracts a MailSummary from a FetchMessageBuffer.
func summaryFromBuffer(buf *imapclient.FetchMessageBuffer) model.MailSummary {
	s := model.MailSummary{
		ID:     strconv.FormatUint(uint64(buf.UID), 10),
		Folder: "INBOX",
	}

	if env := buf.Envelope; env != nil {
		s.Subject = env.Subject
		s.ReceivedAt = env.Date
		if len(env.From) > 0 {
			s.From = model.Address{Name: env.From[0].Name, Address: env.From[0].Addr()}
		}
		for _, to := range env.To {
			s.To = append(s.To, model.Address{Name: to.Name, Address: to.Addr()})
		}
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			s.IsRead = true
		}
	}

	return s
}

// classify maps IMAP status responses onto remote error kinds. Servers
// signal throttling with the RFC 5530 LIMIT or UNAVAILABLE codes.
func classify(op string, err error) error {
	var ierr *imap.Error
	if errors.As(err, &ierr) {
		switch ierr.Code {
		case imap.ResponseCodeLimit, imap.ResponseCodeUnavailable:
			return &remote.Error{Kind: remote.KindRateLimited, Op: op, Err: err}
		case imap.ResponseCodeAuthenticationFailed, imap.ResponseCodeAuthorizationFailed, imap.ResponseCodeExpired:
			return &remote.Error{Kind: remote.KindAuth, Op: op, Err: err}
		case imap.ResponseCodeNonExistent:
			return &remote.Error{Kind: remote.KindNotFound, Op: op, Err: err}
		}
	}
	return &remote.Error{Kind: remote.KindRemote, Op: op, Err: err}
}
