// Package gmail implements remote.Client against the Gmail API.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmail_api "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/remote"
)

const (
	// Scope is the OAuth scope needed to list, read and trash mail.
	Scope = gmail_api.GmailModifyScope

	// See https://developers.google.com/gmail/api/reference/quota
	quotaUnitsMessagesGet    = 5
	quotaUnitsMessagesList   = 5
	quotaUnitsMessagesModify = 5
	quotaUnitsMessagesTrash  = 5

	quotaUnitsPerSecond = 250
	rateLimitPerSecond  = quotaUnitsPerSecond * 0.8
	rateLimitBurst      = quotaUnitsPerSecond

	listQuery  = "-is:chat in:inbox"
	maxResults = 50
)

// Client talks to Gmail on behalf of whichever token it is handed.
type Client struct {
	limiter    *rate.Limiter
	markRead   bool
	opts       []option.ClientOption
	httpClient *http.Client
}

var _ remote.Client = (*Client)(nil)

// New creates a Gmail client. Extra options are passed to every
// underlying service (endpoint overrides in tests).
func New(markRead bool, opts ...option.ClientOption) *Client {
	return &Client{
		limiter:  rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
		markRead: markRead,
		opts:     opts,
	}
}

// WithHTTPClient routes API calls through hc, for example to use a proxy.
// The token is still attached to every request.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) service(ctx context.Context, tok *oauth2.Token) (*gmail_api.Service, error) {
	ts := oauth2.StaticTokenSource(tok)
	auth := option.WithTokenSource(ts)
	if c.httpClient != nil {
		// option.WithHTTPClient ignores token sources, so authorize the
		// client itself.
		base := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		auth = option.WithHTTPClient(oauth2.NewClient(base, ts))
	}
	opts := append([]option.ClientOption{auth}, c.opts...)
	s, err := gmail_api.NewService(ctx, opts...)
	if err != nil {
		return nil, &remote.Error{Kind: remote.KindRemote, Op: "create gmail service", Err: err}
	}
	return s, nil
}

// FetchMail lists recent inbox messages with their headers.
func (c *Client) FetchMail(ctx context.Context, tok *oauth2.Token, accountID string) ([]model.MailSummary, error) {
	s, err := c.service(ctx, tok)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.WaitN(ctx, quotaUnitsMessagesList); err != nil {
		return nil, classify("list messages", err)
	}
	list, err := s.Users.Messages.List("me").Q(listQuery).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, classify("list messages", err)
	}

	all := make([]model.MailSummary, 0, len(list.Messages))
	for _, ref := range list.Messages {
		if err := c.limiter.WaitN(ctx, quotaUnitsMessagesGet); err != nil {
			return nil, classify("get message", err)
		}
		msg, err := s.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "To", "Date").
			Context(ctx).Do()
		if err != nil {
			if isNotFound(err) {
				// The list sometimes includes messages that can no
				// longer be fetched; skip them.
				continue
			}
			return nil, classify("get message", err)
		}

		summary := summaryOf(msg)
		if c.markRead && !summary.IsRead {
			if err := c.setRead(ctx, s, msg.Id); err != nil {
				zerolog.Ctx(ctx).Debug().Err(err).Str("message", msg.Id).Msg("marking message read failed")
			}
		}
		all = append(all, summary)
	}

	zerolog.Ctx(ctx).Debug().Str("account", accountID).Int("count", len(all)).Msg("fetched mail from gmail")
	return all, nil
}

// DeleteMail moves a message to the trash. A missing message counts as
// deleted.
func (c *Client) DeleteMail(ctx context.Context, tok *oauth2.Token, messageID string) error {
	s, err := c.service(ctx, tok)
	if err != nil {
		return err
	}
	if err := c.limiter.WaitN(ctx, quotaUnitsMessagesTrash); err != nil {
		return classify("trash message", err)
	}
	_, err = s.Users.Messages.Trash("me", messageID).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return classify("trash message", err)
	}
	return nil
}

// FetchContent downloads the raw message and parses its MIME parts.
func (c *Client) FetchContent(ctx context.Context, tok *oauth2.Token, messageID string) (*model.MailContent, error) {
	s, err := c.service(ctx, tok)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.WaitN(ctx, quotaUnitsMessagesGet); err != nil {
		return nil, classify("get message", err)
	}
	msg, err := s.Users.Messages.Get("me", messageID).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, classify("get message", err)
	}
	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		return nil, &remote.Error{Kind: remote.KindRemote, Op: "decode message", Err: err}
	}

	content := &model.MailContent{MailSummary: model.MailSummary{
		ID:     msg.Id,
		IsRead: !hasLabel(msg, "UNREAD"),
	}}
	if m, err := mail.ReadMessage(bytes.NewReader(raw)); err == nil {
		content.Subject = m.Header.Get("Subject")
		content.From = parseAddress(m.Header.Get("From"))
	}
	content.TextBody, content.HTMLBody, content.Attachments = remote.ParseMIME(raw)
	return content, nil
}

func (c *Client) setRead(ctx context.Context, s *gmail_api.Service, id string) error {
	if err := c.limiter.WaitN(ctx, quotaUnitsMessagesModify); err != nil {
		return err
	}
	_, err := s.Users.Messages.Modify("me", id, &gmail_api.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	return err
}

func summaryOf(msg *gmail_api.Message) model.MailSummary {
	s := model.MailSummary{
		ID:     msg.Id,
		IsRead: !hasLabel(msg, "UNREAD"),
		Folder: "INBOX",
	}
	if msg.InternalDate > 0 {
		s.ReceivedAt = time.UnixMilli(msg.InternalDate)
	}
	if msg.Payload == nil {
		return s
	}
	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "Subject":
			s.Subject = h.Value
		case "From":
			s.From = parseAddress(h.Value)
		case "To":
			if list, err := mail.ParseAddressList(h.Value); err == nil {
				for _, a := range list {
					s.To = append(s.To, model.Address{Name: a.Name, Address: a.Address})
				}
			}
		}
	}
	return s
}

func parseAddress(v string) model.Address {
	a, err := mail.ParseAddress(v)
	if err != nil {
		return model.Address{Address: v}
	}
	return model.Address{Name: a.Name, Address: a.Address}
}

func hasLabel(msg *gmail_api.Message, label string) bool {
	for _, l := range msg.LabelIds {
		if l == label {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// classify turns a Gmail API failure into a remote.Error. Gmail reports
// per-user quota exhaustion as 403 with a rate-limit reason.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &remote.Error{Kind: remote.KindRemote, Op: op, Err: err}
	}
	if gerr.Code == http.StatusForbidden {
		for _, item := range gerr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return &remote.Error{Kind: remote.KindRateLimited, Status: gerr.Code, Op: op, Err: err}
			}
		}
	}
	return remote.FromStatus(op, gerr.Code, err)
}
