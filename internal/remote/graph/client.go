// Package graph implements remote.Client against the Microsoft Graph
// mail REST API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/remote"
)

// DefaultBaseURL is the Graph endpoint for the signed-in user.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0/me"

const (
	// pageSize is the number of messages listed per folder.
	pageSize = 50

	// Graph allows 10,000 requests per 10 minutes per mailbox; stay
	// well under that.
	requestsPerSecond = 10
	requestBurst      = 10
)

// Client is a thin HTTP client for the Graph mail endpoints. It does not
// retry; rate-limit responses are returned as remote.KindRateLimited
// errors for the caller's retry policy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	markRead   bool
}

var _ remote.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMarkRead marks unread messages as read after listing them.
func WithMarkRead(v bool) Option {
	return func(c *Client) { c.markRead = v }
}

// WithLimiter replaces the request pacer.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a Graph client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(requestsPerSecond, requestBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchMail lists every mail folder and the most recent messages in each.
func (c *Client) FetchMail(
	ctx context.Context,
	tok *oauth2.Token,
	accountID string,
) ([]model.MailSummary, error) {
	log := zerolog.Ctx(ctx).With().Str("account", accountID).Logger()

	var folders folderPage
	if err := c.do(ctx, tok, "list folders", http.MethodGet, "/mailFolders", nil, &folders); err != nil {
		return nil, err
	}

	all := []model.MailSummary{}
	for _, f := range folders.Value {
		q := url.Values{}
		q.Set("$top", fmt.Sprint(pageSize))
		q.Set("$select", "id,subject,from,toRecipients,isRead,receivedDateTime")
		path := "/mailFolders/" + url.PathEscape(f.ID) + "/messages?" + q.Encode()

		var page messagePage
		if err := c.do(ctx, tok, "list messages", http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}

		for _, m := range page.Value {
			if c.markRead && !m.IsRead {
				if err := c.setRead(ctx, tok, m.ID); err != nil {
					log.Debug().Err(err).Str("message", m.ID).Msg("marking message read failed")
				}
			}
			all = append(all, m.summary(f.DisplayName))
		}
	}

	log.Debug().Int("count", len(all)).Int("folders", len(folders.Value)).Msg("fetched mail from graph")
	return all, nil
}

// DeleteMail deletes a message. A 404 means it is already gone.
func (c *Client) DeleteMail(ctx context.Context, tok *oauth2.Token, messageID string) error {
	err := c.do(ctx, tok, "delete message", http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
	if remote.IsNotFound(err) {
		return nil
	}
	return err
}

// FetchContent retrieves a single message with its body.
func (c *Client) FetchContent(
	ctx context.Context,
	tok *oauth2.Token,
	messageID string,
) (*model.MailContent, error) {
	var m message
	if err := c.do(ctx, tok, "get message", http.MethodGet, "/messages/"+url.PathEscape(messageID), nil, &m); err != nil {
		return nil, err
	}
	content := &model.MailContent{MailSummary: m.summary("")}
	if strings.EqualFold(m.Body.ContentType, "html") {
		content.HTMLBody = m.Body.Content
	} else {
		content.TextBody = m.Body.Content
	}
	return content, nil
}

func (c *Client) setRead(ctx context.Context, tok *oauth2.Token, messageID string) error {
	body := map[string]bool{"isRead": true}
	return c.do(ctx, tok, "mark read", http.MethodPatch, "/messages/"+url.PathEscape(messageID), body, nil)
}

// do builds and sends one request, classifying non-2xx responses.
func (c *Client) do(
	ctx context.Context,
	tok *oauth2.Token,
	op string,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &remote.Error{Kind: remote.KindRemote, Op: op, Err: err}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &remote.Error{
			Kind: remote.KindRemote,
			Op:   op,
			Err:  fmt.Errorf("executing request %s %s: %w", method, path, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge errorResponse
		var cause error
		if json.Unmarshal(respBody, &ge) == nil && ge.Error.Code != "" {
			cause = fmt.Errorf("%s: %s", ge.Error.Code, ge.Error.Message)
		}
		return remote.FromStatus(op, resp.StatusCode, cause)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
	}
	return nil
}
