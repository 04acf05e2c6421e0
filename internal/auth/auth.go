// Package auth hands out usable credentials for configured accounts. It
// never starts an interactive sign-in; when one would be needed it
// reports a nil token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/remote/gmail"
)

// GraphScopes are requested for Microsoft Graph accounts.
var GraphScopes = []string{"offline_access", "https://graph.microsoft.com/Mail.ReadWrite"}

// TokenStore persists tokens per account. *credential.Store satisfies it.
type TokenStore interface {
	GetToken(accountID string) (*oauth2.Token, error)
	SetToken(accountID string, tok *oauth2.Token) error
	Delete(accountID string) error
}

// Provider returns tokens for accounts, refreshing expired OAuth tokens
// silently when the account has a client registration.
type Provider struct {
	store TokenStore
	log   zerolog.Logger

	mu      sync.Mutex
	configs map[string]*oauth2.Config
	client  *http.Client
}

// NewProvider creates a Provider. OAuth configs are registered per account
// with Register.
func NewProvider(store TokenStore, log zerolog.Logger) *Provider {
	return &Provider{
		store:   store,
		log:     log,
		configs: make(map[string]*oauth2.Config),
	}
}

// SetHTTPClient sets the client used for token refresh requests.
func (p *Provider) SetHTTPClient(hc *http.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = hc
}

// Register sets the OAuth client used to refresh accountID's tokens. A nil
// config removes it.
func (p *Provider) Register(accountID string, cfg *oauth2.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg == nil {
		delete(p.configs, accountID)
		return
	}
	p.configs[accountID] = cfg
}

// ConfigFor builds the OAuth client for an account, or nil for providers
// that do not use OAuth or accounts without a client ID.
func ConfigFor(a model.Account) *oauth2.Config {
	if a.ClientID == "" {
		return nil
	}
	switch a.Provider {
	case model.ProviderGraph:
		tenant := a.Tenant
		if tenant == "" {
			tenant = "common"
		}
		return &oauth2.Config{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			Endpoint:     endpoints.AzureAD(tenant),
			Scopes:       GraphScopes,
		}
	case model.ProviderGmail:
		return &oauth2.Config{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			Endpoint:     endpoints.Google,
			Scopes:       []string{gmail.Scope},
		}
	}
	return nil
}

// Token returns a usable token for accountID. It returns nil, nil when the
// user has to sign in again: nothing is stored, the token expired and
// cannot be refreshed, or the refresh was rejected.
func (p *Provider) Token(ctx context.Context, accountID string) (*oauth2.Token, error) {
	log := p.log.With().Str("account", accountID).Logger()

	tok, err := p.store.GetToken(accountID)
	if errors.Is(err, credential.ErrNotFound) {
		log.Debug().Msg("no stored credential; sign-in required")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential for %s: %w", accountID, err)
	}

	if tok.TokenType == credential.TokenTypePassword || tok.Valid() {
		return tok, nil
	}

	p.mu.Lock()
	cfg := p.configs[accountID]
	hc := p.client
	p.mu.Unlock()

	if cfg == nil || tok.RefreshToken == "" {
		log.Info().Msg("token expired and cannot be refreshed; sign-in required")
		return nil, nil
	}

	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	fresh, err := cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			log.Warn().Str("code", rerr.ErrorCode).Msg("token refresh rejected; sign-in required")
		} else {
			log.Warn().Err(err).Msg("token refresh failed")
		}
		return nil, nil
	}

	if err := p.store.SetToken(accountID, fresh); err != nil {
		log.Error().Err(err).Msg("saving refreshed token failed")
	}
	log.Debug().Time("expiry", fresh.Expiry).Msg("token refreshed")
	return fresh, nil
}

// SignOut forgets the account's credential and OAuth client.
func (p *Provider) SignOut(accountID string) error {
	p.Register(accountID, nil)
	if err := p.store.Delete(accountID); err != nil {
		return fmt.Errorf("signing out %s: %w", accountID, err)
	}
	return nil
}
