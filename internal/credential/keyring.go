// Package credential keeps account tokens and passwords in the system
// keyring.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

const serviceName = "mailsync"

// TokenTypePassword marks a stored IMAP app password.
const TokenTypePassword = "password"

// ErrNotFound is returned when no credential is stored for an account.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes account credentials.
type Store struct {
	ring keyring.Keyring
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Open returns a Store backed by the platform keyring, falling back to an
// encrypted file under dir.
func Open(dir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("mailsync-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewStore(ring), nil
}

func tokenKey(accountID string) string {
	return "token-" + accountID
}

// GetToken returns the stored token for accountID, or ErrNotFound.
func (s *Store) GetToken(accountID string) (*oauth2.Token, error) {
	item, err := s.ring.Get(tokenKey(accountID))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", accountID, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(item.Data, &tok); err != nil {
		return nil, fmt.Errorf("decoding credential %q: %w", accountID, err)
	}
	return &tok, nil
}

// SetToken stores tok for accountID, replacing any previous credential.
func (s *Store) SetToken(accountID string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding credential %q: %w", accountID, err)
	}

	err = s.ring.Set(keyring.Item{
		Key:   tokenKey(accountID),
		Data:  data,
		Label: "mailsync " + accountID,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", accountID, err)
	}
	return nil
}

// SetPassword stores an IMAP password as a token that never expires.
func (s *Store) SetPassword(accountID, password string) error {
	return s.SetToken(accountID, &oauth2.Token{
		AccessToken: password,
		TokenType:   TokenTypePassword,
	})
}

// Delete removes the credential for accountID. A missing credential is not
// an error.
func (s *Store) Delete(accountID string) error {
	err := s.ring.Remove(tokenKey(accountID))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", accountID, err)
	}
	return nil
}
