package credential

import (
	"errors"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

func TestTokenLifecycle(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	if _, err := s.GetToken("acct"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetToken on empty keyring: err = %v, want ErrNotFound", err)
	}

	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	in := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", Expiry: expiry}
	if err := s.SetToken("acct", in); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	got, err := s.GetToken("acct")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if got.AccessToken != "at" || got.RefreshToken != "rt" || !got.Expiry.Equal(expiry) {
		t.Errorf("GetToken = %+v", got)
	}

	if err := s.Delete("acct"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetToken("acct"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetToken after Delete: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete("acct"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestSetPassword(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))
	if err := s.SetPassword("imap1", "hunter2"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}

	tok, err := s.GetToken("imap1")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.AccessToken != "hunter2" || tok.TokenType != TokenTypePassword {
		t.Errorf("token = %+v", tok)
	}
	if !tok.Valid() {
		t.Error("password token reported invalid")
	}
}

func TestCorruptCredential(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: "token-acct", Data: []byte("not json")}})
	s := NewStore(ring)
	if _, err := s.GetToken("acct"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("GetToken on corrupt item: err = %v, want decode error", err)
	}
}
