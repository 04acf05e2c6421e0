package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/remote"
)

var testToken = &oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{
		WithBaseURL(srv.URL),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	}, opts...)
	return NewClient(opts...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchMailListsEveryFolder(t *testing.T) {
	var (
		mu      sync.Mutex
		patched []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/mailFolders", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, map[string]interface{}{
			"value": []map[string]string{
				{"id": "inbox", "displayName": "Inbox"},
				{"id": "archive", "displayName": "Archive"},
			},
		})
	})
	mux.HandleFunc("/mailFolders/inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("$top"); got != "50" {
			t.Errorf("$top = %q, want 50", got)
		}
		writeJSON(w, map[string]interface{}{
			"value": []map[string]interface{}{
				{
					"id":      "m1",
					"subject": "Hello",
					"from":    map[string]interface{}{"emailAddress": map[string]string{"name": "Ann", "address": "ann@example.com"}},
					"isRead":  false,
				},
			},
		})
	})
	mux.HandleFunc("/mailFolders/archive/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "m2", "subject": "Old", "isRead": true},
			},
		})
	})
	mux.HandleFunc("/messages/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		mu.Lock()
		patched = append(patched, strings.TrimPrefix(r.URL.Path, "/messages/"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, mux, WithMarkRead(true))
	got, err := c.FetchMail(context.Background(), testToken, "ann")
	if err != nil {
		t.Fatalf("FetchMail: %v", err)
	}

	want := []model.MailSummary{
		{ID: "m1", Subject: "Hello", From: model.Address{Name: "Ann", Address: "ann@example.com"}, Folder: "Inbox"},
		{ID: "m2", Subject: "Old", IsRead: true, Folder: "Archive"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mail mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"m1"}, patched); diff != "" {
		t.Errorf("marked read mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchMailRateLimited(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		writeJSON(w, map[string]interface{}{
			"error": map[string]string{"code": "TooManyRequests", "message": "slow down"},
		})
	}))

	_, err := c.FetchMail(context.Background(), testToken, "ann")
	if !remote.IsRateLimited(err) {
		t.Fatalf("got %v, want rate-limited error", err)
	}
}

func TestFetchMailServerErrorIsNotRetryable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.FetchMail(context.Background(), testToken, "ann")
	if err == nil || remote.IsRateLimited(err) {
		t.Fatalf("got %v, want non-retryable error", err)
	}
}

func TestDeleteMailTreatsNotFoundAsDeleted(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	if err := c.DeleteMail(context.Background(), testToken, "gone"); err != nil {
		t.Fatalf("DeleteMail: %v", err)
	}
}

func TestDeleteMailUnauthorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := c.DeleteMail(context.Background(), testToken, "m1")
	if !remote.IsAuth(err) {
		t.Fatalf("got %v, want auth error", err)
	}
}

func TestFetchContent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/m1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, map[string]interface{}{
			"id":      "m1",
			"subject": "Hello",
			"body":    map[string]string{"contentType": "html", "content": "<p>hi</p>"},
		})
	}))

	got, err := c.FetchContent(context.Background(), testToken, "m1")
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if got.HTMLBody != "<p>hi</p>" || got.TextBody != "" {
		t.Errorf("body = %+v", got)
	}
	if got.Subject != "Hello" {
		t.Errorf("subject = %q", got.Subject)
	}
}
