package remote

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestNewHTTPClientUsesProxy(t *testing.T) {
	var gotHost string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(http.StatusNoContent)
	}))
	defer proxy.Close()

	u, err := url.Parse(proxy.URL)
	if err != nil {
		t.Fatal(err)
	}
	hc := NewHTTPClient(u, 5*time.Second)

	resp, err := hc.Get("http://mail.example.invalid/v1.0/me")
	if err != nil {
		t.Fatalf("Get through proxy: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204 from the proxy", resp.StatusCode)
	}
	if gotHost != "mail.example.invalid" {
		t.Errorf("proxy saw host %q", gotHost)
	}
	if hc.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", hc.Timeout)
	}
}

func TestNewHTTPClientWithoutProxy(t *testing.T) {
	hc := NewHTTPClient(nil, time.Second)
	tr, ok := hc.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport is %T", hc.Transport)
	}
	if tr == http.DefaultTransport {
		t.Error("default transport shared instead of cloned")
	}
}
