package remote

import (
	"net/http"
	"net/url"
	"time"
)

// NewHTTPClient returns the client used for API and token requests. A nil
// proxy keeps the HTTP_PROXY/HTTPS_PROXY environment behavior.
func NewHTTPClient(proxy *url.URL, timeout time.Duration) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Transport: t, Timeout: timeout}
}
