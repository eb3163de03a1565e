package httpclient

import (
	"net/http"
	"time"

	"github.com/ternarybob/wayfinder/internal/common"
)

// NewDefaultHTTPClient creates an HTTP client with a timeout that identifies itself
// as this service on every request
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return NewHTTPClientWithUserAgent(timeout, "")
}

// NewHTTPClientWithUserAgent creates an HTTP client that sets userAgent on requests that do
// not carry one. An empty userAgent uses "wayfinder/<version>".
func NewHTTPClientWithUserAgent(timeout time.Duration, userAgent string) *http.Client {
	if userAgent == "" {
		userAgent = "wayfinder/" + common.Version
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentTransport{
			base:      http.DefaultTransport,
			userAgent: userAgent,
		},
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", "application/json")
	}
	return t.base.RoundTrip(clone)
}
