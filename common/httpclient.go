package common

import (
	"fmt"
	"net/http"
	"time"
)

// DefaultUserAgent is sent when the configuration does not name one.
const DefaultUserAgent = "studyplan-client/1.0"

// HttpClient is the transport used by the API client.
// This allows mocking or custom transport layers in testing.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
	CloseIdleConnections()
}

// HTTPError captures a non-2xx status and the response body.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// userAgentRoundTripper is a custom RoundTripper that adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

type httpClient struct {
	client *http.Client
}

// NewHttpClient wraps base with a User-Agent round tripper. A zero timeout
// leaves the client without a deadline; callers bound requests through their
// context instead.
func NewHttpClient(userAgent string, base *http.Client, timeout time.Duration) HttpClient {
	if base == nil {
		base = &http.Client{}
	}
	if base.Transport == nil {
		base.Transport = http.DefaultTransport
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	base.Transport = &userAgentRoundTripper{
		Wrapped:   base.Transport,
		UserAgent: userAgent,
	}
	base.Timeout = timeout

	return &httpClient{client: base}
}

func (h *httpClient) Do(req *http.Request) (*http.Response, error) {
	return h.client.Do(req)
}

func (h *httpClient) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}
