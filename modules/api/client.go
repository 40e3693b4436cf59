package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/guarzo/studyplan/common"
	"github.com/guarzo/studyplan/common/model"
)

// Messages carried by synthetic envelopes.
const (
	MsgMissingBaseURL = "API URL missing"
	MsgConnectFailed  = "failed to connect to the API"
)

// Client performs authenticated calls against the study plan API. No method
// returns an error: every outcome, including transport failures, is an
// envelope the caller branches on.
type Client interface {
	Do(ctx context.Context, req Request) model.Envelope
	Get(ctx context.Context, path string, opts ...RequestOption) model.Envelope
	Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) model.Envelope
	Put(ctx context.Context, path string, body interface{}, opts ...RequestOption) model.Envelope
	Delete(ctx context.Context, path string, opts ...RequestOption) model.Envelope
	// Download posts body and interprets a successful response as a file.
	Download(ctx context.Context, path string, body interface{}, opts ...RequestOption) model.Envelope

	// Refreshing reports whether a credential refresh is in flight.
	Refreshing() bool
	Stats() Stats
}

// Request describes one call.
type Request struct {
	Method string
	Path   string
	// Body is serialized to JSON. []byte and json.RawMessage are sent as-is.
	Body   interface{}
	Mode   model.ResponseMode
	Header http.Header
}

// RequestOption adjusts a Request built by the method helpers.
type RequestOption func(*Request)

// WithHeader adds a caller header. Caller headers win over the defaults.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Set(key, value)
	}
}

// WithMode overrides the response mode.
func WithMode(mode model.ResponseMode) RequestOption {
	return func(r *Request) {
		r.Mode = mode
	}
}

// Stats are per-client counters.
type Stats struct {
	Calls           int64
	Successes       int64
	Failures        int64
	TransportErrors int64
	Refreshes       int64
	RefreshFailures int64
	Retries         int64
}

type client struct {
	baseURL    string
	httpClient common.HttpClient
	creds      *common.Credentials
	authClient common.AuthClient
	policy     RefreshPolicy
	logger     *slog.Logger

	refreshing atomic.Bool
	group      singleflight.Group

	statsMu sync.Mutex
	stats   Stats
}

// ClientOption configures NewClient.
type ClientOption func(*client)

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *client) {
		c.logger = common.LoggerOrDefault(l)
	}
}

// WithRefreshPolicy selects how concurrent authorization failures share a
// refresh. The default is RefreshSkip.
func WithRefreshPolicy(p RefreshPolicy) ClientOption {
	return func(c *client) {
		c.policy = p
	}
}

// NewClient creates a Client for baseURL. A nil authClient refreshes through
// POST <baseURL>/auth/refresh on the same transport.
func NewClient(baseURL string, httpClient common.HttpClient, creds *common.Credentials, authClient common.AuthClient, opts ...ClientOption) Client {
	c := &client{
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: httpClient,
		creds:      creds,
		authClient: authClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "api")
	if c.authClient == nil {
		c.authClient = NewEndpointAuthClient(BuildURL(c.baseURL, common.DefaultRefreshPath), httpClient)
	}
	return c
}

// NewClientFromConfig wires a Client from configuration.
func NewClientFromConfig(cfg *common.Config, httpClient common.HttpClient, creds *common.Credentials, logger *slog.Logger) (Client, error) {
	policy, err := ParseRefreshPolicy(cfg.RefreshPolicy)
	if err != nil {
		return nil, err
	}
	var auth common.AuthClient
	if cfg.APIURL != "" {
		auth = NewEndpointAuthClient(BuildURL(cfg.APIURL, cfg.RefreshPath), httpClient)
	}
	return NewClient(cfg.APIURL, httpClient, creds, auth,
		WithLogger(logger),
		WithRefreshPolicy(policy),
	), nil
}

// ---------------------------------------------------
// Implementation of Client interface
// ---------------------------------------------------

func (c *client) Get(ctx context.Context, path string, opts ...RequestOption) model.Envelope {
	return c.Do(ctx, newRequest(http.MethodGet, path, nil, opts))
}

func (c *client) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) model.Envelope {
	return c.Do(ctx, newRequest(http.MethodPost, path, body, opts))
}

func (c *client) Put(ctx context.Context, path string, body interface{}, opts ...RequestOption) model.Envelope {
	return c.Do(ctx, newRequest(http.MethodPut, path, body, opts))
}

func (c *client) Delete(ctx context.Context, path string, opts ...RequestOption) model.Envelope {
	return c.Do(ctx, newRequest(http.MethodDelete, path, nil, opts))
}

func (c *client) Download(ctx context.Context, path string, body interface{}, opts ...RequestOption) model.Envelope {
	opts = append([]RequestOption{WithMode(model.ModeBinary)}, opts...)
	return c.Do(ctx, newRequest(http.MethodPost, path, body, opts))
}

func (c *client) Refreshing() bool {
	return c.refreshing.Load()
}

func (c *client) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Do is the core method that performs the call, refreshing and retrying once
// on 401/500.
func (c *client) Do(ctx context.Context, req Request) model.Envelope {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	log := c.logger.With(
		"request_id", uuid.NewString(),
		"method", req.Method,
		"path", req.Path,
	)
	c.count(func(s *Stats) { s.Calls++ })

	if c.baseURL == "" {
		log.Error("no API base URL configured")
		c.count(func(s *Stats) { s.Failures++ })
		return model.Envelope{
			OK:     false,
			Status: http.StatusInternalServerError,
			Data:   model.FallbackPayload(MsgMissingBaseURL),
		}
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		log.Error("failed to encode request body", "error", err)
		c.count(func(s *Stats) { s.Failures++ })
		return model.Envelope{Status: 0, Data: model.FallbackPayload(err.Error())}
	}

	urlStr := BuildURL(c.baseURL, req.Path)
	header := buildHeader(req.Header, c.creds.AccessToken())

	resp, err := c.send(ctx, req.Method, urlStr, header, body)
	if err != nil {
		return c.transportFailure(log, err)
	}

	if needsRefresh(resp.StatusCode) {
		log.Warn("request failed, attempting credential refresh", "status", resp.StatusCode)
		if token, ok := c.refresh(ctx, log); ok {
			drain(resp)

			retryHeader := header.Clone()
			if token != "" {
				retryHeader.Set("Authorization", "Bearer "+token)
			}
			c.count(func(s *Stats) { s.Retries++ })
			resp, err = c.send(ctx, req.Method, urlStr, retryHeader, body)
			if err != nil {
				return c.transportFailure(log, err)
			}
			log.Info("retried request after refresh", "status", resp.StatusCode)
		}
	}
	defer resp.Body.Close()

	env, err := interpret(resp, req.Mode)
	if err != nil {
		return c.transportFailure(log, err)
	}

	if env.OK {
		c.count(func(s *Stats) { s.Successes++ })
		log.Debug("request completed", "status", env.Status)
	} else {
		c.count(func(s *Stats) { s.Failures++ })
		log.Info("request returned failure status", "status", env.Status)
	}
	return env
}

// send executes the low-level HTTP request.
func (c *client) send(ctx context.Context, method, urlStr string, header http.Header, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, err
	}
	req.Header = header.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func (c *client) transportFailure(log *slog.Logger, err error) model.Envelope {
	log.Error("connection to API failed", "error", err)
	c.count(func(s *Stats) {
		s.TransportErrors++
		s.Failures++
	})
	return model.Envelope{
		OK:     false,
		Status: 0,
		Data:   model.FallbackPayload(MsgConnectFailed),
	}
}

func (c *client) count(f func(*Stats)) {
	c.statsMu.Lock()
	f(&c.stats)
	c.statsMu.Unlock()
}

func newRequest(method, path string, body interface{}, opts []RequestOption) Request {
	r := Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// BuildURL joins base and path with exactly one slash between them.
func BuildURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// buildHeader sets the JSON content type and bearer token, then merges the
// caller's headers over them.
func buildHeader(caller http.Header, accessToken string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	if accessToken != "" {
		h.Set("Authorization", "Bearer "+accessToken)
	}
	for k, vs := range caller {
		h.Del(k)
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		return data, nil
	}
}

func needsRefresh(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusInternalServerError
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
