package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/guarzo/studyplan/common"
)

// RefreshPolicy decides what a call does when it hits 401/500 while another
// call is already refreshing.
type RefreshPolicy int

const (
	// RefreshSkip: the late call does not refresh and returns its own
	// failing response without waiting.
	RefreshSkip RefreshPolicy = iota
	// RefreshShare: the late call waits for the in-flight refresh and retries
	// with its result.
	RefreshShare
)

func (p RefreshPolicy) String() string {
	if p == RefreshShare {
		return common.RefreshPolicyShare
	}
	return common.RefreshPolicySkip
}

// ParseRefreshPolicy maps the config value onto a policy. "" is RefreshSkip.
func ParseRefreshPolicy(s string) (RefreshPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", common.RefreshPolicySkip:
		return RefreshSkip, nil
	case common.RefreshPolicyShare:
		return RefreshShare, nil
	default:
		return RefreshSkip, fmt.Errorf("unknown refresh policy %q", s)
	}
}

var errRefreshFailed = errors.New("credential refresh failed")

// refresh makes at most one refresh attempt for this call and returns the
// access token to retry with. The in-flight flag is cleared as soon as the
// attempt resolves, whatever its outcome.
func (c *client) refresh(ctx context.Context, log *slog.Logger) (string, bool) {
	if c.policy == RefreshShare {
		return c.sharedRefresh(ctx, log)
	}

	if !c.refreshing.CompareAndSwap(false, true) {
		log.Info("refresh already in progress, not retrying")
		return "", false
	}
	defer c.refreshing.Store(false)
	return c.refreshOnce(ctx, log)
}

func (c *client) sharedRefresh(ctx context.Context, log *slog.Logger) (string, bool) {
	// detached so one caller giving up does not fail the others
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		c.refreshing.Store(true)
		defer c.refreshing.Store(false)
		token, ok := c.refreshOnce(refreshCtx, log)
		if !ok {
			return "", errRefreshFailed
		}
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", false
		}
		if res.Shared {
			log.Debug("reusing shared refresh result")
		}
		return res.Val.(string), true
	case <-ctx.Done():
		log.Warn("gave up waiting for refresh", "error", ctx.Err())
		return "", false
	}
}

func (c *client) refreshOnce(ctx context.Context, log *slog.Logger) (string, bool) {
	c.count(func(s *Stats) { s.Refreshes++ })

	refreshToken := c.creds.RefreshToken()
	if refreshToken == "" {
		log.Warn("no refresh token stored, user must log in again")
		c.count(func(s *Stats) { s.RefreshFailures++ })
		return "", false
	}

	tok, err := c.authClient.RefreshToken(ctx, refreshToken)
	if err != nil || tok == nil {
		log.Warn("credential refresh failed, user must log in again", "error", err)
		c.count(func(s *Stats) { s.RefreshFailures++ })
		return "", false
	}

	if tok.AccessToken != "" {
		if err := c.creds.SetAccessToken(tok.AccessToken); err != nil {
			log.Error("failed to store refreshed access token", "error", err)
		}
	}
	if tok.RefreshToken != "" {
		if err := c.creds.SetRefreshToken(tok.RefreshToken); err != nil {
			log.Error("failed to store rotated refresh token", "error", err)
		}
	}
	log.Info("credential refresh succeeded")
	log.Debug("refreshed token", "preview", common.TokenPreview(tok.AccessToken))

	if tok.AccessToken != "" {
		return tok.AccessToken, true
	}
	// a 2xx without a token still counts as a refresh; retry with whatever is stored
	return c.creds.AccessToken(), true
}

// ---------------------------------------------------
// Default AuthClient: the backend's refresh endpoint
// ---------------------------------------------------

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken      string `json:"access_token"`
	AccessTokenCamel string `json:"accessToken"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
}

type endpointAuthClient struct {
	refreshURL string
	httpClient common.HttpClient
}

// NewEndpointAuthClient refreshes by POSTing {"refresh_token": ...} to
// refreshURL.
func NewEndpointAuthClient(refreshURL string, httpClient common.HttpClient) common.AuthClient {
	return &endpointAuthClient{
		refreshURL: refreshURL,
		httpClient: httpClient,
	}
}

func (a *endpointAuthClient) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.refreshURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute refresh request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &common.HTTPError{StatusCode: resp.StatusCode, Body: data}
	}

	var r refreshResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
	}
	if tok.AccessToken == "" {
		tok.AccessToken = r.AccessTokenCamel
	}
	if r.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tok, nil
}
