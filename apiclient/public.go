package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// PublicAPI calls endpoints that need no credential, including the
// authentication endpoints themselves.
type PublicAPI struct {
	client
}

func NewPublic(host string, opts ...Option) *PublicAPI {
	o := newOptions(opts)
	return &PublicAPI{client: client{
		host:       strings.TrimRight(host, "/"),
		httpClient: &http.Client{Transport: o.transport},
		limiter:    o.limiter,
		logger:     o.logger,
	}}
}

// Get issues an unauthenticated GET. Non-2xx responses are logged and
// returned as-is.
func (p *PublicAPI) Get(ctx context.Context, path string) (*http.Response, error) {
	return p.do(ctx, http.MethodGet, path, nil)
}

// Post issues an unauthenticated POST with a JSON body
func (p *PublicAPI) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return p.do(ctx, http.MethodPost, path, body)
}

// GetJSON decodes the response of an unauthenticated GET into out
func (p *PublicAPI) GetJSON(ctx context.Context, path string, out any) error {
	return p.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Login exchanges credentials for an access and refresh token pair
func (p *PublicAPI) Login(ctx context.Context, emailAddress, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := p.doJSON(ctx, http.MethodPost, "/login", LoginRequest{
		EmailAddress: emailAddress,
		Password:     password,
	}, &resp); err != nil {
		return nil, fmt.Errorf("PublicAPI.Login: %w", err)
	}
	return &resp, nil
}

// RefreshAccessToken exchanges a refresh token for a new access token
func (p *PublicAPI) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	var resp RefreshResponse
	if err := p.doJSON(ctx, http.MethodPost, "/refresh-token", RefreshRequest{
		RefreshToken: refreshToken,
	}, &resp); err != nil {
		return "", fmt.Errorf("PublicAPI.RefreshAccessToken: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("PublicAPI.RefreshAccessToken: response has no access_token")
	}
	return resp.AccessToken, nil
}
