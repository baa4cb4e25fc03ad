package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// ProtectedAPI calls endpoints that require a bearer access token. Every
// request asks source for a token, so an expired access token is refreshed
// before the request leaves.
type ProtectedAPI struct {
	client
}

func NewProtected(host string, source oauth2.TokenSource, opts ...Option) *ProtectedAPI {
	o := newOptions(opts)
	return &ProtectedAPI{client: client{
		host: strings.TrimRight(host, "/"),
		httpClient: &http.Client{Transport: &oauth2.Transport{
			Source: source,
			Base:   o.transport,
		}},
		limiter: o.limiter,
		logger:  o.logger,
	}}
}

// Get issues an authenticated GET. Non-2xx responses are logged and returned
// as-is.
func (p *ProtectedAPI) Get(ctx context.Context, path string) (*http.Response, error) {
	return p.do(ctx, http.MethodGet, path, nil)
}

func (p *ProtectedAPI) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return p.do(ctx, http.MethodPost, path, body)
}

func (p *ProtectedAPI) Put(ctx context.Context, path string, body any) (*http.Response, error) {
	return p.do(ctx, http.MethodPut, path, body)
}

// GetJSON decodes an authenticated GET into out; non-2xx is a *TransportError
func (p *ProtectedAPI) GetJSON(ctx context.Context, path string, out any) error {
	return p.doJSON(ctx, http.MethodGet, path, nil, out)
}

// SendJSON sends body with method and decodes the reply into out (may be nil)
func (p *ProtectedAPI) SendJSON(ctx context.Context, method, path string, body, out any) error {
	return p.doJSON(ctx, method, path, body, out)
}

func (p *ProtectedAPI) GetUser(ctx context.Context) (*UserDto, error) {
	var user UserDto
	if err := p.GetJSON(ctx, "/user", &user); err != nil {
		return nil, fmt.Errorf("ProtectedAPI.GetUser: %w", err)
	}
	return &user, nil
}

// UpdateUser sends the full draft together with the changed fields
func (p *ProtectedAPI) UpdateUser(ctx context.Context, draft UserDto, changed map[string]json.RawMessage) error {
	if err := p.SendJSON(ctx, http.MethodPut, "/user", UpdateUserRequest{
		User:    draft,
		Changed: changed,
	}, nil); err != nil {
		return fmt.Errorf("ProtectedAPI.UpdateUser: %w", err)
	}
	return nil
}
