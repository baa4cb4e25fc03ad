// Package auth supplies access tokens to protected calls. It refreshes an
// expired access token from the refresh token at most once at a time and
// sends the user to sign in when neither token is usable.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-resource-sync/apiclient"
	"github.com/jrsteele09/go-resource-sync/sessions"
	"github.com/jrsteele09/go-resource-sync/token"
)

const (
	refreshKey            = "refresh"
	defaultRefreshTimeout = 30 * time.Second
)

// Exchanger talks to the authentication endpoints. *apiclient.PublicAPI
// satisfies it.
type Exchanger interface {
	Login(ctx context.Context, emailAddress, password string) (*apiclient.LoginResponse, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
}

var _ Exchanger = (*apiclient.PublicAPI)(nil)

// Authority owns the credential lifecycle of one session
type Authority struct {
	session        *sessions.Session
	exchanger      Exchanger
	redirector     Redirector
	signInPath     string
	verifier       token.Verifier
	refreshTimeout time.Duration
	nowFunc        func() time.Time
	logger         zerolog.Logger
	refreshGroup   singleflight.Group
}

type Option func(*Authority)

func WithRedirector(r Redirector) Option {
	return func(a *Authority) {
		a.redirector = r
	}
}

func WithSignInPath(path string) Option {
	return func(a *Authority) {
		a.signInPath = path
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(a *Authority) {
		a.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Authority) {
		a.logger = logger
	}
}

// WithVerifier checks the signature of refreshed access tokens before they
// are stored.
func WithVerifier(v token.Verifier) Option {
	return func(a *Authority) {
		a.verifier = v
	}
}

// WithRefreshTimeout bounds a single refresh round trip
func WithRefreshTimeout(d time.Duration) Option {
	return func(a *Authority) {
		a.refreshTimeout = d
	}
}

func New(session *sessions.Session, exchanger Exchanger, options ...Option) (*Authority, error) {
	if session == nil {
		return nil, fmt.Errorf("[auth.New] session is required")
	}
	if exchanger == nil {
		return nil, fmt.Errorf("[auth.New] exchanger is required")
	}

	a := &Authority{
		session:        session,
		exchanger:      exchanger,
		redirector:     logRedirector{},
		signInPath:     DefaultSignInPath,
		refreshTimeout: defaultRefreshTimeout,
		nowFunc:        session.Now,
		logger:         log.Logger,
	}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

// AccessToken returns a valid access token, refreshing it first when it has
// expired and the refresh token is still valid. With no valid credential the
// redirector is invoked and the error matches both ErrRefreshFailed and
// ErrNotAuthenticated.
func (a *Authority) AccessToken(ctx context.Context) (*token.Token, error) {
	now := a.nowFunc()
	if access := a.session.AccessToken(); token.IsValid(access, now) {
		return access, nil
	}

	if !token.IsValid(a.session.RefreshToken(), now) {
		a.logger.Info().Str("path", a.signInPath).Msg("No valid credential, redirecting to sign-in")
		a.redirector.Redirect(a.signInPath)
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, ErrNotAuthenticated)
	}

	// shared by every waiter; each waiter only honours its own ctx
	ch := a.refreshGroup.DoChan(refreshKey, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.refreshTimeout)
		defer cancel()
		return a.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*token.Token), nil
	}
}

// AccessTokenString is AccessToken returning the compact form
func (a *Authority) AccessTokenString(ctx context.Context) (string, error) {
	tok, err := a.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.Raw, nil
}

func (a *Authority) refresh(ctx context.Context) (*token.Token, error) {
	// a refresh that finished just before this one started already did the work
	if access := a.session.AccessToken(); token.IsValid(access, a.nowFunc()) {
		return access, nil
	}

	refreshRaw, gen := a.session.RefreshCredential()
	raw, err := a.exchanger.RefreshAccessToken(ctx, refreshRaw)
	if err != nil {
		a.logger.Error().Err(err).Msg("Access token refresh failed")
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	access, err := token.DecodeVerified(ctx, raw, a.verifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	// a logout or login during the exchange owns the session now
	stored, err := a.session.SetAccessTokenIf(gen, raw)
	if !stored {
		a.logger.Info().Msg("Session changed during refresh, discarding refreshed token")
		return nil, fmt.Errorf("%w: %w: session changed during refresh", ErrRefreshFailed, ErrNotAuthenticated)
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("Refreshed access token could not be persisted")
	}
	if !token.IsValid(access, a.nowFunc()) {
		return nil, fmt.Errorf("%w: refreshed access token already expired", ErrRefreshFailed)
	}

	a.logger.Debug().Time("expires", access.Expiry()).Msg("Access token refreshed")
	return access, nil
}

// Login exchanges credentials for a token pair and stores both tokens. The
// session is logged in when the new refresh token is valid.
func (a *Authority) Login(ctx context.Context, emailAddress, password string) (*apiclient.LoginResponse, error) {
	resp, err := a.exchanger.Login(ctx, emailAddress, password)
	if err != nil {
		return nil, fmt.Errorf("Authority.Login: %w", err)
	}

	// refresh token first: it moves the session to a new generation, so a
	// refresh still in flight cannot overwrite the new access token
	if err := a.session.SetRefreshToken(resp.RefreshToken); err != nil {
		return nil, fmt.Errorf("Authority.Login store refresh token: %w", err)
	}
	if err := a.session.SetAccessToken(resp.AccessToken); err != nil {
		return nil, fmt.Errorf("Authority.Login store access token: %w", err)
	}
	a.session.SetLoggedIn(token.IsValid(a.session.RefreshToken(), a.nowFunc()))

	a.logger.Info().Bool("logged_in", a.session.IsLoggedIn()).Msg("Login complete")
	return resp, nil
}

// Logout clears both tokens and their persisted forms
func (a *Authority) Logout() error {
	if err := a.session.Clear(); err != nil {
		return fmt.Errorf("Authority.Logout: %w", err)
	}
	a.logger.Info().Msg("Logged out")
	return nil
}

func (a *Authority) IsLoggedIn() bool {
	return a.session.IsLoggedIn()
}

// SignInPath returns where unauthenticated callers are redirected
func (a *Authority) SignInPath() string {
	return a.signInPath
}

// Redirect sends the user to sign in
func (a *Authority) Redirect() {
	a.redirector.Redirect(a.signInPath)
}

// TokenSource adapts the authority to oauth2 so a protected HTTP client can
// use oauth2.Transport. oauth2.Transport does not hand the request context to
// its source, so ctx is used for every token request.
func (a *Authority) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, authority: a}
}

type tokenSource struct {
	ctx       context.Context
	authority *Authority
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.authority.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok.Raw,
		TokenType:   "Bearer",
		Expiry:      tok.Expiry(),
	}, nil
}
