package auth_test

import (
	"context"
	"crypto"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-resource-sync/apiclient"
	"github.com/jrsteele09/go-resource-sync/auth"
	"github.com/jrsteele09/go-resource-sync/internal/mockapi"
	"github.com/jrsteele09/go-resource-sync/sessions"
	"github.com/jrsteele09/go-resource-sync/tabstorage"
	"github.com/jrsteele09/go-resource-sync/token"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "analytical"
)

type testFixture struct {
	backend   *mockapi.Server
	server    *httptest.Server
	userID    string
	storage   *tabstorage.Storage
	session   *sessions.Session
	public    *apiclient.PublicAPI
	redirects []string
	mu        sync.Mutex
	authority *auth.Authority
}

func newFixture(t *testing.T, options ...mockapi.Option) *testFixture {
	t.Helper()
	return newFixtureWithSigner(t, mockapi.NewHMACSigner("auth-test"), options...)
}

func newFixtureWithSigner(t *testing.T, signer mockapi.Signer, options ...mockapi.Option) *testFixture {
	t.Helper()
	f := &testFixture{}

	f.backend = mockapi.New(signer, options...)
	id, err := f.backend.AddUser(mockapi.User{Email: testEmail, FirstName: "Ada"}, testPassword)
	require.NoError(t, err)
	f.userID = id
	f.server = httptest.NewServer(f.backend)
	t.Cleanup(f.server.Close)

	storage, err := tabstorage.New(tabstorage.NewMemoryTier(), tabstorage.NewMemoryTier())
	require.NoError(t, err)
	f.storage = storage
	f.session, err = sessions.New(storage)
	require.NoError(t, err)

	f.public = apiclient.NewPublic(f.server.URL)
	f.authority, err = auth.New(f.session, f.public, auth.WithRedirector(auth.RedirectFunc(func(path string) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.redirects = append(f.redirects, path)
	})))
	require.NoError(t, err)
	return f
}

func (f *testFixture) redirected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.redirects...)
}

// seedExpiredAccess stores an expired access token next to a valid refresh token
func (f *testFixture) seedExpiredAccess(t *testing.T) {
	t.Helper()
	now := time.Now()
	access, err := f.backend.Issuer().AccessToken(f.userID, now.Add(-2*time.Hour), now.Add(-time.Hour), true)
	require.NoError(t, err)
	refresh, err := f.backend.Issuer().RefreshToken(f.userID, now, now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.session.SetAccessToken(access))
	require.NoError(t, f.session.SetRefreshToken(refresh))
}

func TestAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("valid access token is returned without a round trip", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.authority.Login(ctx, testEmail, testPassword)
		require.NoError(t, err)

		raw, err := f.authority.AccessTokenString(ctx)
		require.NoError(t, err)
		require.Equal(t, f.session.AccessTokenString(), raw)
		require.Equal(t, int64(0), f.backend.RefreshCalls())
	})

	t.Run("expired access token is refreshed", func(t *testing.T) {
		f := newFixture(t)
		f.seedExpiredAccess(t)
		stale := f.session.AccessTokenString()

		tok, err := f.authority.AccessToken(ctx)
		require.NoError(t, err)
		require.NotEqual(t, stale, tok.Raw)
		require.Equal(t, f.userID, tok.Subject)
		require.Equal(t, tok.Raw, f.session.AccessTokenString())
		require.Equal(t, int64(1), f.backend.RefreshCalls())
	})

	t.Run("no valid credential redirects to sign-in", func(t *testing.T) {
		f := newFixture(t)

		require.NotPanics(t, func() {
			_, err := f.authority.AccessTokenString(ctx)
			require.ErrorIs(t, err, auth.ErrNotAuthenticated)
			require.ErrorIs(t, err, auth.ErrRefreshFailed)
		})
		require.Equal(t, []string{auth.DefaultSignInPath}, f.redirected())
		require.Equal(t, int64(0), f.backend.RefreshCalls())
	})

	t.Run("rejected refresh token", func(t *testing.T) {
		f := newFixture(t)
		f.seedExpiredAccess(t)
		other := mockapi.NewIssuer(mockapi.NewHMACSigner("someone-else"), "localhost")
		forged, err := other.RefreshToken(f.userID, time.Now(), time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, f.session.SetRefreshToken(forged))

		_, err = f.authority.AccessToken(ctx)
		require.ErrorIs(t, err, auth.ErrRefreshFailed)

		var transportErr *apiclient.TransportError
		require.True(t, errors.As(err, &transportErr))
		require.True(t, transportErr.IsUnauthorized())
		require.Empty(t, f.redirected())
	})
}

func TestRefreshSingleFlight(t *testing.T) {
	f := newFixture(t, mockapi.WithRefreshDelay(200*time.Millisecond))
	f.seedExpiredAccess(t)

	const callers = 2
	results := make([]string, callers)
	errs := make([]error, callers)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.authority.AccessTokenString(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
	}
	require.Equal(t, results[0], results[1])
	require.Equal(t, int64(1), f.backend.RefreshCalls())
}

func TestLogoutDuringRefresh(t *testing.T) {
	f := newFixture(t, mockapi.WithRefreshDelay(200*time.Millisecond))
	f.seedExpiredAccess(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.authority.AccessTokenString(context.Background())
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return f.backend.RefreshCalls() == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, f.authority.Logout())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, auth.ErrRefreshFailed)
		require.ErrorIs(t, err, auth.ErrNotAuthenticated)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not finish")
	}

	require.False(t, f.authority.IsLoggedIn())
	require.Empty(t, f.session.AccessTokenString())
	require.Nil(t, f.session.AccessToken())

	_, ok, err := f.storage.GetRaw(sessions.AccessTokenKey)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.authority.AccessToken(context.Background())
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestRefreshWithVerifier(t *testing.T) {
	ctx := context.Background()
	signer, err := mockapi.NewKeyPairSigner("key-1", 2048)
	require.NoError(t, err)
	f := newFixtureWithSigner(t, signer)

	t.Run("signature checked against the published key set", func(t *testing.T) {
		f.seedExpiredAccess(t)
		verifier := token.NewRemoteKeySetVerifier(ctx, f.server.URL+mockapi.JWKSPath)
		authority, err := auth.New(f.session, f.public, auth.WithVerifier(verifier))
		require.NoError(t, err)

		tok, err := authority.AccessToken(ctx)
		require.NoError(t, err)
		require.Equal(t, f.userID, tok.Subject)
	})

	t.Run("token signed by another key is rejected", func(t *testing.T) {
		f.seedExpiredAccess(t)
		other, err := mockapi.NewKeyPairSigner("key-2", 2048)
		require.NoError(t, err)
		verifier := token.NewKeySetVerifier(&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{other.PublicKey()}})
		authority, err := auth.New(f.session, f.public, auth.WithVerifier(verifier))
		require.NoError(t, err)

		_, err = authority.AccessToken(ctx)
		require.ErrorIs(t, err, auth.ErrRefreshFailed)
	})
}

type stubExchanger struct {
	access string
	err    error
}

func (s stubExchanger) Login(context.Context, string, string) (*apiclient.LoginResponse, error) {
	return nil, errors.New("not used")
}

func (s stubExchanger) RefreshAccessToken(context.Context, string) (string, error) {
	return s.access, s.err
}

func TestRefreshFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now()
	expired, err := f.backend.Issuer().AccessToken(f.userID, now.Add(-2*time.Hour), now.Add(-time.Hour), false)
	require.NoError(t, err)

	tests := []struct {
		name      string
		exchanger stubExchanger
	}{
		{name: "exchange error", exchanger: stubExchanger{err: errors.New("boom")}},
		{name: "undecodable access token", exchanger: stubExchanger{access: "garbage"}},
		{name: "expired access token", exchanger: stubExchanger{access: expired}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.seedExpiredAccess(t)
			authority, err := auth.New(f.session, tt.exchanger, auth.WithRedirector(auth.RedirectFunc(func(string) {
				t.Fatal("unexpected redirect")
			})))
			require.NoError(t, err)

			_, err = authority.AccessToken(ctx)
			require.ErrorIs(t, err, auth.ErrRefreshFailed)
		})
	}
}

func TestLoginLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.False(t, f.authority.IsLoggedIn())

	t.Run("bad password", func(t *testing.T) {
		_, err := f.authority.Login(ctx, testEmail, "wrong")
		require.Error(t, err)
		require.False(t, f.authority.IsLoggedIn())
	})

	t.Run("login", func(t *testing.T) {
		resp, err := f.authority.Login(ctx, testEmail, testPassword)
		require.NoError(t, err)
		require.True(t, f.authority.IsLoggedIn())
		require.Equal(t, resp.RefreshToken, f.session.RefreshTokenString())
	})

	t.Run("logout", func(t *testing.T) {
		require.NoError(t, f.authority.Logout())
		require.False(t, f.authority.IsLoggedIn())
		require.Nil(t, f.session.AccessToken())
		require.Nil(t, f.session.RefreshToken())
	})
}

func TestTokenSourceWithProtectedAPI(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedExpiredAccess(t)

	protected := apiclient.NewProtected(f.server.URL, f.authority.TokenSource(ctx))
	user, err := protected.GetUser(ctx)
	require.NoError(t, err)
	require.Equal(t, f.userID, user.ID)
	require.Equal(t, int64(1), f.backend.RefreshCalls())

	t.Run("logged out source fails before sending", func(t *testing.T) {
		require.NoError(t, f.authority.Logout())
		reads := f.backend.UserReads()

		_, err := protected.GetUser(ctx)
		require.ErrorIs(t, err, auth.ErrNotAuthenticated)
		require.Equal(t, reads, f.backend.UserReads())
	})
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	guard := auth.NewGuard(f.authority, "/login", "/about")

	require.True(t, guard.Check("/about"))
	require.True(t, guard.Check("/login"))
	require.False(t, guard.Check("/profile"))
	require.Equal(t, []string{"/login"}, f.redirected())

	_, err := f.authority.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, guard.Check("/profile"))
	require.Len(t, f.redirected(), 1)
}
