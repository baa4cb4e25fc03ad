package mockapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-resource-sync/apiclient"
)

func newTestServer(t *testing.T, options ...Option) (*Server, string) {
	t.Helper()
	srv := New(NewHMACSigner("test-secret"), options...)
	id, err := srv.AddUser(User{Email: "Jane@Example.com", FirstName: "Jane", LastName: "Doe"}, "password1")
	require.NoError(t, err)
	return srv, id
}

func doRequest(t *testing.T, srv http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, srv *Server) apiclient.LoginResponse {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/login", "", apiclient.LoginRequest{
		EmailAddress: "jane@example.com",
		Password:     "password1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp apiclient.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestLogin(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("valid credentials", func(t *testing.T) {
		resp := login(t, srv)
		require.NotEmpty(t, resp.AccessToken)
		require.NotEmpty(t, resp.RefreshToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/login", "", apiclient.LoginRequest{
			EmailAddress: "jane@example.com",
			Password:     "nope",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/login", "", apiclient.LoginRequest{
			EmailAddress: "who@example.com",
			Password:     "password1",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	require.Equal(t, int64(3), srv.LoginCalls())
}

func TestRefreshToken(t *testing.T) {
	srv, id := newTestServer(t)
	tokens := login(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/refresh-token", "", apiclient.RefreshRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp apiclient.RefreshResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	sub, err := srv.Issuer().Verify(resp.AccessToken, "access", time.Now())
	require.NoError(t, err)
	require.Equal(t, id, sub)

	t.Run("access token is not a refresh token", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/refresh-token", "", apiclient.RefreshRequest{RefreshToken: tokens.AccessToken})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	require.Equal(t, int64(2), srv.RefreshCalls())
}

func TestUserEndpoints(t *testing.T) {
	srv, id := newTestServer(t)
	tokens := login(t, srv)

	t.Run("missing bearer", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/user", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("get user", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/user", tokens.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var user apiclient.UserDto
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
		require.Equal(t, apiclient.UserDto{ID: id, EmailAddress: "jane@example.com", FirstName: "Jane", LastName: "Doe"}, user)
	})

	t.Run("put applies only changed fields", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPut, "/user", tokens.AccessToken, apiclient.UpdateUserRequest{
			User: apiclient.UserDto{ID: id, EmailAddress: "ignored@example.com", FirstName: "  Janet ", LastName: "Ignored"},
			Changed: map[string]json.RawMessage{
				"first_name": json.RawMessage(`"  Janet "`),
			},
		})
		require.Equal(t, http.StatusNoContent, rec.Code)

		user, ok := srv.User(id)
		require.True(t, ok)
		require.Equal(t, "Janet", user.FirstName)
		require.Equal(t, "Doe", user.LastName)
		require.Equal(t, "jane@example.com", user.Email)
	})

	t.Run("put rejects read-only field", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPut, "/user", tokens.AccessToken, apiclient.UpdateUserRequest{
			Changed: map[string]json.RawMessage{"id": json.RawMessage(`"other"`)},
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("expired access token", func(t *testing.T) {
		late, _ := newTestServer(t, WithNowFunc(func() time.Time { return time.Now().Add(time.Hour) }))
		rec := doRequest(t, late, http.MethodGet, "/user", tokens.AccessToken, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestJWKS(t *testing.T) {
	t.Run("published for key pair signers", func(t *testing.T) {
		signer, err := NewKeyPairSigner("kid-1", 2048)
		require.NoError(t, err)
		srv := New(signer)

		rec := doRequest(t, srv, http.MethodGet, JWKSPath, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var jwks JWKS
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&jwks))
		require.Len(t, jwks.Keys, 1)
		require.Equal(t, "kid-1", jwks.Keys[0].Kid)
		require.Equal(t, RS256, jwks.Keys[0].Alg)
		require.NotEmpty(t, jwks.Keys[0].N)
	})

	t.Run("absent for HMAC signers", func(t *testing.T) {
		srv, _ := newTestServer(t)
		rec := doRequest(t, srv, http.MethodGet, JWKSPath, "", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRecoverMiddleware(t *testing.T) {
	handler := chainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, recoverMiddleware, loggingMiddleware)

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
