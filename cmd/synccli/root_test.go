package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-resource-sync/apiclient"
	"github.com/jrsteele09/go-resource-sync/auth"
	"github.com/jrsteele09/go-resource-sync/internal/mockapi"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--console-log=false", "--log-level=error"}, args...))
	err := cmd.Execute()
	return out.String() + errOut.String(), err
}

func setupBackend(t *testing.T) *mockapi.Server {
	t.Helper()
	backend := mockapi.New(mockapi.NewHMACSigner("cli-test"))
	_, err := backend.AddUser(mockapi.User{Email: "kay@example.com", FirstName: "Kay", LastName: "Adams"}, "secret")
	require.NoError(t, err)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	t.Setenv("API_HOST", srv.URL)
	t.Setenv("DATA_FOLDER", t.TempDir())
	return backend
}

func TestCommands(t *testing.T) {
	backend := setupBackend(t)

	t.Run("whoami before login", func(t *testing.T) {
		out, err := execute(t, "whoami")
		require.ErrorIs(t, err, errSignInRequired)
		require.Contains(t, out, "Sign in required")
	})

	t.Run("login", func(t *testing.T) {
		out, err := execute(t, "login", "--email", "kay@example.com", "--password", "secret")
		require.NoError(t, err)
		require.Contains(t, out, "Signed in as kay@example.com")
	})

	t.Run("a new tab inherits the session", func(t *testing.T) {
		out, err := execute(t, "whoami")
		require.NoError(t, err)
		require.Contains(t, out, "Kay Adams")
	})

	t.Run("set-name commits changed fields", func(t *testing.T) {
		out, err := execute(t, "set-name", "--first", "  Katherine ")
		require.NoError(t, err)
		require.Contains(t, out, "Katherine Adams")
		require.Equal(t, int64(1), backend.UserWrites())
	})

	t.Run("login remembers the email", func(t *testing.T) {
		_, err := execute(t, "login", "--password", "secret")
		require.NoError(t, err)
	})

	t.Run("status", func(t *testing.T) {
		out, err := execute(t, "status")
		require.NoError(t, err)
		require.Contains(t, out, "Logged in:     true")
		require.Contains(t, out, "valid until")
	})

	t.Run("logout", func(t *testing.T) {
		_, err := execute(t, "logout")
		require.NoError(t, err)

		_, err = execute(t, "whoami")
		require.ErrorIs(t, err, errSignInRequired)
	})
}

func TestStorageCommands(t *testing.T) {
	setupBackend(t)

	_, err := execute(t, "storage", "set", "theme", "dark")
	require.NoError(t, err)
	_, err = execute(t, "storage", "set", "--json", "window", `{"w":800,"h":600}`)
	require.NoError(t, err)

	out, err := execute(t, "storage", "get", "theme")
	require.NoError(t, err)
	require.Equal(t, "\"dark\"\n", out)

	out, err = execute(t, "storage", "ls")
	require.NoError(t, err)
	require.Contains(t, out, "theme")
	require.Contains(t, out, "window")

	_, err = execute(t, "storage", "rm", "theme")
	require.NoError(t, err)
	_, err = execute(t, "storage", "get", "theme")
	require.Error(t, err)
}

func TestNewAppUsesDurableStorePath(t *testing.T) {
	setupBackend(t)
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	t.Setenv("DURABLE_STORE", path)

	_, err := execute(t, "storage", "set", "k", "v")
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, exitUnauthorized, exitCode(errSignInRequired))
	require.Equal(t, exitUnauthorized, exitCode(fmt.Errorf("whoami: %w", auth.ErrNotAuthenticated)))
	require.Equal(t, exitUnauthorized, exitCode(&apiclient.TransportError{StatusCode: http.StatusUnauthorized}))
	require.Equal(t, exitError, exitCode(errors.New("boom")))
}
