package auth

import syncerrors "github.com/jrsteele09/go-resource-sync/internal/errors"

var (
	// ErrRefreshFailed is returned when the refresh exchange fails or yields
	// an access token that is not valid.
	ErrRefreshFailed = syncerrors.ErrRefreshFailed
	// ErrNotAuthenticated is returned when neither token is valid. The
	// redirector has already been invoked when a caller sees it.
	ErrNotAuthenticated = syncerrors.ErrNotAuthenticated
)
