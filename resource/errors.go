package resource

import syncerrors "github.com/jrsteele09/go-resource-sync/internal/errors"

var (
	// ErrUnsupportedOperation is returned by an operation whose function
	// (get, post or put) was not supplied.
	ErrUnsupportedOperation = syncerrors.ErrUnsupportedOperation
	ErrEmptyDraft           = syncerrors.ErrEmptyDraft
)
