package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-resource-sync/apiclient"
	syncerrors "github.com/jrsteele09/go-resource-sync/internal/errors"
)

const (
	exitError        = 1
	exitUnauthorized = 2
)

func main() {
	if err := run(); err != nil {
		os.Exit(exitCode(err))
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	return newRootCmd().Execute()
}

// exitCode maps credential failures to a distinct status so scripts can
// prompt for a new login.
func exitCode(err error) int {
	if syncerrors.Is(err, errSignInRequired) || syncerrors.Is(err, syncerrors.ErrNotAuthenticated) {
		return exitUnauthorized
	}
	var transportErr *apiclient.TransportError
	if syncerrors.As(err, &transportErr) && transportErr.IsUnauthorized() {
		fmt.Fprintln(os.Stderr, "The backend rejected the credentials: run `synccli login`")
		return exitUnauthorized
	}
	return exitError
}
