package auth

import "github.com/rs/zerolog/log"

// DefaultSignInPath is where callers are sent when no credential is valid
const DefaultSignInPath = "/login"

// Redirector sends the user to a sign-in location. The host decides what a
// redirect means: a CLI prints a hint, a server might answer with a 302.
type Redirector interface {
	Redirect(path string)
}

// RedirectFunc adapts a plain function to Redirector
type RedirectFunc func(path string)

func (f RedirectFunc) Redirect(path string) {
	f(path)
}

type logRedirector struct{}

func (logRedirector) Redirect(path string) {
	log.Warn().Str("path", path).Msg("Sign-in required")
}
