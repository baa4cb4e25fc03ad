package token

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	syncerrors "github.com/jrsteele09/go-resource-sync/internal/errors"
)

// ErrDecode is returned for an absent or malformed compact token string.
// Callers treat it as "no credential".
var ErrDecode = syncerrors.ErrDecode

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Token is the decoded payload of a compact signed credential as issued by
// the authentication endpoint.
type Token struct {
	Subject   string // sub
	ExpiresAt int64  // exp, seconds since epoch
	IssuedAt  int64  // iat
	NotBefore int64  // nbf
	ID        string // jti
	Kind      Kind   // type
	Fresh     bool   // access tokens only
	Host      string // access tokens only
	Raw       string // the compact string this token was decoded from
}

// Decode parses the claims segment of a compact token without checking the
// signature. It has no side effects.
func Decode(raw string) (*Token, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrDecode
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrDecode)
	}

	kind, _ := claims["type"].(string)
	jti, _ := claims["jti"].(string)
	fresh, _ := claims["fresh"].(bool)
	host, _ := claims["host"].(string)

	return &Token{
		Subject:   subject(claims["sub"]),
		ExpiresAt: numeric(claims["exp"]),
		IssuedAt:  numeric(claims["iat"]),
		NotBefore: numeric(claims["nbf"]),
		ID:        jti,
		Kind:      Kind(kind),
		Fresh:     fresh,
		Host:      host,
		Raw:       raw,
	}, nil
}

// IsValid reports whether t is present and its expiry, in milliseconds, is
// strictly after now.
func IsValid(t *Token, now time.Time) bool {
	return t != nil && t.ExpiresAt != 0 && t.ExpiresAt*1000 > now.UnixMilli()
}

// Expiry returns exp as a time. The zero time is returned when exp is unset.
func (t *Token) Expiry() time.Time {
	if t == nil || t.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(t.ExpiresAt, 0)
}

// sub is a string in most issuers but some put a numeric user id there
func subject(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func numeric(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}
