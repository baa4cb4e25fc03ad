package token

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier checks the signature of a compact token before it is trusted.
type Verifier interface {
	Verify(ctx context.Context, raw string) error
}

// KeySetVerifier verifies signatures against an OIDC key set, either static
// public keys or a remote JWKS endpoint.
type KeySetVerifier struct {
	keys oidc.KeySet
}

var _ Verifier = (*KeySetVerifier)(nil)

func NewKeySetVerifier(keys oidc.KeySet) *KeySetVerifier {
	return &KeySetVerifier{keys: keys}
}

// NewRemoteKeySetVerifier fetches verification keys from jwksURL on demand
func NewRemoteKeySetVerifier(ctx context.Context, jwksURL string) *KeySetVerifier {
	return NewKeySetVerifier(oidc.NewRemoteKeySet(ctx, jwksURL))
}

func (v *KeySetVerifier) Verify(ctx context.Context, raw string) error {
	if _, err := v.keys.VerifySignature(ctx, raw); err != nil {
		return fmt.Errorf("token signature: %w", err)
	}
	return nil
}

// DecodeVerified verifies raw with v, when v is set, and then decodes it
func DecodeVerified(ctx context.Context, raw string, v Verifier) (*Token, error) {
	if v != nil && raw != "" {
		if err := v.Verify(ctx, raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	}
	return Decode(raw)
}
