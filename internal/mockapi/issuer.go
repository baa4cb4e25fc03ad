package mockapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer creates access and refresh tokens shaped like the ones the real
// authentication endpoint returns.
type Issuer struct {
	signer Signer
	host   string
}

func NewIssuer(signer Signer, host string) *Issuer {
	return &Issuer{
		signer: signer,
		host:   host,
	}
}

// AccessToken creates an access token for subject expiring at exp
func (i *Issuer) AccessToken(subject string, issuedAt, exp time.Time, fresh bool) (string, error) {
	claims := jwt.MapClaims{
		"sub":   subject,
		"iat":   issuedAt.Unix(),
		"nbf":   issuedAt.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.New().String(),
		"type":  "access",
		"fresh": fresh,
		"host":  i.host,
	}
	return i.sign(claims)
}

// RefreshToken creates a refresh token for subject expiring at exp
func (i *Issuer) RefreshToken(subject string, issuedAt, exp time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"iat":  issuedAt.Unix(),
		"nbf":  issuedAt.Unix(),
		"exp":  exp.Unix(),
		"jti":  uuid.New().String(),
		"type": "refresh",
	}
	return i.sign(claims)
}

// Verify checks the signature, expiry and type of raw and returns its subject
func (i *Issuer) Verify(raw, wantType string, now time.Time) (string, error) {
	parsed, err := jwt.Parse(raw, i.signer.GetVerificationKey, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("error extracting claims from token")
	}
	if typ, _ := claims["type"].(string); typ != wantType {
		return "", fmt.Errorf("expected %s token, got %q", wantType, typ)
	}
	sub, _ := claims["sub"].(string)
	return sub, nil
}

func (i *Issuer) sign(claims jwt.MapClaims) (string, error) {
	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, nil
}
