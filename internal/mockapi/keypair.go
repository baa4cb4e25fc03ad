package mockapi

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
)

const RS256 = "RS256"

// JWKSPath is where a backend with an asymmetric signer publishes its keys
const JWKSPath = "/.well-known/jwks.json"

// JWKSProvider is implemented by signers whose public keys can be published
type JWKSProvider interface {
	JWKS() (*JWKS, error)
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kty string `json:"kty"`           // RSA
	Use string `json:"use,omitempty"` // sig
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"` // modulus
	E   string `json:"e,omitempty"` // exponent
}

// KeyPairSigner signs with RS256 and publishes its public key as a JWKS
type KeyPairSigner struct {
	keyID      string
	privateKey *rsa.PrivateKey
}

var (
	_ Signer       = (*KeyPairSigner)(nil)
	_ JWKSProvider = (*KeyPairSigner)(nil)
)

// NewKeyPairSigner generates an RSA key of at least 2048 bits
func NewKeyPairSigner(keyID string, bits int) (*KeyPairSigner, error) {
	if bits < 2048 {
		bits = 2048
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &KeyPairSigner{keyID: keyID, privateKey: privateKey}, nil
}

func (s *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with asymmetric key: %w", err)
	}
	return signed, nil
}

func (s *KeyPairSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return &s.privateKey.PublicKey, nil
}

func (s *KeyPairSigner) PublicKey() *rsa.PublicKey {
	return &s.privateKey.PublicKey
}

func (s *KeyPairSigner) JWKS() (*JWKS, error) {
	pub := s.privateKey.PublicKey
	return &JWKS{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Kid: s.keyID,
		Alg: RS256,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}, nil
}
