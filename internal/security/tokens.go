package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned when a token's structure or signature is invalid.
	ErrMalformed = errors.New("malformed access token")
	// ErrExpired is returned when a token is structurally valid but past its expiry.
	ErrExpired = errors.New("expired access token")
)

// AccessClaims holds the JWT claims carried by an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// Codec issues and verifies signed access tokens using RS256 or ES256
// (private/public key pair). It holds no mutable state and never touches
// storage; verification is signature plus expiry only.
type Codec struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
}

// NewCodec returns a Codec that signs with the given private key (RS256 or
// ES256). issuer and audience are set on claims and checked on verification.
func NewCodec(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *Codec {
	return &Codec{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
	}
}

// IssueAccess issues a short-lived access JWT for the given subject.
// Returns the signed token string and its expiration time.
func (c *Codec) IssueAccess(subjectID string) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(c.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	var method jwt.SigningMethod
	switch c.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrMalformed
	}
	token, err = jwt.NewWithClaims(method, claims).SignedString(c.privateKey)
	return token, expiresAt, err
}

// VerifyAccess parses and validates an access token (signature, exp, iss, aud)
// and returns its subject. An expired but otherwise valid token fails with
// ErrExpired; everything else fails with ErrMalformed.
func (c *Codec) VerifyAccess(tokenString string) (subjectID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return c.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return c.publicKey, nil
		}
		return nil, ErrMalformed
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", ErrMalformed
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return "", ErrMalformed
	}
	if claims.Issuer != c.issuer {
		return "", ErrMalformed
	}
	audOk := false
	for _, a := range claims.Audience {
		if a == c.audience {
			audOk = true
			break
		}
	}
	if !audOk {
		return "", ErrMalformed
	}
	return claims.Subject, nil
}
