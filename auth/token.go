package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	syncerrors "devicesync/errors"
)

// Claims is the data stored inside the bearer tokens this core verifies.
// Token issuance and refresh live outside this core; only verification
// happens here.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier validates bearer credentials presented at the websocket
// handshake. The signing secret is injected from configuration.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates the signature and expiration of a token and
// returns the authenticated user id. Any failure maps to
// ErrAuthenticationFailed so the gateway closes the socket with a single
// stable code.
func (v *Verifier) Verify(credential string) (string, error) {
	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return "", syncerrors.ErrAuthenticationFailed
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", syncerrors.ErrAuthenticationFailed
	}
	return claims.UserID, nil
}

// GenerateToken creates a signed HS256 token for a user. The server never
// calls this; it exists for tools and tests that need a valid credential.
func GenerateToken(secret []byte, userID string, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "devicesync",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
