package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// claims is the signed payload carried inside a token
type claims struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

// ExtractBearer retrieves the bearer token from a raw Authorization header
// value. Returns empty string when the header is missing or not Bearer-typed.
func ExtractBearer(authHeader string) string {
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// HMACVerifier validates HMAC-SHA256 signed tokens of the form
// base64url(claims) + "." + base64url(signature).
// ARCHITECTURAL DISCOVERY: Signature comparison is constant-time; a failed
// verification at connect time is terminal, no retry or refresh
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for the given shared secret
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// VerifyToken implements interfaces.TokenVerifier
func (v *HMACVerifier) VerifyToken(ctx context.Context, token string) (types.Identity, error) {
	if token == "" {
		return types.Identity{}, interfaces.ErrTokenMissing
	}

	encodedClaims, encodedSig, ok := strings.Cut(token, ".")
	if !ok {
		return types.Identity{}, interfaces.ErrTokenInvalid
	}

	sig, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return types.Identity{}, interfaces.ErrTokenInvalid
	}

	expected := sign(v.secret, encodedClaims)
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return types.Identity{}, interfaces.ErrTokenInvalid
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(encodedClaims)
	if err != nil {
		return types.Identity{}, interfaces.ErrTokenInvalid
	}

	var c claims
	if err := json.Unmarshal(claimsJSON, &c); err != nil {
		return types.Identity{}, interfaces.ErrTokenInvalid
	}

	if c.ExpiresAt > 0 && time.Now().Unix() > c.ExpiresAt {
		return types.Identity{}, ErrTokenExpired
	}

	if !types.IsValidUserID(c.UserID) {
		return types.Identity{}, interfaces.ErrTokenInvalid
	}

	return types.Identity{UserID: c.UserID, Role: c.Role}, nil
}

// SignToken mints a token for the given identity, valid for ttl.
// Used by operational tooling and tests; the server itself only verifies.
func SignToken(secret string, identity types.Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	c := claims{
		UserID:    identity.UserID,
		Role:      identity.Role,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}

	claimsJSON, err := json.Marshal(c)
	if err != nil {
		return "", err
	}

	encodedClaims := base64.RawURLEncoding.EncodeToString(claimsJSON)
	sig := sign([]byte(secret), encodedClaims)
	return encodedClaims + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func sign(secret []byte, encodedClaims string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encodedClaims))
	return mac.Sum(nil)
}
