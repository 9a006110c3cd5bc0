package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the provided access token has expired.
	ErrTokenExpired = errors.New("auth: access token expired")
	// ErrTokenInvalid signals that the provided access token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: access token invalid")
)

// TokenVerifier validates an access token and returns the identity it carries.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*Identity, error)
}

// AccessClaims are the registered and custom claims carried by access tokens
// minted during onboarding.
type AccessClaims struct {
	Phone string   `json:"phone,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed access tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier constructs a verifier for the given signing secret. The
// issuer check is skipped when issuer is empty.
func NewJWTVerifier(secret string, issuer string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	return &JWTVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}, nil
}

// VerifyToken parses and validates the token and maps its claims onto an Identity.
func (v *JWTVerifier) VerifyToken(_ context.Context, tokenStr string) (*Identity, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, ErrTokenInvalid
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return &Identity{
		UserID: userID,
		Phone:  strings.TrimSpace(claims.Phone),
		Roles:  claims.Roles,
	}, nil
}
