package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	core "github.com/switchboard-ai/switchboard/internal"
)

// Token lifetimes.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Blacklist tracks revoked token IDs until their natural expiry.
// The Redis-backed session store implements this; a nil Blacklist
// disables revocation checks.
type Blacklist interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string, until time.Time) error
}

// Claims is the switchboard JWT payload.
type Claims struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"` // "access" or "refresh"
	jwt.RegisteredClaims
}

var _ core.Authenticator = (*JWTAuth)(nil)

// JWTAuth issues and validates HMAC-signed access and refresh tokens.
type JWTAuth struct {
	secret    []byte
	blacklist Blacklist
	now       func() time.Time
}

// NewJWTAuth returns a JWTAuth signing with secret. blacklist may be nil.
func NewJWTAuth(secret string, blacklist Blacklist) *JWTAuth {
	return &JWTAuth{secret: []byte(secret), blacklist: blacklist, now: time.Now}
}

// IssuePair returns a fresh access/refresh token pair for the user.
func (j *JWTAuth) IssuePair(u *core.User) (access, refresh string, err error) {
	access, err = j.issue(u, "access", AccessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = j.issue(u, "refresh", RefreshTokenTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (j *JWTAuth) issue(u *core.User, tokenType string, ttl time.Duration) (string, error) {
	now := j.now()
	claims := Claims{
		Username:  u.Username,
		Role:      u.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.Must(uuid.NewV7()).String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// parse validates signature, expiry, and token type.
func (j *JWTAuth) parse(ctx context.Context, raw, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token expired: %w", core.ErrInvalidCred)
		}
		return nil, fmt.Errorf("parse token: %w", core.ErrInvalidCred)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, core.ErrInvalidCred
	}
	// A refresh token must never pass as an access token or vice versa.
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("wrong token type %q: %w", claims.TokenType, core.ErrInvalidCred)
	}
	if j.blacklist != nil && claims.ID != "" {
		revoked, err := j.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, fmt.Errorf("token revoked: %w", core.ErrInvalidCred)
		}
	}
	return claims, nil
}

// Authenticate validates an access token and returns the caller's Identity.
func (j *JWTAuth) Authenticate(ctx context.Context, cred core.Credential) (*core.Identity, error) {
	claims, err := j.parse(ctx, cred.Value, "access")
	if err != nil {
		return nil, err
	}
	role := claims.Role
	if role == "" {
		role = core.RoleStandard
	}
	return &core.Identity{
		UserID:     claims.Subject,
		Username:   claims.Username,
		Role:       role,
		Subject:    claims.Subject,
		Perms:      core.RolePermissions[role],
		AuthMethod: "jwt",
	}, nil
}

// Refresh validates a refresh token and issues a new pair. The old refresh
// token is revoked when a blacklist is configured (single-use rotation).
func (j *JWTAuth) Refresh(ctx context.Context, rawRefresh string, lookup func(ctx context.Context, userID string) (*core.User, error)) (access, refresh string, err error) {
	claims, err := j.parse(ctx, rawRefresh, "refresh")
	if err != nil {
		return "", "", err
	}
	u, err := lookup(ctx, claims.Subject)
	if err != nil {
		return "", "", err
	}
	if j.blacklist != nil && claims.ExpiresAt != nil {
		if err := j.blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return "", "", err
		}
	}
	return j.IssuePair(u)
}

// Revoke blacklists a token until its expiry, for logout.
func (j *JWTAuth) Revoke(ctx context.Context, raw string) error {
	if j.blacklist == nil {
		return nil
	}
	// Accept either token type at logout.
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return core.ErrInvalidCred
	}
	claims := token.Claims.(*Claims)
	until := j.now().Add(AccessTokenTTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	return j.blacklist.Revoke(ctx, claims.ID, until)
}
