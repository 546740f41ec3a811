package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dauth-service/internal/config"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrInvalidToken = errors.New("invalid token")
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Claims is the payload carried by both token types. The session id is
// embedded in access tokens too, so logout by access token can locate the
// session without a database lookup keyed on the token value.
type Claims struct {
	UserID    string `json:"id"`
	SessionID string `json:"sessionId"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// IsAccess reports whether the token was minted for API calls rather than
// refresh exchanges.
func (c *Claims) IsAccess() bool { return c.TokenType == typeAccess }

func (c *Claims) IsRefresh() bool { return c.TokenType == typeRefresh }

// Codec mints and verifies HS256-signed, time-bounded tokens. It performs no
// session-existence checks; callers own that.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewCodec(cfg *config.Config) *Codec {
	return &Codec{
		secret:     []byte(cfg.JWT.Secret),
		issuer:     cfg.JWT.Issuer,
		accessTTL:  cfg.JWT.AccessTTL,
		refreshTTL: cfg.JWT.RefreshTTL,
		now:        time.Now,
	}
}

// IssueAccessToken signs a short-lived token for API calls.
func (c *Codec) IssueAccessToken(userID, sessionID string) (string, error) {
	return c.issue(userID, sessionID, typeAccess, c.accessTTL)
}

// IssueRefreshToken signs a long-lived token exchanged for new pairs.
func (c *Codec) IssueRefreshToken(userID, sessionID string) (string, error) {
	return c.issue(userID, sessionID, typeRefresh, c.refreshTTL)
}

func (c *Codec) issue(userID, sessionID, typ string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := Claims{
		UserID:    userID,
		SessionID: sessionID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claims.
// Expired tokens fail with ErrTokenExpired; everything else (bad signature,
// wrong algorithm, malformed payload) fails with ErrInvalidToken.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
