package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"elearning/internal/model"
)

type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

type Claims struct {
	UserID   string     `json:"user_id"`
	Role     model.Role `json:"role"`
	TenantID string     `json:"university_id,omitempty"`
	Kind     TokenKind  `json:"typ"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Tokens issues and verifies HS256 access and refresh tokens. The two kinds
// use separate secrets and a typ claim so neither can stand in for the other.
type Tokens struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokens(cfg TokenConfig) *Tokens {
	return &Tokens{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of t that reads time from now.
func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	return &Tokens{cfg: t.cfg, now: now}
}

func (t *Tokens) Issue(user model.User) (Pair, error) {
	now := t.now().UTC()
	access, accessExp, err := t.sign(KindAccess, user, now)
	if err != nil {
		return Pair{}, err
	}
	refresh, _, err := t.sign(KindRefresh, user, now)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp}, nil
}

func (t *Tokens) sign(kind TokenKind, user model.User, now time.Time) (string, time.Time, error) {
	secret, ttl := t.keyFor(kind)
	exp := now.Add(ttl)
	claims := Claims{
		UserID:   user.ID,
		Role:     user.Role,
		TenantID: user.TenantID,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    t.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	return signed, exp, err
}

func (t *Tokens) keyFor(kind TokenKind) ([]byte, time.Duration) {
	if kind == KindRefresh {
		return []byte(t.cfg.RefreshSecret), t.cfg.RefreshTTL
	}
	return []byte(t.cfg.AccessSecret), t.cfg.AccessTTL
}

// Parse verifies a token of the given kind. Errors are the jwt package's
// sentinels so callers can tell expiry apart from any other failure.
func (t *Tokens) Parse(kind TokenKind, tokenString string) (*Claims, error) {
	secret, _ := t.keyFor(kind)
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token", jwt.ErrTokenInvalidClaims, kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", jwt.ErrTokenRequiredClaimMissing)
	}
	return claims, nil
}
