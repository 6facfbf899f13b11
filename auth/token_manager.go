package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type Claims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 access and refresh tokens. The two
// kinds use separate secrets so one can never be accepted as the other.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (tm *TokenManager) AccessTTL() time.Duration  { return tm.accessTTL }
func (tm *TokenManager) RefreshTTL() time.Duration { return tm.refreshTTL }

// GenerateAccess signs a short lived access token for p.
func (tm *TokenManager) GenerateAccess(p Principal) (string, error) {
	return tm.sign(p, tokenTypeAccess, tm.accessTTL, tm.accessSecret)
}

// GenerateRefresh signs a refresh token for p. Every refresh token carries a
// random jti so two logins never share one.
func (tm *TokenManager) GenerateRefresh(p Principal) (string, error) {
	return tm.sign(p, tokenTypeRefresh, tm.refreshTTL, tm.refreshSecret)
}

func (tm *TokenManager) sign(p Principal, typ string, ttl time.Duration, secret []byte) (string, error) {
	now := tm.now()
	claims := Claims{
		UserID:   p.UserID,
		Username: p.Username,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (tm *TokenManager) ParseAccess(tokenString string) (Principal, error) {
	return tm.parse(tokenString, tokenTypeAccess, tm.accessSecret)
}

func (tm *TokenManager) ParseRefresh(tokenString string) (Principal, error) {
	return tm.parse(tokenString, tokenTypeRefresh, tm.refreshSecret)
}

func (tm *TokenManager) parse(tokenString, typ string, secret []byte) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(tm.now), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid || claims.Type != typ || claims.UserID == "" {
		return Principal{}, fmt.Errorf("not a valid %s token", typ)
	}
	return Principal{UserID: claims.UserID, Username: claims.Username}, nil
}
