package auth

import (
	"context"
	"net/http"
	"strings"

	"places-server/logger"
	"places-server/utils/errors"
)

// TokenStrategy authenticates requests with a bearer access token and renews
// it from a refresh token on the allow-list. Refresh tokens are not rotated.
type TokenStrategy struct {
	tokens *TokenManager
	store  RefreshTokenStore
}

func NewTokenStrategy(tokens *TokenManager, store RefreshTokenStore) *TokenStrategy {
	return &TokenStrategy{tokens: tokens, store: store}
}

func (s *TokenStrategy) Name() string { return "token" }

func (s *TokenStrategy) Issue(_ http.ResponseWriter, r *http.Request, p Principal) (Credentials, error) {
	access, err := s.tokens.GenerateAccess(p)
	if err != nil {
		return Credentials{}, errors.Internal(err, "Failed to generate token")
	}
	refresh, err := s.tokens.GenerateRefresh(p)
	if err != nil {
		return Credentials{}, errors.Internal(err, "Failed to generate token")
	}
	if err := s.store.Add(r.Context(), refresh, s.tokens.RefreshTTL()); err != nil {
		return Credentials{}, errors.Internal(err, "Failed to store refresh token")
	}
	return Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (s *TokenStrategy) Authenticate(r *http.Request) (Principal, error) {
	tokenString, ok := bearerToken(r)
	if !ok {
		return Principal{}, ErrMissingCredential
	}
	p, err := s.tokens.ParseAccess(tokenString)
	if err != nil {
		logger.Log.Debugw("access token rejected", "err", err)
		return Principal{}, ErrInvalidCredential
	}
	return p, nil
}

func (s *TokenStrategy) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	if refreshToken == "" {
		return Credentials{}, ErrMissingRefreshToken
	}
	known, err := s.store.Contains(ctx, refreshToken)
	if err != nil {
		return Credentials{}, errors.Internal(err, "Failed to check refresh token")
	}
	if !known {
		return Credentials{}, ErrInvalidRefreshToken
	}

	p, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		logger.Log.Debugw("refresh token rejected", "err", err)
		if rmErr := s.store.Remove(ctx, refreshToken); rmErr != nil {
			logger.Log.Warnw("failed to drop rejected refresh token", "err", rmErr)
		}
		return Credentials{}, ErrInvalidRefreshToken
	}

	access, err := s.tokens.GenerateAccess(p)
	if err != nil {
		return Credentials{}, errors.Internal(err, "Failed to generate token")
	}
	return Credentials{
		AccessToken: access,
		ExpiresIn:   int(s.tokens.AccessTTL().Seconds()),
		TokenType:   "Bearer",
	}, nil
}

func (s *TokenStrategy) Revoke(_ http.ResponseWriter, r *http.Request, refreshToken string) error {
	if refreshToken == "" {
		return ErrMissingRefreshToken
	}
	if err := s.store.Remove(r.Context(), refreshToken); err != nil {
		return errors.Internal(err, "Failed to revoke refresh token")
	}
	return nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
