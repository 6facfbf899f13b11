package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"places-server/utils/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenStrategy() *TokenStrategy {
	tm := NewTokenManager("access-secret", "refresh-secret", 30*time.Second, 24*time.Hour)
	return NewTokenStrategy(tm, NewMemoryRefreshStore())
}

func TestTokenStrategy_IssueAndAuthenticate(t *testing.T) {
	s := newTestTokenStrategy()
	p := Principal{UserID: "u1", Username: "bat"}

	creds, err := s.Issue(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil), p)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", creds.TokenType)
	assert.Equal(t, 30, creds.ExpiresIn)
	assert.NotEmpty(t, creds.RefreshToken)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"valid", "Bearer " + creds.AccessToken, nil},
		{"lowercase scheme", "bearer " + creds.AccessToken, nil},
		{"missing header", "", ErrMissingCredential},
		{"wrong scheme", "Token " + creds.AccessToken, ErrMissingCredential},
		{"too many parts", "Bearer a b", ErrMissingCredential},
		{"refresh token used as access", "Bearer " + creds.RefreshToken, ErrInvalidCredential},
		{"garbage", "Bearer abc.def.ghi", ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/places", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := s.Authenticate(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, errors.ErrUnauthorized)
				assert.Same(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestTokenStrategy_RefreshAndRevoke(t *testing.T) {
	s := newTestTokenStrategy()
	ctx := context.Background()
	p := Principal{UserID: "u1", Username: "bat"}

	creds, err := s.Issue(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil), p)
	require.NoError(t, err)

	renewed, err := s.Refresh(ctx, creds.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, renewed.AccessToken)
	assert.Empty(t, renewed.RefreshToken, "refresh token is not rotated")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+renewed.AccessToken)
	got, err := s.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = s.Refresh(ctx, "")
	assert.Same(t, ErrMissingRefreshToken, err)

	_, err = s.Refresh(ctx, "not-on-the-list")
	assert.Same(t, ErrInvalidRefreshToken, err)

	assert.Same(t, ErrMissingRefreshToken, s.Revoke(httptest.NewRecorder(), req, ""))
	require.NoError(t, s.Revoke(httptest.NewRecorder(), req, creds.RefreshToken))

	_, err = s.Refresh(ctx, creds.RefreshToken)
	assert.Same(t, ErrInvalidRefreshToken, err)
}

func TestTokenStrategy_ConcurrentSessionsAreIndependent(t *testing.T) {
	s := newTestTokenStrategy()
	ctx := context.Background()
	p := Principal{UserID: "u1", Username: "bat"}
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	first, err := s.Issue(httptest.NewRecorder(), req, p)
	require.NoError(t, err)
	second, err := s.Issue(httptest.NewRecorder(), req, p)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(httptest.NewRecorder(), req, first.RefreshToken))

	_, err = s.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestTokenStrategy_ExpiredRefreshIsDropped(t *testing.T) {
	tm := NewTokenManager("a", "r", time.Second, time.Hour)
	store := NewMemoryRefreshStore()
	s := NewTokenStrategy(tm, store)
	ctx := context.Background()

	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }

	creds, err := s.Issue(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil), Principal{UserID: "u1"})
	require.NoError(t, err)

	// the store still lists it, but the signature has expired
	tm.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = s.Refresh(ctx, creds.RefreshToken)
	assert.Same(t, ErrInvalidRefreshToken, err)

	known, err := store.Contains(ctx, creds.RefreshToken)
	require.NoError(t, err)
	assert.False(t, known)
}
