// Package client is the client-side state layer of the places app: an HTTP
// client for the API, persisted credentials, the auth and places state
// containers and the session lifecycle manager that expires or renews the
// access token.
package client

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"places-server/models"

	"github.com/goccy/go-json"
)

// ErrorKind classifies failures for display.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindConflict     ErrorKind = "conflict"
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindFailure      ErrorKind = "failure"
)

// Error is a classified API or transport failure.
type Error struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindFailure for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindFailure
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// errorFromResponse maps an API error body onto a kind. Conflicts are sent as
// 400 with code CONFLICT.
func errorFromResponse(resp *http.Response) *Error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}

	e := &Error{Status: resp.StatusCode, Code: body.Code, Message: body.Message}
	switch {
	case resp.StatusCode == http.StatusBadRequest && body.Code == "CONFLICT":
		e.Kind = KindConflict
	case resp.StatusCode == http.StatusBadRequest:
		e.Kind = KindValidation
	case resp.StatusCode == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		e.Kind = KindForbidden
	case resp.StatusCode == http.StatusNotFound:
		e.Kind = KindNotFound
	default:
		e.Kind = KindFailure
	}
	return e
}

// LoginResult is the body of a successful login. Tokens are empty when the
// server uses session cookies.
type LoginResult struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	TokenType    string       `json:"token_type"`
	User         *models.User `json:"user"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

type AddFriendResult struct {
	User        *models.User         `json:"user"`
	AddedFriend models.FriendSummary `json:"addedFriend"`
}

// APIClient calls the places API. The bearer token is read from storage on
// every request so a renewed token is picked up immediately.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	storage    Storage
}

type Option func(*APIClient)

// WithHTTPClient replaces the default client, e.g. to add a cookie jar for
// session based servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *APIClient) { c.httpClient = hc }
}

func NewAPIClient(baseURL string, storage Storage, opts ...Option) *APIClient {
	c := &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		storage:    storage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: KindFailure, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Kind: KindFailure, Message: "build request", Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token, ok := c.storage.Get(KeyAccessToken); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindFailure, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindFailure, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

func (c *APIClient) Register(ctx context.Context, in RegisterRequest) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodPost, "/api/users/register", in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var res LoginResult
	in := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/users/login", in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *APIClient) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var res struct {
		AccessToken string `json:"access_token"`
	}
	in := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", in, &res); err != nil {
		return "", err
	}
	if res.AccessToken == "" {
		return "", &Error{Kind: KindFailure, Message: "refresh returned no access token"}
	}
	return res.AccessToken, nil
}

func (c *APIClient) Logout(ctx context.Context, refreshToken string) error {
	var in any
	if refreshToken != "" {
		in = map[string]string{"refresh_token": refreshToken}
	}
	return c.do(ctx, http.MethodPost, "/api/auth/logout", in, nil)
}

func (c *APIClient) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.do(ctx, http.MethodGet, "/api/users", nil, &users)
	return users, err
}

func (c *APIClient) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	var users []models.User
	err := c.do(ctx, http.MethodGet, "/api/users/search/"+url.PathEscape(query), nil, &users)
	return users, err
}

func (c *APIClient) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(id), upd, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) AddFriend(ctx context.Context, id, friendID string) (*models.User, error) {
	var u models.User
	in := map[string]string{"friendId": friendID}
	if err := c.do(ctx, http.MethodPost, "/api/users/"+url.PathEscape(id)+"/friends", in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) RemoveFriend(ctx context.Context, id, friendID string) (*models.User, error) {
	var u models.User
	path := "/api/users/" + url.PathEscape(id) + "/friends/" + url.PathEscape(friendID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) AddFriendByUsername(ctx context.Context, id, username string) (*AddFriendResult, error) {
	var res AddFriendResult
	in := map[string]string{"username": username}
	if err := c.do(ctx, http.MethodPost, "/api/users/"+url.PathEscape(id)+"/friends/add-by-username", in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *APIClient) ListPlaces(ctx context.Context) ([]models.Place, error) {
	var places []models.Place
	err := c.do(ctx, http.MethodGet, "/api/places", nil, &places)
	return places, err
}

func (c *APIClient) ListUserPlaces(ctx context.Context, userID string) ([]models.Place, error) {
	var places []models.Place
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/places", nil, &places)
	return places, err
}

func (c *APIClient) CreatePlace(ctx context.Context, in models.PlaceInput) (*models.Place, error) {
	var p models.Place
	if err := c.do(ctx, http.MethodPost, "/api/places", in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *APIClient) UpdatePlace(ctx context.Context, id string, in models.PlaceInput) (*models.Place, error) {
	var p models.Place
	if err := c.do(ctx, http.MethodPut, "/api/places/"+url.PathEscape(id), in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePlace sends ownerID in the body for older servers that read it; the
// current server checks ownership against the credential.
func (c *APIClient) DeletePlace(ctx context.Context, id, ownerID string) error {
	in := map[string]string{"userId": ownerID}
	return c.do(ctx, http.MethodDelete, "/api/places/"+url.PathEscape(id), in, nil)
}
