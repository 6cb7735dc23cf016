package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlab/backend/internal/auth"
)

type stubFlows struct {
	loginResult   *auth.LoginResult
	loginErr      error
	logoutErr     error
	refreshResult *auth.LoginResult
	refreshErr    error

	lastUsername string
	lastToken    string
}

func (s *stubFlows) Login(_ context.Context, username, _, _, _ string) (*auth.LoginResult, error) {
	s.lastUsername = username
	return s.loginResult, s.loginErr
}

func (s *stubFlows) Logout(_ context.Context, token, _, _ string) error {
	s.lastToken = token
	return s.logoutErr
}

func (s *stubFlows) Refresh(_ context.Context, refreshToken, _, _ string) (*auth.LoginResult, error) {
	s.lastToken = refreshToken
	return s.refreshResult, s.refreshErr
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLoginHandlerSuccess(t *testing.T) {
	flows := &stubFlows{loginResult: &auth.LoginResult{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresInMs:  900000,
	}}
	h := NewAuthHandler(flows, nil)

	rec := postJSON(t, h.Login, "/api/auth/login", `{"username":"alice","password":"s3cret"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "access-token", resp.AccessToken)
	assert.Equal(t, "refresh-token", resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(900000), resp.ExpiresIn)
	assert.Equal(t, "alice", flows.lastUsername)
}

func TestLoginHandlerMalformedBody(t *testing.T) {
	h := NewAuthHandler(&stubFlows{}, nil)

	rec := postJSON(t, h.Login, "/api/auth/login", `{"username":`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Invalid request body", resp.Message)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestLoginHandlerValidation(t *testing.T) {
	h := NewAuthHandler(&stubFlows{}, nil)

	rec := postJSON(t, h.Login, "/api/auth/login", `{"username":"al","password":""}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, "Validation failed", resp.Message)
	assert.Equal(t, "username is too short", resp.Details["username"])
	assert.Equal(t, "password is required", resp.Details["password"])
}

func TestLoginHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"inactive account", auth.ErrAccountInactive, http.StatusUnauthorized},
		{"locked account", auth.ErrAccountLocked, http.StatusUnauthorized},
		{"auth unavailable", auth.ErrAuthUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&stubFlows{loginErr: tt.err}, nil)
			rec := postJSON(t, h.Login, "/api/auth/login", `{"username":"alice","password":"s3cret"}`)

			require.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeErrorResponse(t, rec)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.err.Error(), resp.Message)
		})
	}
}

func TestLogoutHandlerWithoutToken(t *testing.T) {
	h := NewAuthHandler(&stubFlows{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "Authorization header is required", resp["message"])
}

func TestLogoutHandlerSuccess(t *testing.T) {
	flows := &stubFlows{}
	h := NewAuthHandler(flows, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer the-token")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "Logged out successfully", resp["message"])
	assert.Equal(t, "the-token", flows.lastToken)
}

func TestLogoutHandlerInvalidToken(t *testing.T) {
	h := NewAuthHandler(&stubFlows{logoutErr: auth.ErrTokenInvalid}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshHandlerSuccess(t *testing.T) {
	flows := &stubFlows{refreshResult: &auth.LoginResult{
		AccessToken:  "new-access",
		RefreshToken: "same-refresh",
		ExpiresInMs:  900000,
	}}
	h := NewAuthHandler(flows, nil)

	rec := postJSON(t, h.Refresh, "/api/auth/refresh", `{"refreshToken":"same-refresh"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "new-access", resp.AccessToken)
	assert.Equal(t, "same-refresh", resp.RefreshToken)
	assert.Equal(t, "same-refresh", flows.lastToken)
}

func TestRefreshHandlerMissingToken(t *testing.T) {
	h := NewAuthHandler(&stubFlows{}, nil)

	rec := postJSON(t, h.Refresh, "/api/auth/refresh", `{}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, "Refresh token is required", resp.Details["refreshToken"])
}

func TestRefreshHandlerRevokedToken(t *testing.T) {
	h := NewAuthHandler(&stubFlows{refreshErr: auth.ErrTokenInvalid}, nil)

	rec := postJSON(t, h.Refresh, "/api/auth/refresh", `{"refreshToken":"revoked"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
