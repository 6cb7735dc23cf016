package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokens struct {
	validateErr error
	subject     string
	subjectErr  error
}

func (s stubTokens) Validate(context.Context, string) error { return s.validateErr }

func (s stubTokens) ExtractSubject(string) (string, error) { return s.subject, s.subjectErr }

func bearerProtected(tokens TokenChecker, captured *string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := UserFrom(r.Context()); ok {
			*captured = user
		}
		w.WriteHeader(http.StatusOK)
	})
	return BearerAuth(tokens, nil)(next)
}

func TestBearerAuthAcceptsValidToken(t *testing.T) {
	var user string
	handler := bearerProtected(stubTokens{subject: "alice"}, &user)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/validate", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", user, "the token subject reaches the handler context")
}

func TestBearerAuthRejectsMissingHeader(t *testing.T) {
	var user string
	handler := bearerProtected(stubTokens{subject: "alice"}, &user)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/validate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Missing bearer token", resp["error"])
	assert.Empty(t, user)
}

func TestBearerAuthRejectsNonBearerScheme(t *testing.T) {
	var user string
	handler := bearerProtected(stubTokens{subject: "alice"}, &user)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/validate", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuthRejectsInvalidToken(t *testing.T) {
	var user string
	handler := bearerProtected(stubTokens{validateErr: errors.New("token has been revoked")}, &user)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/validate", nil)
	req.Header.Set("Authorization", "Bearer revoked-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Invalid or expired token", resp["error"])
	assert.Empty(t, user)
}

func TestUserFromWithoutAuthentication(t *testing.T) {
	_, ok := UserFrom(context.Background())
	assert.False(t, ok)
}
