package jwt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestGenerateAndParseUserID(t *testing.T) {
	ctx := context.Background()
	token, err := Generate(ctx, "user-42", secret)
	require.NoError(t, err)

	userID, err := ParseUserID(ctx, token, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestParseUserIDRejectsWrongSecret(t *testing.T) {
	ctx := context.Background()
	token, err := Generate(ctx, "user-42", secret)
	require.NoError(t, err)

	_, err = ParseUserID(ctx, token, "other-secret")
	assert.Error(t, err)
}

func TestParseUserIDRejectsGarbage(t *testing.T) {
	_, err := ParseUserID(context.Background(), "not.a.token", secret)
	assert.Error(t, err)
}

func TestParseTokenFromHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := ParseTokenFromHeader(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Bearer abc")
	token, err := ParseTokenFromHeader(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ParseTokenFromHeader(r)
	assert.Error(t, err)
}

func TestParseTokenFromRequestPrefersHeaderThenCookie(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := ParseTokenFromRequest(r)
	assert.Error(t, err)

	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie-token"})
	token, err := ParseTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "cookie-token", token)

	r.Header.Set("Authorization", "Bearer header-token")
	token, err = ParseTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "header-token", token)
}
