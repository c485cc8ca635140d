package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/service/internal/middleware"
)

func TestIssueTokenIsAcceptedByRequireAuth(t *testing.T) {
	token, err := IssueToken("s3cret", "catalog-admin", time.Hour)
	require.NoError(t, err)

	var subject string
	h := middleware.RequireAuth("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = middleware.Subject(r.Context())
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "catalog-admin", subject)
}

func TestIssueTokenDefaultTTL(t *testing.T) {
	token, err := IssueToken("s3cret", "ops", 0)
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestIssueTokenValidation(t *testing.T) {
	_, err := IssueToken("", "ops", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = IssueToken("s3cret", "", time.Hour)
	assert.Error(t, err)
}
