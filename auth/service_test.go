package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"reel-scout/memstore"
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(memstore.New(), "test-secret").WithCost(bcrypt.MinCost)
	created, err := svc.SeedAdmin(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	require.True(t, created)
	return svc
}

func TestSeedAdmin_Idempotent(t *testing.T) {
	svc := newService(t)
	created, err := svc.SeedAdmin(context.Background(), "admin", "other")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = svc.Login(context.Background(), "admin", "admin123")
	assert.NoError(t, err, "the first password is kept")
}

func TestLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	cookie, err := svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, CookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)

	claims, err := svc.Verify(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)

	_, err = svc.Login(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerify_RejectsExpiredAndForeignTokens(t *testing.T) {
	svc := newService(t)
	cookie, err := svc.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	_, err = svc.Verify(cookie.Value)
	assert.Error(t, err)

	other := NewService(memstore.New(), "another-secret")
	_, err = other.Verify(cookie.Value)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newService(t)
	cookie, err := svc.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/private", svc.Middleware(), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Username)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
