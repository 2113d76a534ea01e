package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rewear-api/internal/models"
	"github.com/noah-isme/rewear-api/internal/service"
	"github.com/noah-isme/rewear-api/pkg/logger"
)

const testSecret = "middleware-secret"

func newAuthService() *service.AuthService {
	return service.NewAuthService(nil, nil, nil, service.AuthConfig{AccessTokenSecret: testSecret, AccessTokenExpiry: time.Hour})
}

func signToken(t *testing.T, userID string, admin bool) string {
	t.Helper()
	now := time.Now()
	claims := &models.JWTClaims{
		UserID:  userID,
		IsAdmin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func whoAmI(c *gin.Context) {
	claims, ok := CurrentUser(c)
	if !ok {
		c.String(http.StatusOK, "anonymous")
		return
	}
	c.String(http.StatusOK, claims.UserID+"|"+c.GetString(logger.UserIDKey))
}

func TestJWTRequiresBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", JWT(newAuthService()), whoAmI)

	cases := map[string]int{
		"":                   http.StatusUnauthorized,
		"Basic abc":          http.StatusUnauthorized,
		"Bearer not-a-token": http.StatusUnauthorized,
		"Bearer " + signToken(t, "u1", false): http.StatusOK,
	}
	for header, want := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, header)
		if want == http.StatusOK {
			assert.Equal(t, "u1|u1", w.Body.String())
		} else {
			assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
		}
	}
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/items/:id", OptionalJWT(newAuthService()), whoAmI)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set("Authorization", "Bearer broken")
	router.ServeHTTP(w, req)
	assert.Equal(t, "anonymous", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "u2", false))
	router.ServeHTTP(w, req)
	assert.Equal(t, "u2|u2", w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin", JWT(newAuthService()), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for token, want := range map[string]int{
		signToken(t, "member", false): http.StatusForbidden,
		signToken(t, "admin", true):   http.StatusNoContent,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code)
	}

	bare := gin.New()
	bare.GET("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	bare.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
