package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rewear-api/internal/middleware"
	"github.com/noah-isme/rewear-api/internal/models"
)

const (
	itemUUID = "6f1c2b7a-58d4-4e2a-9a0e-2d4b8c1f7a01"
	swapUUID = "6f1c2b7a-58d4-4e2a-9a0e-2d4b8c1f7a02"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func newTestRouter(claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.WithResponseMeta())
	if claims != nil {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserKey, claims)
			c.Next()
		})
	}
	return r
}

func perform(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch v := body.(type) {
		case string:
			reader = bytes.NewBufferString(v)
		default:
			payload, _ := json.Marshal(v)
			reader = bytes.NewBuffer(payload)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func member(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Name: "Member " + id, Email: id + "@rewear.test"}
}

func admin() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Name: "Admin", Email: "admin@rewear.test", IsAdmin: true}
}
