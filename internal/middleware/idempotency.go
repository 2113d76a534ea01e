package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/repository"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
	"github.com/noah-isme/rewear-api/pkg/response"
)

const (
	// IdempotencyHeader carries the client-chosen key.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayHeader marks a response served from the idempotency store.
	ReplayHeader = "Idempotent-Replay"

	maxIdempotencyKeyLength = 255
)

type idempotencyStore interface {
	Reserve(key, bodyHash string) (*repository.StoredResponse, error)
	Complete(key string, resp repository.StoredResponse) error
	Release(key string) error
}

// Idempotency replays the first response recorded for a caller's
// Idempotency-Key. Requests without the header pass straight through. A key
// reused with a different body is rejected with 409 instead of replaying.
// Server errors release the key so the client may retry. Must run after JWT.
func Idempotency(store idempotencyStore, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if key == "" || store == nil {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			response.Error(c, appErrors.WithFields(appErrors.ErrValidation, map[string]string{
				"idempotency_key": "must be at most 255 characters",
			}))
			c.Abort()
			return
		}

		bodyHash, err := hashRequestBody(c)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unable to read request body"))
			c.Abort()
			return
		}

		scoped := idempotencyScope(c, key)
		stored, err := store.Reserve(scoped, bodyHash)
		switch {
		case errors.Is(err, repository.ErrIdempotencyMismatch):
			response.Error(c, appErrors.Clone(appErrors.ErrConflict, "idempotency key was already used with a different request body"))
			c.Abort()
			return
		case errors.Is(err, repository.ErrIdempotencyInFlight):
			response.Error(c, appErrors.Clone(appErrors.ErrConflict, "a request with this idempotency key is still in progress"))
			c.Abort()
			return
		case err != nil:
			logger.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		case stored != nil:
			c.Header(ReplayHeader, "true")
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		completed := false
		defer func() {
			if completed {
				return
			}
			if err := store.Release(scoped); err != nil {
				logger.Warn("failed to release idempotency key", zap.Error(err))
			}
		}()

		c.Next()

		status := recorder.Status()
		if status >= 500 {
			return
		}
		if err := store.Complete(scoped, repository.StoredResponse{
			Status:      status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
			BodyHash:    bodyHash,
		}); err != nil {
			logger.Warn("failed to store idempotent response", zap.Error(err))
			return
		}
		completed = true
	}
}

// hashRequestBody fingerprints the request body and puts it back for the handler.
func hashRequestBody(c *gin.Context) (string, error) {
	var raw []byte
	if c.Request.Body != nil {
		var err error
		raw, err = io.ReadAll(c.Request.Body)
		_ = c.Request.Body.Close()
		if err != nil {
			return "", err
		}
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func idempotencyScope(c *gin.Context, key string) string {
	userID := "anonymous"
	if claims, ok := CurrentUser(c); ok {
		userID = claims.UserID
	}
	return strings.Join([]string{userID, c.Request.Method, c.Request.URL.Path, key}, ":")
}

// bodyRecorder tees the response body so it can be stored after the handler runs.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
