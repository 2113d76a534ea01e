package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rewear-api/internal/dto"
	"github.com/noah-isme/rewear-api/internal/models"
)

type fakeMedia struct {
	received []byte
}

func (f *fakeMedia) UploadImage(_ context.Context, r io.Reader, _ *models.JWTClaims) (*dto.UploadImageResponse, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.received = data
	return &dto.UploadImageResponse{URL: "/uploads/items/a.jpg", MIME: "image/jpeg", Size: len(data)}, nil
}

func multipartRequest(t *testing.T, field string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, "photo.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads/images", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestMediaHandlerUpload(t *testing.T) {
	media := &fakeMedia{}
	r := newTestRouter(member("user-1"))
	r.POST("/uploads/images", NewMediaHandler(media).UploadImage)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "file", []byte("fake-image")))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []byte("fake-image"), media.received)
	assert.Contains(t, w.Body.String(), `"url":"/uploads/items/a.jpg"`)
}

func TestMediaHandlerMissingFile(t *testing.T) {
	media := &fakeMedia{}
	r := newTestRouter(member("user-1"))
	r.POST("/uploads/images", NewMediaHandler(media).UploadImage)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "photo", []byte("fake-image")))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "is required", decode(t, w).Error.Fields["file"])
	assert.Nil(t, media.received)
}
