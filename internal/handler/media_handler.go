package handler

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rewear-api/internal/dto"
	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
	"github.com/noah-isme/rewear-api/pkg/response"
)

type mediaService interface {
	UploadImage(ctx context.Context, r io.Reader, actor *models.JWTClaims) (*dto.UploadImageResponse, error)
}

// MediaHandler accepts item photo uploads.
type MediaHandler struct {
	service mediaService
}

// NewMediaHandler constructs a MediaHandler.
func NewMediaHandler(svc mediaService) *MediaHandler {
	return &MediaHandler{service: svc}
}

// UploadImage godoc
// @Summary Upload an item photo
// @Description JPEG or PNG, downscaled and stored as JPEG. Use the returned URL in an item's images.
// @Tags Media
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /uploads/images [post]
func (h *MediaHandler) UploadImage(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.WithFields(appErrors.ErrValidation, map[string]string{"file": "is required"}))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	uploaded, err := h.service.UploadImage(c.Request.Context(), src, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, uploaded)
}
