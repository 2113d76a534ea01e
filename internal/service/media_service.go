package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/dto"
	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
	"github.com/noah-isme/rewear-api/pkg/imaging"
)

type imageStorage interface {
	Save(filename string, data []byte) (string, error)
}

// MediaService normalises and stores item photos. The returned URLs are
// opaque strings to the rest of the system.
type MediaService struct {
	storage  imageStorage
	maxBytes int64
	options  imaging.Options
	logger   *zap.Logger
}

// NewMediaService constructs a MediaService.
func NewMediaService(storage imageStorage, maxBytes int64, logger *zap.Logger) *MediaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	return &MediaService{
		storage:  storage,
		maxBytes: maxBytes,
		options:  imaging.Options{MaxDimension: imaging.DefaultMaxDimension, Quality: imaging.DefaultJPEGQuality},
		logger:   logger,
	}
}

// UploadImage validates, downsizes and stores one photo for the caller.
func (s *MediaService) UploadImage(ctx context.Context, r io.Reader, actor *models.JWTClaims) (*dto.UploadImageResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	if int64(len(raw)) > s.maxBytes {
		return nil, fieldError("file", fmt.Sprintf("must be at most %d bytes", s.maxBytes))
	}
	if len(raw) == 0 {
		return nil, fieldError("file", "is empty")
	}

	result, err := imaging.Process(bytes.NewReader(raw), s.options)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) {
			return nil, fieldError("file", "must be a JPEG or PNG image")
		}
		return nil, fieldError("file", "could not be decoded as an image")
	}

	name := path.Join("items", actor.UserID, uuid.NewString()+".jpg")
	url, err := s.storage.Save(name, result.Data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}
	s.logger.Debug("stored item image", zap.String("user_id", actor.UserID), zap.String("url", url), zap.Int("bytes", len(result.Data)))

	return &dto.UploadImageResponse{
		URL:    url,
		MIME:   result.MIME,
		Width:  result.Width,
		Height: result.Height,
		Size:   len(result.Data),
	}, nil
}
