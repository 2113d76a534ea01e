package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/rewear-api/internal/middleware"
	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
	"github.com/noah-isme/rewear-api/pkg/response"
)

var (
	errItemNotFound = appErrors.Clone(appErrors.ErrNotFound, "item not found")
	errSwapNotFound = appErrors.Clone(appErrors.ErrNotFound, "swap request not found")
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return claims
}

// requireClaims writes 401 and returns false when the request is anonymous.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

// bindError reports a payload gin could not decode.
func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}

// pathID reads a UUID path parameter. Anything that is not a UUID cannot name
// a stored row, so it is answered with 404 before reaching the database.
func pathID(c *gin.Context, name string, notFound *appErrors.Error) (string, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		response.Error(c, notFound)
		return "", false
	}
	return id.String(), true
}
