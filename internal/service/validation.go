package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
)

// newValidator returns validate, or a fresh validator, reporting json field names.
func newValidator(validate *validator.Validate) *validator.Validate {
	if validate == nil {
		validate = validator.New()
	}
	validate.RegisterTagNameFunc(jsonFieldName)
	return validate
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return field.Name
	}
	return name
}

// validationError converts validator output into a VALIDATION_ERROR with a field map.
func validationError(err error, message string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeRule(fe)
	}
	appErr := appErrors.WithFields(appErrors.ErrValidation, fields)
	appErr.Message = message
	return appErr
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "uuid":
		return "must be a valid id"
	default:
		return "is invalid"
	}
}

// fieldError builds a VALIDATION_ERROR for a single field.
func fieldError(field, reason string) error {
	appErr := appErrors.WithFields(appErrors.ErrValidation, map[string]string{field: reason})
	appErr.Message = field + " " + reason
	return appErr
}

// normalizePage clamps page/pageSize to the list defaults. The page is capped
// so that (page-1)*pageSize always fits in an int.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page > maxPage {
		page = maxPage
	}
	return page, pageSize
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 1_000_000
)
