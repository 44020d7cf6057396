// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// Amazon identifiers are ten characters, uppercase alphanumeric,
// starting with B0 for retail products or an ISBN-style digit prefix.
var asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("asin", validateASIN)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateASIN(fl validator.FieldLevel) bool {
	return asinPattern.MatchString(fl.Field().String())
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "asin":
		return e.Field() + " must be a valid 10-character supplier identifier"
	default:
		return e.Field() + " is invalid"
	}
}
