package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// GetValidator exposes the shared validator instance.
func GetValidator() *validator.Validate {
	return validate
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"request": err.Error()}
	}

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}
