package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of value. Failures are 400 errors naming every bad field.
func Validate[T any](value T) (T, error) {
	if err := validate.Struct(value); err != nil {
		return value, httperror.WrapError(http.StatusBadRequest, ValidationErrorToString(value, err))
	}

	return value, nil
}

func ValidateValue(value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return httperror.WrapError(http.StatusBadRequest, ValidationErrorToString(value, err))
	}
	return nil
}

func ValidationErrorToString(input any, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s=%s' (got '%v')", fe.StructField(), fe.Tag(), fe.Param(), fe.Value()))
			continue
		}
		parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s' (got '%v')", fe.StructField(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid %T: %s", input, strings.Join(parts, "; "))
}
