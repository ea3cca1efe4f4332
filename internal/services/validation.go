package services

import (
	"errors"
	"fmt"
	"regexp"

	"kedai/internal/models"

	"github.com/go-playground/validator/v10"
)

// Gateway order references: letters, digits, "-", "_", "~" and ".".
var orderIDPattern = regexp.MustCompile(fmt.Sprintf(`^[A-Za-z0-9\-_.~]{1,%d}$`, models.MaxOrderIDLength))

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("orderid", func(fl validator.FieldLevel) bool {
		return orderIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidOrderID reports whether id can be used as an order identifier.
func ValidOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}

func validationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &ValidationError{Message: err.Error()}
	}
	fields := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		fields[e.Namespace()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return &ValidationError{Message: "Validation failed", Fields: fields}
}
