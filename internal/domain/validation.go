package domain

import (
	"github.com/go-playground/validator/v10"
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs the package validator against any tagged struct.
// Exposed so request types outside the package share one validator cache.
func ValidateStruct(v any) error { return validate.Struct(v) }
