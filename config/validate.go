package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the `validate` tags of a params struct.
func Validate(params any) error {
	if err := validate.Struct(params); err != nil {
		return fmt.Errorf("invalid %T: %w", params, err)
	}
	return nil
}
