package handlers

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"ticket-issuer/internal/status"
)

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// checkRequest runs struct tag validation and folds the result into the
// request sentinels. Missing fields win over malformed ones.
func checkRequest(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	for _, f := range fields {
		if f.Tag() == "required" {
			return fmt.Errorf("%w: %s", status.ErrMissingFields, f.Field())
		}
	}
	for _, f := range fields {
		if f.Tag() == "email" {
			return fmt.Errorf("%w: %s", status.ErrInvalidEmail, f.Field())
		}
	}
	return fmt.Errorf("%w: %s", status.ErrMissingFields, fields[0].Field())
}
