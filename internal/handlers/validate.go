package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	msgFieldNotAllowed = "Field not allowed"
	msgFieldEmpty      = "Field should not be empty or null"
	msgFieldRequired   = "Field is required"
	msgFieldInvalidID  = "Field should be a valid identifier"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validatePayload runs the struct tags of v and maps failures to field -> reason.
func validatePayload(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"payload": err.Error()}
	}

	errs := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			errs[fe.Field()] = msgFieldRequired
		case "uuid":
			errs[fe.Field()] = msgFieldInvalidID
		default:
			errs[fe.Field()] = "Field failed " + fe.Tag() + " validation"
		}
	}
	return errs
}
