package usecase

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/you-humble/audioclip/internal/domain"
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

// validateRequest runs the struct tag rules and returns the collected field
// errors. Range and locator checks are added by the caller.
func validateRequest(req domain.SubmitRequest) *domain.ValidationError {
	verr := &domain.ValidationError{}

	err := validate.Struct(req)
	if err == nil {
		return verr
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		verr.Add("request", "%v", err)
		return verr
	}

	for _, fe := range ves {
		switch fe.Tag() {
		case "required":
			verr.Add(fe.Field(), "is required")
		case "oneof":
			verr.Add(fe.Field(), "must be one of %s", strings.ReplaceAll(fe.Param(), " ", ", "))
		case "max":
			verr.Add(fe.Field(), "must be at most %s characters", fe.Param())
		default:
			verr.Add(fe.Field(), "failed on the '%s' rule", fe.Tag())
		}
	}
	return verr
}
