// Package validators holds the validator/v10 instance shared by the
// request validators of every area.
package validators

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// Check validates v and returns a field -> message map, nil when valid.
func Check(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"body": "Invalid request body!"}
	}

	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fieldPath(fe)] = message(fe)
	}
	return out
}

// fieldPath drops the root struct name: "student.email", "ids[0]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "This field is required!"
	case "email":
		return "Invalid email!"
	case "len":
		return fmt.Sprintf("Must be exactly %s characters long!", fe.Param())
	case "numeric":
		return "Must contain only digits!"
	case "oneof":
		return fmt.Sprintf("Must be one of: %s!", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return "Invalid date, expected YYYY-MM-DD!"
	case "min":
		return fmt.Sprintf("Must contain at least %s item(s)!", fe.Param())
	case "gt":
		return fmt.Sprintf("Must be greater than %s!", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be at least %s!", fe.Param())
	case "lte":
		return fmt.Sprintf("Must be at most %s!", fe.Param())
	}
	return "Invalid value!"
}
