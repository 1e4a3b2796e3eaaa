// Package schema validates events and API requests against their struct tags.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks `validate` struct tags before a value leaves the service
// or enters the session layer.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so errors match what clients send.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate returns nil for valid structs and a *FieldError listing every
// violated field otherwise. Non-struct values are accepted as is.
func (v *Validator) Validate(value any) error {
	err := v.v.Struct(value)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	out := &FieldError{}
	for _, f := range fields {
		out.Fields = append(out.Fields, fmt.Sprintf("%s: failed %s", f.Field(), f.Tag()))
	}
	return out
}

// FieldError lists the fields that failed validation.
type FieldError struct {
	Fields []string
}

func (e *FieldError) Error() string {
	return "invalid " + strings.Join(e.Fields, "; ")
}
