package selection

import (
	"fmt"
	"strings"
	"unicode"

	validatorv10 "github.com/go-playground/validator/v10"
)

// NewValidator returns a validator with the selection rules registered.
func NewValidator() *validatorv10.Validate {
	v := validatorv10.New()

	// nocontrol rejects control characters other than newline and tab in
	// free-text fields that end up printed on kitchen tickets.
	_ = v.RegisterValidation("nocontrol", func(fl validatorv10.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), func(r rune) bool {
			return unicode.IsControl(r) && r != '\n' && r != '\t'
		}) < 0
	})

	return v
}

// Describe flattens validator errors into one line.
func Describe(err error) string {
	ve, ok := err.(validatorv10.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
