// Package validation turns go-playground/validator failures into the
// human readable message lists shown on forms.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Validator wraps a configured validator.Validate.
type Validator struct {
	v *validator.Validate
}

// New returns a validator with the custom "username" rule registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct validates s and returns nil or a *Errors.
func (v *Validator) Struct(s interface{}) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	seen := make(map[string]bool)
	for _, fe := range verrs {
		msg := message(fe)
		if seen[msg] {
			continue
		}
		seen[msg] = true
		msgs = append(msgs, msg)
	}
	return &Errors{Messages: msgs}
}

// Errors is a validation failure carrying one message per broken rule.
type Errors struct {
	Messages []string
}

func (e *Errors) Error() string {
	return strings.Join(e.Messages, "; ")
}

// Messages extracts the message list from err, or nil if err is not a
// validation failure.
func Messages(err error) []string {
	var verr *Errors
	if errors.As(err, &verr) {
		return verr.Messages
	}
	return nil
}

var labels = map[string]string{
	"Title":         "Title",
	"Content":       "Content",
	"Tags":          "At least one tag",
	"Question":      "Question",
	"CorrectAnswer": "Correct answer",
	"WrongAnswer1":  "Wrong answer 1",
	"WrongAnswer2":  "Wrong answer 2",
	"WrongAnswer3":  "Wrong answer 3",
	"Username":      "Username",
	"Password":      "Password",
	"Confirmation":  "Password confirmation",
	"OldPassword":   "Current password",
	"Count":         "Question count",
}

func label(fe validator.FieldError) string {
	if l, ok := labels[fe.StructField()]; ok {
		return l
	}
	return fe.StructField()
}

func message(fe validator.FieldError) string {
	name := label(fe)
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "required_with":
		return name + " is required when a question is provided"
	case "min":
		if fe.StructField() == "Tags" {
			return "At least one tag is required"
		}
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "eqfield":
		return name + " does not match"
	case "username":
		return "Username may only contain letters, digits, '-' and '_' (max 64)"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", name)
}
