// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/auditpipe/internal/errors"
)

var (
	// eventTypeRegex matches dot-namespaced event types such as "workflow.created".
	eventTypeRegex = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)+$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NotBlank checks that a string contains at least one non-whitespace character.
var NotBlank = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_not_blank", "must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_not_blank", "cannot be blank")
	}
	return nil
})

// EventType checks that a string is a dot-namespaced event type (e.g. "workflow.created").
var EventType = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_event_type", "must be a string")
	}
	if !eventTypeRegex.MatchString(s) {
		return validation.NewError(
			"validation_event_type",
			"must be a dot-namespaced event type (e.g. workflow.created)",
		)
	}
	return nil
})
