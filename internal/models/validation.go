package models

import (
	"strings"
)

// FieldError is one failed rule on one input field. Err, when set, is the
// sentinel the failure corresponds to so callers can match it with errors.Is.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

// ValidationErrors collects every field failure of one request.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, fe := range v {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() []error {
	var errs []error
	for _, fe := range v {
		if fe.Err != nil {
			errs = append(errs, fe.Err)
		}
	}
	return errs
}

// Fields groups messages by field name for the JSON error envelope.
func (v ValidationErrors) Fields() map[string][]string {
	out := make(map[string][]string, len(v))
	for _, fe := range v {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}
