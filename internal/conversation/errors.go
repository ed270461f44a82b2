package conversation

import "errors"

// ValidationError is a command rejected locally before reaching the backend.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validation failures.
var (
	ErrNoBusinessSelected = &ValidationError{Msg: "Please select a business first"}
	ErrAlreadyActive      = &ValidationError{Msg: "A conversation is already in progress"}
	ErrSelectionLocked    = &ValidationError{Msg: "Cannot change business while a conversation is running"}
	ErrUnknownBusiness    = &ValidationError{Msg: "Unknown business"}
)

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
