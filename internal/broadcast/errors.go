package broadcast

import "errors"

var ErrTaskNotFound = errors.New("task not found")

// FormatError means the input did not match the expected delimiter grammar.
// It is recoverable: the authoring session re-prompts and keeps its mode.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string { return e.Msg }

// ValidationError means a field parsed but is out of range or otherwise
// unusable. Recoverable the same way as FormatError.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// IsUserError reports whether err should be shown to the authoring user as a
// re-prompt rather than logged as a failure.
func IsUserError(err error) bool {
	var fe *FormatError
	var ve *ValidationError
	return errors.As(err, &fe) || errors.As(err, &ve)
}
