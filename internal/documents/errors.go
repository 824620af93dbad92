package documents

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both true absence and documents the actor may not
	// see; callers must not be able to tell the two apart.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a commit targets an id that already has a
	// record, e.g. finalizing the same upload twice.
	ErrConflict = errors.New("document already exists")
	// ErrInvalidInput covers malformed requests that are not field-level
	// validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// Validation failure codes. The field name travels with the code so clients
// can attach the message to the right input.
const (
	CodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeEmptyFile           = "EMPTY_FILE"
	CodeMissingLocation     = "MISSING_LOCATION"
	CodeInvalidSensitivity  = "INVALID_SENSITIVITY"
	CodeInvalidDate         = "INVALID_DATE"
	CodeInvalidFileName     = "INVALID_FILE_NAME"
	CodeInvalidFileURL      = "INVALID_FILE_URL"
)

// ValidationError reports a single rejected input field. The message is safe
// to return to the caller verbatim.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, code, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
}
