package custom_error

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type CustomError interface {
	Error() string
}

type UniqueViolationError struct {
	message string
	code    string // PostgreSQL error code (e.g., "23505")
}

type ForeignKeyViolationError struct {
	message string
	code    string // PostgreSQL error code (e.g., "23503")
}

func (f *ForeignKeyViolationError) Error() string {
	return fmt.Sprintf("%s (code: %s)", f.message, f.code)
}

func (f *ForeignKeyViolationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("%s (code: %s)", e.message, e.code)
}

func (e *UniqueViolationError) Is(target error) bool {
	return target == ErrConflict
}

func WrapDBError(message, code string) CustomError {
	switch code {
	case "23505":
		return &UniqueViolationError{
			message: message,
			code:    code,
		}
	case "23503":
		return &ForeignKeyViolationError{
			message: "Referenced resource does not exist " + message,
			code:    code,
		}
	case "23514", "22001":
		return &ValidationError{Message: message + " (code: " + code + ")"}
	default:
		return fmt.Errorf("uncategorized error occurred with code %s: %s", code, message)
	}
}

// TranslateDBError maps known PostgreSQL constraint failures onto the domain taxonomy and
// wraps everything else with the given context.
func TranslateDBError(err error, message string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "23503", "23514", "22001":
			return WrapDBError(message, string(pqErr.Code))
		}
	}
	return fmt.Errorf("%s: %w", message, err)
}
