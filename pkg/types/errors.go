package types

import "fmt"

// Error codes carried by DBError.
const (
	CodeDuplicateUsername = "DUPLICATE_USERNAME"
	CodeAuthFailed        = "AUTH_FAILED"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeInvalidRole       = "INVALID_ROLE"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotAuthenticated  = "NOT_AUTHENTICATED"
	CodeInvalidState      = "INVALID_STATE"
	CodeSessionTerminated = "SESSION_TERMINATED"
	CodeConnectionLost    = "CONNECTION_LOST"
	CodeStorage           = "STORAGE_ERROR"
)

// Sentinels for errors.Is. Any DBError with the same Code matches.
var (
	ErrDuplicateUsername   = &DBError{Code: CodeDuplicateUsername, Message: "username already exists"}
	ErrAuthFailed          = &DBError{Code: CodeAuthFailed, Message: "invalid username or password"}
	ErrAuthorizationDenied = &DBError{Code: CodePermissionDenied, Message: "permission denied"}
	ErrInvalidRole         = &DBError{Code: CodeInvalidRole, Message: "invalid role"}
	ErrInvalidInput        = &DBError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrNotAuthenticated    = &DBError{Code: CodeNotAuthenticated, Message: "not authenticated"}
	ErrInvalidState        = &DBError{Code: CodeInvalidState, Message: "operation not allowed in current state"}
	ErrSessionTerminated   = &DBError{Code: CodeSessionTerminated, Message: "session terminated"}
	ErrConnectionLost      = &DBError{Code: CodeConnectionLost, Message: "database connection lost"}
)

// DBError represents a gateway error with a stable code.
type DBError struct {
	Code    string
	Message string
	Err     error
}

func (e *DBError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DBError) Unwrap() error {
	return e.Err
}

// Is matches on Code so callers can compare against the sentinels above.
func (e *DBError) Is(target error) bool {
	t, ok := target.(*DBError)
	return ok && t.Code == e.Code
}

// Denied builds a PERMISSION_DENIED error carrying the policy's reason.
func Denied(reason string) *DBError {
	return &DBError{Code: CodePermissionDenied, Message: reason}
}
