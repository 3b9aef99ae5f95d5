package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeUnauthenticated ErrorType = "UNAUTHENTICATED"
	ErrorTypeForbidden       ErrorType = "FORBIDDEN"
	ErrorTypeConflict        ErrorType = "CONFLICT"
	ErrorTypeInternal        ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal        ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidID        ErrorCode = "INVALID_ID"
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"

	ErrCodeUnauthenticated    ErrorCode = "UNAUTHENTICATED"
	ErrCodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
	ErrCodeSuperAdminManaged  ErrorCode = "SUPER_ADMIN_MANAGED"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"

	ErrCodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	ErrCodeRoleNotFound     ErrorCode = "ROLE_NOT_FOUND"
	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeSettingsNotFound ErrorCode = "SETTINGS_NOT_FOUND"

	ErrCodeDuplicateRoleName     ErrorCode = "DUPLICATE_ROLE_NAME"
	ErrCodeDuplicateTemplateName ErrorCode = "DUPLICATE_TEMPLATE_NAME"
	ErrCodeDuplicateEmail        ErrorCode = "DUPLICATE_EMAIL"
	ErrCodeSystemRoleImmutable   ErrorCode = "SYSTEM_ROLE_IMMUTABLE"
	ErrCodeInvalidLevelAuthor    ErrorCode = "INVALID_LEVEL_AUTHOR"
	ErrCodeInvalidRoleAssignment ErrorCode = "INVALID_ROLE_ASSIGNMENT"
	ErrCodeRoleInUse             ErrorCode = "ROLE_IN_USE"

	ErrCodeOTPInvalid          ErrorCode = "OTP_INVALID"
	ErrCodeOTPExpired          ErrorCode = "OTP_EXPIRED"
	ErrCodeOTPTooManyAttempts  ErrorCode = "OTP_TOO_MANY_ATTEMPTS"
	ErrCodeOAuthStateInvalid   ErrorCode = "OAUTH_STATE_INVALID"
	ErrCodeOAuthExchange       ErrorCode = "OAUTH_EXCHANGE_FAILED"
	ErrCodeEmailDeliveryFailed ErrorCode = "EMAIL_DELIVERY_FAILED"
	ErrCodeUploadFailed        ErrorCode = "UPLOAD_FAILED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code so sentinel values survive WithCause copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithCause returns a copy so package-level sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthenticatedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthenticated,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewExternalError(message string, code ErrorCode, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

var (
	ErrUnauthenticated   = NewUnauthenticatedError("Authentication required", ErrCodeUnauthenticated)
	ErrPermissionDenied  = NewForbiddenError("You do not have permission to perform this action", ErrCodePermissionDenied)
	ErrSuperAdminManaged = NewForbiddenError("User is managed by a super admin", ErrCodeSuperAdminManaged)
	ErrInvalidID         = NewValidationError("Invalid identifier", ErrCodeInvalidID)

	ErrUserNotFound     = NewNotFoundError("User not found", ErrCodeUserNotFound)
	ErrRoleNotFound     = NewNotFoundError("Role not found", ErrCodeRoleNotFound)
	ErrTemplateNotFound = NewNotFoundError("Settings template not found", ErrCodeTemplateNotFound)

	ErrDuplicateRoleName     = NewValidationError("A role with this name already exists", ErrCodeDuplicateRoleName)
	ErrDuplicateTemplateName = NewValidationError("A template with this name already exists for this type", ErrCodeDuplicateTemplateName)
	ErrDuplicateEmail        = NewConflictError("A user with this email already exists", ErrCodeDuplicateEmail)
	ErrSystemRoleImmutable   = NewForbiddenError("System roles cannot be modified", ErrCodeSystemRoleImmutable)
	ErrInvalidLevelAuthor    = NewForbiddenError("Your role cannot author templates at this level", ErrCodeInvalidLevelAuthor)
	ErrRoleInUse             = NewConflictError("Role is assigned to one or more users", ErrCodeRoleInUse)
	ErrInvalidRoleAssignment = NewForbiddenError("You cannot assign this role", ErrCodeInvalidRoleAssignment)

	ErrInvalidCredentials = NewUnauthenticatedError("Invalid email or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewForbiddenError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthenticatedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthenticatedError("Token has expired", ErrCodeTokenExpired)

	ErrOTPInvalid         = NewUnauthenticatedError("Invalid verification code", ErrCodeOTPInvalid)
	ErrOTPExpired         = NewUnauthenticatedError("Verification code has expired", ErrCodeOTPExpired)
	ErrOTPTooManyAttempts = NewForbiddenError("Too many verification attempts", ErrCodeOTPTooManyAttempts)
	ErrOAuthStateInvalid  = NewUnauthenticatedError("Invalid or expired OAuth state", ErrCodeOAuthStateInvalid)
)

// IsAppError unwraps err looking for an *AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
