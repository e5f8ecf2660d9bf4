// Package apperr defines the failure kinds raised by the request pipeline and
// translates any error into the bilingual response envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

type Kind string

const (
	KindTenantNotFound            Kind = "TenantNotFound"
	KindTenantRequired            Kind = "TenantRequired"
	KindMissingCredential         Kind = "MissingCredential"
	KindInvalidCredential         Kind = "InvalidCredential"
	KindExpiredCredential         Kind = "ExpiredCredential"
	KindPrincipalNotFound         Kind = "PrincipalNotFound"
	KindPrincipalInactive         Kind = "PrincipalInactive"
	KindTenantInactive            Kind = "TenantInactive"
	KindInvalidLoginCredentials   Kind = "InvalidLoginCredentials"
	KindRoleForbidden             Kind = "RoleForbidden"
	KindCrossTenantAccessDenied   Kind = "CrossTenantAccessDenied"
	KindNotEnrolled               Kind = "NotEnrolled"
	KindMissingResourceIdentifier Kind = "MissingResourceIdentifier"
	KindResourceNotFound          Kind = "ResourceNotFound"
	KindValidation                Kind = "Validation"
	KindConflict                  Kind = "Conflict"
	KindForeignKey                Kind = "ForeignKey"
	KindFileTooLarge              Kind = "FileTooLarge"
	KindTooManyFiles              Kind = "TooManyFiles"
	KindUnexpectedFile            Kind = "UnexpectedFile"
	KindRateLimited               Kind = "RateLimited"
	KindInternal                  Kind = "Internal"
)

var statusByKind = map[Kind]int{
	KindTenantNotFound:            http.StatusNotFound,
	KindTenantRequired:            http.StatusBadRequest,
	KindMissingCredential:         http.StatusUnauthorized,
	KindInvalidCredential:         http.StatusUnauthorized,
	KindExpiredCredential:         http.StatusUnauthorized,
	KindPrincipalNotFound:         http.StatusUnauthorized,
	KindPrincipalInactive:         http.StatusUnauthorized,
	KindTenantInactive:            http.StatusUnauthorized,
	KindInvalidLoginCredentials:   http.StatusUnauthorized,
	KindRoleForbidden:             http.StatusForbidden,
	KindCrossTenantAccessDenied:   http.StatusForbidden,
	KindNotEnrolled:               http.StatusForbidden,
	KindMissingResourceIdentifier: http.StatusBadRequest,
	KindResourceNotFound:          http.StatusNotFound,
	KindValidation:                http.StatusBadRequest,
	KindConflict:                  http.StatusConflict,
	KindForeignKey:                http.StatusBadRequest,
	KindFileTooLarge:              http.StatusBadRequest,
	KindTooManyFiles:              http.StatusBadRequest,
	KindUnexpectedFile:            http.StatusBadRequest,
	KindRateLimited:               http.StatusTooManyRequests,
	KindInternal:                  http.StatusInternalServerError,
}

var defaultMessages = map[Kind]string{
	KindTenantNotFound:            MsgTenantNotFound,
	KindTenantRequired:            MsgTenantRequired,
	KindMissingCredential:         MsgNotAuthorized,
	KindInvalidCredential:         MsgInvalidToken,
	KindExpiredCredential:         MsgTokenExpired,
	KindPrincipalNotFound:         MsgUserNotFound,
	KindPrincipalInactive:         MsgUserDeactivated,
	KindTenantInactive:            MsgTenantDeactivated,
	KindInvalidLoginCredentials:   MsgInvalidLogin,
	KindRoleForbidden:             MsgForbidden,
	KindCrossTenantAccessDenied:   MsgWrongUniversity,
	KindNotEnrolled:               MsgNotEnrolled,
	KindMissingResourceIdentifier: MsgCourseIDRequired,
	KindResourceNotFound:          MsgNotFound,
	KindValidation:                MsgValidationFailed,
	KindConflict:                  MsgAlreadyExists,
	KindForeignKey:                MsgInvalidReference,
	KindFileTooLarge:              MsgFileTooLarge,
	KindTooManyFiles:              MsgTooManyFiles,
	KindUnexpectedFile:            MsgUnexpectedFile,
	KindRateLimited:               MsgRateLimited,
	KindInternal:                  MsgServerError,
}

// Status returns the HTTP status for a kind; unknown kinds are 500.
func (k Kind) Status() int {
	if status, ok := statusByKind[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified failure. Message is what clients see; Err keeps the
// internal cause for logs and is never rendered into the envelope.
type Error struct {
	Kind      Kind
	Message   string
	MessageAr string
	Field     string
	Fields    []FieldError
	Err       error

	stack error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Trace renders the stack captured when the error was created.
func (e *Error) Trace() string {
	if e.stack == nil {
		return ""
	}
	return fmt.Sprintf("%+v", e.stack)
}

func New(kind Kind, message string) *Error {
	if message == "" {
		message = defaultMessages[kind]
	}
	return &Error{Kind: kind, Message: message, stack: pkgerrors.New(message)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	if cause != nil {
		e.Err = cause
		e.stack = pkgerrors.WithStack(cause)
	}
	return e
}

func Validation(fields ...FieldError) *Error {
	e := New(KindValidation, "")
	e.Fields = fields
	return e
}

func Conflict(field, message string) *Error {
	e := New(KindConflict, message)
	e.Field = field
	return e
}

func RoleForbidden(role string) *Error {
	e := New(KindRoleForbidden, fmt.Sprintf("User role %s is not authorized to access this route", role))
	e.MessageAr = fmt.Sprintf("دور المستخدم %s غير مخول للوصول إلى هذا المسار", role)
	return e
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
