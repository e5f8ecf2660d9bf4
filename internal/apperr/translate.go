package apperr

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	MessageAr string       `json:"message_ar,omitempty"`
	Data      any          `json:"data,omitempty"`
	Errors    []FieldError `json:"errors,omitempty"`
	Field     string       `json:"field,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
	Path      string       `json:"path,omitempty"`
	Method    string       `json:"method,omitempty"`
	Stack     string       `json:"stack,omitempty"`
}

func Success(message string, data any) Envelope {
	return Envelope{
		Success:   true,
		Message:   message,
		MessageAr: Arabic(message),
		Data:      data,
	}
}

type Translator struct {
	Production bool
	Now        func() time.Time
}

// Translate classifies err and renders the failure envelope for r.
func (t Translator) Translate(err error, r *http.Request) (int, Envelope) {
	appErr := Classify(err)
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}

	env := Envelope{
		Success:   false,
		Message:   appErr.Message,
		MessageAr: appErr.MessageAr,
		Errors:    appErr.Fields,
		Field:     appErr.Field,
		Timestamp: now().UTC().Format(time.RFC3339),
	}
	if env.MessageAr == "" {
		env.MessageAr = Arabic(appErr.Message)
	}
	if r != nil {
		env.Path = r.URL.Path
		env.Method = r.Method
	}
	if !t.Production {
		env.Stack = appErr.Trace()
	}
	return appErr.Kind.Status(), env
}

// Classify maps any error onto an *Error. Errors that are not recognised
// become KindInternal with a generic message; their text never reaches clients.
func Classify(err error) *Error {
	if err == nil {
		return New(KindInternal, "")
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPg(pgErr, err)
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return Wrap(KindExpiredCredential, "", err)
	}
	if isTokenError(err) {
		return Wrap(KindInvalidCredential, "", err)
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return Wrap(KindFileTooLarge, "", err)
	}

	return Wrap(KindInternal, "", err)
}

func isTokenError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenInvalidClaims,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenRequiredClaimMissing,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
	pgInvalidText         = "22P02"
)

func classifyPg(pgErr *pgconn.PgError, cause error) *Error {
	switch pgErr.Code {
	case pgUniqueViolation:
		e := Wrap(KindConflict, "", cause)
		e.Field = fieldFromConstraint(pgErr.TableName, pgErr.ConstraintName)
		return e
	case pgForeignKeyViolation:
		return Wrap(KindForeignKey, "", cause)
	case pgNotNullViolation, pgCheckViolation, pgInvalidText:
		e := Wrap(KindValidation, "", cause)
		field := pgErr.ColumnName
		if field == "" {
			field = fieldFromConstraint(pgErr.TableName, pgErr.ConstraintName)
		}
		e.Fields = []FieldError{{Field: field, Message: pgErr.Message}}
		return e
	default:
		return Wrap(KindInternal, "", cause)
	}
}

// fieldFromConstraint turns "users_email_key" into "email".
func fieldFromConstraint(table, constraint string) string {
	field := strings.TrimPrefix(constraint, table+"_")
	for _, suffix := range []string{"_key", "_check", "_fkey", "_idx"} {
		field = strings.TrimSuffix(field, suffix)
	}
	return field
}
