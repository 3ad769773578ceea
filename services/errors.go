package services

import (
	"errors"
	"fmt"

	"github.com/example/hwidlock/store"
)

// Kind classifies a failure. The values double as the "error" field of the
// JSON responses.
type Kind string

const (
	KindBadRequest        Kind = "Bad Request"
	KindInvalidKey        Kind = "Invalid Key"
	KindHWIDMismatch      Kind = "HWID Mismatch"
	KindHWIDLimitExceeded Kind = "HWID Limit Exceeded"
	KindDuplicateKey      Kind = "Duplicate Key"
	KindNotFound          Kind = "Not Found"
	KindUnauthorized      Kind = "Unauthorized"
	KindInternal          Kind = "Internal Server Error"
)

// Error is a business-rule rejection. Details carries extra response fields
// such as the currently bound fingerprint.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) with(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf classifies err. Store sentinels map to their kinds and anything
// unrecognised is Internal.
func KindOf(err error) Kind {
	var svcErr *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &svcErr):
		return svcErr.Kind
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, store.ErrDuplicateKey):
		return KindDuplicateKey
	}
	return KindInternal
}
