package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so handlers can map it to a transport status
// without inspecting message text.
type Kind int

const (
	KindNotFound Kind = iota
	KindConflict
	KindNotEmpty
	KindQuotaExceeded
	KindUnsupportedType
	KindStorageUnavailable
	KindValidation
)

// Sentinels for errors.Is checks across layers.
var (
	ErrNotFound           = &Error{kind: KindNotFound, msg: "not found"}
	ErrConflict           = &Error{kind: KindConflict, msg: "already exists"}
	ErrNotEmpty           = &Error{kind: KindNotEmpty, msg: "folder is not empty"}
	ErrQuotaExceeded      = &Error{kind: KindQuotaExceeded, msg: "quota exceeded"}
	ErrUnsupportedType    = &Error{kind: KindUnsupportedType, msg: "unsupported file type"}
	ErrStorageUnavailable = &Error{kind: KindStorageUnavailable, msg: "object storage unavailable"}
	ErrValidation         = &Error{kind: KindValidation, msg: "validation failed"}
)

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	kind  Kind
	msg   string
	cause error

	// Quota details, set only for KindQuotaExceeded.
	Quota     int64
	Used      int64
	Available int64
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

// Is matches any *Error of the same kind, so wrapped errors compare
// against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

func NotFound(what string) *Error {
	return &Error{kind: KindNotFound, msg: what + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{kind: KindConflict, msg: msg}
}

func NotEmpty(msg string) *Error {
	return &Error{kind: KindNotEmpty, msg: msg}
}

// QuotaExceeded reports the ceiling, current usage and remaining headroom
// so the caller can size a retry.
func QuotaExceeded(quota, used int64) *Error {
	available := quota - used
	if available < 0 {
		available = 0
	}
	return &Error{
		kind:      KindQuotaExceeded,
		msg:       fmt.Sprintf("quota exceeded: %d of %d bytes used, %d available", used, quota, available),
		Quota:     quota,
		Used:      used,
		Available: available,
	}
}

func UnsupportedType(mimeType, allowed string) *Error {
	return &Error{
		kind: KindUnsupportedType,
		msg:  fmt.Sprintf("file type %q is not allowed (accepted: %s)", mimeType, allowed),
	}
}

func StorageUnavailable(op string, cause error) *Error {
	return &Error{kind: KindStorageUnavailable, msg: "object storage " + op + " failed", cause: cause}
}

func Validation(msg string) *Error {
	return &Error{kind: KindValidation, msg: msg}
}

// KindOf extracts the kind from err, unwrapping as needed. The second
// return reports whether err is an application error at all.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return 0, false
}
