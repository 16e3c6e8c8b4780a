package one

import "fmt"

// Kind classifies an [Error].
type Kind string

// Error kinds. The server-side kinds follow the XML-RPC API error codes.
const (
	KindGeneric        Kind = "generic"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindAction         Kind = "action"
	KindAPI            Kind = "api"
	KindInternal       Kind = "internal"
	KindMarshal        Kind = "marshal"
	KindFixtureMissing Kind = "fixture_missing"
)

// Server error codes, as returned in the third element of a failed response.
const (
	CodeAuthentication = 0x0100
	CodeAuthorization  = 0x0200
	CodeNotFound       = 0x0400
	CodeAction         = 0x0800
	CodeAPI            = 0x1000
	CodeInternal       = 0x2000
)

// Error is the error type returned by every operation of this package.
//
// Use errors.As to catch any client error and errors.Is with one of the
// sentinel values to match a single kind:
//
//	_, err := client.Call(ctx, "host.info", 42)
//	if errors.Is(err, one.ErrNotFound) {
//	    // ...
//	}
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Method  string
	Cause   error
}

func (e *Error) Error() string {
	prefix := "one"
	if e.Method != "" {
		prefix = "one: " + e.Method
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %s: %v", prefix, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel errors, one per kind. Compare with errors.Is.
var (
	ErrGeneric        = &Error{Kind: KindGeneric, Message: "request failed"}
	ErrAuthentication = &Error{Kind: KindAuthentication, Message: "authentication failed", Code: CodeAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization, Message: "not authorized", Code: CodeAuthorization}
	ErrNotFound       = &Error{Kind: KindNotFound, Message: "object not found", Code: CodeNotFound}
	ErrAction         = &Error{Kind: KindAction, Message: "action failed", Code: CodeAction}
	ErrAPI            = &Error{Kind: KindAPI, Message: "api error", Code: CodeAPI}
	ErrInternal       = &Error{Kind: KindInternal, Message: "internal error", Code: CodeInternal}
	ErrMarshal        = &Error{Kind: KindMarshal, Message: "cannot cast parameter"}
	ErrFixtureMissing = &Error{Kind: KindFixtureMissing, Message: "fixture not found"}
)

// kindForCode maps a server error code to its kind.
func kindForCode(code int) Kind {
	switch code {
	case CodeAuthentication:
		return KindAuthentication
	case CodeAuthorization:
		return KindAuthorization
	case CodeNotFound:
		return KindNotFound
	case CodeAction:
		return KindAction
	case CodeAPI:
		return KindAPI
	case CodeInternal:
		return KindInternal
	default:
		return KindGeneric
	}
}

// ParseKind returns the Kind named s and whether it is a known kind.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindGeneric, KindAuthentication, KindAuthorization, KindNotFound,
		KindAction, KindAPI, KindInternal, KindMarshal, KindFixtureMissing:
		return k, true
	default:
		return KindGeneric, false
	}
}

func newError(kind Kind, message string, code int, cause error) *Error {
	return &Error{Kind: kind, Message: message, Code: code, Cause: cause}
}

// Fault is an XML-RPC fault raised by the server before the API could build
// a regular response (unknown method, malformed call).
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", f.Code, f.Message)
}
