// Package apierr defines the stable error-kind taxonomy shared by the
// registry, persistence, service façade, and HTTP wire layer. Every
// error that can reach a caller of the service is one of these kinds;
// anything else is a programmer bug and panics instead.
package apierr

// Kind is a stable, user-visible error identifier. Never renamed once
// shipped — clients match on the string.
type Kind string

const (
	BadRequest              Kind = "BAD_REQUEST"
	InvalidCollectionName   Kind = "INVALID_COLLECTION_NAME"
	InvalidDimension        Kind = "INVALID_DIMENSION"
	InvalidID               Kind = "INVALID_ID"
	InvalidK                Kind = "INVALID_K"
	DimensionMismatch       Kind = "DIMENSION_MISMATCH"
	NonFiniteComponent      Kind = "NON_FINITE_COMPONENT"
	CollectionAlreadyExists Kind = "COLLECTION_ALREADY_EXISTS"
	CollectionNotFound      Kind = "COLLECTION_NOT_FOUND"
	RecordNotFound          Kind = "RECORD_NOT_FOUND"
	CorruptSnapshot         Kind = "CORRUPT_SNAPSHOT"
	IOFailure               Kind = "IO_FAILURE"
	Cancelled               Kind = "CANCELLED"
)

// Error is the typed error every service operation returns on failure.
// The HTTP layer maps Kind to a status code; it never inspects Message
// to decide behavior.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New builds an *Error whose Message is detail, or the kind string
// itself when detail is empty.
func New(kind Kind, detail string) *Error {
	msg := string(kind)
	if detail != "" {
		msg = detail
	}
	return &Error{Kind: kind, Message: msg}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
