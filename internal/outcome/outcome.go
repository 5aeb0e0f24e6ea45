// Package outcome defines the tagged results that pipeline components return
// to view controllers instead of raising errors across the view boundary.
package outcome

// Kind classifies a component result.
type Kind string

const (
	// KindOK carries a value.
	KindOK Kind = "ok"
	// KindValidation is a local, pre-request failure. Nothing was sent.
	KindValidation Kind = "validation"
	// KindAuthExpired means the session is missing or expired. It is
	// converted to a sign-in redirect and never shown as an error.
	KindAuthExpired Kind = "auth_expired"
	// KindNotFound means the service has no record for the identifier.
	KindNotFound Kind = "not_found"
	// KindRemote is a structured error message from the service, shown
	// verbatim.
	KindRemote Kind = "remote"
	// KindTransport is a network, timeout or parse failure.
	KindTransport Kind = "transport"
)

// GenericFailureMessage is shown for transport failures.
const GenericFailureMessage = "Something went wrong. Please try again."

// Outcome is the tagged result of a pipeline operation.
type Outcome[T any] struct {
	Kind    Kind
	Value   T
	Message string
	Err     error
}

// OK wraps a successful value.
func OK[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: KindOK, Value: v}
}

// Validation reports a local input problem.
func Validation[T any](msg string, err error) Outcome[T] {
	return Outcome[T]{Kind: KindValidation, Message: msg, Err: err}
}

// AuthExpired reports a missing or expired session.
func AuthExpired[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: KindAuthExpired, Err: err}
}

// NotFound reports an unknown identifier.
func NotFound[T any](msg string, err error) Outcome[T] {
	return Outcome[T]{Kind: KindNotFound, Message: msg, Err: err}
}

// Remote carries a server-supplied error message.
func Remote[T any](msg string, err error) Outcome[T] {
	return Outcome[T]{Kind: KindRemote, Message: msg, Err: err}
}

// Transport reports a generic, retryable failure.
func Transport[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: KindTransport, Message: GenericFailureMessage, Err: err}
}

// IsOK reports whether the outcome carries a value.
func (o Outcome[T]) IsOK() bool {
	return o.Kind == KindOK
}

// Retryable reports whether re-invoking the operation may succeed.
func (o Outcome[T]) Retryable() bool {
	return o.Kind == KindRemote || o.Kind == KindTransport
}

// Error renders the failure for logs. It returns "" for OK outcomes.
func (o Outcome[T]) Error() string {
	switch {
	case o.Kind == KindOK:
		return ""
	case o.Err != nil:
		return string(o.Kind) + ": " + o.Err.Error()
	case o.Message != "":
		return string(o.Kind) + ": " + o.Message
	default:
		return string(o.Kind)
	}
}

// Convert re-tags a failed outcome for a different value type. The value of
// an OK outcome is dropped; callers convert failures only.
func Convert[U, T any](o Outcome[T]) Outcome[U] {
	return Outcome[U]{Kind: o.Kind, Message: o.Message, Err: o.Err}
}

// Priority orders failure kinds when several concurrent calls fail. Higher
// wins.
func Priority(k Kind) int {
	switch k {
	case KindAuthExpired:
		return 5
	case KindNotFound:
		return 4
	case KindRemote:
		return 3
	case KindValidation:
		return 2
	case KindTransport:
		return 1
	default:
		return 0
	}
}
