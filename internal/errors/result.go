package errors

// Status is the outcome of a guarded call to an external collaborator.
type Status int

const (
	// StatusOK means the backend answered.
	StatusOK Status = iota
	// StatusDegraded means the backend failed and a neutral value stands in.
	StatusDegraded
	// StatusFailed means the call could not produce any usable value.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result carries a value together with how it was obtained. Wrappers around
// the vector service, lexical index, reranker and generator return it instead
// of swallowing errors, so callers branch on Status.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusOK}
}

// Degraded wraps a stand-in value and the error that forced it.
func Degraded[T any](v T, err error) Result[T] {
	return Result[T]{Value: v, Status: StatusDegraded, Err: err}
}

// Failed wraps an error with the zero value.
func Failed[T any](err error) Result[T] {
	var zero T
	return Result[T]{Value: zero, Status: StatusFailed, Err: err}
}

// IsOK reports whether the backend answered.
func (r Result[T]) IsOK() bool { return r.Status == StatusOK }

// Or returns the value unless the call failed outright, then fallback.
func (r Result[T]) Or(fallback T) T {
	if r.Status == StatusFailed {
		return fallback
	}
	return r.Value
}
