package circuit

import "errors"

// ErrOpen is returned by Executor.Run when the breaker refuses
// admission and no fallback was supplied.
var ErrOpen = errors.New("circuit open")

// Executor runs a primary function through a breaker, with an optional
// fallback invoked instead of the primary when the breaker refuses
// admission. The breaker itself has no notion of fallbacks — this is
// the explicit variant spec.md §9 calls for in place of a dynamic
// dispatch callable.
type Executor struct {
	Primary  func() error
	Fallback func() error
}

// Run executes the primary function through breaker b. If the breaker
// denies admission, Fallback runs instead if set, otherwise ErrOpen
// (wrapping the breaker's rejection reason) is returned.
func (e Executor) Run(b *Breaker) error {
	ok, reason := b.CanExecute()
	if !ok {
		if e.Fallback != nil {
			return e.Fallback()
		}
		return &OpenError{Reason: reason}
	}

	if err := e.Primary(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// OpenError carries the breaker's rejection reason and unwraps to
// ErrOpen for errors.Is checks.
type OpenError struct {
	Reason string
}

func (e *OpenError) Error() string { return e.Reason }
func (e *OpenError) Unwrap() error { return ErrOpen }
