package errs

import "fmt"

// OpError ties a stage sentinel to the underlying cause and, when known, the note key.
// Both Op and Err are reachable through errors.Is / errors.As.
type OpError struct {
	Op  error
	Key string
	Err error
}

// Wrap returns an *OpError, or nil when err is nil.
func Wrap(op error, key string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Key: key, Err: err}
}

func (e *OpError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%v %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Op, e.Err)
}

// Unwrap exposes both the stage sentinel and the cause.
func (e *OpError) Unwrap() []error { return []error{e.Op, e.Err} }
