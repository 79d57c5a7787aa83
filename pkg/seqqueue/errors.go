package seqqueue

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned by New and Submit for malformed input.
var ErrInvalidArgument = errors.New("invalid argument")

// PanicError carries a value recovered from a panicking work function.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
