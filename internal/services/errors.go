package services

import (
  "errors"
  "fmt"
)

var (
  ErrIdentityNotFound = errors.New("identity not found")
  ErrIdentityMerged   = errors.New("identity already merged")
  ErrOrderNotFound    = errors.New("order not found")
  ErrMatchNotFound    = errors.New("identity match not found")
  ErrMatchNotPending  = errors.New("identity match is not pending review")
)

// SignalUnavailableError marks one risk signal source as unreachable. The
// scorer records it and keeps going with the remaining signals.
type SignalUnavailableError struct {
  Signal string
  Err    error
}

func (e *SignalUnavailableError) Error() string {
  return fmt.Sprintf("signal %q unavailable: %v", e.Signal, e.Err)
}

func (e *SignalUnavailableError) Unwrap() error {
  return e.Err
}
