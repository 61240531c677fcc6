package common

import "errors"

// ErrMutationInFlight is returned when a mutating entry point is invoked
// while another mutation on the same module is still in flight, whether that
// is a collaborator callback re-entering the engine or a plain concurrent
// caller. Either way the call fails instead of observing partial state.
var ErrMutationInFlight = errors.New("mutation already in flight")

// OpLock is a per-module mutual-exclusion guard with revert-on-contention
// semantics: overlapping or nested entry is rejected rather than queued, so a
// token or vault callback can never re-enter mid-mutation.
type OpLock struct {
	slot chan struct{}
}

func NewOpLock() *OpLock {
	return &OpLock{slot: make(chan struct{}, 1)}
}

// Acquire claims the lock or fails with ErrMutationInFlight.
func (l *OpLock) Acquire() error {
	if l == nil {
		return nil
	}
	select {
	case l.slot <- struct{}{}:
		return nil
	default:
		return ErrMutationInFlight
	}
}

// Release frees the lock. It must be called on every exit path, including
// error paths.
func (l *OpLock) Release() {
	if l == nil {
		return
	}
	select {
	case <-l.slot:
	default:
	}
}
