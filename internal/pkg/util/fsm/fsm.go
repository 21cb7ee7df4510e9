package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts a callback that reports failure through its return value
// to the looplab signature, which reports it through event.Err.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// Guard builds a before_<event> callback that cancels the transition with
// the error returned by check.
func Guard(check func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := check(ctx, event); err != nil {
			event.Cancel(err)
		}
	}
}

// IsRealError reports whether err is more than a no-op or a cancelled
// transition.
func IsRealError(err error) bool {
	if err == nil {
		return false
	}

	var noTransition fsm.NoTransitionError
	var canceled fsm.CanceledError

	if errors.As(err, &noTransition) || errors.As(err, &canceled) {
		return false
	}

	return true
}

// IsInvalidEvent reports whether err means the event does not apply to the
// current state.
func IsInvalidEvent(err error) bool {
	var invalid fsm.InvalidEventError
	return errors.As(err, &invalid)
}
