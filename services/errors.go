package services

import (
	"errors"
	"fmt"
)

// Error classes returned by the feed service. Callers test with errors.Is.
var (
	// ErrValidation rejects a request before anything is written.
	ErrValidation = errors.New("validation failed")
	// ErrDurability means the system-of-record write failed; nothing else ran.
	ErrDurability = errors.New("durable write failed")
	// ErrPropagation wraps cache delivery failures. It is recorded on the
	// outbox task and never returned from Publish or AddComment.
	ErrPropagation = errors.New("cache propagation failed")
)

var (
	ErrUnknownUser    = fmt.Errorf("%w: unknown user", ErrValidation)
	ErrUnknownPost    = fmt.Errorf("%w: unknown post", ErrValidation)
	ErrUnknownCircle  = fmt.Errorf("%w: unknown circle", ErrValidation)
	ErrInvalidCircles = fmt.Errorf("%w: invalid target circles", ErrValidation)
	ErrInvalidMonth   = fmt.Errorf("%w: invalid month", ErrValidation)
	ErrEmptyComment   = fmt.Errorf("%w: empty comment", ErrValidation)
	ErrSelfRelation   = fmt.Errorf("%w: user cannot target themselves", ErrValidation)
)
