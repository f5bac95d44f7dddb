package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnsupportedMarket = errors.New("unsupported market")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidWager      = errors.New("invalid wager")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrLockHeld          = errors.New("lock already held")
)
