package domain

import "errors"

var (
	// ErrUnavailable marks a chain read whose value is unknown. It is never a zero value.
	ErrUnavailable = errors.New("chain value unavailable")

	// ErrUnknownToken is returned for symbols or addresses outside the token enumeration.
	ErrUnknownToken = errors.New("unknown token")

	// ErrReverted is returned when a mined transaction has a failed status.
	ErrReverted = errors.New("transaction reverted")

	// ErrQueueFull is returned when a wallet already holds MaxPending in-flight transactions.
	ErrQueueFull = errors.New("wallet pending queue full")
)
