package domain

import "errors"

// Simulator errors. Callers wrap these with context and match with errors.Is.
var (
	// ErrUnknownInstrument is a configuration error: the symbol has no
	// metadata. It fails the operation, not the run.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrInvalidOrder rejects an order at submission; it never enters the
	// registry.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInvalidState rejects cancel or modify on a terminal order.
	ErrInvalidState = errors.New("invalid order state")

	// ErrOrderNotFound is returned for ids the registry has never issued.
	ErrOrderNotFound = errors.New("order not found")

	// ErrFeedOrder is fatal to a run: a bar arrived with a timestamp that is
	// not strictly after the previous bar of the same instrument.
	ErrFeedOrder = errors.New("bar feed out of order")

	// ErrUnsupported is returned for operations the simulator does not
	// implement, such as order modification.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrRiskRejected is returned when a pre-trade risk check fails.
	ErrRiskRejected = errors.New("rejected by risk limits")
)
