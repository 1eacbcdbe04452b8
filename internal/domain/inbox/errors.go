package inbox

import "errors"

var (
	// ErrNoMessages signals that no unprocessed message is available.
	ErrNoMessages = errors.New("inbox has no unprocessed messages")
	// ErrTxRequired is returned when a claim is attempted outside a transaction.
	ErrTxRequired = errors.New("inbox claim requires a transaction")
	// ErrInvalidMessage is returned when the store rejects a message's
	// content. Retrying the same message cannot succeed.
	ErrInvalidMessage = errors.New("inbox message rejected by store")
	// ErrNotFound is returned when a message does not exist.
	ErrNotFound = errors.New("inbox message not found")
)
