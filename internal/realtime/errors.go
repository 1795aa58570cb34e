package realtime

import "errors"

// Routing errors. All of these are reported only to the originating
// connection and never terminate it.
var (
	// ErrInvalidMessage means a send is missing required fields.
	// The message is neither persisted nor routed.
	ErrInvalidMessage = errors.New("realtime: invalid message")

	// ErrUnauthorizedSender means the presented sender id does not match
	// the authenticated identity of the originating connection.
	ErrUnauthorizedSender = errors.New("realtime: sender does not match authenticated user")

	// ErrStoreUnavailable means persistence failed. The send is reported
	// failed and nothing is pushed to the receiver.
	ErrStoreUnavailable = errors.New("realtime: message store unavailable")
)

// Store errors.
var (
	// ErrNotFound means the referenced message does not exist.
	ErrNotFound = errors.New("realtime: message not found")

	// ErrAlreadyRead means the message was already marked read.
	// Callers treat this as an idempotent no-op.
	ErrAlreadyRead = errors.New("realtime: message already read")
)
