package types

import "errors"

// Failure taxonomy shared across components. Request/response events surface
// these in the acknowledgment; fire-and-forget events report them only to
// the originating connection.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrParticipantRemoved = errors.New("participant has been removed from this session")
	ErrNoActivePoll       = errors.New("no active poll")
	ErrUnknownParticipant = errors.New("participant not in session")
	ErrValidation         = errors.New("validation failed")
)
