package router

import "errors"

var (
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrRateLimitExceeded = errors.New("rate limit exceeded: 100 events per minute")
)
