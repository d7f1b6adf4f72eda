package domain

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyContent         = errors.New("message content is empty")

	ErrNotConnected     = errors.New("not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrUnknownEvent     = errors.New("unknown event")
	ErrInvalidPayload   = errors.New("invalid event payload")

	ErrCallInProgress    = errors.New("call already in progress")
	ErrNoActiveCall      = errors.New("no active call")
	ErrInvalidTransition = errors.New("invalid call phase transition")
)
