package utils

import (
	"github.com/google/uuid"
)

// GenerateMessageID returns a client-generated chat message id.
func GenerateMessageID() string {
	return "local_" + uuid.NewString()
}

// GenerateFrameID returns the idempotency id attached to outgoing socket frames.
func GenerateFrameID() string {
	return uuid.NewString()
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}
