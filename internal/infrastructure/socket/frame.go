package socket

import (
	"encoding/json"

	"campusconnect/internal/core/domain"
)

// Frame is the JSON envelope exchanged over the websocket in both directions.
// ID is the client idempotency id the server uses to drop redelivered frames.
type Frame struct {
	Event domain.EventName `json:"event"`
	ID    string           `json:"id,omitempty"`
	Data  json.RawMessage  `json:"data,omitempty"`
}

// authFrame is the first frame written after the upgrade completes.
type authFrame struct {
	Auth authPayload `json:"auth"`
}

type authPayload struct {
	Token string `json:"token,omitempty"`
}
