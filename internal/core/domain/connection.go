package domain

// ConnectionState is the observed connectivity of the shared connection.
// Connecting is never driven by the application; it covers the time between
// acquiring a connection and the first transport connect event.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// DeliveryStatus reports what happened to an outgoing frame or chat message.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryQueued  DeliveryStatus = "queued"
	DeliveryDropped DeliveryStatus = "dropped"
	DeliverySkipped DeliveryStatus = "skipped"
	DeliveryFailed  DeliveryStatus = "failed"
)
