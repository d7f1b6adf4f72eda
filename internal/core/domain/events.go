package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventName string

// Transport lifecycle, raised locally by the connection client.
const (
	EventConnect    EventName = "connect"
	EventDisconnect EventName = "disconnect"
)

// Client to server.
const (
	EventSendMessage EventName = "send_message"
	EventTyping      EventName = "typing"
	EventStopTyping  EventName = "stop_typing"
)

// Server to client.
const (
	EventReceiveMessage EventName = "receive_message"
	EventMessageSent    EventName = "message_sent"
	EventUserTyping     EventName = "user_typing"
	EventUserStopTyping EventName = "user_stop_typing"
)

// Call signaling, both directions.
const (
	EventCallRequest  EventName = "call_request"
	EventCallAccepted EventName = "call_accepted"
	EventCallRejected EventName = "call_rejected"
	EventCallEnded    EventName = "call_ended"
)

// IsEphemeral reports whether frames for this event lose their meaning if
// delivered late. Ephemeral frames are never queued for redelivery.
func IsEphemeral(name EventName) bool {
	return name == EventTyping || name == EventStopTyping
}

// Outgoing payloads.

type SendMessagePayload struct {
	ReceiverID UserID `json:"receiverId"`
	Content    string `json:"content"`
}

type TypingPayload struct {
	ConversationID ConversationID `json:"conversationId"`
	ReceiverID     UserID         `json:"receiverId"`
}

type CallRequestPayload struct {
	ReceiverID  UserID `json:"receiverId"`
	IsVideoCall bool   `json:"isVideoCall"`
}

// CallControlPayload is used for call_accepted, call_rejected and call_ended.
// ReceiverID is only set when cancelling an outgoing call that has no id yet.
type CallControlPayload struct {
	CallID     CallID `json:"callId"`
	ReceiverID UserID `json:"receiverId,omitempty"`
}

// Event is a decoded inbound frame or a transport lifecycle notification.
type Event interface {
	EventName() EventName
}

type ConnectEvent struct{}

type DisconnectEvent struct {
	Reason string
}

// MessageEvent carries receive_message and message_sent frames.
type MessageEvent struct {
	Kind           EventName      `json:"-"`
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversationId"`
	SenderID       UserID         `json:"senderId"`
	ReceiverID     UserID         `json:"receiverId,omitempty"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
}

// TypingEvent carries user_typing and user_stop_typing frames.
type TypingEvent struct {
	Kind           EventName      `json:"-"`
	ConversationID ConversationID `json:"conversationId"`
	UserID         UserID         `json:"userId"`
	Username       string         `json:"username"`
}

type CallRequestEvent struct {
	CallID      CallID `json:"callId"`
	CallerID    UserID `json:"callerId"`
	CallerName  string `json:"callerName"`
	IsVideoCall bool   `json:"isVideoCall"`
}

type CallAcceptedEvent struct {
	CallID CallID `json:"callId"`
}

type CallRejectedEvent struct {
	CallID CallID `json:"callId"`
}

type CallEndedEvent struct {
	CallID CallID `json:"callId"`
}

func (ConnectEvent) EventName() EventName      { return EventConnect }
func (DisconnectEvent) EventName() EventName   { return EventDisconnect }
func (e MessageEvent) EventName() EventName    { return e.Kind }
func (e TypingEvent) EventName() EventName     { return e.Kind }
func (CallRequestEvent) EventName() EventName  { return EventCallRequest }
func (CallAcceptedEvent) EventName() EventName { return EventCallAccepted }
func (CallRejectedEvent) EventName() EventName { return EventCallRejected }
func (CallEndedEvent) EventName() EventName    { return EventCallEnded }

// DecodeEvent turns a server frame into its typed event. Unknown names yield
// ErrUnknownEvent; malformed or incomplete payloads yield ErrInvalidPayload.
func DecodeEvent(name EventName, data json.RawMessage) (Event, error) {
	switch name {
	case EventReceiveMessage, EventMessageSent:
		var e MessageEvent
		if err := decodePayload(name, data, &e); err != nil {
			return nil, err
		}
		if e.ID == "" || e.ConversationID == "" || e.SenderID == "" {
			return nil, fmt.Errorf("%w: %s requires id, conversationId and senderId", ErrInvalidPayload, name)
		}
		e.Kind = name
		return e, nil

	case EventUserTyping, EventUserStopTyping:
		var e TypingEvent
		if err := decodePayload(name, data, &e); err != nil {
			return nil, err
		}
		if e.ConversationID == "" || e.UserID == "" {
			return nil, fmt.Errorf("%w: %s requires conversationId and userId", ErrInvalidPayload, name)
		}
		e.Kind = name
		return e, nil

	case EventCallRequest:
		var e CallRequestEvent
		if err := decodePayload(name, data, &e); err != nil {
			return nil, err
		}
		if e.CallID == "" || e.CallerID == "" {
			return nil, fmt.Errorf("%w: %s requires callId and callerId", ErrInvalidPayload, name)
		}
		return e, nil

	case EventCallAccepted:
		var e CallAcceptedEvent
		if err := decodeCallControl(name, data, &e.CallID); err != nil {
			return nil, err
		}
		return e, nil

	case EventCallRejected:
		var e CallRejectedEvent
		if err := decodeCallControl(name, data, &e.CallID); err != nil {
			return nil, err
		}
		return e, nil

	case EventCallEnded:
		var e CallEndedEvent
		if err := decodeCallControl(name, data, &e.CallID); err != nil {
			return nil, err
		}
		return e, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

func decodePayload(name EventName, data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: %s has no payload", ErrInvalidPayload, name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, name, err)
	}
	return nil
}

func decodeCallControl(name EventName, data json.RawMessage, id *CallID) error {
	var p CallControlPayload
	if err := decodePayload(name, data, &p); err != nil {
		return err
	}
	if p.CallID == "" {
		return fmt.Errorf("%w: %s requires callId", ErrInvalidPayload, name)
	}
	*id = p.CallID
	return nil
}
