package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent_CallRequest(t *testing.T) {
	ev, err := DecodeEvent(EventCallRequest, json.RawMessage(`{"callId":"c1","callerId":"user-2","callerName":"Ada","isVideoCall":true}`))
	require.NoError(t, err)

	req, ok := ev.(CallRequestEvent)
	require.True(t, ok)
	assert.Equal(t, CallID("c1"), req.CallID)
	assert.Equal(t, UserID("user-2"), req.CallerID)
	assert.Equal(t, "Ada", req.CallerName)
	assert.True(t, req.IsVideoCall)
	assert.Equal(t, EventCallRequest, ev.EventName())
}

func TestDecodeEvent_CallControl(t *testing.T) {
	cases := []struct {
		name EventName
		want Event
	}{
		{EventCallAccepted, CallAcceptedEvent{CallID: "c1"}},
		{EventCallRejected, CallRejectedEvent{CallID: "c1"}},
		{EventCallEnded, CallEndedEvent{CallID: "c1"}},
	}

	for _, tc := range cases {
		t.Run(string(tc.name), func(t *testing.T) {
			ev, err := DecodeEvent(tc.name, json.RawMessage(`{"callId":"c1"}`))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev)

			_, err = DecodeEvent(tc.name, json.RawMessage(`{}`))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestDecodeEvent_Message(t *testing.T) {
	raw := `{"id":"m1","conversationId":"conv-1","senderId":"user-2","content":"hi","timestamp":"2024-03-01T10:00:00Z"}`

	ev, err := DecodeEvent(EventReceiveMessage, json.RawMessage(raw))
	require.NoError(t, err)

	msg := ev.(MessageEvent)
	assert.Equal(t, EventReceiveMessage, msg.EventName())
	assert.Equal(t, MessageID("m1"), msg.ID)
	assert.Equal(t, "hi", msg.Content)
	assert.True(t, msg.Timestamp.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))

	echo, err := DecodeEvent(EventMessageSent, json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, EventMessageSent, echo.EventName())
}

func TestDecodeEvent_Typing(t *testing.T) {
	ev, err := DecodeEvent(EventUserStopTyping, json.RawMessage(`{"conversationId":"conv-1","userId":"user-2","username":"ada"}`))
	require.NoError(t, err)
	assert.Equal(t, EventUserStopTyping, ev.EventName())
	assert.Equal(t, UserID("user-2"), ev.(TypingEvent).UserID)
}

func TestDecodeEvent_Rejects(t *testing.T) {
	cases := []struct {
		desc string
		name EventName
		data string
		want error
	}{
		{"unknown event", "presence_update", `{}`, ErrUnknownEvent},
		{"transport events are local only", EventConnect, `{}`, ErrUnknownEvent},
		{"missing payload", EventCallRequest, ``, ErrInvalidPayload},
		{"null payload", EventCallEnded, `null`, ErrInvalidPayload},
		{"malformed json", EventReceiveMessage, `{"id":`, ErrInvalidPayload},
		{"wrong field type", EventCallRequest, `{"callId":1,"callerId":"u"}`, ErrInvalidPayload},
		{"call request without caller", EventCallRequest, `{"callId":"c1"}`, ErrInvalidPayload},
		{"message without conversation", EventReceiveMessage, `{"id":"m1","senderId":"u"}`, ErrInvalidPayload},
		{"typing without user", EventUserTyping, `{"conversationId":"c"}`, ErrInvalidPayload},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ev, err := DecodeEvent(tc.name, json.RawMessage(tc.data))
			assert.Nil(t, ev)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestIsEphemeral(t *testing.T) {
	assert.True(t, IsEphemeral(EventTyping))
	assert.True(t, IsEphemeral(EventStopTyping))
	assert.False(t, IsEphemeral(EventSendMessage))
	assert.False(t, IsEphemeral(EventCallAccepted))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(PhaseRinging, PhaseActive))
	assert.True(t, CanTransition(PhaseRinging, PhaseConnecting))
	assert.True(t, CanTransition(PhaseRinging, PhaseEnded))
	assert.True(t, CanTransition(PhaseConnecting, PhaseActive))
	assert.True(t, CanTransition(PhaseActive, PhaseEnded))

	assert.False(t, CanTransition(PhaseActive, PhaseRinging))
	assert.False(t, CanTransition(PhaseActive, PhaseConnecting))
	assert.False(t, CanTransition(PhaseEnded, PhaseActive))
	assert.False(t, CanTransition(PhaseEnded, PhaseEnded))
}

func TestSortMessages_Stable(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	msgs := []ChatMessage{
		{ID: "c", Timestamp: base.Add(2 * time.Minute)},
		{ID: "a", Timestamp: base},
		{ID: "b1", Timestamp: base.Add(time.Minute)},
		{ID: "b2", Timestamp: base.Add(time.Minute)},
	}

	SortMessages(msgs)

	ids := make([]MessageID, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []MessageID{"a", "b1", "b2", "c"}, ids)
}
