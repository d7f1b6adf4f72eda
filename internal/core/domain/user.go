package domain

type UserID string
type ConversationID string
type MessageID string
type CallID string
