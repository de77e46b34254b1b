package models

import "time"

type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation groups the messages of one chat-widget session. A record is
// created once per widget open and is never reused across reloads; closing a
// conversation is an administrative action outside the chat flow.
type Conversation struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id,omitempty"`
	Status    ConversationStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
