package models

import "time"

// Message captures one turn of the advisor conversation.

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DeliveryStatus tracks user-authored messages only. Assistant messages stop
// at StatusDelivered; the read receipt is a user-message concept.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

var statusRank = map[DeliveryStatus]int{
	StatusSending:   0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// Before reports whether s precedes other in the sending->delivered->read
// progression. Unknown statuses never advance.
func (s DeliveryStatus) Before(other DeliveryStatus) bool {
	a, ok := statusRank[s]
	if !ok {
		return false
	}
	b, ok := statusRank[other]
	if !ok {
		return false
	}
	return a < b
}

type Message struct {
	ID             int64          `json:"id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Status         DeliveryStatus `json:"status,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Metadata       []ApplyAction  `json:"metadata,omitempty"`
}

// TranscriptEntry is the only message shape sent to the advisor proxy:
// status, timestamps and metadata are stripped before transmission.
type TranscriptEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
