package models

import "time"

// Chat represents a conversation, either direct (exactly two users) or group.
type Chat struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	CreatorID int       `db:"creator_id" json:"creator_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// MemberIDs is loaded from chat_members, ordered by join position.
	MemberIDs []int `json:"member_ids"`

	Latest *LatestMessage `json:"latest_message,omitempty"`
}

// LatestMessage is the denormalized summary kept on the chat row,
// refreshed by the REST layer on every send.
type LatestMessage struct {
	Text     string    `json:"text"`
	SenderID int       `json:"sender_id"`
	Status   string    `json:"status"`
	SentAt   time.Time `json:"sent_at"`
}

// ChatSummary provides the API-friendly list view of a chat for a user.
type ChatSummary struct {
	ChatID  int            `db:"id" json:"chat_id"`
	Name    string         `db:"name" json:"name"`
	IsGroup bool           `db:"is_group" json:"is_group"`
	Created time.Time      `db:"created_at" json:"created_at"`
	Latest  *LatestMessage `json:"latest_message,omitempty"`
}
