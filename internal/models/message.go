package models

import "time"

// Message represents a chat message. Text may be empty when the message
// carries only attachments; a message with neither is rejected at the
// REST boundary before it is ever constructed.
type Message struct {
	ID        int              `db:"id" json:"id"`
	ChatID    int              `db:"chat_id" json:"chat_id"`
	SenderID  int              `db:"sender_id" json:"sender_id"`
	Text      string           `db:"text" json:"text"`
	IsMixed   bool             `db:"is_mixed" json:"is_mixed"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	Files     []FileAttachment `json:"files,omitempty"`
}

// FileAttachment describes a file already uploaded to external storage.
// The service stores only the descriptor, never the bytes.
type FileAttachment struct {
	ID          int    `db:"id" json:"id"`
	MessageID   int    `db:"message_id" json:"-"`
	Filename    string `db:"filename" json:"filename"`
	StoragePath string `db:"storage_path" json:"storage_path"`
	MimeType    string `db:"mime_type" json:"mime_type"`
}

// Mixed reports whether a message combines text and at least one file.
func Mixed(text string, files []FileAttachment) bool {
	return text != "" && len(files) > 0
}
