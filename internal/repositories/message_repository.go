package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-relay/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID int, senderID int, text string, files []models.FileAttachment) (models.Message, error)
	ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and its attachment descriptors in one
// transaction. Attachment bytes live in external storage; only the
// descriptors are persisted here.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID int, senderID int, text string, files []models.FileAttachment) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, text, is_mixed) VALUES ($1, $2, $3, $4)
         RETURNING id, chat_id, sender_id, text, is_mixed, created_at`,
		chatID, senderID, text, models.Mixed(text, files)).StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	for _, f := range files {
		var stored models.FileAttachment
		if err := tx.QueryRowxContext(ctx,
			`INSERT INTO message_files (message_id, filename, storage_path, mime_type) VALUES ($1, $2, $3, $4)
             RETURNING id, message_id, filename, storage_path, mime_type`,
			msg.ID, f.Filename, f.StoragePath, f.MimeType).StructScan(&stored); err != nil {
			return models.Message{}, err
		}
		msg.Files = append(msg.Files, stored)
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListChatMessages returns all messages of a chat in send order.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, chat_id, sender_id, text, is_mixed, created_at FROM messages WHERE chat_id=$1 ORDER BY id`,
		chatID); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	ids := make([]int, 0, len(msgs))
	index := map[int]int{}
	for i, m := range msgs {
		ids = append(ids, m.ID)
		index[m.ID] = i
	}

	query, args, err := sqlx.In(
		`SELECT id, message_id, filename, storage_path, mime_type FROM message_files WHERE message_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	var files []models.FileAttachment
	if err := r.db.SelectContext(ctx, &files, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, f := range files {
		i := index[f.MessageID]
		msgs[i].Files = append(msgs[i].Files, f)
	}
	return msgs, nil
}

// GetMessage fetches a single message with its attachments.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg,
		`SELECT id, chat_id, sender_id, text, is_mixed, created_at FROM messages WHERE id=$1`, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, err
	}
	if err := r.db.SelectContext(ctx, &msg.Files,
		`SELECT id, message_id, filename, storage_path, mime_type FROM message_files WHERE message_id=$1 ORDER BY id`,
		messageID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}
