package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-relay/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	FindDirectChat(ctx context.Context, userID int, otherID int) (models.Chat, error)
	CreateDirectChat(ctx context.Context, userID int, otherID int) (models.Chat, error)
	CreateGroupChat(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Chat, error)
	DeleteChat(ctx context.Context, chatID int) error
	RenameChat(ctx context.Context, chatID int, name string) error
	AddMember(ctx context.Context, chatID int, userID int) error
	RemoveMember(ctx context.Context, chatID int, userID int) error
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	ListChatsForUser(ctx context.Context, userID int) ([]models.ChatSummary, error)
	IsMember(ctx context.Context, chatID int, userID int) (bool, error)
	UpdateLatestMessage(ctx context.Context, chatID int, latest models.LatestMessage) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

type chatRow struct {
	ID             int            `db:"id"`
	Name           string         `db:"name"`
	IsGroup        bool           `db:"is_group"`
	CreatorID      int            `db:"creator_id"`
	LatestText     sql.NullString `db:"latest_text"`
	LatestSenderID sql.NullInt64  `db:"latest_sender_id"`
	LatestStatus   sql.NullString `db:"latest_status"`
	LatestSentAt   sql.NullTime   `db:"latest_sent_at"`
	CreatedAt      sql.NullTime   `db:"created_at"`
}

func (r chatRow) toChat() models.Chat {
	chat := models.Chat{
		ID:        r.ID,
		Name:      r.Name,
		IsGroup:   r.IsGroup,
		CreatorID: r.CreatorID,
		CreatedAt: r.CreatedAt.Time,
	}
	if r.LatestSentAt.Valid {
		chat.Latest = &models.LatestMessage{
			Text:     r.LatestText.String,
			SenderID: int(r.LatestSenderID.Int64),
			Status:   r.LatestStatus.String,
			SentAt:   r.LatestSentAt.Time,
		}
	}
	return chat
}

const chatColumns = `id, name, is_group, creator_id, latest_text, latest_sender_id, latest_status, latest_sent_at, created_at`

// FindDirectChat returns the direct chat between two users, if any.
func (r *ChatRepo) FindDirectChat(ctx context.Context, userID int, otherID int) (models.Chat, error) {
	var row chatRow
	query := `SELECT c.id, c.name, c.is_group, c.creator_id, c.latest_text, c.latest_sender_id, c.latest_status, c.latest_sent_at, c.created_at
        FROM chats c
        JOIN chat_members m1 ON m1.chat_id = c.id AND m1.user_id = $1
        JOIN chat_members m2 ON m2.chat_id = c.id AND m2.user_id = $2
        WHERE c.is_group = FALSE`
	if err := r.db.GetContext(ctx, &row, query, userID, otherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Chat{}, ErrChatNotFound
		}
		return models.Chat{}, err
	}
	return r.withMembers(ctx, row)
}

// CreateDirectChat creates a direct chat between two users.
func (r *ChatRepo) CreateDirectChat(ctx context.Context, userID int, otherID int) (models.Chat, error) {
	if userID == otherID {
		return models.Chat{}, errors.New("cannot create chat with self")
	}
	return r.createChat(ctx, "", false, userID, []int{userID, otherID})
}

// CreateGroupChat creates a group chat owned by creatorID. The creator is
// always a member.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Chat, error) {
	members := make([]int, 0, len(memberIDs)+1)
	seen := map[int]struct{}{}
	for _, id := range append(memberIDs, creatorID) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	return r.createChat(ctx, name, true, creatorID, members)
}

func (r *ChatRepo) createChat(ctx context.Context, name string, isGroup bool, creatorID int, memberIDs []int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	var row chatRow
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO chats (name, is_group, creator_id) VALUES ($1, $2, $3) RETURNING `+chatColumns,
		name, isGroup, creatorID).StructScan(&row); err != nil {
		return models.Chat{}, err
	}

	for pos, userID := range memberIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id, position) VALUES ($1, $2, $3)`,
			row.ID, userID, pos); err != nil {
			return models.Chat{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}

	chat := row.toChat()
	chat.MemberIDs = memberIDs
	return chat, nil
}

// DeleteChat removes a chat and, by cascade, its members and messages.
func (r *ChatRepo) DeleteChat(ctx context.Context, chatID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// RenameChat updates the chat name.
func (r *ChatRepo) RenameChat(ctx context.Context, chatID int, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET name=$1 WHERE id=$2`, name, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// AddMember inserts a user into the chat membership list.
func (r *ChatRepo) AddMember(ctx context.Context, chatID int, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, position)
         SELECT $1, $2, COALESCE(MAX(position)+1, 0) FROM chat_members WHERE chat_id=$1
         ON CONFLICT (chat_id, user_id) DO NOTHING`,
		chatID, userID)
	return err
}

// RemoveMember deletes a user from the chat membership list.
func (r *ChatRepo) RemoveMember(ctx context.Context, chatID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}

// GetChat fetches a chat with its membership list.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var row chatRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Chat{}, ErrChatNotFound
		}
		return models.Chat{}, err
	}
	return r.withMembers(ctx, row)
}

func (r *ChatRepo) withMembers(ctx context.Context, row chatRow) (models.Chat, error) {
	chat := row.toChat()
	var members []int
	if err := r.db.SelectContext(ctx, &members,
		`SELECT user_id FROM chat_members WHERE chat_id=$1 ORDER BY position`, row.ID); err != nil {
		return models.Chat{}, fmt.Errorf("load members: %w", err)
	}
	chat.MemberIDs = members
	return chat, nil
}

// ListChatsForUser returns summaries of the chats the user belongs to,
// most recently active first.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	var rows []chatRow
	query := `SELECT c.id, c.name, c.is_group, c.creator_id, c.latest_text, c.latest_sender_id, c.latest_status, c.latest_sent_at, c.created_at
        FROM chats c
        JOIN chat_members m ON m.chat_id = c.id
        WHERE m.user_id = $1
        ORDER BY COALESCE(c.latest_sent_at, c.created_at) DESC`
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	summaries := make([]models.ChatSummary, 0, len(rows))
	for _, row := range rows {
		chat := row.toChat()
		summaries = append(summaries, models.ChatSummary{
			ChatID:  chat.ID,
			Name:    chat.Name,
			IsGroup: chat.IsGroup,
			Created: chat.CreatedAt,
			Latest:  chat.Latest,
		})
	}
	return summaries, nil
}

// IsMember checks whether a user belongs to the chat.
func (r *ChatRepo) IsMember(ctx context.Context, chatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// UpdateLatestMessage refreshes the denormalized latest-message summary.
func (r *ChatRepo) UpdateLatestMessage(ctx context.Context, chatID int, latest models.LatestMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET latest_text=$1, latest_sender_id=$2, latest_status=$3, latest_sent_at=$4 WHERE id=$5`,
		latest.Text, latest.SenderID, latest.Status, latest.SentAt, chatID)
	return err
}
