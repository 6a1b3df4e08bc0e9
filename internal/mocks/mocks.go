package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-relay/internal/models"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) FindDirectChat(ctx context.Context, userID int, otherID int) (models.Chat, error) {
	args := m.Called(ctx, userID, otherID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) CreateDirectChat(ctx context.Context, userID int, otherID int) (models.Chat, error) {
	args := m.Called(ctx, userID, otherID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) CreateGroupChat(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Chat, error) {
	args := m.Called(ctx, creatorID, name, memberIDs)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) DeleteChat(ctx context.Context, chatID int) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) RenameChat(ctx context.Context, chatID int, name string) error {
	args := m.Called(ctx, chatID, name)
	return args.Error(0)
}

func (m *ChatRepositoryMock) AddMember(ctx context.Context, chatID int, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) RemoveMember(ctx context.Context, chatID int, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ListChatsForUser(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) IsMember(ctx context.Context, chatID int, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) UpdateLatestMessage(ctx context.Context, chatID int, latest models.LatestMessage) error {
	args := m.Called(ctx, chatID, latest)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, chatID int, senderID int, text string, files []models.FileAttachment) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, text, files)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	args := m.Called(ctx, chatID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}
