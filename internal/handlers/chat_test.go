package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/mocks"
	"chat-relay/internal/models"
	"chat-relay/internal/repositories"
	"chat-relay/internal/ws"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/chats/toggle", handler.ToggleChat)
	r.GET("/chats", handler.ListChats)
	r.GET("/chats/:chat_id", handler.GetChat)
	r.POST("/chats/:chat_id/messages", handler.PostChatMessage)
	r.POST("/chats/group", handler.CreateGroupChat)
	r.PUT("/chats/group/rename", handler.RenameGroupChat)
	return r
}

func newHandler(chatRepo *mocks.ChatRepositoryMock, messageRepo *mocks.MessageRepositoryMock) *ChatHandler {
	return NewChatHandler(chatRepo, messageRepo, ws.NewHub(), nil)
}

func TestToggleChatCreates(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, nil))

	chatRepo.On("FindDirectChat", mock.Anything, 1, 2).Return(models.Chat{}, repositories.ErrChatNotFound).Once()
	chatRepo.On("CreateDirectChat", mock.Anything, 1, 2).Return(models.Chat{ID: 10, MemberIDs: []int{1, 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/toggle", bytes.NewBufferString(`{"user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestToggleChatRemovesExisting(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, nil))

	chatRepo.On("FindDirectChat", mock.Anything, 1, 2).Return(models.Chat{ID: 10}, nil).Once()
	chatRepo.On("DeleteChat", mock.Anything, 10).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/toggle", bytes.NewBufferString(`{"user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestToggleChatWithSelf(t *testing.T) {
	router := setupChatRouter(newHandler(new(mocks.ChatRepositoryMock), nil))

	req := httptest.NewRequest(http.MethodPost, "/chats/toggle", bytes.NewBufferString(`{"user_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListChatsSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, nil))

	chatRepo.On("ListChatsForUser", mock.Anything, 1).Return([]models.ChatSummary{{ChatID: 3, Name: "general"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp["chats"], 1)
	chatRepo.AssertExpectations(t)
}

func TestListChatsRepoError(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, nil))

	chatRepo.On("ListChatsForUser", mock.Anything, 1).Return(([]models.ChatSummary)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestGetChatForbiddenForNonMember(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, new(mocks.MessageRepositoryMock)))

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestGetChatSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, messageRepo))

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5, MemberIDs: []int{1, 2}}, nil).Once()
	messageRepo.On("ListChatMessages", mock.Anything, 5).Return([]models.Message{{ID: 1, ChatID: 5, Text: "hello"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	chatRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestPostChatMessageSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, messageRepo))

	stored := models.Message{ID: 7, ChatID: 5, SenderID: 1, Text: "hi"}
	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 5, 1, "hi", ([]models.FileAttachment)(nil)).Return(stored, nil).Once()
	chatRepo.On("UpdateLatestMessage", mock.Anything, 5, mock.MatchedBy(func(latest models.LatestMessage) bool {
		return latest.Text == "hi" && latest.SenderID == 1 && latest.Status == "sent"
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 7, resp.ID)
	chatRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestPostChatMessageRejectsEmpty(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, new(mocks.MessageRepositoryMock)))

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"text":"","files":[]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestPostChatMessageFilesOnly(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, messageRepo))

	files := []models.FileAttachment{{Filename: "pic.png", StoragePath: "uploads/pic.png", MimeType: "image/png"}}
	stored := models.Message{ID: 8, ChatID: 5, SenderID: 1, Files: files}
	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 5, 1, "", files).Return(stored, nil).Once()
	chatRepo.On("UpdateLatestMessage", mock.Anything, 5, mock.MatchedBy(func(latest models.LatestMessage) bool {
		return latest.Text == "pic.png"
	})).Return(nil).Once()

	body := `{"files":[{"filename":"pic.png","storage_path":"uploads/pic.png","mime_type":"image/png"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chatRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestPostChatMessageNotMember(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, new(mocks.MessageRepositoryMock)))

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestCreateGroupChatNeedsMembers(t *testing.T) {
	router := setupChatRouter(newHandler(new(mocks.ChatRepositoryMock), nil))

	req := httptest.NewRequest(http.MethodPost, "/chats/group", bytes.NewBufferString(`{"name":"g","member_ids":[2]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroupChatSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, nil))

	chatRepo.On("CreateGroupChat", mock.Anything, 1, "g", []int{2, 3}).
		Return(models.Chat{ID: 11, Name: "g", IsGroup: true, MemberIDs: []int{2, 3, 1}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/group", bytes.NewBufferString(`{"name":"g","member_ids":[2,3]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestRenameGroupChatNotFound(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(newHandler(chatRepo, nil))

	chatRepo.On("IsMember", mock.Anything, 9, 1).Return(true, nil).Once()
	chatRepo.On("RenameChat", mock.Anything, 9, "renamed").Return(repositories.ErrChatNotFound).Once()

	req := httptest.NewRequest(http.MethodPut, "/chats/group/rename", bytes.NewBufferString(`{"chat_id":9,"name":"renamed"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	chatRepo.AssertExpectations(t)
}
