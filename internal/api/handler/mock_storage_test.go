package handler_test

import (
	"context"
	"freelynx/backend/internal/models"
	"freelynx/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify/mock implementation of storage.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	args := m.Called(ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockStorage) FindOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, bool, error) {
	args := m.Called(userA, userB)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.Conversation), args.Bool(1), args.Error(2)
}

func (m *MockStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStorage) ListConversationsForUser(ctx context.Context, userID string) ([]models.ConversationListItem, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConversationListItem), args.Error(1)
}

func (m *MockStorage) ListConversationIDs(ctx context.Context) ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) TouchLastMessage(ctx context.Context, conversationID string, summary models.LastMessage) error {
	args := m.Called(conversationID, summary)
	return args.Error(0)
}

func (m *MockStorage) RecomputeLastMessage(ctx context.Context, conversationID string) error {
	args := m.Called(conversationID)
	return args.Error(0)
}

func (m *MockStorage) AppendMessage(ctx context.Context, conv *models.Conversation, senderID, body string, attachments []models.Attachment) (*models.Message, error) {
	args := m.Called(conv.ID, senderID, body, attachments)
	if fn, ok := args.Get(0).(func(conversationID, senderID, body string) *models.Message); ok {
		return fn(conv.ID, senderID, body), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) PageMessages(ctx context.Context, conversationID, requesterID string, q storage.PageQuery) ([]models.Message, error) {
	args := m.Called(conversationID, requesterID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) MarkRead(ctx context.Context, conversationID, readerID string, upTo uint) (int64, error) {
	args := m.Called(conversationID, readerID, upTo)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) SetUserOnline(ctx context.Context, userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStorage) SetUserOffline(ctx context.Context, userID string) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStorage) AreUsersOnline(ctx context.Context, userIDs []string) (map[string]bool, error) {
	args := m.Called(userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

// newPresenceTolerantStorage returns a MockStorage that accepts any presence
// mirror traffic, which most hub tests do not care about.
func newPresenceTolerantStorage() *MockStorage {
	s := new(MockStorage)
	s.On("SetUserOnline", mock.Anything).Return(nil).Maybe()
	s.On("SetUserOffline", mock.Anything).Return(nil).Maybe()
	return s
}
