package storage

import (
	"context"
	"errors"
	"fmt"
	"freelynx/backend/internal/config"
	"freelynx/backend/internal/models"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Storage is the persistence boundary of the chat layer: conversations and
// their message logs in PostgreSQL, plus the online-users mirror in Redis.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)

	FindOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]models.ConversationListItem, error)
	ListConversationIDs(ctx context.Context) ([]string, error)
	TouchLastMessage(ctx context.Context, conversationID string, summary models.LastMessage) error
	RecomputeLastMessage(ctx context.Context, conversationID string) error

	AppendMessage(ctx context.Context, conv *models.Conversation, senderID, body string, attachments []models.Attachment) (*models.Message, error)
	PageMessages(ctx context.Context, conversationID, requesterID string, q PageQuery) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string, upTo uint) (int64, error)

	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
	AreUsersOnline(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// PageQuery selects a window of a conversation's log. Forward paging walks the
// log from its start; Recent takes the newest Limit messages (after Skip, or
// strictly before the Before cursor) and returns them oldest-first.
type PageQuery struct {
	Limit  int
	Skip   int
	Before uint
	Recent bool
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return config.DefaultPageSize
	}
	if limit > config.MaxPageSize {
		return config.MaxPageSize
	}
	return limit
}

type Service struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Logger *slog.Logger
}

// NewStorageService Constructor. rdb may be nil (admin CLI); the presence
// mirror then reports everyone offline.
func NewStorageService(db *gorm.DB, rdb *redis.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		DB:     db,
		Redis:  rdb,
		Logger: logger.With("component", "storage"),
	}
}

// Migrate creates or updates the chat tables and their indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
	)
}

// CreateUser inserts a new user. It never overwrites an existing row: a
// duplicate id or email fails with the database's unique violation.
func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Service) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return users, nil
}

// FindOrCreateConversation returns the single conversation for the unordered
// pair {userA, userB}, creating it when absent. The insert relies on the
// unique participant_key index, so concurrent calls converge on one row.
func (s *Service) FindOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, bool, error) {
	key, pair, err := models.PairKey(userA, userB)
	if err != nil {
		return nil, false, err
	}

	conv := models.Conversation{
		Participants:   pq.StringArray(pair),
		ParticipantKey: key,
	}
	result := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_key"}},
			DoNothing: true,
		}).
		Create(&conv)
	if result.Error != nil {
		s.Logger.Error("failed to create conversation", "pair", key, "err", result.Error)
		return nil, false, fmt.Errorf("create conversation: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.Logger.Info("conversation created", "conversation_id", conv.ID, "pair", key)
		return &conv, true, nil
	}

	var existing models.Conversation
	if err := s.DB.WithContext(ctx).Where("participant_key = ?", key).First(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("load conversation %s: %w", key, err)
	}
	return &existing, false, nil
}

func (s *Service) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return &conv, nil
}

// ListConversationsForUser returns every conversation userID takes part in,
// most recently active first, with participants resolved to display data.
func (s *Service) ListConversationsForUser(ctx context.Context, userID string) ([]models.ConversationListItem, error) {
	var convs []models.Conversation
	if err := s.DB.WithContext(ctx).
		Where("participants @> ARRAY[?]::text[]", userID).
		Order("updated_at DESC").
		Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("list conversations for %s: %w", userID, err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, c := range convs {
		for _, p := range c.Participants {
			if !seen[p] {
				seen[p] = true
				ids = append(ids, p)
			}
		}
	}
	users, err := s.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.UserSummary, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].Summary()
	}

	items := make([]models.ConversationListItem, 0, len(convs))
	for _, c := range convs {
		participants := make([]models.UserSummary, 0, len(c.Participants))
		for _, p := range c.Participants {
			summary, ok := byID[p]
			if !ok {
				summary = models.UserSummary{ID: p}
			}
			participants = append(participants, summary)
		}
		items = append(items, models.ConversationListItem{
			ID:           c.ID,
			Participants: participants,
			LastMessage:  c.LastMessage,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	return items, nil
}

func (s *Service) ListConversationIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.Conversation{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list conversation ids: %w", err)
	}
	return ids, nil
}

// TouchLastMessage overwrites the cached summary and bumps updated_at.
func (s *Service) TouchLastMessage(ctx context.Context, conversationID string, summary models.LastMessage) error {
	result := s.DB.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message_body":      summary.Body,
			"last_message_sender_id": summary.SenderID,
			"last_message_at":        summary.At,
			"updated_at":             time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("touch conversation %s: %w", conversationID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}
	return nil
}

// RecomputeLastMessage rebuilds the cached summary from the log tail. It repairs
// a conversation whose touch failed after the message itself was stored.
func (s *Service) RecomputeLastMessage(ctx context.Context, conversationID string) error {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return err
	}

	var tail models.Message
	err := s.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		First(&tail).Error

	updates := map[string]interface{}{
		"last_message_body":      "",
		"last_message_sender_id": "",
		"last_message_at":        nil,
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return fmt.Errorf("load tail of %s: %w", conversationID, err)
	default:
		summary := tail.Summary()
		updates["last_message_body"] = summary.Body
		updates["last_message_sender_id"] = summary.SenderID
		updates["last_message_at"] = summary.At
		updates["updated_at"] = tail.CreatedAt
	}

	return s.DB.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Updates(updates).Error
}

// AppendMessage stores a new message at the end of conv's log. conv is the
// record the caller already loaded; only the insert hits the database.
func (s *Service) AppendMessage(ctx context.Context, conv *models.Conversation, senderID, body string, attachments []models.Attachment) (*models.Message, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation: %w", models.ErrNotFound)
	}
	if !conv.HasParticipant(senderID) {
		return nil, fmt.Errorf("sender %s: %w", senderID, models.ErrUnauthorized)
	}
	conversationID := conv.ID

	if attachments == nil {
		attachments = []models.Attachment{}
	}
	msg := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           strings.TrimSpace(body),
		Attachments:    datatypes.JSONSlice[models.Attachment](attachments),
		ReadBy:         pq.StringArray{},
	}
	if err := s.DB.WithContext(ctx).Create(&msg).Error; err != nil {
		s.Logger.Error("failed to append message", "conversation_id", conversationID, "err", err)
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &msg, nil
}

// PageMessages returns a window of the log in ascending id order. The id is the
// store-assigned append sequence, so the Before cursor and the ordering agree.
// Non-participants get ErrUnauthorized and no records.
func (s *Service) PageMessages(ctx context.Context, conversationID, requesterID string, q PageQuery) ([]models.Message, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, fmt.Errorf("requester %s: %w", requesterID, models.ErrUnauthorized)
	}

	limit := ClampLimit(q.Limit)
	skip := q.Skip
	if skip < 0 {
		skip = 0
	}

	tx := s.DB.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if q.Before > 0 {
		tx = tx.Where("id < ?", q.Before)
	}

	messages := []models.Message{}
	if !q.Recent {
		err = tx.Order("id ASC").Offset(skip).Limit(limit).Find(&messages).Error
		if err != nil {
			return nil, fmt.Errorf("page messages of %s: %w", conversationID, err)
		}
		return messages, nil
	}

	err = tx.Order("id DESC").Offset(skip).Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("page recent messages of %s: %w", conversationID, err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead adds readerID to read_by of every message up to and including upTo
// (all messages when upTo is 0). read_by only ever grows.
func (s *Service) MarkRead(ctx context.Context, conversationID, readerID string, upTo uint) (int64, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(readerID) {
		return 0, fmt.Errorf("reader %s: %w", readerID, models.ErrUnauthorized)
	}

	tx := s.DB.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Where("NOT (? = ANY(COALESCE(read_by, '{}')))", readerID)
	if upTo > 0 {
		tx = tx.Where("id <= ?", upTo)
	}
	result := tx.Update("read_by", gorm.Expr("array_append(COALESCE(read_by, '{}'), ?)", readerID))
	if result.Error != nil {
		return 0, fmt.Errorf("mark read in %s: %w", conversationID, result.Error)
	}
	return result.RowsAffected, nil
}
