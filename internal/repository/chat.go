package repository

import (
	"context"
	"errors"
	"time"

	"quad/internal/models"

	"gorm.io/gorm"
)

// ChatRepository defines the interface for chat and message data operations.
type ChatRepository interface {
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	ChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)
	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	Messages(ctx context.Context, chatID string, limit, offset int) ([]models.ChatMessage, error)
	UpdateLastActivity(ctx context.Context, chatID string, ts time.Time) error
	MarkMessagesRead(ctx context.Context, chatID, readerID string) ([]models.ChatMessage, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

func (r *chatRepository) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).First(&chat, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Chat", id)
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepository) ChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.WithContext(ctx).
		Where("participant1_id = ? OR participant2_id = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&chats).Error
	return chats, err
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatRepository) Messages(ctx context.Context, chatID string, limit, offset int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	return msgs, err
}

func (r *chatRepository) UpdateLastActivity(ctx context.Context, chatID string, ts time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Chat{}).
		Where("id = ?", chatID).
		Update("last_message_at", ts).Error
}

// MarkMessagesRead flips is_read on every unread message in the chat not
// authored by readerID and returns the updated rows for broadcast.
func (r *chatRepository) MarkMessagesRead(ctx context.Context, chatID, readerID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id <> ? AND is_read = ?", chatID, readerID, false).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
		msgs[i].IsRead = true
	}
	err = r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("id IN ?", ids).
		Update("is_read", true).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
