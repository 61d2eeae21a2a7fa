// mindmesh/sources/psql/dao/dao.chat.go
package dao

import (
	"context"
	"errors"
	"mindmesh/mindmesh/sources/psql/models"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

type ChatDAO struct {
	DB *gorm.DB
}

func NewChatDAO(db *gorm.DB) *ChatDAO {
	return &ChatDAO{DB: db}
}

func (dao *ChatDAO) InsertConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	conv := models.Conversation{UserID: ownerID, Title: title}
	if err := dao.DB.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (dao *ChatDAO) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := dao.DB.WithContext(ctx).First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (dao *ChatDAO) InsertMessage(ctx context.Context, conversationID uuid.UUID, ownerID string, role models.Role, content string) (*models.Message, error) {
	msg := models.Message{
		ConversationID: conversationID,
		UserID:         ownerID,
		Role:           role,
		Content:        content,
	}
	if err := dao.DB.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (dao *ChatDAO) UpdateConversation(ctx context.Context, id uuid.UUID, update models.ConversationUpdate) error {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = time.Now()
	}
	updates := map[string]interface{}{"updated_at": update.UpdatedAt}
	if update.Title != nil {
		updates["title"] = *update.Title
	}
	res := dao.DB.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes the conversation and its messages in one transaction.
func (dao *ChatDAO) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListConversations returns the owner's conversations, most recently active first.
func (dao *ChatDAO) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	conversations := make([]models.Conversation, 0)
	err := dao.DB.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// ListMessages returns a conversation's messages in the order they were written.
func (dao *ChatDAO) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	err := dao.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}
