package chatbot

import (
	"context"
	"errors"
	"time"

	"github.com/studiumhub/coursechat/internal/tokens"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetConversationByPublicID(ctx context.Context, conversationID string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ConfigSource yields chatbot configurations. Implemented by Repo directly
// and by the redis read-through cache.
type ConfigSource interface {
	GetConfiguration(ctx context.Context, id uint64) (*Configuration, error)
}

func (r *Repo) GetConfiguration(ctx context.Context, id uint64) (*Configuration, error) {
	var cfg Configuration
	if err := r.db.WithContext(ctx).First(&cfg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigMissing
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *Repo) UpdateConfiguration(ctx context.Context, cfg *Configuration) error {
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *Repo) GetDefaultConfigurationForCourse(ctx context.Context, courseID string) (*Configuration, error) {
	var cfg Configuration
	if err := r.db.WithContext(ctx).
		Where("course_id = ? AND default_chatbot = ?", courseID, true).
		First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigMissing
		}
		return nil, err
	}
	return &cfg, nil
}

// InsertUserMessage stores a complete user turn. The token cost is the
// estimator's figure for the raw text.
func (r *Repo) InsertUserMessage(ctx context.Context, conversationID uint64, text string, order int) (*Message, error) {
	m := &Message{
		ConversationID: conversationID,
		IsFromChatbot:  false,
		Content:        &text,
		IsComplete:     true,
		UsedTokens:     tokens.Estimate(text),
		OrderNumber:    order,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// InsertAssistantPlaceholder reserves the assistant's slot before upstream
// responds: no content, incomplete, charged at the request-side estimate
// until finalize corrects it.
func (r *Repo) InsertAssistantPlaceholder(ctx context.Context, conversationID uint64, order, reservedTokens int) (*Message, error) {
	m := &Message{
		ConversationID: conversationID,
		IsFromChatbot:  true,
		Content:        nil,
		IsComplete:     false,
		UsedTokens:     reservedTokens,
		OrderNumber:    order,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns all live messages of a conversation in order_number
// ascending, the shape prompt assembly consumes.
func (r *Repo) ListMessages(ctx context.Context, conversationID uint64) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("order_number ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// FinalizeAssistant sets text, completeness and the final token accounting
// in one statement.
func (r *Repo) FinalizeAssistant(ctx context.Context, id uint64, text string, complete bool, totalTokens int) error {
	return r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"content":             text,
			"message_is_complete": complete,
			"used_tokens":         totalTokens,
		}).Error
}

// DeleteMessage soft-deletes a message row. Used for placeholders that never
// received any content.
func (r *Repo) DeleteMessage(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&Message{}, "id = ?", id).Error
}

// GetUsage returns the tokens already consumed in the window period
// containing now.
func (r *Repo) GetUsage(ctx context.Context, userID, configID uint64, window UsageWindow, now time.Time) (int, error) {
	var rec UsageRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND configuration_id = ? AND time_window = ? AND period_start = ?",
			userID, configID, window, window.PeriodStart(now)).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.UsedTokens, nil
}

// AddUsage increments the window counter, creating the period row on first
// use. Concurrent requests may both pass the pre-flight check on a stale
// read and overshoot the limit by one turn's reservation.
func (r *Repo) AddUsage(ctx context.Context, userID, configID uint64, window UsageWindow, now time.Time, delta int) error {
	periodStart := window.PeriodStart(now)
	res := r.db.WithContext(ctx).Model(&UsageRecord{}).
		Where("user_id = ? AND configuration_id = ? AND time_window = ? AND period_start = ?",
			userID, configID, window, periodStart).
		Update("used_tokens", gorm.Expr("used_tokens + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&UsageRecord{
		UserID:          userID,
		ConfigurationID: configID,
		Window:          window,
		PeriodStart:     periodStart,
		UsedTokens:      delta,
	}).Error
}

func (r *Repo) ListPageChunks(ctx context.Context, courseID string) ([]PageChunk, error) {
	var chunks []PageChunk
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("chunk_id ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}
