package chatbot

import (
	"time"

	"gorm.io/gorm"
)

type Conversation struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID  string         `gorm:"type:varchar(26);uniqueIndex;not null" json:"conversation_id"`
	UserID          uint64         `gorm:"index;not null" json:"-"`
	ConfigurationID uint64         `gorm:"index;not null" json:"configuration_id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Conversation) TableName() string { return "conversations" }

// Message is one turn in a conversation. Assistant messages are inserted as
// placeholders (Content nil, incomplete) and finalized exactly once.
type Message struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64         `gorm:"not null;index;uniqueIndex:uniq_conv_order,priority:1" json:"-"`
	IsFromChatbot  bool           `gorm:"not null" json:"is_from_chatbot"`
	Content        *string        `gorm:"type:text" json:"content"`
	IsComplete     bool           `gorm:"column:message_is_complete;not null" json:"message_is_complete"`
	UsedTokens     int            `gorm:"not null" json:"used_tokens"`
	OrderNumber    int            `gorm:"not null;uniqueIndex:uniq_conv_order,priority:2" json:"order_number"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Message) TableName() string { return "conversation_messages" }

type Configuration struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID string `gorm:"type:varchar(36);index;not null" json:"course_id"`

	Prompt string `gorm:"type:text;not null" json:"prompt"`

	Temperature      float32 `gorm:"not null" json:"temperature"`
	TopP             float32 `gorm:"column:top_p;not null" json:"top_p"`
	FrequencyPenalty float32 `gorm:"not null" json:"frequency_penalty"`
	PresencePenalty  float32 `gorm:"not null" json:"presence_penalty"`

	ResponseMaxTokens   int32 `gorm:"not null" json:"response_max_tokens"`
	DailyTokensPerUser  int32 `gorm:"not null" json:"daily_tokens_per_user"`
	WeeklyTokensPerUser int32 `gorm:"not null" json:"weekly_tokens_per_user"`

	UseAzureSearch           bool `gorm:"not null" json:"use_azure_search"`
	MaintainAzureSearchIndex bool `gorm:"not null" json:"maintain_azure_search_index"`
	HideCitations            bool `gorm:"not null" json:"hide_citations"`
	EnabledToStudents        bool `gorm:"not null" json:"enabled_to_students"`
	DefaultChatbot           bool `gorm:"not null" json:"default_chatbot"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Configuration) TableName() string { return "chatbot_configurations" }

type UsageWindow string

const (
	WindowDay  UsageWindow = "day"
	WindowWeek UsageWindow = "week"
)

// UsageRecord accumulates estimated tokens per (user, configuration, window
// period). One row per period; rows for past periods are never read again.
type UsageRecord struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement"`
	UserID          uint64         `gorm:"not null;uniqueIndex:uniq_usage_period,priority:1"`
	ConfigurationID uint64         `gorm:"not null;uniqueIndex:uniq_usage_period,priority:2"`
	Window          UsageWindow    `gorm:"column:time_window;type:varchar(8);not null;uniqueIndex:uniq_usage_period,priority:3"`
	PeriodStart     time.Time      `gorm:"not null;uniqueIndex:uniq_usage_period,priority:4"`
	UsedTokens      int            `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

func (UsageRecord) TableName() string { return "chatbot_usage_records" }

// PageChunk is the embedded course material the maintenance worker uploads
// into the search index. Embeddings are produced by an out-of-scope pipeline.
type PageChunk struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	ChunkID   string         `gorm:"type:varchar(64);uniqueIndex;not null"`
	CourseID  string         `gorm:"type:varchar(36);index;not null"`
	PageID    string         `gorm:"type:varchar(36);index;not null"`
	Title     string         `gorm:"type:varchar(255);not null"`
	PagePath  string         `gorm:"type:varchar(512);not null"`
	Chunk     string         `gorm:"type:text;not null"`
	Embedding string         `gorm:"type:mediumtext;not null"` // JSON-encoded []float32
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (PageChunk) TableName() string { return "course_page_chunks" }

// PeriodStart returns the UTC start of the window containing now: midnight
// for day windows, Monday midnight for week windows.
func (w UsageWindow) PeriodStart(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if w == WindowDay {
		return day
	}
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, 1-weekday)
}
