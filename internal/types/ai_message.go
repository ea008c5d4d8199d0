package types

import (
	"time"

	"github.com/google/uuid"
)

// AIMessage is one ledger entry of a thread. Messages are never deleted
// individually; the only deletion path is the thread cascade. CreatedAt is
// the replay ordering key, with ID as tie-break for equal timestamps.
type AIMessage struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index;column:thread_id" json:"thread_id"`

	Content     string `gorm:"type:text;not null;column:content" json:"content"`
	IsAssistant bool   `gorm:"not null;default:false;column:is_assistant" json:"is_assistant"`
	IsSystem    bool   `gorm:"not null;default:false;column:is_system" json:"is_system"`

	TokenCount *int `gorm:"column:token_count" json:"token_count,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (AIMessage) TableName() string {
	return "ai_message"
}

// Role returns the completion-service role for this message.
func (m *AIMessage) Role() string {
	if m.IsAssistant {
		return "assistant"
	}
	return "user"
}
