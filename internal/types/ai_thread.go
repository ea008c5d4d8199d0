package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AIThread is one coaching conversation. Exactly one of UserID and SessionID
// is set until the thread is claimed, after which SessionID is cleared and
// ownership never transfers back.
type AIThread struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    *uuid.UUID `gorm:"type:uuid;index;column:user_id" json:"user_id,omitempty"`
	SessionID *string    `gorm:"size:255;index;column:session_id" json:"session_id,omitempty"`

	Metadata datatypes.JSON `gorm:"type:jsonb;not null;default:'{}';column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`

	Messages []AIMessage `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	Draft    *AIDraft    `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"draft,omitempty"`
}

func (AIThread) TableName() string {
	return "ai_thread"
}

// Claimed reports whether the thread is owned by an account.
func (t *AIThread) Claimed() bool {
	return t.UserID != nil && *t.UserID != uuid.Nil
}
