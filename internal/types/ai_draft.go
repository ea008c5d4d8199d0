package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DraftStatusDraft     = "draft"
	DraftStatusConverted = "converted"
)

// AIDraft is the project proposal extracted from a thread. A thread has at
// most one draft (unique thread_id), created lazily on first extraction.
// Ownership mirrors the thread's account-XOR-session model but is settable
// independently. Once Status is "converted" the row is immutable.
type AIDraft struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;column:thread_id" json:"thread_id"`

	UserID    *uuid.UUID `gorm:"type:uuid;index;column:user_id" json:"user_id,omitempty"`
	SessionID *string    `gorm:"size:255;index;column:session_id" json:"session_id,omitempty"`

	Title            string `gorm:"size:255;column:title" json:"title"`
	Slug             string `gorm:"size:50;column:slug" json:"slug"`
	ShortDescription string `gorm:"size:500;column:short_description" json:"short_description"`
	Description      string `gorm:"type:text;column:description" json:"description"`

	FundingGoal  *decimal.Decimal `gorm:"type:numeric(12,2);column:funding_goal" json:"funding_goal,omitempty"`
	ProjectType  string           `gorm:"size:50;column:project_type" json:"project_type"`
	Plan         string           `gorm:"size:50;column:plan" json:"plan"`
	StartDate    *time.Time       `gorm:"column:start_date" json:"start_date,omitempty"`
	DurationDays *int             `gorm:"column:duration_days" json:"duration_days,omitempty"`

	Status             string     `gorm:"size:50;not null;default:'draft';column:status" json:"status"`
	ConvertedProjectID *uuid.UUID `gorm:"type:uuid;column:converted_project_id" json:"converted_project_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (AIDraft) TableName() string {
	return "ai_draft"
}

func (d *AIDraft) Converted() bool {
	return d.Status == DraftStatusConverted
}
