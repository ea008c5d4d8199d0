package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ProjectStatusDraft     = "draft"
	ProjectStatusSubmitted = "submitted"
	ProjectStatusVerified  = "verified"
	ProjectStatusFinancing = "financing"

	ProjectTypeCrowdfunding = "crowdfunding"
	ProjectTypeFundraising  = "fundraising"
	ProjectTypePrivate      = "private"

	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanPremium    = "premium"
	PlanEnterprise = "enterprise"
)

type Project struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerID uuid.UUID `gorm:"type:uuid;not null;index;column:owner_id" json:"owner_id"`

	Title            string `gorm:"size:255;not null;column:title" json:"title"`
	Slug             string `gorm:"size:255;uniqueIndex;not null;column:slug" json:"slug"`
	Description      string `gorm:"type:text;column:description" json:"description"`
	ShortDescription string `gorm:"size:500;column:short_description" json:"short_description"`

	FundingGoal    *decimal.Decimal `gorm:"type:numeric(12,2);column:funding_goal" json:"funding_goal,omitempty"`
	FundingCurrent decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0;column:funding_current" json:"funding_current"`

	Status      string `gorm:"size:50;not null;default:'draft';index;column:status" json:"status"`
	ProjectType string `gorm:"size:50;not null;default:'crowdfunding';column:project_type" json:"project_type"`
	Plan        string `gorm:"size:50;not null;default:'basic';column:plan" json:"plan"`

	// Provision is the platform commission percentage derived from the plan.
	// NULL for enterprise (individually negotiated).
	Provision *decimal.Decimal `gorm:"type:numeric(5,2);column:provision" json:"provision,omitempty"`

	StartDate    *time.Time `gorm:"column:start_date" json:"start_date,omitempty"`
	FinancingEnd *time.Time `gorm:"column:financing_end" json:"financing_end,omitempty"`

	// AI provenance: set only by draft conversion.
	AIGenerated bool       `gorm:"not null;default:false;column:ai_generated" json:"ai_generated"`
	AIThreadID  *uuid.UUID `gorm:"type:uuid;column:ai_thread_id" json:"ai_thread_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Project) TableName() string {
	return "project"
}
