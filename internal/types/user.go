package types

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email       string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password    string    `gorm:"not null;column:password" json:"-"`
	FullName    string    `gorm:"not null;column:full_name" json:"full_name"`
	ProfileSlug string    `gorm:"uniqueIndex;not null;column:profile_slug" json:"profile_slug"`
	IsActive    bool      `gorm:"not null;default:true;column:is_active" json:"is_active"`
	IsAdmin     bool      `gorm:"not null;default:false;column:is_admin" json:"is_admin"`

	// IsStarter is set the first time the user converts a draft into a project.
	IsStarter bool `gorm:"not null;default:false;column:is_starter" json:"is_starter"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
