package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/types"
)

type AIThreadRepo interface {
	Create(ctx context.Context, tx *gorm.DB, thread *types.AIThread) (*types.AIThread, error)
	GetByID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.AIThread, error)
	// GetUnclaimedByID fetches the thread only if it has no owning account.
	GetUnclaimedByID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.AIThread, error)
	// GetUnclaimedBySession finds an anonymous thread for the session, if any.
	GetUnclaimedBySession(ctx context.Context, tx *gorm.DB, sessionID string) (*types.AIThread, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.AIThread, error)
	Update(ctx context.Context, tx *gorm.DB, thread *types.AIThread) error
	Delete(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) error
}

type aiThreadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAIThreadRepo(db *gorm.DB, baseLog *logger.Logger) AIThreadRepo {
	repoLog := baseLog.With("repo", "AIThreadRepo")
	return &aiThreadRepo{db: db, log: repoLog}
}

func (tr *aiThreadRepo) Create(ctx context.Context, tx *gorm.DB, thread *types.AIThread) (*types.AIThread, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	if err := transaction.WithContext(ctx).Create(thread).Error; err != nil {
		return nil, err
	}
	return thread, nil
}

func (tr *aiThreadRepo) GetByID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.AIThread, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	var thread types.AIThread
	if err := transaction.WithContext(ctx).
		Where("id = ?", threadID).
		First(&thread).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

func (tr *aiThreadRepo) GetUnclaimedByID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.AIThread, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	var thread types.AIThread
	if err := transaction.WithContext(ctx).
		Where("id = ? AND user_id IS NULL", threadID).
		First(&thread).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

func (tr *aiThreadRepo) GetUnclaimedBySession(ctx context.Context, tx *gorm.DB, sessionID string) (*types.AIThread, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	var thread types.AIThread
	if err := transaction.WithContext(ctx).
		Where("session_id = ? AND user_id IS NULL", sessionID).
		Order("created_at DESC").
		First(&thread).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

func (tr *aiThreadRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.AIThread, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	var threads []*types.AIThread
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&threads).Error; err != nil {
		return nil, err
	}
	return threads, nil
}

func (tr *aiThreadRepo) Update(ctx context.Context, tx *gorm.DB, thread *types.AIThread) error {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	return transaction.WithContext(ctx).Save(thread).Error
}

func (tr *aiThreadRepo) Delete(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", threadID).
		Delete(&types.AIThread{}).Error
}
